package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/deck"
	"github.com/DoyleJ11/dobble-backend/internal/engine"
	"github.com/DoyleJ11/dobble-backend/internal/hub"
	"github.com/DoyleJ11/dobble-backend/internal/lobby"
	"github.com/DoyleJ11/dobble-backend/internal/session"
	"github.com/DoyleJ11/dobble-backend/internal/types"
	"github.com/DoyleJ11/dobble-backend/pkg/protocol"
)

var testCards = []catalog.Card{
	{ID: 1, Symbols: []string{"sun", "star", "apple"}},
	{ID: 2, Symbols: []string{"sun", "moon", "bell"}},
	{ID: 3, Symbols: []string{"moon", "star", "cat"}},
	{ID: 4, Symbols: []string{"apple", "bell", "cat"}},
}

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	cat, err := catalog.New(testCards)
	require.NoError(t, err)

	h := hub.NewHub(context.Background(), hub.Options{
		Catalog: cat,
		Rules:   engine.DefaultRules(),
		NewDeck: func() *deck.Deck { return deck.NewOrdered(testCards) },
	})
	sess := session.NewHandler(h, session.DefaultConfig(), zap.NewNop())

	srv := httptest.NewServer(SetupRoutes(h, sess, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		h.Shutdown()
	})
	return srv, h
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLobbies_ListAndGet(t *testing.T) {
	srv, h := newTestServer(t)
	ctx := context.Background()

	var empty types.LobbyList
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/lobbies", &empty))
	assert.Empty(t, empty.Lobbies)

	for _, id := range []int32{9, 2} {
		lb, err := h.Resolve(ctx, id)
		require.NoError(t, err)
		require.NoError(t, lb.Join(ctx, lobby.JoinRequest{PlayerID: "p", Name: "alice", Outbox: make(chan lobby.Update, 4)}))
	}

	var list types.LobbyList
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/lobbies", &list))
	require.Len(t, list.Lobbies, 2)
	assert.Equal(t, int32(2), list.Lobbies[0].ID)
	assert.Equal(t, engine.PhaseWaiting, list.Lobbies[0].Phase)
	assert.Equal(t, 1, list.Lobbies[0].NumClients)

	var v lobby.View
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/lobbies/9", &v))
	assert.Equal(t, int32(9), v.ID)
	require.Len(t, v.Players, 1)
	assert.Equal(t, "alice", v.Players[0].Name)
}

func TestGetLobby_Errors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path string
		want int
	}{
		{"/lobbies/5", http.StatusNotFound},
		{"/lobbies/abc", http.StatusBadRequest},
		{"/lobbies/-1", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var e types.ErrorResponse
			assert.Equal(t, tt.want, getJSON(t, srv.URL+tt.path, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestWebSocket_TwoPlayersGetDeals(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dial := func(name string) *websocket.Conn {
		c, _, err := websocket.Dial(ctx, url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { c.CloseNow() })
		nc := websocket.NetConn(ctx, c, websocket.MessageBinary)
		require.NoError(t, protocol.WriteMessage(nc, protocol.Join(1, name)))
		return c
	}

	alice := dial("alice")
	require.Eventually(t, func() bool {
		var v lobby.View
		return getJSON(t, srv.URL+"/lobbies/1", &v) == http.StatusOK && v.NumClients == 1
	}, 2*time.Second, 10*time.Millisecond)
	bob := dial("bob")

	for _, tc := range []struct {
		c    *websocket.Conn
		hand int32
	}{{alice, 2}, {bob, 3}} {
		typ, data, err := tc.c.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageBinary, typ)
		require.Greater(t, len(data), 4)

		m, err := protocol.Unmarshal(data[4:])
		require.NoError(t, err)
		assert.Equal(t, protocol.Deal(tc.hand, 1, 0), m)
	}
}
