package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/deck"
	"github.com/DoyleJ11/dobble-backend/internal/engine"
)

// Every pair shares exactly one symbol. Dealing order is A (table), then B, C, D.
var testCards = []catalog.Card{
	{ID: 1, Symbols: []string{"sun", "star", "apple"}},
	{ID: 2, Symbols: []string{"sun", "moon", "bell"}},
	{ID: 3, Symbols: []string{"moon", "star", "cat"}},
	{ID: 4, Symbols: []string{"apple", "bell", "cat"}},
}

type captureSink struct {
	mu      sync.Mutex
	results []engine.Result
}

func (s *captureSink) Publish(r engine.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *captureSink) all() []engine.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Result(nil), s.results...)
}

func newTestLobby(t *testing.T, mutate func(*Options)) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	opts := Options{
		Rules:   engine.DefaultRules(),
		NewDeck: func() *deck.Deck { return deck.NewOrdered(testCards) },
		Logger:  zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewLobby(ctx, 7, opts)
}

// helper: receive one update with a timeout so tests never hang
func recvUpdate(t *testing.T, ch <-chan Update, within time.Duration) Update {
	t.Helper()
	select {
	case upd, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return upd
	case <-time.After(within):
		t.Fatalf("timed out waiting for update")
		return Update{} // unreachable
	}
}

func recvNoUpdate(t *testing.T, ch <-chan Update, within time.Duration) {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further updates possible
			return
		}
		t.Fatalf("expected no update within %v, but got: %+v", within, u)
	case <-time.After(within):
		// good: no update
	}
}

func recvClosed(t *testing.T, ch <-chan Update, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox was not closed within %v", within)
		}
	}
}

func mustJoin(t *testing.T, l *Lobby, id string, outbox chan Update) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Join(ctx, JoinRequest{PlayerID: id, Name: id, Outbox: outbox}))
}

func mustView(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := l.View(ctx)
	require.NoError(t, err)
	return v
}

func TestLobby_SecondJoinStartsMatchAndDeals(t *testing.T) {
	l := newTestLobby(t, nil)

	out1 := make(chan Update, 4)
	mustJoin(t, l, "p1", out1)
	recvNoUpdate(t, out1, 50*time.Millisecond)
	assert.Equal(t, engine.PhaseWaiting, mustView(t, l).Phase)

	out2 := make(chan Update, 4)
	mustJoin(t, l, "p2", out2)

	d1 := recvUpdate(t, out1, 200*time.Millisecond)
	d2 := recvUpdate(t, out2, 200*time.Millisecond)
	assert.Equal(t, UpdateDeal, d1.Kind)
	assert.Equal(t, int32(1), d1.TableID)
	assert.Equal(t, d1.TableID, d2.TableID)
	assert.Equal(t, int32(2), d1.HandID)
	assert.Equal(t, int32(3), d2.HandID)
	assert.NotEqual(t, d1.HandID, d1.TableID)

	v := mustView(t, l)
	assert.Equal(t, engine.PhaseActive, v.Phase)
	assert.Equal(t, 2, v.NumClients)
	require.NotNil(t, v.TableID)
	assert.Equal(t, int32(1), *v.TableID)
	assert.Equal(t, 1, v.DeckRemaining)
}

func TestLobby_JoinRejectedWhileActive(t *testing.T) {
	l := newTestLobby(t, nil)
	mustJoin(t, l, "p1", make(chan Update, 4))
	mustJoin(t, l, "p2", make(chan Update, 4))

	late := make(chan Update, 4)
	err := l.Join(context.Background(), JoinRequest{PlayerID: "p3", Name: "late", Outbox: late})
	assert.True(t, errors.Is(err, engine.ErrAlreadyStarted), "got %v", err)
	recvNoUpdate(t, late, 50*time.Millisecond)
	assert.Equal(t, 2, mustView(t, l).NumClients)
}

func TestLobby_CorrectGuessBroadcastsToEveryMember(t *testing.T) {
	l := newTestLobby(t, nil)
	out1, out2 := make(chan Update, 4), make(chan Update, 4)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	require.NoError(t, l.Guess(context.Background(), "p1", "sun"))

	u1 := recvUpdate(t, out1, 200*time.Millisecond)
	u2 := recvUpdate(t, out2, 200*time.Millisecond)
	assert.Equal(t, Update{Kind: UpdateDeal, HandID: 1, TableID: 4, Score: 1}, u1)
	assert.Equal(t, Update{Kind: UpdateDeal, HandID: 3, TableID: 4, Score: 0}, u2)
}

func TestLobby_WrongGuessIsSilent(t *testing.T) {
	l := newTestLobby(t, nil)
	out1, out2 := make(chan Update, 4), make(chan Update, 4)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	require.NoError(t, l.Guess(context.Background(), "p1", "moon"))
	require.NoError(t, l.Guess(context.Background(), "p1", "Sun"))

	recvNoUpdate(t, out1, 50*time.Millisecond)
	recvNoUpdate(t, out2, 50*time.Millisecond)
	for _, p := range mustView(t, l).Players {
		assert.Zero(t, p.Score)
	}
}

func TestLobby_ExhaustionEndsMatchAndPublishesResult(t *testing.T) {
	sink := &captureSink{}
	l := newTestLobby(t, func(o *Options) { o.Sink = sink })
	out1, out2 := make(chan Update, 8), make(chan Update, 8)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	require.NoError(t, l.Guess(context.Background(), "p1", "sun")) // table -> 4, deck empty
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	require.NoError(t, l.Guess(context.Background(), "p1", "apple")) // hand 1 vs table 4
	for _, out := range []chan Update{out1, out2} {
		over := recvUpdate(t, out, 200*time.Millisecond)
		assert.Equal(t, UpdateGameOver, over.Kind)
		assert.Equal(t, NoCard, over.TableID)
		assert.Equal(t, "p1", over.Winner)
		assert.Equal(t, 2, over.WinnerScore)
	}

	v := mustView(t, l)
	assert.Equal(t, engine.PhaseWaiting, v.Phase)
	assert.Equal(t, 2, v.NumClients, "membership survives the end of a match")
	assert.Equal(t, 1, v.MatchesPlayed)
	assert.Equal(t, len(testCards), v.DeckRemaining, "deck re-initialised")
	for _, p := range v.Players {
		assert.Zero(t, p.Score)
	}

	results := sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, int32(7), results[0].LobbyID)
	assert.Equal(t, "p1", results[0].WinnerID)
}

func TestLobby_AutoRestartDealsNextMatch(t *testing.T) {
	l := newTestLobby(t, func(o *Options) { o.AutoRestart = true })
	out1, out2 := make(chan Update, 8), make(chan Update, 8)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	require.NoError(t, l.Guess(context.Background(), "p1", "sun"))
	recvUpdate(t, out1, 200*time.Millisecond)
	require.NoError(t, l.Guess(context.Background(), "p2", "cat")) // hand 3 vs table 4

	assert.Equal(t, UpdateGameOver, recvUpdate(t, out1, 200*time.Millisecond).Kind)
	next := recvUpdate(t, out1, 200*time.Millisecond)
	assert.Equal(t, UpdateDeal, next.Kind)
	assert.Equal(t, int32(1), next.TableID)
	assert.Equal(t, 0, next.Score)
	assert.Equal(t, engine.PhaseActive, mustView(t, l).Phase)
}

func TestLobby_LeaveMidMatchKeepsOthersPlaying(t *testing.T) {
	l := newTestLobby(t, nil)
	out1, out2 := make(chan Update, 4), make(chan Update, 4)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	l.Leave("p2")
	recvClosed(t, out2, 200*time.Millisecond)

	v := mustView(t, l)
	assert.Equal(t, 1, v.NumClients)
	assert.Equal(t, engine.PhaseActive, v.Phase)

	require.NoError(t, l.Guess(context.Background(), "p1", "sun"))
	u := recvUpdate(t, out1, 200*time.Millisecond)
	assert.Equal(t, 1, u.Score)
}

func TestLobby_LastLeaveEvictsAndStops(t *testing.T) {
	evicted := make(chan *Lobby, 1)
	l := newTestLobby(t, func(o *Options) {
		o.OnEmpty = func(lb *Lobby) { evicted <- lb }
	})
	mustJoin(t, l, "p1", make(chan Update, 4))

	assert.Equal(t, 1, mustView(t, l).NumClients)

	l.Leave("p1")
	select {
	case lb := <-evicted:
		assert.Same(t, l, lb)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty not called")
	}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby goroutine did not stop")
	}

	err := l.Join(context.Background(), JoinRequest{PlayerID: "p2", Outbox: make(chan Update, 1)})
	assert.ErrorIs(t, err, ErrLobbyClosed)
	_, err = l.View(context.Background())
	assert.ErrorIs(t, err, ErrLobbyClosed)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newTestLobby(t, nil)
	slow := make(chan Update, 1)
	fast := make(chan Update, 8)
	mustJoin(t, l, "slow", slow)
	mustJoin(t, l, "fast", fast) // deal fills slow's buffer
	recvUpdate(t, fast, 200*time.Millisecond)

	// fast holds card 3 (moon, star, cat); table 1 shares "star".
	require.NoError(t, l.Guess(context.Background(), "fast", "star"))
	recvUpdate(t, fast, 200*time.Millisecond)

	v := mustView(t, l)
	assert.Equal(t, 1, v.NumClients, "expected slow client to be dropped")
	recvClosed(t, slow, 200*time.Millisecond)
}

func TestLobby_ConcurrentCollidingGuessesScoreOnce(t *testing.T) {
	l := newTestLobby(t, nil)
	out1, out2 := make(chan Update, 8), make(chan Update, 8)
	mustJoin(t, l, "p1", out1)
	mustJoin(t, l, "p2", out2)
	recvUpdate(t, out1, 200*time.Millisecond)
	recvUpdate(t, out2, 200*time.Millisecond)

	// p1 (card 2) and p2 (card 3) each hold a correct symbol for table card 1.
	// Whoever is resolved first takes the table; the other guess no longer matches card 4.
	var wg sync.WaitGroup
	for _, g := range []Guess{{PlayerID: "p1", Symbol: "sun"}, {PlayerID: "p2", Symbol: "star"}} {
		wg.Add(1)
		go func(g Guess) {
			defer wg.Done()
			_ = l.Guess(context.Background(), g.PlayerID, g.Symbol)
		}(g)
	}
	wg.Wait()

	total := 0
	for _, p := range mustView(t, l).Players {
		total += p.Score
	}
	assert.Equal(t, 1, total)
}

func TestLobby_ShutdownClosesOutboxes(t *testing.T) {
	l := newTestLobby(t, nil)
	out := make(chan Update, 4)
	mustJoin(t, l, "p1", out)

	l.Inbox() <- Shutdown{}
	recvClosed(t, out, 200*time.Millisecond)
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatalf("lobby did not stop")
	}
}
