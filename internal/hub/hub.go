package hub

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/deck"
	"github.com/DoyleJ11/dobble-backend/internal/engine"
	"github.com/DoyleJ11/dobble-backend/internal/lobby"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	ID    int32
	Reply chan *lobby.Lobby
}

// EnsureLobby returns the lobby for ID, creating a waiting lobby with a fresh shuffled deck if needed.
type EnsureLobby struct {
	ID    int32
	Reply chan *lobby.Lobby
}

type ListLobbies struct {
	Reply chan []*lobby.Lobby
}

// RemoveLobby evicts ID only while it still maps to Lobby.
type RemoveLobby struct {
	ID    int32
	Lobby *lobby.Lobby
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Catalog     *catalog.Catalog
	Rules       engine.Rules
	AutoRestart bool
	Sink        lobby.ResultSink
	Logger      *zap.Logger

	// NewDeck overrides the per-lobby deck factory. Defaults to a shuffled copy of Catalog.
	NewDeck func() *deck.Deck
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[int32]*lobby.Lobby
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewDeck == nil {
		cat := opts.Catalog
		opts.NewDeck = func() *deck.Deck { return deck.New(cat.All()) }
	}

	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[int32]*lobby.Lobby),
		opts:    opts,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub goroutine has stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			// Lobbies share h.ctx and stop on their own.
			clear(h.lobbies)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.ID] // May be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.ID]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := h.newLobby(msg.ID)
				h.lobbies[msg.ID] = lb
				h.log.Info("lobby created", zap.Int32("lobby", msg.ID), zap.Int("lobbies", len(h.lobbies)))
				msg.Reply <- lb

			case ListLobbies:
				out := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					out = append(out, lb)
				}
				sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
				msg.Reply <- out

			case RemoveLobby:
				if h.lobbies[msg.ID] == msg.Lobby {
					delete(h.lobbies, msg.ID)
					h.log.Info("lobby removed", zap.Int32("lobby", msg.ID), zap.Int("lobbies", len(h.lobbies)))
				}

			case ShutdownHub:
				clear(h.lobbies)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) newLobby(id int32) *lobby.Lobby {
	return lobby.NewLobby(h.ctx, id, lobby.Options{
		Rules:       h.opts.Rules,
		AutoRestart: h.opts.AutoRestart,
		NewDeck:     h.opts.NewDeck,
		Logger:      h.opts.Logger,
		Sink:        h.opts.Sink,
		OnEmpty:     h.evict,
	})
}

// evict runs on the emptied lobby's goroutine. It is enqueued before the lobby stops,
// so any EnsureLobby sent after a caller observes lobby.ErrLobbyClosed sees the removal first.
func (h *Hub) evict(lb *lobby.Lobby) {
	select {
	case h.inbox <- RemoveLobby{ID: lb.ID(), Lobby: lb}:
	case <-h.ctx.Done():
	}
}
