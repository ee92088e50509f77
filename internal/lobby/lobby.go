package lobby

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/deck"
	"github.com/DoyleJ11/dobble-backend/internal/engine"
)

// ErrLobbyClosed is returned to callers whose message reached a lobby that has already stopped.
// Callers resolving through the hub should resolve again.
var ErrLobbyClosed = errors.New("lobby closed")

// NoCard is the table id sent with a game-over update.
const NoCard int32 = -1

type Msg interface{ isLobbyMsg() }

type Join struct {
	PlayerID string
	Name     string
	Outbox   chan Update // where this player wants to receive updates
	Reply    chan error  // buffered, cap >= 1
}

func (Join) isLobbyMsg() {}

type Leave struct{ PlayerID string }

func (Leave) isLobbyMsg() {}

type Guess struct {
	PlayerID string
	Symbol   string
}

func (Guess) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type UpdateKind int

const (
	UpdateDeal UpdateKind = iota + 1
	UpdateGameOver
)

// Update is pushed to a member's outbox. Deal updates carry that member's own hand and score.
type Update struct {
	Kind        UpdateKind
	HandID      int32
	TableID     int32
	Score       int
	Winner      string
	WinnerScore int
}

type PlayerView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Score  int    `json:"score"`
	HandID *int32 `json:"hand_id,omitempty"`
}

type View struct {
	ID            int32        `json:"id"`
	Phase         engine.Phase `json:"phase"`
	NumClients    int          `json:"num_clients"`
	Players       []PlayerView `json:"players"`
	TableID       *int32       `json:"table_id,omitempty"`
	DeckRemaining int          `json:"deck_remaining"`
	MatchesPlayed int          `json:"matches_played"`
}

// ResultSink receives completed match results. Publish must not block.
type ResultSink interface {
	Publish(engine.Result)
}

type Options struct {
	Rules       engine.Rules
	AutoRestart bool
	NewDeck     func() *deck.Deck
	Logger      *zap.Logger
	Sink        ResultSink

	// OnEmpty runs on the lobby goroutine once the last member has left, right before the lobby stops.
	OnEmpty func(*Lobby)
}

type Lobby struct {
	id         int32
	inbox      chan Msg
	match      *engine.Match
	clients    map[string]chan Update
	opts       Options
	log        *zap.Logger
	hadMembers bool
	matches    int
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewLobby(parent context.Context, id int32, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Lobby{
		id:      id,
		inbox:   make(chan Msg, 64), // Small buffer
		match:   engine.NewMatch(id, opts.Rules, opts.NewDeck()),
		clients: make(map[string]chan Update),
		opts:    opts,
		log:     opts.Logger.With(zap.Int32("lobby", id)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) ID() int32 { return l.id }

// Done is closed once the lobby goroutine has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Expose the inbox so tests or the session layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) loop() {
	defer close(l.done)

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- l.join(msg)

			case Leave:
				l.remove(msg.PlayerID, "left")

			case Guess:
				l.guess(msg)

			case GetState:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}

			if l.hadMembers && len(l.clients) == 0 {
				l.log.Info("lobby empty, evicting")
				if l.opts.OnEmpty != nil {
					l.opts.OnEmpty(l)
				}
				l.cancel()
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) error {
	if err := l.match.AddPlayer(msg.PlayerID, msg.Name); err != nil {
		l.log.Info("join rejected", zap.String("player", msg.PlayerID), zap.String("name", msg.Name), zap.Error(err))
		return err
	}
	l.clients[msg.PlayerID] = msg.Outbox
	l.hadMembers = true
	l.log.Info("player joined",
		zap.String("player", msg.PlayerID),
		zap.String("name", msg.Name),
		zap.Int("members", len(l.clients)))

	if l.match.CanStart() {
		l.start()
	}
	return nil
}

func (l *Lobby) start() {
	if _, err := l.match.Apply(engine.Command{Type: engine.CmdStartMatch}); err != nil {
		l.log.Error("match start aborted", zap.Error(err), zap.Int("deck", l.match.DeckLen()))
		return
	}
	table, _ := l.match.Table()
	l.log.Info("match started", zap.Int32("table", table.ID), zap.Int("players", l.match.NumPlayers()))
	l.broadcastDeal()
}

func (l *Lobby) guess(msg Guess) {
	events, err := l.match.Apply(engine.Command{Type: engine.CmdGuess, PlayerID: msg.PlayerID, Symbol: msg.Symbol})
	if err != nil {
		// Rejected guesses get no reply; the client has no channel for them.
		l.log.Debug("guess ignored", zap.String("player", msg.PlayerID), zap.String("symbol", msg.Symbol), zap.Error(err))
		return
	}

	if scored, ok := engine.FindEvent(events, engine.EvtPointScored); ok {
		l.log.Debug("point scored", zap.String("player", scored.PlayerID), zap.String("symbol", scored.Symbol), zap.Int("score", scored.Score))
	}
	if done, ok := engine.FindEvent(events, engine.EvtGameCompleted); ok {
		l.endMatch(*done.Result)
		return
	}
	l.broadcastDeal()
}

func (l *Lobby) endMatch(res engine.Result) {
	l.matches++
	l.log.Info("match completed",
		zap.String("winner", res.Winner),
		zap.Int("winner_score", res.WinnerScore),
		zap.Int("players", len(res.Standings)))

	l.broadcast(Update{Kind: UpdateGameOver, TableID: NoCard, Winner: res.Winner, WinnerScore: res.WinnerScore})
	if l.opts.Sink != nil {
		l.opts.Sink.Publish(res)
	}

	l.match.Reset(l.opts.NewDeck())
	if l.opts.AutoRestart && l.match.CanStart() {
		l.start()
	}
}

// broadcastDeal sends every member its own hand next to the shared table card.
func (l *Lobby) broadcastDeal() {
	table, ok := l.match.Table()
	if !ok {
		return
	}
	var slow []string
	for _, p := range l.match.Players() {
		if p.Hand == nil {
			continue
		}
		upd := Update{Kind: UpdateDeal, HandID: p.Hand.ID, TableID: table.ID, Score: p.Score}
		if !l.trySend(p.ID, upd) {
			slow = append(slow, p.ID)
		}
	}
	for _, id := range slow {
		l.remove(id, "outbox full")
	}
}

func (l *Lobby) broadcast(upd Update) {
	var slow []string
	for id := range l.clients {
		if !l.trySend(id, upd) {
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		l.remove(id, "outbox full")
	}
}

func (l *Lobby) trySend(id string, upd Update) bool {
	ch, ok := l.clients[id]
	if !ok {
		return true
	}
	select {
	case ch <- upd:
		return true
	default:
		// Client is slow/full - drop them.
		return false
	}
}

func (l *Lobby) remove(id, reason string) {
	ch, ok := l.clients[id]
	if !ok {
		return
	}
	delete(l.clients, id)
	close(ch) // Tell client no more updates
	l.match.RemovePlayer(id)
	l.log.Info("player removed",
		zap.String("player", id),
		zap.String("reason", reason),
		zap.Int("members", len(l.clients)))
}

func (l *Lobby) view() View {
	v := View{
		ID:            l.id,
		Phase:         l.match.Phase(),
		NumClients:    len(l.clients),
		DeckRemaining: l.match.DeckLen(),
		MatchesPlayed: l.matches,
	}
	if table, ok := l.match.Table(); ok {
		v.TableID = &table.ID
	}
	for _, p := range l.match.Players() {
		pv := PlayerView{ID: p.ID, Name: p.Name, Score: p.Score}
		if p.Hand != nil {
			id := p.Hand.ID
			pv.HandID = &id
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more updates
		delete(l.clients, id)
	}
	l.cancel()
}
