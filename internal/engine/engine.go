package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/internal/deck"
)

var ErrAlreadyStarted = errors.New("match already started")
var ErrNotStarted = errors.New("match not started")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrEmptyDeck = errors.New("deck is empty")
var ErrDeckTooSmall = errors.New("deck cannot cover table and hands")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrDuplicatePlayer = errors.New("player already in match")
var ErrNoMatch = errors.New("symbol not on both cards")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseActive  Phase = "active"
)

type Rules struct {
	MinPlayers int
}

func DefaultRules() Rules {
	return Rules{MinPlayers: 2}
}

// Player is one member of a match. Players are kept in join order.
type Player struct {
	ID    string
	Name  string
	Hand  *catalog.Card
	Score int

	// reachedAt is the scoring sequence number at which Score was last reached.
	reachedAt int
}

type CommandType string

const (
	CmdStartMatch CommandType = "StartMatch"
	CmdGuess      CommandType = "Guess"
)

type Command struct {
	Type     CommandType
	PlayerID string
	Symbol   string
}

type EventType string

const (
	EvtMatchStarted  EventType = "MatchStarted"
	EvtCardDealt     EventType = "CardDealt"
	EvtPointScored   EventType = "PointScored"
	EvtTableChanged  EventType = "TableChanged"
	EvtGameCompleted EventType = "GameCompleted"
)

type Event struct {
	Type     EventType
	PlayerID string
	CardID   int32
	Score    int
	Symbol   string
	Result   *Result // set on EvtGameCompleted
}

// Match holds the rules state of one lobby. It is not safe for concurrent use.
type Match struct {
	lobbyID   int32
	rules     Rules
	phase     Phase
	players   []*Player
	table     *catalog.Card
	deck      *deck.Deck
	seq       int
	startedAt time.Time
	now       func() time.Time
}

func NewMatch(lobbyID int32, rules Rules, d *deck.Deck) *Match {
	if rules.MinPlayers < 2 {
		rules.MinPlayers = 2
	}
	return &Match{
		lobbyID: lobbyID,
		rules:   rules,
		phase:   PhaseWaiting,
		deck:    d,
		now:     time.Now,
	}
}

func (m *Match) Phase() Phase { return m.phase }

func (m *Match) Started() bool { return m.phase == PhaseActive }

func (m *Match) NumPlayers() int { return len(m.players) }

func (m *Match) Player(id string) (*Player, bool) {
	for _, p := range m.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Players returns the members in join order.
func (m *Match) Players() []*Player {
	out := make([]*Player, len(m.players))
	copy(out, m.players)
	return out
}

// Table returns the current table card, if any.
func (m *Match) Table() (catalog.Card, bool) {
	if m.table == nil {
		return catalog.Card{}, false
	}
	return *m.table, true
}

func (m *Match) CanStart() bool {
	return m.phase == PhaseWaiting && len(m.players) >= m.rules.MinPlayers
}

func (m *Match) AddPlayer(id, name string) error {
	if m.phase == PhaseActive {
		return ErrAlreadyStarted
	}
	if _, ok := m.Player(id); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlayer, id)
	}
	m.players = append(m.players, &Player{ID: id, Name: name})
	return nil
}

// RemovePlayer drops a member at any phase. Remaining members keep their hands and scores.
func (m *Match) RemovePlayer(id string) bool {
	for i, p := range m.players {
		if p.ID == id {
			m.players = append(m.players[:i], m.players[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Match) Apply(cmd Command) ([]Event, error) {
	switch cmd.Type {
	case CmdStartMatch:
		return m.Start()
	case CmdGuess:
		return m.Guess(cmd.PlayerID, cmd.Symbol)
	default:
		return nil, ErrUnsupportedCommand
	}
}

// Start deals the table card and then one hand per member in join order.
// On any precondition failure the match stays in PhaseWaiting and nothing is drawn.
func (m *Match) Start() ([]Event, error) {
	if m.phase == PhaseActive {
		return nil, ErrAlreadyStarted
	}
	if len(m.players) < m.rules.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}
	if m.deck.IsEmpty() {
		return nil, ErrEmptyDeck
	}
	if m.deck.Len() < len(m.players)+1 {
		return nil, fmt.Errorf("%w: %d cards for %d players", ErrDeckTooSmall, m.deck.Len(), len(m.players))
	}

	table, err := m.deck.Draw()
	if err != nil {
		return nil, err
	}
	m.table = &table
	m.phase = PhaseActive
	m.startedAt = m.now()

	events := []Event{{Type: EvtMatchStarted, CardID: table.ID}}
	for _, p := range m.players {
		hand, err := m.deck.Draw()
		if err != nil {
			// unreachable: size was checked above
			return nil, err
		}
		p.Hand = &hand
		events = append(events, Event{Type: EvtCardDealt, PlayerID: p.ID, CardID: hand.ID})
	}
	return events, nil
}

// Guess resolves a symbol claim. A match needs the symbol on both the player's hand and the table card.
func (m *Match) Guess(playerID, symbol string) ([]Event, error) {
	if m.phase != PhaseActive {
		return nil, ErrNotStarted
	}
	p, ok := m.Player(playerID)
	if !ok {
		return nil, ErrUnknownPlayer
	}

	symbol = strings.TrimSpace(symbol)
	if symbol == "" || p.Hand == nil || m.table == nil || !p.Hand.Has(symbol) || !m.table.Has(symbol) {
		return nil, ErrNoMatch
	}

	m.seq++
	p.Score++
	p.reachedAt = m.seq
	p.Hand = m.table
	m.table = nil

	events := []Event{{Type: EvtPointScored, PlayerID: p.ID, Symbol: symbol, Score: p.Score, CardID: p.Hand.ID}}

	next, err := m.deck.Draw()
	if errors.Is(err, deck.ErrExhausted) {
		res := m.result()
		m.phase = PhaseWaiting
		return append(events, Event{Type: EvtGameCompleted, Result: &res}), nil
	}
	if err != nil {
		return nil, err
	}
	m.table = &next
	return append(events, Event{Type: EvtTableChanged, CardID: next.ID}), nil
}

// Reset prepares the next match with a fresh deck. Membership is kept; hands and scores are cleared.
func (m *Match) Reset(d *deck.Deck) {
	m.deck = d
	m.phase = PhaseWaiting
	m.table = nil
	m.seq = 0
	m.startedAt = time.Time{}
	for _, p := range m.players {
		p.Hand = nil
		p.Score = 0
		p.reachedAt = 0
	}
}

func (m *Match) DeckLen() int { return m.deck.Len() }
