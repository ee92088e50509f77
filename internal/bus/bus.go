package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DoyleJ11/dobble-backend/internal/engine"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

type Standing struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// MatchEnded is the JSON payload published for every completed match.
type MatchEnded struct {
	LobbyID     int32      `json:"lobby_id"`
	WinnerID    string     `json:"winner_id,omitempty"`
	Winner      string     `json:"winner"`
	WinnerScore int        `json:"winner_score"`
	Standings   []Standing `json:"standings"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     time.Time  `json:"ended_at"`
}

type Publisher struct {
	conn   Conn
	prefix string
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix}
}

// Connect dials NATS and returns a publisher plus the connection so the caller can drain it.
func Connect(url, prefix string) (*Publisher, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("dobble-server"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewPublisher(nc, prefix), nc, nil
}

func (p *Publisher) Subject(lobbyID int32) string {
	return fmt.Sprintf("%s.lobby.%d.ended", p.prefix, lobbyID)
}

// RecordMatch publishes res. The context is unused; nats publishes are buffered by the client.
func (p *Publisher) RecordMatch(_ context.Context, res engine.Result) error {
	msg := MatchEnded{
		LobbyID:     res.LobbyID,
		WinnerID:    res.WinnerID,
		Winner:      res.Winner,
		WinnerScore: res.WinnerScore,
		Standings:   make([]Standing, 0, len(res.Standings)),
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
	}
	for _, s := range res.Standings {
		msg.Standings = append(msg.Standings, Standing{PlayerID: s.PlayerID, Name: s.Name, Score: s.Score})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(res.LobbyID), data); err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(res.LobbyID), err)
	}
	return nil
}
