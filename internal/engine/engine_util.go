package engine

import "time"

// Standing is one player's final position.
type Standing struct {
	PlayerID string
	Name     string
	Score    int
}

// Result summarises a completed match.
type Result struct {
	LobbyID     int32
	WinnerID    string
	Winner      string
	WinnerScore int
	Standings   []Standing // join order
	StartedAt   time.Time
	EndedAt     time.Time
}

// Winner returns the member with the highest score. Ties go to whoever reached
// that score first, then to join order. ok is false for an empty match.
func Winner(players []*Player) (w *Player, ok bool) {
	for _, p := range players {
		if w == nil || p.Score > w.Score || (p.Score == w.Score && p.reachedAt < w.reachedAt) {
			w = p
		}
	}
	return w, w != nil
}

func (m *Match) result() Result {
	res := Result{
		LobbyID:     m.lobbyID,
		WinnerScore: -1,
		StartedAt:   m.startedAt,
		EndedAt:     m.now(),
	}
	if w, ok := Winner(m.players); ok {
		res.WinnerID = w.ID
		res.Winner = w.Name
		res.WinnerScore = w.Score
	}
	for _, p := range m.players {
		res.Standings = append(res.Standings, Standing{PlayerID: p.ID, Name: p.Name, Score: p.Score})
	}
	return res
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
