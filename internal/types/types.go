package types

import "github.com/DoyleJ11/dobble-backend/internal/engine"

// LobbySummary is one row of GET /lobbies.
type LobbySummary struct {
	ID            int32        `json:"id"`
	Phase         engine.Phase `json:"phase"`
	NumClients    int          `json:"num_clients"`
	MatchesPlayed int          `json:"matches_played"`
}

type LobbyList struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
