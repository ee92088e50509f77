package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/hub"
	"github.com/DoyleJ11/dobble-backend/internal/lobby"
	"github.com/DoyleJ11/dobble-backend/internal/types"
)

func ListLobbies(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := h.List(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}

		out := types.LobbyList{Lobbies: make([]types.LobbySummary, 0, len(all))}
		for _, lb := range all {
			v, err := lb.View(r.Context())
			if errors.Is(err, lobby.ErrLobbyClosed) {
				continue // evicted while we were listing
			}
			if err != nil {
				log.Warn("lobby view failed", zap.Int32("lobby", lb.ID()), zap.Error(err))
				continue
			}
			out.Lobbies = append(out.Lobbies, types.LobbySummary{
				ID:            v.ID,
				Phase:         v.Phase,
				NumClients:    v.NumClients,
				MatchesPlayed: v.MatchesPlayed,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 32)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "invalid lobby id")
			return
		}

		lb, err := h.Get(r.Context(), int32(id))
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if lb == nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		v, err := lb.View(r.Context())
		if errors.Is(err, lobby.ErrLobbyClosed) {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}
