package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/hub"
	"github.com/DoyleJ11/dobble-backend/internal/session"
	"github.com/DoyleJ11/dobble-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, sess *session.Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/lobbies", ListLobbies(h, log))
	r.Get("/lobbies/{id}", GetLobby(h))
	r.Get("/ws", ws.Handler(sess, log))
	return r
}
