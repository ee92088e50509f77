package ws

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/session"
	"github.com/DoyleJ11/dobble-backend/pkg/protocol"
)

// Handler upgrades to a WebSocket and serves it with the same session handler as raw TCP.
// Each binary message carries exactly one length-prefixed frame.
func Handler(sess *session.Handler, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(4 + protocol.MaxFrameSize)

		nc := websocket.NetConn(r.Context(), conn, websocket.MessageBinary)
		if err := sess.Serve(r.Context(), nc); err != nil {
			// Treat clean close/going-away as normal
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Debug("websocket session ended", zap.Error(err))
		}
	}
}
