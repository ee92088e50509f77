package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/engine"
	"github.com/DoyleJ11/dobble-backend/internal/lobby"
	"github.com/DoyleJ11/dobble-backend/pkg/protocol"
)

// A lobby that stops between Resolve and Join is retried with a fresh one.
const maxJoinAttempts = 3

var (
	ErrJoinRejected = errors.New("join rejected")
	ErrIdleTimeout  = errors.New("idle timeout")
)

// ProtocolError means the peer sent something that is not a valid frame for the current state.
// The connection is dropped.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type Config struct {
	JoinTimeout  time.Duration
	IdleTimeout  time.Duration // 0 disables
	WriteTimeout time.Duration
	OutboxSize   int

	// SendRejection writes a Reject frame before closing a refused connection.
	SendRejection bool
}

func DefaultConfig() Config {
	return Config{
		JoinTimeout:   10 * time.Second,
		WriteTimeout:  5 * time.Second,
		OutboxSize:    16,
		SendRejection: true,
	}
}

type Resolver interface {
	Resolve(ctx context.Context, id int32) (*lobby.Lobby, error)
}

type Handler struct {
	lobbies Resolver
	cfg     Config
	log     *zap.Logger
}

func NewHandler(lobbies Resolver, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultConfig().OutboxSize
	}
	return &Handler{lobbies: lobbies, cfg: cfg, log: log}
}

// Serve runs one client connection to completion and closes it.
// A nil error means the client left or disconnected.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := h.log.With(zap.String("remote", conn.RemoteAddr().String()))

	join, err := h.readJoin(conn)
	if err != nil {
		log.Info("dropping connection before join", zap.Error(err))
		return err
	}
	if join.LobbyID < 0 {
		h.reject(conn, join.LobbyID, "invalid lobby id")
		return &ProtocolError{Op: "join", Err: fmt.Errorf("negative lobby id %d", join.LobbyID)}
	}

	playerID := uuid.NewString()
	name := join.PlayerName
	if name == "" {
		name = defaultName()
	}
	log = log.With(zap.Int32("lobby", join.LobbyID), zap.String("player", playerID))

	out := make(chan lobby.Update, h.cfg.OutboxSize)
	lb, err := h.join(ctx, join.LobbyID, lobby.JoinRequest{PlayerID: playerID, Name: name, Outbox: out})
	if err != nil {
		log.Info("join refused", zap.String("name", name), zap.Error(err))
		h.reject(conn, join.LobbyID, rejectReason(err))
		return fmt.Errorf("%w: lobby %d: %v", ErrJoinRejected, join.LobbyID, err)
	}
	log.Info("session started", zap.String("name", name))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, out, log)
	}()

	err = h.readLoop(ctx, conn, lb, playerID, log)

	lb.Leave(playerID)
	_ = conn.Close() // unblocks a writer stuck on a slow peer
	<-writerDone

	log.Info("session ended", zap.Error(err))
	return err
}

func (h *Handler) readJoin(conn net.Conn) (protocol.Message, error) {
	if h.cfg.JoinTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.JoinTimeout))
	}
	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return protocol.Message{}, &ProtocolError{Op: "read join", Err: err}
	}
	if msg.Kind != protocol.KindJoin {
		return protocol.Message{}, &ProtocolError{Op: "read join", Err: fmt.Errorf("expected Join, got %s", msg.Kind)}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return msg, nil
}

func (h *Handler) join(ctx context.Context, id int32, req lobby.JoinRequest) (*lobby.Lobby, error) {
	var err error
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		var lb *lobby.Lobby
		lb, err = h.lobbies.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		err = lb.Join(ctx, req)
		if err == nil {
			return lb, nil
		}
		if ctx.Err() != nil {
			// The lobby may have accepted the join before we stopped waiting.
			lb.Leave(req.PlayerID)
			return nil, err
		}
		if !errors.Is(err, lobby.ErrLobbyClosed) {
			return nil, err
		}
	}
	return nil, err
}

func (h *Handler) reject(conn net.Conn, lobbyID int32, reason string) {
	if !h.cfg.SendRejection {
		return
	}
	h.setWriteDeadline(conn)
	_ = protocol.WriteMessage(conn, protocol.Reject(lobbyID, reason))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrAlreadyStarted):
		return "match in progress"
	case errors.Is(err, engine.ErrDuplicatePlayer):
		return "duplicate player"
	default:
		return "lobby unavailable"
	}
}

func (h *Handler) readLoop(ctx context.Context, conn net.Conn, lb *lobby.Lobby, playerID string, log *zap.Logger) error {
	for {
		if h.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			return classifyReadErr(ctx, err)
		}

		switch msg.Kind {
		case protocol.KindGuess:
			if err := lb.Guess(ctx, playerID, msg.Symbol); err != nil {
				if errors.Is(err, lobby.ErrLobbyClosed) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		case protocol.KindLeave:
			return nil
		default:
			log.Debug("ignoring message", zap.Stringer("kind", msg.Kind))
		}
	}
}

func classifyReadErr(ctx context.Context, err error) error {
	var ne net.Error
	switch {
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return nil
	case errors.As(err, &ne) && ne.Timeout():
		return ErrIdleTimeout
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, protocol.ErrFrameTooLarge),
		errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, protocol.ErrBadVersion),
		errors.Is(err, protocol.ErrFieldTooLong):
		return &ProtocolError{Op: "read", Err: err}
	default:
		return fmt.Errorf("read: %w", err)
	}
}

// writeLoop drains the outbox until the lobby closes it. After a failed write the
// connection is closed so the reader stops, and the rest of the outbox is discarded.
func (h *Handler) writeLoop(conn net.Conn, out <-chan lobby.Update, log *zap.Logger) {
	for upd := range out {
		h.setWriteDeadline(conn)
		if err := protocol.WriteMessage(conn, toMessage(upd)); err != nil {
			log.Debug("write failed", zap.Error(err))
			_ = conn.Close()
			for range out {
			}
			return
		}
	}
	// Removed by the lobby (slow consumer or shutdown).
	_ = conn.Close()
}

func (h *Handler) setWriteDeadline(conn net.Conn) {
	if h.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
}

func toMessage(upd lobby.Update) protocol.Message {
	if upd.Kind == lobby.UpdateGameOver {
		return protocol.GameOver(upd.Winner, int32(upd.WinnerScore))
	}
	return protocol.Deal(upd.HandID, upd.TableID, int32(upd.Score))
}

func defaultName() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return "player-" + hex.EncodeToString(b[:])
}
