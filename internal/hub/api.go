package hub

import (
	"context"

	"github.com/DoyleJ11/dobble-backend/internal/lobby"
)

func (h *Hub) request(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.done:
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Resolve returns the lobby for id, creating it on first use.
func (h *Hub) Resolve(ctx context.Context, id int32) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.request(ctx, EnsureLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Get returns the lobby for id, or nil if none exists.
func (h *Hub) Get(ctx context.Context, id int32) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.request(ctx, GetLobby{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// List returns the live lobbies ordered by id.
func (h *Hub) List(ctx context.Context) ([]*lobby.Lobby, error) {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.request(ctx, ListLobbies{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Shutdown stops the hub and every lobby it owns.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}
