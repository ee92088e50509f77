package lobby

import "context"

type JoinRequest struct {
	PlayerID string
	Name     string
	Outbox   chan Update
}

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers a player. It returns engine.ErrAlreadyStarted while a match is in progress
// and ErrLobbyClosed if the lobby stopped before handling the request.
func (l *Lobby) Join(ctx context.Context, req JoinRequest) error {
	reply := make(chan error, 1)
	if err := l.send(ctx, Join{PlayerID: req.PlayerID, Name: req.Name, Outbox: req.Outbox, Reply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-l.done:
		// The reply may have been written just before the lobby stopped.
		select {
		case err := <-reply:
			return err
		default:
			return ErrLobbyClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave is a no-op for unknown players and for lobbies that already stopped.
func (l *Lobby) Leave(playerID string) {
	_ = l.send(context.Background(), Leave{PlayerID: playerID})
}

func (l *Lobby) Guess(ctx context.Context, playerID, symbol string) error {
	return l.send(ctx, Guess{PlayerID: playerID, Symbol: symbol})
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return View{}, ErrLobbyClosed
		}
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
