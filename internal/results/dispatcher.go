package results

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/engine"
)

// Sink stores or forwards a completed match.
type Sink interface {
	RecordMatch(ctx context.Context, res engine.Result) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res engine.Result) error

func (f SinkFunc) RecordMatch(ctx context.Context, res engine.Result) error { return f(ctx, res) }

// Dispatcher decouples lobbies from slow sinks. Lobbies call Publish from their own
// goroutine; Run delivers results in order to every sink.
type Dispatcher struct {
	queue chan engine.Result
	sinks []Sink
	log   *zap.Logger
}

func NewDispatcher(buffer int, log *zap.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{queue: make(chan engine.Result, buffer), sinks: sinks, log: log}
}

// Publish never blocks. With a full buffer the result is dropped.
func (d *Dispatcher) Publish(res engine.Result) {
	select {
	case d.queue <- res:
	default:
		d.log.Warn("results buffer full, dropping match result",
			zap.Int32("lobby", res.LobbyID), zap.String("winner", res.Winner))
	}
}

// Run delivers until ctx is cancelled, then drains what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case res := <-d.queue:
					d.deliver(context.WithoutCancel(ctx), res)
				default:
					return nil
				}
			}
		case res := <-d.queue:
			d.deliver(ctx, res)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, res engine.Result) {
	for _, s := range d.sinks {
		if err := s.RecordMatch(ctx, res); err != nil {
			d.log.Error("result sink failed", zap.Int32("lobby", res.LobbyID), zap.Error(err))
		}
	}
}
