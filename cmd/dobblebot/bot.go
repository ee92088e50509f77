package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dobble-backend/internal/catalog"
	"github.com/DoyleJ11/dobble-backend/pkg/protocol"
)

type botOptions struct {
	addr    string
	catalog string
	lobby   int32
	name    string
	delay   time.Duration
	loop    bool
}

type bot struct {
	opts botOptions
	cat  *catalog.Catalog
	log  *zap.Logger
}

var errRejected = errors.New("join rejected")

func (b *bot) run(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", b.opts.addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := protocol.WriteMessage(conn, protocol.Join(b.opts.lobby, b.opts.name)); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	b.log.Info("joined", zap.Int32("lobby", b.opts.lobby))

	for {
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch msg.Kind {
		case protocol.KindDeal:
			sym, ok := b.pick(msg.CardID, msg.TableCardID)
			if !ok {
				b.log.Warn("no shared symbol, catalog mismatch?", zap.Int32("hand", msg.CardID), zap.Int32("table", msg.TableCardID))
				continue
			}
			select {
			case <-time.After(b.opts.delay):
			case <-ctx.Done():
				return nil
			}
			b.log.Debug("guessing", zap.String("symbol", sym), zap.Int32("score", msg.Score))
			if err := protocol.WriteMessage(conn, protocol.Guess(sym)); err != nil {
				return err
			}

		case protocol.KindGameOver:
			b.log.Info("game over", zap.String("winner", msg.PlayerName), zap.Int32("score", msg.Score))
			if !b.opts.loop {
				_ = protocol.WriteMessage(conn, protocol.Message{Kind: protocol.KindLeave})
				return nil
			}

		case protocol.KindReject:
			return fmt.Errorf("%w: %s", errRejected, msg.Reason)
		}
	}
}

func (b *bot) pick(handID, tableID int32) (string, bool) {
	hand, ok := b.cat.Lookup(handID)
	if !ok {
		return "", false
	}
	table, ok := b.cat.Lookup(tableID)
	if !ok {
		return "", false
	}
	common := catalog.Common(hand, table)
	if len(common) == 0 {
		return "", false
	}
	return common[0], true
}
