package server

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
)

// ConnHandler serves one accepted connection until it is done with it.
type ConnHandler interface {
	Serve(ctx context.Context, conn net.Conn) error
}

// Server runs one goroutine per accepted TCP connection.
type Server struct {
	handler ConnHandler
	log     *zap.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func New(handler ConnHandler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{handler: handler, log: log, conns: make(map[net.Conn]struct{})}
}

// Serve accepts until ctx is cancelled or the listener fails. On return the listener
// and every live connection are closed and all handlers have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeAll()
	})
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.closeAll()
				return nil
			}
			s.closeAll()
			return err
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			if err := s.handler.Serve(ctx, conn); err != nil {
				s.log.Debug("connection closed with error",
					zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// NumConns reports the live connection count.
func (s *Server) NumConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
