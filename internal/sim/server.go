package sim

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"gps-relay/internal/logging"
)

const writeTimeout = 5 * time.Second

// Server writes the simulated sentence stream to every connected TCP client.
type Server struct {
	Path     Path
	Interval time.Duration
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts clients on ln until ctx is done. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := s.Logger
	if log == nil {
		log = logging.Discard()
	}
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	log.Info("nmea simulator listening", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Warn("accept failed", "error", err.Error())
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stream(ctx, conn, log.With("remote", conn.RemoteAddr().String()))
		}()
	}
}

func (s *Server) stream(ctx context.Context, conn net.Conn, log *slog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}

	log.Info("client connected")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for _, line := range Sentences(s.Path.At(now())) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write([]byte(line)); err != nil {
				log.Info("client disconnected", "error", err.Error())
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
