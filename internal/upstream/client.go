// Package upstream connects to the NMEA source and streams its bytes into the
// engine.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gps-relay/internal/logging"
	"gps-relay/internal/metrics"
	"gps-relay/internal/nmea"
)

// Stream receives the bytes read from upstream.
type Stream interface {
	// Reset is called before the first read of every new connection.
	Reset(ctx context.Context) error
	Feed(ctx context.Context, p []byte) error
}

const (
	StateStopped      = "stopped"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateDisconnected = "disconnected"
	StateFailed       = "failed"
)

type Config struct {
	// RetryInterval, when positive, keeps retrying a failed connect at this
	// interval. By default a failed reconnect is logged and the client gives
	// up.
	RetryInterval time.Duration

	// ReadBufferSize is the size of a single read.
	ReadBufferSize int

	Logger *slog.Logger
}

type Client struct {
	cfg Config
	src Source
	log *slog.Logger

	started atomic.Bool
	closed  atomic.Bool

	mu         sync.RWMutex
	state      string
	lastErr    string
	lastSeen   time.Time
	bytes      uint64
	reconnects uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type Snapshot struct {
	Source      string `json:"source"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Bytes       uint64 `json:"bytes"`
	Reconnects  uint64 `json:"reconnects"`
}

func NewClient(src Source, cfg Config) (*Client, error) {
	if src == nil {
		return nil, fmt.Errorf("upstream source is required")
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = nmea.LineCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Client{
		cfg:   cfg,
		src:   src,
		log:   cfg.Logger.With("component", "upstream", "source", src.String()),
		state: StateStopped,
		done:  make(chan struct{}),
	}, nil
}

// Start connects in the background and feeds everything read to stream.
func (c *Client) Start(ctx context.Context, stream Stream) error {
	if c == nil {
		return fmt.Errorf("upstream client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("upstream client is closed")
	}
	if stream == nil {
		return fmt.Errorf("upstream stream is nil")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("upstream client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState(StateConnecting, "")

	go func() {
		defer close(c.done)
		c.runLoop(runCtx, stream)
	}()
	return nil
}

// Done is closed once the client has stopped for good, either after Close or
// after giving up on a failed reconnect.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.closed.Swap(true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Client) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := Snapshot{
		Source:     c.src.String(),
		State:      c.state,
		LastError:  c.lastErr,
		Bytes:      c.bytes,
		Reconnects: c.reconnects,
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// runLoop connects, reads until the stream fails, then reconnects once right
// away. A failed connect ends the loop unless RetryInterval is set.
func (c *Client) runLoop(ctx context.Context, stream Stream) {
	reconnect := false
	for {
		c.setState(StateConnecting, "")
		conn, err := c.src.Open(ctx)
		if reconnect {
			outcome := metrics.ResultOK
			if err != nil {
				outcome = metrics.ResultFailed
			}
			metrics.Reconnects.WithLabelValues(outcome).Inc()
		}
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateStopped, "")
				return
			}
			c.setState(StateFailed, err.Error())
			if c.cfg.RetryInterval <= 0 {
				c.log.Error("upstream connect failed, giving up", "error", err.Error())
				return
			}
			c.log.Warn("upstream connect failed", "error", err.Error(), "retry_in", c.cfg.RetryInterval.String())
			if !sleepCtx(ctx, c.cfg.RetryInterval) {
				c.setState(StateStopped, "")
				return
			}
			continue
		}

		if err := stream.Reset(ctx); err != nil {
			_ = conn.Close()
			c.setState(StateStopped, "")
			return
		}
		c.setState(StateConnected, "")
		metrics.UpstreamConnected.Set(1)
		c.log.Info("upstream connected")

		err = c.read(ctx, conn, stream)
		_ = conn.Close()
		metrics.UpstreamConnected.Set(0)
		if ctx.Err() != nil {
			c.setState(StateStopped, "")
			return
		}

		c.setState(StateDisconnected, err.Error())
		c.log.Warn("upstream stream ended, reconnecting", "error", err.Error())
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		reconnect = true
	}
}

func (c *Client) read(ctx context.Context, conn io.ReadCloser, stream Stream) error {
	// Unblock the pending read on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		n, err := ReadOnce(conn, buf)
		if n > 0 {
			c.mu.Lock()
			c.bytes += uint64(n)
			c.lastSeen = time.Now()
			c.mu.Unlock()
			metrics.BytesRead.Add(float64(n))
			if ferr := stream.Feed(ctx, buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func (c *Client) setState(state string, lastErr string) {
	c.mu.Lock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == StateConnected || state == StateStopped {
		c.lastErr = ""
	}
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
