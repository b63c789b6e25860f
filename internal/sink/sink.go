// Package sink republishes position documents to external destinations: UDP
// datagrams, an MQTT broker or a NATS server.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gps-relay/internal/config"
	"gps-relay/internal/logging"
	"gps-relay/internal/metrics"
	"gps-relay/internal/position"
	"gps-relay/internal/udp"
)

const queueLen = 16

var ErrQueueFull = errors.New("sink queue full")

// Publisher delivers one payload. Publish may block; it is only called from
// the sink's own goroutine.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// Status reports one sink for the status page.
type Status struct {
	Kind      string `json:"kind"`
	Addr      string `json:"addr"`
	Topic     string `json:"topic,omitempty"`
	Type      string `json:"type"`
	ID        int32  `json:"id"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

// Sink is a subscription.Listener that hands documents to a Publisher off the
// dispatch loop.
type Sink struct {
	cfg config.SinkConfig
	typ position.Type
	pub Publisher
	log *slog.Logger

	queue chan *position.Document

	mu        sync.Mutex
	id        int32
	published uint64
	failed    uint64
	lastErr   string
}

func New(cfg config.SinkConfig, pub Publisher, log *slog.Logger) (*Sink, error) {
	t, err := position.ParseType(cfg.Type)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Sink{
		cfg:   cfg,
		typ:   t,
		pub:   pub,
		log:   log.With("component", "sink", "kind", cfg.Kind, "addr", cfg.Addr),
		queue: make(chan *position.Document, queueLen),
	}, nil
}

// Open connects the publisher named by cfg.Kind.
func Open(cfg config.SinkConfig, log *slog.Logger) (*Sink, error) {
	var (
		pub Publisher
		err error
	)
	switch cfg.Kind {
	case config.SinkUDP:
		pub, err = udp.NewBroadcaster(cfg.Addr)
	case config.SinkMQTT:
		pub, err = DialMQTT(cfg.Addr, cfg.ClientID, log)
	case config.SinkNATS:
		pub, err = DialNATS(cfg.Addr, log)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s sink %s: %w", cfg.Kind, cfg.Addr, err)
	}
	s, err := New(cfg, pub, log)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Type() position.Type   { return s.typ }
func (s *Sink) Period() time.Duration { return s.cfg.Period }

// SetID records the subscription id the engine assigned.
func (s *Sink) SetID(id int32) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Push queues doc for publishing. It never reports the listener as gone: a
// sink lives as long as the process.
func (s *Sink) Push(doc *position.Document) error {
	select {
	case s.queue <- doc:
		return nil
	default:
		metrics.SinkPublishes.WithLabelValues(s.cfg.Kind, metrics.ResultRejected).Inc()
		return ErrQueueFull
	}
}

// Run publishes queued documents until ctx is done, then closes the publisher.
func (s *Sink) Run(ctx context.Context) error {
	defer func() {
		if err := s.pub.Close(); err != nil {
			s.log.Warn("close failed", "error", err.Error())
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case doc := <-s.queue:
			s.publish(doc)
		}
	}
}

func (s *Sink) publish(doc *position.Document) {
	payload, err := doc.MarshalJSON()
	if err == nil {
		err = s.pub.Publish(s.cfg.Topic, payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		if msg := err.Error(); msg != s.lastErr {
			s.log.Warn("publish failed", "error", msg)
			s.lastErr = msg
		}
		metrics.SinkPublishes.WithLabelValues(s.cfg.Kind, metrics.ResultFailed).Inc()
		return
	}
	if s.lastErr != "" {
		s.log.Info("publish recovered")
		s.lastErr = ""
	}
	s.published++
	metrics.SinkPublishes.WithLabelValues(s.cfg.Kind, metrics.ResultOK).Inc()
}

func (s *Sink) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Kind:      s.cfg.Kind,
		Addr:      s.cfg.Addr,
		Topic:     s.cfg.Topic,
		Type:      s.typ.String(),
		ID:        s.id,
		Published: s.published,
		Failed:    s.failed,
		LastError: s.lastErr,
	}
}
