// Package engine runs the decode and dispatch loop.
//
// One goroutine (Run) owns the framer, frame history, document cache and
// subscription registry. Everything else reaches that state through a request
// channel, so none of it is locked.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"gps-relay/internal/logging"
	"gps-relay/internal/metrics"
	"gps-relay/internal/nmea"
	"gps-relay/internal/position"
	"gps-relay/internal/subscription"
)

var ErrStopped = errors.New("engine stopped")

type Config struct {
	// Tick is the dispatch cadence. Dispatch also runs after every chunk of
	// stream input.
	Tick time.Duration

	MaxSubscriptions int

	Logger *slog.Logger

	// Now is the clock used for dispatch decisions.
	Now func() time.Time
}

// Stats is a point-in-time view of the loop state.
type Stats struct {
	Seq           uint64                `json:"seq"`
	Frames        int                   `json:"frames"`
	Framer        nmea.FramerStats      `json:"framer"`
	Decoded       uint64                `json:"decoded"`
	Rejected      uint64                `json:"rejected"`
	Ignored       uint64                `json:"ignored"`
	Pushes        uint64                `json:"pushes"`
	PushFailures  uint64                `json:"push_failures"`
	Subscriptions subscription.Snapshot `json:"subscriptions"`
	LastFrameUTC  string                `json:"last_frame_utc,omitempty"`
}

type Engine struct {
	cfg Config
	log *slog.Logger

	reqs    chan func()
	stopped chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	history   *position.History
	cache     *position.Cache
	registry  *subscription.Registry
	framer    *nmea.Framer
	decoded   uint64
	rejected  uint64
	ignored   uint64
	pushes    uint64
	failures  uint64
	lastFrame time.Time
	dropped   nmea.FramerStats
}

func New(cfg Config) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &position.History{}
	e := &Engine{
		cfg:      cfg,
		log:      cfg.Logger.With("component", "engine"),
		reqs:     make(chan func()),
		stopped:  make(chan struct{}),
		history:  h,
		cache:    position.NewCache(h),
		registry: subscription.NewRegistry(subscription.Config{MaxSubscriptions: cfg.MaxSubscriptions}),
	}
	e.framer = nmea.NewFramer(e.handleSentence)
	return e
}

// Run owns the engine state until ctx is done. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if e.running.Swap(true) {
		return errors.New("engine already running")
	}
	defer close(e.stopped)

	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()

	e.log.Info("engine started", "tick", e.cfg.Tick.String())
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped", "stats", e.snapshot().String())
			return nil
		case fn := <-e.reqs:
			fn()
		case <-t.C:
			e.dispatch()
		}
	}
}

// Feed hands a chunk of upstream bytes to the loop and waits until it has been
// framed, decoded and dispatched.
func (e *Engine) Feed(ctx context.Context, p []byte) error {
	return e.do(ctx, func() {
		_, _ = e.framer.Write(p)
		e.countDrops()
		e.dispatch()
	})
}

// Reset discards any partial line, e.g. after the upstream reconnected.
func (e *Engine) Reset(ctx context.Context) error {
	return e.do(ctx, e.framer.Reset)
}

// Get returns the current document for t.
func (e *Engine) Get(ctx context.Context, t position.Type) (*position.Document, error) {
	var doc *position.Document
	var err error
	if doErr := e.do(ctx, func() { doc, err = e.cache.Get(t) }); doErr != nil {
		return nil, doErr
	}
	return doc, err
}

func (e *Engine) Subscribe(ctx context.Context, t position.Type, period time.Duration, l subscription.Listener) (subscription.Reply, error) {
	var reply subscription.Reply
	var err error
	if doErr := e.do(ctx, func() {
		reply, err = e.registry.Subscribe(t, period, l)
		e.updateGauges()
	}); doErr != nil {
		return subscription.Reply{}, doErr
	}
	if err == nil {
		e.log.Debug("subscribed", "id", reply.ID, "type", t.String(), "period", subscription.NormalizePeriod(period).String())
	}
	return reply, err
}

func (e *Engine) Unsubscribe(ctx context.Context, id int32) error {
	var err error
	if doErr := e.do(ctx, func() {
		err = e.registry.Unsubscribe(id)
		e.updateGauges()
	}); doErr != nil {
		return doErr
	}
	if err == nil {
		e.log.Debug("unsubscribed", "id", id)
	}
	return err
}

// History returns the retained frames, newest first.
func (e *Engine) History(ctx context.Context) ([]position.Frame, error) {
	var out []position.Frame
	if err := e.do(ctx, func() { out = e.history.Recent() }); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := e.do(ctx, func() { s = e.snapshot() })
	return s, err
}

func (e *Engine) snapshot() Stats {
	s := Stats{
		Seq:           e.history.Seq(),
		Frames:        e.history.Len(),
		Framer:        e.framer.Stats(),
		Decoded:       e.decoded,
		Rejected:      e.rejected,
		Ignored:       e.ignored,
		Pushes:        e.pushes,
		PushFailures:  e.failures,
		Subscriptions: e.registry.Snapshot(),
	}
	if !e.lastFrame.IsZero() {
		s.LastFrameUTC = e.lastFrame.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// do runs fn on the loop goroutine and waits for it to finish. ctx only
// bounds the wait for the loop to accept fn.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	req := func() {
		fn()
		close(done)
	}
	select {
	case e.reqs <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	// Once accepted, fn runs to completion, so wait for it regardless of ctx.
	// Returning early would hide state fn already changed.
	select {
	case <-done:
		return nil
	case <-e.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

func (e *Engine) handleSentence(text string) {
	kind, f, err := nmea.DecodeSentence(text)
	switch {
	case errors.Is(err, nmea.ErrUnsupported):
		e.ignored++
		metrics.Sentences.WithLabelValues("other", "ignored").Inc()
		return
	case err != nil:
		e.rejected++
		metrics.Sentences.WithLabelValues(string(kind), metrics.ResultRejected).Inc()
		e.log.Debug("sentence rejected", "kind", string(kind), "error", err.Error())
		return
	}
	e.history.Push(f)
	e.decoded++
	e.lastFrame = e.cfg.Now()
	metrics.Sentences.WithLabelValues(string(kind), metrics.ResultOK).Inc()
}

func (e *Engine) dispatch() {
	res := e.registry.Dispatch(e.cfg.Now(), e.history.Seq(), e.cache)
	if res.Fired > 0 {
		e.pushes += uint64(res.Pushed)
		e.failures += uint64(res.Failed)
		metrics.Pushes.WithLabelValues(metrics.ResultOK).Add(float64(res.Pushed))
		metrics.Pushes.WithLabelValues(metrics.ResultGone).Add(float64(res.Gone))
		metrics.Pushes.WithLabelValues(metrics.ResultFailed).Add(float64(res.Failed))
		if res.Failed > 0 {
			e.log.Debug("push failed", "failed", res.Failed)
		}
	}
	e.updateGauges()
}

func (e *Engine) countDrops() {
	s := e.framer.Stats()
	add := func(reason string, now, before uint64) {
		if now > before {
			metrics.LinesDropped.WithLabelValues(reason).Add(float64(now - before))
		}
	}
	add("malformed", s.Malformed, e.dropped.Malformed)
	add("overflow", s.Overflows, e.dropped.Overflows)
	add("suppressed", s.Suppressed, e.dropped.Suppressed)
	if s.Overflows > e.dropped.Overflows {
		e.log.Warn("line exceeded buffer", "capacity", nmea.LineCapacity)
	}
	e.dropped = s
}

func (e *Engine) updateGauges() {
	snap := e.registry.Snapshot()
	metrics.Subscriptions.Set(float64(snap.Subscriptions))
	metrics.Buckets.Set(float64(len(snap.Buckets)))
}

func (s Stats) String() string {
	return fmt.Sprintf("frames=%d decoded=%d rejected=%d subscriptions=%d", s.Frames, s.Decoded, s.Rejected, s.Subscriptions.Subscriptions)
}
