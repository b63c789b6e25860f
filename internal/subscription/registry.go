// Package subscription groups position listeners by refresh period and pushes
// documents to the ones that are due.
package subscription

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"gps-relay/internal/position"
)

// EventName is the channel name handed back to subscribers.
const EventName = "GPS"

const DefaultMaxSubscriptions = 1024

var (
	// ErrListenerGone is returned by a Listener whose consumer went away. The
	// subscription is dropped on the spot.
	ErrListenerGone = errors.New("listener gone")

	ErrOutOfMemory = errors.New("out-of-memory")
	ErrMissingID   = errors.New("missing-id")
	ErrBadID       = errors.New("bad-id")
)

// Listener receives pushed documents. Push is called from the dispatch loop
// and must not block.
type Listener interface {
	Push(doc *position.Document) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(doc *position.Document) error

func (f ListenerFunc) Push(doc *position.Document) error { return f(doc) }

// DocumentSource yields the current document for a representation type.
// *position.Cache implements it.
type DocumentSource interface {
	Get(t position.Type) (*position.Document, error)
}

// Reply is returned by Subscribe.
type Reply struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
}

type Config struct {
	MaxSubscriptions int
}

type subscription struct {
	id       int32
	typ      position.Type
	period   time.Duration
	listener Listener
}

type bucket struct {
	period    time.Duration
	ids       []int32
	lastFired time.Time
	// lastSeq is the history sequence last pushed from this bucket.
	lastSeq uint64
}

// DispatchResult counts what one dispatch pass did.
type DispatchResult struct {
	Fired  int
	Pushed int
	Gone   int
	Failed int
}

type BucketInfo struct {
	PeriodMillis  int64 `json:"period_ms"`
	Subscriptions int   `json:"subscriptions"`
}

type Snapshot struct {
	Subscriptions int          `json:"subscriptions"`
	Buckets       []BucketInfo `json:"buckets"`
}

// Registry owns all subscriptions. It is not safe for concurrent use; the
// engine loop is its only caller.
type Registry struct {
	max     int
	subs    map[int32]*subscription
	buckets []*bucket
	lastID  int32
}

func NewRegistry(cfg Config) *Registry {
	if cfg.MaxSubscriptions <= 0 {
		cfg.MaxSubscriptions = DefaultMaxSubscriptions
	}
	return &Registry{
		max:  cfg.MaxSubscriptions,
		subs: make(map[int32]*subscription),
	}
}

// ParseID parses a subscription id as supplied by a caller.
func ParseID(s string) (int32, error) {
	if s == "" {
		return 0, ErrMissingID
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadID, s)
	}
	return int32(v), nil
}

// Subscribe registers listener for documents of type t, pushed at most once
// per normalized period. Every call creates a new subscription with a new id.
func (r *Registry) Subscribe(t position.Type, period time.Duration, listener Listener) (Reply, error) {
	if !t.Valid() {
		return Reply{}, fmt.Errorf("%w: %d", position.ErrUnknownType, int(t))
	}
	if listener == nil {
		return Reply{}, errors.New("subscription listener is nil")
	}
	if len(r.subs) >= r.max {
		return Reply{}, ErrOutOfMemory
	}

	sub := &subscription{
		id:       r.nextID(),
		typ:      t,
		period:   NormalizePeriod(period),
		listener: listener,
	}
	b := r.bucketFor(sub.period)
	b.ids = append(b.ids, sub.id)
	r.subs[sub.id] = sub
	return Reply{Name: EventName, ID: sub.id}, nil
}

// Unsubscribe removes a subscription. An emptied bucket stays until the next
// Dispatch.
func (r *Registry) Unsubscribe(id int32) error {
	sub, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBadID, id)
	}
	r.remove(sub)
	return nil
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int { return len(r.subs) }

// Dispatch pushes the current documents to every due bucket.
//
// A bucket is due when at least its period has elapsed since it last fired and
// the history sequence has moved since its last push, so unchanged data is
// never resent. The sequence gate is tracked per bucket rather than skipping
// the whole pass when nothing is new: a frame that lands between two fires of
// a slow bucket is still delivered on its next fire even if faster buckets
// already pushed it. Listeners reporting ErrListenerGone are removed. Buckets
// left empty are dropped at the end of the pass.
func (r *Registry) Dispatch(now time.Time, seq uint64, docs DocumentSource) DispatchResult {
	var res DispatchResult
	for _, b := range r.buckets {
		if len(b.ids) == 0 || b.lastSeq == seq {
			continue
		}
		if !b.lastFired.IsZero() && now.Sub(b.lastFired) < b.period {
			continue
		}
		b.lastFired = now
		b.lastSeq = seq
		res.Fired++

		for i := 0; i < len(b.ids); {
			sub := r.subs[b.ids[i]]
			doc, err := docs.Get(sub.typ)
			if err == nil {
				err = sub.listener.Push(doc)
			}
			switch {
			case err == nil:
				res.Pushed++
			case errors.Is(err, ErrListenerGone):
				res.Gone++
				delete(r.subs, sub.id)
				b.ids = slices.Delete(b.ids, i, i+1)
				continue
			default:
				res.Failed++
			}
			i++
		}
	}
	r.buckets = slices.DeleteFunc(r.buckets, func(b *bucket) bool { return len(b.ids) == 0 })
	return res
}

func (r *Registry) Snapshot() Snapshot {
	out := Snapshot{Subscriptions: len(r.subs), Buckets: make([]BucketInfo, 0, len(r.buckets))}
	for _, b := range r.buckets {
		out.Buckets = append(out.Buckets, BucketInfo{
			PeriodMillis:  b.period.Milliseconds(),
			Subscriptions: len(b.ids),
		})
	}
	return out
}

// nextID returns the next free id. Ids are never 0, wrap back to 1 after
// math.MaxInt32, and skip ids still in use.
func (r *Registry) nextID() int32 {
	for {
		if r.lastID == math.MaxInt32 {
			r.lastID = 0
		}
		r.lastID++
		if _, taken := r.subs[r.lastID]; !taken {
			return r.lastID
		}
	}
}

func (r *Registry) bucketFor(period time.Duration) *bucket {
	i, found := slices.BinarySearchFunc(r.buckets, period, func(b *bucket, p time.Duration) int {
		return cmp.Compare(b.period, p)
	})
	if found {
		return r.buckets[i]
	}
	b := &bucket{period: period}
	r.buckets = slices.Insert(r.buckets, i, b)
	return b
}

func (r *Registry) remove(sub *subscription) {
	delete(r.subs, sub.id)
	for _, b := range r.buckets {
		if b.period != sub.period {
			continue
		}
		if i := slices.Index(b.ids, sub.id); i >= 0 {
			b.ids = slices.Delete(b.ids, i, i+1)
		}
		return
	}
}
