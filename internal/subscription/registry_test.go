package subscription

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gps-relay/internal/position"
)

type recorder struct {
	docs []*position.Document
	err  error
}

func (r *recorder) Push(doc *position.Document) error {
	if r.err != nil {
		return r.err
	}
	r.docs = append(r.docs, doc)
	return nil
}

// source is a History plus Cache with a helper to add frames.
type source struct {
	history *position.History
	cache   *position.Cache
}

func newSource() *source {
	h := &position.History{}
	return &source{history: h, cache: position.NewCache(h)}
}

func (s *source) push() uint64 {
	s.history.Push(position.Frame{
		Set:          position.FieldLatitude | position.FieldLongitude,
		LatitudeDeg:  48.1,
		LongitudeDeg: 11.5,
	})
	return s.history.Seq()
}

func TestSubscribe_AssignsFreshIDs(t *testing.T) {
	r := NewRegistry(Config{})
	seen := map[int32]bool{}
	for i := 0; i < 5; i++ {
		reply, err := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if reply.Name != EventName {
			t.Fatalf("name=%q want %q", reply.Name, EventName)
		}
		if reply.ID == 0 || seen[reply.ID] {
			t.Fatalf("bad id %d (seen=%v)", reply.ID, seen)
		}
		seen[reply.ID] = true
	}
	if r.Len() != 5 {
		t.Fatalf("len=%d want 5", r.Len())
	}
}

func TestSubscribe_IDsWrapAndSkipCollisions(t *testing.T) {
	r := NewRegistry(Config{})
	r.lastID = math.MaxInt32 - 1

	a, _ := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
	if a.ID != math.MaxInt32 {
		t.Fatalf("id=%d want MaxInt32", a.ID)
	}
	b, _ := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
	if b.ID != 1 {
		t.Fatalf("id=%d want 1 after wrap", b.ID)
	}

	// Occupy 2 and 3, then wrap again: the next id must skip them.
	c, _ := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
	d, _ := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
	if c.ID != 2 || d.ID != 3 {
		t.Fatalf("ids=%d,%d want 2,3", c.ID, d.ID)
	}
	if err := r.Unsubscribe(a.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	r.lastID = math.MaxInt32
	e, _ := r.Subscribe(position.TypeWGS84, time.Second, &recorder{})
	if e.ID != 4 {
		t.Fatalf("id=%d want 4", e.ID)
	}
}

func TestSubscribe_Rejects(t *testing.T) {
	r := NewRegistry(Config{MaxSubscriptions: 1})
	if _, err := r.Subscribe(position.Type(42), time.Second, &recorder{}); !errors.Is(err, position.ErrUnknownType) {
		t.Fatalf("err=%v want ErrUnknownType", err)
	}
	if _, err := r.Subscribe(position.TypeWGS84, time.Second, nil); err == nil {
		t.Fatalf("expected error for nil listener")
	}
	if _, err := r.Subscribe(position.TypeWGS84, time.Second, &recorder{}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := r.Subscribe(position.TypeWGS84, time.Second, &recorder{}); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("err=%v want ErrOutOfMemory", err)
	}
	snap := r.Snapshot()
	if snap.Subscriptions != 1 || len(snap.Buckets) != 1 {
		t.Fatalf("rejected subscribe left state behind: %+v", snap)
	}
}

func TestSubscribe_BucketsAscending(t *testing.T) {
	r := NewRegistry(Config{})
	for _, p := range []time.Duration{5 * time.Second, 100 * time.Millisecond, time.Second, 5 * time.Second, 2 * time.Second} {
		if _, err := r.Subscribe(position.TypeWGS84, p, &recorder{}); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	want := []BucketInfo{
		{PeriodMillis: 100, Subscriptions: 1},
		{PeriodMillis: 1000, Subscriptions: 1},
		{PeriodMillis: 2000, Subscriptions: 1},
		{PeriodMillis: 5000, Subscriptions: 2},
	}
	if diff := cmp.Diff(want, r.Snapshot().Buckets); diff != "" {
		t.Fatalf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_RespectsPeriod(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	rec := &recorder{}
	if _, err := r.Subscribe(position.TypeWGS84, time.Second, rec); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	t0 := time.Unix(1000, 0)
	r.Dispatch(t0, src.push(), src.cache)
	if len(rec.docs) != 1 {
		t.Fatalf("pushes=%d want 1 at t0", len(rec.docs))
	}

	seq := src.push()
	r.Dispatch(t0.Add(900*time.Millisecond), seq, src.cache)
	if len(rec.docs) != 1 {
		t.Fatalf("pushes=%d want 1 at +900ms", len(rec.docs))
	}
	r.Dispatch(t0.Add(1000*time.Millisecond), seq, src.cache)
	if len(rec.docs) != 2 {
		t.Fatalf("pushes=%d want 2 at +1000ms", len(rec.docs))
	}
}

func TestDispatch_SkipsUnchangedData(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	rec := &recorder{}
	_, _ = r.Subscribe(position.TypeWGS84, time.Second, rec)

	t0 := time.Unix(1000, 0)
	// Nothing decoded yet.
	if res := r.Dispatch(t0, src.history.Seq(), src.cache); res.Fired != 0 {
		t.Fatalf("fired with empty history: %+v", res)
	}

	seq := src.push()
	r.Dispatch(t0, seq, src.cache)
	r.Dispatch(t0.Add(time.Second), seq, src.cache)
	r.Dispatch(t0.Add(2*time.Second), seq, src.cache)
	if len(rec.docs) != 1 {
		t.Fatalf("pushes=%d want 1", len(rec.docs))
	}

	seq = src.push()
	r.Dispatch(t0.Add(2500*time.Millisecond), seq, src.cache)
	if len(rec.docs) != 2 {
		t.Fatalf("pushes=%d want 2 at +2.5s", len(rec.docs))
	}
	// A frame that arrived while the bucket was not due is still delivered
	// once the period has elapsed, even without a newer frame.
	seq = src.push()
	r.Dispatch(t0.Add(3*time.Second), seq, src.cache)
	if len(rec.docs) != 2 {
		t.Fatalf("pushes=%d want 2 at +3s", len(rec.docs))
	}
	r.Dispatch(t0.Add(3500*time.Millisecond), seq, src.cache)
	if len(rec.docs) != 3 {
		t.Fatalf("pushes=%d want 3 at +3.5s", len(rec.docs))
	}
}

func TestDispatch_SlowBucketGetsFrameAlreadySentByFastBucket(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	fast, slow := &recorder{}, &recorder{}
	_, _ = r.Subscribe(position.TypeWGS84, 100*time.Millisecond, fast)
	_, _ = r.Subscribe(position.TypeWGS84, time.Second, slow)

	t0 := time.Unix(1000, 0)
	r.Dispatch(t0, src.push(), src.cache)

	seq := src.push()
	r.Dispatch(t0.Add(200*time.Millisecond), seq, src.cache)
	// No new frame since the previous pass, but the slow bucket has not seen seq.
	r.Dispatch(t0.Add(time.Second), seq, src.cache)

	if len(fast.docs) != 2 || len(slow.docs) != 2 {
		t.Fatalf("fast=%d slow=%d want 2 each", len(fast.docs), len(slow.docs))
	}
}

func TestDispatch_PushesDocumentOfRequestedType(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	wgs, kmh := &recorder{}, &recorder{}
	_, _ = r.Subscribe(position.TypeWGS84, time.Second, wgs)
	_, _ = r.Subscribe(position.TypeDMSKmh, time.Second, kmh)

	res := r.Dispatch(time.Unix(1000, 0), src.push(), src.cache)
	if res.Pushed != 2 || res.Fired != 1 {
		t.Fatalf("result=%+v", res)
	}
	if wgs.docs[0].Type != position.TypeWGS84 || kmh.docs[0].Type != position.TypeDMSKmh {
		t.Fatalf("types=%v,%v", wgs.docs[0].Type, kmh.docs[0].Type)
	}
}

func TestUnsubscribe_StopsPushesAndDropsBucket(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	rec := &recorder{}
	reply, _ := r.Subscribe(position.TypeWGS84, time.Second, rec)

	if err := r.Unsubscribe(reply.ID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if n := len(r.Snapshot().Buckets); n != 1 {
		t.Fatalf("bucket removed before dispatch: %d buckets", n)
	}
	r.Dispatch(time.Unix(1000, 0), src.push(), src.cache)
	if len(rec.docs) != 0 {
		t.Fatalf("unsubscribed listener got %d pushes", len(rec.docs))
	}
	if n := len(r.Snapshot().Buckets); n != 0 {
		t.Fatalf("empty bucket kept after dispatch: %d buckets", n)
	}
	if err := r.Unsubscribe(reply.ID); !errors.Is(err, ErrBadID) {
		t.Fatalf("second Unsubscribe err=%v want ErrBadID", err)
	}
}

func TestDispatch_RemovesGoneListeners(t *testing.T) {
	r := NewRegistry(Config{})
	src := newSource()
	gone := &recorder{err: ErrListenerGone}
	flaky := &recorder{err: errors.New("queue full")}
	ok := &recorder{}
	goneReply, _ := r.Subscribe(position.TypeWGS84, time.Second, gone)
	_, _ = r.Subscribe(position.TypeWGS84, time.Second, flaky)
	_, _ = r.Subscribe(position.TypeWGS84, time.Second, ok)

	res := r.Dispatch(time.Unix(1000, 0), src.push(), src.cache)
	want := DispatchResult{Fired: 1, Pushed: 1, Gone: 1, Failed: 1}
	if res != want {
		t.Fatalf("result=%+v want %+v", res, want)
	}
	if r.Len() != 2 {
		t.Fatalf("len=%d want 2", r.Len())
	}
	if err := r.Unsubscribe(goneReply.ID); !errors.Is(err, ErrBadID) {
		t.Fatalf("gone listener still registered: %v", err)
	}
}

func TestParseID(t *testing.T) {
	if _, err := ParseID(""); !errors.Is(err, ErrMissingID) {
		t.Fatalf("err=%v want ErrMissingID", err)
	}
	for _, in := range []string{"abc", "0", "99999999999"} {
		if _, err := ParseID(in); !errors.Is(err, ErrBadID) {
			t.Fatalf("ParseID(%q) err=%v want ErrBadID", in, err)
		}
	}
	id, err := ParseID("17")
	if err != nil || id != 17 {
		t.Fatalf("ParseID(17)=%d,%v", id, err)
	}
}
