package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gps-relay/internal/position"
	"gps-relay/internal/subscription"
)

const (
	pushQueue    = 8
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

var errQueueFull = errors.New("push queue full")

// Event is one pushed document as sent on the websocket.
type Event struct {
	Event string             `json:"event"`
	ID    int32              `json:"id"`
	Data  *position.Document `json:"data"`
}

// socketListener bridges engine pushes to one websocket. Push never blocks:
// when the writer falls behind the document is dropped, and once the socket is
// gone Push reports it so the engine drops the subscription.
type socketListener struct {
	out  chan *position.Document
	done chan struct{}
	once sync.Once
}

func newSocketListener() *socketListener {
	return &socketListener{
		out:  make(chan *position.Document, pushQueue),
		done: make(chan struct{}),
	}
}

func (l *socketListener) Push(doc *position.Document) error {
	select {
	case <-l.done:
		return subscription.ErrListenerGone
	default:
	}
	select {
	case l.out <- doc:
		return nil
	default:
		return errQueueFull
	}
}

func (l *socketListener) close() { l.once.Do(func() { close(l.done) }) }

type subscribeHandler struct {
	api Positions
	log *slog.Logger
}

func (h *subscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	t, err := position.ParseType(q.Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	period := subscription.DefaultPeriod
	if s := q.Get("period"); s != "" {
		ms, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": CodeFailed})
			return
		}
		// Out of range periods are clamped, not rejected.
		period = subscription.NormalizePeriod(time.Duration(ms) * time.Millisecond)
	}

	// Subscribe before upgrading so errors still get an HTTP status.
	l := newSocketListener()
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	reply, err := h.api.Subscribe(ctx, t, period, l)
	cancel()
	if err != nil {
		writeError(w, err)
		return
	}
	defer h.unsubscribe(reply.ID)
	defer l.close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		var he websocket.HandshakeError
		if !errors.As(err, &he) {
			h.log.Warn("websocket upgrade failed", "error", err.Error())
		}
		return
	}
	defer conn.Close()
	h.log.Debug("websocket subscribed", "id", reply.ID, "type", t.String())

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(reply); err != nil {
		return
	}

	// The client never sends anything we act on; reading only detects close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case doc := <-l.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(Event{Event: reply.Name, ID: reply.ID, Data: doc}); err != nil {
				h.log.Debug("websocket write failed", "id", reply.ID, "error", err.Error())
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *subscribeHandler) unsubscribe(id int32) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	// The engine may already have dropped it after a failed push.
	if err := h.api.Unsubscribe(ctx, id); err != nil && !errors.Is(err, subscription.ErrBadID) {
		h.log.Debug("unsubscribe on close failed", "id", id, "error", err.Error())
	}
}
