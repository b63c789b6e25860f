// Package web serves the position query surface over HTTP and websockets.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gps-relay/internal/logging"
	"gps-relay/internal/position"
	"gps-relay/internal/subscription"
)

// Positions is the query surface of the engine. Implementations must be safe
// for concurrent use.
type Positions interface {
	Get(ctx context.Context, t position.Type) (*position.Document, error)
	Subscribe(ctx context.Context, t position.Type, period time.Duration, l subscription.Listener) (subscription.Reply, error)
	Unsubscribe(ctx context.Context, id int32) error
	History(ctx context.Context) ([]position.Frame, error)
}

// Error codes returned in {"error": code} bodies.
const (
	CodeUnknownType = "unknown-type"
	CodeOutOfMemory = "out-of-memory"
	CodeMissingID   = "missing-id"
	CodeBadID       = "bad-id"
	CodeFailed      = "failed"
)

const requestTimeout = 5 * time.Second

type Options struct {
	Logs   *LogBuffer
	Logger *slog.Logger
}

func Handler(api Positions, status *Status, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	log = log.With("component", "web")

	mux := http.NewServeMux()

	mux.HandleFunc("/api/position", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		t, err := position.ParseType(r.URL.Query().Get("type"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		doc, err := api.Get(ctx, t)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.Handle("/api/subscribe", &subscribeHandler{api: api, log: log})

	mux.HandleFunc("/api/unsubscribe", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		id, err := subscription.ParseID(r.URL.Query().Get("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		if err := api.Unsubscribe(ctx, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		frames, err := api.History(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Frames []position.Frame `json:"frames"`
		}{Frames: frames})
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		snap, err := status.Snapshot(ctx, time.Now().UTC())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	if opts.Logs != nil {
		mux.Handle("/api/logs", opts.Logs.Handler())
	}

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

// errorCode maps an engine error onto its wire code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, position.ErrUnknownType):
		return CodeUnknownType, http.StatusBadRequest
	case errors.Is(err, subscription.ErrOutOfMemory):
		return CodeOutOfMemory, http.StatusServiceUnavailable
	case errors.Is(err, subscription.ErrMissingID):
		return CodeMissingID, http.StatusBadRequest
	case errors.Is(err, subscription.ErrBadID):
		return CodeBadID, http.StatusNotFound
	default:
		return CodeFailed, http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
