package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/user/ptyhub/internal/session"
	"github.com/user/ptyhub/internal/store"
)

// ViewerCounter reports live WebSocket viewers for the health endpoint.
type ViewerCounter interface {
	ClientCount() int
}

// HistoryLister serves GET /api/history. *store.HistoryRepo satisfies it.
type HistoryLister interface {
	List(ctx context.Context, filter store.HistoryFilter) ([]*store.SessionRecord, error)
}

type Options struct {
	Sessions *session.Service
	Viewers  ViewerCounter
	// History is optional; without it /api/history answers 404.
	History HistoryLister
	Started time.Time
}

type handler struct {
	sessions *session.Service
	viewers  ViewerCounter
	history  HistoryLister
	started  time.Time
	now      func() time.Time
}

func NewRouter(opts Options) http.Handler {
	h := &handler{
		sessions: opts.Sessions,
		viewers:  opts.Viewers,
		history:  opts.History,
		started:  opts.Started,
		now:      time.Now,
	}
	if h.started.IsZero() {
		h.started = h.now()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)

	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("POST /api/sessions", h.createSession)
	mux.HandleFunc("DELETE /api/sessions", h.clearSessions)

	mux.HandleFunc("GET /api/sessions/{id}", h.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.killSession)
	mux.HandleFunc("DELETE /api/sessions/{id}/cleanup", h.cleanupSession)
	mux.HandleFunc("POST /api/sessions/{id}/input", h.sendInput)
	mux.HandleFunc("POST /api/sessions/{id}/resize", h.resizeSession)
	mux.HandleFunc("GET /api/sessions/{id}/buffer/raw", h.getRawBuffer)
	mux.HandleFunc("GET /api/sessions/{id}/buffer/plain", h.getPlainBuffer)
	mux.HandleFunc("GET /api/sessions/{id}/output", h.readOutput)
	mux.HandleFunc("GET /api/sessions/{id}/search", h.searchOutput)

	mux.HandleFunc("GET /api/history", h.listHistory)

	return jsonMiddleware(corsMiddleware(mux))
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads exactly one JSON value. Unknown fields are accepted so
// that older and newer clients keep working.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
