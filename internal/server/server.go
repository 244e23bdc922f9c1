package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/user/ptyhub/internal/api"
	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/config"
	"github.com/user/ptyhub/internal/hub"
	"github.com/user/ptyhub/internal/notify"
	"github.com/user/ptyhub/internal/session"
	"github.com/user/ptyhub/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Options replaces collaborators that are otherwise built from config.
type Options struct {
	// Launcher defaults to real pseudo-terminals.
	Launcher session.Launcher
	// Sender defaults to a webhook when notify.webhook_url is set and to
	// the log otherwise.
	Sender notify.Sender
}

// Server owns one session service and everything observing it: the
// WebSocket hub, the history recorder and the exit notifier.
type Server struct {
	cfg        *config.Config
	sessions   *session.Service
	hub        *hub.Hub
	db         *store.DB
	handler    http.Handler
	httpServer *http.Server
	disposers  []func()
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	sessions, err := session.NewService(session.Config{
		Launcher: opts.Launcher,
		TermName: cfg.Terminal.Name,
		Cols:     uint16(cfg.Terminal.Cols),
		Rows:     uint16(cfg.Terminal.Rows),
		Buffer: buffer.Options{
			MaxLines: cfg.Buffer.MaxLines,
			MaxBytes: cfg.Buffer.MaxBytes,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create session service: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		hub:      hub.New(sessions, hub.Options{SendBuffer: cfg.Hub.SendBuffer}),
	}
	s.disposers = append(s.disposers, s.hub.Observe(sessions.Events()))

	routerOpts := api.Options{
		Sessions: sessions,
		Viewers:  s.hub,
		Started:  time.Now(),
	}
	if cfg.Store.Path != "" {
		db, err := store.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		s.db = db
		repo := store.NewHistoryRepo(db.SQL())
		s.disposers = append(s.disposers, store.NewRecorder(repo).Observe(sessions.Events()))
		routerOpts.History = repo
		slog.Info("session history enabled", "path", cfg.Store.Path)
	}

	sender := opts.Sender
	if sender == nil && cfg.Notify.WebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.Notify.WebhookURL)
	}
	s.disposers = append(s.disposers, notify.NewNotifier(sender).Observe(sessions.Events()))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	mux.Handle("/api/", api.NewRouter(routerOpts))
	s.handler = mux

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Sessions() *session.Service { return s.sessions }

func (s *Server) Hub() *hub.Hub { return s.hub }

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln. When ctx is cancelled it stops
// accepting requests, closes every viewer, kills every session and closes
// the history store.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		s.hub.Run(hubCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	stopHub()
	<-hubDone
	s.close()
	return serveErr
}

func (s *Server) close() {
	s.sessions.Close()
	for i := len(s.disposers) - 1; i >= 0; i-- {
		s.disposers[i]()
	}
	s.disposers = nil
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("close history store failed", "error", err)
		}
	}
}
