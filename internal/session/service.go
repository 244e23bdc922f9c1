package session

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/pty"
)

// Config configures a Service. Zero values fall back to the server's
// working directory and environment and the default terminal geometry.
type Config struct {
	Launcher Launcher
	Workdir  string
	BaseEnv  []string
	TermName string
	Cols     uint16
	Rows     uint16
	Buffer   buffer.Options
}

// Service is the surface external collaborators call. It composes the
// registry, the output facade and the event bus. Construct one per
// process and pass it to every handler.
type Service struct {
	reg    *Registry
	output *Output
	bus    *Bus
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Workdir = wd
	}
	if cfg.BaseEnv == nil {
		cfg.BaseEnv = os.Environ()
	}
	if cfg.TermName == "" {
		cfg.TermName = "xterm-256color"
	}
	if cfg.Cols == 0 {
		cfg.Cols = pty.DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = pty.DefaultRows
	}

	svc := &Service{bus: NewBus()}
	svc.reg = NewRegistry(RegistryConfig{
		Launcher: cfg.Launcher,
		Workdir:  cfg.Workdir,
		BaseEnv:  cfg.BaseEnv,
		TermName: cfg.TermName,
		Cols:     cfg.Cols,
		Rows:     cfg.Rows,
		Buffer:   cfg.Buffer,
	}, Hooks{
		OnStatus: func(_ *Session, info Info) {
			svc.bus.publishUpdate(info)
		},
		OnOutput: func(s *Session, data string) {
			svc.bus.publishOutput(OutputEvent{Session: s.Info(), Data: data})
		},
		OnExit: func(s *Session, status pty.ExitStatus) {
			info := s.Info()
			svc.bus.publishUpdate(info)
			svc.bus.publishExit(ExitEvent{
				Session:      info,
				ExitCode:     status.Code,
				NotifyOnExit: s.notifyOnExit,
				LastLine:     s.lastLine(),
			})
		},
		OnRemove: func(s *Session) {
			svc.bus.publishRemove(s.Info())
		},
	})
	svc.output = NewOutput(svc.reg)
	return svc, nil
}

// Events exposes the observer bus.
func (s *Service) Events() *Bus { return s.bus }

func (s *Service) Spawn(opts SpawnOptions) (Info, error) {
	return s.reg.Spawn(opts, nil)
}

// SpawnWith is Spawn with a callback that runs after the session is
// registered and announced but before any of its output is consumed.
func (s *Service) SpawnWith(opts SpawnOptions, ready func(Info)) (Info, error) {
	return s.reg.Spawn(opts, ready)
}

func (s *Service) Kill(id string, cleanup bool) bool {
	return s.reg.Kill(id, cleanup)
}

func (s *Service) CleanupBySession(parentID string) {
	s.reg.CleanupBySession(parentID)
}

func (s *Service) ClearAll() {
	s.reg.ClearAll()
}

func (s *Service) List() []Info {
	return s.reg.List()
}

func (s *Service) Get(id string) (Info, bool) {
	return s.reg.Get(id)
}

func (s *Service) Write(id, data string) bool {
	return s.output.Write(id, data)
}

func (s *Service) Read(id string, offset, limit int) (ReadResult, bool) {
	return s.output.Read(id, offset, limit)
}

func (s *Service) Search(id string, pattern *regexp.Regexp, offset, limit int) (SearchResult, bool) {
	return s.output.Search(id, pattern, offset, limit)
}

func (s *Service) RawBuffer(id string) (RawBuffer, bool) {
	return s.output.Raw(id)
}

// Resize changes the terminal geometry of a live session. Resizing a
// terminated session is a no-op.
func (s *Service) Resize(id string, cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("%w: cols and rows must be positive", ErrInvalidInput)
	}
	rec, ok := s.reg.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	term, live := rec.terminal()
	if !live {
		return nil
	}
	if err := term.Resize(cols, rows); err != nil && !errors.Is(err, pty.ErrExited) {
		return fmt.Errorf("resize %s: %w", id, err)
	}
	return nil
}

// Counts returns the number of registered sessions and how many of them
// are still running.
func (s *Service) Counts() (total, active int) {
	for _, info := range s.reg.List() {
		total++
		if info.Status == StatusRunning {
			active++
		}
	}
	return total, active
}

// Close kills every session; used on server shutdown.
func (s *Service) Close() {
	s.reg.ClearAll()
}
