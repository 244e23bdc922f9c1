package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/pty"
)

const idByteLength = 4

// Hooks let the owner of a Registry observe sessions. Every hook is
// optional. OnOutput and OnExit are not called for sessions that have
// already been removed from the registry.
type Hooks struct {
	// OnStatus is called after a status change that was not caused by
	// process exit: on spawn (before the first output can be read) and on
	// running -> killing. info is the snapshot taken with the transition.
	// The killing update is delivered before the session's exit is
	// recorded, so OnStatus must not call Kill on the same session.
	OnStatus func(s *Session, info Info)
	// OnOutput is called once per chunk, after it was appended to the
	// session's buffer.
	OnOutput func(s *Session, data string)
	// OnExit is called once, after the buffer was flushed and the final
	// status recorded.
	OnExit func(s *Session, status pty.ExitStatus)
	// OnRemove is called once when a session is cleaned up, after its
	// buffer was cleared.
	OnRemove func(s *Session)
}

// RegistryConfig holds spawn defaults.
type RegistryConfig struct {
	Launcher Launcher
	Workdir  string
	// BaseEnv is the environment every child starts from, as KEY=VALUE.
	BaseEnv  []string
	TermName string
	Cols     uint16
	Rows     uint16
	Buffer   buffer.Options
}

// Registry owns the map of session id to record.
type Registry struct {
	cfg   RegistryConfig
	hooks Hooks

	mu       sync.RWMutex
	sessions map[string]*Session
	issued   map[string]struct{}
}

func NewRegistry(cfg RegistryConfig, hooks Hooks) *Registry {
	if cfg.Launcher == nil {
		cfg.Launcher = PTYLauncher{}
	}
	return &Registry{
		cfg:      cfg,
		hooks:    hooks,
		sessions: make(map[string]*Session),
		issued:   make(map[string]struct{}),
	}
}

// Spawn creates a session, launches its process and registers it. ready,
// when non-nil, runs after registration and before the process output is
// consumed, so anything it sets up observes the first chunk.
func (r *Registry) Spawn(opts SpawnOptions, ready func(Info)) (Info, error) {
	if strings.TrimSpace(opts.Command) == "" {
		return Info{}, fmt.Errorf("%w: command is required", ErrInvalidInput)
	}

	id, err := r.allocateID()
	if err != nil {
		return Info{}, err
	}
	s := newSession(id, opts, r.cfg.Workdir, r.cfg.Buffer)

	term, err := r.cfg.Launcher.Launch(pty.Options{
		Command: s.command,
		Args:    s.args,
		Dir:     s.workdir,
		Env:     r.environ(s.env),
		Cols:    r.cfg.Cols,
		Rows:    r.cfg.Rows,
	})
	if err != nil {
		r.release(id)
		return Info{}, fmt.Errorf("spawn %q: %w", s.command, err)
	}

	s.mu.Lock()
	s.phase = running{term: term}
	s.pid = term.Pid()
	s.mu.Unlock()

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	if r.hooks.OnStatus != nil {
		r.hooks.OnStatus(s, s.Info())
	}
	if ready != nil {
		ready(s.Info())
	}

	if err := term.Attach(pty.Handlers{
		OnData: func(data string) { r.handleOutput(s, data) },
		OnExit: func(status pty.ExitStatus) { r.handleExit(s, status) },
	}); err != nil {
		r.Kill(id, true)
		return Info{}, fmt.Errorf("attach %q: %w", id, err)
	}

	slog.Info("session spawned", "session", id, "command", s.command, "pid", s.pid)
	return s.Info(), nil
}

func (r *Registry) handleOutput(s *Session, data string) {
	s.buffer.Append(data)
	if s.removed.Load() {
		return
	}
	if r.hooks.OnOutput != nil {
		r.hooks.OnOutput(s, data)
	}
}

func (r *Registry) handleExit(s *Session, status pty.ExitStatus) {
	s.buffer.Flush()

	s.publishMu.Lock()
	s.mu.Lock()
	final := StatusExited
	if _, ok := s.phase.(killing); ok {
		final = StatusKilled
	}
	s.phase = terminated{final: final, exit: status}
	s.mu.Unlock()
	s.publishMu.Unlock()

	if s.removed.Load() {
		slog.Debug("exit for removed session dropped", "session", s.id, "code", status.Code)
		return
	}
	slog.Info("session terminated", "session", s.id, "status", final, "code", status.Code, "signal", status.Signal)
	if r.hooks.OnExit != nil {
		r.hooks.OnExit(s, status)
	}
}

// Kill requests termination of a running session and, with cleanup,
// removes it immediately. Removal does not wait for the process to exit.
// It returns false for an unknown id.
func (r *Registry) Kill(id string, cleanup bool) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if cleanup {
		delete(r.sessions, id)
		s.removed.Store(true)
	}
	r.mu.Unlock()

	var term Terminal
	var info Info
	s.publishMu.Lock()
	s.mu.Lock()
	if p, ok := s.phase.(running); ok {
		s.phase = killing{term: p.term}
		term = p.term
		info = s.project(s.phase, s.pid)
	}
	s.mu.Unlock()
	if term != nil && r.hooks.OnStatus != nil {
		r.hooks.OnStatus(s, info)
	}
	s.publishMu.Unlock()

	if term != nil {
		if err := term.Kill(); err != nil {
			slog.Warn("kill failed", "session", id, "error", err)
		}
	}
	if cleanup {
		s.buffer.Clear()
		if r.hooks.OnRemove != nil {
			r.hooks.OnRemove(s)
		}
	}
	return true
}

// CleanupBySession kills and removes every session whose parent is
// parentID.
func (r *Registry) CleanupBySession(parentID string) {
	r.mu.RLock()
	var ids []string
	for id, s := range r.sessions {
		if s.parentID == parentID {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Kill(id, true)
	}
}

// ClearAll kills and removes every session.
func (r *Registry) ClearAll() {
	r.mu.RLock()
	ids := slices.Collect(maps.Keys(r.sessions))
	r.mu.RUnlock()

	for _, id := range ids {
		r.Kill(id, true)
	}
}

// Lookup returns the live record for id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Get(id string) (Info, bool) {
	s, ok := r.Lookup(id)
	if !ok {
		return Info{}, false
	}
	return s.Info(), true
}

// List returns every registered session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	records := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		records = append(records, s)
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].createdAt.Equal(records[j].createdAt) {
			return records[i].id < records[j].id
		}
		return records[i].createdAt.Before(records[j].createdAt)
	})
	infos := make([]Info, 0, len(records))
	for _, s := range records {
		infos = append(infos, s.Info())
	}
	return infos
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// allocateID returns an id never issued before by this registry.
func (r *Registry) allocateID() (string, error) {
	for {
		id, err := generateID()
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		if _, taken := r.issued[id]; !taken {
			r.issued[id] = struct{}{}
			r.mu.Unlock()
			return id, nil
		}
		r.mu.Unlock()
	}
}

// release forgets an id whose spawn failed before anything observed it.
func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.issued, id)
	r.mu.Unlock()
}

func generateID() (string, error) {
	buf := make([]byte, idByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "pty_" + hex.EncodeToString(buf), nil
}

// environ overlays overrides and TERM on the base environment.
func (r *Registry) environ(overrides map[string]string) []string {
	merged := make(map[string]string, len(r.cfg.BaseEnv)+len(overrides)+1)
	for _, kv := range r.cfg.BaseEnv {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		merged[k] = v
	}
	if r.cfg.TermName != "" {
		merged["TERM"] = r.cfg.TermName
	}
	for k, v := range overrides {
		merged[k] = v
	}

	keys := slices.Sorted(maps.Keys(merged))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
