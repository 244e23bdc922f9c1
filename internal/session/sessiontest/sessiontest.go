// Package sessiontest provides an in-memory terminal for exercising
// session.Service without spawning processes.
package sessiontest

import (
	"sync"
	"testing"

	"github.com/user/ptyhub/internal/pty"
	"github.com/user/ptyhub/internal/session"
)

// Terminal records what a session does to its process handle. Output and
// exit are driven by the test through Emit and Exit.
type Terminal struct {
	mu         sync.Mutex
	opts       pty.Options
	handlers   pty.Handlers
	early      []string
	writes     []string
	size       [2]uint16
	kills      int
	exitOnKill bool
	pid        int
}

func (t *Terminal) Attach(h pty.Handlers) error {
	t.mu.Lock()
	t.handlers = h
	early := t.early
	t.mu.Unlock()
	for _, chunk := range early {
		h.OnData(chunk)
	}
	return nil
}

func (t *Terminal) Write(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, string(data))
	return len(data), nil
}

func (t *Terminal) Resize(cols, rows uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.size = [2]uint16{cols, rows}
	return nil
}

func (t *Terminal) Kill() error {
	t.mu.Lock()
	t.kills++
	exit := t.exitOnKill
	t.mu.Unlock()
	if exit {
		t.Exit(0, 1)
	}
	return nil
}

func (t *Terminal) Pid() int { return t.pid }

// Emit delivers one output chunk as if the process had written it.
func (t *Terminal) Emit(data string) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	h.OnData(data)
}

// Exit reports process termination.
func (t *Terminal) Exit(code, signal int) {
	t.mu.Lock()
	h := t.handlers
	t.mu.Unlock()
	h.OnExit(pty.ExitStatus{Code: code, Signal: signal})
}

func (t *Terminal) Options() pty.Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

func (t *Terminal) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

func (t *Terminal) Size() (cols, rows uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size[0], t.size[1]
}

func (t *Terminal) Kills() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kills
}

// Launcher hands out Terminals in launch order.
type Launcher struct {
	mu         sync.Mutex
	early      []string
	exitOnKill bool
	terms      []*Terminal
}

// SetEarlyOutput makes every later launch emit chunks as soon as it is
// attached.
func (l *Launcher) SetEarlyOutput(chunks ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.early = chunks
}

// SetExitOnKill makes Kill report a SIGHUP exit straight away.
func (l *Launcher) SetExitOnKill(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exitOnKill = v
}

func (l *Launcher) Launch(opts pty.Options) (session.Terminal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &Terminal{
		opts:       opts,
		early:      l.early,
		exitOnKill: l.exitOnKill,
		pid:        10000 + len(l.terms),
	}
	l.terms = append(l.terms, t)
	return t, nil
}

// Terminal returns the i-th launched terminal.
func (l *Launcher) Terminal(i int) *Terminal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terms[i]
}

func (l *Launcher) Last() *Terminal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terms[len(l.terms)-1]
}

func (l *Launcher) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.terms)
}

// NewService returns a Service backed by a fresh Launcher. Sessions are
// cleared when the test ends.
func NewService(tb testing.TB) (*session.Service, *Launcher) {
	tb.Helper()
	l := &Launcher{}
	svc, err := session.NewService(session.Config{
		Launcher: l,
		Workdir:  "/work",
		BaseEnv:  []string{"PATH=/usr/bin:/bin", "HOME=/home/test"},
	})
	if err != nil {
		tb.Fatalf("session.NewService() error = %v", err)
	}
	tb.Cleanup(svc.Close)
	return svc, l
}
