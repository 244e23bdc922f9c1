package session

import (
	"errors"
	"sync"

	"github.com/user/ptyhub/internal/pty"
)

type fakeTerminal struct {
	mu       sync.Mutex
	opts     pty.Options
	h        pty.Handlers
	pid      int
	early    []string
	writes   []string
	kills    int
	killErr  error
	writeErr error
	size     [2]uint16
}

func (f *fakeTerminal) Attach(h pty.Handlers) error {
	f.mu.Lock()
	f.h = h
	early := f.early
	f.mu.Unlock()
	// Emit straight away, the way a real child may start writing as soon
	// as reading begins.
	for _, chunk := range early {
		h.OnData(chunk)
	}
	return nil
}

func (f *fakeTerminal) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, string(data))
	return len(data), nil
}

func (f *fakeTerminal) Resize(cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = [2]uint16{cols, rows}
	return nil
}

func (f *fakeTerminal) Kill() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills++
	return f.killErr
}

func (f *fakeTerminal) Pid() int { return f.pid }

func (f *fakeTerminal) emit(data string) { f.h.OnData(data) }

func (f *fakeTerminal) exit(code, signal int) {
	f.h.OnExit(pty.ExitStatus{Code: code, Signal: signal})
}

type fakeLauncher struct {
	mu    sync.Mutex
	terms []*fakeTerminal
	early []string
	err   error
}

func (l *fakeLauncher) Launch(opts pty.Options) (Terminal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	t := &fakeTerminal{opts: opts, pid: 1000 + len(l.terms), early: l.early}
	l.terms = append(l.terms, t)
	return t, nil
}

func (l *fakeLauncher) last() *fakeTerminal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terms[len(l.terms)-1]
}

var errLaunch = errors.New("launch failed")

func newFakeService(l *fakeLauncher) *Service {
	svc, err := NewService(Config{
		Launcher: l,
		Workdir:  "/work",
		BaseEnv:  []string{"PATH=/bin", "HOME=/home/test"},
	})
	if err != nil {
		panic(err)
	}
	return svc
}
