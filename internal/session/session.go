package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/pty"
)

// phase is the lifecycle variant of a session. Only running and killing
// carry a process handle, so a terminated session has no handle to misuse.
type phase interface {
	status() Status
}

type spawning struct{}

type running struct{ term Terminal }

type killing struct{ term Terminal }

type terminated struct {
	final Status
	exit  pty.ExitStatus
}

func (spawning) status() Status     { return StatusRunning }
func (running) status() Status      { return StatusRunning }
func (killing) status() Status      { return StatusKilling }
func (p terminated) status() Status { return p.final }

// Session is one PTY-backed process record. It exclusively owns its output
// buffer and process handle.
type Session struct {
	id           string
	title        string
	description  string
	command      string
	args         []string
	workdir      string
	env          map[string]string
	parentID     string
	notifyOnExit bool
	createdAt    time.Time

	buffer *buffer.Output

	// removed is set once the record has left the registry; events for a
	// removed session are not published.
	removed atomic.Bool

	// publishMu orders the running -> killing update before the exit
	// update when Kill races a natural exit.
	publishMu sync.Mutex

	mu    sync.Mutex
	phase phase
	pid   int
}

func newSession(id string, opts SpawnOptions, workdir string, bufOpts buffer.Options) *Session {
	args := append([]string{}, opts.Args...)
	title := opts.Title
	if title == "" {
		title = strings.TrimSpace(opts.Command + " " + strings.Join(args, " "))
	}
	if opts.Workdir != "" {
		workdir = opts.Workdir
	}
	var env map[string]string
	if len(opts.Env) > 0 {
		env = make(map[string]string, len(opts.Env))
		for k, v := range opts.Env {
			env[k] = v
		}
	}

	return &Session{
		id:           id,
		title:        title,
		description:  opts.Description,
		command:      opts.Command,
		args:         args,
		workdir:      workdir,
		env:          env,
		parentID:     opts.ParentSessionID,
		notifyOnExit: opts.NotifyOnExit,
		createdAt:    time.Now(),
		buffer:       buffer.New(bufOpts),
		phase:        spawning{},
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) ParentID() string { return s.parentID }

func (s *Session) Buffer() *buffer.Output { return s.buffer }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.status()
}

// terminal returns the process handle while the session still has one.
func (s *Session) terminal() (Terminal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p := s.phase.(type) {
	case running:
		return p.term, true
	case killing:
		return p.term, true
	}
	return nil, false
}

// Info projects the record into an immutable snapshot.
func (s *Session) Info() Info {
	s.mu.Lock()
	ph, pid := s.phase, s.pid
	s.mu.Unlock()
	return s.project(ph, pid)
}

func (s *Session) project(ph phase, pid int) Info {
	info := Info{
		ID:              s.id,
		Title:           s.title,
		Description:     s.description,
		Command:         s.command,
		Args:            append([]string{}, s.args...),
		Workdir:         s.workdir,
		ParentSessionID: s.parentID,
		Status:          ph.status(),
		PID:             pid,
		CreatedAt:       s.createdAt,
		LineCount:       s.buffer.Length(),
	}
	if t, ok := ph.(terminated); ok {
		code := t.exit.Code
		info.ExitCode = &code
		if t.exit.Signal != 0 {
			sig := t.exit.Signal
			info.ExitSignal = &sig
		}
	}
	return info
}

// lastLine returns the last non-blank completed line, or "".
func (s *Session) lastLine() string {
	for i := s.buffer.Length() - 1; i >= 0; i-- {
		lines := s.buffer.Read(i, 1)
		if len(lines) == 1 && strings.TrimSpace(lines[0]) != "" {
			return lines[0]
		}
	}
	return ""
}
