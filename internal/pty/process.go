package pty

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	creackpty "github.com/creack/pty"
)

// drainTimeout bounds how long the exit path waits for the read loop to
// drain after the child is reaped. A grandchild holding the PTY open would
// otherwise keep the read loop alive forever.
const drainTimeout = 2 * time.Second

// Process wraps a child process running inside a PTY.
//
// Start launches the child but reads nothing from the PTY. Output is only
// consumed once Attach has installed the handlers, so no chunk can be
// produced before something is there to receive it.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pid  int

	mu       sync.Mutex
	attached bool

	// exited is read without mu so that a Write blocked on a full PTY
	// never holds up Kill, Resize or the exit path.
	exited atomic.Bool

	readDone  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Start spawns opts.Command inside a new PTY with the requested geometry.
func Start(opts Options) (*Process, error) {
	if opts.Command == "" {
		return nil, errors.New("pty: command must not be empty")
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = DefaultCols
	}
	if rows == 0 {
		rows = DefaultRows
	}

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		return nil, err
	}

	return &Process{
		cmd:      cmd,
		ptmx:     ptmx,
		pid:      cmd.Process.Pid,
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Attach installs h and starts consuming the PTY. It may be called once.
func (p *Process) Attach(h Handlers) error {
	p.mu.Lock()
	if p.attached {
		p.mu.Unlock()
		return ErrAttached
	}
	p.attached = true
	p.mu.Unlock()

	go p.readPump(h.OnData)
	go p.waitExit(h.OnExit)
	return nil
}

// readPump reads from the PTY fd until it is closed or returns an error
// (EIO once the child side has gone away). Incomplete UTF-8 sequences at a
// read boundary are held back and prepended to the next chunk.
func (p *Process) readPump(onData func(string)) {
	defer close(p.readDone)

	buf := make([]byte, 32*1024)
	var carry []byte
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			cut := incompleteTail(chunk)
			carry = append([]byte(nil), chunk[cut:]...)
			if cut > 0 && onData != nil {
				onData(string(chunk[:cut]))
			}
		}
		if err != nil {
			break
		}
	}
	if len(carry) > 0 && onData != nil {
		onData(string(carry))
	}
}

// waitExit reaps the child, lets the read loop drain, then reports the
// exit status.
func (p *Process) waitExit(onExit func(ExitStatus)) {
	_ = p.cmd.Wait()

	select {
	case <-p.readDone:
	case <-time.After(drainTimeout):
		_ = p.closePTY()
		<-p.readDone
	}
	_ = p.closePTY()

	p.exited.Store(true)

	status := exitStatus(p.cmd.ProcessState)
	if onExit != nil {
		onExit(status)
	}
	close(p.done)
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1}
	}
	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = int(ws.Signal())
	}
	return status
}

// incompleteTail returns the index at which a trailing, not yet complete
// UTF-8 sequence starts, or len(b) when b ends on a rune boundary.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// Pid returns the OS process id of the child.
func (p *Process) Pid() int { return p.pid }

// Done is closed after OnExit has returned.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	return p.exited.Load()
}

// Write sends data to the PTY (and therefore to the child's stdin). It
// blocks while the child is not reading; closing the PTY on exit unblocks
// it with an error.
func (p *Process) Write(data []byte) (int, error) {
	if p.exited.Load() {
		return 0, ErrExited
	}
	return p.ptmx.Write(data)
}

// Resize changes the PTY window size.
func (p *Process) Resize(cols, rows uint16) error {
	if p.exited.Load() {
		return ErrExited
	}
	return creackpty.Setsize(p.ptmx, &creackpty.Winsize{
		Cols: cols,
		Rows: rows,
	})
}

// Kill asks the child to terminate by sending SIGHUP, the signal a
// terminal hangup delivers. It does not wait for the child to exit.
func (p *Process) Kill() error {
	if p.exited.Load() {
		return ErrExited
	}
	if p.cmd.Process == nil {
		return ErrExited
	}
	return p.cmd.Process.Signal(syscall.SIGHUP)
}

// Close kills the child if needed and releases the PTY fd. It is safe to
// call Close multiple times.
func (p *Process) Close() error {
	// A process nobody attached to still has to be reaped.
	_ = p.Attach(Handlers{})
	_ = p.Kill()
	return p.closePTY()
}

func (p *Process) closePTY() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.ptmx.Close()
	})
	return err
}
