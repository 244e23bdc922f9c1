package pty

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	output strings.Builder
	exits  []ExitStatus
	exited chan struct{}
}

func newRecorder() *recorder {
	return &recorder{exited: make(chan struct{})}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnData: func(data string) {
			r.mu.Lock()
			r.output.WriteString(data)
			r.mu.Unlock()
		},
		OnExit: func(status ExitStatus) {
			r.mu.Lock()
			r.exits = append(r.exits, status)
			r.mu.Unlock()
			close(r.exited)
		},
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit")
	}
}

// TestProcessCapturesOutputFromFirstByte spawns "echo" and verifies the
// whole line arrives even though the child writes immediately after Start.
func TestProcessCapturesOutputFromFirstByte(t *testing.T) {
	p, err := Start(Options{Command: "echo", Args: []string{"hello-pty"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	// Give the child every chance to finish before handlers exist.
	time.Sleep(100 * time.Millisecond)

	rec := newRecorder()
	if err := p.Attach(rec.handlers()); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.output.String() != "hello-pty\r\n" {
		t.Errorf("output = %q, want %q", rec.output.String(), "hello-pty\r\n")
	}
	if len(rec.exits) != 1 || rec.exits[0].Code != 0 || rec.exits[0].Signal != 0 {
		t.Errorf("exits = %+v, want one clean exit", rec.exits)
	}
}

func TestProcessAttachTwice(t *testing.T) {
	p, err := Start(Options{Command: "sleep", Args: []string{"10"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	if err := p.Attach(Handlers{}); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	if err := p.Attach(Handlers{}); !errors.Is(err, ErrAttached) {
		t.Fatalf("second Attach error = %v, want ErrAttached", err)
	}
}

func TestProcessExitCode(t *testing.T) {
	p, err := Start(Options{Command: "sh", Args: []string{"-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	rec := newRecorder()
	if err := p.Attach(rec.handlers()); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	rec.wait(t)

	if rec.exits[0].Code != 3 {
		t.Errorf("exit code = %d, want 3", rec.exits[0].Code)
	}
	if !p.Exited() {
		t.Error("Exited() = false after OnExit")
	}
	if _, err := p.Write([]byte("x")); !errors.Is(err, ErrExited) {
		t.Errorf("Write after exit error = %v, want ErrExited", err)
	}
}

func TestProcessKillReportsSignal(t *testing.T) {
	p, err := Start(Options{Command: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	rec := newRecorder()
	if err := p.Attach(rec.handlers()); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	rec.wait(t)

	if rec.exits[0].Signal == 0 {
		t.Errorf("exit = %+v, want a signal", rec.exits[0])
	}
	<-p.Done()
}

// TestProcessKillWhileWriteBlocked fills the PTY input queue of a child
// that never reads it, then kills the child while the write is stuck.
func TestProcessKillWhileWriteBlocked(t *testing.T) {
	p, err := Start(Options{Command: "sh", Args: []string{"-c", "stty raw -echo; exec sleep 30"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	rec := newRecorder()
	if err := p.Attach(rec.handlers()); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		_, _ = p.Write(make([]byte, 1<<20))
	}()

	// Give the write time to fill the queue and block.
	select {
	case <-writeDone:
		t.Fatal("1 MiB write to a non-reading child returned early")
	case <-time.After(300 * time.Millisecond):
	}

	killed := make(chan error, 1)
	go func() { killed <- p.Kill() }()
	select {
	case err := <-killed:
		if err != nil {
			t.Fatalf("Kill: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Kill blocked behind a pending Write")
	}
	if err := p.Resize(100, 30); err != nil && !errors.Is(err, ErrExited) {
		t.Logf("Resize after kill: %v", err)
	}

	rec.wait(t)
	select {
	case <-writeDone:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked Write was not released after the child exited")
	}
}

func TestProcessResize(t *testing.T) {
	p, err := Start(Options{Command: "sleep", Args: []string{"10"}, Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Close()

	if err := p.Resize(200, 50); err != nil {
		t.Fatalf("Resize: %v", err)
	}
}

// TestProcessWriteAndClose spawns "cat", writes to it, and verifies that a
// second Close does not panic.
func TestProcessWriteAndClose(t *testing.T) {
	p, err := Start(Options{Command: "cat"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	rec := newRecorder()
	if err := p.Attach(rec.handlers()); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := p.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Logf("second Close returned: %v (expected nil)", err)
	}
	rec.wait(t)
}

func TestStartRejectsEmptyCommand(t *testing.T) {
	if _, err := Start(Options{}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestIncompleteTail(t *testing.T) {
	euro := []byte("€") // 3 bytes
	tests := []struct {
		name string
		in   []byte
		want int
	}{
		{"ascii", []byte("abc"), 3},
		{"complete rune", append([]byte("a"), euro...), 4},
		{"split after one byte", append([]byte("a"), euro[:1]...), 1},
		{"split after two bytes", append([]byte("a"), euro[:2]...), 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := incompleteTail(tt.in); got != tt.want {
				t.Errorf("incompleteTail(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
