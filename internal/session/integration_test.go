package session

import (
	"strings"
	"testing"
	"time"
)

func newPTYService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Workdir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func waitExit(t *testing.T, svc *Service, id string) ExitEvent {
	t.Helper()
	ch := make(chan ExitEvent, 8)
	dispose := svc.Events().OnExit(func(ev ExitEvent) {
		if ev.Session.ID == id {
			ch <- ev
		}
	})
	defer dispose()

	// The process may already have exited before the observer existed.
	if info, ok := svc.Get(id); ok && info.Status.Terminal() {
		return ExitEvent{Session: info, ExitCode: *info.ExitCode}
	}
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s to exit", id)
		return ExitEvent{}
	}
}

// TestEchoRawReplay spawns echo with embedded newlines; the PTY turns each
// LF into CRLF.
func TestEchoRawReplay(t *testing.T) {
	svc := newPTYService(t)

	info, err := svc.Spawn(SpawnOptions{Command: "echo", Args: []string{"line1\nline2\nline3"}})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	ev := waitExit(t, svc, info.ID)
	if ev.ExitCode != 0 {
		t.Fatalf("exit code = %d", ev.ExitCode)
	}

	raw, ok := svc.RawBuffer(info.ID)
	if !ok {
		t.Fatal("RawBuffer() ok = false")
	}
	if raw.Raw != "line1\r\nline2\r\nline3\r\n" {
		t.Fatalf("raw = %q", raw.Raw)
	}
	if raw.ByteLength != 21 {
		t.Fatalf("byteLength = %d, want 21", raw.ByteLength)
	}

	res, _ := svc.Read(info.ID, 0, -1)
	if strings.Join(res.Lines, "|") != "line1|line2|line3" {
		t.Fatalf("lines = %q", res.Lines)
	}

	got, _ := svc.Get(info.ID)
	if got.Status != StatusExited {
		t.Fatalf("status = %q, want exited", got.Status)
	}
}

func TestInteractiveShellInputAndKill(t *testing.T) {
	svc := newPTYService(t)

	info, err := svc.Spawn(SpawnOptions{Command: "cat"})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if !svc.Write(info.ID, "hello-cat\n") {
		t.Fatal("Write() = false")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		raw, _ := svc.RawBuffer(info.ID)
		if strings.Contains(raw.Raw, "hello-cat") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("echoed input never arrived, raw = %q", raw.Raw)
		}
		time.Sleep(20 * time.Millisecond)
	}

	svc.Kill(info.ID, false)
	waitExit(t, svc, info.ID)
	got, _ := svc.Get(info.ID)
	if got.Status != StatusKilled {
		t.Fatalf("status = %q, want killed", got.Status)
	}
	if !svc.Write(info.ID, "after exit\n") {
		t.Fatal("Write() after exit should be a successful no-op")
	}
}

func TestUnterminatedLastLineIsFlushed(t *testing.T) {
	svc := newPTYService(t)

	info, err := svc.Spawn(SpawnOptions{Command: "printf", Args: []string{"a\\nno-newline"}})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	ev := waitExit(t, svc, info.ID)

	res, _ := svc.Read(info.ID, 0, -1)
	if len(res.Lines) != 2 || res.Lines[1] != "no-newline" {
		t.Fatalf("lines = %q, want the unterminated line committed", res.Lines)
	}
	if ev.LastLine != "" && ev.LastLine != "no-newline" {
		t.Fatalf("LastLine = %q", ev.LastLine)
	}
}
