package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/ptyhub/internal/session"
	"github.com/user/ptyhub/internal/session/sessiontest"
)

func TestFormatExitSuccess(t *testing.T) {
	got := FormatExit(session.ExitEvent{
		Session:  session.Info{ID: "pty_1a2b3c4d", Title: "npm test", LineCount: 42},
		ExitCode: 0,
		LastLine: "\x1b[32mTests: 12 passed\x1b[0m",
	})
	want := strings.Join([]string{
		"<pty_exited>",
		"ID: pty_1a2b3c4d",
		"Description: npm test",
		"Exit Code: 0",
		"Output Lines: 42",
		"Last Line: Tests: 12 passed",
		"</pty_exited>",
		"",
		"Use pty_read to check the full output.",
	}, "\n")
	if got != want {
		t.Fatalf("FormatExit() =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatExitFailureTruncates(t *testing.T) {
	got := FormatExit(session.ExitEvent{
		Session: session.Info{
			ID:          "pty_00000001",
			Title:       "ignored when a description exists",
			Description: strings.Repeat("d", 70),
		},
		ExitCode: 2,
		LastLine: strings.Repeat("é", 300),
	})

	if !strings.Contains(got, "Description: "+strings.Repeat("d", 64)+"...\n") {
		t.Errorf("description not truncated to 64 chars:\n%s", got)
	}
	if !strings.Contains(got, "Last Line: "+strings.Repeat("é", 250)+"...\n") {
		t.Errorf("last line not truncated to 250 runes:\n%s", got)
	}
	if !strings.HasSuffix(got, "Process failed. Use pty_read with the pattern parameter to search for errors in the output.") {
		t.Errorf("missing failure hint:\n%s", got)
	}
}

type chanSender struct {
	ch  chan Notification
	err error
}

func (c *chanSender) Send(_ context.Context, n Notification) error {
	c.ch <- n
	return c.err
}

func TestNotifierOnlyForRequestedChildren(t *testing.T) {
	svc, launcher := sessiontest.NewService(t)
	sender := &chanSender{ch: make(chan Notification, 4), err: errors.New("parent gone")}
	dispose := NewNotifier(sender).Observe(svc.Events())
	defer dispose()

	svc.Spawn(session.SpawnOptions{Command: "quiet", ParentSessionID: "agent-1"})
	svc.Spawn(session.SpawnOptions{Command: "orphan", NotifyOnExit: true})
	loud, _ := svc.Spawn(session.SpawnOptions{Command: "make", NotifyOnExit: true, ParentSessionID: "agent-1"})

	for i := 0; i < 3; i++ {
		term := launcher.Terminal(i)
		term.Emit("done\r\n")
		term.Exit(1, 0)
	}

	select {
	case n := <-sender.ch:
		if n.SessionID != loud.ID || n.ParentSessionID != "agent-1" || n.ExitCode != 1 {
			t.Fatalf("notification = %+v", n)
		}
		if !strings.Contains(n.Text, "Last Line: done") {
			t.Fatalf("text = %q", n.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}

	select {
	case n := <-sender.ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebhookSenderPostsJSON(t *testing.T) {
	received := make(chan Notification, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
			t.Errorf("decode: %v", err)
		}
		received <- n
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := NewWebhookSender(server.URL).Send(context.Background(), Notification{ParentSessionID: "p", SessionID: "pty_00000001", Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n := <-received; n.SessionID != "pty_00000001" || n.Text != "hi" {
		t.Fatalf("received %+v", n)
	}
}

func TestWebhookSenderReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookSender(server.URL).Send(context.Background(), Notification{})
	if err == nil || !strings.Contains(err.Error(), "status=502") {
		t.Fatalf("Send() error = %v, want status=502", err)
	}
}
