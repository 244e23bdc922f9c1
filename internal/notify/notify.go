// Package notify tells a parent session that one of its child terminals
// has exited.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/ptyhub/internal/session"
)

const defaultSendTimeout = 10 * time.Second

// Notification is one exit message addressed to a parent session.
type Notification struct {
	ParentSessionID string `json:"parentSessionId"`
	SessionID       string `json:"sessionId"`
	ExitCode        int    `json:"exitCode"`
	Text            string `json:"text"`
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the default logger.
type LogSender struct{}

func (LogSender) Send(_ context.Context, n Notification) error {
	slog.Info("exit notification", "parent", n.ParentSessionID, "session", n.SessionID, "code", n.ExitCode, "text", n.Text)
	return nil
}

// WebhookSender POSTs each notification as JSON.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{URL: url, Client: &http.Client{Timeout: defaultSendTimeout}}
}

func (w *WebhookSender) Send(ctx context.Context, n Notification) error {
	buf, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("webhook status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Notifier turns exit events into notifications for sessions spawned
// with notifyOnExit and a parent. Delivery is asynchronous and failures
// are only logged.
type Notifier struct {
	sender  Sender
	timeout time.Duration
}

func NewNotifier(sender Sender) *Notifier {
	if sender == nil {
		sender = LogSender{}
	}
	return &Notifier{sender: sender, timeout: defaultSendTimeout}
}

func (n *Notifier) Observe(bus *session.Bus) (dispose func()) {
	return bus.OnExit(n.handleExit)
}

func (n *Notifier) handleExit(ev session.ExitEvent) {
	if !ev.NotifyOnExit || ev.Session.ParentSessionID == "" {
		return
	}
	msg := Notification{
		ParentSessionID: ev.Session.ParentSessionID,
		SessionID:       ev.Session.ID,
		ExitCode:        ev.ExitCode,
		Text:            FormatExit(ev),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.sender.Send(ctx, msg); err != nil {
			slog.Warn("exit notification failed", "session", msg.SessionID, "parent", msg.ParentSessionID, "error", err)
		}
	}()
}
