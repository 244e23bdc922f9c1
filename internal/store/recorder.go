package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/ptyhub/internal/session"
)

const recordTimeout = 2 * time.Second

// Recorder mirrors session lifecycle events into the history table.
// Write failures are logged and never reach the session that caused them.
type Recorder struct {
	repo *HistoryRepo
	now  func() time.Time
}

func NewRecorder(repo *HistoryRepo) *Recorder {
	return &Recorder{repo: repo, now: nowUTC}
}

// Observe subscribes the recorder to bus and returns the disposal handle.
func (r *Recorder) Observe(bus *session.Bus) (dispose func()) {
	offUpdate := bus.OnSessionUpdate(r.recordUpdate)
	offRemove := bus.OnRemove(r.recordRemove)
	return func() {
		offUpdate()
		offRemove()
	}
}

func (r *Recorder) recordUpdate(info session.Info) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	rec := &SessionRecord{
		ID:              info.ID,
		Title:           info.Title,
		Description:     info.Description,
		Command:         info.Command,
		Args:            info.Args,
		Workdir:         info.Workdir,
		ParentSessionID: info.ParentSessionID,
		Status:          string(info.Status),
		PID:             info.PID,
		ExitCode:        info.ExitCode,
		ExitSignal:      info.ExitSignal,
		LineCount:       info.LineCount,
		CreatedAt:       info.CreatedAt,
		UpdatedAt:       r.now(),
	}
	if err := r.repo.Upsert(ctx, rec); err != nil {
		slog.Warn("record session history failed", "session", info.ID, "error", err)
	}
}

func (r *Recorder) recordRemove(info session.Info) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.MarkRemoved(ctx, info.ID, r.now()); err != nil {
		slog.Warn("record session removal failed", "session", info.ID, "error", err)
	}
}
