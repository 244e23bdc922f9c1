package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const historyColumns = `id, title, description, command, args, workdir, parent_session_id, status, pid, exit_code, exit_signal, line_count, created_at, updated_at, removed_at`

type HistoryRepo struct {
	db *sql.DB
}

func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Upsert inserts rec or refreshes the mutable columns of an existing row.
// The identity columns and created_at are written once.
func (r *HistoryRepo) Upsert(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("session record id cannot be empty")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = nowUTC()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	args, err := encodeStringSlice(rec.Args)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO session_history (id, title, description, command, args, workdir, parent_session_id, status, pid, exit_code, exit_signal, line_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	pid = excluded.pid,
	exit_code = excluded.exit_code,
	exit_signal = excluded.exit_signal,
	line_count = excluded.line_count,
	updated_at = excluded.updated_at
`, rec.ID, rec.Title, rec.Description, rec.Command, args, rec.Workdir, nullIfEmpty(rec.ParentSessionID), rec.Status, rec.PID, nullInt(rec.ExitCode), nullInt(rec.ExitSignal), rec.LineCount, formatTimestamp(rec.CreatedAt), formatTimestamp(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session history %q: %w", rec.ID, err)
	}
	return nil
}

// MarkRemoved stamps removed_at on an existing row. Unknown ids are not an
// error.
func (r *HistoryRepo) MarkRemoved(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE session_history SET removed_at = ?, updated_at = ? WHERE id = ? AND removed_at IS NULL
`, formatTimestamp(at), formatTimestamp(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark session %q removed: %w", id, err)
	}
	return nil
}

func (r *HistoryRepo) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM session_history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session history %q: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first.
func (r *HistoryRepo) List(ctx context.Context, filter HistoryFilter) ([]*SessionRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM session_history`
	args := []any{}
	where := []string{}

	if filter.ParentSessionID != "" {
		where = append(where, "parent_session_id = ?")
		args = append(args, filter.ParentSessionID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list session history: %w", err)
	}
	defer rows.Close()

	records := []*SessionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session history: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating session history: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var parent, removedAtRaw sql.NullString
	var exitCode, exitSignal sql.NullInt64
	var argsRaw, createdAtRaw, updatedAtRaw string

	if err := s.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Command, &argsRaw, &rec.Workdir, &parent, &rec.Status, &rec.PID, &exitCode, &exitSignal, &rec.LineCount, &createdAtRaw, &updatedAtRaw, &removedAtRaw); err != nil {
		return nil, err
	}

	var err error
	if rec.Args, err = decodeStringSlice(argsRaw); err != nil {
		return nil, err
	}
	rec.ParentSessionID = parent.String
	rec.ExitCode = intPtr(exitCode)
	rec.ExitSignal = intPtr(exitSignal)
	if rec.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
		return nil, err
	}
	if removedAtRaw.Valid {
		removedAt, err := parseTimestamp(removedAtRaw.String)
		if err != nil {
			return nil, err
		}
		rec.RemovedAt = &removedAt
	}
	return &rec, nil
}
