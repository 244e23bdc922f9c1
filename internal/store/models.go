package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SessionRecord is one row of the session audit log. It outlives the
// in-memory session and is never used to restore one.
type SessionRecord struct {
	ID              string     `json:"id" yaml:"id"`
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description,omitempty" yaml:"description,omitempty"`
	Command         string     `json:"command" yaml:"command"`
	Args            []string   `json:"args" yaml:"args"`
	Workdir         string     `json:"workdir" yaml:"workdir"`
	ParentSessionID string     `json:"parentSessionId,omitempty" yaml:"parentSessionId,omitempty"`
	Status          string     `json:"status" yaml:"status"`
	PID             int        `json:"pid" yaml:"pid"`
	ExitCode        *int       `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	ExitSignal      *int       `json:"exitSignal,omitempty" yaml:"exitSignal,omitempty"`
	LineCount       int        `json:"lineCount" yaml:"lineCount"`
	CreatedAt       time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt" yaml:"updatedAt"`
	RemovedAt       *time.Time `json:"removedAt,omitempty" yaml:"removedAt,omitempty"`
}

type HistoryFilter struct {
	ParentSessionID string
	Status          string
	Limit           int
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

func encodeStringSlice(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	buf, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string slice: %w", err)
	}
	return string(buf), nil
}

func decodeStringSlice(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode string slice: %w", err)
	}
	return values, nil
}

func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
