package session

import (
	"errors"
	"time"

	"github.com/user/ptyhub/internal/buffer"
	"github.com/user/ptyhub/internal/pty"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Status string

const (
	StatusRunning Status = "running"
	StatusKilling Status = "killing"
	StatusKilled  Status = "killed"
	StatusExited  Status = "exited"
)

// Terminal returns true for statuses no transition can leave.
func (s Status) Terminal() bool {
	return s == StatusKilled || s == StatusExited
}

// SpawnOptions is what a caller supplies to create a session.
type SpawnOptions struct {
	Command         string            `json:"command"`
	Args            []string          `json:"args,omitempty"`
	Title           string            `json:"title,omitempty"`
	Description     string            `json:"description,omitempty"`
	Workdir         string            `json:"workdir,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	ParentSessionID string            `json:"parentSessionId,omitempty"`
	NotifyOnExit    bool              `json:"notifyOnExit,omitempty"`
}

// Info is the externally safe projection of a session. It is built fresh
// on every read and never shares mutable state with the record.
type Info struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Command         string    `json:"command"`
	Args            []string  `json:"args"`
	Workdir         string    `json:"workdir"`
	ParentSessionID string    `json:"parentSessionId,omitempty"`
	Status          Status    `json:"status"`
	ExitCode        *int      `json:"exitCode,omitempty"`
	ExitSignal      *int      `json:"exitSignal,omitempty"`
	PID             int       `json:"pid"`
	CreatedAt       time.Time `json:"createdAt"`
	LineCount       int       `json:"lineCount"`
}

// ReadResult is a page of completed lines.
type ReadResult struct {
	Lines      []string `json:"lines"`
	TotalLines int      `json:"totalLines"`
	Offset     int      `json:"offset"`
	HasMore    bool     `json:"hasMore"`
}

// SearchResult is a page of search hits over the whole line index.
type SearchResult struct {
	Matches      []buffer.Match `json:"matches"`
	TotalMatches int            `json:"totalMatches"`
	TotalLines   int            `json:"totalLines"`
	Offset       int            `json:"offset"`
	HasMore      bool           `json:"hasMore"`
}

// RawBuffer is a verbatim replay of a session's output.
type RawBuffer struct {
	Raw        string `json:"raw"`
	ByteLength int    `json:"byteLength"`
}

// ExitEvent is published once per registered session when its process
// terminates.
type ExitEvent struct {
	Session      Info
	ExitCode     int
	NotifyOnExit bool
	// LastLine is the last non-blank line of output, verbatim.
	LastLine string
}

// Terminal is the process handle a session owns. *pty.Process satisfies it.
type Terminal interface {
	Attach(h pty.Handlers) error
	Write(data []byte) (int, error)
	Resize(cols, rows uint16) error
	Kill() error
	Pid() int
}

// Launcher starts the OS process behind a session.
type Launcher interface {
	Launch(opts pty.Options) (Terminal, error)
}

// PTYLauncher launches real pseudo-terminals.
type PTYLauncher struct{}

func (PTYLauncher) Launch(opts pty.Options) (Terminal, error) {
	p, err := pty.Start(opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
