package pty

import "errors"

// Default terminal geometry used when Options leaves Cols/Rows unset.
const (
	DefaultCols uint16 = 120
	DefaultRows uint16 = 30
)

var (
	// ErrExited is returned by operations that need a live child process.
	ErrExited = errors.New("pty: process has exited")
	// ErrAttached is returned when Attach is called more than once.
	ErrAttached = errors.New("pty: handlers already attached")
)

// Options describes the child process to launch inside a PTY.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Env is the complete environment of the child. Nil inherits the
	// server's environment.
	Env  []string
	Cols uint16
	Rows uint16
}

// ExitStatus describes how the child process terminated. Signal is zero
// when the process exited normally.
type ExitStatus struct {
	Code   int
	Signal int
}

// Handlers receive everything a Process produces. OnData is called once per
// chunk read from the PTY, in order, from a single goroutine. OnExit is
// called exactly once, after the last OnData.
type Handlers struct {
	OnData func(data string)
	OnExit func(status ExitStatus)
}
