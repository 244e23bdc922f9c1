// Package buffer stores PTY output in two shapes at once: the verbatim
// byte stream for terminal replay, and an incrementally built index of
// completed lines for pagination and search.
package buffer

import (
	"bytes"
	"regexp"
	"sync"
	"unicode/utf8"
)

// NoLimit makes Read return every line from offset to the end.
const NoLimit = -1

// Options bounds the memory an Output may hold. A zero value leaves the
// corresponding store unbounded.
type Options struct {
	// MaxLines ring-evicts the oldest completed lines once exceeded.
	MaxLines int
	// MaxBytes trims the raw store from the front once exceeded. The cut
	// never splits a UTF-8 sequence, so the store may end up slightly
	// smaller than MaxBytes.
	MaxBytes int
}

// Match is one search hit: the line's position in the index and its text.
type Match struct {
	Index int    `json:"index"`
	Line  string `json:"line"`
}

// Output is an append-only store of one session's output. It is safe for
// concurrent use: the PTY read loop appends while API handlers read.
type Output struct {
	mu      sync.RWMutex
	opts    Options
	raw     []byte
	lines   []string
	pending []byte
}

// New creates an empty Output.
func New(opts Options) *Output {
	if opts.MaxLines < 0 {
		opts.MaxLines = 0
	}
	if opts.MaxBytes < 0 {
		opts.MaxBytes = 0
	}
	return &Output{opts: opts}
}

// Append records chunk verbatim and folds every newline-terminated line
// into the index. A CR immediately before the LF is treated as part of
// the delimiter. Whatever follows the last LF stays pending.
func (o *Output) Append(chunk string) {
	if chunk == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.raw = append(o.raw, chunk...)
	if o.opts.MaxBytes > 0 && len(o.raw) > o.opts.MaxBytes {
		o.trimRaw()
	}

	data := []byte(chunk)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		var line []byte
		if len(o.pending) > 0 {
			line = append(o.pending, data[:i]...)
			o.pending = nil
		} else {
			line = data[:i]
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		o.pushLine(string(line))
		data = data[i+1:]
	}
	if len(data) > 0 {
		o.pending = append(o.pending, data...)
	}
}

// Flush commits the pending fragment as a final line. It is a no-op when
// nothing is pending.
func (o *Output) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.pending) == 0 {
		return
	}
	o.pushLine(string(o.pending))
	o.pending = nil
}

// trimRaw reslices the raw store down to MaxBytes, starting on a rune
// boundary. The dropped head is released the next time append has to grow
// the backing array, so trimming does not copy on every chunk. Must be
// called with mu held.
func (o *Output) trimRaw() {
	cut := len(o.raw) - o.opts.MaxBytes
	for cut < len(o.raw) && !utf8.RuneStart(o.raw[cut]) {
		cut++
	}
	o.raw = o.raw[cut:]
}

// pushLine must be called with mu held.
func (o *Output) pushLine(line string) {
	o.lines = append(o.lines, line)
	if o.opts.MaxLines > 0 && len(o.lines) > o.opts.MaxLines {
		excess := len(o.lines) - o.opts.MaxLines
		// Copy down so the evicted strings can be collected.
		n := copy(o.lines, o.lines[excess:])
		clear(o.lines[n:])
		o.lines = o.lines[:n]
	}
}

// Read returns lines [offset, offset+limit). A negative limit reads to the
// end; an offset past the end yields an empty slice.
func (o *Output) Read(offset, limit int) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(o.lines) {
		return []string{}
	}
	end := len(o.lines)
	if limit >= 0 && limit < end-offset {
		end = offset + limit
	}
	out := make([]string, end-offset)
	copy(out, o.lines[offset:end])
	return out
}

// Search scans every completed line and returns those matching re, in
// index order.
func (o *Output) Search(re *regexp.Regexp) []Match {
	o.mu.RLock()
	defer o.mu.RUnlock()

	matches := []Match{}
	if re == nil {
		return matches
	}
	for i, line := range o.lines {
		if re.MatchString(line) {
			matches = append(matches, Match{Index: i, Line: line})
		}
	}
	return matches
}

// ReadRaw returns the verbatim stream, pending fragment included.
func (o *Output) ReadRaw() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return string(o.raw)
}

// ByteLength is the size of ReadRaw in bytes.
func (o *Output) ByteLength() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.raw)
}

// Length is the number of completed lines.
func (o *Output) Length() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.lines)
}

// Clear discards the raw store, the line index and the pending fragment.
func (o *Output) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.raw = nil
	o.lines = nil
	o.pending = nil
}
