package session

import (
	"log/slog"
	"regexp"

	"github.com/user/ptyhub/internal/buffer"
)

// Output shapes read, write and search calls against sessions located
// through a Registry. Unknown ids report ok=false.
type Output struct {
	reg *Registry
}

func NewOutput(reg *Registry) *Output {
	return &Output{reg: reg}
}

// Write sends data to the session's terminal. Writing to a process that
// has already exited succeeds as a no-op; only an unknown id fails.
func (o *Output) Write(id, data string) bool {
	s, ok := o.reg.Lookup(id)
	if !ok {
		return false
	}
	term, live := s.terminal()
	if !live {
		return true
	}
	if _, err := term.Write([]byte(data)); err != nil {
		slog.Debug("write to session ignored", "session", id, "error", err)
	}
	return true
}

// Read returns lines [offset, offset+limit) of the session's line index.
// A negative limit reads to the end.
func (o *Output) Read(id string, offset, limit int) (ReadResult, bool) {
	s, ok := o.reg.Lookup(id)
	if !ok {
		return ReadResult{}, false
	}
	if offset < 0 {
		offset = 0
	}
	lines := s.buffer.Read(offset, limit)
	total := s.buffer.Length()
	return ReadResult{
		Lines:      lines,
		TotalLines: total,
		Offset:     offset,
		HasMore:    offset+len(lines) < total,
	}, true
}

// Search matches pattern against every line and returns the page
// [offset, offset+limit) of the hits. A negative limit returns every hit
// from offset on.
func (o *Output) Search(id string, pattern *regexp.Regexp, offset, limit int) (SearchResult, bool) {
	s, ok := o.reg.Lookup(id)
	if !ok {
		return SearchResult{}, false
	}
	if offset < 0 {
		offset = 0
	}
	all := s.buffer.Search(pattern)
	page := paginate(all, offset, limit)
	return SearchResult{
		Matches:      page,
		TotalMatches: len(all),
		TotalLines:   s.buffer.Length(),
		Offset:       offset,
		HasMore:      offset+len(page) < len(all),
	}, true
}

// Raw returns the verbatim buffer of the session.
func (o *Output) Raw(id string) (RawBuffer, bool) {
	s, ok := o.reg.Lookup(id)
	if !ok {
		return RawBuffer{}, false
	}
	raw := s.buffer.ReadRaw()
	return RawBuffer{Raw: raw, ByteLength: len(raw)}, true
}

func paginate(all []buffer.Match, offset, limit int) []buffer.Match {
	if offset >= len(all) {
		return []buffer.Match{}
	}
	end := len(all)
	if limit >= 0 && limit < end-offset {
		end = offset + limit
	}
	return all[offset:end]
}
