package buffer

import (
	"math"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAppendSplitsCompletedLines(t *testing.T) {
	o := New(Options{})
	o.Append("line1\r\nline2\r\nline3\r\n")

	if o.Length() != 3 {
		t.Fatalf("Length() = %d, want 3", o.Length())
	}
	got := o.Read(0, NoLimit)
	want := []string{"line1", "line2", "line3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Read() = %q, want %q", got, want)
	}
	if o.ReadRaw() != "line1\r\nline2\r\nline3\r\n" {
		t.Fatalf("ReadRaw() = %q", o.ReadRaw())
	}
	if o.ByteLength() != 21 {
		t.Fatalf("ByteLength() = %d, want 21", o.ByteLength())
	}
}

func TestAppendJoinsFragmentsAcrossChunks(t *testing.T) {
	o := New(Options{})
	o.Append("hel")
	o.Append("lo\r")
	if o.Length() != 0 {
		t.Fatalf("Length() = %d before delimiter, want 0", o.Length())
	}
	o.Append("\nwor")
	if got := o.Read(0, NoLimit); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Fatalf("Read() = %q, want [hello]", got)
	}
	if o.ReadRaw() != "hello\r\nwor" {
		t.Fatalf("ReadRaw() = %q, raw must include the pending fragment", o.ReadRaw())
	}
}

func TestFlushCommitsPendingFragment(t *testing.T) {
	o := New(Options{})
	o.Append("no delimiter here")
	before := o.Length()

	o.Flush()
	if o.Length() != before+1 {
		t.Fatalf("Length() = %d, want %d", o.Length(), before+1)
	}
	if got := o.Read(before, 1); !reflect.DeepEqual(got, []string{"no delimiter here"}) {
		t.Fatalf("committed line = %q", got)
	}

	o.Flush()
	if o.Length() != before+1 {
		t.Fatalf("second Flush() changed Length() to %d", o.Length())
	}
}

func TestAppendKeepsEscapeSequencesVerbatim(t *testing.T) {
	o := New(Options{})
	o.Append("\x1b[31mred\x1b[0m\n")
	if got := o.Read(0, 1); got[0] != "\x1b[31mred\x1b[0m" {
		t.Fatalf("line = %q, escape sequences must not be interpreted", got[0])
	}
}

func TestReadPagination(t *testing.T) {
	o := New(Options{})
	for i := 0; i < 5; i++ {
		o.Append(strings.Repeat("x", i) + "\n")
	}

	tests := []struct {
		name   string
		offset int
		limit  int
		want   int
	}{
		{"all", 0, NoLimit, 5},
		{"window", 1, 2, 2},
		{"clamped", 3, 10, 2},
		{"at end", 5, 1, 0},
		{"past end", 50, NoLimit, 0},
		{"zero limit", 0, 0, 0},
		{"negative offset", -3, 2, 2},
		{"max int limit", 1, math.MaxInt, 4},
		{"max int limit at end", 5, math.MaxInt, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.Read(tt.offset, tt.limit)
			if got == nil {
				t.Fatal("Read() returned nil, want empty slice")
			}
			if len(got) != tt.want {
				t.Fatalf("len(Read(%d, %d)) = %d, want %d", tt.offset, tt.limit, len(got), tt.want)
			}
		})
	}
}

func TestSearchReturnsAllMatchesInOrder(t *testing.T) {
	o := New(Options{})
	o.Append("ok\nerror: one\nok\nERROR two\nerror: three\n")

	got := o.Search(regexp.MustCompile(`(?i)error`))
	want := []Match{
		{Index: 1, Line: "error: one"},
		{Index: 3, Line: "ERROR two"},
		{Index: 4, Line: "error: three"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Search() = %+v, want %+v", got, want)
	}

	if none := o.Search(regexp.MustCompile(`panic`)); len(none) != 0 {
		t.Fatalf("Search(panic) = %+v, want none", none)
	}
}

func TestClearDiscardsEverything(t *testing.T) {
	o := New(Options{})
	o.Append("a\nb\npartial")
	o.Clear()

	if o.Length() != 0 || o.ByteLength() != 0 || o.ReadRaw() != "" {
		t.Fatalf("after Clear(): length=%d bytes=%d raw=%q", o.Length(), o.ByteLength(), o.ReadRaw())
	}
	o.Flush()
	if o.Length() != 0 {
		t.Fatal("Clear() must drop the pending fragment too")
	}
}

func TestMaxLinesEvictsOldest(t *testing.T) {
	o := New(Options{MaxLines: 3})
	o.Append("1\n2\n3\n4\n5\n")

	if got := o.Read(0, NoLimit); !reflect.DeepEqual(got, []string{"3", "4", "5"}) {
		t.Fatalf("Read() = %q, want [3 4 5]", got)
	}
	if o.ReadRaw() != "1\n2\n3\n4\n5\n" {
		t.Fatalf("MaxLines must not trim the raw store, got %q", o.ReadRaw())
	}
}

func TestMaxBytesTrimsRawFromFront(t *testing.T) {
	o := New(Options{MaxBytes: 4})
	o.Append("abc")
	o.Append("def\n")

	if o.ReadRaw() != "def\n" {
		t.Fatalf("ReadRaw() = %q, want %q", o.ReadRaw(), "def\n")
	}
	if o.ByteLength() != 4 {
		t.Fatalf("ByteLength() = %d, want 4", o.ByteLength())
	}
	if got := o.Read(0, NoLimit); !reflect.DeepEqual(got, []string{"abcdef"}) {
		t.Fatalf("line index must be unaffected by MaxBytes, got %q", got)
	}
}

func TestMaxBytesCutsOnRuneBoundary(t *testing.T) {
	o := New(Options{MaxBytes: 4})
	o.Append("a\u00e9")
	o.Append("bc\n")

	raw := o.ReadRaw()
	if !utf8.ValidString(raw) {
		t.Fatalf("ReadRaw() = %q starts inside a UTF-8 sequence", raw)
	}
	if raw != "bc\n" {
		t.Fatalf("ReadRaw() = %q, want %q", raw, "bc\n")
	}
}

func TestMaxBytesKeepsTailAcrossManyAppends(t *testing.T) {
	o := New(Options{MaxBytes: 8})
	for i := 0; i < 1000; i++ {
		o.Append("0123456789")
	}
	if o.ReadRaw() != "23456789" {
		t.Fatalf("ReadRaw() = %q, want the last 8 bytes", o.ReadRaw())
	}
}
