package pty

import "testing"

func TestKeySequence(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"Enter", "\r"},
		{"C-c", "\x03"},
		{"C-d", "\x04"},
		{"c-u", "\x15"},
		{"escape", "\x1b"},
		{" Esc ", "\x1b"},
		{"tab", "\t"},
		{"up", "\x1b[A"},
		{"down", "\x1b[B"},
		{"left", "\x1b[D"},
		{"right", "\x1b[C"},
		{"home", "\x1b[H"},
		{"backspace", "\x7f"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		result := KeySequence(tt.key)
		if result != tt.expected {
			t.Errorf("KeySequence(%q) = %q, want %q", tt.key, result, tt.expected)
		}
	}
}
