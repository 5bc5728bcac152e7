package main

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"keeps newlines and tabs", "a\n\tb", "a\n\tb"},
		{"strips escape sequences", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"strips bell and nul", "a\x07b\x00c", "abc"},
		{"strips skin tone", "\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"strips zwj and selectors", "❤️‍", "❤"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitize(tt.input); got != tt.want {
				t.Errorf("sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("line one\nline two", 8); got != "line on…" {
		t.Errorf("truncate multi-line = %q", got)
	}
}
