package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatPushLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"error","time":"2026-03-10T09:00:00Z","message":"send failed","job":"j1"}`
	got := formatPushLine([]byte(line))
	if !strings.HasPrefix(got, "[ERROR] send failed") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "job=j1") {
		t.Fatalf("fields missing: %q", got)
	}

	// Non-JSON input falls back to the raw line.
	if got := formatPushLine([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("got %q (len %d)", got, len(got))
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("does nothing", String("k", "v"))
	l.With(Int("n", 1)).Error("still nothing")
}
