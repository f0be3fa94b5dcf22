package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, ok := newLogHandler(&buf, "info", "pretty").(*prettyHandler); !ok {
		t.Fatalf("pretty format must use the pretty handler")
	}
	if _, ok := newLogHandler(&buf, "info", "json").(*slog.JSONHandler); !ok {
		t.Fatalf("json format must use the JSON handler")
	}
	if newLogHandler(&buf, "warn", "").Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
}
