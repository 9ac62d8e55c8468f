package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
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

func TestNewLogHandler_Formats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newLogHandler(&buf, "info", "", false)).Info("server.start", "addr", ":4000")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("default format should be JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "server.start" || rec["addr"] != ":4000" {
		t.Fatalf("unexpected record: %v", rec)
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "info", "text", false)).Info("server.start")
	if !strings.Contains(buf.String(), "msg=server.start") {
		t.Fatalf("text format: %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "info", "pretty", false)).Info("server.start")
	if !strings.Contains(buf.String(), "[INFO] server.start") {
		t.Fatalf("pretty format: %q", buf.String())
	}

	buf.Reset()
	slog.New(newLogHandler(&buf, "error", "json", false)).Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("level filter ignored: %q", buf.String())
	}
}
