package app

import (
	"bytes"
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

func TestNewLogger_FormatSelection(t *testing.T) {
	t.Parallel()

	var jsonOut bytes.Buffer
	newLogger(&jsonOut, "info", "json", false).Info("auth.login.ok", "user_id", "2")
	if !strings.HasPrefix(jsonOut.String(), "{") || !strings.Contains(jsonOut.String(), `"msg":"auth.login.ok"`) {
		t.Fatalf("json output unexpected: %q", jsonOut.String())
	}

	var prettyOut bytes.Buffer
	newLogger(&prettyOut, "info", "pretty", false).Info("auth.login.ok", "user_id", "2")
	got := prettyOut.String()
	if !strings.Contains(got, "[INFO]") || !strings.Contains(got, "msg=auth.login.ok") || !strings.Contains(got, "user_id=2") {
		t.Fatalf("pretty output unexpected: %q", got)
	}
}

func TestNewLogger_LevelFilters(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	log := newLogger(&out, "warn", "json", false)
	log.Info("dropped")
	log.Warn("kept")
	if strings.Contains(out.String(), "dropped") || !strings.Contains(out.String(), "kept") {
		t.Fatalf("level filter not applied: %q", out.String())
	}
}
