package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel)
	logger.SetConsoleOutput(&buf)

	logger.Info("server starting", map[string]interface{}{
		"system": "lms",
		"port":   8000,
	})

	got := buf.String()
	want := "[INFO] server starting port=8000 system=lms\n"
	if got != want {
		t.Errorf("console line = %q, want %q", got, want)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel)
	logger.SetConsoleOutput(&buf)

	logger.Debug("not shown")
	logger.Info("not shown either")
	logger.Warn("shown")
	logger.Error("also shown")

	got := buf.String()
	if strings.Contains(got, "not shown") {
		t.Errorf("low-severity lines leaked: %q", got)
	}
	if !strings.Contains(got, "[WARN] shown") || !strings.Contains(got, "[ERROR] also shown") {
		t.Errorf("expected warn and error lines, got %q", got)
	}
}

func TestLoggerFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel)
	logger.SetConsoleOutput(&buf)

	logger.Debug("msg", map[string]interface{}{"z": 1, "a": 2, "m": 3})

	got := buf.String()
	want := "[DEBUG] msg a=2 m=3 z=1\n"
	if got != want {
		t.Errorf("console line = %q, want %q", got, want)
	}
}

func TestLoggerWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel)
	logger.SetConsoleOutput(&buf)

	lc := logger.With(map[string]interface{}{"system": "studio"})
	lc.Info("assets updated", map[string]interface{}{"duration_ms": 120})

	got := buf.String()
	if !strings.Contains(got, "system=studio") || !strings.Contains(got, "duration_ms=120") {
		t.Errorf("expected context and call fields, got %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"info", InfoLevel, false},
		{"WARN", WarnLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
