package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/helixml/modelprep/internal/config"
)

func TestNewLogger_FromConfig(t *testing.T) {
	cfg := config.NewAppConfigWithOptions(
		config.WithLogLevel("DEBUG"),
		config.WithLogFormat(config.LogFormatJSON),
	)

	logger := NewLogger(cfg)
	if logger == nil || logger.Slog() == nil {
		t.Fatal("NewLogger should return a usable logger")
	}
	if !logger.Slog().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "WARN")

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	for i, line := range lines {
		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

	ctx := WithRun(context.Background(), "run-123", "cmlm-en-base")
	logger.InfoContext(ctx, "Downloading model...")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if data["run_id"] != "run-123" {
		t.Errorf("expected run_id=run-123, got %v", data["run_id"])
	}
	if data["model"] != "cmlm-en-base" {
		t.Errorf("expected model=cmlm-en-base, got %v", data["model"])
	}
}

func TestLogger_WithContext_Empty(t *testing.T) {
	logger := NewLoggerWithWriter(&bytes.Buffer{}, config.LogFormatJSON, "INFO")
	if logger.WithContext(context.Background()) != logger {
		t.Error("WithContext without run values should return the same logger")
	}
}

func TestRunAccessors(t *testing.T) {
	ctx := context.Background()
	if RunID(ctx) != "" || Model(ctx) != "" {
		t.Error("expected empty values on bare context")
	}

	ctx = WithRun(ctx, "abc", "m")
	if RunID(ctx) != "abc" {
		t.Errorf("RunID() = %q, want abc", RunID(ctx))
	}
	if Model(ctx) != "m" {
		t.Errorf("Model() = %q, want m", Model(ctx))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigure_SetsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := Configure(config.NewAppConfig())
	if slog.Default() != logger.Slog() {
		t.Error("Configure should install the logger as slog default")
	}
}
