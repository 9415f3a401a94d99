package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TextFormat_WritesSanitizedMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "text", Output: &buf})

	logger.Info("processing", "api_key", "sk-1234567890abcdefghijklmnop")

	out := buf.String()
	assert.Contains(t, out, "processing")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "sk-1234567890abcdefghijklmnop")
}

func TestNew_JSONFormat_ProducesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("hello", "key", "value")

	out := buf.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	assert.Contains(t, out, "hello")
}

func TestNew_NilOutput_DefaultsToStdout(t *testing.T) {
	logger := New(Config{Level: "info", Format: "text", Output: nil})
	require.NotNil(t, logger)
}

func TestNew_AutoFormat_NonTerminalFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "auto", Output: &buf})

	logger.Info("hello")

	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "text", Output: &buf})

	logger.Info("should not appear")
	assert.Empty(t, buf.String())

	logger.Warn("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestLogger_WithTask_AttachesTaskID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithTask("task-1").Info("running")

	assert.Contains(t, buf.String(), "task-1")
	assert.Contains(t, buf.String(), "task_id")
}

func TestLogger_WithRun_AttachesRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithRun("run-42").Info("running")

	assert.Contains(t, buf.String(), "run-42")
	assert.Contains(t, buf.String(), "run_id")
}

func TestLogger_WithContext_ReturnsSameLogger(t *testing.T) {
	logger := New(DefaultConfig())
	got := logger.WithContext(context.Background())
	assert.Same(t, logger, got)
}

func TestLogger_Sanitize_DelegatesToSanitizer(t *testing.T) {
	logger := New(DefaultConfig())
	out := logger.Sanitize("key=sk-1234567890abcdefghijklmnop")
	assert.Contains(t, out, "[REDACTED]")
}

func TestNewNop_DoesNotPanicAndDiscardsOutput(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"unknown": "INFO",
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input).String(), "parseLevel(%q)", input)
	}
}

func TestIsTerminal_NonFileWriter_ReturnsFalse(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))
}

func TestSanitizingHandler_RedactsAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	grouped := logger.Logger.WithGroup("request")
	grouped.Info("test", "api_key", `api_key="sk-1234567890abcdefghijklmnop"`)

	out := buf.String()
	assert.NotContains(t, out, "sk-1234567890abcdefghijklmnop")
	assert.Contains(t, out, "[REDACTED]")
}

func TestPrettyHandler_WritesLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, parseLevel("debug"))
	logger := slog.New(handler)

	logger.Info("request handled", "task_id", "task-7")

	out := buf.String()
	assert.Contains(t, out, "request handled")
	assert.Contains(t, out, "task_id=task-7")
}

func TestPrettyHandler_WithAttrsCarriesOverToChildRecords(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, parseLevel("info")).WithAttrs([]slog.Attr{slog.String("run_id", "run-1")})
	logger := slog.New(handler)

	logger.Info("started")

	assert.Contains(t, buf.String(), "run_id=run-1")
}
