package pkg

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swapLogger(t *testing.T, logger *slog.Logger) {
	t.Helper()
	original := DefaultLogger
	t.Cleanup(func() { SetLogger(original) })
	SetLogger(logger)
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		t.Run(level.String(), func(t *testing.T) {
			SetLogLevel(level)
			assert.Equal(t, level, GetLogLevel())
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		name string
		want LogFormat
	}{
		{"json", LogFormatJSON},
		{"console", LogFormatConsole},
		{"color", LogFormatConsole},
		{"text", LogFormatText},
		{"", LogFormatText},
		{"bogus", LogFormatText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogFormat(tt.name))
		})
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, nil)
	require.NotNil(t, logger)

	logger.Warn("test message")
	assert.Contains(t, buf.String(), `"msg":"test message"`)
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, &tint.Options{NoColor: true})
	require.NotNil(t, logger)

	logger.Info("console message", "gain", "2.000")
	assert.Contains(t, buf.String(), "console message")
	assert.Contains(t, buf.String(), "gain=2.000")
}

func TestLogComponents(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)
	SetLogLevel(slog.LevelDebug)

	tests := []struct {
		name      string
		log       func(Component, string, ...any)
		component Component
	}{
		{"debug", LogDebug, ComponentDSP},
		{"info", LogInfo, ComponentNet},
		{"warn", LogWarn, ComponentRing},
		{"error", LogError, ComponentHAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			swapLogger(t, NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			tt.log(tt.component, tt.name+" message", "key", "value")
			out := buf.String()
			assert.Contains(t, out, tt.name+" message")
			assert.Contains(t, out, "component="+string(tt.component))
			assert.Contains(t, out, "key=value")
		})
	}
}

func TestLogLevelFilters(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)
	SetLogLevel(slog.LevelWarn)

	var buf bytes.Buffer
	swapLogger(t, NewLogger(&buf, nil))

	LogInfo(ComponentUSB, "hidden")
	LogWarn(ComponentUSB, "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
