package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/rowindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBufferLogger(t *testing.T, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = format
	cfg.Output = &buf
	cfg.Sampling.Enabled = false
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Info(context.Background(), "rebuild started", zap.Int("batch_size", 5000))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "rebuild started", lines[0]["msg"])
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "rowindex", lines[0]["service"])
	assert.EqualValues(t, 5000, lines[0]["batch_size"])
}

func TestNewLogger_ConsoleOutput(t *testing.T) {
	logger, buf := newBufferLogger(t, "console")

	logger.Warn(context.Background(), "failed to delete collection")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "failed to delete collection")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Output = &buf
	cfg.Level = zapcore.WarnLevel
	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["msg"])
	assert.Equal(t, "error", lines[1]["msg"])
	assert.False(t, logger.Enabled(zapcore.InfoLevel))
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	ctx := WithRunID(context.Background(), "run-1")

	tests := []struct {
		name  string
		log   func(string)
		level zapcore.Level
	}{
		{"trace", func(m string) { logger.Trace(ctx, m) }, TraceLevel},
		{"debug", func(m string) { logger.Debug(ctx, m) }, zapcore.DebugLevel},
		{"info", func(m string) { logger.Info(ctx, m) }, zapcore.InfoLevel},
		{"warn", func(m string) { logger.Warn(ctx, m) }, zapcore.WarnLevel},
		{"error", func(m string) { logger.Error(ctx, m) }, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observed.TakeAll()
			tt.log(tt.name + " message")

			logs := observed.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, "run-1", logs[0].ContextMap()["run.id"])
		})
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	parent := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	child := parent.Named("rebuild").With(zap.String("collection", "powerbi"))
	child.Info(context.Background(), "child")
	parent.Info(context.Background(), "parent")

	logs := observed.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "rebuild", logs[0].LoggerName)
	assert.Equal(t, "powerbi", logs[0].ContextMap()["collection"])
	assert.Empty(t, logs[1].LoggerName)
	assert.NotContains(t, logs[1].ContextMap(), "collection")
}

func TestLogger_Underlying(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.Underlying().Info("from component", zap.String("stage", "populate"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "populate", lines[0]["stage"])
}

func TestLogger_UnderlyingCallerPointsAtComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Output = &buf
	cfg.Caller.Enabled = true
	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	logger.Underlying().Info("direct")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0]["caller"], "logger_test.go")
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "trace", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "json", cfg.Format)

	cfg, err = FromSettings(config.LoggingConfig{})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = FromSettings(config.LoggingConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "text" }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"negative rate", func(c *Config) {
			c.Sampling.Levels[zapcore.InfoLevel] = LevelSamplingConfig{Initial: -1}
		}},
		{"negative caller skip", func(c *Config) { c.Caller.Enabled = true; c.Caller.Skip = -1 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"long pattern", func(c *Config) { c.Redaction.Patterns = []string{strings.Repeat("a", maxPatternLen+1)} }},
		{"empty field key", func(c *Config) { c.Fields[""] = "x" }},
		{"empty field value", func(c *Config) { c.Fields["env"] = "" }},
	}

	require.NoError(t, NewDefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLevelFromString(t *testing.T) {
	for in, want := range map[string]zapcore.Level{
		"trace": TraceLevel,
		"TRACE": TraceLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		got, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := LevelFromString("verbose")
	assert.Error(t, err)
}
