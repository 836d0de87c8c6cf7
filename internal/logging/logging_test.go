package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(verbose bool) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapLogger(zap.New(core), verbose), logs
}

func TestZapLogger_Verbose_WhenEnabled(t *testing.T) {
	logger, logs := observed(true)

	logger.Verbose("test message: %s", "value")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "test message: value", entry.Message)
}

func TestZapLogger_Verbose_WhenDisabled(t *testing.T) {
	logger, logs := observed(false)

	logger.Verbose("test message: %s", "value")

	assert.Equal(t, 0, logs.Len())
}

func TestZapLogger_InfoAndError(t *testing.T) {
	logger, logs := observed(false)

	logger.Info("info message: %s", "value")
	logger.Error("disk full")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "info message: value", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].Message)
}

func TestZapLogger_WithAddsFields(t *testing.T) {
	logger, logs := observed(false)

	logger.With(zap.String("attempt_id", "abc")).Info("connecting")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "abc", logs.All()[0].ContextMap()["attempt_id"])
}

func TestZapLogger_ConcurrentSafety(t *testing.T) {
	logger, logs := observed(true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.Info("message %d", id)
			logger.Verbose("verbose %d", id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, logs.Len())
}

func TestNewZapLogger_NilIsNop(t *testing.T) {
	logger := NewZapLogger(nil, true)
	assert.NotPanics(t, func() { logger.Info("dropped") })
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		logger, err := New(Config{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("IAMCONN_LOG_LEVEL", "warn")
	t.Setenv("IAMCONN_LOG_FORMAT", "")

	cfg := FromEnv()
	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
}

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("IAMCONN_LOG_LEVEL", "warn")
	t.Setenv("IAMCONN_LOG_FORMAT", "")

	cfg := Resolve(Config{Level: "debug"}, Config{Level: "error", Format: "json"})
	assert.Equal(t, "debug", cfg.Level, "flag beats env")
	assert.Equal(t, "json", cfg.Format, "file beats default")

	cfg = Resolve(Config{}, Config{Level: "error"})
	assert.Equal(t, "warn", cfg.Level, "env beats file")
}

func TestNullLogger(t *testing.T) {
	logger := NewNullLogger()
	assert.NotPanics(t, func() {
		logger.Verbose("a %d", 1)
		logger.Info("b")
		logger.Error("c")
	})
}
