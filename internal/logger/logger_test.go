package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestZapLoggerWritesEventAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.WarnObj("full text fetch failed", "full_text_error", map[string]any{
		"url":   "https://example.com/a",
		"error": "timeout",
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "full text fetch failed", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "full_text_error", ctx["event"])
	assert.Equal(t, "https://example.com/a", ctx["url"])
	assert.Equal(t, "timeout", ctx["error"])
}

func TestEnsure(t *testing.T) {
	assert.IsType(t, NopLogger{}, Ensure(nil))

	core, _ := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core))
	assert.Same(t, l, Ensure(l))
}
