package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_ComponentAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).WithComponent("bus").WithField("type", "Ping")

	log.Warn("handler %s failed", "h1")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "handler h1 failed", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "bus", ctx["component"])
	assert.Equal(t, "Ping", ctx["type"])
}

func TestLogger_WithFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := FromZap(zap.New(core)).WithFields(map[string]any{"a": 1, "b": "x"})

	log.Debug("dropped")
	log.Info("kept")

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.EqualValues(t, 1, ctx["a"])
	assert.Equal(t, "x", ctx["b"])
}

func TestNew_BuildsBothFormats(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		log, err := New(Config{Level: "debug", Format: format})
		require.NoError(t, err)
		log.SetLevel("error")
		log.Info("quiet")
	}
	Nop().Error("discarded")
}
