package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_NoColor(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(NewHandler(&out, &Options{Level: slog.LevelDebug, TimeFormat: "15:04", NoColor: true}))

	ctx := ContextWithRequestID(context.Background(), 77)
	log.With("chat", "c1").WithGroup("turn").ErrorContext(ctx, "Turn failed", Err(errors.New("boom")))

	line := out.String()
	assert.Contains(t, line, "77 ")
	assert.Contains(t, line, "ERROR")
	assert.Contains(t, line, "| Turn failed")
	assert.Contains(t, line, "chat=c1")
	assert.Contains(t, line, "turn.err=boom")
	assert.NotContains(t, line, "\u001b[")
}

func TestHandler_Level(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(NewHandler(&out, &Options{Level: slog.LevelWarn, NoColor: true}))

	log.Info("hidden")
	require.Empty(t, out.String())
	log.Warn("shown")
	require.Contains(t, out.String(), "WARN")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
