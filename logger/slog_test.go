package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlogLevelRoundTrip(t *testing.T) {
	require := require.New(t)

	l := NewSlog(InfoLevel, false)
	require.Equal(InfoLevel, l.Level())

	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, l.Level())

	l.SetLevel(ErrorLevel)
	require.Equal(ErrorLevel, l.Level())
}

func TestSlogWithKeepsLevel(t *testing.T) {
	require := require.New(t)

	l := NewSlog(WarnLevel, false)
	child := l.With("transport", "serial")
	require.Equal(WarnLevel, child.Level())

	// the level var is shared, not copied
	l.SetLevel(DebugLevel)
	require.Equal(DebugLevel, child.Level())
}

func TestSlogLevelConversion(t *testing.T) {
	require := require.New(t)

	require.Equal(slog.LevelDebug, toSlogLevel(DebugLevel))
	require.Equal(slog.LevelInfo, toSlogLevel(InfoLevel))
	require.Equal(slog.LevelWarn, toSlogLevel(WarnLevel))
	require.Equal(slog.LevelError, toSlogLevel(ErrorLevel))
	require.Equal(slog.LevelError, toSlogLevel(FatalLevel))

	require.Equal(DebugLevel, fromSlogLevel(slog.LevelDebug))
	require.Equal(ErrorLevel, fromSlogLevel(slog.LevelError))
}
