package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, shutdown, err := NewLogger(false)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))

	debugLogger, _, err := NewLogger(true)
	require.NoError(t, err)
	assert.True(t, debugLogger.Enabled(context.Background(), slog.LevelDebug))
}

func TestFallbackLogger(t *testing.T) {
	assert.NotNil(t, FallbackLogger())
}
