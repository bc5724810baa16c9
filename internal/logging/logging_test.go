package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()

	assert.True(t, NewLogger("debug", "json").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("info", "json").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("error", "json").Enabled(ctx, slog.LevelWarn))

	assert.True(t, NewLogger("debug", "").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("warn", "").Enabled(ctx, slog.LevelInfo))
}
