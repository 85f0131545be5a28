package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-board-game-server/pkg/logger"
)

// TestContextAttributes 測試上下文中的房間與玩家自動帶入日誌
func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug", "json", false)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	ctx = logger.WithRoom(ctx, "room-1")
	ctx = logger.WithPlayer(ctx, "p1")
	log.InfoContext(ctx, "action applied", "seq", 7)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "room-1", entry["room_id"])
	assert.Equal(t, "p1", entry["player_id"])
	assert.Equal(t, float64(7), entry["seq"])
}

// TestParseLevel 測試日誌級別解析
func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.ParseLevel(tt.input))
		})
	}
}

// TestLevelFilter 測試低於級別的日誌被過濾
func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "warn", "text", false)

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
