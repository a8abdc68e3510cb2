package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		level string
		dev   bool
		want  zapcore.Level
	}{
		{"debug", false, zapcore.DebugLevel},
		{"INFO", false, zapcore.InfoLevel},
		{"warning", false, zapcore.WarnLevel},
		{"error", false, zapcore.ErrorLevel},
		{"", false, zapcore.InfoLevel},
		{"", true, zapcore.DebugLevel},
		{"verbose", true, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFromString(tt.level, tt.dev), "levelFromString(%q, %v)", tt.level, tt.dev)
	}
}

func TestNewWithWriter_WritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, Config{Level: "info"})

	log.Info("account imported", zap.String("account_id", "acc-1"))
	log.Debug("suppressed")
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "account imported", entry["msg"])
	assert.Equal(t, "acc-1", entry["account_id"])
	assert.NotContains(t, buf.String(), "suppressed")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
