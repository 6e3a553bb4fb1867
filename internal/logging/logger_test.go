package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pooltemp/internal/config"
)

func TestNewWithWriter_ReleaseLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}
	logger := NewWithWriter(&buf, cfg, "1.2.3", "pooltemp-base")

	logger.Info("snapshot stored", "sensors", 2)
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "snapshot stored", rec["msg"])
	assert.Equal(t, "pooltemp-base", rec["app"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, 2.0, rec["sensors"])
}

func TestNewWithWriter_DevUsesTint(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}
	logger := NewWithWriter(&buf, cfg, "dev", "pooltemp-node")

	logger.Debug("frame sent", "bytes", 29)

	out := buf.String()
	assert.Contains(t, out, "frame sent")
	assert.Contains(t, out, "pooltemp-node")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}
