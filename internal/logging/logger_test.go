package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alertengine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLineIsColoredByLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "debug", Format: "line"},
	}, &out)
	require.NoError(t, err)
	defer closeFn()

	logger.Warn("retrying remote call", "op", "notify")
	line := out.String()
	assert.True(t, strings.HasPrefix(line, ansiYellow), "line %q", line)
	assert.Contains(t, line, "op=notify")
	assert.NotContains(t, line, "time=", "console line must omit time")
}

func TestTeeWritesConsoleAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "engine.log")
	var out bytes.Buffer
	logger, closeFn, err := newWithConsole(config.LogConfig{
		Console: config.LogSinkConfig{Enabled: true, Level: "error", Format: "json"},
		File:    config.LogSinkConfig{Enabled: true, Level: "info", Format: "json", Path: path},
	}, &out)
	require.NoError(t, err)

	logger.With("component", "watcher").Info("transition", "alert", "cpu")
	closeFn()

	assert.Zero(t, out.Len(), "console sink must filter info records, got %q", out.String())
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(body), &record))
	assert.Equal(t, "watcher", record["component"])
	assert.Equal(t, "cpu", record["alert"])
}

func TestNewRejectsBadSinks(t *testing.T) {
	t.Parallel()

	_, _, err := New(config.LogConfig{})
	assert.Error(t, err, "no sinks")

	_, _, err = New(config.LogConfig{Console: config.LogSinkConfig{Enabled: true, Level: "loud", Format: "line"}})
	assert.Error(t, err, "bad level")

	_, _, err = New(config.LogConfig{Console: config.LogSinkConfig{Enabled: true, Level: "info", Format: "xml"}})
	assert.Error(t, err, "bad format")
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	OrDiscard(nil).Error("dropped")
	assert.False(t, OrDiscard(nil).Enabled(t.Context(), 100))
}
