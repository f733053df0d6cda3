package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludo-technologies/pyqc/internal/config"
)

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "WARN")
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"logger":"pyqc"`)
}

func TestNewWithWriter_InvalidLevel(t *testing.T) {
	_, err := NewWithWriter(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestVerbose(t *testing.T) {
	cfg := config.LoggingConfig{Level: "warn", Format: "json"}
	assert.Equal(t, "debug", Verbose(cfg, true).Level)
	assert.Equal(t, "warn", Verbose(cfg, false).Level)
	assert.Equal(t, "json", Verbose(cfg, true).Format)
}

func TestNewObserved(t *testing.T) {
	logger, logs := NewObserved()
	logger.Debug("recorded")
	assert.Equal(t, 1, logs.FilterMessage("recorded").Len())
}
