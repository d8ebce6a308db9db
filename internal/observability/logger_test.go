// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/halcyonsec/scangate/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitialize(t *testing.T) {
	t.Run("console format", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "scangate-test",
		}, buf)

		GetLogger().Info("Scan completed.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "Scan completed.")
		assert.Contains(t, out, "scangate-test")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "scangate-test",
		}, buf)

		GetLogger().Warn("Gate warning.", zap.String("repository", "acme/shop"))
		Sync()

		out := buf.String()
		assert.Contains(t, out, `"repository":"acme/shop"`)
		assert.Contains(t, out, "Gate warning.")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "loud", Format: "json"}, buf)

		GetLogger().Debug("hidden")
		GetLogger().Info("visible")
		Sync()

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "visible")
	})

	t.Run("second initialize is a no-op", func(t *testing.T) {
		ResetForTest()
		first := &syncBuffer{}
		second := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, first)
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, second)

		GetLogger().Info("routed")
		Sync()

		assert.Contains(t, first.String(), "routed")
		assert.Empty(t, second.String())
	})
}

func TestInitializeFileSink(t *testing.T) {
	ResetForTest()
	buf := &syncBuffer{}
	logFile := filepath.Join(t.TempDir(), "scangate.log")

	Initialize(config.LoggerConfig{
		Level:   "info",
		Format:  "console",
		LogFile: logFile,
		MaxSize: 1,
	}, buf)

	GetLogger().Info("Persisted entry.")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Persisted entry.", "the file sink receives every entry as JSON")
	assert.Contains(t, buf.String(), "Persisted entry.", "the console sink still receives it")
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger, "callers always get a usable logger")
}

func TestNewEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "m"}

	consoleOut, err := newEncoder("console").EncodeEntry(entry, nil)
	require.NoError(t, err)
	jsonOut, err := newEncoder("json").EncodeEntry(entry, nil)
	require.NoError(t, err)

	assert.NotEqual(t, consoleOut.String(), jsonOut.String())
	assert.Contains(t, jsonOut.String(), `"msg":"m"`)
}
