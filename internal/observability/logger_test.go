// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/webgym/webgym/internal/config"
)

func TestInitialize(t *testing.T) {
	t.Run("console format with colors", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "webgym-test",
			Colors:      config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, zapcore.AddSync(&buf))

		GetLogger().Info("evaluation started")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "evaluation started")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "webgym-test.")
	})

	t.Run("json format", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "webgym-test",
		}, zapcore.AddSync(&buf))

		GetLogger().Warn("slow backend response")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "slow backend response", entry["msg"])
	})

	t.Run("respects configured level", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))

		GetLogger().Info("should be filtered")
		GetLogger().Warn("should appear")

		output := buf.String()
		assert.NotContains(t, output, "should be filtered")
		assert.Contains(t, output, "should appear")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		ResetForTest()
		var buf bytes.Buffer

		Initialize(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))

		GetLogger().Debug("filtered at info")
		GetLogger().Info("kept at info")

		output := buf.String()
		assert.NotContains(t, output, "filtered at info")
		assert.Contains(t, output, "kept at info")
	})

	t.Run("initializes exactly once", func(t *testing.T) {
		ResetForTest()
		var first, second bytes.Buffer

		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
		Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))

		GetLogger().Info("routed to first writer")
		assert.Contains(t, first.String(), "routed to first writer")
		assert.Empty(t, second.String())
	})
}

func TestInitializeWithLogFile(t *testing.T) {
	ResetForTest()
	logFile := filepath.Join(t.TempDir(), "webgym.log")

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:   "info",
		Format:  "console",
		LogFile: logFile,
		MaxSize: 1,
	}, zapcore.AddSync(&buf))

	GetLogger().Info("persisted entry")
	Sync()

	data := readFile(t, logFile)
	assert.Contains(t, data, "persisted entry")
	// The file core always encodes JSON regardless of the console format.
	assert.True(t, strings.HasPrefix(strings.TrimSpace(data), "{"))
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger must be usable before Initialize")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
