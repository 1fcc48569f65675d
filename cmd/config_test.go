package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "subshift", configBaseName)
	assert.Equal(t, "subshift.yaml", configFileName)
	assert.Equal(t, ".", configFolderPath)
	assert.Equal(t, "report", reportFlagName)
	assert.Equal(t, "exclude", excludeFlagName)
	assert.Equal(t, "recursive", recursiveFlagName)
	assert.Equal(t, "parallel", parallelFlagName)
	assert.Equal(t, "run.parallel", parallelConfigKey)
	assert.Equal(t, "paths.exclude", excludeConfigKey)
	assert.Equal(t, "paths.recursive", recursiveConfigKey)
	assert.Equal(t, "migrate.backup", backupConfigKey)
	assert.Equal(t, ".subshift-report.json", defaultReportPath)
	assert.Equal(t, 1, defaultParallel)
	assert.Equal(t, true, defaultRecursive)
	assert.Equal(t, false, defaultBackup)
	assert.Equal(t, "SUBSHIFT", envPrefix)
}

func TestConfigVersionConstants(t *testing.T) {
	assert.Equal(t, "version", configVersionKey)
	assert.Equal(t, 1, currentConfigVersion)
}

func TestParseSlogLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{"empty falls back", "", slog.LevelWarn},
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"mixed case and spaces", "  Error  ", slog.LevelError},
		{"numeric", "-4", slog.LevelDebug},
		{"numeric zero", "0", slog.LevelInfo},
		{"garbage falls back", "loud", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSlogLevel(tt.value, slog.LevelWarn))
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	configureLogger(logPath, true)
	require.NotNil(t, globalLogger)
	assert.True(t, globalLogger.Enabled(context.Background(), slog.LevelDebug))

	configureLogger(logPath, false)
	require.NotNil(t, globalLogger)
	assert.False(t, globalLogger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, globalLogger.Enabled(context.Background(), slog.LevelInfo))
}
