package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFansOutToBothWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelDebug)

	logger.Info("upload started", "jobId", "abc123")

	assert.Contains(t, stderr.String(), "upload started")
	assert.Contains(t, stderr.String(), "jobId=abc123")

	// The file side is structured JSON.
	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "upload started", entry["msg"])
	assert.Equal(t, "abc123", entry["jobId"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("noisy detail")
	logger.Warn("slow poll")

	assert.False(t, strings.Contains(file.String(), "noisy detail"))
	assert.Contains(t, file.String(), "slow poll")
}
