package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Info("scenario failed", "error", errors.New("boom"))

	assert.Contains(t, buf.String(), "err=boom")
	assert.NotContains(t, buf.String(), "error=boom")
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		level   slog.Level
		enabled bool
	}{
		{in: "", enabled: false},
		{in: "off", enabled: false},
		{in: "DEBUG", level: slog.LevelDebug, enabled: true},
		{in: "info", level: slog.LevelInfo, enabled: true},
		{in: "warning", level: slog.LevelWarn, enabled: true},
		{in: "error", level: slog.LevelError, enabled: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			level, enabled, err := ParseLevel(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
			if tc.enabled {
				assert.Equal(t, tc.level, level)
			}
		})
	}

	_, _, err := ParseLevel("loud")
	assert.Error(t, err)
}
