package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestSetup_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "snapsync.log")

	log, closer, err := Setup(Options{Format: "json", File: path})
	require.NoError(t, err)
	log.Info("first run", "files", 3)
	require.NoError(t, closer.Close())

	log, closer, err = Setup(Options{Format: "json", File: path})
	require.NoError(t, err)
	log.Error("second run", "error", "boom")
	require.NoError(t, closer.Close())

	content, err := ReadLog(path)
	require.NoError(t, err)
	assert.Contains(t, content, `"msg":"first run"`)
	assert.Contains(t, content, `"msg":"second run"`)
	assert.Contains(t, content, `"level":"ERROR"`)
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapsync.log")

	log, closer, err := Setup(Options{Level: "info", File: path})
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, closer.Close())

	content, err := ReadLog(path)
	require.NoError(t, err)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "shown")
}

func TestSetup_NoFile(t *testing.T) {
	log, closer, err := Setup(Options{})
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.NoError(t, closer.Close())
}

func TestReadLog_Missing(t *testing.T) {
	_, err := ReadLog(filepath.Join(t.TempDir(), "nope.log"))
	assert.Error(t, err)
}
