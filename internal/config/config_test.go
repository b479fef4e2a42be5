package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "claude", cfg.Backend.Type)
	assert.Equal(t, 30*time.Second, cfg.Loop.Interval())
	assert.Equal(t, 5, cfg.Loop.AuditEvery)
	assert.Equal(t, 1, cfg.Loop.MaxRetries)
	assert.Equal(t, time.Second, cfg.Loop.RetryDelay())
	assert.True(t, cfg.Worker.Reconsider)
	assert.Equal(t, 70, cfg.Worker.ReassessThreshold)
	assert.Equal(t, 50, cfg.Escalation.GapCeiling)
	assert.Equal(t, time.Minute, cfg.Reaper.Grace())
	assert.Equal(t, 500, cfg.Retention.KeepLast)
	assert.Equal(t, "127.0.0.1:7373", cfg.Web.Addr)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"backend": {"type": "openai", "model": "gpt-test", "base_url": "http://127.0.0.1:8000/v1"},
		"loop": {"interval_seconds": 5, "max_retries": 3}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Backend.Type)
	assert.Equal(t, "gpt-test", cfg.Backend.Model)
	assert.Equal(t, 5*time.Second, cfg.Loop.Interval())
	assert.Equal(t, 3, cfg.Loop.MaxRetries)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Loop.AuditEvery)
	assert.Equal(t, 70, cfg.Worker.ReassessThreshold)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"bakend": {"type": "claude"}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestLoadRejectsUnknownBackendType(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"backend": {"type": "crystal-ball"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"backend": `)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDurationFallbacks(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Minute, BackendConfig{}.Timeout())
	assert.Equal(t, 90*time.Second, BackendConfig{TimeoutSeconds: 90}.Timeout())
	assert.Equal(t, 30*time.Second, LoopConfig{}.Interval())
	assert.Equal(t, time.Second, LoopConfig{}.RetryDelay())
	assert.Equal(t, 250*time.Millisecond, LoopConfig{RetryDelayMs: 250}.RetryDelay())
	assert.Equal(t, time.Minute, ReaperConfig{}.Grace())
	assert.Equal(t, 30*time.Second, ReaperConfig{}.Interval())
}
