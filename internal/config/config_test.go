// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)

	assert.Equal(t, 10*time.Second, cfg.Driver.AgentTimeout)
	assert.Equal(t, 30*time.Second, cfg.Driver.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Driver.DefaultWaitTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Driver.WaitPollInterval)
	assert.Equal(t, 64, cfg.Driver.QueueSize)
	assert.Contains(t, cfg.Driver.RestrictedPrefixes, "chrome://")
	assert.Contains(t, cfg.Driver.RestrictedPrefixes, "devtools://")

	assert.Equal(t, 150*time.Millisecond, cfg.Stability.SettleDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Stability.Window)
	assert.Equal(t, 1.0, cfg.Stability.TolerancePx)

	assert.Equal(t, 100, cfg.Extraction.MinWords)
	assert.Equal(t, 0.3, cfg.Extraction.MaxLinkRatio)
	assert.Equal(t, 20000, cfg.Extraction.MaxOutput)

	assert.Equal(t, 350*time.Millisecond, cfg.Recording.ScrollQuietPeriod)
	assert.Equal(t, 50.0, cfg.Recording.ScrollMinDistance)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "pagedriver.yaml")
	content := []byte(`
logger:
  level: debug
driver:
  agent_timeout: 3s
  queue_size: 16
stability:
  window: 500ms
`)
	require.NoError(t, os.WriteFile(cfgFile, content, 0o644))

	cfg, err := Load(viper.New(), cfgFile)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3*time.Second, cfg.Driver.AgentTimeout)
	assert.Equal(t, 16, cfg.Driver.QueueSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Stability.Window)

	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Driver.NavigationTimeout)
	assert.Equal(t, 100, cfg.Extraction.MinWords)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadUnreadableFileFails(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "pagedriver.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("logger: ["), 0o644))

	_, err := Load(viper.New(), cfgFile)
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PAGEDRIVER_LOGGER_LEVEL", "warn")
	t.Setenv("PAGEDRIVER_DRIVER_QUEUE_SIZE", "8")

	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, 8, cfg.Driver.QueueSize)
}
