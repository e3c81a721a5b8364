// internal/config/config_test.go
package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultedConfig(t *testing.T) Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return cfg
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()
	cfg := defaultedConfig(t)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "tapdeck", cfg.Logger.ServiceName)

	assert.Equal(t, "adb", cfg.Device.Kind)
	assert.Equal(t, "adb", cfg.Device.ADBPath)
	assert.Equal(t, 200*time.Millisecond, cfg.Device.CaptureInterval)
	assert.True(t, cfg.Device.Browser.Headless)

	assert.Equal(t, 0.8, cfg.Player.TemplateThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Player.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollPeriod)
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	t.Run("derives the tasks file from the data dir", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)
		cfg.Storage.DataDir = filepath.Join(t.TempDir(), "data")

		require.NoError(t, cfg.Finalize())
		assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "scheduled_tasks.json"), cfg.Scheduler.TasksFile)
	})

	t.Run("defaults the data dir to the home directory", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)

		require.NoError(t, cfg.Finalize())
		assert.NotEmpty(t, cfg.Storage.DataDir)
		assert.Contains(t, cfg.Storage.DataDir, ".tapdeck")
	})

	t.Run("keeps an explicit tasks file", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)
		custom := filepath.Join(t.TempDir(), "my_tasks.json")
		cfg.Scheduler.TasksFile = custom

		require.NoError(t, cfg.Finalize())
		assert.Equal(t, custom, cfg.Scheduler.TasksFile)
	})

	t.Run("rejects an unknown device kind", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)
		cfg.Device.Kind = "carrier-pigeon"
		assert.Error(t, cfg.Finalize())
	})

	t.Run("accepts the browser kind", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)
		cfg.Device.Kind = "browser"
		assert.NoError(t, cfg.Finalize())
	})

	t.Run("rejects an out-of-range template threshold", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []float64{0, -0.5, 1.5} {
			cfg := defaultedConfig(t)
			cfg.Player.TemplateThreshold = bad
			assert.Error(t, cfg.Finalize(), "threshold %v must be rejected", bad)
		}
	})

	t.Run("backfills non-positive periods", func(t *testing.T) {
		t.Parallel()
		cfg := defaultedConfig(t)
		cfg.Scheduler.PollPeriod = 0
		cfg.Player.PollInterval = -time.Second

		require.NoError(t, cfg.Finalize())
		assert.Equal(t, 30*time.Second, cfg.Scheduler.PollPeriod)
		assert.Equal(t, 500*time.Millisecond, cfg.Player.PollInterval)
	})
}
