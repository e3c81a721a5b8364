// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Player    PlayerConfig    `mapstructure:"player" yaml:"player"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File sink, rotated by lumberjack. Empty disables the file sink.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DeviceConfig selects and configures the device transport.
type DeviceConfig struct {
	// Kind selects the transport: "adb" or "browser".
	Kind            string        `mapstructure:"kind" yaml:"kind"`
	ADBPath         string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serial          string        `mapstructure:"serial" yaml:"serial"`
	CaptureInterval time.Duration `mapstructure:"capture_interval" yaml:"capture_interval"`
	Browser         BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// BrowserConfig configures the chromedp-backed device.
type BrowserConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
}

// PlayerConfig configures the playback engine.
type PlayerConfig struct {
	// InterActionDelay is an extra fixed pause between actions, additive to
	// the recorded-offset pacing.
	InterActionDelay time.Duration `mapstructure:"inter_action_delay" yaml:"inter_action_delay"`
	// TemplateThreshold is the default match threshold for template actions.
	TemplateThreshold float64 `mapstructure:"template_threshold" yaml:"template_threshold"`
	// PollInterval is the re-capture cadence while waiting for a template.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// SchedulerConfig configures the background task scheduler.
type SchedulerConfig struct {
	PollPeriod time.Duration `mapstructure:"poll_period" yaml:"poll_period"`
	TasksFile  string        `mapstructure:"tasks_file" yaml:"tasks_file"`
}

// StorageConfig locates the application's data directory.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// SetDefaults registers the default value for every key on the given viper
// instance. Called before unmarshalling so a missing config file still yields
// a usable configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "tapdeck")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("device.kind", "adb")
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.capture_interval", 200*time.Millisecond)
	v.SetDefault("device.browser.headless", true)

	v.SetDefault("player.inter_action_delay", time.Duration(0))
	v.SetDefault("player.template_threshold", 0.8)
	v.SetDefault("player.poll_interval", 500*time.Millisecond)

	v.SetDefault("scheduler.poll_period", 30*time.Second)
}

// Finalize fills in the derived defaults that depend on the resolved data
// directory and validates the result.
func (c *Config) Finalize() error {
	if c.Storage.DataDir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.Storage.DataDir = filepath.Join(home, ".tapdeck")
	}
	if c.Scheduler.TasksFile == "" {
		c.Scheduler.TasksFile = filepath.Join(c.Storage.DataDir, "scheduled_tasks.json")
	}
	switch c.Device.Kind {
	case "adb", "browser":
	default:
		return fmt.Errorf("unknown device kind %q (want \"adb\" or \"browser\")", c.Device.Kind)
	}
	if c.Player.TemplateThreshold <= 0 || c.Player.TemplateThreshold > 1 {
		return fmt.Errorf("player.template_threshold must be in (0, 1], got %v", c.Player.TemplateThreshold)
	}
	if c.Scheduler.PollPeriod <= 0 {
		c.Scheduler.PollPeriod = 30 * time.Second
	}
	if c.Player.PollInterval <= 0 {
		c.Player.PollInterval = 500 * time.Millisecond
	}
	return nil
}
