// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the full driver configuration. Empirically tuned values
// (stability window, extraction score floor, recording debounce) are exposed
// here rather than buried as package constants; they have no documented
// derivation and operators may need to adjust them per deployment.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Driver     DriverConfig     `mapstructure:"driver" yaml:"driver"`
	Stability  StabilityConfig  `mapstructure:"stability" yaml:"stability"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Recording  RecordingConfig  `mapstructure:"recording" yaml:"recording"`
}

// LoggerConfig controls the zap logger and optional rotating file output.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the console color for each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig describes how to reach the host browser.
type BrowserConfig struct {
	// RemoteURL is the DevTools endpoint of an already-running browser.
	// When empty, a local headless instance is launched.
	RemoteURL string   `mapstructure:"remote_url" yaml:"remote_url"`
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// DriverConfig tunes the dispatcher.
type DriverConfig struct {
	// AgentTimeout bounds a single in-page request.
	AgentTimeout time.Duration `mapstructure:"agent_timeout" yaml:"agent_timeout"`
	// NavigationTimeout bounds page-load after navigate; exceeding it flags
	// the result rather than failing the command.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// DefaultWaitTimeout applies to wait/exists when the caller gives none.
	DefaultWaitTimeout time.Duration `mapstructure:"default_wait_timeout" yaml:"default_wait_timeout"`
	// WaitPollInterval is the retry cadence inside wait/exists.
	WaitPollInterval time.Duration `mapstructure:"wait_poll_interval" yaml:"wait_poll_interval"`
	// QueueSize is the ordered command queue depth.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
	// ObserverBuffer is the per-subscriber notification buffer.
	ObserverBuffer int `mapstructure:"observer_buffer" yaml:"observer_buffer"`
	// BroadcastRate caps status notifications per second.
	BroadcastRate float64 `mapstructure:"broadcast_rate" yaml:"broadcast_rate"`
	// DomainCacheSize bounds the per-domain configuration cache.
	DomainCacheSize int `mapstructure:"domain_cache_size" yaml:"domain_cache_size"`
	// RestrictedPrefixes lists privileged destinations that are never
	// attached to or navigated to.
	RestrictedPrefixes []string `mapstructure:"restricted_prefixes" yaml:"restricted_prefixes"`
}

// StabilityConfig tunes the coordinate stability wait.
type StabilityConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Window       time.Duration `mapstructure:"window" yaml:"window"`
	TolerancePx  float64       `mapstructure:"tolerance_px" yaml:"tolerance_px"`
}

// ExtractionConfig tunes main-content detection and serialization.
type ExtractionConfig struct {
	MinWords     int     `mapstructure:"min_words" yaml:"min_words"`
	MaxLinkRatio float64 `mapstructure:"max_link_ratio" yaml:"max_link_ratio"`
	MinScore     float64 `mapstructure:"min_score" yaml:"min_score"`
	MaxOutput    int     `mapstructure:"max_output" yaml:"max_output"`
}

// RecordingConfig tunes event capture debouncing.
type RecordingConfig struct {
	ScrollQuietPeriod time.Duration `mapstructure:"scroll_quiet_period" yaml:"scroll_quiet_period"`
	ScrollMinDistance float64       `mapstructure:"scroll_min_distance" yaml:"scroll_min_distance"`
}

// SetDefaults registers the default value for every configuration key.
func SetDefaults(v *viper.Viper) {
	// Logging
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagedriver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// Browser host
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)

	// Dispatcher
	v.SetDefault("driver.agent_timeout", "10s")
	v.SetDefault("driver.navigation_timeout", "30s")
	v.SetDefault("driver.default_wait_timeout", "5s")
	v.SetDefault("driver.wait_poll_interval", "250ms")
	v.SetDefault("driver.queue_size", 64)
	v.SetDefault("driver.observer_buffer", 32)
	v.SetDefault("driver.broadcast_rate", 20.0)
	v.SetDefault("driver.domain_cache_size", 128)
	v.SetDefault("driver.restricted_prefixes", []string{
		"chrome://", "chrome-extension://", "chrome-search://", "devtools://",
		"edge://", "about:", "view-source:",
		"https://chrome.google.com/webstore",
		"https://chromewebstore.google.com",
	})

	// Stability wait
	v.SetDefault("stability.settle_delay", "150ms")
	v.SetDefault("stability.poll_interval", "100ms")
	v.SetDefault("stability.window", "1500ms")
	v.SetDefault("stability.tolerance_px", 1.0)

	// Content extraction
	v.SetDefault("extraction.min_words", 100)
	v.SetDefault("extraction.max_link_ratio", 0.3)
	v.SetDefault("extraction.min_score", 30.0)
	v.SetDefault("extraction.max_output", 20000)

	// Recording
	v.SetDefault("recording.scroll_quiet_period", "350ms")
	v.SetDefault("recording.scroll_min_distance", 50.0)
}

// NewDefaultConfig returns a Config populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from the given file (or the standard search path
// when empty), layered under environment overrides (PAGEDRIVER_*).
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pagedriver")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagedriver"))
		}
	}

	v.SetEnvPrefix("PAGEDRIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
