package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color names for the console log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and tunes the page engine.
type BrowserConfig struct {
	// Engine is "static" (pure Go fetch + DOM) or "live" (Chromium over
	// the DevTools protocol).
	Engine          string `mapstructure:"engine" yaml:"engine"`
	Headless        bool   `mapstructure:"headless" yaml:"headless"`
	UserAgent       string `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	MaxShadowDepth  int    `mapstructure:"max_shadow_depth" yaml:"max_shadow_depth"`
	MaxRedirects    int    `mapstructure:"max_redirects" yaml:"max_redirects"`
}

// NetworkConfig tunes fetching and settle detection.
type NetworkConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// AgentConfig tunes the tool session: wait polling and the highlight.
type AgentConfig struct {
	WaitInterval      time.Duration `mapstructure:"wait_interval" yaml:"wait_interval"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	StablePolls       int           `mapstructure:"stable_polls" yaml:"stable_polls"`
	HighlightDuration time.Duration `mapstructure:"highlight_duration" yaml:"highlight_duration"`
	MaxElements       int           `mapstructure:"max_elements" yaml:"max_elements"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "qandalf")
	v.SetDefault("logger.log_file", "qandalf.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.engine", "static")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.max_shadow_depth", 16)
	v.SetDefault("browser.max_redirects", 10)

	// -- Network --
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("network.navigation_timeout", "45s")
	v.SetDefault("network.post_load_wait", "400ms")
	v.SetDefault("network.requests_per_second", 8.0)

	// -- Agent --
	v.SetDefault("agent.wait_interval", "500ms")
	v.SetDefault("agent.wait_timeout", "15s")
	v.SetDefault("agent.stable_polls", 3)
	v.SetDefault("agent.highlight_duration", "2s")
	v.SetDefault("agent.max_elements", 400)
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads the optional config file and QANDALF_* environment
// overrides on top of the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("QANDALF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce a working session.
func (c *Config) Validate() error {
	switch c.Browser.Engine {
	case "static", "live":
	default:
		return fmt.Errorf("browser.engine must be \"static\" or \"live\", got %q", c.Browser.Engine)
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive")
	}
	if c.Agent.StablePolls < 1 {
		return fmt.Errorf("agent.stable_polls must be at least 1")
	}
	if c.Agent.WaitInterval <= 0 || c.Agent.WaitTimeout <= 0 {
		return fmt.Errorf("agent wait interval and timeout must be positive")
	}
	return nil
}
