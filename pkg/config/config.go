// Package config holds the runtime configuration for askweb: the target site,
// browser launch settings, the timeout profile, and the search loop limits.
//
// Configuration is read from an optional YAML file layered over
// DefaultConfig. Command-line flags are applied by the caller afterwards.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Config is the complete askweb configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target" json:"target"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Timeouts TimeoutProfile `yaml:"timeouts" json:"timeouts"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	History  HistoryConfig  `yaml:"history" json:"history"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`

	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-" json:"-"`
}

// TargetConfig identifies the search UI being driven.
type TargetConfig struct {
	URL string `yaml:"url" json:"url"`

	// HostPattern is a glob the landed page's host must match after
	// navigation, e.g. "{perplexity.ai,*.perplexity.ai}". Dots separate
	// glob segments.
	HostPattern string `yaml:"host_pattern" json:"host_pattern"`
}

// BrowserConfig controls how Chromium is launched.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" json:"headless"`
	ExecutablePath string `yaml:"executable_path" json:"executable_path"`
	ViewportWidth  int    `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" json:"viewport_height"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
	ScreenshotPath string `yaml:"screenshot_path" json:"screenshot_path"`

	// Install downloads the Playwright driver and Chromium before the
	// first launch.
	Install bool `yaml:"install" json:"install"`
}

// TimeoutProfile maps the named phases of a search to their duration
// budgets. It is read-only once the process has started.
type TimeoutProfile struct {
	Navigation    time.Duration `yaml:"navigation" json:"navigation"`
	Selector      time.Duration `yaml:"selector" json:"selector"`
	Generation    time.Duration `yaml:"generation" json:"generation"`
	RecoveryDelay time.Duration `yaml:"recovery_delay" json:"recovery_delay"`
	Settle        time.Duration `yaml:"settle" json:"settle"`
	PollInterval  time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// SearchConfig bounds the search loop.
type SearchConfig struct {
	Cooldown    time.Duration `yaml:"cooldown" json:"cooldown"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// HistoryConfig locates the conversation history database.
type HistoryConfig struct {
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls logging level: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the listener.
	Addr string `yaml:"addr" json:"addr"`
}

// Defaults
const (
	DefaultTargetURL      = "https://www.perplexity.ai/"
	DefaultHostPattern    = "{perplexity.ai,*.perplexity.ai}"
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultScreenshotPath = "askweb-error.png"
	DefaultMaxAttempts    = 10
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			URL:         DefaultTargetURL,
			HostPattern: DefaultHostPattern,
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  DefaultViewportWidth,
			ViewportHeight: DefaultViewportHeight,
			UserAgent:      DefaultUserAgent,
			ScreenshotPath: DefaultScreenshotPath,
		},
		Timeouts: DefaultTimeoutProfile(),
		Search: SearchConfig{
			Cooldown:    5 * time.Second,
			MaxAttempts: DefaultMaxAttempts,
			IdleTimeout: 5 * time.Minute,
		},
		History: HistoryConfig{
			Path: defaultHistoryPath(),
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// DefaultTimeoutProfile returns the stock phase budgets.
func DefaultTimeoutProfile() TimeoutProfile {
	return TimeoutProfile{
		Navigation:    45 * time.Second,
		Selector:      5 * time.Second,
		Generation:    60 * time.Second,
		RecoveryDelay: 5 * time.Second,
		Settle:        2 * time.Second,
		PollInterval:  500 * time.Millisecond,
	}
}

func defaultHistoryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "askweb-history.db"
	}
	return filepath.Join(homeDir, ".askweb", "history.db")
}

// Load reads a YAML configuration file. Values missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Path = path

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("target url %q is not an absolute URL", c.Target.URL)
	}
	if c.Target.HostPattern == "" {
		return fmt.Errorf("target host_pattern is required")
	}
	if _, err := CompileHostPattern(c.Target.HostPattern); err != nil {
		return fmt.Errorf("invalid target host_pattern: %w", err)
	}

	if c.Browser.ViewportWidth < 100 || c.Browser.ViewportWidth > 5000 {
		return fmt.Errorf("viewport width must be between 100 and 5000 pixels")
	}
	if c.Browser.ViewportHeight < 100 || c.Browser.ViewportHeight > 5000 {
		return fmt.Errorf("viewport height must be between 100 and 5000 pixels")
	}

	if err := c.Timeouts.Validate(); err != nil {
		return err
	}

	if c.Search.MaxAttempts < 1 {
		return fmt.Errorf("search max_attempts must be at least 1")
	}
	if c.Search.Cooldown < 0 {
		return fmt.Errorf("search cooldown cannot be negative")
	}
	if c.Search.IdleTimeout <= 0 {
		return fmt.Errorf("search idle_timeout must be positive")
	}

	switch c.Logging.Verbosity {
	case "", "quiet", "normal", "verbose", "debug":
	default:
		return fmt.Errorf("invalid logging verbosity: %s (must be quiet, normal, verbose or debug)", c.Logging.Verbosity)
	}

	return nil
}

// Validate checks that every phase has a usable budget.
func (p TimeoutProfile) Validate() error {
	phases := []struct {
		name string
		d    time.Duration
	}{
		{"navigation", p.Navigation},
		{"selector", p.Selector},
		{"generation", p.Generation},
		{"poll_interval", p.PollInterval},
	}
	for _, ph := range phases {
		if ph.d <= 0 {
			return fmt.Errorf("timeout %s must be positive", ph.name)
		}
	}
	if p.RecoveryDelay < 0 || p.Settle < 0 {
		return fmt.Errorf("timeouts recovery_delay and settle cannot be negative")
	}
	if p.PollInterval >= p.Generation {
		return fmt.Errorf("timeout poll_interval must be shorter than generation")
	}
	return nil
}

// Millis converts a duration to the float millisecond form Playwright
// expects for its timeout options.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// CompileHostPattern compiles a host glob with '.' as the segment separator,
// so "*" never spans more than one label.
func CompileHostPattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, '.')
}
