// Package config handles livecam configuration from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level livecam configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Target   TargetConfig   `yaml:"target"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Status   StatusConfig   `yaml:"status"`
}

// BrowserConfig controls how the target page is driven.
type BrowserConfig struct {
	Mode             string   `yaml:"mode"` // headless | headful | http
	Remote           string   `yaml:"remote"`
	UserAgent        string   `yaml:"user_agent"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	NoSandbox        bool     `yaml:"no_sandbox"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
}

// TargetConfig names the page and the element holding the image URL.
type TargetConfig struct {
	PageURL         string        `yaml:"page_url"`
	Selector        string        `yaml:"selector"`
	Attribute       string        `yaml:"attribute"`
	FallbackURL     string        `yaml:"fallback_url"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	LocateTimeout   time.Duration `yaml:"locate_timeout"`
}

// ArchiveConfig controls the on-disk layout.
type ArchiveConfig struct {
	Root      string `yaml:"root"`
	Prefix    string `yaml:"prefix"`
	Extension string `yaml:"extension"`
}

// ScheduleConfig controls tick pacing. MaxCaptures 0 means unbounded.
type ScheduleConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxCaptures int           `yaml:"max_captures"`
}

// FetchConfig controls image downloads.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxBytes       int64         `yaml:"max_bytes"`
	CacheBustParam string        `yaml:"cache_bust_param"`
	UserAgent      string        `yaml:"user_agent"`
	BlockPrivate   bool          `yaml:"block_private"`
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | index
	URL  string `yaml:"url"`  // webhook
	Path string `yaml:"path"` // index database
}

// StatusConfig enables the HTTP status server when Listen is set.
type StatusConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultUserAgent is a desktop Chrome UA; some camera hosts refuse
// obvious automation.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

// Default returns a configuration with every default applied and no target.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = DefaultUserAgent
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"fonts", "media"}
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Target.Selector == "" {
		c.Target.Selector = "#main_image"
	}
	if c.Target.Attribute == "" {
		c.Target.Attribute = "src"
	}
	if c.Target.NavigateTimeout <= 0 {
		c.Target.NavigateTimeout = 60 * time.Second
	}
	if c.Target.ReadyTimeout <= 0 {
		c.Target.ReadyTimeout = 30 * time.Second
	}
	if c.Target.LocateTimeout <= 0 {
		c.Target.LocateTimeout = 5 * time.Second
	}
	if c.Archive.Root == "" {
		c.Archive.Root = "snapshots"
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "cam"
	}
	if c.Archive.Extension == "" {
		c.Archive.Extension = ".jpg"
	}
	if c.Schedule.Interval <= 0 {
		c.Schedule.Interval = 10 * time.Second
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 20 << 20
	}
	if c.Fetch.CacheBustParam == "" {
		c.Fetch.CacheBustParam = "t"
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = c.Browser.UserAgent
	}
}

// Validate reports the first missing or inconsistent setting.
func (c *Config) Validate() error {
	if c.Target.PageURL == "" {
		return fmt.Errorf("config: target.page_url is required")
	}
	if c.Target.FallbackURL == "" {
		return fmt.Errorf("config: target.fallback_url is required")
	}
	if c.Schedule.MaxCaptures < 0 {
		return fmt.Errorf("config: schedule.max_captures must be >= 0")
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs url", i)
			}
		case "index":
			if s.Path == "" {
				return fmt.Errorf("config: sinks[%d]: index needs path", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
