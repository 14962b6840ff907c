// Package config handles zapper configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level zapper configuration.
type Config struct {
	Listen   string          `yaml:"listen"`
	DataDir  string          `yaml:"data_dir"`
	Browser  BrowserConfig   `yaml:"browser"`
	Tuner    TunerConfig     `yaml:"tuner"`
	Admin    AdminConfig     `yaml:"admin"`
	MCP      MCPConfig       `yaml:"mcp"`
	Events   EventsConfig    `yaml:"events"`
	Sites    []SiteConfig    `yaml:"sites"`
	Channels []ChannelConfig `yaml:"channels"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"` // ws:// control URL of an external Chrome
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
}

// TunerConfig controls per-request tuning deadlines.
type TunerConfig struct {
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	WaitTimeout     time.Duration `yaml:"wait_timeout"`
	TuneTimeout     time.Duration `yaml:"tune_timeout"`
}

// AdminConfig protects the HTTP admin surface.
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
	RateLimit    int    `yaml:"rate_limit"`    // requests per minute
}

// MCPConfig controls the MCP tool transport.
type MCPConfig struct {
	Stdio bool `yaml:"stdio"`
}

// EventsConfig controls the tune event log.
type EventsConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// SiteConfig names a streaming site and where its tab starts. Every tune
// for a channel on the site begins by (re)navigating the site's tab to URL,
// so each resolution starts from a known guide state.
type SiteConfig struct {
	Name string `yaml:"name"` // site key, referenced by channel entries
	URL  string `yaml:"url"`  // start/guide page the tab navigates to
}

// SiteURL resolves a site name to its configured start URL.
func (c *Config) SiteURL(name string) (string, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s.URL, true
		}
	}
	return "", false
}

// ChannelConfig seeds a lineup entry into the database on first start.
// Runtime edits go through the admin API; the database is authoritative.
type ChannelConfig struct {
	Name           string `yaml:"name"`   // user-facing channel name, lineup key
	Number         int    `yaml:"number"` // optional dial position
	Site           string `yaml:"site"`
	Strategy       string `yaml:"strategy"` // none | guideGrid | channelRail | imageTile | labelLink
	Channel        string `yaml:"channel"`  // strategy-specific identifier; defaults to name
	GuideURL       string `yaml:"guide_url"`
	RevealSelector string `yaml:"reveal_selector"`
	PlaySelector   string `yaml:"play_selector"`
	RailSelector   string `yaml:"rail_selector"`
	DiscoverLabel  string `yaml:"discover_label"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a Config with every field at its default.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8420"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Tuner.NavigateTimeout <= 0 {
		c.Tuner.NavigateTimeout = 25 * time.Second
	}
	if c.Tuner.WaitTimeout <= 0 {
		c.Tuner.WaitTimeout = 10 * time.Second
	}
	if c.Tuner.TuneTimeout <= 0 {
		c.Tuner.TuneTimeout = 90 * time.Second
	}
	if c.Admin.RateLimit <= 0 {
		c.Admin.RateLimit = 60
	}
	if c.Events.RetentionDays <= 0 {
		c.Events.RetentionDays = 30
	}
}
