// Package config loads the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Poll    PollConfig    `yaml:"poll"`
	Storage StorageConfig `yaml:"storage"`
	Locale  string        `yaml:"locale"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ProxyConfig configures the CORS-style fetch proxy.
// An empty URL with Direct set fetches feeds without a proxy.
type ProxyConfig struct {
	URL    string `yaml:"url"`
	Direct bool   `yaml:"direct"`
}

// FetchConfig bounds outbound requests.
type FetchConfig struct {
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	UserAgent     string        `yaml:"user_agent"`
}

// PollConfig controls the background poller.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Disabled    bool          `yaml:"disabled"`
}

// StorageConfig selects the persistence backend: sqlite, postgres or memory.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads a YAML file and returns the config with defaults applied.
// ${VAR} references are expanded from the environment. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config.
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), os.Getenv)

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	setDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Proxy.URL == "" && !cfg.Proxy.Direct {
		cfg.Proxy.URL = "https://allorigins.hexlet.app"
	}
	cfg.Proxy.URL = strings.TrimRight(cfg.Proxy.URL, "/")
	if cfg.Fetch.SubmitTimeout == 0 {
		cfg.Fetch.SubmitTimeout = 10 * time.Second
	}
	if cfg.Fetch.PollTimeout == 0 {
		cfg.Fetch.PollTimeout = 10 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "rssagg/1.0"
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = 5 * time.Second
	}
	if cfg.Poll.Concurrency == 0 {
		cfg.Poll.Concurrency = 4
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "rssagg.db"
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func (cfg *Config) validate() error {
	switch cfg.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for postgres")
	}
	if cfg.Poll.Concurrency < 0 {
		return fmt.Errorf("poll.concurrency must not be negative")
	}
	return nil
}
