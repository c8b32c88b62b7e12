package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	ServerURL  string `yaml:"server_url"`
	RedisAddr  string `yaml:"redis_addr"`
	NatsURL    string `yaml:"nats_url"`

	Feed struct {
		CompletedIntervalMs  int `yaml:"completed_interval_ms"`
		InProgressIntervalMs int `yaml:"in_progress_interval_ms"`
		Limit                int `yaml:"limit"`
	} `yaml:"feed"`

	Refresh struct {
		Rate     int           `yaml:"rate"`
		Window   time.Duration `yaml:"window"`
		HashSalt string        `yaml:"hash_salt"`
	} `yaml:"refresh"`

	Media struct {
		ThumbnailCacheSize int `yaml:"thumbnail_cache_size"`
	} `yaml:"media"`
}

// Load reads the yaml file and applies environment overrides on top.
// A missing file is not an error; env plus defaults must be enough to boot.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NatsURL = v
	}

	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Feed.CompletedIntervalMs <= 0 {
		c.Feed.CompletedIntervalMs = 30000
	}
	if c.Feed.InProgressIntervalMs <= 0 {
		c.Feed.InProgressIntervalMs = 2000
	}
	if c.Refresh.Rate <= 0 {
		c.Refresh.Rate = 6
	}
	if c.Refresh.Window <= 0 {
		c.Refresh.Window = time.Minute
	}
	if c.Media.ThumbnailCacheSize <= 0 {
		c.Media.ThumbnailCacheSize = 256
	}
}

func (c *Config) CompletedInterval() time.Duration {
	return time.Duration(c.Feed.CompletedIntervalMs) * time.Millisecond
}

func (c *Config) InProgressInterval() time.Duration {
	return time.Duration(c.Feed.InProgressIntervalMs) * time.Millisecond
}
