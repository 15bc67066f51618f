// Package config loads the frl-proxy configuration from YAML with
// FRL_PROXY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/technosupport/frl-toolbox/internal/audit"
	"github.com/technosupport/frl-toolbox/internal/events"
	"github.com/technosupport/frl-toolbox/internal/ratelimit"
)

// DefaultUpstreamHost is Adobe's licensing server.
const DefaultUpstreamHost = "lcs-cops.adobe.io"

type Config struct {
	Listen  string `yaml:"listen"`
	Service struct {
		Name string `yaml:"name"`
	} `yaml:"service"`

	Upstream struct {
		Scheme  string        `yaml:"scheme"`
		Host    string        `yaml:"host"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"upstream"`

	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"redis"`

	// RateLimit applies per client address; it needs redis.
	RateLimit ratelimit.LimitConfig `yaml:"rate_limit"`

	NATS struct {
		URL             string        `yaml:"url"`
		Subject         string        `yaml:"subject"`
		PublishRetryMax int           `yaml:"publish_retry_max"`
		DedupTTL        time.Duration `yaml:"dedup_ttl"`
		DedupMaxKeys    int           `yaml:"dedup_max_keys"`
	} `yaml:"nats"`

	Spool struct {
		Dir            string        `yaml:"dir"`
		MaxMB          int64         `yaml:"max_mb"`
		ReplayInterval time.Duration `yaml:"replay_interval"`
	} `yaml:"spool"`

	Retention struct {
		Days int `yaml:"days"`
	} `yaml:"retention"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var c Config
	c.Listen = ":8080"
	c.Service.Name = "FRLProxy"
	c.Upstream.Scheme = "https"
	c.Upstream.Host = DefaultUpstreamHost
	c.Upstream.Timeout = 30 * time.Second
	c.Redis.CacheTTL = 7 * 24 * time.Hour
	c.RateLimit = ratelimit.LimitConfig{Rate: 60, Window: time.Minute}
	c.NATS.Subject = events.DefaultSubject
	c.NATS.PublishRetryMax = 3
	c.NATS.DedupTTL = 5 * time.Minute
	c.NATS.DedupMaxKeys = 10000
	c.Spool.MaxMB = 256
	c.Spool.ReplayInterval = 30 * time.Second
	c.Retention.Days = 90
	c.Metrics.Enabled = true
	return c
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("FRL_PROXY_LISTEN", &c.Listen)
	str("FRL_PROXY_UPSTREAM_SCHEME", &c.Upstream.Scheme)
	str("FRL_PROXY_UPSTREAM_HOST", &c.Upstream.Host)
	str("FRL_PROXY_DB_DSN", &c.Database.DSN)
	str("FRL_PROXY_REDIS_ADDR", &c.Redis.Addr)
	str("FRL_PROXY_REDIS_PASSWORD", &c.Redis.Password)
	str("FRL_PROXY_NATS_URL", &c.NATS.URL)
	str("FRL_PROXY_NATS_SUBJECT", &c.NATS.Subject)
	str("FRL_PROXY_SPOOL_DIR", &c.Spool.Dir)

	if v := getenv("FRL_PROXY_UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FRL_PROXY_UPSTREAM_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = d
	}
	if v := getenv("FRL_PROXY_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FRL_PROXY_RETENTION_DAYS: %w", err)
		}
		c.Retention.Days = n
	}
	if v := getenv("FRL_PROXY_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FRL_PROXY_METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Upstream.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("upstream scheme must be http or https, got %q", c.Upstream.Scheme)
	}
	if c.Upstream.Host == "" {
		return errors.New("upstream host is required")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream timeout must be positive")
	}
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Database.DSN != "" {
		if err := audit.CheckRetentionPolicy(c.Retention.Days); err != nil {
			return err
		}
	}
	return nil
}
