package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the immutable client-wide configuration, created once at
// client construction.
type Config struct {
	// RequestDelay is the minimum spacing between dispatches to the
	// same instance.
	RequestDelay time.Duration
	// DefaultTimeout applies per attempt when a call does not override it.
	DefaultTimeout time.Duration
	PreferHTTPS    bool
	ExcludeTor     bool

	// TorProxyURL is a host:port SOCKS5 address; empty disables the
	// Tor transport path.
	TorProxyURL string

	// DirectoryURL is the public instance list document.
	DirectoryURL string
	// InstancesCachePath enables the on-disk directory cache when set.
	InstancesCachePath string
	InstancesCacheTTL  time.Duration

	ProbeTTL      time.Duration
	MaxConcurrent int64
	UserAgent     string

	// KnownEngines is an optional engine allow-list for search options.
	KnownEngines []string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

// Default returns the configuration used when no environment overrides
// are present.
func Default() *Config {
	return &Config{
		RequestDelay:      time.Second,
		DefaultTimeout:    10 * time.Second,
		PreferHTTPS:       true,
		ExcludeTor:        true,
		InstancesCacheTTL: time.Hour,
		ProbeTTL:          30 * time.Second,
		MaxConcurrent:     8,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    500 * time.Millisecond,
		RetryMaxDelay:     10 * time.Second,
	}
}

// Load builds the configuration from the environment on top of the
// defaults. Unset variables keep their defaults; unparsable values are
// an error.
func Load() (*Config, error) {
	cfg := Default()

	var err error
	if cfg.RequestDelay, err = getDuration("SERXNG_REQUEST_DELAY", cfg.RequestDelay); err != nil {
		return nil, err
	}
	if cfg.DefaultTimeout, err = getDuration("SERXNG_DEFAULT_TIMEOUT", cfg.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.PreferHTTPS, err = getBool("SERXNG_PREFER_HTTPS", cfg.PreferHTTPS); err != nil {
		return nil, err
	}
	if cfg.ExcludeTor, err = getBool("SERXNG_EXCLUDE_TOR", cfg.ExcludeTor); err != nil {
		return nil, err
	}
	if cfg.InstancesCacheTTL, err = getDuration("SERXNG_INSTANCES_CACHE_TTL", cfg.InstancesCacheTTL); err != nil {
		return nil, err
	}
	if cfg.ProbeTTL, err = getDuration("SERXNG_PROBE_TTL", cfg.ProbeTTL); err != nil {
		return nil, err
	}

	cfg.TorProxyURL = os.Getenv("SERXNG_TOR_PROXY_URL")
	cfg.DirectoryURL = os.Getenv("SERXNG_DIRECTORY_URL")
	cfg.InstancesCachePath = os.Getenv("SERXNG_INSTANCES_CACHE_PATH")
	if ua := os.Getenv("SERXNG_USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}
	if engines := os.Getenv("SERXNG_KNOWN_ENGINES"); engines != "" {
		for _, e := range strings.Split(engines, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.KnownEngines = append(cfg.KnownEngines, e)
			}
		}
	}
	return cfg, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return b, nil
}
