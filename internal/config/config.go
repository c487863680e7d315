// Package config loads client settings from defaults, an optional YAML file
// and CONNECTLY_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendKeychain = "keychain"
	BackendRedis    = "redis"
)

const (
	DefaultBaseURL     = "http://127.0.0.1:8000"
	DefaultTimeout     = 90 * time.Second
	DefaultRefreshPath = "/auth/jwt/refresh/"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "connectly:session"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// Env selects the log format: "development" (or empty) for the console
	// writer, anything else for JSON.
	Env     string        `koanf:"env"`
	Refresh RefreshConfig `koanf:"refresh"`
	Store   StoreConfig   `koanf:"store"`
	Log     LogConfig     `koanf:"log"`
}

type RefreshConfig struct {
	Path string `koanf:"path"`
	// Timeout bounds one token exchange. Zero means Config.Timeout.
	Timeout time.Duration `koanf:"timeout"`
}

type StoreConfig struct {
	Backend string      `koanf:"backend"`
	Path    string      `koanf:"path"`
	Redis   RedisConfig `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// defaults is loaded first so every key exists before file and env layers.
func defaults() map[string]any {
	return map[string]any{
		"base_url": DefaultBaseURL,
		"timeout":  DefaultTimeout.String(),
		"env":      "development",
		"refresh": map[string]any{
			"path":    DefaultRefreshPath,
			"timeout": "0s",
		},
		"store": map[string]any{
			"backend": BackendFile,
			"path":    "",
			"redis": map[string]any{
				"addr":     DefaultRedisAddr,
				"password": "",
				"db":       0,
				"prefix":   DefaultRedisPrefix,
			},
		},
		"log": map[string]any{
			"level": "info",
		},
	}
}

// RefreshTimeout is the effective exchange timeout.
func (c *Config) RefreshTimeout() time.Duration {
	if c.Refresh.Timeout > 0 {
		return c.Refresh.Timeout
	}
	return c.Timeout
}

// RefreshURL joins the base URL and the refresh path.
func (c *Config) RefreshURL() (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base_url: %v", ErrInvalid, err)
	}
	ref, err := url.Parse(c.Refresh.Path)
	if err != nil {
		return "", fmt.Errorf("%w: refresh.path: %v", ErrInvalid, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base_url %q must be an absolute URL", ErrInvalid, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if c.Refresh.Timeout < 0 {
		return fmt.Errorf("%w: refresh.timeout must not be negative", ErrInvalid)
	}
	if c.Refresh.Path == "" {
		return fmt.Errorf("%w: refresh.path is required", ErrInvalid)
	}
	switch c.Store.Backend {
	case BackendFile, BackendMemory, BackendKeychain:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required for the redis backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend)
	}
	return nil
}

// DefaultFile is $XDG_CONFIG_HOME/connectly/config.yaml.
func DefaultFile() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "connectly", "config.yaml")
}
