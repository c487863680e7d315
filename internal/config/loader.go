package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "CONNECTLY_"

// envKeys maps environment suffixes to config keys. Variables not listed,
// such as CONNECTLY_ACCESS_TOKEN, are not configuration.
var envKeys = map[string]string{
	"BASE_URL":             "base_url",
	"TIMEOUT":              "timeout",
	"ENV":                  "env",
	"REFRESH_PATH":         "refresh.path",
	"REFRESH_TIMEOUT":      "refresh.timeout",
	"STORE_BACKEND":        "store.backend",
	"STORE_PATH":           "store.path",
	"STORE_REDIS_ADDR":     "store.redis.addr",
	"STORE_REDIS_PASSWORD": "store.redis.password",
	"STORE_REDIS_DB":       "store.redis.db",
	"STORE_REDIS_PREFIX":   "store.redis.prefix",
	"LOG_LEVEL":            "log.level",
}

type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	// optional files are skipped when missing
	optional  bool
	overrides map[string]any
}

type Option func(*Loader)

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile loads path, which must exist.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
		l.optional = false
	}
}

// WithOptionalConfigFile loads path if it exists.
func WithOptionalConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
		l.optional = true
	}
}

// WithOverrides applies values on top of every other source. Keys use the
// dotted form, e.g. "store.backend". Empty strings are ignored so unset CLI
// flags do not clobber lower layers.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads defaults, the config file, the environment and overrides, then
// validates the result.
func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := l.loadFile(); err != nil {
			return nil, err
		}
	}

	if err := l.loadEnv(); err != nil {
		return nil, err
	}

	if len(l.overrides) > 0 {
		if err := l.loadOverrides(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadFile() error {
	if l.optional {
		if _, err := os.Stat(l.filePath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", l.filePath, err)
	}
	return nil
}

func (l *Loader) loadEnv() error {
	transform := func(s string) string {
		return envKeys[strings.TrimPrefix(s, l.envPrefix)]
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

func (l *Loader) loadOverrides() error {
	set := make(map[string]any, len(l.overrides))
	for key, v := range l.overrides {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		set[key] = v
	}
	if err := l.k.Load(confmap.Provider(set, "."), nil); err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	return nil
}

// Load is shorthand for NewLoader(opts...).Load().
func Load(opts ...Option) (*Config, error) {
	return NewLoader(opts...).Load()
}
