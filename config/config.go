// Package config loads host configuration from HOSTBRIDGE_* environment
// variables. CLI flags override individual fields after loading.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/hostfunc"
)

// Script languages selectable as the default ScriptEval driver.
const (
	LangJS  = "js"
	LangLua = "lua"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	LogLevel  string `env:"HOSTBRIDGE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"HOSTBRIDGE_LOG_FORMAT" envDefault:"text"`

	AllowedHosts    []string      `env:"HOSTBRIDGE_ALLOWED_HOSTS"     envSeparator:","`
	HTTPTimeout     time.Duration `env:"HOSTBRIDGE_HTTP_TIMEOUT"      envDefault:"10s"`
	HTTPMaxBodySize int64         `env:"HOSTBRIDGE_HTTP_MAX_BODY"     envDefault:"2097152"`
	HTTPRateLimit   float64       `env:"HOSTBRIDGE_HTTP_RATE_LIMIT"`
	HTTPRateBurst   int           `env:"HOSTBRIDGE_HTTP_RATE_BURST"   envDefault:"1"`

	InvocationTimeout time.Duration `env:"HOSTBRIDGE_INVOCATION_TIMEOUT" envDefault:"30s"`
	MaxDelegateDepth  int           `env:"HOSTBRIDGE_MAX_DELEGATE_DEPTH" envDefault:"8"`

	KeySalt string `env:"HOSTBRIDGE_KEY_SALT" envDefault:"hostbridge"`
	// VRFKey is 32 hex-encoded bytes. Empty picks a random key per process.
	VRFKey string `env:"HOSTBRIDGE_VRF_KEY"`

	CacheBackend    string `env:"HOSTBRIDGE_CACHE"          envDefault:"memory"`
	CacheMaxEntries int    `env:"HOSTBRIDGE_CACHE_MAX_ENTRIES"`
	RedisAddr       string `env:"HOSTBRIDGE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword   string `env:"HOSTBRIDGE_REDIS_PASSWORD"`
	RedisDB         int    `env:"HOSTBRIDGE_REDIS_DB"`
	RedisPrefix     string `env:"HOSTBRIDGE_REDIS_PREFIX"   envDefault:"hostbridge:"`

	// Manifest is a YAML drivers file merged over the builtin drivers.
	Manifest   string `env:"HOSTBRIDGE_MANIFEST"`
	ScriptLang string `env:"HOSTBRIDGE_SCRIPT_LANG" envDefault:"js"`

	WasmMemoryPages uint32 `env:"HOSTBRIDGE_WASM_MEMORY_PAGES"`
	WasmCacheDir    string `env:"HOSTBRIDGE_WASM_CACHE_DIR"`

	Addr string `env:"HOSTBRIDGE_ADDR" envDefault:":8080"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and no
// environment consulted.
func Default() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

func (c Config) Validate() error {
	switch strings.ToLower(c.ScriptLang) {
	case LangJS, LangLua:
	default:
		return fmt.Errorf("unknown script language %q", c.ScriptLang)
	}
	switch c.CacheBackend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.VRFKey != "" {
		if _, err := c.VRFKeyBytes(); err != nil {
			return err
		}
	}
	if c.MaxDelegateDepth < 1 {
		return fmt.Errorf("max delegate depth must be positive, got %d", c.MaxDelegateDepth)
	}
	return nil
}

// VRFKeyBytes decodes VRFKey; nil when unset.
func (c Config) VRFKeyBytes() ([]byte, error) {
	if c.VRFKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.VRFKey)
	if err != nil {
		return nil, fmt.Errorf("vrf key: %w", err)
	}
	if len(key) != hostfunc.VRFSize {
		return nil, fmt.Errorf("vrf key: want %d bytes, got %d", hostfunc.VRFSize, len(key))
	}
	return key, nil
}

// HTTP returns the outbound HTTP settings.
func (c Config) HTTP() hostfunc.HTTPConfig {
	return hostfunc.HTTPConfig{
		AllowedHosts:   c.AllowedHosts,
		MaxBodySize:    c.HTTPMaxBodySize,
		RequestTimeout: c.HTTPTimeout,
		RateLimit:      c.HTTPRateLimit,
		RateBurst:      c.HTTPRateBurst,
	}
}

// ExecutorOptions returns the invocation host options.
func (c Config) ExecutorOptions() []executor.Option {
	return []executor.Option{
		executor.WithTimeout(c.InvocationTimeout),
		executor.WithMaxDepth(c.MaxDelegateDepth),
	}
}

// CacheOptions returns the cache limits.
func (c Config) CacheOptions() []hostfunc.CacheOption {
	var opts []hostfunc.CacheOption
	if c.CacheMaxEntries > 0 {
		opts = append(opts, hostfunc.WithMaxEntries(c.CacheMaxEntries))
	}
	return opts
}
