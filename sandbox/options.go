package sandbox

import (
	"os"
	"path/filepath"
)

// Option configures a Runtime at creation time.
type Option func(*runtimeConfig)

type runtimeConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // 0 = wazero default (65536 pages = 4GB)
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{}
}

// WithDiskCache enables a persistent compilation cache. Without a
// directory it uses XDG_CACHE_HOME/hostbridge or ~/.cache/hostbridge.
//
//	sandbox.New(ctx, sandbox.WithDiskCache())
//	sandbox.New(ctx, sandbox.WithDiskCache("/tmp/cache"))
func WithDiskCache(dir ...string) Option {
	return func(c *runtimeConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps guest memory in 64KB pages.
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(256) = 16MB max
func WithMemoryLimit(pages uint32) Option {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

const (
	MemoryLimit1MB  uint32 = 16
	MemoryLimit16MB uint32 = 256
	MemoryLimit64MB uint32 = 1024
)

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "hostbridge")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "hostbridge")
	}
	return filepath.Join(os.TempDir(), "hostbridge-cache")
}
