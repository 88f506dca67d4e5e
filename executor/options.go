package executor

import (
	"time"

	"github.com/caffeineduck/hostbridge/metrics"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxDepth = 8
)

// Option configures a Host at creation time.
type Option func(*hostConfig)

type hostConfig struct {
	timeout  time.Duration
	maxDepth int
	metrics  *metrics.Collector
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		timeout:  DefaultTimeout,
		maxDepth: DefaultMaxDepth,
	}
}

// WithTimeout bounds each top-level invocation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *hostConfig) {
		c.timeout = d
	}
}

// WithMaxDepth limits how deeply delegate calls may nest.
func WithMaxDepth(n int) Option {
	return func(c *hostConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithMetrics records invocation and delegate counters on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *hostConfig) {
		c.metrics = m
	}
}
