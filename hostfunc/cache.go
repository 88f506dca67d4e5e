package hostfunc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultCacheMaxKeySize   = 1024
	DefaultCacheMaxValueSize = 1 << 20 // 1MB
	DefaultCacheMaxEntries   = 10000
)

var (
	ErrKeyTooLarge   = errors.New("cache key too large")
	ErrValueTooLarge = errors.New("cache value too large")
	ErrCacheFull     = errors.New("cache entry limit reached")
	ErrEmptyKey      = errors.New("cache key required")
)

// Cache is an ephemeral key-value backend. Every call is scoped by a
// namespace; the bridge uses the caller address so entries written by
// one module are invisible to every other.
type Cache interface {
	Get(ctx context.Context, namespace string, key []byte) ([]byte, bool, error)
	// Set stores value with an optional ttl (zero means no expiry),
	// overwriting any previous value.
	Set(ctx context.Context, namespace string, key, value []byte, ttl time.Duration) error
	// Expire changes the ttl of an existing entry. It is a no-op for
	// missing keys.
	Expire(ctx context.Context, namespace string, key []byte, ttl time.Duration) error
	// Remove deletes key and returns the value it held.
	Remove(ctx context.Context, namespace string, key []byte) ([]byte, bool, error)
}

type cacheLimits struct {
	maxKeySize   int
	maxValueSize int
	maxEntries   int
}

func defaultCacheLimits() cacheLimits {
	return cacheLimits{
		maxKeySize:   DefaultCacheMaxKeySize,
		maxValueSize: DefaultCacheMaxValueSize,
		maxEntries:   DefaultCacheMaxEntries,
	}
}

func (l cacheLimits) check(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if l.maxKeySize > 0 && len(key) > l.maxKeySize {
		return fmt.Errorf("%w: %d > %d bytes", ErrKeyTooLarge, len(key), l.maxKeySize)
	}
	if l.maxValueSize > 0 && len(value) > l.maxValueSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrValueTooLarge, len(value), l.maxValueSize)
	}
	return nil
}

// CacheOption configures cache limits.
type CacheOption func(*cacheLimits)

// WithMaxKeySize sets the maximum key size in bytes.
func WithMaxKeySize(size int) CacheOption {
	return func(l *cacheLimits) { l.maxKeySize = size }
}

// WithMaxValueSize sets the maximum value size in bytes.
func WithMaxValueSize(size int) CacheOption {
	return func(l *cacheLimits) { l.maxValueSize = size }
}

// WithMaxEntries caps the number of live entries per namespace. Only the
// in-memory backend enforces it.
func WithMaxEntries(n int) CacheOption {
	return func(l *cacheLimits) { l.maxEntries = n }
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	limits cacheLimits
	now    func() time.Time

	mu   sync.RWMutex
	data map[string]map[string]*cacheEntry
}

func NewMemoryCache(opts ...CacheOption) *MemoryCache {
	limits := defaultCacheLimits()
	for _, opt := range opts {
		opt(&limits)
	}
	return &MemoryCache{
		limits: limits,
		now:    time.Now,
		data:   make(map[string]map[string]*cacheEntry),
	}
}

func (c *MemoryCache) Get(ctx context.Context, namespace string, key []byte) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[namespace][string(key)]
	c.mu.RUnlock()

	if !ok || entry.expired(c.now()) {
		return nil, false, nil
	}
	return bytes.Clone(entry.value), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, namespace string, key, value []byte, ttl time.Duration) error {
	if err := c.limits.check(key, value); err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.data[namespace]
	if !ok {
		ns = make(map[string]*cacheEntry)
		c.data[namespace] = ns
	}

	if _, exists := ns[string(key)]; !exists && c.limits.maxEntries > 0 && len(ns) >= c.limits.maxEntries {
		c.sweep(ns, now)
		if len(ns) >= c.limits.maxEntries {
			return fmt.Errorf("%w: %d", ErrCacheFull, c.limits.maxEntries)
		}
	}

	entry := &cacheEntry{value: bytes.Clone(value)}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	ns[string(key)] = entry
	return nil
}

func (c *MemoryCache) Expire(ctx context.Context, namespace string, key []byte, ttl time.Duration) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[namespace][string(key)]
	if !ok || entry.expired(now) {
		return nil
	}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	return nil
}

func (c *MemoryCache) Remove(ctx context.Context, namespace string, key []byte) ([]byte, bool, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	ns := c.data[namespace]
	entry, ok := ns[string(key)]
	if !ok {
		return nil, false, nil
	}
	delete(ns, string(key))
	if len(ns) == 0 {
		delete(c.data, namespace)
	}
	if entry.expired(now) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Len returns the number of live entries in namespace.
func (c *MemoryCache) Len(namespace string) int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.data[namespace] {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (c *MemoryCache) sweep(ns map[string]*cacheEntry, now time.Time) {
	for k, e := range ns {
		if e.expired(now) {
			delete(ns, k)
		}
	}
}
