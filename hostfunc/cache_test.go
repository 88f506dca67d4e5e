package hostfunc

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGetRemove(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ns", []byte("k"), []byte("v1"), 0))
	require.NoError(t, c.Set(ctx, "ns", []byte("k"), []byte("v2"), 0))

	val, ok, err := c.Get(ctx, "ns", []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), val)

	prev, ok, err := c.Remove(ctx, "ns", []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), prev)

	_, ok, _ = c.Get(ctx, "ns", []byte("k"))
	assert.False(t, ok)

	_, ok, _ = c.Remove(ctx, "ns", []byte("k"))
	assert.False(t, ok)
}

func TestMemoryCacheNamespaces(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("k"), []byte("from a"), 0))

	_, ok, _ := c.Get(ctx, "b", []byte("k"))
	assert.False(t, ok)

	_, ok, _ = c.Remove(ctx, "b", []byte("k"))
	assert.False(t, ok)

	val, ok, _ := c.Get(ctx, "a", []byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("from a"), val)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ns", []byte("k"), []byte("v"), time.Second))
	_, ok, _ := c.Get(ctx, "ns", []byte("k"))
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.Get(ctx, "ns", []byte("k"))
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "ns", []byte("k"), []byte("v"), 0))
	require.NoError(t, c.Expire(ctx, "ns", []byte("k"), time.Second))
	now = now.Add(500 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "ns", []byte("k"))
	assert.True(t, ok)

	require.NoError(t, c.Expire(ctx, "ns", []byte("k"), 0))
	now = now.Add(time.Hour)
	_, ok, _ = c.Get(ctx, "ns", []byte("k"))
	assert.True(t, ok, "zero ttl clears expiry")

	require.NoError(t, c.Expire(ctx, "ns", []byte("missing"), time.Second))
}

func TestMemoryCacheLimits(t *testing.T) {
	c := NewMemoryCache(WithMaxKeySize(4), WithMaxValueSize(4), WithMaxEntries(2))
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "ns", []byte("toolong"), []byte("v"), 0), ErrKeyTooLarge)
	assert.ErrorIs(t, c.Set(ctx, "ns", []byte("k"), []byte("toolong"), 0), ErrValueTooLarge)
	assert.ErrorIs(t, c.Set(ctx, "ns", nil, []byte("v"), 0), ErrEmptyKey)

	require.NoError(t, c.Set(ctx, "ns", []byte("a"), []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "ns", []byte("b"), []byte("2"), 0))
	assert.ErrorIs(t, c.Set(ctx, "ns", []byte("c"), []byte("3"), 0), ErrCacheFull)

	// overwriting an existing key is always allowed
	require.NoError(t, c.Set(ctx, "ns", []byte("a"), []byte("9"), 0))
	// limits are per namespace
	require.NoError(t, c.Set(ctx, "other", []byte("c"), []byte("3"), 0))
	assert.Equal(t, 2, c.Len("ns"))
}

func TestMemoryCacheConcurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := []byte{byte(i)}
			c.Set(ctx, "ns", key, key, 0)
			c.Get(ctx, "ns", key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len("ns"))
}

// Set HOSTBRIDGE_TEST_REDIS to a Redis address to run against a live server.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("HOSTBRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("HOSTBRIDGE_TEST_REDIS not set")
	}
	ctx := context.Background()

	client, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisCache(client, "hostbridge-test:"+time.Now().Format("150405.000")+":")

	require.NoError(t, c.Set(ctx, "a", []byte("k"), []byte("v"), 0))
	_, ok, err := c.Get(ctx, "b", []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)

	val, ok, err := c.Get(ctx, "a", []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Expire(ctx, "a", []byte("k"), time.Minute))

	prev, ok, err := c.Remove(ctx, "a", []byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), prev)

	_, ok, err = c.Remove(ctx, "a", []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}
