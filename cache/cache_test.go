package cache

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testConfig keeps maintenance off so tests drive expiry explicitly.
func testConfig() Config {
	return Config{
		MaxEntries:          100,
		MaxMemoryBytes:      50 * 1024 * 1024,
		DefaultTTL:          time.Hour,
		SimilarityThreshold: 0.85,
	}
}

func newTestCache(t *testing.T, config Config) (*Cache, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	c, err := newWithClock(config, zaptest.NewLogger(t).Sugar(), mock)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c, mock
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default config", mutate: func(c *Config) {}},
		{name: "zero entries", mutate: func(c *Config) { c.MaxEntries = 0 }, wantErr: true},
		{name: "negative entries", mutate: func(c *Config) { c.MaxEntries = -1 }, wantErr: true},
		{name: "zero memory", mutate: func(c *Config) { c.MaxMemoryBytes = 0 }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.DefaultTTL = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.SimilarityThreshold = 1.5 }, wantErr: true},
		{name: "threshold zero", mutate: func(c *Config) { c.SimilarityThreshold = 0 }, wantErr: true},
		{name: "negative sweep interval", mutate: func(c *Config) { c.SweepInterval = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)

			c, err := New(config, zaptest.NewLogger(t).Sugar())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, c)
			c.Stop()
		})
	}
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("greeting", Text("hello world"), SetOptions{}))

	value, ok := c.Get("greeting")
	require.True(t, ok)
	assert.Equal(t, Text("hello world"), value)

	_, ok = c.Get("absent")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestGetByHashedKey(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("prompt-1", Text("tell me a story"), SetOptions{}))

	// A caller holding only the content hash of the key still resolves the
	// entry through the hash index.
	value, ok := c.Get(hashKey("prompt-1"))
	require.True(t, ok)
	assert.Equal(t, Text("tell me a story"), value)

	entry, ok := c.Peek("prompt-1")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.Hits)
}

func TestSetOverwrite(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("key", Text("first"), SetOptions{Type: "draft"}))
	_, ok := c.Get("key")
	require.True(t, ok)

	require.NoError(t, c.Set("key", Text("second"), SetOptions{Type: "final"}))

	value, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, Text("second"), value)

	// The hit counter survives an overwrite.
	entry, ok := c.Peek("key")
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.Hits)

	// The old type bucket is gone, the new one present.
	assert.Empty(t, c.GetByType("draft"))
	assert.Len(t, c.GetByType("final"), 1)
	assert.Equal(t, 1, c.Len())
}

func TestSetRejectsOversizedEntry(t *testing.T) {
	config := testConfig()
	config.MaxMemoryBytes = entryOverhead + 8
	c, _ := newTestCache(t, config)

	err := c.Set("huge", Text("this value does not fit in the budget"), SetOptions{})
	require.ErrorIs(t, err, ErrEntryTooLarge)

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.Equal(t, int64(0), c.Stats().Sets)
}

func TestLRUEvictionOrder(t *testing.T) {
	config := testConfig()
	config.MaxEntries = 3
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("first", Text("a"), SetOptions{}))
	require.NoError(t, c.Set("second", Text("b"), SetOptions{}))
	require.NoError(t, c.Set("third", Text("c"), SetOptions{}))
	require.NoError(t, c.Set("fourth", Text("d"), SetOptions{}))

	_, ok := c.Get("first")
	assert.False(t, ok)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, int64(1), c.Stats().LRUEvictions)
}

func TestRecencyUpdateOnGet(t *testing.T) {
	config := testConfig()
	config.MaxEntries = 2
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("a", Text("alpha"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("beta"), SetOptions{}))

	_, ok := c.Get("a")
	require.True(t, ok)

	require.NoError(t, c.Set("c", Text("gamma"), SetOptions{}))

	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used and should be evicted")
	_, ok = c.Peek("a")
	assert.True(t, ok, "a was touched and should survive")
}

func TestRecencyListMatchesAccessOrder(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("a", Text("alpha"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("beta"), SetOptions{}))
	require.NoError(t, c.Set("c", Text("gamma"), SetOptions{}))

	_, ok := c.Get("a")
	require.True(t, ok)

	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
}

func TestMemoryEviction(t *testing.T) {
	config := testConfig()
	// Room for two small text entries but not three.
	config.MaxMemoryBytes = 2*entryOverhead + 16
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("a", Text("aa"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("bb"), SetOptions{}))
	require.NoError(t, c.Set("c", Text("cc"), SetOptions{}))

	_, ok := c.Peek("a")
	assert.False(t, ok, "oldest entry should be evicted for memory")
	assert.LessOrEqual(t, c.MemoryUsage(), config.MaxMemoryBytes)
	assert.Equal(t, int64(1), c.Stats().MemoryEvictions)
}

func TestOverwriteGrowthEvictsForMemory(t *testing.T) {
	config := testConfig()
	config.MaxMemoryBytes = 2*entryOverhead + 188
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("a", Text("aa"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("bb"), SetOptions{}))

	// Growing "a" past the remaining headroom must evict from the LRU tail,
	// not overflow the budget.
	grown := Text(strings.Repeat("x", 200))
	require.NoError(t, c.Set("a", grown, SetOptions{}))

	assert.LessOrEqual(t, c.MemoryUsage(), config.MaxMemoryBytes)
	_, ok := c.Peek("b")
	assert.False(t, ok, "least recently used entry makes room for the grown value")

	value, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, grown, value)
	assert.Equal(t, int64(1), c.Stats().MemoryEvictions)
}

func TestOverwriteAloneNeverEvictsItself(t *testing.T) {
	config := testConfig()
	config.MaxMemoryBytes = entryOverhead + 256
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("only", Text("aa"), SetOptions{}))
	grown := Text(strings.Repeat("x", 200))
	require.NoError(t, c.Set("only", grown, SetOptions{}))

	value, ok := c.Get("only")
	require.True(t, ok)
	assert.Equal(t, grown, value)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(0), c.Stats().MemoryEvictions)
}

func TestOverwriteDoesNotEvictForEntryCount(t *testing.T) {
	config := testConfig()
	config.MaxEntries = 2
	c, _ := newTestCache(t, config)

	require.NoError(t, c.Set("a", Text("alpha"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("beta"), SetOptions{}))

	// An overwrite at the entry budget replaces, it does not grow the count.
	require.NoError(t, c.Set("a", Text("updated"), SetOptions{}))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Peek("b")
	assert.True(t, ok)
}

func TestCapacityInvariant(t *testing.T) {
	config := testConfig()
	config.MaxEntries = 10
	c, _ := newTestCache(t, config)

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("key-%d", i)
		require.NoError(t, c.Set(key, Text(fmt.Sprintf("value %d", i)), SetOptions{}))
		assert.LessOrEqual(t, c.Len(), config.MaxEntries)
		assert.LessOrEqual(t, c.MemoryUsage(), config.MaxMemoryBytes)
	}
}

func TestTTLExpiryOnGet(t *testing.T) {
	c, mock := newTestCache(t, testConfig())

	require.NoError(t, c.Set("short", Text("soon gone"), SetOptions{TTL: 50 * time.Millisecond}))
	mock.Add(100 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is removed on access")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.TTLEvictions)
}

func TestDefaultTTLApplies(t *testing.T) {
	config := testConfig()
	config.DefaultTTL = time.Minute
	c, mock := newTestCache(t, config)

	require.NoError(t, c.Set("key", Text("value"), SetOptions{}))

	mock.Add(30 * time.Second)
	_, ok := c.Get("key")
	assert.True(t, ok)

	mock.Add(31 * time.Second)
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestEvictLRU(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	assert.False(t, c.EvictLRU(), "empty cache has nothing to evict")

	require.NoError(t, c.Set("a", Text("alpha"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("beta"), SetOptions{}))

	assert.True(t, c.EvictLRU())
	_, ok := c.Peek("a")
	assert.False(t, ok, "tail of the recency list is evicted first")
	assert.Equal(t, 1, c.Len())
}

func TestRemove(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("key", Text("value"), SetOptions{}))

	assert.True(t, c.Remove("key"))
	assert.False(t, c.Remove("key"), "removing an absent key is a no-op")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("a", Text("alpha"), SetOptions{}))
	require.NoError(t, c.Set("b", Text("beta"), SetOptions{}))
	_, _ = c.Get("a")

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.Empty(t, c.Keys())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestHitRate(t *testing.T) {
	c, _ := newTestCache(t, testConfig())

	require.NoError(t, c.Set("key", Text("value"), SetOptions{}))

	for i := 0; i < 3; i++ {
		_, ok := c.Get("key")
		require.True(t, ok)
	}
	for i := 0; i < 2; i++ {
		_, ok := c.Get("missing")
		require.False(t, ok)
	}

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.6, stats.HitRate, 1e-9)
}

func TestStopIsIdempotent(t *testing.T) {
	config := DefaultConfig()
	c, err := New(config, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	c.Stop()
	c.Stop()
}
