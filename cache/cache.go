package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrEntryTooLarge reports a Set whose value alone exceeds the configured
// memory budget. The cache is left untouched.
var ErrEntryTooLarge = errors.New("cache: entry exceeds the memory budget")

// Config controls capacity, expiry and maintenance cadence.
type Config struct {
	// Maximum number of live entries. E.g., 100
	MaxEntries int

	// Maximum total recorded entry size in bytes. A single entry larger than
	// this is rejected outright. E.g., 52428800 (50 MiB)
	MaxMemoryBytes int64

	// TTL applied to entries stored without their own. E.g., 1h
	DefaultTTL time.Duration

	// Minimum cosine similarity FindSimilar uses when the caller passes no
	// threshold. E.g., 0.85
	SimilarityThreshold float64

	// Cadence of the expired-entry sweep. Zero disables the sweep; lazy
	// expiration on Get still works.
	SweepInterval time.Duration

	// Cadence of the rolling hit-rate recomputation. Zero disables it.
	EfficiencyInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:          100,
		MaxMemoryBytes:      50 * 1024 * 1024,
		DefaultTTL:          time.Hour,
		SimilarityThreshold: 0.85,
		SweepInterval:       time.Minute,
		EfficiencyInterval:  5 * time.Minute,
	}
}

func (c Config) validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("cache: max_entries must be positive, got %d", c.MaxEntries)
	}
	if c.MaxMemoryBytes <= 0 {
		return fmt.Errorf("cache: max_memory_bytes must be positive, got %d", c.MaxMemoryBytes)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("cache: default_ttl must be positive, got %s", c.DefaultTTL)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("cache: similarity_threshold must be in (0, 1], got %g", c.SimilarityThreshold)
	}
	if c.SweepInterval < 0 || c.EfficiencyInterval < 0 {
		return errors.New("cache: maintenance intervals must not be negative")
	}
	return nil
}

// Cache is a similarity-aware, multi-indexed LRU cache with TTL eviction.
//
// The entry map is the single source of truth; the recency list, the hash,
// size and type indices and the embedding store are derived views kept
// consistent inside the same critical section as every mutation. One RWMutex
// guards all of them: Set/Get/Remove/EvictLRU take the write lock for the
// whole operation, the read-only scans share the read lock.
type Cache struct {
	mu sync.RWMutex

	config Config
	logger *zap.SugaredLogger

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock clock.Clock

	entries map[string]*Entry
	recency *recencyList

	// Content hash of a key -> the key itself, for callers that only hold
	// the hashed form.
	hashIndex map[string]string

	// Recorded size -> keys of that size.
	sizeIndex map[int64]map[string]struct{}

	// Type tag -> keys carrying it.
	typeIndex map[string]map[string]struct{}

	// Key -> similarity vector, present only for embeddable payloads.
	embeddings map[string][]float32

	memoryUsage int64
	stats       statsRecorder

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New constructs a cache and starts its maintenance goroutines. Invalid
// configuration fails here, never later.
func New(config Config, logger *zap.SugaredLogger) (*Cache, error) {
	return newWithClock(config, logger, clock.New())
}

func newWithClock(config Config, logger *zap.SugaredLogger, clk clock.Clock) (*Cache, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		config:     config,
		logger:     logger,
		clock:      clk,
		entries:    make(map[string]*Entry, config.MaxEntries),
		recency:    newRecencyList(config.MaxEntries),
		hashIndex:  make(map[string]string, config.MaxEntries),
		sizeIndex:  make(map[int64]map[string]struct{}),
		typeIndex:  make(map[string]map[string]struct{}),
		embeddings: make(map[string][]float32, config.MaxEntries),
		stopChan:   make(chan struct{}),
	}
	c.startMaintenance()
	return c, nil
}

// Stop terminates the maintenance goroutines and releases their tickers.
// Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
}

// Set stores value under key, evicting from the LRU tail until both the
// entry and memory budgets hold. Once no evictable entries remain the insert
// proceeds anyway, so one oversized insertion may exceed the memory budget
// until the next eviction. A value that alone exceeds the memory budget is
// rejected with ErrEntryTooLarge.
func (c *Cache) Set(key string, value Payload, opts SetOptions) error {
	size, err := payloadSize(value)
	if err != nil {
		return fmt.Errorf("cache: sizing value for %q: %w", key, err)
	}
	if size > c.config.MaxMemoryBytes {
		return ErrEntryTooLarge
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	typeTag := opts.Type
	if typeTag == "" {
		typeTag = DefaultType
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if prev, ok := c.entries[key]; ok {
		// Overwrite in place: memory accounting drops the old size and the
		// secondary indices are rebuilt for the new value. The hit counter
		// and the recency node survive; expiry restarts from now.
		c.memoryUsage -= prev.Size
		c.deindex(prev)
		c.recency.touch(key, now)

		// A grown value is held to the same memory budget as a new key.
		// The rewritten key sits at the head, so it is only the LRU
		// candidate when it is the sole entry.
		for c.memoryUsage+size > c.config.MaxMemoryBytes {
			victim, ok := c.recency.lru()
			if !ok || victim == key {
				break
			}
			c.removeLocked(victim)
			c.stats.memoryEvictions++
		}

		prev.Value = value
		prev.Size = size
		prev.CreatedAt = now
		prev.TTL = ttl
		prev.Type = typeTag
		prev.Metadata = opts.Metadata

		c.index(prev)
		c.memoryUsage += size
		c.stats.sets++
		return nil
	}

	for c.memoryUsage+size > c.config.MaxMemoryBytes || len(c.entries) >= c.config.MaxEntries {
		overMemory := c.memoryUsage+size > c.config.MaxMemoryBytes
		victim, ok := c.recency.lru()
		if !ok {
			break
		}
		c.removeLocked(victim)
		if overMemory {
			c.stats.memoryEvictions++
		} else {
			c.stats.lruEvictions++
		}
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		Size:      size,
		CreatedAt: now,
		TTL:       ttl,
		Type:      typeTag,
		Metadata:  opts.Metadata,
	}
	c.entries[key] = entry
	c.index(entry)
	c.recency.touch(key, now)
	c.memoryUsage += size
	c.stats.sets++
	return nil
}

// Get returns the payload stored under key. A key that is absent from the
// entry map is retried through the hash index, so a caller holding only the
// content hash of the original key still resolves the entry. An expired
// entry is evicted and reported as a miss.
func (c *Cache) Get(key string) (Payload, bool) {
	start := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.stats.recordLatency(c.clock.Since(start))
	}()

	entry, ok := c.entries[key]
	if !ok {
		if canonical, found := c.hashIndex[key]; found {
			entry, ok = c.entries[canonical]
		}
	}
	if !ok || entry == nil {
		c.stats.misses++
		return nil, false
	}

	now := c.clock.Now()
	if entry.expired(now) {
		c.removeLocked(entry.Key)
		c.stats.ttlEvictions++
		c.stats.misses++
		return nil, false
	}

	entry.Hits++
	c.recency.touch(entry.Key, now)
	c.stats.hits++
	return entry.Value, true
}

// Peek returns a copy of the entry stored under key without counting an
// access or disturbing recency order.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(c.clock.Now()) {
		return Entry{}, false
	}
	return entry.clone(), true
}

// Remove deletes key and every derived reference to it. Returns false when
// the key is absent.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(key)
}

// EvictLRU removes the least recently touched entry. Returns false on an
// empty cache.
func (c *Cache) EvictLRU() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	victim, ok := c.recency.lru()
	if !ok {
		return false
	}
	c.removeLocked(victim)
	c.stats.lruEvictions++
	return true
}

// Clear drops every entry, every index and all statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

// Len returns the number of live entries, counting any that expired but have
// not been swept yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MemoryUsage returns the total recorded size of live entries in bytes.
func (c *Cache) MemoryUsage() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryUsage
}

// Keys returns live keys from most to least recently touched.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.keys()
}

// Stats returns a copy of the current counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.snapshot(len(c.entries), c.memoryUsage)
}

// removeLocked is the single deletion path shared by explicit removal, LRU
// eviction and the TTL sweep. It keeps the entry map, every index and the
// recency list in step.
func (c *Cache) removeLocked(key string) bool {
	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.deindex(entry)
	c.recency.remove(key)
	c.memoryUsage -= entry.Size
	return true
}

func (c *Cache) clearLocked() {
	c.entries = make(map[string]*Entry, c.config.MaxEntries)
	c.recency = newRecencyList(c.config.MaxEntries)
	c.hashIndex = make(map[string]string, c.config.MaxEntries)
	c.sizeIndex = make(map[int64]map[string]struct{})
	c.typeIndex = make(map[string]map[string]struct{})
	c.embeddings = make(map[string][]float32, c.config.MaxEntries)
	c.memoryUsage = 0
	c.stats.reset()
}

// hashKey is the content hash used by the hash index.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func payloadSize(value Payload) (int64, error) {
	if value == nil {
		return 0, errors.New("nil payload")
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	return int64(len(encoded)) + entryOverhead, nil
}
