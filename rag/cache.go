package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campusrag/campusrag/pkg/metrics"
	"github.com/campusrag/campusrag/rag/types"
	"github.com/mudler/xlog"
)

// Cache defaults.
const (
	DefaultCacheTTL        = time.Hour
	DefaultCacheMaxEntries = 100
)

// CacheStats is a snapshot of the cache counters.
type CacheStats struct {
	Size       int     `json:"cache_size"`
	Hits       uint64  `json:"cache_hits"`
	Misses     uint64  `json:"cache_misses"`
	HitRatio   float64 `json:"cache_hit_ratio"`
	TTLSeconds float64 `json:"cache_ttl_seconds"`
	MaxEntries int     `json:"cache_max_entries"`
}

// QueryCache memoizes pipeline results by normalized question.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]types.CacheEntry
	ttl        time.Duration
	maxEntries int
	hits       uint64
	misses     uint64
	now        func() time.Time
}

// NewQueryCache returns an empty cache. Non-positive values select the
// defaults.
func NewQueryCache(ttl time.Duration, maxEntries int) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &QueryCache{
		entries:    make(map[string]types.CacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source.
func (c *QueryCache) WithClock(now func() time.Time) *QueryCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// CacheKey is the sha256 of the trimmed, lowercased question.
func CacheKey(question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result while it is younger than the TTL.
func (c *QueryCache) Get(question string) (*types.PipelineResult, bool) {
	key := CacheKey(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.CreatedAt) < c.ttl {
		c.hits++
		metrics.Get().CacheRequests.WithLabelValues("hit").Inc()
		return entry.Result, true
	}

	c.misses++
	metrics.Get().CacheRequests.WithLabelValues("miss").Inc()
	return nil, false
}

// Put stores a result. Once the cache grows past its maximum, expired
// entries are dropped first and then the oldest ones.
func (c *QueryCache) Put(question string, result *types.PipelineResult) {
	key := CacheKey(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = types.CacheEntry{Key: key, Result: result, CreatedAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evict()
	}
	metrics.Get().CacheSize.Set(float64(len(c.entries)))
}

func (c *QueryCache) evict() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.CreatedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	entries := make([]types.CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	excess := len(entries) - c.maxEntries
	for _, entry := range entries[:excess] {
		delete(c.entries, entry.Key)
	}
	xlog.Debug("Evicted cache entries", "evicted", excess, "size", len(c.entries))
}

// Len returns the number of entries, expired ones included.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:       len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
		TTLSeconds: c.ttl.Seconds(),
		MaxEntries: c.maxEntries,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRatio = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.CacheEntry)
	metrics.Get().CacheSize.Set(0)
}
