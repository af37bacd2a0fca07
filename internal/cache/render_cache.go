// Package cache memoizes render results per (text, assessments) pair. The
// engine itself is pure and recomputes from scratch on every call; this cache
// is the caller-side optimization for hot refresh paths. Correctness never
// depends on it, so every failure degrades to a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/annotate"
	"github.com/clearcite/reportd/internal/metrics"
	"github.com/clearcite/reportd/internal/segment"
)

// RenderedReport is the cached shape of one render.
type RenderedReport struct {
	Annotated  string            `json:"annotated"`
	Sections   []segment.Section `json:"sections"`
	Structured bool              `json:"structured"`
}

// Cache is a redis-backed render cache with a small local LRU in front.
type Cache struct {
	client   *redis.Client
	logger   *zap.Logger
	ttl      time.Duration
	mu       sync.RWMutex
	local    map[string]*RenderedReport
	access   map[string]time.Time
	maxLocal int
}

// New creates a render cache. client may be nil, which disables the redis
// tier and leaves only the local one.
func New(client *redis.Client, ttl time.Duration, maxLocal int, logger *zap.Logger) *Cache {
	if maxLocal <= 0 {
		maxLocal = 512
	}
	return &Cache{
		client:   client,
		logger:   logger,
		ttl:      ttl,
		local:    make(map[string]*RenderedReport),
		access:   make(map[string]time.Time),
		maxLocal: maxLocal,
	}
}

// Key fingerprints one render input. The kind is part of the key because it
// decides whether the text is segmented; the assessment sequence is hashed in
// order because duplicate URLs resolve last-write-wins, so order changes the
// output.
func Key(kind, text string, assessments []annotate.SourceAssessment) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(text))
	for _, a := range assessments {
		fmt.Fprintf(h, "|%d:%s", a.Index, a.URL)
	}
	return "render:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached render for key, or nil, false on a miss. Redis
// errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) (*RenderedReport, bool) {
	c.mu.RLock()
	if r, ok := c.local[key]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.access[key] = time.Now()
		c.mu.Unlock()
		metrics.RenderCacheHits.Inc()
		return r, true
	}
	c.mu.RUnlock()

	if c.client == nil {
		metrics.RenderCacheMisses.Inc()
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.RenderCacheMisses.Inc()
		return nil, false
	} else if err != nil {
		c.logger.Debug("Render cache read failed", zap.Error(err))
		metrics.RenderCacheMisses.Inc()
		return nil, false
	}

	var r RenderedReport
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("Render cache entry corrupt, dropping", zap.Error(err))
		c.client.Del(ctx, key)
		metrics.RenderCacheMisses.Inc()
		return nil, false
	}

	c.storeLocal(key, &r)
	metrics.RenderCacheHits.Inc()
	return &r, true
}

// Set stores a render under key in both tiers.
func (c *Cache) Set(ctx context.Context, key string, r *RenderedReport) {
	c.storeLocal(key, r)

	if c.client == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		c.logger.Warn("Render cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug("Render cache write failed", zap.Error(err))
	}
}

func (c *Cache) storeLocal(key string, r *RenderedReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = r
	c.access[key] = time.Now()
	c.evictLocked()
	metrics.RenderCacheLocalSize.Set(float64(len(c.local)))
}

// evictLocked removes the least recently used half once the local tier
// overflows. Caller holds c.mu.
func (c *Cache) evictLocked() {
	if len(c.local) <= c.maxLocal {
		return
	}
	type accessEntry struct {
		key  string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(c.local))
	for k := range c.local {
		t, ok := c.access[k]
		if !ok {
			t = time.Time{}
		}
		entries = append(entries, accessEntry{key: k, time: t})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}
	toRemove := c.maxLocal / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(c.local, entries[i].key)
		delete(c.access, entries[i].key)
		metrics.RenderCacheEvictions.Inc()
	}
}

// Close releases the redis client.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
