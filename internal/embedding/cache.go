package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 2048
	defaultCacheTTL  = 24 * time.Hour
)

type cacheEntry struct {
	vector   []float64
	cachedAt time.Time
}

// Cache memoizes embeddings by a fingerprint of the normalized input text.
// Entries expire after a TTL and the container is bounded with LRU eviction.
// Expiry is checked before the LRU bound on access; an expired hit counts as
// a miss and is recomputed in place.
//
// Concurrent requests for the same fingerprint share a single provider call.
type Cache struct {
	provider Provider
	entries  *lru.Cache[string, cacheEntry]
	ttl      time.Duration
	group    singleflight.Group

	computeCount atomic.Int64

	now func() time.Time
}

// CacheConfig bounds the cache. Zero values fall back to defaults.
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// NewCache wraps the provider with a memoizing layer.
func NewCache(provider Provider, cfg CacheConfig) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}

	entries, err := lru.New[string, cacheEntry](cfg.MaxEntries)
	if err != nil {
		return nil, err
	}

	return &Cache{
		provider: provider,
		entries:  entries,
		ttl:      cfg.TTL,
		now:      time.Now,
	}, nil
}

// Fingerprint returns the stable cache key for normalized text.
func Fingerprint(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the cached vector for the normalized text, computing
// it through the provider on miss or expiry. A caller whose context ends
// while a shared computation is in flight receives the context error; the
// computation itself keeps running for the remaining callers.
func (c *Cache) GetOrCompute(ctx context.Context, normalized string) ([]float64, error) {
	key := Fingerprint(normalized)

	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Double-check under the flight: a racing caller may have
		// populated the entry between lookup and DoChan.
		if vec, ok := c.lookup(key); ok {
			return vec, nil
		}
		// The computation outlives any single caller; coalesced
		// callers that stay around still need the result.
		vec, err := c.provider.Embed(context.WithoutCancel(ctx), normalized)
		if err != nil {
			return nil, err
		}
		c.computeCount.Add(1)
		c.entries.Add(key, cacheEntry{vector: vec, cachedAt: c.now()})
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float64), nil
	}
}

// GetOrComputeBatch resolves each normalized text, preserving input order.
// Misses are collected into a single EmbedBatch provider call.
func (c *Cache) GetOrComputeBatch(ctx context.Context, normalized []string) ([][]float64, error) {
	vectors := make([][]float64, len(normalized))

	var missTexts []string
	var missIdx []int
	for i, text := range normalized {
		if vec, ok := c.lookup(Fingerprint(text)); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	computed, err := c.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missTexts) {
		return nil, fmt.Errorf("%w: provider %s returned %d vectors for %d inputs",
			ErrUnavailable, c.provider.Name(), len(computed), len(missTexts))
	}
	c.computeCount.Add(int64(len(missTexts)))

	now := c.now()
	for j, vec := range computed {
		vectors[missIdx[j]] = vec
		c.entries.Add(Fingerprint(missTexts[j]), cacheEntry{vector: vec, cachedAt: now})
	}

	return vectors, nil
}

// ComputeCount reports how many provider computations the cache has issued.
// Used to verify idempotence of catalog reloads.
func (c *Cache) ComputeCount() int64 { return c.computeCount.Load() }

// Len returns the current number of live entries.
func (c *Cache) Len() int { return c.entries.Len() }

func (c *Cache) lookup(key string) ([]float64, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.cachedAt) > c.ttl {
		// Lazy expiry: drop the stale entry and treat it as a miss.
		c.entries.Remove(key)
		return nil, false
	}
	return entry.vector, true
}
