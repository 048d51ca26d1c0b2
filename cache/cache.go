// Package cache provides the interpretation cache: completed readings keyed
// by spread fingerprint, with TTL expiry, cost-bounded eviction, and
// at-most-once computation per fingerprint under concurrent misses.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/becomeliminal/arcana-go/core"
)

// Config tunes the cache. The zero value takes every default.
type Config struct {
	// MaxBytes bounds the total cost of cached readings; the cost of one
	// entry is the byte length of its text. Default 32 MiB.
	MaxBytes int64

	// TTL is the lifetime of an entry. Default 24h.
	TTL time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxBytes: 32 << 20,
		TTL:      24 * time.Hour,
	}
}

func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		return out
	}
	if c.MaxBytes > 0 {
		out.MaxBytes = c.MaxBytes
	}
	if c.TTL > 0 {
		out.TTL = c.TTL
	}
	return out
}

// Cache stores completed readings by fingerprint. Safe for concurrent use.
type Cache struct {
	store  *ristretto.Cache
	flight singleflight.Group
	ttl    time.Duration
}

// New creates a Cache.
func New(config *Config) (*Cache, error) {
	config = config.withDefaults()
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     config.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, ttl: config.TTL}, nil
}

// Get returns the cached reading for fp, if present and unexpired.
func (c *Cache) Get(fp core.Fingerprint) (core.Reading, bool) {
	val, ok := c.store.Get(string(fp))
	if !ok {
		return core.Reading{}, false
	}
	return snapshot(val.(core.Reading)), true
}

// GetOrCompute returns the cached reading for fp, computing it at most once
// across concurrent callers on a miss. All callers waiting on the same
// fingerprint share the single computation's outcome. A caller whose context
// ends stops waiting and gets its context error; the computation itself runs
// on the initiating caller's context, and if that caller is cancelled the
// fingerprint is forgotten so a later call can try again. Failed computations
// cache nothing, and degraded readings are shared with waiters but never
// stored.
func (c *Cache) GetOrCompute(ctx context.Context, fp core.Fingerprint, compute func(ctx context.Context) (core.Reading, error)) (core.Reading, error) {
	if reading, ok := c.Get(fp); ok {
		return reading, nil
	}

	key := string(fp)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		reading, err := compute(ctx)
		if err != nil {
			c.flight.Forget(key)
			return core.Reading{}, err
		}
		if reading.Degraded {
			// Concurrent waiters still share the degraded result, but it
			// is not stored: the next request gets a fresh chance at a
			// full reading instead of a knowledge-free one for the whole
			// TTL.
			log.Printf("[CACHE] Skipping store of degraded reading for %s", shortKey(key))
			return reading, nil
		}
		c.store.SetWithTTL(key, snapshot(reading), int64(len(reading.Text)), c.ttl)
		// Make the write visible before waiters resume; a sequential
		// caller must hit the cache, not recompute.
		c.store.Wait()
		log.Printf("[CACHE] Stored reading for %s (%d bytes)", shortKey(key), len(reading.Text))
		return reading, nil
	})

	select {
	case <-ctx.Done():
		return core.Reading{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return core.Reading{}, res.Err
		}
		return snapshot(res.Val.(core.Reading)), nil
	}
}

// Invalidate removes fp from the cache and clears any in-flight marker for
// it. A computation already running is not interrupted; its result simply
// lands in a fresh flight's entry.
func (c *Cache) Invalidate(fp core.Fingerprint) {
	key := string(fp)
	c.flight.Forget(key)
	c.store.Del(key)
	c.store.Wait()
	log.Printf("[CACHE] Invalidated %s", shortKey(key))
}

// Close releases the cache's resources.
func (c *Cache) Close() {
	c.store.Close()
}

// snapshot copies the reading so callers and eviction never share a slice.
func snapshot(r core.Reading) core.Reading {
	if len(r.Sources) > 0 {
		r.Sources = append([]string(nil), r.Sources...)
	}
	return r
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
