package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"findash/internal/metrics"
)

const whoKey = "who"

// WhoSource lists distinct attribution values.
type WhoSource interface {
	DistinctWho(ctx context.Context) ([]string, error)
}

// WhoCache serves the "who" autocomplete options. Unlike Lookups it is
// time-bound, since records change far more often than reference tables;
// record writes and restores still invalidate it.
type WhoCache struct {
	src   WhoSource
	cache *LRUCache[[]string]

	mu  sync.Mutex
	gen uint64
}

// NewWhoCache creates a cache whose entry lives for ttl.
func NewWhoCache(src WhoSource, ttl time.Duration) *WhoCache {
	return &WhoCache{
		src:   src,
		cache: NewLRUCache[[]string](1, ttl),
	}
}

// Get returns the cached options unless force is set or the entry expired.
func (w *WhoCache) Get(ctx context.Context, force bool) ([]string, error) {
	if !force {
		if v, ok := w.cache.Get(whoKey); ok {
			metrics.CacheLookups.WithLabelValues(whoKey, "hit").Inc()
			return append([]string(nil), v...), nil
		}
	}
	metrics.CacheLookups.WithLabelValues(whoKey, "miss").Inc()

	gen := w.generation()
	options, err := w.src.DistinctWho(ctx)
	if err != nil {
		return nil, fmt.Errorf("load who options: %w", err)
	}
	w.mu.Lock()
	// An invalidation during the load means options may already be stale.
	if w.gen == gen {
		w.cache.Set(whoKey, options)
	}
	w.mu.Unlock()
	return append([]string(nil), options...), nil
}

// Invalidate drops the cached options.
func (w *WhoCache) Invalidate() {
	w.mu.Lock()
	w.gen++
	w.cache.Purge()
	w.mu.Unlock()
	metrics.CacheInvalidations.WithLabelValues(whoKey).Inc()
}

func (w *WhoCache) generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}
