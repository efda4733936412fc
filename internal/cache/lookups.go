// Package cache holds the in-process caches in front of the record store:
// the write-invalidated lookup cache for categories and currencies, the
// TTL-bound "who" options cache, and the generic LRU both build on.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"findash/internal/core"
	"findash/internal/metrics"
)

// Kind names a cached reference table.
type Kind string

const (
	Categories Kind = "categories"
	Currencies Kind = "currencies"
)

// LookupSource reads reference tables from the store.
type LookupSource interface {
	ListCategories(ctx context.Context) ([]string, error)
	ListCurrencies(ctx context.Context) (core.CurrencyList, error)
}

// Lookups caches full snapshots of the reference tables. There is no TTL:
// an entry lives until Invalidate is called for its kind, which every
// mutating operation on that table must do before returning. Concurrent
// misses share one reload.
//
// This is only correct with a single writer process.
type Lookups struct {
	src   LookupSource
	group singleflight.Group

	mu         sync.RWMutex
	categories []string
	currencies *core.CurrencyList
	gen        map[Kind]uint64
}

// NewLookups creates an empty cache over src.
func NewLookups(src LookupSource) *Lookups {
	return &Lookups{
		src: src,
		gen: map[Kind]uint64{},
	}
}

// Categories returns the cached category list, loading it on a miss.
func (l *Lookups) Categories(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	cached := l.categories
	l.mu.RUnlock()
	if cached != nil {
		metrics.CacheLookups.WithLabelValues(string(Categories), "hit").Inc()
		return append([]string(nil), cached...), nil
	}
	metrics.CacheLookups.WithLabelValues(string(Categories), "miss").Inc()

	v, err, _ := l.group.Do(string(Categories), func() (any, error) {
		gen := l.generation(Categories)
		rows, err := l.src.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		l.mu.Lock()
		// Skip the store if an invalidation raced with the load.
		if l.gen[Categories] == gen {
			l.categories = rows
		}
		l.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// Currencies returns the cached currency list with rates.
func (l *Lookups) Currencies(ctx context.Context) (core.CurrencyList, error) {
	l.mu.RLock()
	cached := l.currencies
	l.mu.RUnlock()
	if cached != nil {
		metrics.CacheLookups.WithLabelValues(string(Currencies), "hit").Inc()
		return copyCurrencies(*cached), nil
	}
	metrics.CacheLookups.WithLabelValues(string(Currencies), "miss").Inc()

	v, err, _ := l.group.Do(string(Currencies), func() (any, error) {
		gen := l.generation(Currencies)
		list, err := l.src.ListCurrencies(ctx)
		if err != nil {
			return nil, fmt.Errorf("load currencies: %w", err)
		}
		l.mu.Lock()
		if l.gen[Currencies] == gen {
			l.currencies = &list
		}
		l.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return core.CurrencyList{}, err
	}
	return copyCurrencies(v.(core.CurrencyList)), nil
}

// Invalidate drops the entry for kind; the next read reloads it.
func (l *Lookups) Invalidate(kind Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen[kind]++
	switch kind {
	case Categories:
		l.categories = nil
	case Currencies:
		l.currencies = nil
	}
	metrics.CacheInvalidations.WithLabelValues(string(kind)).Inc()
}

// InvalidateAll drops every entry, as after a restore.
func (l *Lookups) InvalidateAll() {
	l.Invalidate(Categories)
	l.Invalidate(Currencies)
}

func (l *Lookups) generation(kind Kind) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gen[kind]
}

func copyCurrencies(in core.CurrencyList) core.CurrencyList {
	out := core.CurrencyList{
		Currencies: append([]string(nil), in.Currencies...),
		Rates:      make(map[string]float64, len(in.Rates)),
	}
	for k, v := range in.Rates {
		out.Rates[k] = v
	}
	return out
}
