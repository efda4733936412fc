package services

import (
	"context"
	"log/slog"
	"time"

	"findash/internal/cache"
	"findash/internal/core"
	"findash/internal/events"
	applog "findash/internal/log"
)

// LookupStore mutates the reference tables.
type LookupStore interface {
	AddCategory(ctx context.Context, name string) (string, error)
	RemoveCategory(ctx context.Context, name string) (int64, error)
	AddCurrency(ctx context.Context, code string, rate float64) (string, error)
	RemoveCurrency(ctx context.Context, code string) (int64, error)
	SetCurrencyRates(ctx context.Context, rates map[string]float64) (int64, error)
}

// LookupService serves categories and currencies from the cache and keeps
// it coherent with every mutation.
type LookupService struct {
	store     LookupStore
	cache     *cache.Lookups
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewLookupService(store LookupStore, lookups *cache.Lookups, publisher events.Publisher, logger *slog.Logger) *LookupService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupService{store: store, cache: lookups, publisher: publisher, now: time.Now, logger: logger}
}

func (s *LookupService) Categories(ctx context.Context) ([]string, error) {
	return s.cache.Categories(ctx)
}

func (s *LookupService) Currencies(ctx context.Context) (core.CurrencyList, error) {
	return s.cache.Currencies(ctx)
}

// AddCategory returns the refreshed list.
func (s *LookupService) AddCategory(ctx context.Context, name string) ([]string, error) {
	if _, err := s.store.AddCategory(ctx, name); err != nil {
		return nil, err
	}
	s.changed(ctx, cache.Categories)
	return s.cache.Categories(ctx)
}

// RemoveCategory detaches the category from its records and returns the
// refreshed list.
func (s *LookupService) RemoveCategory(ctx context.Context, name string) ([]string, error) {
	detached, err := s.store.RemoveCategory(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Category removed", applog.FieldCategory, core.NormalizeLookup(name, false), "detached", detached)
	s.changed(ctx, cache.Categories)
	return s.cache.Categories(ctx)
}

func (s *LookupService) AddCurrency(ctx context.Context, code string, rate float64) (core.CurrencyList, error) {
	if _, err := s.store.AddCurrency(ctx, code, rate); err != nil {
		return core.CurrencyList{}, err
	}
	s.changed(ctx, cache.Currencies)
	return s.cache.Currencies(ctx)
}

func (s *LookupService) RemoveCurrency(ctx context.Context, code string) (core.CurrencyList, error) {
	detached, err := s.store.RemoveCurrency(ctx, code)
	if err != nil {
		return core.CurrencyList{}, err
	}
	s.logger.InfoContext(ctx, "Currency removed", applog.FieldCurrency, core.NormalizeLookup(code, true), "detached", detached)
	s.changed(ctx, cache.Currencies)
	return s.cache.Currencies(ctx)
}

// SetRates updates known codes; unknown ones are ignored.
func (s *LookupService) SetRates(ctx context.Context, rates map[string]float64) (core.CurrencyList, error) {
	if _, err := s.store.SetCurrencyRates(ctx, rates); err != nil {
		return core.CurrencyList{}, err
	}
	s.changed(ctx, cache.Currencies)
	return s.cache.Currencies(ctx)
}

func (s *LookupService) changed(ctx context.Context, kind cache.Kind) {
	s.cache.Invalidate(kind)
	events.Emit(ctx, s.publisher, s.logger, events.Event{Type: events.LookupsChanged, Lookup: string(kind), At: s.now().UTC()})
}
