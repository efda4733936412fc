// Package services orchestrates writes across the store, the caches and
// the event publisher.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"findash/internal/core"
	"findash/internal/events"
	"findash/internal/metrics"
)

// RecordStore is the write side of the record table. *storage.Handle
// satisfies it.
type RecordStore interface {
	CreateRecord(ctx context.Context, typ core.RecordType, in core.RecordInput, now time.Time) (core.Record, error)
	GetRecord(ctx context.Context, id int64) (core.Record, error)
	UpdateRecord(ctx context.Context, id int64, p core.RecordPatch) (core.Record, error)
	DeleteRecord(ctx context.Context, id int64) error
}

// Invalidator drops a cache. *cache.WhoCache satisfies it.
type Invalidator interface {
	Invalidate()
}

// RecordService orchestrates record writes: the store first, then cache
// invalidation and an event. Event failures never fail the write.
type RecordService struct {
	store     RecordStore
	who       Invalidator
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewRecordService(store RecordStore, who Invalidator, publisher events.Publisher, logger *slog.Logger) *RecordService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		store:     store,
		who:       who,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// Create inserts a record of typ.
func (s *RecordService) Create(ctx context.Context, typ core.RecordType, in core.RecordInput) (core.Record, error) {
	rec, err := s.store.CreateRecord(ctx, typ, in, s.now())
	if err != nil {
		return core.Record{}, err
	}
	s.afterWrite(ctx, events.RecordCreated, rec.Type, rec.ID, "create")
	return rec, nil
}

// Get loads a record and checks it belongs to typ.
func (s *RecordService) Get(ctx context.Context, typ core.RecordType, id int64) (core.Record, error) {
	if id <= 0 {
		return core.Record{}, core.Invalid(core.CodeInvalidID, core.ErrInvalidID)
	}
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return core.Record{}, err
	}
	if rec.Type != typ {
		return core.Record{}, core.NotFound(core.CodeNotFound, fmt.Sprintf("%s record %d not found", typ, id))
	}
	return rec, nil
}

// Update applies a partial update to a record of typ.
func (s *RecordService) Update(ctx context.Context, typ core.RecordType, id int64, p core.RecordPatch) (core.Record, error) {
	if _, err := s.Get(ctx, typ, id); err != nil {
		return core.Record{}, err
	}
	rec, err := s.store.UpdateRecord(ctx, id, p)
	if err != nil {
		return core.Record{}, err
	}
	s.afterWrite(ctx, events.RecordUpdated, typ, id, "update")
	return rec, nil
}

// Delete removes a record of typ.
func (s *RecordService) Delete(ctx context.Context, typ core.RecordType, id int64) error {
	if _, err := s.Get(ctx, typ, id); err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return err
	}
	s.afterWrite(ctx, events.RecordDeleted, typ, id, "delete")
	return nil
}

func (s *RecordService) afterWrite(ctx context.Context, t events.Type, typ core.RecordType, id int64, op string) {
	metrics.RecordWrites.WithLabelValues(op).Inc()
	if s.who != nil {
		s.who.Invalidate()
	}
	events.Emit(ctx, s.publisher, s.logger, events.RecordEvent(t, typ, id, s.now()))
}
