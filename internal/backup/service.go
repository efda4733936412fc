package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"findash/internal/core"
	applog "findash/internal/log"
	"findash/internal/metrics"
)

const (
	DefaultRetention = 14
	DefaultTimeout   = 60 * time.Second
)

// Store is the live database as seen by backups. *storage.Handle
// satisfies it.
type Store interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Replace(ctx context.Context, data []byte) error
}

// SettingsStore exports and imports the user settings file.
type SettingsStore interface {
	Export() (json.RawMessage, error)
	Import(raw json.RawMessage) error
}

// CreateOutcome is returned by a successful backup.
type CreateOutcome struct {
	OK        bool              `json:"ok"`
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	PayloadID string            `json:"payloadId"`
	Reason    core.BackupReason `json:"reason"`
	Size      int64             `json:"size"`
	CreatedAt time.Time         `json:"createdAt"`
	Trimmed   int               `json:"trimmed"`
}

// RestoreOutcome is returned by a successful restore.
type RestoreOutcome struct {
	OK               bool      `json:"ok"`
	Name             string    `json:"name"`
	CreatedAt        string    `json:"createdAt,omitempty"`
	Size             int64     `json:"size"`
	SettingsRestored bool      `json:"settingsRestored"`
	RestoredAt       time.Time `json:"restoredAt"`
}

// Service implements create, list and restore against one sink. It does
// not serialise callers; the Scheduler does.
type Service struct {
	sink      Sink
	store     Store
	settings  SettingsStore
	configs   *ConfigStore
	retention int
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	onCreated  []func(context.Context, CreateOutcome)
	onRestored []func(context.Context, RestoreOutcome)
}

type Option func(*Service)

func WithRetention(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithTimeout bounds a whole create or restore, network included.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnCreated registers a callback run after every successful backup.
func OnCreated(fn func(context.Context, CreateOutcome)) Option {
	return func(s *Service) { s.onCreated = append(s.onCreated, fn) }
}

// OnRestored registers a callback run after the store was swapped, e.g. to
// drop caches derived from the old file.
func OnRestored(fn func(context.Context, RestoreOutcome)) Option {
	return func(s *Service) { s.onRestored = append(s.onRestored, fn) }
}

// NewService wires a service. sink may be nil when no sink is configured.
func NewService(store Store, settings SettingsStore, configs *ConfigStore, sink Sink, opts ...Option) *Service {
	s := &Service{
		sink:      sink,
		store:     store,
		settings:  settings,
		configs:   configs,
		retention: DefaultRetention,
		timeout:   DefaultTimeout,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a sink is available.
func (s *Service) Configured() bool { return s.sink != nil }

// SinkKind returns the configured sink kind, or "".
func (s *Service) SinkKind() string {
	if s.sink == nil {
		return ""
	}
	return s.sink.Kind()
}

func (s *Service) requireSink() error {
	if s.sink == nil {
		return core.Configuration(core.CodeBackupScriptMissing, "backup sink is not configured")
	}
	return nil
}

// opContext detaches op from the caller's cancellation: once started, a
// backup or restore runs to completion or to the service timeout.
func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}

// Create checkpoints and uploads the store, trims old blobs and records
// the run time. Nothing is recorded when the upload fails.
func (s *Service) Create(ctx context.Context, reason core.BackupReason) (CreateOutcome, error) {
	if err := s.requireSink(); err != nil {
		return CreateOutcome{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := time.Now()
	logger := s.logger.With(applog.FieldOperation, applog.OpBackup, applog.FieldReason, reason, applog.FieldSink, s.sink.Kind())

	db, err := s.store.Snapshot(ctx)
	if err != nil {
		metrics.BackupRuns.WithLabelValues(string(reason), "error").Inc()
		return CreateOutcome{}, fmt.Errorf("snapshot store: %w", err)
	}
	settings, err := s.settings.Export()
	if err != nil {
		metrics.BackupRuns.WithLabelValues(string(reason), "error").Inc()
		return CreateOutcome{}, fmt.Errorf("snapshot settings: %w", err)
	}

	createdAt := s.now().UTC()
	payloadID := s.newID()
	payload, err := EncodePayload(payloadID, createdAt, reason, settings, db)
	if err != nil {
		metrics.BackupRuns.WithLabelValues(string(reason), "error").Inc()
		return CreateOutcome{}, err
	}

	name := BlobName(createdAt)
	res, err := s.sink.Create(ctx, name, payload)
	if err != nil {
		metrics.BackupRuns.WithLabelValues(string(reason), "error").Inc()
		logger.Error("Backup upload failed", applog.FieldBlobName, name, applog.FieldError, err)
		return CreateOutcome{}, sinkError(err, core.CodeBackupCreateFailed, "create backup")
	}
	if res.Name == "" {
		res.Name = name
	}

	trimmed := s.trim(ctx, logger)

	// The run counts from when the upload finished, so a manual run that
	// spans the scheduled slot does not leave the slot due.
	if err := s.configs.MarkRun(s.now().UTC()); err != nil {
		logger.Error("Failed to persist last run time", applog.FieldError, err)
	}

	out := CreateOutcome{
		OK:        true,
		ID:        res.ID,
		Name:      res.Name,
		PayloadID: payloadID,
		Reason:    reason,
		Size:      int64(len(db)),
		CreatedAt: createdAt,
		Trimmed:   trimmed,
	}

	metrics.BackupRuns.WithLabelValues(string(reason), "ok").Inc()
	metrics.ObserveSince(metrics.BackupDuration, start)
	metrics.BackupBytes.Set(float64(len(db)))
	metrics.BackupLastSuccess.Set(float64(createdAt.Unix()))
	logger.Info("Backup created",
		applog.FieldBlobName, out.Name,
		applog.FieldBlobID, out.ID,
		applog.FieldBlobSize, out.Size,
		"trimmed", trimmed,
		applog.FieldDuration, time.Since(start).Milliseconds())

	for _, fn := range s.onCreated {
		fn(ctx, out)
	}
	return out, nil
}

// trim keeps the newest retention blobs, deleting the rest oldest first.
// Failures are logged and never fail the backup.
func (s *Service) trim(ctx context.Context, logger *slog.Logger) int {
	blobs, err := s.sink.List(ctx)
	if err != nil {
		logger.Warn("Failed to list backups for trimming", applog.FieldError, err)
		return 0
	}
	if len(blobs) <= s.retention {
		return 0
	}
	SortNewestFirst(blobs)
	stale := blobs[s.retention:]

	deleted := 0
	for i := len(stale) - 1; i >= 0; i-- {
		b := stale[i]
		if b.ID == "" {
			continue
		}
		if err := s.sink.Delete(ctx, b.ID); err != nil {
			logger.Warn("Failed to delete old backup", applog.FieldBlobName, b.Name, applog.FieldBlobID, b.ID, applog.FieldError, err)
			continue
		}
		deleted++
		metrics.BackupsTrimmed.Inc()
	}
	return deleted
}

// List returns the stored blobs, newest first. Without a sink the list is
// empty rather than an error.
func (s *Service) List(ctx context.Context) ([]BlobInfo, error) {
	if s.sink == nil {
		return []BlobInfo{}, nil
	}
	blobs, err := s.sink.List(ctx)
	if err != nil {
		return nil, sinkError(err, core.CodeBackupListFailed, "list backups")
	}
	if blobs == nil {
		blobs = []BlobInfo{}
	}
	SortNewestFirst(blobs)
	return blobs, nil
}

// Restore replaces the live store with the named blob. Every check runs
// before the store is touched; from the swap on the old file is gone.
func (s *Service) Restore(ctx context.Context, name string) (RestoreOutcome, error) {
	if err := s.requireSink(); err != nil {
		return RestoreOutcome{}, err
	}
	if name == "" {
		return RestoreOutcome{}, core.Validation(core.CodeBackupNameRequired, "backup name is required")
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	logger := s.logger.With(applog.FieldOperation, applog.OpRestore, applog.FieldBlobName, name, applog.FieldSink, s.sink.Kind())

	raw, err := s.sink.Fetch(ctx, name)
	if err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		return RestoreOutcome{}, sinkError(err, core.CodeBackupRestoreFailed, "fetch backup")
	}
	payload, db, err := DecodePayload(raw)
	if err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		logger.Warn("Backup blob rejected", applog.FieldError, err)
		return RestoreOutcome{}, err
	}

	if err := s.store.Replace(ctx, db); err != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		logger.Error("Store replace failed", applog.FieldError, err)
		return RestoreOutcome{}, fmt.Errorf("replace store: %w", err)
	}

	out := RestoreOutcome{
		OK:         true,
		Name:       name,
		CreatedAt:  payload.CreatedAt,
		Size:       int64(len(db)),
		RestoredAt: s.now().UTC(),
	}

	var settingsErr error
	if payload.hasSettings() {
		if settingsErr = s.settings.Import(payload.Settings); settingsErr == nil {
			out.SettingsRestored = true
		} else {
			logger.Error("Settings restore failed", applog.FieldError, settingsErr)
		}
	}

	for _, fn := range s.onRestored {
		fn(ctx, out)
	}

	if settingsErr != nil {
		metrics.Restores.WithLabelValues("error").Inc()
		return out, fmt.Errorf("restore settings: %w", settingsErr)
	}
	metrics.Restores.WithLabelValues("ok").Inc()
	logger.Info("Backup restored", applog.FieldBlobSize, out.Size, "settings_restored", out.SettingsRestored)
	return out, nil
}

// sinkError maps a sink failure onto the error taxonomy.
func sinkError(err error, failCode, action string) error {
	var ce *core.Error
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, ErrInvalidResponse):
		return core.Upstream(core.CodeBackupResponseInvalid, action+": invalid sink response", err)
	case errors.Is(err, ErrBlobNotFound):
		return &core.Error{Kind: core.KindNotFound, Code: core.CodeNotFound, Message: action + ": backup not found", Err: err}
	}
	return core.Upstream(failCode, action+" failed", err)
}
