package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"findash/internal/backup"
	"findash/internal/backup/drive"
	"findash/internal/backup/gcs"
	"findash/internal/backup/googleopts"
	"findash/internal/backup/script"
	"findash/internal/cache"
	"findash/internal/config"
	"findash/internal/events"
	applog "findash/internal/log"
	"findash/internal/query"
	"findash/internal/services"
	"findash/internal/settings"
	"findash/internal/stats"
	"findash/internal/storage"
)

// App holds every long-lived component of a running instance.
type App struct {
	Config    *config.Config
	Logger    *applog.Logger
	Store     *storage.Handle
	Lookups   *cache.Lookups
	Who       *cache.WhoCache
	Records   *services.RecordService
	Options   *services.LookupService
	Pager     *query.Pager
	Stats     *stats.Aggregator
	Settings  *settings.Store
	Configs   *backup.ConfigStore
	Backups   *backup.Service
	Scheduler *backup.Scheduler
	Publisher events.Publisher

	closers []io.Closer
}

// NewApp opens the store and wires the components on top of it. The
// scheduler is created but not started.
func NewApp(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*App, error) {
	loc := cfg.Location()
	app := &App{Config: cfg, Logger: logger}

	store, err := storage.Open(ctx, cfg.DBPath,
		storage.WithLocation(loc),
		storage.WithLogger(logger.WithComponent(applog.ComponentStorage).Logger))
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	app.Store = store
	app.closers = append(app.closers, store)

	app.Publisher = app.dialPublisher(ctx)
	app.closers = append(app.closers, app.Publisher)

	sink, err := buildSink(ctx, cfg, logger.WithComponent(applog.ComponentSink).Logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if c, ok := sink.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	app.Lookups = cache.NewLookups(store)
	app.Who = cache.NewWhoCache(store, cfg.WhoCacheTTL)
	app.Records = services.NewRecordService(store, app.Who, app.Publisher,
		logger.WithComponent(applog.ComponentRecords).Logger)
	app.Options = services.NewLookupService(store, app.Lookups, app.Publisher,
		logger.WithComponent(applog.ComponentRecords).Logger)
	app.Pager = query.NewPager(store, loc, logger.WithComponent(applog.ComponentQuery).Logger)
	app.Stats = stats.NewAggregator(store, loc, logger.WithComponent(applog.ComponentStats).Logger)
	app.Settings = settings.NewStore(cfg.SettingsPath, logger.WithComponent(applog.ComponentSettings).Logger)

	backupLogger := logger.WithComponent(applog.ComponentBackup).Logger
	app.Configs = backup.NewConfigStore(cfg.BackupConfigPath, cfg.BackupRunTime, sink != nil, backupLogger)
	app.Backups = backup.NewService(store, app.Settings, app.Configs, sink,
		backup.WithRetention(cfg.BackupRetention),
		backup.WithTimeout(cfg.BackupTimeout),
		backup.WithLogger(backupLogger),
		backup.OnCreated(app.backupCreated),
		backup.OnRestored(app.storeRestored))
	app.Scheduler = backup.NewScheduler(app.Backups, app.Configs, loc,
		logger.WithComponent(applog.ComponentScheduler).Logger)

	return app, nil
}

// dialPublisher connects to the broker when one is configured. A broker
// that cannot be reached only disables events.
func (a *App) dialPublisher(ctx context.Context) events.Publisher {
	if a.Config.AMQPURL == "" {
		return events.Noop{}
	}
	logger := a.Logger.WithComponent(applog.ComponentEvents).Logger
	client, err := events.Dial(ctx, a.Config.AMQPURL, a.Config.AMQPExchange, logger)
	if err != nil {
		logger.Warn("Event broker unavailable, events disabled", applog.FieldError, err)
		return events.Noop{}
	}
	return client
}

func (a *App) backupCreated(ctx context.Context, out backup.CreateOutcome) {
	events.Emit(ctx, a.Publisher, a.Logger.Logger, events.Event{
		Type: events.BackupCompleted,
		Name: out.Name,
		At:   out.CreatedAt.UTC(),
	})
}

func (a *App) storeRestored(ctx context.Context, out backup.RestoreOutcome) {
	a.Lookups.InvalidateAll()
	a.Who.Invalidate()
	events.Emit(ctx, a.Publisher, a.Logger.Logger, events.Event{
		Type: events.StoreRestored,
		Name: out.Name,
		At:   out.RestoredAt.UTC(),
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("Close failed", applog.FieldError, err)
		}
	}
	a.closers = nil
}

// buildSink returns the configured backup sink, or nil when backups have
// nowhere to go.
func buildSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backup.Sink, error) {
	if !cfg.SinkConfigured() {
		return nil, nil
	}
	creds := googleopts.Credentials{JSON: cfg.GoogleCredentialsJSON, File: cfg.GoogleCredentialsFile}

	switch cfg.BackupSink {
	case config.SinkGCS:
		s, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSPrefix, creds, logger)
		if err != nil {
			return nil, fmt.Errorf("create gcs sink: %w", err)
		}
		return s, nil
	case config.SinkDrive:
		s, err := drive.New(ctx, cfg.DriveFolderID, creds, logger)
		if err != nil {
			return nil, fmt.Errorf("create drive sink: %w", err)
		}
		return s, nil
	default:
		s, err := script.New(cfg.BackupScriptURL, script.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create script sink: %w", err)
		}
		return s, nil
	}
}
