package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	apphttp "findash/internal/http"
	applog "findash/internal/log"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the backup scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:              app.Store,
		Records:            app.Records,
		Lookups:            app.Options,
		Who:                app.Who,
		Pager:              app.Pager,
		Stats:              app.Stats,
		Settings:           app.Settings,
		Backups:            app.Backups,
		Scheduler:          app.Scheduler,
		Configs:            app.Configs,
		SinkAddress:        cfg.SinkAddress(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	app.Scheduler.Start()
	defer app.Scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting findash server",
			"port", cfg.Port, applog.FieldSink, app.Backups.SinkKind(), "config_file", cfg.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			return err
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
