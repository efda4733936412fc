// Package cli implements the findash command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"findash/internal/config"
	applog "findash/internal/log"
)

var (
	envFile string

	cfg    *config.Config
	logger *applog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "findash",
	Short:         "Personal finance dashboard backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		LoadEnvFile(envFile)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = applog.New(applog.Config{
			Level:  applog.ParseLevel(cfg.LogLevel),
			Format: cfg.LogFormat,
			Writer: os.Stderr,
		})
		applog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// LoadEnvFile loads a dotenv file for local development. A missing file is
// not an error; production sets the environment directly.
func LoadEnvFile(path string) {
	if path == "" {
		return
	}
	_ = godotenv.Load(path)
}

// openApp wires the application for commands that need the store.
func openApp(cmd *cobra.Command) (*App, error) {
	return NewApp(cmd.Context(), cfg, logger)
}
