package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"findash/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed default lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.Open(cmd.Context(), cfg.DBPath, storage.WithLocation(cfg.Location()))
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "%s is at schema version %d\n", store.Path(), store.SchemaVersion())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
