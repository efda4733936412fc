package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if cfg.Source != "" {
			fmt.Fprintf(out, "# loaded from %s\n", cfg.Source)
		}
		redacted := cfg.Redacted()
		if err := toml.NewEncoder(out).Encode(redacted); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Fprintf(out, "# sink configured: %t\n", cfg.SinkConfigured())
		return nil
	},
}
