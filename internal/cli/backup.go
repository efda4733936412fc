package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupRunCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)

	backupListCmd.Flags().Bool("json", false, "Print the list as JSON")
	backupRestoreCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list and restore backups",
}

var backupRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a backup now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out, err := app.Scheduler.RunNow(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%d bytes, %d old backups removed)\n", out.Name, out.Size, out.Trimmed)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		files, err := app.Backups.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(files)
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backups found.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCREATED\tSIZE")
		for _, f := range files {
			created := "-"
			if f.Timestamp > 0 {
				created = time.UnixMilli(f.Timestamp).UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Name, created, f.Size)
		}
		return tw.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore NAME",
	Short: "Replace the live database with a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("Restore %s and overwrite the current database?", name))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out, err := app.Scheduler.Restore(cmd.Context(), name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (%d bytes, settings restored: %t)\n", out.Name, out.Size, out.SettingsRestored)
		return nil
	},
}

// confirm asks a yes/no question and reads one line of answer.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
