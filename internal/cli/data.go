package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all data as an encrypted token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.srv.Engine().ExportData(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			if err := os.WriteFile(out, []byte(token), 0600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			return newFormatter(cmd, rootOpts).Print(map[string]string{"file": out}, func(w io.Writer) {
				fmt.Fprintf(w, "Exported to %s\n", out)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the token to a file instead of stdout")
	return cmd
}

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Replace all data with an exported token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			if err := confirm(cmd, rootOpts, "Replace all current data with the import?"); err != nil {
				return err
			}

			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.srv.Engine().ImportData(cmd.Context(), strings.TrimSpace(string(data)))
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(map[string]int{"entriesCount": len(rec.Entries)}, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d entries\n", len(rec.Entries))
			})
		},
	}
}

func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all entries, settings, and the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm(cmd, rootOpts, "Delete ALL data? Backups are kept."); err != nil {
				return err
			}

			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.srv.Engine().ClearAllData(cmd.Context()); err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(map[string]bool{"cleared": true}, func(w io.Writer) {
				fmt.Fprintln(w, "All data cleared")
			})
		},
	}
}
