package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/ritual/internal/backup"
	"github.com/dukerupert/ritual/internal/model"
)

func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create, list, restore, and manage backups",
	}
	cmd.AddCommand(newBackupCreateCommand(rootOpts))
	cmd.AddCommand(newBackupListCommand(rootOpts))
	cmd.AddCommand(newBackupRestoreCommand(rootOpts))
	cmd.AddCommand(newBackupDeleteCommand(rootOpts))
	cmd.AddCommand(newBackupExportCommand(rootOpts))
	cmd.AddCommand(newBackupImportCommand(rootOpts))
	cmd.AddCommand(newBackupAutoCommand(rootOpts))
	return cmd
}

func printResult(w io.Writer, verb string, res *model.BackupResult) {
	fmt.Fprintf(w, "%s %s (%d entries)\n", verb, res.FilePath, res.EntriesCount)
}

func newBackupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Write a new backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.srv.BackupManager().CreateFullBackup(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(res, func(w io.Writer) {
				printResult(w, "Backed up to", res)
			})
		},
	}
}

func newBackupListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.srv.BackupManager().ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(list, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No backups.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tENTRIES\tSIZE\tVERSION")
				for _, md := range list {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
						md.ID, md.CreatedAt.Local().Format(time.DateTime), md.EntriesCount, md.FileSize, md.Version)
				}
				tw.Flush()
			})
		},
	}
}

// resolveBackup accepts a backup id or a path to a backup file.
func resolveBackup(ctx context.Context, m *backup.Manager, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}
	md, err := m.Find(ctx, arg)
	if err != nil {
		return "", err
	}
	return md.FilePath, nil
}

func newBackupRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id|file>",
		Short: "Replace all data with a backup; a safety backup is taken first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.srv.BackupManager()
			path, err := resolveBackup(cmd.Context(), m, args[0])
			if err != nil {
				return err
			}
			if err := confirm(cmd, rootOpts, fmt.Sprintf("Restore %s over current data?", filepath.Base(path))); err != nil {
				return err
			}

			res, err := m.RestoreBackup(cmd.Context(), path)
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(res, func(w io.Writer) {
				printResult(w, "Restored", res)
			})
		},
	}
}

func newBackupDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.srv.BackupManager().DeleteBackup(cmd.Context(), args[0]); err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted backup %s\n", args[0])
			})
		},
	}
}

func newBackupExportCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Create a backup and copy it to another directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.srv.BackupManager().ExportBackup(cmd.Context(), backup.CopySharer{Dir: to})
			if err != nil {
				return err
			}
			dst := filepath.Join(to, filepath.Base(res.FilePath))
			return newFormatter(cmd, rootOpts).Print(map[string]any{"backup": res, "copiedTo": dst}, func(w io.Writer) {
				fmt.Fprintf(w, "Exported backup to %s\n", dst)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", ".", "directory to copy the backup into")
	return cmd
}

func newBackupImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore from a backup file kept outside the backup directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			picker := backup.PathPicker{
				Path: args[0],
				Confirm: func(path string) bool {
					return confirm(cmd, rootOpts, fmt.Sprintf("Import %s over current data?", filepath.Base(path))) == nil
				},
			}
			res, err := a.srv.BackupManager().ImportBackup(cmd.Context(), picker)
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(res, func(w io.Writer) {
				printResult(w, "Imported", res)
			})
		},
	}
}

func newBackupAutoCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		enable     bool
		frequency  string
		maxBackups int
	)

	cmd := &cobra.Command{
		Use:   "auto",
		Short: "Show or change the automatic backup schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			m := a.srv.BackupManager()
			cfg, err := m.AutoBackupConfig(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("enable") || flags.Changed("frequency") || flags.Changed("max") {
				if flags.Changed("enable") {
					cfg.AutoBackup = enable
				}
				if flags.Changed("frequency") {
					cfg.Frequency = frequency
				}
				if flags.Changed("max") {
					cfg.MaxBackups = maxBackups
				}
				if err := m.ConfigureAutoBackup(cmd.Context(), cfg); err != nil {
					return err
				}
			}
			return newFormatter(cmd, rootOpts).Print(cfg, func(w io.Writer) {
				fmt.Fprintf(w, "Auto-backup: %t\nFrequency:   %s\nKeep:        %d\n", cfg.AutoBackup, cfg.Frequency, cfg.MaxBackups)
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "turn scheduled backups on or off")
	cmd.Flags().StringVar(&frequency, "frequency", "", "daily, weekly, or monthly")
	cmd.Flags().IntVar(&maxBackups, "max", 0, "number of backups to keep")
	return cmd
}
