package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/ritual/internal/model"
	"github.com/dukerupert/ritual/internal/validate"
)

func NewEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List, add, and delete journal entries",
	}
	cmd.AddCommand(newEntriesListCommand(rootOpts))
	cmd.AddCommand(newEntriesAddCommand(rootOpts))
	cmd.AddCommand(newEntriesDeleteCommand(rootOpts))
	return cmd
}

func newEntriesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.srv.Engine().GetEntries(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(entries, func(w io.Writer) {
				printEntries(w, entries)
			})
		},
	}
}

func printEntries(w io.Writer, entries []model.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tACTIVITY\tSATISFACTION\tNOTES")
	for _, en := range entries {
		sat := "-"
		if en.Satisfaction != nil {
			sat = fmt.Sprint(*en.Satisfaction)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t%s\t%s\n",
			en.ID, en.Date.Local().Format(time.DateOnly), en.ActivityType.Icon, en.ActivityType.Name, sat, en.Notes)
	}
	tw.Flush()
}

func newEntriesAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		activity     string
		date         string
		partner      string
		notes        string
		duration     int
		satisfaction int
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{
				"activityType": map[string]any{"id": activity},
				"date":         date,
			}
			if date == "" {
				in["date"] = time.Now().UTC().Format(time.RFC3339)
			}
			flags := cmd.Flags()
			if flags.Changed("partner") {
				in["partner"] = partner
			}
			if flags.Changed("notes") {
				in["notes"] = notes
			}
			if flags.Changed("duration") {
				in["duration"] = duration
			}
			if flags.Changed("satisfaction") {
				in["satisfaction"] = satisfaction
			}

			res := validate.Entry(in)
			if !res.IsValid {
				return res.Err()
			}

			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			saved, err := a.srv.Engine().SaveEntry(cmd.Context(), *res.Data)
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(saved, func(w io.Writer) {
				fmt.Fprintf(w, "Added entry %s\n", saved.ID)
			})
		},
	}

	cmd.Flags().StringVar(&activity, "activity", "1", "activity type id")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD or RFC 3339 (default now)")
	cmd.Flags().StringVar(&partner, "partner", "", "partner name")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	cmd.Flags().IntVar(&duration, "duration", 0, "duration in minutes")
	cmd.Flags().IntVar(&satisfaction, "satisfaction", 0, "satisfaction from 1 to 5")
	return cmd
}

func newEntriesDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.srv.Engine().DeleteEntry(cmd.Context(), args[0]); err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted entry %s\n", args[0])
			})
		},
	}
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show journal statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.srv.Engine().GetUserStats(cmd.Context())
			if err != nil {
				return err
			}
			return newFormatter(cmd, rootOpts).Print(stats, func(w io.Writer) {
				fmt.Fprintf(w, "Total entries:  %d\n", stats.TotalEntries)
				fmt.Fprintf(w, "This month:     %d\n", stats.ThisMonth)
				if stats.AverageSatisfaction != nil {
					fmt.Fprintf(w, "Average rating: %.1f\n", *stats.AverageSatisfaction)
				}
				if stats.LastActivity != nil {
					fmt.Fprintf(w, "Last activity:  %s\n", stats.LastActivity.Local().Format(time.DateOnly))
				}
				if stats.MostCommonActivity != nil {
					fmt.Fprintf(w, "Most common:    %s %s\n", stats.MostCommonActivity.Icon, stats.MostCommonActivity.Name)
				}
			})
		},
	}
}
