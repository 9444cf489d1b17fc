package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/groomload/internal/performance/output"
	"github.com/wesleyorama2/groomload/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved run reports",
	}
	cmd.PersistentFlags().StringVar(&path, "history", "", "History file (default ~/.groomload/history.db)")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")

	var format string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a saved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Get(args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no run with ID %s", args[0])
			}
			if err != nil {
				return err
			}

			if format == "" || format == "summary" {
				output.NewConsole(output.Config{Writer: cmd.OutOrStdout()}).PrintSummary(report)
				return nil
			}
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), report, f)
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "summary", "Output format: summary, json, yaml, junit, html")

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(path)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", removed)
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 50, "Number of runs to keep")

	cmd.AddCommand(list, show, prune)
	return cmd
}

func openHistory(path string) (*storage.Store, error) {
	if path == "" {
		def, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = def
	}
	return storage.Open(path)
}

func printHistory(w io.Writer, entries []storage.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tNAME\tSTARTED\tDURATION\tVERDICT\tREQUESTS\tERRORS\tP95")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%.2f%%\t%s\n",
			e.RunID,
			e.Name,
			e.StartTime.Local().Format("2006-01-02 15:04:05"),
			e.Duration.Round(time.Second),
			e.Verdict,
			e.Requests,
			e.ErrorRate*100,
			e.P95.Round(time.Millisecond))
	}
	tw.Flush()
}
