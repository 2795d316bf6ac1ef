package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"listing_harvester/storage"
)

var (
	runsLimit int
	runsLogs  int64
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent harvest runs from the local ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		defer w.Flush()

		if runsLogs > 0 {
			logs, err := store.RunLogs(runsLogs)
			if err != nil {
				return err
			}
			for _, l := range logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Timestamp.Format("2006-01-02 15:04:05"), l.Level, l.Market, l.Message)
			}
			return nil
		}

		runs, err := store.RecentRuns(runsLimit)
		if err != nil {
			return err
		}
		stored, err := store.CountDocuments()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Stored listings: %d\n\n", stored)
		fmt.Fprintln(w, "ID\tMARKET\tSTATUS\tMODE\tPAGES\tFOUND\tSAVED\tDROPPED\tERRORS\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.Market, r.Status, r.Mode, r.Pages, r.ListingsFound, r.ListingsSaved,
				r.Dropped, r.ErrorsCount, r.StartedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")
	runsCmd.Flags().Int64Var(&runsLogs, "logs", 0, "Show the log lines of one run instead")
	rootCmd.AddCommand(runsCmd)
}
