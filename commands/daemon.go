package commands

import (
	"log"

	"github.com/spf13/cobra"

	"listing_harvester/scheduler"
)

var daemonNow bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Harvest the configured markets on SCRAPE_CRON or SCRAPE_INTERVAL until stopped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sched := scheduler.New(cfg.Scheduler, a.orch)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		if cfg.Recheck.Enabled {
			w := a.recheckWorker(cfg.Site)
			go w.Run(ctx, cfg.Recheck.StaleAfter, cfg.Recheck.BatchSize, cfg.Recheck.Interval)
			log.Printf("Recheck worker started (every %s, listings older than %s)", cfg.Recheck.Interval, cfg.Recheck.StaleAfter)
		}

		if daemonNow {
			go func() {
				if err := sched.TriggerNow(ctx); err != nil {
					log.Printf("Initial run error: %v", err)
				}
			}()
		}

		log.Println("Daemon running. Press Ctrl+C to stop.")
		<-ctx.Done()
		log.Println("Shutting down...")
		return nil
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNow, "now", false, "Run once immediately, then follow the schedule")
	rootCmd.AddCommand(daemonCmd)
}
