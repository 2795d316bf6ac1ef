package commands

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"listing_harvester/config"
	"listing_harvester/logging"
)

var (
	cfg     *config.Config
	logFile *logging.RotatingWriter
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "harvester",
	Short:         "harvester collects active for-sale listings from estately.com search pages.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags | log.Lshortfile)

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		logFile, err = logging.Setup(cfg.LogPath, cfg.LogMaxBytes, cfg.LogBackups)
		if err != nil {
			log.Printf("Warning: could not set up file logging: %v", err)
		}
		logging.SetVerbose(verbose || cfg.Verbose())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
