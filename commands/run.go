package commands

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"listing_harvester/market"
	"listing_harvester/models"
	"listing_harvester/output"
	"listing_harvester/scraper"
)

type runOptions struct {
	filters      market.Filters
	pages        int
	output       string
	printDetails bool
	noBrowser    bool
	marketsFile  string
	perState     int
	maxMarkets   int
	concurrency  int
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [\"City, ST\"]",
	Short: "Harvest one market, or every market in the markets file.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)

		markets, err := resolveMarkets(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		results := a.orch.Run(cmd.Context(), markets, runOpts.filters)

		var listings []models.Listing
		for _, r := range results {
			if r.Err != nil {
				log.Printf("Error harvesting %s: %v", r.Market.Name, r.Err)
			}
			if r.Result != nil {
				log.Printf("%s: %d listings collected (%s)", r.Market.Name, len(r.Result.Listings), r.Result.Mode)
				listings = append(listings, r.Result.Listings...)
			}
		}

		if runOpts.printDetails {
			output.PrintDetails(os.Stdout, listings)
		}
		if runOpts.output != "" {
			if err := output.WriteFile(runOpts.output, listings); err != nil {
				return err
			}
			fmt.Printf("Saved %d listings to %s\n", len(listings), runOpts.output)
		}
		fmt.Printf("Collected %d listing(s).\n", len(listings))
		return nil
	},
}

func init() {
	defaults := market.DefaultFilters()
	f := runCmd.Flags()
	f.IntVar(&runOpts.pages, "pages", 1, "Result pages per market")
	f.IntVar(&runOpts.filters.MinPrice, "min-price", defaults.MinPrice, "Minimum list price")
	f.IntVar(&runOpts.filters.MaxPrice, "max-price", 0, "Maximum list price (0 for none)")
	f.IntVar(&runOpts.filters.MinBeds, "min-beds", defaults.MinBeds, "Minimum bedrooms")
	f.IntVar(&runOpts.filters.MinSqft, "min-sqft", defaults.MinSqft, "Minimum square feet")
	f.BoolVar(&runOpts.filters.Distressed, "distressed", false, "Only distressed listings")
	f.BoolVar(&runOpts.filters.NoHOA, "no-hoa", false, "Only listings without an HOA")
	f.StringVar(&runOpts.output, "output", "", "Save results to a .json or .csv file")
	f.BoolVar(&runOpts.printDetails, "print-details", false, "Print each listing to stdout")
	f.BoolVar(&runOpts.noBrowser, "no-browser", false, "Skip the browser and fetch over HTTP only")
	f.StringVar(&runOpts.marketsFile, "markets-file", "", "City CSV to read markets from when no market is given")
	f.IntVar(&runOpts.perState, "per-state", 2, "Top-N cities per state by population")
	f.IntVar(&runOpts.maxMarkets, "max-markets", 200, "Total markets cap when reading the markets file")
	f.IntVar(&runOpts.concurrency, "concurrency", 0, "Markets harvested at once (0 keeps HARVEST_CONCURRENCY)")

	runOpts.filters.PropertyType = defaults.PropertyType
	runOpts.filters.Sort = defaults.Sort

	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cmd *cobra.Command) {
	cfg.Harvest.MaxPages = runOpts.pages
	if runOpts.noBrowser {
		cfg.Harvest.Browser = false
	}
	if runOpts.concurrency > 0 {
		cfg.Harvest.Concurrency = runOpts.concurrency
	}
	if cmd.Flags().Changed("markets-file") {
		cfg.MarketsFile = runOpts.marketsFile
	}
	if cmd.Flags().Changed("per-state") || cfg.Harvest.PerState == 0 {
		cfg.Harvest.PerState = runOpts.perState
	}
	if cmd.Flags().Changed("max-markets") || cfg.Harvest.MaxMarkets == 0 {
		cfg.Harvest.MaxMarkets = runOpts.maxMarkets
	}
}

func resolveMarkets(args []string) ([]market.Market, error) {
	if len(args) == 1 {
		m, err := market.Parse(args[0])
		if err != nil {
			return nil, err
		}
		return []market.Market{m}, nil
	}

	var names []string
	switch {
	case cfg.MarketsFile != "":
		loaded, err := market.LoadCSV(cfg.MarketsFile, cfg.Harvest.PerState, cfg.Harvest.MaxMarkets)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded %d markets from %s", len(loaded), cfg.MarketsFile)
		names = loaded
	default:
		names = cfg.Harvest.Markets
	}

	markets := scraper.ParseMarkets(names)
	if len(markets) == 0 {
		return nil, errors.New("no markets: pass \"City, ST\" or set --markets-file / HARVEST_MARKETS")
	}
	return markets, nil
}
