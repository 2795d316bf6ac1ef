package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"listing_harvester/browser"
	"listing_harvester/config"
	"listing_harvester/market"
	"listing_harvester/models"
	"listing_harvester/storage"
)

// Ledger records runs and their log lines.
type Ledger interface {
	CreateRun(run *models.HarvestRun) (int64, error)
	UpdateRun(run *models.HarvestRun) error
	Log(runID *int64, level models.LogLevel, message, market string) error
}

// Launcher starts a browser.
type Launcher func() (browser.Driver, error)

// MarketResult is one market's outcome. Result is nil only when the market
// never reached the collector.
type MarketResult struct {
	Market market.Market
	URL    string
	Result *Result
	Saved  int
	Err    error
}

type Orchestrator struct {
	cfg     *config.Config
	fetcher Fetcher
	ledger  Ledger
	sink    storage.Sink
	debug   storage.DebugSink
	launch  Launcher

	// delay is the randomized pre-task pause; tests replace it.
	delay func(ctx context.Context) error
	mu    sync.Mutex
}

func NewOrchestrator(cfg *config.Config, fetcher Fetcher, ledger Ledger) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		ledger:  ledger,
	}
	o.delay = o.jitter
	return o
}

// SetSinks injects the document sink and the debug capture sink. Either may
// be nil.
func (o *Orchestrator) SetSinks(sink storage.Sink, debug storage.DebugSink) {
	o.sink = sink
	o.debug = debug
}

// SetLauncher enables browser rendering. Without a launcher, or when
// browser use is disabled in config, every market runs HTTP-only.
func (o *Orchestrator) SetLauncher(launch Launcher) {
	o.launch = launch
}

// RunConfigured harvests the configured market list with default filters.
func (o *Orchestrator) RunConfigured(ctx context.Context) error {
	markets, err := o.ConfiguredMarkets()
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return errors.New("no markets configured")
	}
	o.Run(ctx, markets, market.DefaultFilters())
	return nil
}

// ConfiguredMarkets resolves the markets file, or the inline market list
// when no file is set. Unparseable entries are logged and skipped.
func (o *Orchestrator) ConfiguredMarkets() ([]market.Market, error) {
	names := o.cfg.Harvest.Markets
	if o.cfg.MarketsFile != "" {
		loaded, err := market.LoadCSV(o.cfg.MarketsFile, o.cfg.Harvest.PerState, o.cfg.Harvest.MaxMarkets)
		if err != nil {
			return nil, err
		}
		names = loaded
	}
	return ParseMarkets(names), nil
}

func ParseMarkets(names []string) []market.Market {
	var out []market.Market
	for _, name := range names {
		m, err := market.Parse(name)
		if err != nil {
			log.Printf("Skipping market: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// Run harvests every market with bounded concurrency. Results come back in
// input order; one market's failure never affects another.
func (o *Orchestrator) Run(ctx context.Context, markets []market.Market, filters market.Filters) []MarketResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	driver := o.startBrowser()
	if driver != nil {
		defer func() {
			if err := driver.Close(); err != nil {
				log.Printf("Warning: browser close: %v", err)
			}
		}()
	}

	collector := NewCollector(o.cfg.Site, o.cfg.Harvest, o.fetcher, driver, o.debug)
	results := make([]MarketResult, len(markets))

	limit := o.cfg.Harvest.Concurrency
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, m := range markets {
		results[i] = MarketResult{Market: m, URL: market.BuildSearchURL(o.cfg.Site.BaseURL, m, filters)}
		g.Go(func() error {
			o.runMarket(ctx, collector, &results[i], filters)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) startBrowser() browser.Driver {
	if o.launch == nil || !o.cfg.Harvest.Browser {
		log.Println("Browser disabled, running HTTP-only")
		return nil
	}
	driver, err := o.launch()
	if err != nil {
		log.Printf("Warning: %v, running HTTP-only", err)
		return nil
	}
	return driver
}

func (o *Orchestrator) runMarket(ctx context.Context, collector *Collector, mr *MarketResult, filters market.Filters) {
	name := mr.Market.Name

	if err := o.delay(ctx); err != nil {
		mr.Err = err
		return
	}

	run := &models.HarvestRun{
		RunUUID:   uuid.NewString(),
		Market:    name,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.ledger.CreateRun(run)
	if err != nil {
		log.Printf("Warning: failed to record run for %s: %v", name, err)
	}
	run.ID = runID

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if err := o.ledger.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to update run %d: %v", run.ID, err)
		}
	}()

	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting harvest: %s", mr.URL), name)

	res, err := collector.Collect(ctx, Target{Name: name, URL: mr.URL, Thresholds: filters.Thresholds()})
	mr.Result = res
	run.Mode = string(res.Mode)
	run.Pages = res.Pages
	run.ListingsFound = len(res.Listings)
	run.Dropped = res.Dropped

	if err != nil {
		mr.Err = err
		run.ErrorsCount++
		run.Status = models.RunStatusFailed
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Harvest error: %v", err), name)
		return
	}

	if res.Mode == ModeHTTPOnly && o.launch != nil && o.cfg.Harvest.Browser {
		o.log(run.ID, models.LogLevelWarn, "Finished in HTTP-only mode", name)
	}

	mr.Saved = o.persist(ctx, run, res.Documents)
	run.ListingsSaved = mr.Saved
	run.Status = models.RunStatusCompleted
	o.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d pages, %d listings, %d saved, %d dropped",
			run.Pages, run.ListingsFound, run.ListingsSaved, run.Dropped), name)
}

// persist upserts docs. Failures are logged and counted; the harvested
// records are returned to the caller either way.
func (o *Orchestrator) persist(ctx context.Context, run *models.HarvestRun, docs []models.Document) int {
	if o.sink == nil || len(docs) == 0 {
		return 0
	}
	stats, err := o.sink.UpsertDocuments(ctx, docs)
	if err != nil {
		run.ErrorsCount++
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Upsert failed: %v", err), run.Market)
		return stats.Upserted
	}
	if stats.Failed > 0 {
		run.ErrorsCount += stats.Failed
		o.log(run.ID, models.LogLevelWarn, fmt.Sprintf("Upsert: %d of %d documents failed", stats.Failed, stats.Ops), run.Market)
	}
	return stats.Upserted
}

func (o *Orchestrator) jitter(ctx context.Context) error {
	d := o.cfg.Harvest.MinDelay
	if span := o.cfg.Harvest.MaxDelay - o.cfg.Harvest.MinDelay; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) log(runID int64, level models.LogLevel, message, market string) {
	log.Printf("[%s] %s: %s", level, market, message)
	o.ledger.Log(&runID, level, message, market)
}
