package commands

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"listing_harvester/browser"
	"listing_harvester/config"
	"listing_harvester/extract"
	"listing_harvester/httputil"
	"listing_harvester/models"
	"listing_harvester/scraper"
	"listing_harvester/storage"
	"listing_harvester/workers"
)

// app is the wired pipeline shared by the run and daemon commands.
type app struct {
	sqlite  *storage.SQLiteStore
	pg      *storage.PostgresStore
	fetcher *httputil.Client
	orch    *scraper.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	sqlite, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	a.sqlite = sqlite
	log.Printf("SQLite database: %s", cfg.DBPath)

	var sink storage.Sink = sqlite
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pg = pg
		if err := pg.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		sink = pg
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
	}

	debug, err := newDebugSink(ctx, cfg)
	if err != nil {
		log.Printf("Warning: debug capture disabled: %v", err)
	}

	a.fetcher = httputil.NewClient(&cfg.Proxy, &cfg.HTTP)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.Proxy.URL))
	}

	a.orch = scraper.NewOrchestrator(cfg, a.fetcher, sqlite)
	a.orch.SetSinks(sink, debug)
	a.orch.SetLauncher(func() (browser.Driver, error) {
		pw, err := browser.Launch(browser.Options{Headless: cfg.Harvest.Headless, Proxy: cfg.Proxy.URL})
		if err != nil {
			return nil, err
		}
		return pw, nil
	})
	return a, nil
}

// recheckWorker checks listings in whichever store receives harvests and
// logs its summaries to the local ledger.
func (a *app) recheckWorker(site *config.Site) *workers.RecheckWorker {
	var store workers.RecheckStore = a.sqlite
	if a.pg != nil {
		store = a.pg
	}
	w := workers.NewRecheckWorker(store, a.fetcher, extract.New(site))
	w.SetLogger(func(level models.LogLevel, source, message string) {
		if err := a.sqlite.Log(nil, level, message, source); err != nil {
			log.Printf("Warning: failed to write %s log: %v", source, err)
		}
	})
	return w
}

func (a *app) Close() {
	if a.pg != nil {
		a.pg.Close()
	}
	if a.sqlite != nil {
		a.sqlite.Close()
	}
}

// newDebugSink returns nil when capture is off.
func newDebugSink(ctx context.Context, cfg *config.Config) (storage.DebugSink, error) {
	if !cfg.Debug.Enabled {
		return nil, nil
	}
	if cfg.Debug.S3Bucket != "" {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.Debug.S3Bucket,
			Region:          cfg.Debug.S3Region,
			Endpoint:        cfg.Debug.S3Endpoint,
			AccessKeyID:     cfg.Debug.AccessKey,
			SecretAccessKey: cfg.Debug.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("Debug capture: %s", uploader.Location(cfg.Site.ID))
		return storage.NewS3DebugSink(uploader, cfg.Site.ID), nil
	}

	sink, err := storage.NewFileDebugSink(cfg.Debug.Dir)
	if err != nil {
		return nil, err
	}
	log.Printf("Debug capture: %s", cfg.Debug.Dir)
	return sink, nil
}

// maskConnectionString hides the password in a URL-style connection string.
func maskConnectionString(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
