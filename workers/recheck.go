package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"listing_harvester/extract"
	"listing_harvester/filter"
	"listing_harvester/httputil"
	"listing_harvester/identity"
	"listing_harvester/models"
)

// RecheckStore is the persistence the recheck worker needs.
type RecheckStore interface {
	StaleActiveDocuments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error)
	MarkRechecked(ctx context.Context, fullAddressCI string, active bool, price *float64) error
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httputil.Response, error)
}

var delistIndicators = []string{
	"this listing is no longer available",
	"listing has been removed",
	"no longer on the market",
}

var delistRedirects = []string{"/search", "/map", "notfound", "error"}

// RecheckWorker revisits stored active listings and marks the ones that
// have gone off market. Price changes seen on the way are written back.
type RecheckWorker struct {
	store     RecheckStore
	fetcher   Fetcher
	ext       *extract.Extractor
	triggerCh chan struct{}
	logFunc   LogFunc
	pause     time.Duration
}

func NewRecheckWorker(store RecheckStore, fetcher Fetcher, ext *extract.Extractor) *RecheckWorker {
	return &RecheckWorker{
		store:     store,
		fetcher:   fetcher,
		ext:       ext,
		triggerCh: make(chan struct{}, 1),
		logFunc:   NoOpLogger,
		pause:     500 * time.Millisecond,
	}
}

func (w *RecheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run immediately
func (w *RecheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Verdict is the outcome of checking one listing page.
type Verdict struct {
	Live       bool
	StatusCode int
	Price      *float64
	Err        error
}

// Check fetches a listing page and decides whether it is still for sale.
// address is the stored street address, used to tell the listing apart from
// other homes embedded in the page.
func (w *RecheckWorker) Check(ctx context.Context, listingURL, address string) Verdict {
	res, err := w.fetcher.Fetch(ctx, listingURL)
	var se *httputil.StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case 404, 410:
			return Verdict{StatusCode: se.Status}
		}
		return Verdict{StatusCode: se.Status, Err: err}
	}
	if err != nil {
		return Verdict{Err: err}
	}

	v := Verdict{Live: true, StatusCode: res.Status}
	if res.FinalURL != "" && res.FinalURL != listingURL && isDelistRedirect(res.FinalURL) {
		v.Live = false
		return v
	}
	if isDelistedPage(res.Body) {
		v.Live = false
		return v
	}

	if status, ok := w.ext.InlineStatus(res.Body); ok {
		if _, active := filter.Status(status, ""); !active {
			v.Live = false
			return v
		}
	}
	if c, ok := w.pick(w.ext.InlineHTML(res.Body), listingURL, address); ok {
		v.Price = c.Price
		return v
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err == nil {
		if c, ok := w.ext.Structured(doc.Selection); ok {
			v.Price = c.Price
		}
	}
	return v
}

// pick returns the inline candidate describing the listing itself: one
// linking to listingURL, else one at address. A lone candidate is taken as
// the listing.
func (w *RecheckWorker) pick(cands []models.RawCandidate, listingURL, address string) (models.RawCandidate, bool) {
	want := identity.NormalizeAddress(address)
	for _, c := range cands {
		if c.Href != "" && samePage(w.ext.Absolute(c.Href), listingURL) {
			return c, true
		}
	}
	if want != "" {
		for _, c := range cands {
			if identity.NormalizeAddress(c.Address) == want {
				return c, true
			}
		}
	}
	if len(cands) == 1 {
		return cands[0], true
	}
	return models.RawCandidate{}, false
}

func samePage(a, b string) bool {
	trim := func(u string) string {
		if i := strings.IndexAny(u, "?#"); i >= 0 {
			u = u[:i]
		}
		return strings.TrimSuffix(u, "/")
	}
	return trim(a) == trim(b)
}

func isDelistedPage(html string) bool {
	lower := strings.ToLower(html)
	for _, indicator := range delistIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func isDelistRedirect(location string) bool {
	lower := strings.ToLower(location)
	for _, pattern := range delistRedirects {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Run starts the worker loop
func (w *RecheckWorker) Run(ctx context.Context, staleAfter time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Recheck worker stopping")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx, staleAfter, batchSize)
		case <-w.triggerCh:
			log.Println("Recheck worker triggered manually")
			w.ProcessBatch(ctx, staleAfter, batchSize)
		}
	}
}

// BatchStats counts one batch's outcomes.
type BatchStats struct {
	Checked      int
	Delisted     int
	PriceChanges int
	Errors       int
}

func (w *RecheckWorker) ProcessBatch(ctx context.Context, staleAfter time.Duration, batchSize int) BatchStats {
	var stats BatchStats
	docs, err := w.store.StaleActiveDocuments(ctx, staleAfter, batchSize)
	if err != nil {
		log.Printf("Recheck: query error: %v", err)
		return stats
	}
	if len(docs) == 0 {
		return stats
	}

	log.Printf("Recheck: checking %d stale listings", len(docs))
	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && w.pause > 0 {
			time.Sleep(w.pause)
		}

		v := w.Check(ctx, doc.SourceURL, doc.Address)
		stats.Checked++
		if v.Err != nil {
			// Transport trouble says nothing about the listing; leave it for
			// the next pass.
			log.Printf("Recheck: error checking %s: %v", doc.SourceURL, v.Err)
			stats.Errors++
			continue
		}

		var price *float64
		if !v.Live {
			log.Printf("Recheck: listing off market (status %d): %s", v.StatusCode, doc.SourceURL)
			stats.Delisted++
		} else if v.Price != nil && (doc.Price == nil || *doc.Price != *v.Price) {
			if doc.Price != nil {
				log.Printf("Recheck: price change %s: $%.0f -> $%.0f", doc.SourceURL, *doc.Price, *v.Price)
			}
			price = v.Price
			stats.PriceChanges++
		}

		if err := w.store.MarkRechecked(ctx, doc.FullAddressCI, v.Live, price); err != nil {
			log.Printf("Recheck: failed to record %s: %v", doc.FullAddressCI, err)
			stats.Errors++
		}
	}

	if stats.Delisted > 0 || stats.PriceChanges > 0 {
		msg := fmt.Sprintf("Checked %d listings", stats.Checked)
		if stats.Delisted > 0 {
			msg += fmt.Sprintf(", %d off market", stats.Delisted)
		}
		if stats.PriceChanges > 0 {
			msg += fmt.Sprintf(", %d price changes", stats.PriceChanges)
		}
		w.logFunc(models.LogLevelInfo, "recheck", msg)
	}
	return stats
}
