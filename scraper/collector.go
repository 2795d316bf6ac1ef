package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"listing_harvester/browser"
	"listing_harvester/config"
	"listing_harvester/extract"
	"listing_harvester/filter"
	"listing_harvester/httputil"
	"listing_harvester/logging"
	"listing_harvester/models"
	"listing_harvester/normalize"
	"listing_harvester/storage"
)

type Mode string

const (
	ModeBrowser  Mode = "browser"
	ModeHTTPOnly Mode = "http_only"
)

// Fetcher is the outbound HTTP transport.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httputil.Response, error)
	Canonicalize(ctx context.Context, url string) (string, error)
}

// Target is one market search.
type Target struct {
	Name       string
	URL        string
	Thresholds filter.Thresholds
}

// Result is a target's harvest in discovery order.
type Result struct {
	Listings  []models.Listing
	Documents []models.Document
	Mode      Mode
	Pages     int
	Dropped   int
}

// Collector walks one target's result pages through the fetch ladder.
type Collector struct {
	site    *config.Site
	cfg     config.HarvestConfig
	fetcher Fetcher
	driver  browser.Driver
	ext     *extract.Extractor
	norm    *normalize.Normalizer
	gate    *filter.Gate
	debug   storage.DebugSink
}

// NewCollector builds a collector. driver and debug may be nil; without a
// driver every target runs HTTP-only.
func NewCollector(site *config.Site, cfg config.HarvestConfig, fetcher Fetcher, driver browser.Driver, debug storage.DebugSink) *Collector {
	ext := extract.New(site)
	return &Collector{
		site:    site,
		cfg:     cfg,
		fetcher: fetcher,
		driver:  driver,
		ext:     ext,
		norm:    normalize.New(ext),
		gate:    filter.NewGate(),
		debug:   debug,
	}
}

// harvest is the per-target state. Nothing in it is shared across targets.
type harvest struct {
	target  Target
	seen    *filter.Deduper
	bucket  *extract.Bucket
	result  *Result
	pageURL string
}

func (h *harvest) drop(c *models.RawCandidate, reason error) {
	h.result.Dropped++
	logging.Debugf("%s: drop %s candidate %q: %v", h.target.Name, c.Source, c.Address, reason)
}

// Collect harvests t. The returned result is valid even when err is set.
func (c *Collector) Collect(ctx context.Context, t Target) (*Result, error) {
	bucketSize := c.site.SweepWindow
	if bucketSize < c.site.NetworkWindow {
		bucketSize = c.site.NetworkWindow
	}
	h := &harvest{
		target: t,
		seen:   filter.NewDeduper(),
		bucket: extract.NewBucket(bucketSize * 4),
		result: &Result{Mode: ModeBrowser},
	}

	if c.driver == nil {
		h.result.Mode = ModeHTTPOnly
		return h.result, c.collectHTTP(ctx, h, t.URL, c.maxPages())
	}

	page, err := c.driver.NewPage()
	if err != nil {
		log.Printf("%s: no browser page (%v), running HTTP-only", t.Name, err)
		h.result.Mode = ModeHTTPOnly
		return h.result, c.collectHTTP(ctx, h, t.URL, c.maxPages())
	}
	defer page.Close()

	return h.result, c.collectBrowser(ctx, h, page)
}

func (c *Collector) maxPages() int {
	if c.cfg.MaxPages < 1 {
		return 1
	}
	return c.cfg.MaxPages
}

func (c *Collector) collectBrowser(ctx context.Context, h *harvest, page browser.Page) error {
	page.OnResponse(c.ext.Interesting, func(url, body string) {
		h.bucket.Add(extract.Capture{URL: url, Body: body})
		c.save(ctx, storage.DebugNet, url, body)
	})

	url := h.target.URL
	for i := 0; i < c.maxPages() && url != ""; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := page.Goto(url, c.cfg.NavTimeout); err != nil {
			log.Printf("%s: navigation failed, falling back to HTTP: %v", h.target.Name, err)
			h.result.Mode = ModeHTTPOnly
			return c.collectHTTP(ctx, h, url, 1)
		}
		h.result.Pages++
		h.pageURL = url

		c.settle(page)

		html, err := page.Content()
		if err != nil {
			log.Printf("%s: read rendered DOM: %v", h.target.Name, err)
		}
		c.save(ctx, storage.DebugDOM, url, html)

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fmt.Errorf("parse rendered page: %w", err)
		}
		logging.Debugf("%s: net blobs so far: %d", h.target.Name, h.bucket.Len())

		c.harvestPage(ctx, h, doc, true)

		next := c.renderedNext(page)
		if next == "" {
			next = c.staticNext(doc)
		}
		if next == url {
			break
		}
		url = next
	}

	if len(h.result.Listings) == 0 && h.bucket.Len() > 0 {
		before := len(h.result.Listings)
		for _, capture := range h.bucket.Last(c.site.SweepWindow) {
			for _, cand := range c.ext.Network(capture) {
				c.admit(h, cand)
			}
		}
		logging.Debugf("%s: final network sweep: %d", h.target.Name, len(h.result.Listings)-before)
	}
	return nil
}

// settle dismisses overlays and waits for cards. A wait that times out is
// not an error; the page is harvested as it stands.
func (c *Collector) settle(page browser.Page) {
	for _, text := range c.site.BannerTexts {
		if page.ClickText(text, 1500*time.Millisecond) == nil {
			break
		}
	}
	for _, text := range c.site.PrimeTexts {
		page.ClickText(text, 2*time.Second)
	}
	page.Pause(time.Second)

	c.waitForListings(page)

	page.Scroll(2, 400*time.Millisecond)
	page.Pause(800 * time.Millisecond)
}

func (c *Collector) waitForListings(page browser.Page) {
	for round := 0; round < c.site.WaitRounds; round++ {
		for _, sel := range c.site.WaitSelectors {
			if page.WaitFor(sel, c.cfg.WaitTimeout) == nil {
				return
			}
		}
		page.Scroll(2, 500*time.Millisecond)
	}
}

func (c *Collector) collectHTTP(ctx context.Context, h *harvest, url string, pages int) error {
	if canonical, err := c.fetcher.Canonicalize(ctx, url); err != nil {
		logging.Debugf("%s: canonicalize failed, continuing with original: %v", h.target.Name, err)
	} else {
		url = canonical
	}

	for i := 0; i < pages && url != ""; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			if i == 0 {
				return fmt.Errorf("http fetch %s: %w", url, err)
			}
			log.Printf("%s: http fetch page %d failed: %v", h.target.Name, i+1, err)
			return nil
		}
		c.save(ctx, storage.DebugHTTP, url, res.Body)
		h.result.Pages++
		h.pageURL = url

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
		if err != nil {
			return fmt.Errorf("parse page: %w", err)
		}
		c.harvestPage(ctx, h, doc, false)

		next := c.staticNext(doc)
		if next == url {
			break
		}
		url = next
	}
	return nil
}

// harvestPage runs the extraction cascade on one page: DOM cards, then
// captured network bodies, then inline scripts, each only when everything
// before it yielded nothing.
func (c *Collector) harvestPage(ctx context.Context, h *harvest, doc *goquery.Document, captures bool) {
	yield := 0
	cards := c.ext.Cards(doc.Selection)
	for _, card := range cards {
		if c.admit(h, c.cardCandidate(ctx, h, card)) {
			yield++
		}
	}
	logging.Debugf("%s: DOM cards: %d, admitted: %d", h.target.Name, len(cards), yield)

	if yield == 0 && captures {
		for _, capture := range h.bucket.Last(c.site.NetworkWindow) {
			for _, cand := range c.ext.Network(capture) {
				if c.admit(h, cand) {
					yield++
				}
			}
		}
		logging.Debugf("%s: harvested from NET: %d", h.target.Name, yield)
	}

	if yield == 0 {
		for _, cand := range c.ext.Inline(doc) {
			if c.admit(h, cand) {
				yield++
			}
		}
		logging.Debugf("%s: harvested from INLINE: %d", h.target.Name, yield)
	}
}

// cardCandidate reads a card, lays its structured data underneath, and
// falls back to the detail page when the card has no usable location.
func (c *Collector) cardCandidate(ctx context.Context, h *harvest, card *goquery.Selection) models.RawCandidate {
	cand := c.ext.Card(card)
	if ld, ok := c.ext.Structured(card); ok {
		merged, err := normalize.Merge(cand, ld)
		if err != nil {
			log.Printf("%s: %v", h.target.Name, err)
		} else {
			cand = merged
		}
	}

	if c.gate.Floor(&cand) != nil && cand.Href != "" {
		if detail, ok := c.detail(ctx, h, cand.Href); ok {
			merged, err := normalize.Merge(cand, detail)
			if err == nil {
				cand = merged
			}
		}
	}
	return cand
}

// detail mines the inline state of a listing's own page and returns the
// first candidate that has a location and clears the minimums.
func (c *Collector) detail(ctx context.Context, h *harvest, href string) (models.RawCandidate, bool) {
	res, err := c.fetcher.Fetch(ctx, href)
	if err != nil {
		logging.Debugf("%s: detail fetch failed: %v", h.target.Name, err)
		return models.RawCandidate{}, false
	}
	c.save(ctx, storage.DebugHTTP, href, res.Body)

	th := h.target.Thresholds
	for _, cand := range c.ext.InlineHTML(res.Body) {
		if c.gate.Floor(&cand) != nil {
			continue
		}
		if !filter.PassesMin(cand.Price, th.MinPrice) || !filter.PassesMin(cand.Beds, th.MinBeds) || !filter.PassesMin(cand.Sqft, th.MinSqft) {
			continue
		}
		if cand.Href == "" {
			cand.Href = href
		}
		return cand, true
	}
	return models.RawCandidate{}, false
}

// admit applies the gate, thresholds, status and dedupe to one candidate.
// It reports whether the candidate qualified, duplicates included.
func (c *Collector) admit(h *harvest, cand models.RawCandidate) bool {
	if err := c.gate.Admit(&cand); err != nil {
		h.drop(&cand, err)
		return false
	}
	if !h.target.Thresholds.Pass(&cand) {
		h.drop(&cand, filter.ErrThreshold)
		return false
	}

	listing := c.norm.Build(cand, h.pageURL)
	if !listing.Active {
		h.drop(&cand, filter.ErrInactive)
		return false
	}
	if err := c.gate.Check(&listing); err != nil {
		h.drop(&cand, err)
		return false
	}
	if !h.seen.First(&listing) {
		logging.Debugf("%s: %v: %s", h.target.Name, filter.ErrDuplicate, listing.Address)
		return true
	}

	h.result.Listings = append(h.result.Listings, listing)
	h.result.Documents = append(h.result.Documents, c.norm.Document(listing))
	return true
}

func (c *Collector) renderedNext(page browser.Page) string {
	if href, ok := page.Attr(strings.Join(c.site.NextSelectors, ", "), "href"); ok {
		return c.ext.Absolute(strings.TrimSpace(href))
	}
	return ""
}

func (c *Collector) staticNext(doc *goquery.Document) string {
	href, ok := doc.Find(strings.Join(c.site.NextSelectors, ", ")).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return c.ext.Absolute(strings.TrimSpace(href))
}

func (c *Collector) save(ctx context.Context, kind, url, body string) {
	if c.debug == nil || body == "" {
		return
	}
	c.debug.Save(ctx, kind, url, body)
}
