package scraper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_harvester/browser"
	"listing_harvester/config"
	"listing_harvester/filter"
	"listing_harvester/httputil"
	"listing_harvester/models"
	"listing_harvester/storage"
)

const (
	searchURL = "https://www.estately.com/az/phoenix?min_price=600000&min_beds=3&min_sqft=1000"
	page2URL  = "https://www.estately.com/az/phoenix?page=2"
	mapURL    = "https://www.estately.com/map/properties?bounds=33.2,-112.3"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

type fakeFetcher struct {
	mu        sync.Mutex
	pages     map[string]string
	fetched   []string
	canonical []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*httputil.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	body, ok := f.pages[url]
	if !ok {
		return &httputil.Response{Status: 404, FinalURL: url}, &httputil.StatusError{Status: 404, URL: url}
	}
	return &httputil.Response{Status: 200, Body: body, FinalURL: url}, nil
}

func (f *fakeFetcher) Canonicalize(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canonical = append(f.canonical, url)
	return url, nil
}

type response struct {
	url  string
	body string
}

type fakePage struct {
	content map[string]string
	// responses fire during Goto; late ones fire when the next link is read.
	responses []response
	late      []response
	gotoErr   error

	current string
	match   func(string) bool
	fn      browser.ResponseFunc
	gotos   []string
	closed  bool
}

func (p *fakePage) emit(rs []response) {
	if p.fn == nil {
		return
	}
	for _, r := range rs {
		if p.match(r.url) {
			p.fn(r.url, r.body)
		}
	}
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	p.gotos = append(p.gotos, url)
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.current = url
	p.emit(p.responses)
	return nil
}

func (p *fakePage) WaitFor(string, time.Duration) error { return nil }
func (p *fakePage) Scroll(int, time.Duration)           {}
func (p *fakePage) Pause(time.Duration)                 {}

func (p *fakePage) ClickText(text string, _ time.Duration) error {
	return errors.New("no element with text " + text)
}

func (p *fakePage) Attr(string, string) (string, bool) {
	p.emit(p.late)
	p.late = nil
	return "", false
}

func (p *fakePage) Content() (string, error) {
	return p.content[p.current], nil
}

func (p *fakePage) OnResponse(match func(string) bool, fn browser.ResponseFunc) {
	p.match = match
	p.fn = fn
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeDriver struct {
	page     *fakePage
	newPages int
}

func (d *fakeDriver) NewPage() (browser.Page, error) {
	d.newPages++
	return d.page, nil
}

func (d *fakeDriver) Close() error { return nil }

type recordingSink struct {
	mu    sync.Mutex
	kinds []string
}

func (s *recordingSink) Save(_ context.Context, kind, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
}

var _ storage.DebugSink = (*recordingSink)(nil)

func testSite() *config.Site {
	site := config.DefaultSite()
	return &site
}

func testHarvestConfig() config.HarvestConfig {
	return config.HarvestConfig{
		MaxPages:    3,
		NavTimeout:  time.Second,
		WaitTimeout: time.Millisecond,
	}
}

func testTarget() Target {
	return Target{
		Name: "Phoenix, AZ",
		URL:  searchURL,
		Thresholds: filter.Thresholds{
			MinPrice: 600000,
			MinBeds:  3,
			MinSqft:  1000,
		},
	}
}

func addresses(listings []models.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.Address
	}
	return out
}

func TestCollect_HTTPOnlyTwoListings(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{searchURL: loadFixture(t, "search_page.html")})
	sink := &recordingSink{}
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, nil, sink)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, ModeHTTPOnly, res.Mode)
	assert.Equal(t, 1, res.Pages)
	require.Equal(t, []string{"123 Main St", "456 Oak Ave"}, addresses(res.Listings))
	require.Len(t, res.Documents, 2)

	first := res.Listings[0]
	assert.Equal(t, "Phoenix", first.City)
	assert.Equal(t, "AZ", first.State)
	assert.Equal(t, "85001", first.Zip)
	assert.Equal(t, 650000.0, *first.Price)
	require.NotNil(t, first.Sqft)
	assert.Equal(t, 1200, *first.Sqft)
	assert.Equal(t, "https://www.estately.com/listings/info/123-main-st", first.SourceURL)

	second := res.Listings[1]
	assert.Equal(t, 700000.0, *second.Price)
	assert.Equal(t, 3.0, *second.Beds)
	assert.Equal(t, 2.0, *second.Baths)
	assert.Equal(t, "https://www.estately.com/listings/info/456-oak-ave", second.SourceURL)

	assert.Equal(t, "456 oak ave, phoenix, az 85004", res.Documents[1].FullAddressCI)
	assert.Equal(t, []string{searchURL}, fetcher.canonical)
	assert.Equal(t, []string{storage.DebugHTTP}, sink.kinds)
}

func TestCollect_BrowserPaginates(t *testing.T) {
	page := &fakePage{content: map[string]string{
		searchURL: loadFixture(t, "search_page_1.html"),
		page2URL:  loadFixture(t, "search_page_2.html"),
	}}
	driver := &fakeDriver{page: page}
	fetcher := newFakeFetcher(nil)
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, driver, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, ModeBrowser, res.Mode)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []string{searchURL, page2URL}, page.gotos)
	assert.Equal(t, []string{"123 Main St", "456 Oak Ave", "789 Elm Dr"}, addresses(res.Listings))
	assert.Equal(t, "https://www.estately.com/homes/789-elm-dr", res.Listings[2].SourceURL)
	assert.Equal(t, 1200000.0, *res.Listings[2].Price)
	assert.True(t, page.closed)
	assert.Empty(t, fetcher.fetched)
}

func TestCollect_NavigationFailureFallsBackToHTTP(t *testing.T) {
	page := &fakePage{gotoErr: errors.New("net::ERR_TIMED_OUT")}
	driver := &fakeDriver{page: page}
	fetcher := newFakeFetcher(map[string]string{searchURL: loadFixture(t, "search_page_1.html")})
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, driver, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, ModeHTTPOnly, res.Mode)
	assert.Equal(t, []string{"123 Main St", "456 Oak Ave"}, addresses(res.Listings))
	assert.Equal(t, 1, driver.newPages)
	assert.Len(t, page.gotos, 1)
	// The fallback is terminal for the target: one page, no next link followed.
	assert.Equal(t, []string{searchURL}, fetcher.fetched)
}

func TestCollect_NetworkWhenDOMEmpty(t *testing.T) {
	page := &fakePage{
		content: map[string]string{searchURL: loadFixture(t, "empty_page.html")},
		responses: []response{
			{url: "https://cdn.estately.com/static/app.css", body: "body{}"},
			{url: mapURL, body: loadFixture(t, "map_properties.json")},
		},
	}
	sink := &recordingSink{}
	c := NewCollector(testSite(), testHarvestConfig(), newFakeFetcher(nil), &fakeDriver{page: page}, sink)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, []string{"200 Palm Dr", "208 Palm Dr"}, addresses(res.Listings))
	for _, l := range res.Listings {
		assert.Equal(t, models.SourceNetwork, l.Source)
	}
	assert.Equal(t, "https://www.estately.com/listings/info/200-palm-dr", res.Listings[0].SourceURL)
	assert.Equal(t, searchURL, res.Listings[1].SourceURL)
	assert.Equal(t, []string{storage.DebugNet, storage.DebugDOM}, sink.kinds)
}

func TestCollect_SameListingFromDOMAndNetworkEmittedOnce(t *testing.T) {
	page := &fakePage{
		content: map[string]string{
			searchURL: loadFixture(t, "search_page_1.html"),
			page2URL:  loadFixture(t, "empty_page.html"),
		},
		responses: []response{
			{url: "https://www.estately.com/graphql", body: loadFixture(t, "graphql_homes.json")},
		},
	}
	c := NewCollector(testSite(), testHarvestConfig(), newFakeFetcher(nil), &fakeDriver{page: page}, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	// Page 2 only has the network capture, which repeats 123 Main St at the
	// same price already taken from the page 1 DOM.
	assert.Equal(t, []string{"123 Main St", "456 Oak Ave", "210 Palm Dr"}, addresses(res.Listings))
	assert.Equal(t, models.SourceDOM, res.Listings[0].Source)
	assert.Equal(t, models.SourceNetwork, res.Listings[2].Source)
	require.Len(t, res.Documents, 3)
}

func TestCollect_InlineFallback(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{searchURL: loadFixture(t, "inline_page.html")})
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, nil, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	require.Len(t, res.Listings, 1)
	l := res.Listings[0]
	assert.Equal(t, "10 Cactus Ln", l.Address)
	assert.Equal(t, models.SourceInline, l.Source)
	assert.Equal(t, 615000.0, *l.Price)
	assert.Equal(t, "https://www.estately.com/listings/info/10-cactus-ln", l.SourceURL)
}

func TestCollect_FinalNetworkSweep(t *testing.T) {
	page := &fakePage{
		content: map[string]string{searchURL: loadFixture(t, "empty_page.html")},
		late:    []response{{url: mapURL, body: loadFixture(t, "map_properties.json")}},
	}
	c := NewCollector(testSite(), testHarvestConfig(), newFakeFetcher(nil), &fakeDriver{page: page}, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, []string{"200 Palm Dr", "208 Palm Dr"}, addresses(res.Listings))
}

func TestCollect_DetailEnrichment(t *testing.T) {
	detailURL := "https://www.estately.com/listings/info/55-ridge-rd"
	fetcher := newFakeFetcher(map[string]string{
		searchURL: loadFixture(t, "thin_card_page.html"),
		detailURL: loadFixture(t, "detail_page.html"),
	})
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, nil, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.NoError(t, err)

	require.Len(t, res.Listings, 1)
	l := res.Listings[0]
	assert.Equal(t, "55 Ridge Rd", l.Address)
	assert.Equal(t, "Chandler", l.City)
	assert.Equal(t, "85224", l.Zip)
	assert.Equal(t, 800000.0, *l.Price)
	assert.Equal(t, models.SourceDOM, l.Source)
	assert.Equal(t, detailURL, l.SourceURL)
	assert.Contains(t, fetcher.fetched, detailURL)
}

func TestCollect_ThresholdsDropCandidates(t *testing.T) {
	fetcher := newFakeFetcher(map[string]string{searchURL: loadFixture(t, "search_page.html")})
	c := NewCollector(testSite(), testHarvestConfig(), fetcher, nil, nil)

	target := testTarget()
	target.Thresholds.MinPrice = 680000
	res, err := c.Collect(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, []string{"456 Oak Ave"}, addresses(res.Listings))
	assert.Equal(t, 1, res.Dropped)
}

func TestCollect_FirstPageHTTPFailure(t *testing.T) {
	c := NewCollector(testSite(), testHarvestConfig(), newFakeFetcher(nil), nil, nil)

	res, err := c.Collect(context.Background(), testTarget())
	require.Error(t, err)

	var se *httputil.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Empty(t, res.Listings)
}
