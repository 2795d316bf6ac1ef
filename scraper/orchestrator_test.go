package scraper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_harvester/browser"
	"listing_harvester/config"
	"listing_harvester/market"
	"listing_harvester/models"
	"listing_harvester/storage"
)

func newTestOrchestrator(t *testing.T, pages map[string]string) (*Orchestrator, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Harvest: config.HarvestConfig{
			Concurrency: 2,
			MaxPages:    2,
			Browser:     true,
			NavTimeout:  time.Second,
			WaitTimeout: time.Millisecond,
		},
		Site: testSite(),
	}
	o := NewOrchestrator(cfg, newFakeFetcher(pages), store)
	o.SetSinks(store, nil)
	o.delay = func(ctx context.Context) error { return ctx.Err() }
	return o, store
}

func searchURLFor(t *testing.T, name string) string {
	t.Helper()
	m, err := market.Parse(name)
	require.NoError(t, err)
	return market.BuildSearchURL(testSite().BaseURL, m, market.DefaultFilters())
}

func TestOrchestrator_RunIsolatesMarkets(t *testing.T) {
	o, store := newTestOrchestrator(t, map[string]string{
		searchURLFor(t, "Phoenix, AZ"): loadFixture(t, "search_page.html"),
		searchURLFor(t, "Mesa, AZ"):    loadFixture(t, "inline_page.html"),
	})

	markets := ParseMarkets([]string{"Phoenix, AZ", "Tucson, AZ", "Mesa, Arizona", "Nowhere"})
	require.Len(t, markets, 3)

	results := o.Run(context.Background(), markets, market.DefaultFilters())
	require.Len(t, results, 3)

	got := make(map[string]int)
	for _, r := range results {
		if r.Err == nil {
			got[r.Market.Name] = r.Saved
		}
	}
	if diff := cmp.Diff(map[string]int{"Phoenix, AZ": 2, "Mesa, Arizona": 1}, got); diff != "" {
		t.Fatalf("saved per market mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Tucson, AZ", results[1].Market.Name)
	assert.Error(t, results[1].Err)
	assert.Equal(t, ModeHTTPOnly, results[0].Result.Mode)

	n, err := store.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	runs, err := store.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	statuses := make(map[string]models.RunStatus)
	for _, r := range runs {
		statuses[r.Market] = r.Status
		assert.NotEmpty(t, r.RunUUID)
		assert.NotNil(t, r.FinishedAt)
	}
	assert.Equal(t, models.RunStatusFailed, statuses["Tucson, AZ"])
	assert.Equal(t, models.RunStatusCompleted, statuses["Phoenix, AZ"])
}

func TestOrchestrator_LaunchFailureRunsHTTPOnly(t *testing.T) {
	o, store := newTestOrchestrator(t, map[string]string{
		searchURLFor(t, "Phoenix, AZ"): loadFixture(t, "search_page.html"),
	})
	launches := 0
	o.SetLauncher(func() (browser.Driver, error) {
		launches++
		return nil, browser.ErrUnavailable
	})

	results := o.Run(context.Background(), ParseMarkets([]string{"Phoenix, AZ"}), market.DefaultFilters())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, launches)
	assert.Equal(t, ModeHTTPOnly, results[0].Result.Mode)
	assert.Len(t, results[0].Result.Listings, 2)

	runs, err := store.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "http_only", runs[0].Mode)
	assert.Equal(t, 2, runs[0].ListingsSaved)

	logs, err := store.RunLogs(runs[0].ID)
	require.NoError(t, err)
	var warned bool
	for _, l := range logs {
		if l.Level == models.LogLevelWarn {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOrchestrator_SharedBrowser(t *testing.T) {
	page := &fakePage{content: map[string]string{
		searchURLFor(t, "Phoenix, AZ"): loadFixture(t, "search_page.html"),
	}}
	driver := &fakeDriver{page: page}
	o, _ := newTestOrchestrator(t, nil)
	o.cfg.Harvest.Concurrency = 1
	o.SetLauncher(func() (browser.Driver, error) { return driver, nil })

	results := o.Run(context.Background(), ParseMarkets([]string{"Phoenix, AZ"}), market.DefaultFilters())
	require.NoError(t, results[0].Err)
	assert.Equal(t, ModeBrowser, results[0].Result.Mode)
	assert.Equal(t, 2, results[0].Saved)
	assert.Equal(t, 1, driver.newPages)
}

func TestOrchestrator_ConfiguredMarkets(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	o.cfg.Harvest.Markets = []string{"Phoenix, AZ", "bogus", "Boise, Idaho"}

	got, err := o.ConfiguredMarkets()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "phoenix", got[0].City)
	assert.Equal(t, "id", got[1].State)
}
