package storage

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_harvester/models"
)

func ptr(f float64) *float64 { return &f }

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testDoc(addr string, price float64) models.Document {
	return models.Document{
		ID:            "id-" + addr,
		FullAddress:   addr,
		FullAddressCI: strings.ToLower(addr),
		Address:       addr,
		Price:         ptr(price),
		ListingStatus: "active",
		Status:        models.StatusActive,
		IsActive:      true,
		SourceURL:     "https://www.estately.com/listings/info/1",
		ScrapedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSQLiteStore_UpsertByNormalizedAddress(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	stats, err := store.UpsertDocuments(ctx, []models.Document{
		testDoc("123 Main St, Phoenix, AZ 85001", 650000),
		testDoc("456 Oak Ave, Phoenix, AZ 85004", 700000),
		{Address: "no key"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.UpsertStats{Ops: 2, Upserted: 2}, stats)

	stats, err = store.UpsertDocuments(ctx, []models.Document{testDoc("123 Main St, Phoenix, AZ 85001", 640000)})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)

	n, err := store.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	price, err := storedPrice(store, "123 main st, phoenix, az 85001")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 640000.0, *price)

	missing, err := storedPrice(store, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_UpsertEmpty(t *testing.T) {
	store := newTestSQLite(t)
	stats, err := store.UpsertDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Ops)
}

func TestSQLiteStore_RunLedger(t *testing.T) {
	store := newTestSQLite(t)

	run := &models.HarvestRun{
		RunUUID:   "run-1",
		Market:    "Phoenix, AZ",
		StartedAt: time.Now().Add(-time.Minute),
		Status:    models.RunStatusRunning,
		Mode:      "browser",
	}
	id, err := store.CreateRun(run)
	require.NoError(t, err)
	run.ID = id

	require.NoError(t, store.Log(&id, models.LogLevelInfo, "page 1: 12 cards", run.Market))
	require.NoError(t, store.Log(&id, models.LogLevelWarn, "navigation failed", run.Market))

	finished := time.Now()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	run.Mode = "http_only"
	run.Pages = 2
	run.ListingsFound = 7
	run.ListingsSaved = 7
	run.Dropped = 3
	require.NoError(t, store.UpdateRun(run))

	runs, err := store.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, "run-1", got.RunUUID)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, "http_only", got.Mode)
	assert.Equal(t, 7, got.ListingsFound)
	assert.Equal(t, 3, got.Dropped)
	assert.NotNil(t, got.FinishedAt)

	logs, err := store.RunLogs(id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.LogLevelWarn, logs[1].Level)
	assert.Equal(t, "Phoenix, AZ", logs[0].Market)
}

func TestDocumentArgs_MatchPlaceholders(t *testing.T) {
	d := testDoc("1 Elm", 1)
	assert.Len(t, documentArgs(&d), strings.Count(upsertDocumentSQL, "$"))
}

func TestDebugName(t *testing.T) {
	a := debugName(DebugHTTP, "https://www.estately.com/az/phoenix", "<html></html>")
	b := debugName(DebugHTTP, "https://www.estately.com/az/phoenix", "<html>changed</html>")
	assert.True(t, strings.HasPrefix(a, "http_"))
	assert.True(t, strings.HasSuffix(a, ".html"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(debugName(DebugNet, "u", "{}"), ".txt"))
}

func TestFileDebugSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	sink, err := NewFileDebugSink(dir)
	require.NoError(t, err)

	sink.Save(context.Background(), DebugDOM, "https://www.estately.com/az/phoenix", "<html>dom</html>")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "dom_"))
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "<html>dom</html>", string(data))
}

type fakePutter struct {
	keys   []string
	bodies []string
	types  []string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	f.types = append(f.types, aws.ToString(in.ContentType))
	return &s3.PutObjectOutput{}, nil
}

func TestS3DebugSink(t *testing.T) {
	putter := &fakePutter{}
	sink := NewS3DebugSink(&S3Uploader{client: putter, bucket: "harvest-debug"}, "estately")

	sink.Save(context.Background(), DebugNet, "https://www.estately.com/map/properties", `[{"id":1}]`)

	require.Len(t, putter.keys, 1)
	assert.True(t, strings.HasPrefix(putter.keys[0], "estately/"))
	assert.Contains(t, putter.keys[0], "/net_")
	assert.Equal(t, `[{"id":1}]`, putter.bodies[0])
	assert.Equal(t, "text/plain; charset=utf-8", putter.types[0])
	assert.Equal(t, "s3://harvest-debug/estately/x", (&S3Uploader{bucket: "harvest-debug"}).Location("/estately/x"))
}

func TestSQLiteStore_Recheck(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	old := testDoc("123 Main St, Phoenix, AZ 85001", 650000)
	old.ScrapedAt = time.Now().Add(-48 * time.Hour)
	fresh := testDoc("456 Oak Ave, Phoenix, AZ 85004", 700000)
	fresh.ScrapedAt = time.Now()
	_, err := store.UpsertDocuments(ctx, []models.Document{old, fresh})
	require.NoError(t, err)

	stale, err := store.StaleActiveDocuments(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.FullAddressCI, stale[0].FullAddressCI)
	assert.Equal(t, 650000.0, *stale[0].Price)

	require.NoError(t, store.MarkRechecked(ctx, old.FullAddressCI, true, ptr(625000)))
	stale, err = store.StaleActiveDocuments(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	price, err := storedPrice(store, old.FullAddressCI)
	require.NoError(t, err)
	assert.Equal(t, 625000.0, *price)

	require.NoError(t, store.MarkRechecked(ctx, fresh.FullAddressCI, false, nil))
	price, err = storedPrice(store, fresh.FullAddressCI)
	require.NoError(t, err)
	assert.Equal(t, 700000.0, *price)

	var status, docStatus string
	var active bool
	require.NoError(t, store.db.QueryRow(
		`SELECT status, is_active, json_extract(document, '$.status') FROM properties WHERE full_address_ci = ?`,
		fresh.FullAddressCI).Scan(&status, &active, &docStatus))
	assert.Equal(t, models.StatusInactive, status)
	assert.False(t, active)
	assert.Equal(t, models.StatusInactive, docStatus)
}

func storedPrice(store *SQLiteStore, fullAddressCI string) (*float64, error) {
	var price sql.NullFloat64
	err := store.db.QueryRow(`SELECT price FROM properties WHERE full_address_ci = ?`, fullAddressCI).Scan(&price)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil || !price.Valid {
		return nil, err
	}
	return &price.Float64, nil
}
