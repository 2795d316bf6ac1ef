package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"listing_harvester/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		full_address_ci TEXT PRIMARY KEY,
		id TEXT,
		full_address TEXT,
		address TEXT,
		city TEXT,
		state TEXT,
		zip TEXT,
		price REAL,
		beds REAL,
		baths REAL,
		sqft INTEGER,
		listing_status TEXT,
		status TEXT,
		is_active BOOLEAN,
		source_url TEXT,
		document JSON,
		scraped_at DATETIME,
		checked_at DATETIME,
		first_seen_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS harvest_runs (
		id INTEGER PRIMARY KEY,
		run_uuid TEXT,
		market TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		mode TEXT,
		pages INTEGER,
		listings_found INTEGER,
		listings_saved INTEGER,
		dropped INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS harvest_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		market TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_properties_state_city ON properties(state, city);
	CREATE INDEX IF NOT EXISTS idx_properties_active ON properties(is_active, checked_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON harvest_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_market ON harvest_runs(market, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertDocuments writes docs in one transaction. Rows that fail are
// counted and skipped.
func (s *SQLiteStore) UpsertDocuments(ctx context.Context, docs []models.Document) (models.UpsertStats, error) {
	docs = upsertable(docs)
	stats := models.UpsertStats{Ops: len(docs)}
	if len(docs) == 0 {
		return stats, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO properties (full_address_ci, id, full_address, address, city, state, zip,
			price, beds, baths, sqft, listing_status, status, is_active, source_url, document,
			scraped_at, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_address_ci) DO UPDATE SET
			id = excluded.id,
			full_address = excluded.full_address,
			address = excluded.address,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			price = excluded.price,
			beds = excluded.beds,
			baths = excluded.baths,
			sqft = excluded.sqft,
			listing_status = excluded.listing_status,
			status = excluded.status,
			is_active = excluded.is_active,
			source_url = excluded.source_url,
			document = excluded.document,
			scraped_at = excluded.scraped_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return stats, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range docs {
		d := &docs[i]
		_, err := stmt.ExecContext(ctx,
			d.FullAddressCI, d.ID, d.FullAddress, d.Address, d.City, d.State, d.Zip,
			d.Price, d.Details.Beds, d.Details.Baths, d.Details.Sqft,
			d.ListingStatus, d.Status, d.IsActive, d.SourceURL, string(documentJSON(d)),
			d.ScrapedAt.UTC(), now, now)
		if err != nil {
			stats.Failed++
			continue
		}
		stats.Upserted++
	}

	if err := tx.Commit(); err != nil {
		return models.UpsertStats{Ops: len(docs), Failed: len(docs)}, fmt.Errorf("commit: %w", err)
	}
	return stats, nil
}

// CountDocuments returns how many listing documents are stored.
func (s *SQLiteStore) CountDocuments() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM properties`).Scan(&n)
	return n, err
}

// StaleActiveDocuments returns active documents not checked, or scraped,
// within olderThan. Oldest first.
func (s *SQLiteStore) StaleActiveDocuments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, `
		SELECT full_address_ci, address, price, source_url
		FROM properties
		WHERE is_active = 1 AND source_url != '' AND COALESCE(checked_at, scraped_at) < ?
		ORDER BY COALESCE(checked_at, scraped_at) ASC
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var price sql.NullFloat64
		if err := rows.Scan(&d.FullAddressCI, &d.Address, &price, &d.SourceURL); err != nil {
			return nil, err
		}
		if price.Valid {
			d.Price = &price.Float64
		}
		d.IsActive = true
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkRechecked records a recheck verdict. A nil price keeps the stored one.
func (s *SQLiteStore) MarkRechecked(ctx context.Context, fullAddressCI string, active bool, price *float64) error {
	status := models.StatusActive
	if !active {
		status = models.StatusInactive
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		UPDATE properties SET
			is_active = ?,
			status = ?,
			listing_status = CASE WHEN ? THEN listing_status ELSE ? END,
			price = COALESCE(?, price),
			document = json_set(document,
				'$.status', ?, '$.isActive', json(?), '$.forSale', json(?),
				'$.price', COALESCE(?, json_extract(document, '$.price'))),
			checked_at = ?,
			updated_at = ?
		WHERE full_address_ci = ?`,
		active, status, active, status, price,
		status, strconv.FormatBool(active), strconv.FormatBool(active), price,
		now, now, fullAddressCI)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.HarvestRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO harvest_runs (run_uuid, market, started_at, status, mode, pages,
			listings_found, listings_saved, dropped, errors_count)
		VALUES (?, ?, ?, ?, ?, 0, 0, 0, 0, 0)`,
		run.RunUUID, run.Market, run.StartedAt, run.Status, run.Mode)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.HarvestRun) error {
	_, err := s.db.Exec(`
		UPDATE harvest_runs SET finished_at = ?, status = ?, mode = ?, pages = ?,
			listings_found = ?, listings_saved = ?, dropped = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.Mode, run.Pages,
		run.ListingsFound, run.ListingsSaved, run.Dropped, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, market string) error {
	_, err := s.db.Exec(`
		INSERT INTO harvest_logs (run_id, timestamp, level, message, market)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, market)
	return err
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.HarvestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_uuid, market, started_at, finished_at, status, mode, pages,
			listings_found, listings_saved, dropped, errors_count
		FROM harvest_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.HarvestRun
	for rows.Next() {
		var r models.HarvestRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.RunUUID, &r.Market, &r.StartedAt, &finished, &r.Status, &r.Mode,
			&r.Pages, &r.ListingsFound, &r.ListingsSaved, &r.Dropped, &r.ErrorsCount); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RunLogs(runID int64) ([]models.HarvestLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, market
		FROM harvest_logs WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.HarvestLog
	for rows.Next() {
		var l models.HarvestLog
		var rid sql.NullInt64
		if err := rows.Scan(&l.ID, &rid, &l.Timestamp, &l.Level, &l.Message, &l.Market); err != nil {
			return nil, err
		}
		if rid.Valid {
			l.RunID = &rid.Int64
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
