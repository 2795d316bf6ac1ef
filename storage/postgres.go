package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing_harvester/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS properties (
			full_address_ci TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			full_address TEXT,
			address TEXT,
			city TEXT,
			state TEXT,
			zip TEXT,
			price NUMERIC,
			beds NUMERIC,
			baths NUMERIC,
			sqft INTEGER,
			agent_name TEXT,
			agent_phone TEXT,
			agent_email TEXT,
			broker TEXT,
			broker_phone TEXT,
			broker_email TEXT,
			listing_status TEXT,
			status TEXT,
			is_active BOOLEAN,
			source_url TEXT,
			document JSONB,
			scraped_at TIMESTAMPTZ,
			checked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_properties_state_city ON properties(state, city);
		CREATE INDEX IF NOT EXISTS idx_properties_active ON properties(is_active, checked_at);`)
	return err
}

const upsertDocumentSQL = `
	INSERT INTO properties (
		full_address_ci, id, full_address, address, city, state, zip, price, beds, baths, sqft,
		agent_name, agent_phone, agent_email, broker, broker_phone, broker_email,
		listing_status, status, is_active, source_url, document, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23
	)
	ON CONFLICT (full_address_ci) DO UPDATE SET
		id = EXCLUDED.id,
		full_address = EXCLUDED.full_address,
		address = EXCLUDED.address,
		city = COALESCE(NULLIF(EXCLUDED.city, ''), properties.city),
		state = COALESCE(NULLIF(EXCLUDED.state, ''), properties.state),
		zip = COALESCE(NULLIF(EXCLUDED.zip, ''), properties.zip),
		price = COALESCE(EXCLUDED.price, properties.price),
		beds = COALESCE(EXCLUDED.beds, properties.beds),
		baths = COALESCE(EXCLUDED.baths, properties.baths),
		sqft = COALESCE(EXCLUDED.sqft, properties.sqft),
		agent_name = COALESCE(NULLIF(EXCLUDED.agent_name, ''), properties.agent_name),
		agent_phone = COALESCE(NULLIF(EXCLUDED.agent_phone, ''), properties.agent_phone),
		agent_email = COALESCE(NULLIF(EXCLUDED.agent_email, ''), properties.agent_email),
		broker = COALESCE(NULLIF(EXCLUDED.broker, ''), properties.broker),
		broker_phone = COALESCE(NULLIF(EXCLUDED.broker_phone, ''), properties.broker_phone),
		broker_email = COALESCE(NULLIF(EXCLUDED.broker_email, ''), properties.broker_email),
		listing_status = EXCLUDED.listing_status,
		status = EXCLUDED.status,
		is_active = EXCLUDED.is_active,
		source_url = EXCLUDED.source_url,
		document = EXCLUDED.document,
		scraped_at = EXCLUDED.scraped_at,
		updated_at = NOW()`

func documentArgs(d *models.Document) []any {
	return []any{
		d.FullAddressCI, d.ID, d.FullAddress, d.Address, d.City, d.State, d.Zip,
		d.Price, d.Details.Beds, d.Details.Baths, d.Details.Sqft,
		d.AgentName, d.AgentPhone, d.AgentEmail, d.Broker, d.BrokerPhone, d.BrokerEmail,
		d.ListingStatus, d.Status, d.IsActive, d.SourceURL, documentJSON(d), d.ScrapedAt,
	}
}

// UpsertDocuments sends docs as one batch. A batch runs as a single implicit
// transaction, so when it fails the documents are retried one at a time and
// only the bad ones are counted as failed.
func (s *PostgresStore) UpsertDocuments(ctx context.Context, docs []models.Document) (models.UpsertStats, error) {
	docs = upsertable(docs)
	stats := models.UpsertStats{Ops: len(docs)}
	if len(docs) == 0 {
		return stats, nil
	}

	batch := &pgx.Batch{}
	for i := range docs {
		batch.Queue(upsertDocumentSQL, documentArgs(&docs[i])...)
	}

	br := s.pool.SendBatch(ctx, batch)
	var batchErr error
	for range docs {
		if _, err := br.Exec(); err != nil {
			batchErr = err
			break
		}
	}
	if err := br.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	if batchErr == nil {
		stats.Upserted = len(docs)
		return stats, nil
	}
	if ctx.Err() != nil {
		stats.Failed = len(docs)
		return stats, ctx.Err()
	}

	log.Printf("Batch upsert failed, retrying individually: %v", batchErr)
	for i := range docs {
		if _, err := s.pool.Exec(ctx, upsertDocumentSQL, documentArgs(&docs[i])...); err != nil {
			log.Printf("Upsert %s failed: %v", docs[i].FullAddressCI, err)
			stats.Failed++
			continue
		}
		stats.Upserted++
	}
	return stats, nil
}

// StaleActiveDocuments returns active documents not checked, or scraped,
// within olderThan. Oldest first.
func (s *PostgresStore) StaleActiveDocuments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT full_address_ci, address, price::float8, source_url
		FROM properties
		WHERE is_active AND source_url <> '' AND COALESCE(checked_at, scraped_at) < $1
		ORDER BY COALESCE(checked_at, scraped_at) ASC
		LIMIT $2`, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.FullAddressCI, &d.Address, &d.Price, &d.SourceURL); err != nil {
			return nil, err
		}
		d.IsActive = true
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkRechecked records a recheck verdict. A nil price keeps the stored one.
func (s *PostgresStore) MarkRechecked(ctx context.Context, fullAddressCI string, active bool, price *float64) error {
	status := models.StatusActive
	if !active {
		status = models.StatusInactive
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE properties SET
			is_active = $2,
			status = $3,
			listing_status = CASE WHEN $2 THEN listing_status ELSE $3 END,
			price = COALESCE($4::float8, price),
			document = document || jsonb_build_object(
				'status', $3::text, 'isActive', $2::boolean, 'forSale', $2::boolean,
				'price', COALESCE($4::float8, (document->>'price')::float8)),
			checked_at = NOW(),
			updated_at = NOW()
		WHERE full_address_ci = $1`,
		fullAddressCI, active, status, price)
	return err
}
