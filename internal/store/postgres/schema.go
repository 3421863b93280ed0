package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS navigation_headings (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		url             TEXT NOT NULL DEFAULT '',
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		last_scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT navigation_headings_name_key UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id                    TEXT PRIMARY KEY,
		name                  TEXT NOT NULL,
		url                   TEXT NOT NULL DEFAULT '',
		navigation_heading_id TEXT NOT NULL DEFAULT '',
		parent_category_id    TEXT NOT NULL DEFAULT '',
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		product_count         INTEGER NOT NULL DEFAULT 0,
		last_scraped_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT categories_name_heading_key UNIQUE (name, navigation_heading_id)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		author           TEXT NOT NULL DEFAULT '',
		price            TEXT NOT NULL DEFAULT '',
		price_amount     DOUBLE PRECISION NOT NULL DEFAULT 0,
		original_price   TEXT NOT NULL DEFAULT '',
		image_url        TEXT NOT NULL DEFAULT '',
		product_url      TEXT NOT NULL,
		source_id        TEXT NOT NULL,
		category_id      TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		publisher        TEXT NOT NULL DEFAULT '',
		publication_date TEXT NOT NULL DEFAULT '',
		isbn             TEXT NOT NULL DEFAULT '',
		rating           DOUBLE PRECISION,
		review_count     INTEGER NOT NULL DEFAULT 0,
		tags             TEXT[] NOT NULL DEFAULT '{}',
		is_available     BOOLEAN NOT NULL DEFAULT TRUE,
		is_scraped       BOOLEAN NOT NULL DEFAULT FALSE,
		last_scraped_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT products_source_id_key UNIQUE (source_id)
	)`,
	`CREATE INDEX IF NOT EXISTS products_category_id_idx ON products (category_id)`,
	`CREATE INDEX IF NOT EXISTS products_created_at_idx ON products (created_at)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id            TEXT PRIMARY KEY,
		product_id    TEXT NOT NULL REFERENCES products (id),
		reviewer_name TEXT NOT NULL DEFAULT '',
		rating        DOUBLE PRECISION,
		title         TEXT NOT NULL DEFAULT '',
		content       TEXT NOT NULL,
		review_date   TEXT NOT NULL DEFAULT '',
		is_verified   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT reviews_product_content_key UNIQUE (product_id, content)
	)`,
	`CREATE TABLE IF NOT EXISTS crawl_jobs (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		status      TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at TIMESTAMPTZ,
		count       INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		parameters  JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS crawl_jobs_started_at_idx ON crawl_jobs (started_at)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
