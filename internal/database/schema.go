// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"fmt"

	"github.com/decibelco/capstream/internal/logging"
)

// createSchema creates tables and indexes. All statements are idempotent so
// the schema can be re-applied on every startup.
//
// Alerts are stored as the full JSON document plus derived columns for the
// hot query paths: activity, severity ordering, and expiry. The geometry
// column exists only when the spatial extension loaded; documents always keep
// their GeoJSON so the Go fallback can evaluate containment without it.
func (db *DB) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL UNIQUE,
			url VARCHAR NOT NULL,
			country VARCHAR DEFAULT '',
			language VARCHAR DEFAULT '',
			is_active BOOLEAN DEFAULT true,
			is_default BOOLEAN DEFAULT false,
			fetch_interval_seconds INTEGER DEFAULT 60,
			total_fetches BIGINT DEFAULT 0,
			successful_fetches BIGINT DEFAULT 0,
			failed_fetches BIGINT DEFAULT 0,
			last_fetched_at TIMESTAMP,
			last_successful_fetch_at TIMESTAMP,
			last_error VARCHAR DEFAULT '',
			metadata VARCHAR DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR PRIMARY KEY,
			source_id VARCHAR NOT NULL,
			identifier VARCHAR NOT NULL,
			sender VARCHAR DEFAULT '',
			sent TIMESTAMP NOT NULL,
			status VARCHAR DEFAULT '',
			msg_type VARCHAR DEFAULT '',
			severity VARCHAR DEFAULT 'Unknown',
			severity_rank INTEGER DEFAULT 0,
			max_expires TIMESTAMP,
			is_active BOOLEAN DEFAULT false,
			document VARCHAR NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (source_id, identifier)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_active
			ON alerts (is_active, severity_rank, sent)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_source
			ON alerts (source_id, identifier)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_expires
			ON alerts (is_active, max_expires)`,
	}

	for _, stmt := range statements {
		if err := db.execWithTimeout(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	if db.spatialAvailable {
		if err := db.execWithTimeout(
			`ALTER TABLE alerts ADD COLUMN IF NOT EXISTS geom GEOMETRY`); err != nil {
			// Soft failure: the Go fallback still serves point queries.
			db.spatialAvailable = false
			logging.Warn().Err(err).Msg("failed to add geometry column, spatial queries disabled")
		}
	}
	return nil
}
