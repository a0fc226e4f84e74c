// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/decibelco/capstream/internal/models"
)

const sourceColumns = `id, name, url, country, language, is_active, is_default,
	fetch_interval_seconds, total_fetches, successful_fetches, failed_fetches,
	last_fetched_at, last_successful_fetch_at, last_error, metadata,
	created_at, updated_at`

// CreateSource registers a new feed source. The name must be unique. A source
// created as default displaces the previous default in the same transaction,
// so at most one source ever holds the flag.
func (db *DB) CreateSource(ctx context.Context, source *models.Source) error {
	if source.ID == "" {
		source.ID = uuid.New().String()
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}
	source.UpdatedAt = source.CreatedAt
	if source.FetchIntervalSeconds < models.MinFetchIntervalSeconds {
		source.FetchIntervalSeconds = models.MinFetchIntervalSeconds
	}

	metadata, err := marshalMetadata(source.Metadata)
	if err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin source create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if source.Default {
		if err := clearOtherDefaults(ctx, tx, source.ID, source.UpdatedAt); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`INSERT INTO sources (%s) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, sourceColumns)

	_, err = tx.ExecContext(ctx, query,
		source.ID, source.Name, source.URL, source.Country, source.Language,
		source.Active, source.Default, source.FetchIntervalSeconds,
		source.TotalFetches, source.SuccessfulFetches, source.FailedFetches,
		source.LastFetchedAt, source.LastSuccessfulFetch, source.LastError,
		metadata, source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSourceNameConflict
		}
		return fmt.Errorf("failed to create source: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit source create: %w", err)
	}
	return nil
}

// clearOtherDefaults unsets the default flag on every source except the one
// taking it over.
func clearOtherDefaults(ctx context.Context, tx *sql.Tx, keepID string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE sources SET is_default = false, updated_at = ? WHERE is_default = true AND id != ?`,
		now, keepID)
	if err != nil {
		return fmt.Errorf("failed to clear previous default source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by ID.
func (db *DB) GetSource(ctx context.Context, id string) (*models.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE id = ?`, sourceColumns)
	return scanSource(db.conn.QueryRowContext(ctx, query, id))
}

// GetSourceByName retrieves a source by its unique name.
func (db *DB) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE name = ?`, sourceColumns)
	return scanSource(db.conn.QueryRowContext(ctx, query, name))
}

// GetDefaultSource retrieves the source currently holding the default flag.
func (db *DB) GetDefaultSource(ctx context.Context) (*models.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE is_default = true LIMIT 1`, sourceColumns)
	return scanSource(db.conn.QueryRowContext(ctx, query))
}

// ListSources retrieves all sources, optionally only active ones.
func (db *DB) ListSources(ctx context.Context, activeOnly bool) ([]models.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources`, sourceColumns)
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer closeWithLog(rows, "sources rows")

	sources := make([]models.Source, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return sources, nil
}

// UpdateSource applies the non-nil fields of upd and returns the updated
// source. The name is immutable; it is the source's identity.
func (db *DB) UpdateSource(ctx context.Context, id string, upd *models.SourceUpdate) (*models.Source, error) {
	source, err := db.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.URL != nil {
		source.URL = *upd.URL
	}
	if upd.Country != nil {
		source.Country = *upd.Country
	}
	if upd.Language != nil {
		source.Language = *upd.Language
	}
	if upd.Active != nil {
		source.Active = *upd.Active
	}
	if upd.Default != nil {
		source.Default = *upd.Default
	}
	if upd.FetchIntervalSeconds != nil {
		source.FetchIntervalSeconds = *upd.FetchIntervalSeconds
		if source.FetchIntervalSeconds < models.MinFetchIntervalSeconds {
			source.FetchIntervalSeconds = models.MinFetchIntervalSeconds
		}
	}
	if upd.Metadata != nil {
		source.Metadata = *upd.Metadata
	}
	source.UpdatedAt = time.Now().UTC()

	metadata, err := marshalMetadata(source.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin source update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Taking over the default flag releases it everywhere else atomically.
	if upd.Default != nil && *upd.Default {
		if err := clearOtherDefaults(ctx, tx, id, source.UpdatedAt); err != nil {
			return nil, err
		}
	}

	query := `UPDATE sources SET
		url = ?, country = ?, language = ?, is_active = ?, is_default = ?,
		fetch_interval_seconds = ?, metadata = ?, updated_at = ?
	WHERE id = ?`

	result, err := tx.ExecContext(ctx, query,
		source.URL, source.Country, source.Language, source.Active, source.Default,
		source.FetchIntervalSeconds, metadata, source.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ErrSourceNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit source update: %w", err)
	}
	return source, nil
}

// DeleteSource removes a source. Deleting the last default source is refused
// so the pipeline always has at least one feed to come back to.
func (db *DB) DeleteSource(ctx context.Context, id string) error {
	source, err := db.GetSource(ctx, id)
	if err != nil {
		return err
	}

	if source.Default {
		var defaults int
		if err := db.conn.QueryRowContext(ctx,
			`SELECT count(*) FROM sources WHERE is_default = true`).Scan(&defaults); err != nil {
			return fmt.Errorf("failed to count default sources: %w", err)
		}
		if defaults <= 1 {
			return ErrLastDefaultSource
		}
	}

	result, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// RecordFetchAttempt updates the source's fetch counters after one cycle.
// A successful cycle clears last_error; a failed one preserves the previous
// success timestamp.
func (db *DB) RecordFetchAttempt(ctx context.Context, id string, success bool, fetchErr string) error {
	now := time.Now().UTC()

	var query string
	var args []any
	if success {
		query = `UPDATE sources SET
			total_fetches = total_fetches + 1,
			successful_fetches = successful_fetches + 1,
			last_fetched_at = ?, last_successful_fetch_at = ?,
			last_error = '', updated_at = ?
		WHERE id = ?`
		args = []any{now, now, now, id}
	} else {
		query = `UPDATE sources SET
			total_fetches = total_fetches + 1,
			failed_fetches = failed_fetches + 1,
			last_fetched_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`
		args = []any{now, fetchErr, now, id}
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to record fetch attempt: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// SeedSources inserts any of the given sources whose name is not yet
// registered. Existing sources are left untouched. Returns how many were
// inserted.
func (db *DB) SeedSources(ctx context.Context, sources []models.Source) (int, error) {
	inserted := 0
	for i := range sources {
		src := sources[i]
		if _, err := db.GetSourceByName(ctx, src.Name); err == nil {
			continue
		} else if err != ErrSourceNotFound {
			return inserted, err
		}
		if err := db.CreateSource(ctx, &src); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func marshalMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal source metadata: %w", err)
	}
	return string(data), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var source models.Source
	var lastFetched, lastSuccess sql.NullTime
	var metadata string

	err := row.Scan(
		&source.ID, &source.Name, &source.URL, &source.Country, &source.Language,
		&source.Active, &source.Default, &source.FetchIntervalSeconds,
		&source.TotalFetches, &source.SuccessfulFetches, &source.FailedFetches,
		&lastFetched, &lastSuccess, &source.LastError, &metadata,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}

	if lastFetched.Valid {
		t := lastFetched.Time.UTC()
		source.LastFetchedAt = &t
	}
	if lastSuccess.Valid {
		t := lastSuccess.Time.UTC()
		source.LastSuccessfulFetch = &t
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &source.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source metadata: %w", err)
		}
	}
	return &source, nil
}
