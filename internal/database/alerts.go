// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
alerts.go - Alert store

Alerts persist as their full JSON document plus derived columns (severity
rank, max expiry, active bit) that the hot query paths filter and sort on.
Geometry lives in a separate spatial column written after the row exists:
a geometry failure must never take the alert's text content down with it.
*/

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/decibelco/capstream/internal/geometry"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

const alertColumns = `id, source_id, identifier, sender, sent, status, msg_type,
	severity, severity_rank, max_expires, is_active, document,
	fetched_at, created_at, updated_at`

// upsertBatchSize bounds how many alerts one INSERT statement carries.
const upsertBatchSize = 50

// GetAlertsByIdentifiers returns the stored alerts for the given identifiers
// of one source, keyed by identifier. Missing identifiers are absent from the
// map; the writer uses the gap to classify incoming alerts as new.
func (db *DB) GetAlertsByIdentifiers(ctx context.Context, sourceID string, identifiers []string) (map[string]*models.Alert, error) {
	if len(identifiers) == 0 {
		return map[string]*models.Alert{}, nil
	}

	placeholders := strings.Repeat("?,", len(identifiers))
	placeholders = placeholders[:len(placeholders)-1]
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE source_id = ? AND identifier IN (%s)`,
		alertColumns, placeholders)

	args := make([]any, 0, len(identifiers)+1)
	args = append(args, sourceID)
	for _, id := range identifiers {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts by identifiers: %w", err)
	}
	defer closeWithLog(rows, "alerts rows")

	existing := make(map[string]*models.Alert)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		existing[alert.Identifier] = alert
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return existing, nil
}

// UpsertAlerts writes alerts in batches with per-record isolation: a record
// that fails to persist is logged and skipped, never failing its batch.
// Returns the identifiers of the records that failed so the caller can keep
// them out of event publication.
func (db *DB) UpsertAlerts(ctx context.Context, alerts []models.Alert) []string {
	var failed []string
	for start := 0; start < len(alerts); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		for i := start; i < end; i++ {
			if err := db.upsertAlert(ctx, &alerts[i]); err != nil {
				failed = append(failed, alerts[i].Identifier)
				metrics.DBQueryErrors.WithLabelValues("upsert_alert").Inc()
				logging.Warn().
					Err(err).
					Str("identifier", alerts[i].Identifier).
					Str("sourceId", alerts[i].SourceID).
					Msg("alert upsert failed")
			}
		}
	}
	return failed
}

func (db *DB) upsertAlert(ctx context.Context, alert *models.Alert) error {
	now := time.Now().UTC()
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	document, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert document: %w", err)
	}

	var maxExpires any
	if expires := alert.MaxExpires(); !expires.IsZero() {
		maxExpires = expires
	}
	severity := alert.TopSeverity()

	// The conflict target is (source_id, identifier): a re-fetched alert
	// updates in place, keeping its row id and created_at.
	query := fmt.Sprintf(`INSERT INTO alerts (%s) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (source_id, identifier) DO UPDATE SET
		sender = excluded.sender,
		sent = excluded.sent,
		status = excluded.status,
		msg_type = excluded.msg_type,
		severity = excluded.severity,
		severity_rank = excluded.severity_rank,
		max_expires = excluded.max_expires,
		is_active = excluded.is_active,
		document = excluded.document,
		fetched_at = excluded.fetched_at,
		updated_at = excluded.updated_at`, alertColumns)

	_, err = db.conn.ExecContext(ctx, query,
		alert.ID, alert.SourceID, alert.Identifier, alert.Sender, alert.Sent,
		alert.Status, alert.MsgType, severity, models.SeverityRank(severity),
		maxExpires, alert.Active, string(document),
		alert.FetchedAt, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}

// UpdateAlertGeometry writes the derived geometry for one alert. The write is
// gated on ST_IsValid so an invalid shape can never poison the spatial index.
// Without the spatial extension this is a no-op; the document keeps the
// GeoJSON either way.
func (db *DB) UpdateAlertGeometry(ctx context.Context, sourceID, identifier string, geo *models.GeoJSON) error {
	if !db.spatialAvailable || geo == nil {
		return nil
	}

	geoJSON, err := json.Marshal(geo)
	if err != nil {
		return fmt.Errorf("failed to marshal geometry: %w", err)
	}

	query := `UPDATE alerts
		SET geom = ST_GeomFromGeoJSON(?)
		WHERE source_id = ? AND identifier = ?
		AND ST_IsValid(ST_GeomFromGeoJSON(?))`

	_, err = db.conn.ExecContext(ctx, query, string(geoJSON), sourceID, identifier, string(geoJSON))
	if err != nil {
		return fmt.Errorf("failed to update alert geometry: %w", err)
	}
	return nil
}

// GetActiveAlerts returns active alerts ordered by severity (most severe
// first), then recency. limit <= 0 means no limit.
func (db *DB) GetActiveAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE is_active = true
		ORDER BY severity_rank DESC, sent DESC`, alertColumns)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return db.queryAlerts(ctx, query, args...)
}

// GetAlert retrieves an alert by row ID, falling back to the CAP identifier.
func (db *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = ?`, alertColumns)
	alert, err := scanAlert(db.conn.QueryRowContext(ctx, query, id))
	if err != ErrAlertNotFound {
		return alert, err
	}
	query = fmt.Sprintf(`SELECT %s FROM alerts WHERE identifier = ? ORDER BY sent DESC LIMIT 1`, alertColumns)
	return scanAlert(db.conn.QueryRowContext(ctx, query, id))
}

// GetAlertsBySeverity returns active alerts with the given top severity.
func (db *DB) GetAlertsBySeverity(ctx context.Context, severity string) ([]models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts
		WHERE is_active = true AND severity = ?
		ORDER BY sent DESC`, alertColumns)
	return db.queryAlerts(ctx, query, severity)
}

// GetAlertsByPoint returns active alerts whose geometry contains the point.
// With the spatial extension the database evaluates ST_Contains; otherwise
// active documents are filtered in process against their stored GeoJSON.
func (db *DB) GetAlertsByPoint(ctx context.Context, lat, lon float64) ([]models.Alert, error) {
	if db.spatialAvailable {
		query := fmt.Sprintf(`SELECT %s FROM alerts
			WHERE is_active = true AND geom IS NOT NULL
			AND ST_Contains(geom, ST_Point(?, ?))
			ORDER BY severity_rank DESC, sent DESC`, alertColumns)
		return db.queryAlerts(ctx, query, lon, lat)
	}

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		return nil, err
	}
	point := geometry.Point{lon, lat}
	matched := make([]models.Alert, 0)
	for i := range active {
		if alertContains(&active[i], point) {
			matched = append(matched, active[i])
		}
	}
	return matched, nil
}

func alertContains(alert *models.Alert, point geometry.Point) bool {
	for i := range alert.Info {
		for j := range alert.Info[i].Areas {
			if geometry.GeoJSONContains(alert.Info[i].Areas[j].GeoJSON, point) {
				return true
			}
		}
	}
	return false
}

// MarkExpiredAlerts deactivates active alerts whose expiry has passed and
// returns them so lifecycle events can be published. Alerts without any
// expiry stay active until retention removes them.
func (db *DB) MarkExpiredAlerts(ctx context.Context, now time.Time) ([]models.Alert, error) {
	return db.markExpired(ctx, "", now)
}

// MarkExpiredAlertsForSource limits the expiry flip to one source's alerts.
// Called at the end of every fetch cycle, success or failure, so a source
// whose publisher went dark still deactivates on schedule.
func (db *DB) MarkExpiredAlertsForSource(ctx context.Context, sourceID string, now time.Time) ([]models.Alert, error) {
	return db.markExpired(ctx, sourceID, now)
}

// markExpired flips and returns the expired rows in one statement. The
// RETURNING clause keeps select-then-update races out: each row is reported
// by exactly one caller.
func (db *DB) markExpired(ctx context.Context, sourceID string, now time.Time) ([]models.Alert, error) {
	query := `UPDATE alerts SET is_active = false, updated_at = ?
		WHERE is_active = true AND max_expires IS NOT NULL AND max_expires <= ?`
	args := []any{now.UTC(), now}
	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	query += fmt.Sprintf(` RETURNING %s`, alertColumns)

	return db.queryAlerts(ctx, query, args...)
}

// DeleteInactiveBefore removes inactive alerts last touched before the
// cutoff. Returns how many rows were deleted.
func (db *DB) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM alerts WHERE is_active = false AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted alerts: %w", err)
	}
	return n, nil
}

// GetAlertCounts returns total/active counts and the severity and category
// breakdowns for the stats endpoint. Categories live inside the documents,
// so the active set is decoded in process.
func (db *DB) GetAlertCounts(ctx context.Context) (*models.AlertStats, error) {
	stats := &models.AlertStats{
		BySeverity:  make(map[string]int),
		ByCategory:  make(map[string]int),
		GeneratedAt: time.Now().UTC(),
	}

	err := db.conn.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE is_active = true) FROM alerts`).
		Scan(&stats.Total, &stats.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	stats.Expired = stats.Total - stats.Active

	rows, err := db.conn.QueryContext(ctx,
		`SELECT severity, count(*) FROM alerts WHERE is_active = true GROUP BY severity`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by severity: %w", err)
	}
	defer closeWithLog(rows, "severity rows")
	for rows.Next() {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		stats.BySeverity[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating severity counts: %w", err)
	}

	active, err := db.GetActiveAlerts(ctx, 0)
	if err != nil {
		return nil, err
	}
	for i := range active {
		for j := range active[i].Info {
			for _, category := range active[i].Info[j].Categories {
				stats.ByCategory[category]++
			}
		}
	}
	metrics.ActiveAlerts.Set(float64(stats.Active))
	return stats, nil
}

func (db *DB) queryAlerts(ctx context.Context, query string, args ...any) ([]models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues("query_alerts").Inc()
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer closeWithLog(rows, "alerts rows")

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// scanAlert reconstructs an alert from its document column, then overlays the
// row-level fields the janitor may have flipped after the document was
// written (the active bit and timestamps).
func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		id, sourceID, identifier, sender    string
		status, msgType, severity, document string
		severityRank                        int
		sent, fetchedAt, created, updated   time.Time
		maxExpires                          sql.NullTime
		active                              bool
	)

	err := row.Scan(&id, &sourceID, &identifier, &sender, &sent, &status, &msgType,
		&severity, &severityRank, &maxExpires, &active, &document,
		&fetchedAt, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	var alert models.Alert
	if err := json.Unmarshal([]byte(document), &alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert document: %w", err)
	}
	alert.ID = id
	alert.Active = active
	alert.CreatedAt = created.UTC()
	alert.UpdatedAt = updated.UTC()
	return &alert, nil
}
