// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package scheduler

import (
	"context"
	"time"

	"github.com/decibelco/capstream/internal/config"
	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

// Janitor repairs active-bit drift and enforces retention. The writer sets
// the active bit at write time; alerts that expire without ever being
// re-fetched are caught here.
type Janitor struct {
	db        *database.DB
	broker    *events.Broker
	scheduler *Scheduler
	cfg       config.JanitorConfig
}

// NewJanitor creates a janitor sharing the scheduler's counters.
func NewJanitor(db *database.DB, broker *events.Broker, scheduler *Scheduler, cfg config.JanitorConfig) *Janitor {
	return &Janitor{db: db, broker: broker, scheduler: scheduler, cfg: cfg}
}

// RunWithContext sweeps immediately and then on every interval tick until the
// context is cancelled. Designed for suture supervision.
func (j *Janitor) RunWithContext(ctx context.Context) error {
	j.Sweep(ctx)

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one expiry and retention pass. Each half fails independently.
func (j *Janitor) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := j.db.MarkExpiredAlerts(ctx, now)
	if err != nil {
		logging.Error().Err(err).Msg("expiry sweep failed")
	} else if len(expired) > 0 {
		j.scheduler.expiredAlerts.Add(int64(len(expired)))
		for i := range expired {
			j.broker.PublishAlert(models.TopicAlertExpire, &expired[i])
			metrics.RecordAlertEvent("expire")
		}
		logging.Info().Int("expired", len(expired)).Msg("alerts expired")
	}

	cutoff := now.AddDate(0, 0, -j.cfg.RetentionDays)
	cleaned, err := j.db.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("retention sweep failed")
	} else if cleaned > 0 {
		j.scheduler.cleanedAlerts.Add(cleaned)
		metrics.AlertsCleaned.Add(float64(cleaned))
		logging.Info().
			Int64("deleted", cleaned).
			Time("cutoff", cutoff).
			Msg("old alerts removed")
	}
}
