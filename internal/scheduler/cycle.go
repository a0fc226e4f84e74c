// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
cycle.go - One fetch cycle: parse, diff, write, publish

The writer is differential: incoming alerts are compared against the stored
rows for their identifiers, classified as new, updated, or unchanged, and
only the first two classes are written and published. Stored geometry is
always recomputed from the raw CAP strings after the text content lands;
an incoming payload's own GeoJSON is stripped before the write so a bad
pre-computed shape can never poison a batch.

Every cycle ends with an expiry repair scoped to the source, even when the
fetch itself failed: a publisher that went dark must not leave its stale
alerts active until the next janitor pass.
*/

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/decibelco/capstream/internal/geometry"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

// RunCycle executes one full fetch for the source and records the attempt on
// its registry counters. Cycles for the same source are serialized: a manual
// refresh racing the source's own loop queues behind it instead of
// double-writing.
func (s *Scheduler) RunCycle(ctx context.Context, source *models.Source) error {
	mu := s.sourceLock(source.ID)
	mu.Lock()
	defer mu.Unlock()

	s.cycles.Add(1)
	start := time.Now()
	defer s.maybeDumpStats()

	incoming, err := s.parser.FetchAlerts(ctx, source)
	if err != nil {
		s.failCycle(ctx, source, start, err)
		return err
	}

	newAlerts, updatedAlerts, expiredAlerts, err := s.writeDiff(ctx, source, incoming)
	if err != nil {
		s.failCycle(ctx, source, start, err)
		return err
	}

	expiredAlerts = append(expiredAlerts, s.repairExpiry(ctx, source)...)

	s.successCycles.Add(1)
	s.newAlerts.Add(int64(len(newAlerts)))
	s.updatedAlerts.Add(int64(len(updatedAlerts)))
	metrics.RecordFetchCycle(source.Name, time.Since(start), nil)

	if err := s.db.RecordFetchAttempt(ctx, source.ID, true, ""); err != nil {
		logging.Warn().Err(err).Str("source", source.Name).Msg("failed to record fetch success")
	}

	for i := range newAlerts {
		s.broker.PublishAlert(models.TopicAlertNew, &newAlerts[i])
		metrics.RecordAlertEvent("new")
	}
	for i := range updatedAlerts {
		s.broker.PublishAlert(models.TopicAlertUpdate, &updatedAlerts[i])
		metrics.RecordAlertEvent("update")
	}
	s.publishExpired(expiredAlerts)

	if len(newAlerts) > 0 || len(updatedAlerts) > 0 || len(expiredAlerts) > 0 {
		logging.Info().
			Str("source", source.Name).
			Int("new", len(newAlerts)).
			Int("updated", len(updatedAlerts)).
			Int("expired", len(expiredAlerts)).
			Msg("alerts written")
	}
	return nil
}

// failCycle records a failed cycle on the counters and the registry, then
// still runs the source-scoped expiry repair.
func (s *Scheduler) failCycle(ctx context.Context, source *models.Source, start time.Time, err error) {
	s.failedCycles.Add(1)
	metrics.RecordFetchCycle(source.Name, time.Since(start), err)
	if dbErr := s.db.RecordFetchAttempt(ctx, source.ID, false, err.Error()); dbErr != nil {
		logging.Warn().Err(dbErr).Str("source", source.Name).Msg("failed to record fetch failure")
	}
	s.publishExpired(s.repairExpiry(ctx, source))
}

// repairExpiry flips the source's overdue alerts to inactive. A repair
// failure is logged, never fatal; the janitor covers the same ground later.
func (s *Scheduler) repairExpiry(ctx context.Context, source *models.Source) []models.Alert {
	expired, err := s.db.MarkExpiredAlertsForSource(ctx, source.ID, time.Now().UTC())
	if err != nil {
		logging.Warn().Err(err).Str("source", source.Name).Msg("expiry repair failed")
		return nil
	}
	return expired
}

func (s *Scheduler) publishExpired(expired []models.Alert) {
	if len(expired) == 0 {
		return
	}
	s.expiredAlerts.Add(int64(len(expired)))
	for i := range expired {
		s.broker.PublishAlert(models.TopicAlertExpire, &expired[i])
		metrics.RecordAlertEvent("expire")
	}
}

// writeDiff classifies incoming alerts against storage and persists the new
// and changed ones, geometry included. A change that flips a stored alert
// from active to inactive counts as an expiry, not an update; records whose
// persist failed are excluded from every returned set.
func (s *Scheduler) writeDiff(ctx context.Context, source *models.Source, incoming []models.Alert) (newAlerts, updatedAlerts, expiredAlerts []models.Alert, err error) {
	if len(incoming) == 0 {
		return nil, nil, nil, nil
	}

	// Oldest first so event emission follows publication order.
	sort.Slice(incoming, func(i, j int) bool {
		return incoming[i].Sent.Before(incoming[j].Sent)
	})

	identifiers := make([]string, 0, len(incoming))
	for i := range incoming {
		incoming[i].SourceID = source.ID
		// Derived geometry is recomputed below; whatever came in is untrusted.
		models.StripGeoJSON(&incoming[i])
		identifiers = append(identifiers, incoming[i].Identifier)
	}

	existing, err := s.db.GetAlertsByIdentifiers(ctx, source.ID, identifiers)
	if err != nil {
		return nil, nil, nil, err
	}

	toWrite := make([]models.Alert, 0, len(incoming))
	for i := range incoming {
		prev, known := existing[incoming[i].Identifier]
		if !known {
			newAlerts = append(newAlerts, incoming[i])
			toWrite = append(toWrite, incoming[i])
			continue
		}
		if alertChanged(prev, &incoming[i]) {
			// Keep the stored row identity.
			incoming[i].ID = prev.ID
			incoming[i].CreatedAt = prev.CreatedAt
			if prev.Active && !incoming[i].Active {
				expiredAlerts = append(expiredAlerts, incoming[i])
			} else {
				updatedAlerts = append(updatedAlerts, incoming[i])
			}
			toWrite = append(toWrite, incoming[i])
		}
	}

	// Recompute geometry from the raw CAP strings now that the incoming
	// shapes are gone. Normalization failures leave areas without geometry
	// and never block the write.
	for i := range toWrite {
		geometry.NormalizeAlert(&toWrite[i])
	}

	var failedSet map[string]struct{}
	if failed := s.db.UpsertAlerts(ctx, toWrite); len(failed) > 0 {
		logging.Warn().
			Str("source", source.Name).
			Int("failed", len(failed)).
			Msg("some alerts failed to persist")
		failedSet = make(map[string]struct{}, len(failed))
		for _, identifier := range failed {
			failedSet[identifier] = struct{}{}
		}
		// No event for a record that is not actually stored.
		newAlerts = dropFailed(newAlerts, failedSet)
		updatedAlerts = dropFailed(updatedAlerts, failedSet)
		expiredAlerts = dropFailed(expiredAlerts, failedSet)
	}

	// Spatial column pass after the text writes. Soft errors: an alert
	// without indexed geometry still serves every non-spatial query.
	for i := range toWrite {
		alert := &toWrite[i]
		if _, skip := failedSet[alert.Identifier]; skip {
			continue
		}
		if geo := geometry.CombinedGeoJSON(alert); geo != nil {
			if err := s.db.UpdateAlertGeometry(ctx, alert.SourceID, alert.Identifier, geo); err != nil {
				logging.Warn().
					Err(err).
					Str("identifier", alert.Identifier).
					Msg("geometry write failed, alert kept without spatial index")
			}
		}
	}
	return newAlerts, updatedAlerts, expiredAlerts, nil
}

func dropFailed(alerts []models.Alert, failed map[string]struct{}) []models.Alert {
	kept := alerts[:0]
	for i := range alerts {
		if _, ok := failed[alerts[i].Identifier]; !ok {
			kept = append(kept, alerts[i])
		}
	}
	return kept
}

// alertChanged reports whether the incoming alert differs from the stored
// one. The sent timestamp is the publisher's own version marker; msgType and
// the recomputed active bit catch cancellations and expiry flips that reuse
// the same sent value.
func alertChanged(prev, next *models.Alert) bool {
	if !prev.Sent.Equal(next.Sent) {
		return true
	}
	if prev.MsgType != next.MsgType || prev.Status != next.Status {
		return true
	}
	if prev.Active != next.Active {
		return true
	}
	return false
}
