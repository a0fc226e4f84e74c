// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/models"
)

// maxListLimit caps the ?limit parameter on list endpoints.
const maxListLimit = 1000

// ActiveAlerts handles GET /cap-alerts/active.
func (h *Handler) ActiveAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.db.GetActiveAlerts(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("active alerts query failed")
		respondError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}
	respondAlerts(w, alerts)
}

// AlertByID handles GET /cap-alerts/{id}. The id matches either the store's
// row ID or the publisher's CAP identifier.
func (h *Handler) AlertByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	alert, err := h.db.GetAlert(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "alert not found")
			return
		}
		logging.Error().Err(err).Str("id", id).Msg("alert lookup failed")
		respondError(w, http.StatusInternalServerError, "failed to query alert")
		return
	}
	respondAlert(w, alert)
}

// AlertsByArea handles GET /cap-alerts/area/{lat}/{lng}.
func (h *Handler) AlertsByArea(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(chi.URLParam(r, "lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		respondError(w, http.StatusBadRequest, "latitude must be a number in [-90, 90]")
		return
	}
	lng, err := strconv.ParseFloat(chi.URLParam(r, "lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		respondError(w, http.StatusBadRequest, "longitude must be a number in [-180, 180]")
		return
	}

	alerts, err := h.db.GetAlertsByPoint(r.Context(), lat, lng)
	if err != nil {
		logging.Error().Err(err).Float64("lat", lat).Float64("lng", lng).Msg("area query failed")
		respondError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}
	respondAlerts(w, alerts)
}

// AlertsBySeverity handles GET /cap-alerts/severity/{level}.
func (h *Handler) AlertsBySeverity(w http.ResponseWriter, r *http.Request) {
	level := chi.URLParam(r, "level")
	if !models.IsValidSeverity(level) {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid severity level %q, must be one of Extreme, Severe, Moderate, Minor, Unknown", level))
		return
	}

	alerts, err := h.db.GetAlertsBySeverity(r.Context(), level)
	if err != nil {
		logging.Error().Err(err).Str("severity", level).Msg("severity query failed")
		respondError(w, http.StatusInternalServerError, "failed to query alerts")
		return
	}
	respondAlerts(w, alerts)
}

// AlertStats handles GET /cap-alerts/stats.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetAlertCounts(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("stats query failed")
		respondError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	stats.Parser = h.feed.Stats()
	stats.Scheduler = h.pipeline.Stats()
	stats.GeneratedAt = time.Now().UTC()
	respondStats(w, stats)
}

// FetchCycle handles GET /cap-alerts/fetch?sourceId=… by running one
// synchronous cycle for the named source. Without a sourceId the default
// source is fetched.
func (h *Handler) FetchCycle(w http.ResponseWriter, r *http.Request) {
	var source *models.Source
	var err error
	if sourceID := r.URL.Query().Get("sourceId"); sourceID != "" {
		source, err = h.db.GetSource(r.Context(), sourceID)
	} else {
		source, err = h.db.GetDefaultSource(r.Context())
	}
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load source")
		return
	}

	if err := h.pipeline.RunCycle(r.Context(), source); err != nil {
		logging.Warn().Err(err).Str("source", source.Name).Msg("manual fetch cycle failed")
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("fetch cycle failed: %v", err))
		return
	}
	respondMessage(w, fmt.Sprintf("fetch cycle completed for source %s", source.Name))
}

// Refresh handles POST /cap-alerts/refresh: one synchronous cycle for every
// active source. Per-source failures are logged and counted, never fatal to
// the other sources.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	sources, err := h.db.ListSources(r.Context(), true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	failed := 0
	for i := range sources {
		if err := h.pipeline.RunCycle(r.Context(), &sources[i]); err != nil {
			failed++
			logging.Warn().Err(err).Str("source", sources[i].Name).Msg("refresh cycle failed")
		}
	}

	msg := fmt.Sprintf("refreshed %d sources", len(sources))
	if failed > 0 {
		msg = fmt.Sprintf("refreshed %d sources, %d failed", len(sources), failed)
	}
	respondMessage(w, msg)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}
