// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api serves the query API: alert reads at /cap-alerts, source CRUD
// at /cap-sources, health probes, Prometheus metrics, and the WebSocket
// live channel.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/models"
)

// writeResponse writes the envelope with the given status. Encode failures
// are logged; by then the status line is already on the wire.
func writeResponse(w http.ResponseWriter, status int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("failed to encode API response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeResponse(w, status, models.APIResponse{Success: false, Error: message})
}

func respondMessage(w http.ResponseWriter, message string) {
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Message: message})
}

func respondAlerts(w http.ResponseWriter, alerts []models.Alert) {
	count := len(alerts)
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Count: &count, Alerts: alerts})
}

func respondAlert(w http.ResponseWriter, alert *models.Alert) {
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Alert: alert})
}

func respondSources(w http.ResponseWriter, sources []models.Source) {
	count := len(sources)
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Count: &count, Sources: sources})
}

func respondSource(w http.ResponseWriter, source *models.Source) {
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Source: source})
}

func respondStats(w http.ResponseWriter, stats *models.AlertStats) {
	writeResponse(w, http.StatusOK, models.APIResponse{Success: true, Stats: stats})
}
