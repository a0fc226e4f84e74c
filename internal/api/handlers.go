// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/decibelco/capstream/internal/database"
	"github.com/decibelco/capstream/internal/events"
	"github.com/decibelco/capstream/internal/models"
	"github.com/decibelco/capstream/internal/websocket"
)

// Pipeline is the scheduler surface the API needs: manual cycle triggers and
// loop lifecycle notifications after registry writes.
type Pipeline interface {
	RunCycle(ctx context.Context, source *models.Source) error
	UpdateSource(source *models.Source)
	RemoveSource(sourceID string)
	Stats() models.SchedulerStatsSnapshot
}

// FeedStats exposes the parser's counter snapshot for the stats endpoint.
type FeedStats interface {
	Stats() models.ParserStatsSnapshot
}

// Handler carries the dependencies of every endpoint.
type Handler struct {
	db       *database.DB
	pipeline Pipeline
	feed     FeedStats
	broker   *events.Broker
	hub      *websocket.Hub
	started  time.Time
}

// NewHandler creates the API handler set.
func NewHandler(db *database.DB, pipeline Pipeline, feed FeedStats, broker *events.Broker, hub *websocket.Hub) *Handler {
	return &Handler{
		db:       db,
		pipeline: pipeline,
		feed:     feed,
		broker:   broker,
		hub:      hub,
		started:  time.Now(),
	}
}

// WebSocket upgrades the connection and attaches it to the hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(h.hub, w, r)
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondMessage(w, "alive")
}

// HealthReady reports readiness: the store must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	respondMessage(w, "ready")
}

// Health returns a summary of the running system.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
	}

	writeResponse(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: status,
		Stats: &models.AlertStats{
			Scheduler:   h.pipeline.Stats(),
			Parser:      h.feed.Stats(),
			GeneratedAt: time.Now().UTC(),
		},
	})
}
