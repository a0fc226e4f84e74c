// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/decibelco/capstream/internal/middleware"
)

// NewRouter assembles the full HTTP surface.
//
// The alert and source trees carry the default per-IP rate limit and request
// metrics. Health probes get a permissive limit of their own. /metrics and
// /ws sit outside the rate limiter: Prometheus scrapes on its own schedule
// and WebSocket upgrades are long-lived.
func NewRouter(h *Handler, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(mw.RateLimitHealth())
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/cap-alerts", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/active", h.ActiveAlerts)
		r.Get("/stats", h.AlertStats)
		r.Get("/fetch", h.FetchCycle)
		r.Post("/refresh", h.Refresh)
		r.Get("/severity/{level}", h.AlertsBySeverity)
		r.Get("/area/{lat}/{lng}", h.AlertsByArea)
		r.Get("/{id}", h.AlertByID)
	})

	r.Route("/cap-sources", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(middleware.PrometheusMetrics)

		r.Get("/", h.ListSources)
		r.Post("/", h.CreateSource)
		r.Post("/seed", h.SeedSources)
		r.Get("/default", h.DefaultSource)
		r.Get("/{id}", h.SourceByID)
		r.Put("/{id}", h.UpdateSource)
		r.Delete("/{id}", h.DeleteSource)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.WebSocket)

	return r
}
