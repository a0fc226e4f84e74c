// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline: fetch cycles, alert lifecycle events, parser cache efficiency,
// circuit breaker state, the query API, and WebSocket fan-out.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetch cycle metrics
	FetchCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_fetch_cycles_total",
			Help: "Total number of per-source fetch cycles",
		},
		[]string{"source", "result"}, // result: "success", "failure"
	)

	FetchCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capstream_fetch_cycle_duration_seconds",
			Help:    "Duration of fetch cycles in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"source"},
	)

	ActiveSourceLoops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capstream_active_source_loops",
			Help: "Current number of running per-source fetch loops",
		},
	)

	// Alert lifecycle metrics
	AlertEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_alert_events_total",
			Help: "Total number of alert lifecycle events emitted",
		},
		[]string{"event"}, // "new", "update", "expire"
	)

	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capstream_active_alerts",
			Help: "Current number of active alerts in the store",
		},
	)

	AlertsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_alerts_cleaned_total",
			Help: "Total number of long-expired alerts removed by the janitor",
		},
	)

	GeometryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_geometry_failures_total",
			Help: "Total number of area geometries dropped during normalization",
		},
		[]string{"reason"}, // "parse", "self_intersect", "panic"
	)

	// Parser metrics
	DetailRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_detail_requests_total",
			Help: "Total number of per-identifier detail fetches",
		},
		[]string{"result"}, // "success", "failure"
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_detail_cache_hits_total",
			Help: "Total number of detail cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_detail_cache_misses_total",
			Help: "Total number of detail cache misses",
		},
	)

	HTMLFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_html_fallbacks_total",
			Help: "Total number of alerts recovered through the HTML fallback path",
		},
	)

	ItemsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_feed_items_dropped_total",
			Help: "Total number of feed items dropped by the per-cycle cap",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capstream_circuit_breaker_state",
			Help: "Circuit breaker state per source host (0=closed, 1=half-open, 2=open)",
		},
		[]string{"host"},
	)

	// Query API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capstream_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capstream_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "capstream_websocket_connections",
			Help: "Current number of connected WebSocket clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages broadcast",
		},
	)

	WSClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capstream_websocket_clients_dropped_total",
			Help: "Total number of clients disconnected for falling behind",
		},
	)

	// Database metrics
	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capstream_db_query_errors_total",
			Help: "Total number of store query errors",
		},
		[]string{"operation"},
	)

	// System metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capstream_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordFetchCycle records the outcome and duration of one fetch cycle.
func RecordFetchCycle(source string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	FetchCyclesTotal.WithLabelValues(source, result).Inc()
	FetchCycleDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAlertEvent records an alert lifecycle event emission.
func RecordAlertEvent(event string) {
	AlertEventsTotal.WithLabelValues(event).Inc()
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SetBreakerState maps a gobreaker state name to the numeric gauge value.
func SetBreakerState(host, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(host).Set(v)
}
