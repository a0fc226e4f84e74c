// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package middleware provides HTTP middleware shared by the query API:
// request-ID propagation and Prometheus request instrumentation.
package middleware

import (
	"net/http"

	"github.com/decibelco/capstream/internal/logging"
)

// RequestID assigns each request an ID, honoring one set by an upstream
// proxy, and exposes it on the response header and the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = logging.GenerateRequestID()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
