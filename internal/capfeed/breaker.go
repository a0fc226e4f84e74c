// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package capfeed

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
)

// breakerSet holds one circuit breaker per source. A publisher that starts
// timing out trips its own breaker without affecting other sources sharing
// the parser.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

func newBreakerSet() *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

func (b *breakerSet) get(sourceName string) *gobreaker.CircuitBreaker[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[sourceName]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        sourceName,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     120 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A definitive 4xx means the publisher is up; only transport
			// failures and 5xx should count toward tripping.
			var statusErr *HTTPStatusError
			return errors.As(err, &statusErr) && statusErr.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, to.String())
			logging.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	b.breakers[sourceName] = cb
	return cb
}
