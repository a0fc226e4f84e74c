// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"time"
)

// MinFetchIntervalSeconds is the floor for per-source polling cadence.
// Publishers rate-limit aggressively; anything below this risks bans.
const MinFetchIntervalSeconds = 30

// Source is one upstream publisher's feed configuration. Identity is the
// unique Name. Counters and timestamps are mutated by the scheduler on every
// fetch attempt; operators own the rest.
type Source struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	URL                  string            `json:"url"`
	Country              string            `json:"country,omitempty"`
	Language             string            `json:"language,omitempty"`
	Active               bool              `json:"isActive"`
	Default              bool              `json:"isDefault"`
	FetchIntervalSeconds int               `json:"fetchIntervalSeconds"`
	TotalFetches         int64             `json:"totalFetches"`
	SuccessfulFetches    int64             `json:"successfulFetches"`
	FailedFetches        int64             `json:"failedFetches"`
	LastFetchedAt        *time.Time        `json:"lastFetchedAt,omitempty"`
	LastSuccessfulFetch  *time.Time        `json:"lastSuccessfulFetchAt,omitempty"`
	LastError            string            `json:"lastError,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            time.Time         `json:"createdAt,omitempty"`
	UpdatedAt            time.Time         `json:"updatedAt,omitempty"`
}

// FetchInterval returns the polling cadence, clamped to the minimum.
func (s *Source) FetchInterval() time.Duration {
	secs := s.FetchIntervalSeconds
	if secs < MinFetchIntervalSeconds {
		secs = MinFetchIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

// NeedsFetching reports whether enough time has elapsed since the last fetch
// attempt. A source never fetched before always needs fetching.
func (s *Source) NeedsFetching(now time.Time) bool {
	if s.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*s.LastFetchedAt) >= s.FetchInterval()
}

// SuccessRate returns the fraction of successful fetches, in [0, 1].
func (s *Source) SuccessRate() float64 {
	if s.TotalFetches == 0 {
		return 0
	}
	return float64(s.SuccessfulFetches) / float64(s.TotalFetches)
}

// SourceUpdate carries the mutable fields for a source update. Nil pointers
// leave the stored value unchanged.
type SourceUpdate struct {
	URL                  *string            `json:"url,omitempty"`
	Country              *string            `json:"country,omitempty"`
	Language             *string            `json:"language,omitempty"`
	Active               *bool              `json:"isActive,omitempty"`
	Default              *bool              `json:"isDefault,omitempty"`
	FetchIntervalSeconds *int               `json:"fetchIntervalSeconds,omitempty"`
	Metadata             *map[string]string `json:"metadata,omitempty"`
}
