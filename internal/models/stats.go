// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// ParserStatsSnapshot is a point-in-time copy of the CAP parser's counters.
type ParserStatsSnapshot struct {
	TotalRequests      int64 `json:"totalRequests"`
	SuccessfulRequests int64 `json:"successfulRequests"`
	FailedRequests     int64 `json:"failedRequests"`
	CacheHits          int64 `json:"cacheHits"`
	CacheMisses        int64 `json:"cacheMisses"`
	HTMLFallbacks      int64 `json:"htmlFallbacks"`
	ItemsDropped       int64 `json:"itemsDropped"`
}

// SchedulerStatsSnapshot is a point-in-time copy of the scheduler's counters.
type SchedulerStatsSnapshot struct {
	Cycles        int64 `json:"cycles"`
	SuccessCycles int64 `json:"successfulCycles"`
	FailedCycles  int64 `json:"failedCycles"`
	NewAlerts     int64 `json:"newAlerts"`
	UpdatedAlerts int64 `json:"updatedAlerts"`
	ExpiredAlerts int64 `json:"expiredAlerts"`
	CleanedAlerts int64 `json:"cleanedAlerts"`
	ActiveSources int   `json:"activeSources"`
}

// AlertStats is the aggregate statistics payload served by the query API.
type AlertStats struct {
	Total       int                    `json:"total"`
	Active      int                    `json:"active"`
	Expired     int                    `json:"expired"`
	BySeverity  map[string]int         `json:"bySeverity"`
	ByCategory  map[string]int         `json:"byCategory"`
	Parser      ParserStatsSnapshot    `json:"parser"`
	Scheduler   SchedulerStatsSnapshot `json:"scheduler"`
	GeneratedAt time.Time              `json:"generatedAt"`
}
