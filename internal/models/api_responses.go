// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// APIResponse is the wire envelope used by every query API endpoint.
//
// Successful responses set Success=true and exactly one of the payload
// fields; error responses set Success=false and Error. Count accompanies
// list payloads.
//
//	{ "success": true, "count": 2, "alerts": [ ... ] }
//	{ "success": false, "error": "invalid severity level" }
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Alerts  []Alert     `json:"alerts,omitempty"`
	Alert   *Alert      `json:"alert,omitempty"`
	Sources []Source    `json:"sources,omitempty"`
	Source  *Source     `json:"source,omitempty"`
	Stats   *AlertStats `json:"stats,omitempty"`
	Error   string      `json:"error,omitempty"`
}
