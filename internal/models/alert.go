// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the canonical records shared across the ingestion
// pipeline: alerts in CAP 1.2 shape, source configurations, lifecycle events,
// and the API response envelope.
package models

import (
	"time"
)

// CAP 1.2 enumeration values. Feeds occasionally send unexpected strings;
// parsers preserve them verbatim and validation happens at the API boundary.
const (
	StatusActual   = "Actual"
	StatusExercise = "Exercise"
	StatusSystem   = "System"
	StatusTest     = "Test"
	StatusDraft    = "Draft"

	MsgTypeAlert  = "Alert"
	MsgTypeUpdate = "Update"
	MsgTypeCancel = "Cancel"
	MsgTypeAck    = "Ack"
	MsgTypeError  = "Error"

	ScopePublic     = "Public"
	ScopeRestricted = "Restricted"
	ScopePrivate    = "Private"
)

// Severities lists valid CAP severity values in descending order of threat.
var Severities = []string{"Extreme", "Severe", "Moderate", "Minor", "Unknown"}

// Urgencies lists valid CAP urgency values.
var Urgencies = []string{"Immediate", "Expected", "Future", "Past", "Unknown"}

// Certainties lists valid CAP certainty values.
var Certainties = []string{"Observed", "Likely", "Possible", "Unlikely", "Unknown"}

// severityRanks orders severities for query sorting. Higher is more severe.
var severityRanks = map[string]int{
	"Extreme":  4,
	"Severe":   3,
	"Moderate": 2,
	"Minor":    1,
	"Unknown":  0,
}

// SeverityRank returns the sort rank for a CAP severity value.
// Unrecognized values rank alongside "Unknown".
func SeverityRank(severity string) int {
	return severityRanks[severity]
}

// IsValidSeverity reports whether s is a CAP-defined severity value.
func IsValidSeverity(s string) bool {
	_, ok := severityRanks[s]
	return ok
}

// GeoJSON is a minimal GeoJSON geometry: Polygon or MultiPolygon, coordinates
// in [lon, lat] order with closed linear rings.
type GeoJSON struct {
	Type string `json:"type"`
	// Coordinates is [][][]float64 for Polygon, [][][][]float64 for MultiPolygon.
	Coordinates interface{} `json:"coordinates"`
}

// Parameter is a CAP valueName/value pair.
type Parameter struct {
	ValueName string `json:"valueName"`
	Value     string `json:"value"`
}

// Geocode is a CAP area geocode entry (e.g. a district code).
type Geocode struct {
	ValueName string `json:"valueName"`
	Value     string `json:"value"`
}

// Area is one CAP <area> block. Raw polygon and circle strings are preserved
// for the geometry normalizer; GeoJSON is absent until normalization succeeds.
type Area struct {
	AreaDesc string    `json:"areaDesc"`
	Polygons []string  `json:"polygon,omitempty"`
	Circles  []string  `json:"circle,omitempty"`
	Geocodes []Geocode `json:"geocode,omitempty"`
	Altitude *float64  `json:"altitude,omitempty"`
	Ceiling  *float64  `json:"ceiling,omitempty"`
	GeoJSON  *GeoJSON  `json:"geoJson,omitempty"`
}

// Info is one CAP <info> block.
type Info struct {
	Language      string      `json:"language,omitempty"`
	Categories    []string    `json:"category"`
	Event         string      `json:"event"`
	ResponseTypes []string    `json:"responseType,omitempty"`
	Urgency       string      `json:"urgency"`
	Severity      string      `json:"severity"`
	Certainty     string      `json:"certainty"`
	Effective     *time.Time  `json:"effective,omitempty"`
	Onset         *time.Time  `json:"onset,omitempty"`
	Expires       *time.Time  `json:"expires,omitempty"`
	SenderName    string      `json:"senderName"`
	Headline      string      `json:"headline,omitempty"`
	Description   string      `json:"description,omitempty"`
	Instruction   string      `json:"instruction,omitempty"`
	Web           string      `json:"web,omitempty"`
	Contact       string      `json:"contact,omitempty"`
	Parameters    []Parameter `json:"parameter,omitempty"`
	Areas         []Area      `json:"area"`
}

// Alert is the canonical alert record. Identity is (SourceID, Identifier);
// the identifier is publisher-assigned and scoped by source defensively.
//
// Alert is a plain record: geometry normalization and active-bit computation
// are free functions called by the writer just before persistence, keeping
// storage-engine details out of the domain model.
type Alert struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"sourceId"`
	Identifier string     `json:"identifier"`
	Sender     string     `json:"sender"`
	Sent       time.Time  `json:"sent"`
	Status     string     `json:"status"`
	MsgType    string     `json:"msgType"`
	Scope      string     `json:"scope"`
	Codes      []string   `json:"code,omitempty"`
	Note       string     `json:"note,omitempty"`
	References string     `json:"references,omitempty"`
	Incidents  string     `json:"incidents,omitempty"`
	Info       []Info     `json:"info"`
	Active     bool       `json:"isActive"`
	FetchedAt  time.Time  `json:"fetchedAt"`
	CreatedAt  time.Time  `json:"createdAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt,omitempty"`
}

// MaxExpires returns the latest expires timestamp across all info blocks,
// or the zero time if no info block carries one.
func (a *Alert) MaxExpires() time.Time {
	var max time.Time
	for i := range a.Info {
		if a.Info[i].Expires != nil && a.Info[i].Expires.After(max) {
			max = *a.Info[i].Expires
		}
	}
	return max
}

// TopSeverity returns the most severe severity across all info blocks,
// defaulting to "Unknown" when no info block is present.
func (a *Alert) TopSeverity() string {
	top := "Unknown"
	best := -1
	for i := range a.Info {
		if r := SeverityRank(a.Info[i].Severity); r > best {
			best = r
			top = a.Info[i].Severity
		}
	}
	if best <= 0 {
		return "Unknown"
	}
	return top
}

// IsActiveAt reports whether the alert counts as active at the given instant:
// at least one info block must expire strictly in the future. The writer
// computes this at write time; the janitor repairs drift afterwards.
func IsActiveAt(a *Alert, now time.Time) bool {
	for i := range a.Info {
		if a.Info[i].Expires != nil && a.Info[i].Expires.After(now) {
			return true
		}
	}
	return false
}

// StripGeoJSON removes any derived geometry from every area of the alert.
// Incoming payloads are cleaned before upserts: a possibly-invalid
// pre-computed geometry sent into a spatially indexed write could reject the
// whole batch, so geometry is always recomputed and written separately.
func StripGeoJSON(a *Alert) {
	for i := range a.Info {
		for j := range a.Info[i].Areas {
			a.Info[i].Areas[j].GeoJSON = nil
		}
	}
}
