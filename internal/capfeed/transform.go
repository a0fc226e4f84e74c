// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package capfeed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/decibelco/capstream/internal/models"
)

// transformAlert converts a decoded CAP document into the canonical record.
// Returns an error only when the document lacks an identifier; every other
// field degrades gracefully so one sloppy publisher field cannot drop a
// whole alert.
func transformAlert(doc *capDocument, sourceID string, fetchedAt time.Time) (*models.Alert, error) {
	identifier := strings.TrimSpace(doc.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("alert document missing identifier")
	}

	alert := &models.Alert{
		SourceID:   sourceID,
		Identifier: identifier,
		Sender:     strings.TrimSpace(doc.Sender),
		Status:     strings.TrimSpace(doc.Status),
		MsgType:    strings.TrimSpace(doc.MsgType),
		Scope:      strings.TrimSpace(doc.Scope),
		Codes:      trimAll(doc.Codes),
		Note:       strings.TrimSpace(doc.Note),
		References: strings.TrimSpace(doc.References),
		Incidents:  strings.TrimSpace(doc.Incidents),
		FetchedAt:  fetchedAt,
	}

	if sent := parseCAPTime(doc.Sent); sent != nil {
		alert.Sent = *sent
	} else {
		// A missing sent timestamp falls back to fetch time so ordering by
		// sent stays total.
		alert.Sent = fetchedAt
	}

	alert.Info = make([]models.Info, 0, len(doc.Info))
	for i := range doc.Info {
		alert.Info = append(alert.Info, transformInfo(&doc.Info[i], alert.Sender))
	}

	alert.Active = models.IsActiveAt(alert, fetchedAt)
	return alert, nil
}

func transformInfo(in *capInfo, sender string) models.Info {
	info := models.Info{
		Language:      strings.TrimSpace(in.Language),
		Categories:    trimAll(in.Categories),
		Event:         strings.TrimSpace(in.Event),
		ResponseTypes: trimAll(in.ResponseTypes),
		Urgency:       strings.TrimSpace(in.Urgency),
		Severity:      strings.TrimSpace(in.Severity),
		Certainty:     strings.TrimSpace(in.Certainty),
		Effective:     parseCAPTime(in.Effective),
		Onset:         parseCAPTime(in.Onset),
		Expires:       parseCAPTime(in.Expires),
		SenderName:    strings.TrimSpace(in.SenderName),
		Headline:      strings.TrimSpace(in.Headline),
		Description:   strings.TrimSpace(in.Description),
		Instruction:   strings.TrimSpace(in.Instruction),
		Web:           strings.TrimSpace(in.Web),
		Contact:       strings.TrimSpace(in.Contact),
	}

	if info.SenderName == "" {
		info.SenderName = sender
	}
	if info.Severity == "" {
		info.Severity = "Unknown"
	}
	if info.Urgency == "" {
		info.Urgency = "Unknown"
	}
	if info.Certainty == "" {
		info.Certainty = "Unknown"
	}

	for _, p := range in.Parameters {
		if name := strings.TrimSpace(p.ValueName); name != "" {
			info.Parameters = append(info.Parameters, models.Parameter{
				ValueName: name,
				Value:     strings.TrimSpace(p.Value),
			})
		}
	}

	info.Areas = make([]models.Area, 0, len(in.Areas))
	for i := range in.Areas {
		info.Areas = append(info.Areas, transformArea(&in.Areas[i]))
	}
	return info
}

func transformArea(in *capArea) models.Area {
	area := models.Area{
		AreaDesc: strings.TrimSpace(in.AreaDesc),
		Polygons: trimAll(in.Polygons),
		Circles:  trimAll(in.Circles),
		Altitude: parseOptionalFloat(in.Altitude),
		Ceiling:  parseOptionalFloat(in.Ceiling),
	}
	for _, g := range in.Geocodes {
		if name := strings.TrimSpace(g.ValueName); name != "" {
			area.Geocodes = append(area.Geocodes, models.Geocode{
				ValueName: name,
				Value:     strings.TrimSpace(g.Value),
			})
		}
	}
	return area
}

// trimAll trims each entry and drops entries that trim to empty.
func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
