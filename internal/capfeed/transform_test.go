// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package capfeed

import (
	"testing"
	"time"
)

func TestTransformAlert_Full(t *testing.T) {
	var doc capDocument
	if err := decodeXML([]byte(sampleAlertXML), &doc); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	fetchedAt := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	alert, err := transformAlert(&doc, "src-1", fetchedAt)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}

	if alert.SourceID != "src-1" {
		t.Errorf("sourceID = %q", alert.SourceID)
	}
	if alert.Identifier != "12345678901234567890" {
		t.Errorf("identifier = %q", alert.Identifier)
	}
	// +05:30 sent time normalizes to UTC.
	if want := time.Date(2026, 8, 20, 5, 0, 0, 0, time.UTC); !alert.Sent.Equal(want) {
		t.Errorf("sent = %v, want %v", alert.Sent, want)
	}
	// Expires 2026-08-21, fetched 2026-08-20: active.
	if !alert.Active {
		t.Error("expected alert with future expiry to be active")
	}
	if alert.TopSeverity() != "Severe" {
		t.Errorf("top severity = %q", alert.TopSeverity())
	}
}

func TestTransformAlert_MissingIdentifier(t *testing.T) {
	doc := capDocument{Sender: "x@example.gov"}
	if _, err := transformAlert(&doc, "src-1", time.Now()); err == nil {
		t.Error("expected error for missing identifier")
	}
}

func TestTransformAlert_SenderNameDefault(t *testing.T) {
	doc := capDocument{
		Identifier: "1",
		Sender:     "ndma@example.gov",
		Info:       []capInfo{{Event: "Flood"}},
	}
	alert, err := transformAlert(&doc, "src-1", time.Now())
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if alert.Info[0].SenderName != "ndma@example.gov" {
		t.Errorf("senderName = %q, want sender fallback", alert.Info[0].SenderName)
	}
	if alert.Info[0].Severity != "Unknown" {
		t.Errorf("severity = %q, want Unknown default", alert.Info[0].Severity)
	}
}

func TestTransformAlert_MissingSentUsesFetchTime(t *testing.T) {
	doc := capDocument{Identifier: "1"}
	fetchedAt := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	alert, err := transformAlert(&doc, "src-1", fetchedAt)
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if !alert.Sent.Equal(fetchedAt) {
		t.Errorf("sent = %v, want fetch time fallback", alert.Sent)
	}
}

func TestTransformAlert_PastExpiryInactive(t *testing.T) {
	doc := capDocument{
		Identifier: "1",
		Info:       []capInfo{{Expires: "2026-01-01T00:00:00Z"}},
	}
	alert, err := transformAlert(&doc, "src-1", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("transform failed: %v", err)
	}
	if alert.Active {
		t.Error("expected alert with past expiry to be inactive")
	}
}

func TestTransformArea_NumericBounds(t *testing.T) {
	in := capArea{
		AreaDesc: " District ",
		Altitude: "100.5",
		Ceiling:  "not a number",
	}
	area := transformArea(&in)
	if area.AreaDesc != "District" {
		t.Errorf("areaDesc = %q", area.AreaDesc)
	}
	if area.Altitude == nil || *area.Altitude != 100.5 {
		t.Error("expected altitude 100.5")
	}
	if area.Ceiling != nil {
		t.Error("expected unparseable ceiling to stay nil")
	}
}
