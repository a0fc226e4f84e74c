// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geometry

import (
	"github.com/decibelco/capstream/internal/logging"
	"github.com/decibelco/capstream/internal/metrics"
	"github.com/decibelco/capstream/internal/models"
)

// NormalizeAlert populates the derived GeoJSON on every area of the alert.
// Failures are contained: a bad ring is dropped with a warning, a panic in
// the math is recovered, and the alert record always survives. An area
// without geometry is simply excluded from spatial queries.
func NormalizeAlert(alert *models.Alert) {
	for i := range alert.Info {
		for j := range alert.Info[i].Areas {
			area := &alert.Info[i].Areas[j]
			area.GeoJSON = NormalizeArea(area, alert.Identifier)
		}
	}
}

// NormalizeArea converts an area's raw polygon and circle strings into a
// validated Polygon or MultiPolygon, or nil if no valid ring can be produced.
func NormalizeArea(area *models.Area, identifier string) (geo *models.GeoJSON) {
	defer func() {
		if r := recover(); r != nil {
			metrics.GeometryFailures.WithLabelValues("panic").Inc()
			logging.Error().
				Str("identifier", identifier).
				Str("area", area.AreaDesc).
				Interface("panic", r).
				Msg("geometry normalization panicked, storing area without geometry")
			geo = nil
		}
	}()

	var rings []Ring

	for _, poly := range area.Polygons {
		ring := ParsePolygonString(poly)
		if ring == nil {
			metrics.GeometryFailures.WithLabelValues("parse").Inc()
			logging.Warn().
				Str("identifier", identifier).
				Str("polygon", truncate(poly, 120)).
				Msg("unparseable polygon string, dropping")
			continue
		}
		if ValidateRing(ring) {
			rings = append(rings, ring)
			continue
		}
		if repaired, ok := RepairRing(ring); ok {
			logging.Debug().
				Str("identifier", identifier).
				Msg("self-intersecting ring repaired by reversing winding order")
			rings = append(rings, repaired)
			continue
		}
		metrics.GeometryFailures.WithLabelValues("self_intersect").Inc()
		logging.Warn().
			Str("identifier", identifier).
			Str("area", area.AreaDesc).
			Msg("self-intersecting ring failed repair, dropping")
	}

	for _, circle := range area.Circles {
		ring := ParseCircleString(circle)
		if ring == nil {
			metrics.GeometryFailures.WithLabelValues("parse").Inc()
			logging.Warn().
				Str("identifier", identifier).
				Str("circle", truncate(circle, 120)).
				Msg("invalid circle string, dropping")
			continue
		}
		rings = append(rings, ring)
	}

	switch len(rings) {
	case 0:
		return nil
	case 1:
		return &models.GeoJSON{
			Type:        "Polygon",
			Coordinates: [][]Point{rings[0]},
		}
	default:
		coords := make([][][]Point, 0, len(rings))
		for _, ring := range rings {
			coords = append(coords, [][]Point{ring})
		}
		return &models.GeoJSON{
			Type:        "MultiPolygon",
			Coordinates: coords,
		}
	}
}

// CombinedGeoJSON merges the geometry of every area of the alert into a
// single Polygon or MultiPolygon for the store's spatial column. Returns nil
// when no area carries geometry.
func CombinedGeoJSON(alert *models.Alert) *models.GeoJSON {
	var polys [][][]Point
	for i := range alert.Info {
		for j := range alert.Info[i].Areas {
			geo := alert.Info[i].Areas[j].GeoJSON
			if geo == nil {
				continue
			}
			switch coords := geo.Coordinates.(type) {
			case [][]Point:
				polys = append(polys, coords)
			case [][][]Point:
				polys = append(polys, coords...)
			}
		}
	}
	switch len(polys) {
	case 0:
		return nil
	case 1:
		return &models.GeoJSON{Type: "Polygon", Coordinates: polys[0]}
	default:
		return &models.GeoJSON{Type: "MultiPolygon", Coordinates: polys}
	}
}

// GeoJSONContains reports whether the geometry contains the [lon, lat] point.
// Used as the in-memory complement to the store's spatial queries. Handles
// both freshly normalized coordinates and the generic slices produced by a
// JSON round-trip through storage.
func GeoJSONContains(geo *models.GeoJSON, p Point) bool {
	if geo == nil {
		return false
	}
	for _, ring := range outerRings(geo) {
		if PointInRing(p, ring) {
			return true
		}
	}
	return false
}

// outerRings extracts each polygon's outer ring regardless of how the
// coordinates are typed. Point aliases []float64, so the typed cases cover
// [][][]float64 and [][][][]float64 as well.
func outerRings(geo *models.GeoJSON) []Ring {
	switch coords := geo.Coordinates.(type) {
	case [][]Point:
		if len(coords) > 0 {
			return []Ring{coords[0]}
		}
	case [][][]Point:
		rings := make([]Ring, 0, len(coords))
		for _, poly := range coords {
			if len(poly) > 0 {
				rings = append(rings, poly[0])
			}
		}
		return rings
	case []interface{}:
		switch geo.Type {
		case "Polygon":
			if ring := genericRing(first(coords)); ring != nil {
				return []Ring{ring}
			}
		case "MultiPolygon":
			var rings []Ring
			for _, poly := range coords {
				if ring := genericRing(first(asSlice(poly))); ring != nil {
					rings = append(rings, ring)
				}
			}
			return rings
		}
	}
	return nil
}

// genericRing converts a JSON-decoded ring ([]interface{} of point slices).
func genericRing(v interface{}) Ring {
	elems := asSlice(v)
	if elems == nil {
		return nil
	}
	ring := make(Ring, 0, len(elems))
	for _, e := range elems {
		pt := asSlice(e)
		if len(pt) < 2 {
			return nil
		}
		lon, okLon := asFloat(pt[0])
		lat, okLat := asFloat(pt[1])
		if !okLon || !okLat {
			return nil
		}
		ring = append(ring, Point{lon, lat})
	}
	return ring
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func first(s []interface{}) interface{} {
	if len(s) == 0 {
		return nil
	}
	return s[0]
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
