// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geometry converts CAP polygon and circle strings into validated
// GeoJSON suitable for spatial indexing.
//
// CAP encodes coordinates as "lat,lon" pairs; GeoJSON wants [lon, lat].
// Spatial indexes reject self-intersecting rings, so every candidate ring is
// checked for non-adjacent edge intersections before it is emitted. A ring
// that fails validation gets one repair attempt (reversed winding order) and
// is dropped if still invalid; the alert itself is always preserved.
package geometry

import (
	"math"
	"strconv"
	"strings"
)

// Point is a GeoJSON position: [lon, lat].
type Point = []float64

// Ring is a closed linear ring of GeoJSON positions.
type Ring = []Point

// ParsePolygonString parses a CAP polygon string into a GeoJSON ring.
//
// The canonical format is whitespace-separated "lat,lon" pairs; some feeds
// space-separate lat and lon instead, so a token stream without commas is
// consumed pairwise. Points with non-finite or out-of-range coordinates are
// dropped. Returns nil if fewer than three unique points survive. The ring is
// closed by duplicating the first point when the feed left it open.
func ParsePolygonString(s string) Ring {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}

	var ring Ring
	if strings.Contains(fields[0], ",") {
		for _, f := range fields {
			parts := strings.SplitN(f, ",", 2)
			if len(parts) != 2 {
				continue
			}
			if p, ok := parseLatLon(parts[0], parts[1]); ok {
				ring = append(ring, p)
			}
		}
	} else {
		// Space-separated variant: "lat lon lat lon ..."
		for i := 0; i+1 < len(fields); i += 2 {
			if p, ok := parseLatLon(fields[i], fields[i+1]); ok {
				ring = append(ring, p)
			}
		}
	}

	if countUnique(ring) < 3 {
		return nil
	}

	return CloseRing(ring)
}

// parseLatLon parses one coordinate pair, emitting GeoJSON [lon, lat] order.
func parseLatLon(latStr, lonStr string) (Point, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil, false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return nil, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, false
	}
	return Point{lon, lat}, true
}

// CloseRing ensures the ring's last point equals its first.
func CloseRing(ring Ring) Ring {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		ring = append(ring, Point{first[0], first[1]})
	}
	return ring
}

func countUnique(ring Ring) int {
	seen := make(map[[2]float64]struct{}, len(ring))
	for _, p := range ring {
		seen[[2]float64{p[0], p[1]}] = struct{}{}
	}
	return len(seen)
}

// ValidateRing reports whether the ring is closed, has at least three unique
// vertices, and is free of self-intersections between non-adjacent edges.
func ValidateRing(ring Ring) bool {
	if len(ring) < 4 {
		return false
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] != last[0] || first[1] != last[1] {
		return false
	}
	if countUnique(ring) < 3 {
		return false
	}
	return !selfIntersects(ring)
}

// selfIntersects checks every pair of non-adjacent edges for intersection,
// including collinear overlap. The closing edge (n-1, 0) is adjacent to both
// the first and last edges.
func selfIntersects(ring Ring) bool {
	n := len(ring) - 1 // edges
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges (shared endpoint), including the wraparound
			// pair of first and closing edge.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsIntersect(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

// orientation returns the signed area of the triangle (p, q, r):
// positive for counterclockwise, negative for clockwise, zero for collinear.
func orientation(p, q, r Point) float64 {
	return (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
}

// onSegment reports whether r lies on segment pq, assuming collinearity.
func onSegment(p, q, r Point) bool {
	return math.Min(p[0], q[0]) <= r[0] && r[0] <= math.Max(p[0], q[0]) &&
		math.Min(p[1], q[1]) <= r[1] && r[1] <= math.Max(p[1], q[1])
}

// segmentsIntersect implements the standard orientation test for proper
// intersection plus the collinear-overlap special cases.
func segmentsIntersect(p1, p2, p3, p4 Point) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

// RepairRing attempts to fix an invalid ring by reversing its winding order.
// Returns the repaired ring and true on success, nil and false otherwise.
func RepairRing(ring Ring) (Ring, bool) {
	reversed := make(Ring, len(ring))
	for i := range ring {
		reversed[i] = ring[len(ring)-1-i]
	}
	if ValidateRing(reversed) {
		return reversed, true
	}
	return nil, false
}

// PointInRing reports whether the point [lon, lat] lies inside the ring,
// using the even-odd ray casting rule. Boundary points count as inside.
func PointInRing(p Point, ring Ring) bool {
	n := len(ring) - 1
	if n < 3 {
		return false
	}
	inside := false
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[i+1]
		if orientation(a, b, p) == 0 && onSegment(a, b, p) {
			return true
		}
		if (a[1] > p[1]) != (b[1] > p[1]) {
			x := a[0] + (p[1]-a[1])/(b[1]-a[1])*(b[0]-a[0])
			if p[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}
