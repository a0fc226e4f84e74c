// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geometry

import (
	"math"
	"strconv"
	"strings"
)

const (
	// earthRadiusMeters is the WGS-84 equatorial radius.
	earthRadiusMeters = 6378137.0

	// circleSegments is the number of bearings used to tessellate a circle.
	circleSegments = 64
)

// ParseCircleString parses a CAP circle string "lat,lon radiusKm" into a
// closed GeoJSON ring tessellated along great circles. Returns nil when the
// string is malformed, out of range, or the generated ring fails validation.
func ParseCircleString(s string) Ring {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil
	}
	parts := strings.SplitN(fields[0], ",", 2)
	if len(parts) != 2 {
		return nil
	}
	center, ok := parseLatLon(parts[0], parts[1])
	if !ok {
		return nil
	}
	radiusKm, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || radiusKm <= 0 || math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) {
		return nil
	}

	ring := CircleToRing(center[1], center[0], radiusKm)
	if !ValidateRing(ring) {
		return nil
	}
	return ring
}

// CircleToRing tessellates a circle of radiusKm around (lat, lon) into a
// closed ring of circleSegments vertices on the WGS-84 sphere.
//
// Each vertex is the great-circle destination point at angular distance
// d = radius/earthRadius along bearing theta:
//
//	lat' = asin(sin(lat)*cos(d) + cos(lat)*sin(d)*cos(theta))
//	lon' = lon + atan2(sin(theta)*sin(d)*cos(lat), cos(d) - sin(lat)*sin(lat'))
func CircleToRing(lat, lon, radiusKm float64) Ring {
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	d := radiusKm * 1000 / earthRadiusMeters

	ring := make(Ring, 0, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		theta := 2 * math.Pi * float64(i) / circleSegments

		latOut := math.Asin(math.Sin(latRad)*math.Cos(d) +
			math.Cos(latRad)*math.Sin(d)*math.Cos(theta))
		lonOut := lonRad + math.Atan2(
			math.Sin(theta)*math.Sin(d)*math.Cos(latRad),
			math.Cos(d)-math.Sin(latRad)*math.Sin(latOut))

		// Normalize longitude to [-180, 180].
		lonDeg := lonOut * 180 / math.Pi
		for lonDeg > 180 {
			lonDeg -= 360
		}
		for lonDeg < -180 {
			lonDeg += 360
		}

		ring = append(ring, Point{lonDeg, latOut * 180 / math.Pi})
	}

	return CloseRing(ring)
}

// HaversineKm returns the great-circle distance in kilometers between two
// [lon, lat] points on the WGS-84 sphere.
func HaversineKm(a, b Point) float64 {
	lat1 := a[1] * math.Pi / 180
	lat2 := b[1] * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b[0] - a[0]) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters / 1000 * math.Asin(math.Sqrt(h))
}
