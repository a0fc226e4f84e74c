// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

package geometry

import (
	"testing"

	"github.com/decibelco/capstream/internal/models"
)

func TestNormalizeArea_SinglePolygon(t *testing.T) {
	area := &models.Area{
		AreaDesc: "Test District",
		Polygons: []string{"10,20 10,30 20,30 20,20"},
	}

	geo := NormalizeArea(area, "TEST-1")
	if geo == nil {
		t.Fatal("expected geometry")
	}
	if geo.Type != "Polygon" {
		t.Errorf("expected Polygon, got %s", geo.Type)
	}

	coords, ok := geo.Coordinates.([][]Point)
	if !ok {
		t.Fatalf("unexpected coordinates type %T", geo.Coordinates)
	}
	if len(coords) != 1 || len(coords[0]) != 5 {
		t.Errorf("expected one ring of 5 points, got %d rings", len(coords))
	}
}

func TestNormalizeArea_MultiplePolygons(t *testing.T) {
	area := &models.Area{
		Polygons: []string{
			"10,20 10,30 20,30 20,20",
			"40,50 40,60 50,60 50,50",
		},
	}

	geo := NormalizeArea(area, "TEST-2")
	if geo == nil {
		t.Fatal("expected geometry")
	}
	if geo.Type != "MultiPolygon" {
		t.Errorf("expected MultiPolygon, got %s", geo.Type)
	}
}

func TestNormalizeArea_BowtieDropped(t *testing.T) {
	area := &models.Area{
		Polygons: []string{"0,0 0,10 10,0 10,10"},
	}

	if geo := NormalizeArea(area, "TEST-3"); geo != nil {
		t.Errorf("expected nil geometry for unrepairable bowtie, got %+v", geo)
	}
}

func TestNormalizeArea_MixedValidInvalid(t *testing.T) {
	area := &models.Area{
		Polygons: []string{
			"0,0 0,10 10,0 10,10",     // bowtie, dropped
			"10,20 10,30 20,30 20,20", // valid
		},
	}

	geo := NormalizeArea(area, "TEST-4")
	if geo == nil {
		t.Fatal("expected surviving ring to produce geometry")
	}
	if geo.Type != "Polygon" {
		t.Errorf("expected single Polygon after dropping bowtie, got %s", geo.Type)
	}
}

func TestNormalizeArea_Circle(t *testing.T) {
	area := &models.Area{
		Circles: []string{"28.6,77.2 25"},
	}

	geo := NormalizeArea(area, "TEST-5")
	if geo == nil {
		t.Fatal("expected geometry from circle")
	}
	if geo.Type != "Polygon" {
		t.Errorf("expected Polygon, got %s", geo.Type)
	}
}

func TestNormalizeArea_Empty(t *testing.T) {
	area := &models.Area{AreaDesc: "textual only"}
	if geo := NormalizeArea(area, "TEST-6"); geo != nil {
		t.Errorf("expected nil geometry for area without shapes, got %+v", geo)
	}
}

func TestNormalizeAlert_PopulatesAllAreas(t *testing.T) {
	alert := &models.Alert{
		Identifier: "TEST-7",
		Info: []models.Info{
			{
				Areas: []models.Area{
					{Polygons: []string{"10,20 10,30 20,30 20,20"}},
					{AreaDesc: "no shapes"},
				},
			},
		},
	}

	NormalizeAlert(alert)
	if alert.Info[0].Areas[0].GeoJSON == nil {
		t.Error("expected first area to get geometry")
	}
	if alert.Info[0].Areas[1].GeoJSON != nil {
		t.Error("expected second area to stay without geometry")
	}
}

func TestGeoJSONContains(t *testing.T) {
	area := &models.Area{Polygons: []string{"10,20 10,30 20,30 20,20"}}
	geo := NormalizeArea(area, "TEST-8")
	if geo == nil {
		t.Fatal("expected geometry")
	}

	if !GeoJSONContains(geo, Point{25, 15}) {
		t.Error("expected point inside polygon")
	}
	if GeoJSONContains(geo, Point{0, 0}) {
		t.Error("expected point outside polygon")
	}
	if GeoJSONContains(nil, Point{25, 15}) {
		t.Error("nil geometry contains nothing")
	}
}

func TestGeoJSONContains_FloatSliceCoordinates(t *testing.T) {
	// Point aliases []float64, so coordinates built as plain float slices must
	// hit the same type-switch cases as freshly normalized ones.
	polygon := &models.GeoJSON{
		Type: "Polygon",
		Coordinates: [][][]float64{{
			{20, 10}, {30, 10}, {30, 20}, {20, 20}, {20, 10},
		}},
	}
	if !GeoJSONContains(polygon, Point{25, 15}) {
		t.Error("expected point inside float-typed polygon")
	}
	if GeoJSONContains(polygon, Point{0, 0}) {
		t.Error("expected point outside float-typed polygon")
	}

	multi := &models.GeoJSON{
		Type: "MultiPolygon",
		Coordinates: [][][][]float64{
			{{{20, 10}, {30, 10}, {30, 20}, {20, 20}, {20, 10}}},
			{{{50, 40}, {60, 40}, {60, 50}, {50, 50}, {50, 40}}},
		},
	}
	if !GeoJSONContains(multi, Point{55, 45}) {
		t.Error("expected point inside second float-typed polygon")
	}
	if GeoJSONContains(multi, Point{40, 30}) {
		t.Error("expected point between polygons outside both")
	}
}

func TestGeoJSONContains_GenericCoordinates(t *testing.T) {
	// Shape of a Polygon after a JSON round-trip through storage.
	generic := &models.GeoJSON{
		Type: "Polygon",
		Coordinates: []interface{}{
			[]interface{}{
				[]interface{}{20.0, 10.0},
				[]interface{}{30.0, 10.0},
				[]interface{}{30.0, 20.0},
				[]interface{}{20.0, 20.0},
				[]interface{}{20.0, 10.0},
			},
		},
	}
	if !GeoJSONContains(generic, Point{25, 15}) {
		t.Error("expected point inside decoded polygon")
	}
	if GeoJSONContains(generic, Point{0, 0}) {
		t.Error("expected point outside decoded polygon")
	}
}

func TestCircleConsistency_PointInArea(t *testing.T) {
	// A point well inside the circle radius must test inside the tessellation.
	area := &models.Area{Circles: []string{"28.6,77.2 50"}}
	geo := NormalizeArea(area, "TEST-9")
	if geo == nil {
		t.Fatal("expected geometry")
	}
	if !GeoJSONContains(geo, Point{77.2, 28.6}) {
		t.Error("expected circle center inside tessellated ring")
	}
	// 10 km north of center, well within 50 km.
	if !GeoJSONContains(geo, Point{77.2, 28.69}) {
		t.Error("expected near-center point inside tessellated ring")
	}
	// 100 km away, well outside.
	if GeoJSONContains(geo, Point{78.3, 29.5}) {
		t.Error("expected distant point outside tessellated ring")
	}
}
