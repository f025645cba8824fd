// Package testutil provides shared fence fixtures for tests across the
// geofence engine.
package testutil

import "github.com/iannil/geofence-engine/pkg/distmodel"

// PermanentNoFlyZone returns a test permanent no-fly zone over an airport.
func PermanentNoFlyZone() distmodel.DistFenceItem {
	return distmodel.DistFenceItem{
		ID:          "test-perm-001",
		Priority:    100,
		Name:        "Test Airport No-Fly Zone",
		Description: "Permanent restriction around airport",
		Shapes: []distmodel.DistShape{
			{
				Kind: distmodel.ShapeKindPolygon,
				Vertices: []distmodel.DistVertex{
					{LatDeg: 31.1443, LonDeg: 121.8083}, // Shanghai area
					{LatDeg: 31.1543, LonDeg: 121.8083},
					{LatDeg: 31.1543, LonDeg: 121.8183},
					{LatDeg: 31.1443, LonDeg: 121.8183},
				},
			},
		},
	}
}

// AltitudeLimitFence returns a test fence with a 120m altitude ceiling.
func AltitudeLimitFence() distmodel.DistFenceItem {
	max := 120.0
	return distmodel.DistFenceItem{
		ID:          "test-alt-001",
		Priority:    30,
		Name:        "Test Altitude Limit",
		Description: "Maximum altitude 120m",
		AltMaxM:     &max,
		Shapes: []distmodel.DistShape{
			{
				Kind: distmodel.ShapeKindPolygon,
				Vertices: []distmodel.DistVertex{
					{LatDeg: 22.5431, LonDeg: 114.0579}, // Shenzhen
					{LatDeg: 22.5531, LonDeg: 114.0579},
					{LatDeg: 22.5531, LonDeg: 114.0679},
					{LatDeg: 22.5431, LonDeg: 114.0679},
				},
			},
		},
	}
}

// CircleFence returns a test circular restriction.
func CircleFence() distmodel.DistFenceItem {
	return distmodel.DistFenceItem{
		ID:          "test-circle-001",
		Priority:    60,
		Name:        "Test Circular Restriction",
		Description: "Circular no-fly zone",
		Shapes: []distmodel.DistShape{
			{
				Kind:    distmodel.ShapeKindCircle,
				Center:  &distmodel.DistVertex{LatDeg: 39.9042, LonDeg: 116.4074}, // Beijing
				RadiusM: 500,
			},
		},
	}
}

// BeijingTiananmen returns a fence around Beijing Tiananmen Square.
func BeijingTiananmen() distmodel.DistFenceItem {
	return distmodel.DistFenceItem{
		ID:          "cn-bj-tiananmen",
		Priority:    100,
		Name:        "Beijing Tiananmen Square",
		Description: "Permanent no-fly zone over Tiananmen Square",
		Shapes: []distmodel.DistShape{
			{
				Kind: distmodel.ShapeKindPolygon,
				Vertices: []distmodel.DistVertex{
					{LatDeg: 39.9035, LonDeg: 116.3915},
					{LatDeg: 39.9095, LonDeg: 116.3915},
					{LatDeg: 39.9095, LonDeg: 116.4045},
					{LatDeg: 39.9035, LonDeg: 116.4045},
				},
			},
		},
	}
}

// SampleFences returns a slice of test fences spanning polygon, circle, and
// altitude-banded shapes.
func SampleFences() []distmodel.DistFenceItem {
	return []distmodel.DistFenceItem{
		PermanentNoFlyZone(),
		AltitudeLimitFence(),
		CircleFence(),
	}
}
