// Package shape implements the Circle and Polygon value types: their
// square-extent cache, point tests (radius-aware), and distance-to-edge.
// Model selection (planar/spherical/geodesic) happens here because it
// needs both the shape's cached extent and the caller-supplied
// geodesic.Provider.
package shape

import (
	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// Vertex is a single WGS-84 coordinate in fixed-point units (1e-9 degree).
type Vertex struct {
	LatE9 int64
	LonE9 int64
}

// NewVertex validates and normalizes a Vertex: latitude must be in
// [-90e9, 90e9], longitude is normalised into (-180e9, 180e9].
func NewVertex(latE9, lonE9 int64) (Vertex, error) {
	if latE9 < -90*geomath.E9 || latE9 > 90*geomath.E9 {
		return Vertex{}, fenceerr.New(fenceerr.KindInvalidArg, "NewVertex", "latitude out of range")
	}
	return Vertex{LatE9: latE9, LonE9: geomath.NormalizeLonE9(lonE9)}, nil
}
