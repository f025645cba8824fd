package shape

import (
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// Shape is the tagged sum Circle | Polygon. Both concrete types implement it.
type Shape interface {
	// Extent returns the shape's cached square extent.
	Extent() Extent

	// SignedDistanceMM returns the shortest distance from p to the
	// shape's boundary, negative when p is inside, zero when p is exactly
	// on the boundary (on-edge counts as inside), positive when
	// outside. queryRadiusMM is the position's horizontal uncertainty
	// radius (0 if unknown) and gates planar eligibility alongside the
	// shape's extent. provider supplies geodesic operations for shapes
	// whose extent exceeds the planar threshold; pass geodesic.Default
	// when the caller has not configured one.
	SignedDistanceMM(p Vertex, queryRadiusMM int64, provider geodesic.Provider) (int64, error)

	isShape()
}

// model identifies which numerical model applies for a query against a
// shape of the given extent and query uncertainty radius.
type model int

const (
	modelPlanar model = iota
	modelGeodesic
	modelSpherical
)

// selectModel implements the three-part model-selection policy: planar
// requires both a small extent and a small query uncertainty radius, else
// geodesic when an adapter is installed, else spherical.
func selectModel(ext Extent, queryRadiusMM int64, hasGeodesic bool) model {
	smallExtent := ext.sizeMM() <= geomath.MetresToMM(geomath.WGS84ThresholdMetres) && !ext.NearPole
	smallRadius := queryRadiusMM <= geomath.MetresToMM(geomath.SquareExtentUncertaintyMarginMetres)
	if smallExtent && smallRadius {
		return modelPlanar
	}
	if hasGeodesic {
		return modelGeodesic
	}
	return modelSpherical
}
