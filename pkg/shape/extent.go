package shape

import "github.com/iannil/geofence-engine/pkg/geomath"

// Extent is the rectangular lat/lon bounding box of a shape, computed when
// the shape is added to a Fence and immutable thereafter.
type Extent struct {
	LatMinE9, LatMaxE9 int64
	LonMinE9, LonMaxE9 int64

	// CrossesAntimeridian is true when the box's east or west walk wraps
	// past ±180 degrees (circle) or consecutive vertices span the
	// discontinuity (polygon).
	CrossesAntimeridian bool

	// NearPole is true when any part of the shape falls within
	// geomath.WGS84PoleBandDegrees of either pole.
	NearPole bool
}

// OutsideWithMargin reports whether (latE9, lonE9), padded by marginMM in
// every direction, lies entirely outside the extent — i.e. whether the
// shape can be fast-rejected. Antimeridian-aware.
func (e Extent) OutsideWithMargin(latE9, lonE9, marginMM int64) bool {
	marginDeg := geomath.MMToMetres(marginMM) / 111_320.0 // conservative: never overestimates degrees-per-metre at any latitude
	marginE9 := geomath.DegToE9(marginDeg)

	if latE9 < e.LatMinE9-marginE9 || latE9 > e.LatMaxE9+marginE9 {
		return true
	}

	if !e.CrossesAntimeridian {
		return lonE9 < e.LonMinE9-marginE9 || lonE9 > e.LonMaxE9+marginE9
	}

	// The box wraps the antimeridian: LonMinE9 is the western limit (e.g.
	// +170e9) and LonMaxE9 is the eastern limit past +180, stored
	// normalised (e.g. -170e9). We test by wrap-safe distance to each
	// edge instead.
	westDiff := geomath.WrapLonDiffE9(lonE9, e.LonMinE9)
	eastDiff := geomath.WrapLonDiffE9(e.LonMaxE9, lonE9)
	return westDiff < -marginE9 || eastDiff < -marginE9
}

// sizeMM returns a conservative "square extent side" size in millimetres,
// the diagonal of the bounding box, used by the model-selection policy.
func (e Extent) sizeMM() int64 {
	lonMax := e.LonMaxE9
	if e.CrossesAntimeridian {
		lonMax = e.LonMinE9 + geomath.WrapLonDiffE9(e.LonMaxE9, e.LonMinE9)
	}
	d, err := geomath.HaversineMM(e.LatMinE9, e.LonMinE9, e.LatMaxE9, lonMax)
	if err != nil {
		// Degenerate extent (antipodal corners are not physically
		// possible for a single shape); fall back to a coarse estimate.
		return geomath.MetresToMM(geomath.WGS84ThresholdMetres) + 1
	}
	return d
}
