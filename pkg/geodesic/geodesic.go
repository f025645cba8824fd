// Package geodesic defines the optional WGS-84 geodesic capability the
// evaluation engine consults when a shape's square extent exceeds the
// flat-earth threshold. Absence of a configured Provider is not a special
// case: Spherical is itself a total Provider and is the default, so
// callers never branch on "is a provider installed" — they just call the
// interface.
package geodesic

// Provider supplies true (or true-enough) geodesic operations. A Provider
// must be total: every method must return a usable result or a *geomath-
// style numeric error, never panic on valid input.
type Provider interface {
	// Inverse returns the geodesic distance in millimetres between p and q.
	Inverse(pLatE9, pLonE9, qLatE9, qLonE9 int64) (int64, error)

	// Direct returns the point reached by travelling distMM along azimuth
	// degrees (clockwise from north) from p.
	Direct(pLatE9, pLonE9 int64, azimuthDeg float64, distMM int64) (latE9, lonE9 int64, err error)

	// DistanceToSegment returns the shortest geodesic distance in
	// millimetres from p to the segment a->b.
	DistanceToSegment(pLatE9, pLonE9, aLatE9, aLonE9, bLatE9, bLonE9 int64) (int64, error)

	// LatitudeOfIntersection returns the latitude (fixed-point) at which
	// the geodesic through a->b crosses the given longitude, used by the
	// polygon ray-cast edge test for large polygons.
	LatitudeOfIntersection(aLatE9, aLonE9, bLatE9, bLonE9, lonE9 int64) (int64, error)
}

// Default is the Provider used when the caller has not configured one:
// the always-present spherical model (pkg/geomath's haversine/point-to-arc
// kernel). This is a real fallback, not a null object — callers get an
// identical runtime contract whether or not a true-WGS-84 solver is
// installed.
var Default Provider = SphericalProvider{}
