package geodesic

import (
	"math"

	"github.com/iannil/geofence-engine/pkg/geomath"
)

// SphericalProvider implements Provider on a spherical-Earth model using
// pkg/geomath's haversine and point-to-arc kernel. It is always available
// and is exactly what the evaluation engine falls back to when no true
// WGS-84 solver is configured.
type SphericalProvider struct{}

func (SphericalProvider) Inverse(pLatE9, pLonE9, qLatE9, qLonE9 int64) (int64, error) {
	return geomath.HaversineMM(pLatE9, pLonE9, qLatE9, qLonE9)
}

func (SphericalProvider) Direct(pLatE9, pLonE9 int64, azimuthDeg float64, distMM int64) (int64, int64, error) {
	angular := float64(distMM) / 1000 / geomath.EarthMeanRadiusM
	lat1 := geomath.E9ToDeg(pLatE9) * math.Pi / 180
	lon1 := geomath.E9ToDeg(pLonE9) * math.Pi / 180
	brng := azimuthDeg * math.Pi / 180

	sinLat2 := math.Sin(lat1)*math.Cos(angular) + math.Cos(lat1)*math.Sin(angular)*math.Cos(brng)
	lat2 := math.Asin(clamp(sinLat2))

	y := math.Sin(brng) * math.Sin(angular) * math.Cos(lat1)
	x := math.Cos(angular) - math.Sin(lat1)*math.Sin(lat2)
	lon2 := lon1 + math.Atan2(y, x)

	latE9 := geomath.DegToE9(lat2 * 180 / math.Pi)
	lonE9 := geomath.NormalizeLonE9(geomath.DegToE9(lon2 * 180 / math.Pi))
	return latE9, lonE9, nil
}

func (SphericalProvider) DistanceToSegment(pLatE9, pLonE9, aLatE9, aLonE9, bLatE9, bLonE9 int64) (int64, error) {
	d, _, err := geomath.PointToArcMM(pLatE9, pLonE9, aLatE9, aLonE9, bLatE9, bLonE9)
	return d, err
}

// LatitudeOfIntersection returns the latitude at which the great circle
// through a->b crosses the meridian at lonE9, via the standard spherical
// rhumb-free formula (intersection of a great circle with a meridian).
func (SphericalProvider) LatitudeOfIntersection(aLatE9, aLonE9, bLatE9, bLonE9, lonE9 int64) (int64, error) {
	lat1 := geomath.E9ToDeg(aLatE9) * math.Pi / 180
	lon1 := 0.0
	lat2 := geomath.E9ToDeg(bLatE9) * math.Pi / 180
	lon2 := geomath.E9ToDeg(geomath.WrapLonDiffE9(bLonE9, aLonE9)) * math.Pi / 180
	lon3 := geomath.E9ToDeg(geomath.WrapLonDiffE9(lonE9, aLonE9)) * math.Pi / 180

	// Intersection of great circle through (lat1,lon1)-(lat2,lon2) with the
	// meridian lon=lon3, via the tangent formula for latitude as a function
	// of longitude along a great circle.
	denom := math.Sin(lon2 - lon1)
	if math.Abs(denom) < 1e-15 {
		// Edge runs along a meridian; any latitude on it satisfies lon3==lon1.
		return aLatE9, nil
	}
	tanLat := (math.Tan(lat1)*math.Sin(lon2-lon3) + math.Tan(lat2)*math.Sin(lon3-lon1)) / denom
	lat := math.Atan(tanLat)
	return geomath.DegToE9(lat * 180 / math.Pi), nil
}

func clamp(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
