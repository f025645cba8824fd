package shape

import (
	"math"

	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// Circle is a shape defined by a center Vertex and a radius in
// millimetres.
type Circle struct {
	Center   Vertex
	RadiusMM int64
	extent   Extent
}

func (Circle) isShape() {}

// NewCircle validates radius and computes the circle's square extent by
// walking RadiusMM due N/S/E/W from the center.
func NewCircle(center Vertex, radiusMM int64) (Circle, error) {
	if radiusMM < 0 {
		return Circle{}, fenceerr.New(fenceerr.KindInvalidArg, "NewCircle", "radius must be >= 0")
	}
	c := Circle{Center: center, RadiusMM: radiusMM}
	c.extent = c.computeExtent()
	return c, nil
}

func (c Circle) computeExtent() Extent {
	radiusDeg := geomath.MMToMetres(c.RadiusMM) / 111_320.0 // conservative upper bound on deg/metre

	latMin := c.Center.LatE9 - geomath.DegToE9(radiusDeg)
	latMax := c.Center.LatE9 + geomath.DegToE9(radiusDeg)
	clamped := false
	if latMin < -90*geomath.E9 {
		latMin = -90 * geomath.E9
		clamped = true
	}
	if latMax > 90*geomath.E9 {
		latMax = 90 * geomath.E9
		clamped = true
	}

	// East/west walk must account for longitude convergence near the
	// poles: widen by 1/cos(lat) at the pole-ward extreme, capped at the
	// full circle when that exceeds 180 degrees.
	lonSpanDeg := radiusDeg
	poleward := math.Max(math.Abs(geomath.E9ToDeg(latMin)), math.Abs(geomath.E9ToDeg(latMax)))
	if cos := math.Cos(poleward * math.Pi / 180); cos > 1e-6 {
		lonSpanDeg = radiusDeg / cos
	} else {
		lonSpanDeg = 180
	}
	if lonSpanDeg > 180 {
		lonSpanDeg = 180
	}

	lonMinRaw := c.Center.LonE9 - geomath.DegToE9(lonSpanDeg)
	lonMaxRaw := c.Center.LonE9 + geomath.DegToE9(lonSpanDeg)
	crosses := lonMaxRaw > 180*geomath.E9 || lonMinRaw < -180*geomath.E9

	ext := Extent{
		LatMinE9:            latMin,
		LatMaxE9:            latMax,
		LonMinE9:            geomath.NormalizeLonE9(lonMinRaw),
		LonMaxE9:            geomath.NormalizeLonE9(lonMaxRaw),
		CrossesAntimeridian: crosses,
		NearPole:            clamped || geomath.NearPole(c.Center.LatE9),
	}
	if lonSpanDeg >= 180 {
		// The box covers every longitude; keep it unwrapped.
		ext.LonMinE9, ext.LonMaxE9, ext.CrossesAntimeridian = -180*geomath.E9, 180*geomath.E9, false
	}
	return ext
}

func (c Circle) Extent() Extent { return c.extent }

// SignedDistanceMM returns dist(center, p) - radius: negative when p is
// inside the circle, zero on its boundary, positive when outside.
func (c Circle) SignedDistanceMM(p Vertex, queryRadiusMM int64, provider geodesic.Provider) (int64, error) {
	var dist int64
	var err error
	switch selectModel(c.extent, queryRadiusMM, provider != nil) {
	case modelPlanar:
		dist = planarPointToCentre(p, c.Center)
	case modelGeodesic:
		dist, err = provider.Inverse(c.Center.LatE9, c.Center.LonE9, p.LatE9, p.LonE9)
	default:
		dist, err = geomath.HaversineMM(c.Center.LatE9, c.Center.LonE9, p.LatE9, p.LonE9)
	}
	if err != nil {
		return 0, err
	}
	return dist - c.RadiusMM, nil
}

func planarPointToCentre(p, center Vertex) int64 {
	midLat := geomath.E9ToDeg(p.LatE9+center.LatE9) / 2
	cos := math.Cos(midLat * math.Pi / 180)
	mPerDegLat := 111_132.954
	mPerDegLon := mPerDegLat * cos
	dLat := geomath.E9ToDeg(p.LatE9 - center.LatE9)
	dLon := geomath.E9ToDeg(geomath.WrapLonDiffE9(p.LonE9, center.LonE9))
	y := dLat * mPerDegLat
	x := dLon * mPerDegLon
	return geomath.MetresToMM(math.Sqrt(x*x + y*y))
}
