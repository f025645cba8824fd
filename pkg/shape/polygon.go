package shape

import (
	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// Polygon is an ordered sequence of >=3 Vertices; the closing edge from
// last to first is implicit. Self-intersection is not validated — the
// caller is responsible. Winding is irrelevant since membership uses ray
// casting.
type Polygon struct {
	Vertices []Vertex
	extent   Extent
}

func (Polygon) isShape() {}

// NewPolygon validates vertex count and computes the polygon's square
// extent.
func NewPolygon(vertices []Vertex) (Polygon, error) {
	if len(vertices) < 3 {
		return Polygon{}, fenceerr.New(fenceerr.KindInvalidArg, "NewPolygon", "polygon needs >= 3 vertices")
	}
	p := Polygon{Vertices: append([]Vertex(nil), vertices...)}
	p.extent = p.computeExtent()
	return p, nil
}

func (p Polygon) computeExtent() Extent {
	v := p.Vertices
	latMin, latMax := v[0].LatE9, v[0].LatE9
	lonMin, lonMax := v[0].LonE9, v[0].LonE9
	crosses := false
	nearPole := geomath.NearPole(v[0].LatE9)

	for i := 1; i < len(v); i++ {
		if v[i].LatE9 < latMin {
			latMin = v[i].LatE9
		}
		if v[i].LatE9 > latMax {
			latMax = v[i].LatE9
		}
		if v[i].LonE9 < lonMin {
			lonMin = v[i].LonE9
		}
		if v[i].LonE9 > lonMax {
			lonMax = v[i].LonE9
		}
		if geomath.NearPole(v[i].LatE9) {
			nearPole = true
		}
	}

	// A consecutive pair spans the antimeridian discontinuity when their
	// naive longitude difference exceeds 180 degrees but the wrap-safe
	// difference does not — i.e. the short way between them crosses 180.
	n := len(v)
	for i := 0; i < n; i++ {
		a := v[i]
		b := v[(i+1)%n]
		naive := b.LonE9 - a.LonE9
		if naive < 0 {
			naive = -naive
		}
		if naive > 180*geomath.E9 {
			crosses = true
			break
		}
	}
	if crosses {
		// Western limit: smallest non-negative longitude; eastern limit:
		// largest negative longitude (the convention Extent documents).
		lonMin, lonMax = 180*geomath.E9, -180*geomath.E9
		for _, u := range v {
			if u.LonE9 >= 0 && u.LonE9 < lonMin {
				lonMin = u.LonE9
			}
			if u.LonE9 < 0 && u.LonE9 > lonMax {
				lonMax = u.LonE9
			}
		}
	}

	return Extent{
		LatMinE9: latMin, LatMaxE9: latMax,
		LonMinE9: lonMin, LonMaxE9: lonMax,
		CrossesAntimeridian: crosses,
		NearPole:            nearPole,
	}
}

func (p Polygon) Extent() Extent { return p.extent }

// rayCastContains implements the eastward ray-cast test: an edge a->b
// crosses iff (a.lat < p.lat) != (b.lat < p.lat) and
// the longitude at which the edge attains p.lat is east of p.lon (wrap-
// safe comparison). Odd crossing count means inside.
func (p Polygon) rayCastContains(q Vertex) bool {
	inside := false
	n := len(p.Vertices)
	for i := 0; i < n; i++ {
		a := p.Vertices[i]
		b := p.Vertices[(i+1)%n]

		aBelow := a.LatE9 < q.LatE9
		bBelow := b.LatE9 < q.LatE9
		if aBelow == bBelow {
			continue
		}

		t := float64(q.LatE9-a.LatE9) / float64(b.LatE9-a.LatE9)
		lonDiff := geomath.WrapLonDiffE9(b.LonE9, a.LonE9)
		lonAtCrossingE9 := a.LonE9 + int64(t*float64(lonDiff))

		if geomath.WrapLonDiffE9(lonAtCrossingE9, q.LonE9) > 0 {
			inside = !inside
		}
	}
	return inside
}

// distanceToPerimeterMM returns the minimum distance from q to any edge of
// the polygon, selecting the planar/spherical/geodesic model per the
// polygon's cached extent.
func (p Polygon) distanceToPerimeterMM(q Vertex, queryRadiusMM int64, provider geodesic.Provider) (int64, error) {
	n := len(p.Vertices)
	m := selectModel(p.extent, queryRadiusMM, provider != nil)

	best := int64(-1)
	for i := 0; i < n; i++ {
		a := p.Vertices[i]
		b := p.Vertices[(i+1)%n]

		var d int64
		var err error
		switch m {
		case modelPlanar:
			d = geomath.PlanarPointToSegmentMM(q.LatE9, q.LonE9, a.LatE9, a.LonE9, b.LatE9, b.LonE9)
		case modelGeodesic:
			d, err = provider.DistanceToSegment(q.LatE9, q.LonE9, a.LatE9, a.LonE9, b.LatE9, b.LonE9)
		default:
			d, _, err = geomath.PointToArcMM(q.LatE9, q.LonE9, a.LatE9, a.LonE9, b.LatE9, b.LonE9)
		}
		if err != nil {
			return 0, err
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best, nil
}

// SignedDistanceMM returns the signed distance to the polygon's perimeter:
// negative (or zero) when q is inside or exactly on the boundary, positive
// when outside.
func (p Polygon) SignedDistanceMM(q Vertex, queryRadiusMM int64, provider geodesic.Provider) (int64, error) {
	dist, err := p.distanceToPerimeterMM(q, queryRadiusMM, provider)
	if err != nil {
		return 0, err
	}
	inside := dist == 0 || p.rayCastContains(q)
	if inside {
		return -dist, nil
	}
	return dist, nil
}
