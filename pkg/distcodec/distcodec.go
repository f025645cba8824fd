// Package distcodec is the single seam where the wire format
// (pkg/distmodel, float degrees and metres) becomes the engine's runtime
// types (pkg/shape, pkg/fence, fixed-point 1e-9 degree and millimetres)
// and back. No other package performs this conversion.
package distcodec

import (
	"fmt"

	"github.com/iannil/geofence-engine/pkg/distmodel"
	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/shape"
)

// ShapeToDist converts one runtime Shape to its wire representation.
func ShapeToDist(s shape.Shape) (distmodel.DistShape, error) {
	switch v := s.(type) {
	case shape.Circle:
		return distmodel.DistShape{
			Kind: distmodel.ShapeKindCircle,
			Center: &distmodel.DistVertex{
				LatDeg: geomath.E9ToDeg(v.Center.LatE9),
				LonDeg: geomath.E9ToDeg(v.Center.LonE9),
			},
			RadiusM: geomath.MMToMetres(v.RadiusMM),
		}, nil
	case shape.Polygon:
		vertices := make([]distmodel.DistVertex, len(v.Vertices))
		for i, vert := range v.Vertices {
			vertices[i] = distmodel.DistVertex{
				LatDeg: geomath.E9ToDeg(vert.LatE9),
				LonDeg: geomath.E9ToDeg(vert.LonE9),
			}
		}
		return distmodel.DistShape{Kind: distmodel.ShapeKindPolygon, Vertices: vertices}, nil
	default:
		return distmodel.DistShape{}, fmt.Errorf("distcodec: unknown shape implementation %T", s)
	}
}

// DistVertexToVertex converts one wire vertex to its fixed-point runtime
// form.
func DistVertexToVertex(v distmodel.DistVertex) (shape.Vertex, error) {
	return shape.NewVertex(geomath.DegToE9(v.LatDeg), geomath.DegToE9(v.LonDeg))
}

// FenceToDist converts a live Fence into its wire representation, given
// the stable ID it should be published under (the Fence itself has no
// notion of a distribution ID).
func FenceToDist(f *fence.Fence, id string) (distmodel.DistFenceItem, error) {
	snap := f.Snapshot()

	shapes := make([]distmodel.DistShape, len(snap.Shapes))
	for i, s := range snap.Shapes {
		ds, err := ShapeToDist(s)
		if err != nil {
			return distmodel.DistFenceItem{}, err
		}
		shapes[i] = ds
	}

	item := distmodel.DistFenceItem{ID: id, Name: snap.Name, Shapes: shapes}
	if snap.AltMinMM != geomath.AltitudeUnset {
		m := geomath.MMToMetres(snap.AltMinMM)
		item.AltMinM = &m
	}
	if snap.AltMaxMM != geomath.AltitudeUnset {
		m := geomath.MMToMetres(snap.AltMaxMM)
		item.AltMaxM = &m
	}
	return item, nil
}

// DistToFence builds a new Fence from its wire representation, performing
// every AddCircle/AddVertex/SetAltitude* call needed to reconstruct it.
func DistToFence(item distmodel.DistFenceItem) (*fence.Fence, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}

	f := fence.New(item.Name)
	for _, s := range item.Shapes {
		switch s.Kind {
		case distmodel.ShapeKindCircle:
			center, err := DistVertexToVertex(*s.Center)
			if err != nil {
				return nil, err
			}
			if err := f.AddCircle(center, geomath.MetresToMM(s.RadiusM)); err != nil {
				return nil, err
			}
		case distmodel.ShapeKindPolygon:
			for i, dv := range s.Vertices {
				v, err := DistVertexToVertex(dv)
				if err != nil {
					return nil, err
				}
				if err := f.AddVertex(v, i == 0); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fenceerr.New(fenceerr.KindInvalidArg, "DistToFence", "unknown shape kind "+string(s.Kind))
		}
	}

	if item.AltMinM != nil {
		if err := f.SetAltitudeMin(geomath.MetresToMM(*item.AltMinM)); err != nil {
			return nil, err
		}
	}
	if item.AltMaxM != nil {
		if err := f.SetAltitudeMax(geomath.MetresToMM(*item.AltMaxM)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// FenceSetToDist converts a map of id -> live Fence into a DistFenceSet at
// the given version.
func FenceSetToDist(fences map[string]*fence.Fence, version uint64, createdTS int64) (distmodel.DistFenceSet, error) {
	items := make([]distmodel.DistFenceItem, 0, len(fences))
	for id, f := range fences {
		item, err := FenceToDist(f, id)
		if err != nil {
			return distmodel.DistFenceSet{}, err
		}
		items = append(items, item)
	}
	return distmodel.DistFenceSet{Version: version, CreatedTS: createdTS, Items: items}, nil
}

// LoadFenceSet builds a map of id -> live Fence from a wire DistFenceSet.
func LoadFenceSet(set distmodel.DistFenceSet) (map[string]*fence.Fence, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	out := make(map[string]*fence.Fence, len(set.Items))
	for _, item := range set.Items {
		f, err := DistToFence(item)
		if err != nil {
			return nil, fmt.Errorf("distcodec: loading fence %q: %w", item.ID, err)
		}
		out[item.ID] = f
	}
	return out, nil
}
