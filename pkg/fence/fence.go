// Package fence implements the Fence aggregate: an ordered union of Shapes
// with an optional altitude band, a name, and reference counting that
// freezes the fence against structural mutation while it is attached to
// any Context.
package fence

import (
	"sync"

	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/shape"
)

// Fence is an ordered list of Shapes (union of Circles and Polygons) plus
// an optional altitude band, a borrowed name, and a reference count.
type Fence struct {
	mu sync.Mutex

	name   string
	shapes []shape.Shape

	altMinMM int64 // geomath.AltitudeUnset means unset
	altMaxMM int64

	refCount int

	// openPolygon accumulates AddVertex calls until a new polygon is
	// started or a circle is appended.
	openPolygon []shape.Vertex

	// openShapeIdx is the index in shapes of the polygon currently being
	// extended by openPolygon, or -1 if the open polygon has not yet
	// reached 3 vertices (and so has no entry in shapes to replace).
	openShapeIdx int
}

// New creates an empty, named Fence. name is borrowed, not owned — callers
// must keep it alive for the fence's lifetime.
//
// The position-state machine (None/Inside/Outside) lives per (context,
// fence) pair in pkg/devctx.Context, not on the Fence itself — a Fence has
// no state of its own, only shapes, altitude band and reference count.
func New(name string) *Fence {
	return &Fence{
		name:         name,
		altMinMM:     geomath.AltitudeUnset,
		altMaxMM:     geomath.AltitudeUnset,
		openShapeIdx: -1,
	}
}

// Name returns the fence's borrowed name.
func (f *Fence) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// RefCount returns the current attachment count.
func (f *Fence) RefCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refCount
}

// Retain increments the reference count; called by devctx.Context.Attach.
func (f *Fence) Retain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refCount++
}

// Release decrements the reference count; called by devctx.Context.Detach.
func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refCount > 0 {
		f.refCount--
	}
}

func (f *Fence) frozen() bool { return f.refCount > 0 }

// AddCircle appends a Circle shape. Fails Busy if the fence is attached to
// any context, InvalidArg if radiusMM < 0.
func (f *Fence) AddCircle(center shape.Vertex, radiusMM int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "AddCircle", "fence is attached to one or more contexts")
	}
	c, err := shape.NewCircle(center, radiusMM)
	if err != nil {
		return err
	}
	f.shapes = append(f.shapes, c)
	f.openPolygon = nil
	f.openShapeIdx = -1
	return nil
}

// AddVertex appends a vertex to the current polygon, or starts a new
// polygon if newPolygon is true or the previously added shape was a
// circle. A polygon only becomes part of the fence's shape
// list once it reaches 3 vertices; attempting to add a 4th+ vertex keeps
// extending the same polygon (its cached extent is recomputed) by
// replacing its entry in shapes rather than appending a new one.
func (f *Fence) AddVertex(v shape.Vertex, newPolygon bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "AddVertex", "fence is attached to one or more contexts")
	}

	if newPolygon || f.openPolygon == nil {
		f.openPolygon = []shape.Vertex{v}
		f.openShapeIdx = -1
		return nil
	}

	f.openPolygon = append(f.openPolygon, v)
	if len(f.openPolygon) < 3 {
		return nil
	}

	poly, err := shape.NewPolygon(f.openPolygon)
	if err != nil {
		return err
	}
	if f.openShapeIdx >= 0 {
		f.shapes[f.openShapeIdx] = poly
		return nil
	}
	f.openShapeIdx = len(f.shapes)
	f.shapes = append(f.shapes, poly)
	return nil
}

// SetAltitudeMin sets the minimum altitude band in millimetres;
// geomath.AltitudeUnset clears it.
func (f *Fence) SetAltitudeMin(mm int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "SetAltitudeMin", "fence is attached to one or more contexts")
	}
	f.altMinMM = mm
	return nil
}

// SetAltitudeMax sets the maximum altitude band in millimetres;
// geomath.AltitudeUnset clears it.
func (f *Fence) SetAltitudeMax(mm int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "SetAltitudeMax", "fence is attached to one or more contexts")
	}
	f.altMaxMM = mm
	return nil
}

// Clear drops all shapes and altitude limits.
func (f *Fence) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "Clear", "fence is attached to one or more contexts")
	}
	f.shapes = nil
	f.openPolygon = nil
	f.altMinMM = geomath.AltitudeUnset
	f.altMaxMM = geomath.AltitudeUnset
	return nil
}

// Free releases the fence. Fails Busy if still attached anywhere.
func (f *Fence) Free() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen() {
		return fenceerr.New(fenceerr.KindBusy, "Free", "fence is attached to one or more contexts")
	}
	return nil
}

// Snapshot returns a read-only view used by pkg/engine: the shape list and
// altitude band. Safe for concurrent use with mutating calls (it holds the
// lock just long enough to copy the slice header and scalars).
func (f *Fence) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Shapes:   append([]shape.Shape(nil), f.shapes...),
		AltMinMM: f.altMinMM,
		AltMaxMM: f.altMaxMM,
		Name:     f.name,
	}
}

// Snapshot is the immutable data pkg/engine.Evaluate needs from a Fence.
type Snapshot struct {
	Shapes   []shape.Shape
	AltMinMM int64
	AltMaxMM int64
	Name     string
}

// Valid reports whether the fence is evaluable: at least one Circle or one
// Polygon with >= 3 vertices. A Polygon value is always
// >= 3 vertices by construction (shape.NewPolygon enforces it), so this is
// simply "at least one shape".
func (s Snapshot) Valid() bool { return len(s.Shapes) > 0 }
