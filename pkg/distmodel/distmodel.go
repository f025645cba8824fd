// Package distmodel defines the wire format exchanged between the
// publisher and devices: DistFenceSet, DistFenceItem, DistShape, Manifest
// and FenceSetDelta. These types speak float-degree coordinates and plain
// JSON — the engine's fixed-point Vertex/Shape/Fence types never appear on
// the wire. pkg/distcodec is the single seam where one becomes the other.
package distmodel

import (
	"fmt"
	"time"
)

// ShapeKind tags a DistShape's variant.
type ShapeKind string

const (
	ShapeKindCircle  ShapeKind = "circle"
	ShapeKindPolygon ShapeKind = "polygon"
)

// DistVertex is a WGS-84 coordinate in float degrees, the wire
// representation pkg/distcodec converts to/from shape.Vertex's fixed
// point.
type DistVertex struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
}

// DistShape is one shape in a DistFenceItem's union: either a circle or a
// polygon, tagged by Kind.
type DistShape struct {
	Kind ShapeKind `json:"kind"`

	// Circle fields.
	Center   *DistVertex `json:"center,omitempty"`
	RadiusM  float64     `json:"radius_m,omitempty"`

	// Polygon fields.
	Vertices []DistVertex `json:"vertices,omitempty"`
}

// Validate checks a DistShape's structural invariants ahead of codec
// conversion.
func (s DistShape) Validate() error {
	switch s.Kind {
	case ShapeKindCircle:
		if s.Center == nil {
			return fmt.Errorf("distmodel: circle shape missing center")
		}
		if s.RadiusM < 0 {
			return fmt.Errorf("distmodel: circle radius must be >= 0, got %f", s.RadiusM)
		}
	case ShapeKindPolygon:
		if len(s.Vertices) < 3 {
			return fmt.Errorf("distmodel: polygon needs >= 3 vertices, got %d", len(s.Vertices))
		}
	default:
		return fmt.Errorf("distmodel: unknown shape kind %q", s.Kind)
	}
	return nil
}

// DistFenceItem is one fence in a distributed fence set: a union of
// shapes, an optional altitude band, and metadata. Nil AltMinM/AltMaxM
// means "unset", matching fence.Fence's band semantics in pkg/distcodec.
type DistFenceItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Shapes      []DistShape `json:"shapes"`
	AltMinM     *float64    `json:"alt_min_m,omitempty"`
	AltMaxM     *float64    `json:"alt_max_m,omitempty"`
	Priority    uint32      `json:"priority"`
	Description string      `json:"description,omitempty"`
}

// Validate checks structural invariants on one fence item.
func (f DistFenceItem) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("distmodel: fence item missing id")
	}
	if len(f.Shapes) == 0 {
		return fmt.Errorf("distmodel: fence item %q has no shapes", f.ID)
	}
	for i, s := range f.Shapes {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("distmodel: fence item %q shape %d: %w", f.ID, i, err)
		}
	}
	if f.AltMinM != nil && f.AltMaxM != nil && *f.AltMinM > *f.AltMaxM {
		return fmt.Errorf("distmodel: fence item %q has alt_min_m > alt_max_m", f.ID)
	}
	return nil
}

// DistFenceSet is a complete, versioned snapshot of every published fence.
type DistFenceSet struct {
	Version   uint64          `json:"version"`
	CreatedTS int64           `json:"created_ts"`
	Items     []DistFenceItem `json:"items"`
}

// Validate checks every item and rejects duplicate IDs.
func (s DistFenceSet) Validate() error {
	seen := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		if err := item.Validate(); err != nil {
			return err
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("distmodel: duplicate fence id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// FenceSetDelta describes changes between two DistFenceSet versions.
type FenceSetDelta struct {
	FromVersion uint64          `json:"from_version"`
	ToVersion   uint64          `json:"to_version"`
	Added       []DistFenceItem `json:"added"`
	Updated     []DistFenceItem `json:"updated"`
	RemovedIDs  []string        `json:"removed_ids"`
}

// Manifest is the signed, small document devices poll: it points at the
// current snapshot/delta and carries integrity hashes, never the fence
// data itself.
type Manifest struct {
	Version      uint64 `json:"version"`
	Timestamp    int64  `json:"timestamp"`
	RootHash     []byte `json:"root_hash"`
	SnapshotURL  string `json:"snapshot_url"`
	SnapshotSize uint64 `json:"snapshot_size"`
	SnapshotHash []byte `json:"snapshot_hash"`
	DeltaURL     string `json:"delta_url,omitempty"`
	DeltaSize    uint64 `json:"delta_size,omitempty"`
	DeltaHash    []byte `json:"delta_hash,omitempty"`
	MinClientV   uint32 `json:"min_client_version"`
	Message      string `json:"message,omitempty"`
	Signature    []byte `json:"signature"`
	KeyID        string `json:"key_id"`
}

// MarshalForSigning returns a copy of the manifest with the Signature
// field cleared; the receiver is not modified.
func (m Manifest) MarshalForSigning() Manifest {
	m.Signature = nil
	return m
}

// Validate checks the manifest's required fields.
func (m Manifest) Validate() error {
	if m.SnapshotURL == "" {
		return fmt.Errorf("distmodel: manifest missing snapshot_url")
	}
	if len(m.RootHash) == 0 {
		return fmt.Errorf("distmodel: manifest missing root_hash")
	}
	if m.Timestamp == 0 {
		return fmt.Errorf("distmodel: manifest missing timestamp")
	}
	return nil
}

// Age reports how long ago the manifest was produced.
func (m Manifest) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.Timestamp, 0))
}
