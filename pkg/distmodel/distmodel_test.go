package distmodel

import (
	"testing"
	"time"
)

func TestDistShape_Validate_Circle(t *testing.T) {
	s := DistShape{Kind: ShapeKindCircle, Center: &DistVertex{LatDeg: 0, LonDeg: 0}, RadiusM: 10}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	missingCenter := DistShape{Kind: ShapeKindCircle, RadiusM: 10}
	if err := missingCenter.Validate(); err == nil {
		t.Error("expected error for circle missing center")
	}

	negativeRadius := DistShape{Kind: ShapeKindCircle, Center: &DistVertex{}, RadiusM: -1}
	if err := negativeRadius.Validate(); err == nil {
		t.Error("expected error for negative radius")
	}
}

func TestDistShape_Validate_Polygon(t *testing.T) {
	tooFew := DistShape{Kind: ShapeKindPolygon, Vertices: []DistVertex{{}, {}}}
	if err := tooFew.Validate(); err == nil {
		t.Error("expected error for polygon with < 3 vertices")
	}

	ok := DistShape{Kind: ShapeKindPolygon, Vertices: []DistVertex{{}, {}, {}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestDistShape_Validate_UnknownKind(t *testing.T) {
	s := DistShape{Kind: "triangle"}
	if err := s.Validate(); err == nil {
		t.Error("expected error for unknown shape kind")
	}
}

func circleItem(id string) DistFenceItem {
	return DistFenceItem{
		ID:   id,
		Name: id,
		Shapes: []DistShape{
			{Kind: ShapeKindCircle, Center: &DistVertex{LatDeg: 0, LonDeg: 0}, RadiusM: 10},
		},
	}
}

func TestDistFenceItem_Validate(t *testing.T) {
	item := circleItem("f1")
	if err := item.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	noID := circleItem("")
	if err := noID.Validate(); err == nil {
		t.Error("expected error for missing id")
	}

	noShapes := DistFenceItem{ID: "f1"}
	if err := noShapes.Validate(); err == nil {
		t.Error("expected error for no shapes")
	}
}

func TestDistFenceItem_Validate_AltitudeBandInverted(t *testing.T) {
	min, max := 100.0, 50.0
	item := circleItem("f1")
	item.AltMinM = &min
	item.AltMaxM = &max
	if err := item.Validate(); err == nil {
		t.Error("expected error when alt_min_m > alt_max_m")
	}
}

func TestDistFenceSet_Validate_RejectsDuplicateIDs(t *testing.T) {
	set := DistFenceSet{Items: []DistFenceItem{circleItem("dup"), circleItem("dup")}}
	if err := set.Validate(); err == nil {
		t.Error("expected error for duplicate fence ids")
	}
}

func TestDistFenceSet_Validate_AcceptsUniqueIDs(t *testing.T) {
	set := DistFenceSet{Items: []DistFenceItem{circleItem("a"), circleItem("b")}}
	if err := set.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestManifest_MarshalForSigning_ClearsSignature(t *testing.T) {
	m := Manifest{Version: 1, Signature: []byte{1, 2, 3}}
	cleared := m.MarshalForSigning()
	if cleared.Signature != nil {
		t.Error("MarshalForSigning should clear the signature")
	}
	if m.Signature == nil {
		t.Error("MarshalForSigning should not mutate the receiver")
	}
}

func TestManifest_Validate(t *testing.T) {
	m := Manifest{SnapshotURL: "https://example.com/s.bin", RootHash: []byte{1}, Timestamp: 1700000000}
	if err := m.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	missingURL := m
	missingURL.SnapshotURL = ""
	if err := missingURL.Validate(); err == nil {
		t.Error("expected error for missing snapshot_url")
	}

	missingHash := m
	missingHash.RootHash = nil
	if err := missingHash.Validate(); err == nil {
		t.Error("expected error for missing root_hash")
	}

	missingTimestamp := m
	missingTimestamp.Timestamp = 0
	if err := missingTimestamp.Validate(); err == nil {
		t.Error("expected error for missing timestamp")
	}
}

func TestManifest_Age(t *testing.T) {
	m := Manifest{Timestamp: 1700000000}
	now := time.Unix(1700000000+3600, 0)
	age := m.Age(now)
	if age != time.Hour {
		t.Errorf("Age() = %v, want 1h", age)
	}
}
