package engine

import (
	"testing"

	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/shape"
)

func mustVertex(t *testing.T, lat, lon float64) shape.Vertex {
	t.Helper()
	v, err := shape.NewVertex(geomath.DegToE9(lat), geomath.DegToE9(lon))
	if err != nil {
		t.Fatalf("NewVertex failed: %v", err)
	}
	return v
}

func circleFence(t *testing.T, lat, lon float64, radiusM float64) *fence.Fence {
	t.Helper()
	f := fence.New("circle")
	if err := f.AddCircle(mustVertex(t, lat, lon), geomath.MetresToMM(radiusM)); err != nil {
		t.Fatalf("AddCircle failed: %v", err)
	}
	return f
}

func TestEvaluate_EmptyFenceIsNone(t *testing.T) {
	f := fence.New("empty")
	pos := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateNone {
		t.Errorf("State = %v, want None", result.State)
	}
}

func TestEvaluate_CenterIsInside(t *testing.T) {
	f := circleFence(t, 39.9042, 116.4074, 500)
	pos := Position{LatE9: geomath.DegToE9(39.9042), LonE9: geomath.DegToE9(116.4074), AltMM: geomath.AltitudeAbsent}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateInside {
		t.Errorf("State = %v, want Inside", result.State)
	}
}

func TestEvaluate_FarPositionIsOutside(t *testing.T) {
	f := circleFence(t, 0, 0, 100)
	pos := Position{LatE9: geomath.DegToE9(10), LonE9: geomath.DegToE9(10), AltMM: geomath.AltitudeAbsent}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateOutside {
		t.Errorf("State = %v, want Outside", result.State)
	}
}

// TestEvaluate_OptimistIsSubsetOfPessimist exercises property 7: any point
// the optimist reading calls Inside must also be Inside under pessimist,
// for the same uncertainty radius.
func TestEvaluate_OptimistIsSubsetOfPessimist(t *testing.T) {
	f := circleFence(t, 0, 0, 1000)
	pos := Position{
		LatE9:     geomath.DegToE9(0),
		LonE9:     geomath.DegToE9(0.009), // near the 1000m boundary
		AltMM:     geomath.AltitudeAbsent,
		RadiusHMM: geomath.MetresToMM(200),
	}

	optimist := Evaluate(f.Snapshot(), false, pos, geodesic.Default)
	pessimist := Evaluate(f.Snapshot(), true, pos, geodesic.Default)

	if optimist.State == StateInside && pessimist.State != StateInside {
		t.Errorf("optimist=Inside but pessimist=%v; pessimist must agree whenever optimist does", pessimist.State)
	}
}

func TestEvaluate_AltitudeBandDefinitelyBelow(t *testing.T) {
	f := circleFence(t, 0, 0, 1000)
	if err := f.SetAltitudeMin(geomath.MetresToMM(100)); err != nil {
		t.Fatalf("SetAltitudeMin failed: %v", err)
	}

	pos := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.MetresToMM(10)}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateOutside {
		t.Errorf("State = %v, want Outside (below altitude band)", result.State)
	}
}

func TestEvaluate_AltitudeBandConfiguredButAbsent(t *testing.T) {
	f := circleFence(t, 0, 0, 1000)
	if err := f.SetAltitudeMin(geomath.MetresToMM(100)); err != nil {
		t.Fatalf("SetAltitudeMin failed: %v", err)
	}

	pos := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateNone {
		t.Errorf("State = %v, want None when altitude is required but absent", result.State)
	}
}

func TestEvaluate_WithinAltitudeBand(t *testing.T) {
	f := circleFence(t, 0, 0, 1000)
	f.SetAltitudeMin(geomath.MetresToMM(50))
	f.SetAltitudeMax(geomath.MetresToMM(150))

	pos := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.MetresToMM(100)}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateInside {
		t.Errorf("State = %v, want Inside", result.State)
	}
}

func TestEvaluate_FastRejectionYieldsOutside(t *testing.T) {
	f := circleFence(t, 0, 0, 10)
	pos := Position{LatE9: geomath.DegToE9(45), LonE9: geomath.DegToE9(45), AltMM: geomath.AltitudeAbsent}
	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateOutside {
		t.Errorf("State = %v, want Outside", result.State)
	}
	if result.DistanceMM != geomath.DistanceNotComputed {
		t.Errorf("DistanceMM = %d, want DistanceNotComputed for a fast-rejected shape", result.DistanceMM)
	}
}

func TestPositionState_String(t *testing.T) {
	tests := []struct {
		state PositionState
		want  string
	}{
		{StateNone, "None"},
		{StateInside, "Inside"},
		{StateOutside, "Outside"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
