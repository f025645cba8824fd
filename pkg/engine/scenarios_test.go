package engine

import (
	"testing"

	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// squarePolygonFence builds a fence holding a single polygon with corners at
// the given (lat, lon) degree extremes, going counter-clockwise from the
// south-west corner.
func squarePolygonFence(t *testing.T, latMin, latMax, lonMin, lonMax float64) *fence.Fence {
	t.Helper()
	f := fence.New("square")
	if err := f.AddVertex(mustVertex(t, latMin, lonMin), true); err != nil {
		t.Fatalf("AddVertex failed: %v", err)
	}
	if err := f.AddVertex(mustVertex(t, latMin, lonMax), false); err != nil {
		t.Fatalf("AddVertex failed: %v", err)
	}
	if err := f.AddVertex(mustVertex(t, latMax, lonMax), false); err != nil {
		t.Fatalf("AddVertex failed: %v", err)
	}
	if err := f.AddVertex(mustVertex(t, latMax, lonMin), false); err != nil {
		t.Fatalf("AddVertex failed: %v", err)
	}
	return f
}

// A point-radius circle (radius 1 mm) queried at its own center must read
// Inside under both pessimist and optimist, with zero reported uncertainty.
func TestScenario_PointRadiusCircleCenterIsInsideBothReadings(t *testing.T) {
	f := circleFence(t, 0, 0, 0.001) // 1 mm
	pos := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}

	pessimist := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	optimist := Evaluate(f.Snapshot(), false, pos, geodesic.Default)

	if pessimist.State != StateInside {
		t.Errorf("pessimist State = %v, want Inside", pessimist.State)
	}
	if optimist.State != StateInside {
		t.Errorf("optimist State = %v, want Inside", optimist.State)
	}
}

// A query landing exactly on a polygon's corner, reported with a coarse
// uncertainty radius, is the case the spec itself hedges on (either reading
// is acceptable). Check the weaker property instead of a hard state: the
// fence's own center must read Inside, and whenever optimist calls the
// corner query Inside, pessimist must agree (property 7).
func TestScenario_PolygonCornerStraddleRespectsOptimistPessimistOrdering(t *testing.T) {
	f := squarePolygonFence(t, -1, 1, -1, 1)

	center := Position{LatE9: geomath.DegToE9(0), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}
	if result := Evaluate(f.Snapshot(), true, center, geodesic.Default); result.State != StateInside {
		t.Errorf("fence center State = %v, want Inside", result.State)
	}

	corner := Position{
		LatE9:     -999_999_999,
		LonE9:     -999_999_999,
		AltMM:     geomath.AltitudeAbsent,
		RadiusHMM: geomath.MetresToMM(10),
	}
	optimist := Evaluate(f.Snapshot(), false, corner, geodesic.Default)
	pessimist := Evaluate(f.Snapshot(), true, corner, geodesic.Default)
	if optimist.State == StateInside && pessimist.State != StateInside {
		t.Errorf("optimist=Inside but pessimist=%v at the straddled corner", pessimist.State)
	}
}

// A circle whose extent crosses the antimeridian must still report a query
// point just across the discontinuity as Inside — the wrap-safe longitude
// arithmetic must apply regardless of which numeric model is selected.
func TestScenario_AntimeridianCircleWrapsCorrectly(t *testing.T) {
	f := circleFence(t, 0, -179.999999999, 10)
	pos := Position{
		LatE9: geomath.DegToE9(-0.0000001),
		LonE9: geomath.DegToE9(179.999999999),
		AltMM: geomath.AltitudeAbsent,
	}

	result := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
	if result.State != StateInside {
		t.Errorf("State = %v, want Inside", result.State)
	}
}

// A fence with an altitude floor and no vertical uncertainty is a crisp
// boundary: below the floor is Outside, exactly at the floor is Inside for
// both readings. Adding a hair of vertical uncertainty right at the floor
// makes pessimist and optimist diverge — pessimist still calls it Inside
// ("could be inside"), optimist calls it Outside ("not certainly inside").
func TestScenario_AltitudeFloorPessimistOptimistDivergence(t *testing.T) {
	f := circleFence(t, 48.8584, 2.2945, 90)
	if err := f.SetAltitudeMin(geomath.MetresToMM(276)); err != nil {
		t.Fatalf("SetAltitudeMin failed: %v", err)
	}

	ground := Position{LatE9: geomath.DegToE9(48.8584), LonE9: geomath.DegToE9(2.2945), AltMM: 0}
	if result := Evaluate(f.Snapshot(), true, ground, geodesic.Default); result.State != StateOutside {
		t.Errorf("ground level State = %v, want Outside", result.State)
	}

	exact := Position{LatE9: geomath.DegToE9(48.8584), LonE9: geomath.DegToE9(2.2945), AltMM: geomath.MetresToMM(276)}
	if result := Evaluate(f.Snapshot(), true, exact, geodesic.Default); result.State != StateInside {
		t.Errorf("exact floor, pessimist State = %v, want Inside", result.State)
	}
	if result := Evaluate(f.Snapshot(), false, exact, geodesic.Default); result.State != StateInside {
		t.Errorf("exact floor, optimist State = %v, want Inside (zero vertical uncertainty)", result.State)
	}

	withUncertainty := exact
	withUncertainty.RadiusVMM = 1
	if result := Evaluate(f.Snapshot(), true, withUncertainty, geodesic.Default); result.State != StateInside {
		t.Errorf("floor with 1mm vertical uncertainty, pessimist State = %v, want Inside", result.State)
	}
	if result := Evaluate(f.Snapshot(), false, withUncertainty, geodesic.Default); result.State != StateOutside {
		t.Errorf("floor with 1mm vertical uncertainty, optimist State = %v, want Outside", result.State)
	}
}

// A large circle centered on the pole must forbid the flat-earth
// approximation (NearPole always holds there), and a coarse horizontal
// uncertainty comparable to the distance from the boundary produces a
// pessimist/optimist split that itself differs between two latitudes near
// the boundary.
func TestScenario_PoleCircleUncertaintyProducesLatitudeSplit(t *testing.T) {
	f := circleFence(t, 90, 0, 1_100_000) // 1100 km

	near := Position{LatE9: geomath.DegToE9(81), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}
	far := Position{LatE9: geomath.DegToE9(79), LonE9: geomath.DegToE9(0), AltMM: geomath.AltitudeAbsent}

	if result := Evaluate(f.Snapshot(), true, near, geodesic.Default); result.State != StateInside {
		t.Errorf("81N with no uncertainty, State = %v, want Inside", result.State)
	}
	if result := Evaluate(f.Snapshot(), true, far, geodesic.Default); result.State != StateOutside {
		t.Errorf("79N with no uncertainty, State = %v, want Outside", result.State)
	}

	near.RadiusHMM = geomath.MetresToMM(120_000) // 120 km
	far.RadiusHMM = geomath.MetresToMM(120_000)

	nearPessimist := Evaluate(f.Snapshot(), true, near, geodesic.Default)
	farPessimist := Evaluate(f.Snapshot(), true, far, geodesic.Default)
	if nearPessimist.State == farPessimist.State {
		t.Errorf("expected pessimist state to differ between 81N and 79N under 120km uncertainty, both = %v", nearPessimist.State)
	}
	if nearPessimist.State != StateInside {
		t.Errorf("81N pessimist with 120km uncertainty = %v, want Inside", nearPessimist.State)
	}
	if farPessimist.State != StateOutside {
		t.Errorf("79N pessimist with 120km uncertainty = %v, want Outside", farPessimist.State)
	}

	for _, pos := range []Position{near, far} {
		optimist := Evaluate(f.Snapshot(), false, pos, geodesic.Default)
		pessimist := Evaluate(f.Snapshot(), true, pos, geodesic.Default)
		if optimist.State == StateInside && pessimist.State != StateInside {
			t.Errorf("optimist=Inside but pessimist=%v at lat=%d", pessimist.State, pos.LatE9)
		}
	}
}

// A fence's Inside set is the union over all its shapes, not just the first
// one evaluated. Build a 14-vertex comb-shaped polygon (a base rectangle
// with three teeth separated by two notches) plus one circle plugging one of
// the notches, and confirm: points inside the base or a tooth read Inside
// via the polygon, a point in the unplugged notch reads Outside, and the
// point in the plugged notch reads Inside purely because of the circle.
func TestScenario_MultiShapeFenceUnionOverShapes(t *testing.T) {
	f := fence.New("comb")

	// Column coordinates, west to east (degrees).
	x0, x1, x2, x3, x4, x5 := 20.0000, 20.0010, 20.0020, 20.0030, 20.0040, 20.0050
	// Row coordinates: base bottom, base top / notch floor, tooth top.
	yBase0, yBase1, yTooth := 10.0000, 10.0010, 10.0020

	verts := []struct{ lat, lon float64 }{
		{yBase0, x0},
		{yBase0, x5},
		{yBase1, x5},
		{yTooth, x5}, // up into tooth C
		{yTooth, x4},
		{yBase1, x4}, // down into gap2 (to be plugged)
		{yBase1, x3},
		{yTooth, x3}, // up into tooth B
		{yTooth, x2},
		{yBase1, x2}, // down into gap1 (left unplugged)
		{yBase1, x1},
		{yTooth, x1}, // up into tooth A
		{yTooth, x0},
		{yBase1, x0},
	}
	for i, v := range verts {
		if err := f.AddVertex(mustVertex(t, v.lat, v.lon), i == 0); err != nil {
			t.Fatalf("AddVertex(%d) failed: %v", i, err)
		}
	}
	if err := f.AddCircle(mustVertex(t, 10.0015, 20.0035), geomath.MetresToMM(40)); err != nil {
		t.Fatalf("AddCircle failed: %v", err)
	}

	inBase := Position{LatE9: geomath.DegToE9(10.0005), LonE9: geomath.DegToE9(20.0030), AltMM: geomath.AltitudeAbsent}
	inToothA := Position{LatE9: geomath.DegToE9(10.0015), LonE9: geomath.DegToE9(20.0005), AltMM: geomath.AltitudeAbsent}
	inUnpluggedGap := Position{LatE9: geomath.DegToE9(10.0015), LonE9: geomath.DegToE9(20.0015), AltMM: geomath.AltitudeAbsent}
	inPluggedGap := Position{LatE9: geomath.DegToE9(10.0015), LonE9: geomath.DegToE9(20.0035), AltMM: geomath.AltitudeAbsent}

	if result := Evaluate(f.Snapshot(), true, inBase, geodesic.Default); result.State != StateInside {
		t.Errorf("point in base rectangle State = %v, want Inside", result.State)
	}
	if result := Evaluate(f.Snapshot(), true, inToothA, geodesic.Default); result.State != StateInside {
		t.Errorf("point in tooth A State = %v, want Inside", result.State)
	}
	if result := Evaluate(f.Snapshot(), true, inUnpluggedGap, geodesic.Default); result.State != StateOutside {
		t.Errorf("point in unplugged notch State = %v, want Outside", result.State)
	}
	if result := Evaluate(f.Snapshot(), true, inPluggedGap, geodesic.Default); result.State != StateInside {
		t.Errorf("point in circle-plugged notch State = %v, want Inside (union over shapes)", result.State)
	}
}
