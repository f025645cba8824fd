// Package engine implements the per-fence position evaluation algorithm:
// altitude gate, fast rejection, the pessimist/optimist full test, and the
// numeric fallback to PositionState_None.
//
// Evaluate is deliberately test-type-agnostic: PositionState depends only
// on the pessimist flag and the position, never on whether the caller
// configured an Inside/Outside/Transit callback (see DESIGN.md — test type
// only selects when pkg/devctx fires its callback, it does not change what
// state is computed).
package engine

import (
	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
	"github.com/iannil/geofence-engine/pkg/shape"
)

// PositionState is the three-valued classification of a position against a
// fence.
type PositionState int

const (
	StateNone PositionState = iota
	StateInside
	StateOutside
)

func (s PositionState) String() string {
	switch s {
	case StateInside:
		return "Inside"
	case StateOutside:
		return "Outside"
	default:
		return "None"
	}
}

// Position is a single evaluated sample. AltMM uses geomath.AltitudeAbsent
// for "no altitude in this report". RadiusHMM/RadiusVMM use
// geomath.RadiusUnknown (-1) for "uncertainty unknown".
type Position struct {
	LatE9, LonE9 int64
	AltMM        int64
	RadiusHMM    int64
	RadiusVMM    int64
}

// Result is the outcome of evaluating one Position against one fence.
type Result struct {
	State PositionState

	// DistanceMM is the signed distance from the position to the nearest
	// surviving shape's boundary (negative means inside), or
	// geomath.DistanceNotComputed if no shape was evaluated (all
	// discarded by fast rejection, or the altitude gate short-circuited).
	DistanceMM int64
}

// Evaluate runs the position-evaluation algorithm for a single fence
// snapshot and position. It never returns an error: any internal numeric
// failure collapses the result to StateNone.
func Evaluate(snap fence.Snapshot, pessimist bool, pos Position, provider geodesic.Provider) Result {
	if !snap.Valid() {
		return Result{State: StateNone, DistanceMM: geomath.DistanceNotComputed}
	}

	altInside, shortCircuitOutside, altApplicable := altitudeGate(snap, pessimist, pos)
	if !altApplicable {
		return Result{State: StateNone, DistanceMM: geomath.DistanceNotComputed}
	}
	if shortCircuitOutside {
		return Result{State: StateOutside, DistanceMM: geomath.DistanceNotComputed}
	}

	rq := pos.RadiusHMM
	if rq < 0 {
		rq = 0
	}

	marginMM := geomath.MetresToMM(geomath.SquareExtentUncertaintyMarginMetres)

	fenceInside := false
	distanceMM := int64(geomath.DistanceNotComputed)
	survived := false

	for _, shp := range snap.Shapes {
		ext := shp.Extent()
		if pos.RadiusHMM < marginMM {
			if ext.OutsideWithMargin(pos.LatE9, pos.LonE9, marginMM) {
				continue // discarded by fast rejection
			}
		}
		survived = true

		d, err := shp.SignedDistanceMM(shape.Vertex{LatE9: pos.LatE9, LonE9: pos.LonE9}, rq, provider)
		if err != nil {
			return Result{State: StateNone, DistanceMM: geomath.DistanceNotComputed}
		}

		if distanceMM == geomath.DistanceNotComputed || abs64(d) < abs64(distanceMM) {
			distanceMM = d
		}

		var shapeInside bool
		if pessimist {
			shapeInside = d-rq <= 0 // Inside-pessimist
		} else {
			shapeInside = d+rq <= 0 // Inside-optimist
		}

		if shapeInside && altInside {
			fenceInside = true
		}
	}

	if !survived {
		return Result{State: StateOutside, DistanceMM: geomath.DistanceNotComputed}
	}
	if fenceInside {
		return Result{State: StateInside, DistanceMM: distanceMM}
	}
	return Result{State: StateOutside, DistanceMM: distanceMM}
}

// altitudeGate checks the position against the fence's altitude band,
// ahead of the horizontal test. It returns:
//   - altInside: whether the altitude component counts as "inside" under
//     the selected (pessimist/optimist) reading; meaningless if !applicable
//     or shortCircuitOutside.
//   - shortCircuitOutside: the position is definitely outside the altitude
//     band even accounting for vertical uncertainty — the caller should
//     skip the horizontal test and return Outside directly.
//   - applicable: false means the fence has an altitude band but the
//     position carries no altitude — evaluation must return None entirely.
func altitudeGate(snap fence.Snapshot, pessimist bool, pos Position) (altInside, shortCircuitOutside, applicable bool) {
	configured := snap.AltMinMM != geomath.AltitudeUnset || snap.AltMaxMM != geomath.AltitudeUnset
	if !configured {
		return true, false, true
	}
	if pos.AltMM == geomath.AltitudeAbsent {
		return false, false, false
	}

	rv := pos.RadiusVMM
	if rv < 0 {
		rv = 0
	}

	belowDefinitely := snap.AltMinMM != geomath.AltitudeUnset && pos.AltMM+rv < snap.AltMinMM
	aboveDefinitely := snap.AltMaxMM != geomath.AltitudeUnset && pos.AltMM-rv > snap.AltMaxMM
	// altInsidePessimist: the uncertainty band could overlap the altitude
	// band at all — the "maybe inside" reading used by pessimist.
	altInsidePessimist := !(belowDefinitely || aboveDefinitely)
	if !altInsidePessimist {
		return false, true, true
	}

	belowCertain := snap.AltMinMM == geomath.AltitudeUnset || pos.AltMM-rv >= snap.AltMinMM
	aboveCertain := snap.AltMaxMM == geomath.AltitudeUnset || pos.AltMM+rv <= snap.AltMaxMM
	// altInsideOptimist: the whole uncertainty band is certainly within
	// the altitude band — the "certainly inside" reading used by optimist.
	altInsideOptimist := belowCertain && aboveCertain

	if pessimist {
		return altInsidePessimist, false, true
	}
	return altInsideOptimist, false, true
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
