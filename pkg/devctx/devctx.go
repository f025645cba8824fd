// Package devctx implements the Context & dispatch layer: a per-device
// container of attached fences, each tracking its own (context, fence)
// position-state machine, plus synchronous callback dispatch and the
// horizontal-speed sanity check.
//
// Context is not safe for concurrent use on its own — a single process-
// wide mutex is expected to guard all mutation and evaluation, which
// pkg/geofenceapi provides. Context assumes that external serialisation.
package devctx

import (
	"time"

	"github.com/iannil/geofence-engine/pkg/engine"
	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/fenceerr"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/geomath"
)

// TestType selects which state transitions invoke the configured callback.
type TestType int

const (
	// TestNone disables the callback entirely.
	TestNone TestType = iota
	// TestInside invokes the callback whenever a fence evaluates to Inside.
	TestInside
	// TestOutside invokes the callback whenever a fence evaluates to Outside.
	TestOutside
	// TestTransit invokes the callback only when a fence's state changes
	// between two non-None values.
	TestTransit
)

// Event is delivered to a Callback once per (fence, evaluated position).
type Event struct {
	Handle     interface{}
	Fence      *fence.Fence
	Name       string
	State      engine.PositionState
	Position   engine.Position
	DistanceMM int64
	Transit    bool
	Suspect    bool
}

// Callback is invoked synchronously, on the evaluating goroutine, with the
// caller's mutex (pkg/geofenceapi's process-wide lock) still held. It MUST
// NOT re-enter the public API and SHOULD NOT block.
type Callback func(ev Event, userData interface{})

type attachment struct {
	f         *fence.Fence
	lastState engine.PositionState
}

// Context is a list-like container of {fence, last_state} pairs plus
// callback configuration, bound to one opaque device handle.
type Context struct {
	handle interface{}

	fences []attachment

	testType  TestType
	pessimist bool
	callback  Callback
	userData  interface{}

	maxHorizontalSpeedMMPerS int64

	haveLastPosition bool
	lastPosition     engine.Position
	lastPositionTime time.Time
}

// New creates a Context bound to the given opaque device handle, delivered
// back to the caller unchanged in every Event.
func New(handle interface{}) *Context {
	return &Context{handle: handle, maxHorizontalSpeedMMPerS: geomath.HorizontalSpeedMMPerSMax}
}

// SetMaxHorizontalSpeed overrides the default sanity ceiling
// (geomath.HorizontalSpeedMMPerSMax) used by the speed-sanity check.
func (c *Context) SetMaxHorizontalSpeed(mmPerS int64) {
	c.maxHorizontalSpeedMMPerS = mmPerS
}

// SetCallback replaces any prior callback. TestNone clears it.
func (c *Context) SetCallback(testType TestType, pessimist bool, cb Callback, userData interface{}) {
	c.testType = testType
	c.pessimist = pessimist
	c.callback = cb
	c.userData = userData
	if testType == TestNone {
		c.callback = nil
	}
}

// Attach appends f to the context, retains it, and resets its (context,
// fence) state to None.
func (c *Context) Attach(f *fence.Fence) {
	f.Retain()
	c.fences = append(c.fences, attachment{f: f, lastState: engine.StateNone})
}

// Detach removes f from the context and releases it. Returns
// fenceerr.KindNotFound if f was not attached.
func (c *Context) Detach(f *fence.Fence) error {
	for i, att := range c.fences {
		if att.f == f {
			c.fences = append(c.fences[:i], c.fences[i+1:]...)
			f.Release()
			return nil
		}
	}
	return fenceerr.New(fenceerr.KindNotFound, "Detach", "fence is not attached to this context")
}

// DetachAll removes and releases every attached fence.
func (c *Context) DetachAll() {
	for _, att := range c.fences {
		att.f.Release()
	}
	c.fences = nil
}

// Fences returns the currently attached fences, in attachment order.
func (c *Context) Fences() []*fence.Fence {
	out := make([]*fence.Fence, len(c.fences))
	for i, att := range c.fences {
		out[i] = att.f
	}
	return out
}

// Evaluate runs the evaluation algorithm for every attached fence against
// pos, updates each fence's (context, fence) last_state, derives transit,
// computes the speed-sanity flag, and invokes the configured callback
// according to TestType. provider supplies geodesic
// operations for shapes whose extent requires them; pass geodesic.Default
// if none is installed.
func (c *Context) Evaluate(pos engine.Position, now time.Time, provider geodesic.Provider) {
	suspect := c.speedSuspect(pos, now)
	c.haveLastPosition = true
	c.lastPosition = pos
	c.lastPositionTime = now

	for i := range c.fences {
		att := &c.fences[i]
		snap := att.f.Snapshot()
		result := engine.Evaluate(snap, c.pessimist, pos, provider)

		prior := att.lastState
		transit := prior != engine.StateNone && result.State != engine.StateNone && prior != result.State
		att.lastState = result.State

		if c.callback == nil {
			continue
		}

		fire := false
		switch c.testType {
		case TestInside:
			fire = result.State == engine.StateInside
		case TestOutside:
			fire = result.State == engine.StateOutside
		case TestTransit:
			fire = transit
		}
		if !fire {
			continue
		}

		c.callback(Event{
			Handle:     c.handle,
			Fence:      att.f,
			Name:       att.f.Name(),
			State:      result.State,
			Position:   pos,
			DistanceMM: result.DistanceMM,
			Transit:    transit,
			Suspect:    suspect,
		}, c.userData)
	}
}

// speedSuspect flags a position as suspect if a prior position exists
// and the great-circle distance divided by elapsed time exceeds
// maxHorizontalSpeedMMPerS, the new position is flagged suspect but still
// evaluated — the core never suppresses the callback on this basis.
func (c *Context) speedSuspect(pos engine.Position, now time.Time) bool {
	if !c.haveLastPosition {
		return false
	}
	elapsed := now.Sub(c.lastPositionTime).Seconds()
	if elapsed <= 0 {
		return false
	}
	distMM, err := geomath.HaversineMM(c.lastPosition.LatE9, c.lastPosition.LonE9, pos.LatE9, pos.LonE9)
	if err != nil {
		return false
	}
	speed := float64(distMM) / elapsed
	return speed > float64(c.maxHorizontalSpeedMMPerS)
}
