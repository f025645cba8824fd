// Package geofenceapi is the public surface consumed by collaborators:
// fence_create/add_circle/add_vertex/set_altitude_*
// /clear/free/test, context_set_callback/attach/detach/evaluate, and a
// global cleanup. Every exported function acquires the single process-wide
// mutex before touching any Fence or Context — callbacks
// run synchronously on the evaluating goroutine with that mutex held, so a
// callback MUST NOT call back into this package.
package geofenceapi

import (
	"sync"
	"time"

	"github.com/iannil/geofence-engine/pkg/devctx"
	"github.com/iannil/geofence-engine/pkg/engine"
	"github.com/iannil/geofence-engine/pkg/fence"
	"github.com/iannil/geofence-engine/pkg/geodesic"
	"github.com/iannil/geofence-engine/pkg/shape"
)

var (
	mu sync.Mutex

	liveFences   = make(map[*fence.Fence]struct{})
	liveContexts = make(map[*devctx.Context]struct{})
)

// FenceCreate allocates a new, empty, named Fence.
func FenceCreate(name string) *fence.Fence {
	mu.Lock()
	defer mu.Unlock()
	f := fence.New(name)
	liveFences[f] = struct{}{}
	return f
}

// FenceAddCircle appends a Circle shape to f.
func FenceAddCircle(f *fence.Fence, center shape.Vertex, radiusMM int64) error {
	mu.Lock()
	defer mu.Unlock()
	return f.AddCircle(center, radiusMM)
}

// FenceAddVertex appends a vertex to f's current polygon, starting a new
// one if newPolygon is set or the previously added shape was a circle.
func FenceAddVertex(f *fence.Fence, v shape.Vertex, newPolygon bool) error {
	mu.Lock()
	defer mu.Unlock()
	return f.AddVertex(v, newPolygon)
}

// FenceSetAltitudeMin sets f's minimum altitude band in millimetres;
// geomath.AltitudeUnset clears it.
func FenceSetAltitudeMin(f *fence.Fence, mm int64) error {
	mu.Lock()
	defer mu.Unlock()
	return f.SetAltitudeMin(mm)
}

// FenceSetAltitudeMax sets f's maximum altitude band in millimetres;
// geomath.AltitudeUnset clears it.
func FenceSetAltitudeMax(f *fence.Fence, mm int64) error {
	mu.Lock()
	defer mu.Unlock()
	return f.SetAltitudeMax(mm)
}

// FenceClear drops all shapes and altitude limits from f.
func FenceClear(f *fence.Fence) error {
	mu.Lock()
	defer mu.Unlock()
	return f.Clear()
}

// FenceFree releases f. Fails Busy if f is still attached to any Context.
func FenceFree(f *fence.Fence) error {
	mu.Lock()
	defer mu.Unlock()
	if err := f.Free(); err != nil {
		return err
	}
	delete(liveFences, f)
	return nil
}

// FenceTest runs a one-off evaluation of pos against f, outside of any
// Context, and reduces the result to a single bool: true if f classifies
// pos as Inside (testType == devctx.TestOutside flips the sense to
// Outside). There is no prior state for a one-off test, so
// devctx.TestTransit and devctx.TestNone both fall back to "Inside".
// provider supplies geodesic operations; pass geodesic.Default if none is
// installed.
func FenceTest(f *fence.Fence, testType devctx.TestType, pessimist bool, pos engine.Position, provider geodesic.Provider) bool {
	mu.Lock()
	defer mu.Unlock()
	result := engine.Evaluate(f.Snapshot(), pessimist, pos, provider)
	if testType == devctx.TestOutside {
		return result.State == engine.StateOutside
	}
	return result.State == engine.StateInside
}

// ContextCreate allocates a Context bound to the given opaque device
// handle.
func ContextCreate(handle interface{}) *devctx.Context {
	mu.Lock()
	defer mu.Unlock()
	c := devctx.New(handle)
	liveContexts[c] = struct{}{}
	return c
}

// ContextSetCallback replaces c's callback configuration.
// devctx.TestNone clears it.
func ContextSetCallback(c *devctx.Context, testType devctx.TestType, pessimist bool, cb devctx.Callback, userData interface{}) {
	mu.Lock()
	defer mu.Unlock()
	c.SetCallback(testType, pessimist, cb, userData)
}

// ContextAttach attaches f to c, retaining it and resetting its
// (context, fence) state to None.
func ContextAttach(c *devctx.Context, f *fence.Fence) {
	mu.Lock()
	defer mu.Unlock()
	c.Attach(f)
}

// ContextDetach detaches f from c and releases it. Returns
// fenceerr.KindNotFound if f was not attached to c.
func ContextDetach(c *devctx.Context, f *fence.Fence) error {
	mu.Lock()
	defer mu.Unlock()
	return c.Detach(f)
}

// ContextDetachAll detaches and releases every fence attached to c.
func ContextDetachAll(c *devctx.Context) {
	mu.Lock()
	defer mu.Unlock()
	c.DetachAll()
}

// ContextFree detaches every fence from c and releases c itself.
func ContextFree(c *devctx.Context) {
	mu.Lock()
	defer mu.Unlock()
	c.DetachAll()
	delete(liveContexts, c)
}

// ContextEvaluate evaluates pos against every fence attached to c,
// invoking c's configured callback synchronously under the process-wide
// mutex. now is the sample time, used by the speed-sanity check; provider
// supplies geodesic operations, pass geodesic.Default if none is
// installed.
func ContextEvaluate(c *devctx.Context, pos engine.Position, now time.Time, provider geodesic.Provider) {
	mu.Lock()
	defer mu.Unlock()
	c.Evaluate(pos, now, provider)
}

// Cleanup releases bookkeeping held by this package if no fences or
// contexts remain live. Go's mutex needs no explicit teardown, so this
// reinitialises the liveness registries — the consequential part for a
// garbage-collected runtime is dropping the last references so
// unreferenced Fences/Contexts can be collected.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if len(liveFences) == 0 && len(liveContexts) == 0 {
		liveFences = make(map[*fence.Fence]struct{})
		liveContexts = make(map[*devctx.Context]struct{})
	}
}
