package kinematics

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// centralDiff returns (next-prev)/(2/fps).
func centralDiff(prev, next r3.Vec, fps float64) r3.Vec {
	return r3.Scale(fps/2, r3.Sub(next, prev))
}

// velocity computes the central difference at frame f from a position
// track. ok is false outside [1, n-2] or when a neighbour is missing.
func velocity(track []r3.Vec, f int, fps float64) (r3.Vec, bool) {
	if f < 1 || f > len(track)-2 {
		return r3.Vec{}, false
	}
	prev, next := track[f-1], track[f+1]
	if !markers.IsValid(prev) || !markers.IsValid(next) {
		return r3.Vec{}, false
	}
	return centralDiff(prev, next, fps), true
}

// acceleration differences the velocities at f-1 and f+1. Every position
// from f-2 to f+2 must be present; ok is false outside [2, n-3].
func acceleration(track []r3.Vec, f int, fps float64) (r3.Vec, bool) {
	if f < 2 || f > len(track)-3 {
		return r3.Vec{}, false
	}
	for i := f - 2; i <= f+2; i++ {
		if !markers.IsValid(track[i]) {
			return r3.Vec{}, false
		}
	}
	vPrev, ok := velocity(track, f-1, fps)
	if !ok {
		return r3.Vec{}, false
	}
	vNext, ok := velocity(track, f+1, fps)
	if !ok {
		return r3.Vec{}, false
	}
	return centralDiff(vPrev, vNext, fps), true
}

// window copies marker's positions for frames lo..hi, clamped to the
// capture. Frames outside the capture are left as zero vectors and never
// read because the domain checks reject them first.
func window(store *markers.Store, marker string, lo, hi int) ([]r3.Vec, int, error) {
	if !store.ColumnExists(marker) {
		return nil, 0, &markers.NotFoundError{Kind: "marker", Name: marker}
	}
	lo = max(lo, 0)
	hi = min(hi, store.NumFrames()-1)
	if hi < lo {
		return nil, lo, nil
	}
	out := make([]r3.Vec, hi-lo+1)
	for i := range out {
		out[i], _ = store.Position(marker, lo+i)
	}
	return out, lo, nil
}

// VelocityAt returns marker's velocity at frame in units per second. ok is
// false for frames outside [1, NumFrames-2] and whenever frame-1 or frame+1
// has a missing component.
func VelocityAt(store *markers.Store, marker string, frame int) (v r3.Vec, ok bool, err error) {
	n := store.NumFrames()
	if frame < 1 || frame > n-2 {
		if !store.ColumnExists(marker) {
			return r3.Vec{}, false, &markers.NotFoundError{Kind: "marker", Name: marker}
		}
		return r3.Vec{}, false, nil
	}
	track, lo, err := window(store, marker, frame-1, frame+1)
	if err != nil {
		return r3.Vec{}, false, err
	}
	v, ok = velocity(track, frame-lo, store.FPS())
	return v, ok, nil
}

// AccelerationAt returns marker's acceleration at frame in units per second
// squared. ok is false for frames outside [2, NumFrames-3] and whenever a
// position from frame-2 to frame+2 has a missing component.
func AccelerationAt(store *markers.Store, marker string, frame int) (a r3.Vec, ok bool, err error) {
	n := store.NumFrames()
	if frame < 2 || frame > n-3 {
		if !store.ColumnExists(marker) {
			return r3.Vec{}, false, &markers.NotFoundError{Kind: "marker", Name: marker}
		}
		return r3.Vec{}, false, nil
	}
	track, lo, err := window(store, marker, frame-2, frame+2)
	if err != nil {
		return r3.Vec{}, false, err
	}
	a, ok = acceleration(track, frame-lo, store.FPS())
	return a, ok, nil
}
