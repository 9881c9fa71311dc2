package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// worldAxes are the unit vectors used for segment orientation.
var worldAxes = [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}

// Angle returns the angle at vertex between the rays to p1 and p2, in
// degrees. It is NaN when any point has a missing component or either ray
// has zero length.
func Angle(p1, vertex, p2 r3.Vec) float64 {
	if !markers.IsValid(p1) || !markers.IsValid(vertex) || !markers.IsValid(p2) {
		return math.NaN()
	}
	u := r3.Sub(p1, vertex)
	v := r3.Sub(p2, vertex)
	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu == 0 || nv == 0 {
		return math.NaN()
	}
	c := r3.Dot(u, v) / (nu * nv)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi
}

// Length returns |b-a|, or NaN when either point has a missing component.
func Length(a, b r3.Vec) float64 {
	if !markers.IsValid(a) || !markers.IsValid(b) {
		return math.NaN()
	}
	return r3.Norm(r3.Sub(b, a))
}

// AxisAngles returns the angle between the segment a->b and each world
// axis, measured at a against the point one unit along the axis from a.
func AxisAngles(a, b r3.Vec) [3]float64 {
	var out [3]float64
	for i, e := range worldAxes {
		out[i] = Angle(b, a, r3.Add(a, e))
	}
	return out
}

// SegmentLength returns the distance between markers a and b at frame.
func SegmentLength(store *markers.Store, a, b string, frame int) (float64, error) {
	pa, pb, err := pair(store, a, b, frame)
	if err != nil {
		return math.NaN(), err
	}
	return Length(pa, pb), nil
}

// SegmentAxisAngles returns the orientation of segment a->b at frame as
// angles to the X, Y and Z axes in degrees.
func SegmentAxisAngles(store *markers.Store, a, b string, frame int) ([3]float64, error) {
	pa, pb, err := pair(store, a, b, frame)
	if err != nil {
		nan := math.NaN()
		return [3]float64{nan, nan, nan}, err
	}
	return AxisAngles(pa, pb), nil
}

// JointAngle returns the angle at b formed by markers a, b and c at frame.
func JointAngle(store *markers.Store, a, b, c string, frame int) (float64, error) {
	pa, pb, err := pair(store, a, b, frame)
	if err != nil {
		return math.NaN(), err
	}
	pc, err := store.Position(c, frame)
	if err != nil {
		return math.NaN(), err
	}
	return Angle(pa, pb, pc), nil
}

func pair(store *markers.Store, a, b string, frame int) (r3.Vec, r3.Vec, error) {
	pa, err := store.Position(a, frame)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	pb, err := store.Position(b, frame)
	if err != nil {
		return r3.Vec{}, r3.Vec{}, err
	}
	return pa, pb, nil
}
