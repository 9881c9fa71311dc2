package repair

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
)

// DefaultEpsilon keeps the inverse-distance weight finite when a reference
// marker sits on the target at the anchor frame.
const DefaultEpsilon = 1e-6

// Repairer fills gaps in a marker's trajectory.
type Repairer struct {
	// Epsilon is added to each anchor distance before inverting it for
	// pattern weights. Zero means DefaultEpsilon.
	Epsilon float64
	// Workers bounds the goroutines predicting pattern frames. Values below
	// 2 predict serially.
	Workers int
}

// NewRepairer returns a Repairer with the default epsilon.
func NewRepairer() *Repairer {
	return &Repairer{Epsilon: DefaultEpsilon, Workers: 1}
}

// Result summarises one repair.
type Result struct {
	Marker string
	Method Method
	Range  markers.Range
	Axes   []markers.Axis
	// Written lists the axes actually rewritten. Axes without a missing
	// sample inside the range are left alone.
	Written []markers.Axis
	// Filled counts frames in the range that had no full XYZ sample before
	// the repair and have one after it.
	Filled int
	// Anchor is the pattern anchor frame, or -1 for classical methods.
	Anchor int
}

func (r Result) String() string {
	s := fmt.Sprintf("%s %s %s: filled %d frames", r.Marker, r.Method, r.Range, r.Filled)
	if r.Anchor >= 0 {
		s += fmt.Sprintf(" (anchor %d)", r.Anchor)
	}
	return s
}

// Interpolate fills marker's gaps over rng with a classical interpolant.
//
// For each axis the samples inside rng are set to missing and the
// interpolant is fitted to every remaining valid sample of the full series,
// so context outside the selection shapes the fill. Frames in rng are then
// evaluated from the fit. Nothing is extrapolated: frames before the first
// remaining sample stay missing, and frames after the last one hold that
// sample for Linear and stay missing for every other method. An axis with no
// missing sample inside rng is left bit-for-bit unchanged.
//
// A range spanning the whole recording clears nothing: every valid sample
// is kept and only the missing ones are filled.
//
// All parameters are validated and every axis is computed before the store
// is written, so an error leaves the store untouched.
func (r *Repairer) Interpolate(store *markers.Store, marker string, axes []markers.Axis, rng markers.Range, p Params) (Result, error) {
	res := Result{Marker: marker, Method: p.Method, Range: rng, Anchor: -1}
	if err := p.Validate(); err != nil {
		return res, err
	}
	if store == nil {
		return res, markers.InvalidParam("store", nil, "nil store")
	}
	if !store.ColumnExists(marker) {
		return res, &markers.NotFoundError{Kind: "marker", Name: marker}
	}
	if len(axes) == 0 {
		axes = markers.Axes
	}
	for _, a := range axes {
		if !a.Valid() {
			return res, &markers.NotFoundError{Kind: "axis", Name: a.String()}
		}
	}
	if err := rng.Validate(store.NumFrames()); err != nil {
		return res, err
	}
	res.Axes = append([]markers.Axis(nil), axes...)

	before := validMask(store, marker, rng)
	fills := make(map[markers.Axis][]float64, len(axes))
	for _, a := range axes {
		col, err := store.Column(marker, a)
		if err != nil {
			return res, err
		}
		values, err := fillAxis(col, rng, p)
		if err != nil {
			var ie *markers.InsufficientDataError
			if errors.As(err, &ie) {
				ie.Marker, ie.Axis = marker, a
			}
			return res, err
		}
		if values != nil {
			fills[a] = values
		}
	}

	for _, a := range axes {
		values, ok := fills[a]
		if !ok {
			continue
		}
		if err := store.SetRange(marker, a, rng, values); err != nil {
			return res, fmt.Errorf("write %s: %w", markers.ColumnName(marker, a), err)
		}
		res.Written = append(res.Written, a)
	}
	res.Filled = countFilled(before, validMask(store, marker, rng))
	monitoring.Debugf("repair: %s", res)
	return res, nil
}

// fillAxis returns the new values for rng, or nil when the range has no
// missing sample.
func fillAxis(col []float64, rng markers.Range, p Params) ([]float64, error) {
	missing := false
	for f := rng.Start; f <= rng.End; f++ {
		if math.IsNaN(col[f]) {
			missing = true
			break
		}
	}
	if !missing {
		return nil, nil
	}

	whole := rng.Start == 0 && rng.End == len(col)-1
	var xs, ys []float64
	for f, v := range col {
		if (!whole && rng.Contains(f)) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xs = append(xs, float64(f))
		ys = append(ys, v)
	}
	if need := p.minSamples(); len(xs) < need {
		return nil, &markers.InsufficientDataError{Need: need, Have: len(xs)}
	}

	pred, err := fit(p, xs, ys)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", p.Method, err)
	}
	lo, hi := xs[0], xs[len(xs)-1]
	out := make([]float64, rng.Len())
	for i := range out {
		f := float64(rng.Start + i)
		if v := col[rng.Start+i]; whole && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
			continue
		}
		switch {
		case f < lo:
			out[i] = math.NaN()
			continue
		case f > hi:
			out[i] = math.NaN()
			if p.Method == Linear {
				out[i] = ys[len(ys)-1]
			}
			continue
		}
		out[i] = pred.Predict(f)
	}
	return out, nil
}

func validMask(store *markers.Store, marker string, rng markers.Range) []bool {
	out := make([]bool, rng.Len())
	for i := range out {
		out[i] = store.HasValue(marker, rng.Start+i)
	}
	return out
}

func countFilled(before, after []bool) int {
	n := 0
	for i := range before {
		if !before[i] && after[i] {
			n++
		}
	}
	return n
}

// Interpolate runs a default Repairer.
func Interpolate(store *markers.Store, marker string, axes []markers.Axis, rng markers.Range, p Params) (Result, error) {
	return NewRepairer().Interpolate(store, marker, axes, rng, p)
}
