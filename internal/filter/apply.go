package filter

import (
	"fmt"
	"math"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
)

// span is a half-open run [start, end) of finite samples.
type span struct{ start, end int }

func (s span) len() int { return s.end - s.start }

// runs splits x into maximal runs of finite samples.
func runs(x []float64) []span {
	var out []span
	start := -1
	for i, v := range x {
		ok := !math.IsNaN(v) && !math.IsInf(v, 0)
		switch {
		case ok && start < 0:
			start = i
		case !ok && start >= 0:
			out = append(out, span{start, i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(x)})
	}
	return out
}

// Apply validates spec against fps and returns a filtered copy of series.
// Missing samples stay missing and split the series into runs that are
// filtered independently. The input is never modified.
func Apply(series []float64, spec Spec, fps float64) ([]float64, error) {
	if err := spec.Validate(fps); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindButterworth:
		return butterworth(series, spec.Butterworth, fps)
	case KindKalman:
		return kalman(series, spec.Kalman, fps)
	case KindGaussian:
		return gaussian(series, spec.Gaussian), nil
	case KindLOESS:
		return loess(series, spec.LOESS), nil
	case KindMedian:
		return median(series, spec.Median), nil
	}
	return nil, markers.InvalidParam("filter", spec.Kind, "unknown filter kind")
}

// Result summarises one filter pass over a store.
type Result struct {
	Marker string
	Spec   Spec
	Range  markers.Range
	// Changed counts samples whose value differs after filtering.
	Changed int
}

func (r Result) String() string {
	return fmt.Sprintf("%s %s %s: changed %d samples", r.Marker, r.Spec.Kind, r.Range, r.Changed)
}

// ApplyToStore filters marker's X, Y and Z over rng. Pass markers.Whole to
// filter the full series. Every axis is filtered before any is written, so a
// failure leaves the store unchanged.
func ApplyToStore(store *markers.Store, marker string, rng markers.Range, spec Spec) (Result, error) {
	res := Result{Marker: marker, Spec: spec, Range: rng}
	if err := spec.Validate(store.FPS()); err != nil {
		return res, err
	}
	if !store.ColumnExists(marker) {
		return res, &markers.NotFoundError{Kind: "marker", Name: marker}
	}
	if err := rng.Validate(store.NumFrames()); err != nil {
		return res, err
	}

	var filtered [3][]float64
	for _, a := range markers.Axes {
		col, err := store.Column(marker, a)
		if err != nil {
			return res, err
		}
		in := col[rng.Start : rng.End+1]
		out, err := Apply(in, spec, store.FPS())
		if err != nil {
			return res, fmt.Errorf("filter %s axis %s: %w", marker, a, err)
		}
		for i := range in {
			if math.Float64bits(in[i]) != math.Float64bits(out[i]) {
				res.Changed++
			}
		}
		filtered[a] = out
	}
	for _, a := range markers.Axes {
		if err := store.SetRange(marker, a, rng, filtered[a]); err != nil {
			return res, err
		}
	}
	monitoring.Debugf("filter: %s", res)
	return res, nil
}
