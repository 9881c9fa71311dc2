package repair

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// fit builds an interpolant for the method through (xs, ys). xs is strictly
// increasing and holds at least p.minSamples() points.
func fit(p Params, xs, ys []float64) (interp.Predictor, error) {
	switch p.Method {
	case Linear, SLinear, FromDerivatives:
		// Only values are known, so the Bernstein form reduces to the
		// piecewise linear interpolant.
		var pl interp.PiecewiseLinear
		if err := pl.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &pl, nil
	case Nearest:
		return nearest{xs: xs, ys: ys}, nil
	case Zero:
		return previous{xs: xs, ys: ys}, nil
	case Cubic:
		var nc interp.NotAKnotCubic
		if err := nc.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &nc, nil
	case PCHIP:
		var fb interp.FritschButland
		if err := fb.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &fb, nil
	case Akima:
		var as interp.AkimaSpline
		if err := as.Fit(xs, ys); err != nil {
			return nil, err
		}
		return &as, nil
	case Quadratic:
		return newBSpline(xs, ys, 2)
	case Polynomial, Spline:
		return newBSpline(xs, ys, p.Order)
	case Barycentric:
		return newBarycentric(xs, ys), nil
	case Krogh:
		return newNewton(xs, ys), nil
	}
	return nil, fmt.Errorf("no interpolant for method %s", p.Method)
}

// nearest returns the value of the closest knot. Halfway points take the
// lower knot.
type nearest struct {
	xs, ys []float64
}

func (n nearest) Predict(x float64) float64 {
	i := sort.SearchFloat64s(n.xs, x)
	switch {
	case i == 0:
		return n.ys[0]
	case i == len(n.xs):
		return n.ys[len(n.ys)-1]
	case n.xs[i] == x:
		return n.ys[i]
	}
	if x-n.xs[i-1] <= n.xs[i]-x {
		return n.ys[i-1]
	}
	return n.ys[i]
}

// previous holds the last knot value until the next knot.
type previous struct {
	xs, ys []float64
}

func (p previous) Predict(x float64) float64 {
	i := sort.Search(len(p.xs), func(i int) bool { return p.xs[i] > x })
	if i == 0 {
		return p.ys[0]
	}
	return p.ys[i-1]
}
