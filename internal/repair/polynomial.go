package repair

import "math"

// barycentric evaluates the polynomial through every knot using the second
// barycentric form. Knot distances are scaled by the span so the weights stay
// representable for a few hundred knots.
type barycentric struct {
	xs, ys, w []float64
}

func newBarycentric(xs, ys []float64) *barycentric {
	n := len(xs)
	span := xs[n-1] - xs[0]
	scale := 1.0
	if span > 0 {
		scale = 4 / span
	}
	w := make([]float64, n)
	for j := range xs {
		prod := 1.0
		for k := range xs {
			if k != j {
				prod *= (xs[j] - xs[k]) * scale
			}
		}
		w[j] = 1 / prod
	}
	return &barycentric{xs: xs, ys: ys, w: w}
}

func (b *barycentric) Predict(x float64) float64 {
	var num, den float64
	for j, xj := range b.xs {
		d := x - xj
		if d == 0 {
			return b.ys[j]
		}
		t := b.w[j] / d
		num += t * b.ys[j]
		den += t
	}
	if den == 0 || math.IsInf(den, 0) {
		return math.NaN()
	}
	return num / den
}

// newton is the Newton divided-difference form of the interpolating
// polynomial, the value-only case of Krogh's scheme.
type newton struct {
	xs, coef []float64
}

func newNewton(xs, ys []float64) *newton {
	n := len(xs)
	coef := append([]float64(nil), ys...)
	for j := 1; j < n; j++ {
		for i := n - 1; i >= j; i-- {
			coef[i] = (coef[i] - coef[i-1]) / (xs[i] - xs[i-j])
		}
	}
	return &newton{xs: xs, coef: coef}
}

func (p *newton) Predict(x float64) float64 {
	n := len(p.coef)
	v := p.coef[n-1]
	for i := n - 2; i >= 0; i-- {
		v = v*(x-p.xs[i]) + p.coef[i]
	}
	return v
}
