package filter

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// butterLowpass designs a digital low-pass Butterworth filter of the given
// order with cutoff wn as a fraction of the Nyquist frequency. The analog
// prototype is prewarped and mapped through the bilinear transform; the
// numerator is scaled for unit gain at DC.
func butterLowpass(order int, wn float64) (b, a []float64) {
	const fs = 2.0 // normalised sample rate used by the bilinear transform
	warped := 2 * fs * math.Tan(math.Pi*wn/fs)

	poles := make([]complex128, order)
	for k := 0; k < order; k++ {
		theta := math.Pi * float64(2*k+order+1) / float64(2*order)
		sp := complex(warped, 0) * cmplx.Exp(complex(0, theta))
		poles[k] = (complex(2*fs, 0) + sp) / (complex(2*fs, 0) - sp)
	}
	a = realPoly(poles)

	// All zeros sit at z = -1.
	b = make([]float64, order+1)
	b[0] = 1
	for i := 1; i <= order; i++ {
		b[i] = b[i-1] * float64(order-i+1) / float64(i)
	}
	sumA, sumB := 0.0, 0.0
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	for i := range b {
		b[i] *= sumA / sumB
	}
	return b, a
}

// realPoly expands prod(z - r) and returns the real coefficients, highest
// power first. Roots come in conjugate pairs so the imaginary parts cancel.
func realPoly(roots []complex128) []float64 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// lfilterZI returns the steady-state initial conditions of the transposed
// direct form II filter for a unit step input: (I - Aᵀ) zi = b[1:] - a[1:]·b[0],
// with A the companion matrix of a. a[0] must be 1.
func lfilterZI(b, a []float64) ([]float64, error) {
	n := len(a) - 1
	if n == 0 {
		return nil, nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
		// Aᵀ has -a[1:] in its first column and ones above the diagonal.
		m.Set(i, 0, m.At(i, 0)+a[i+1])
		if i+1 < n {
			m.Set(i, i+1, m.At(i, i+1)-1)
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, b[i+1]-a[i+1]*b[0])
	}
	var zi mat.VecDense
	if err := zi.SolveVec(m, rhs); err != nil {
		return nil, fmt.Errorf("steady-state initial conditions: %w", err)
	}
	return zi.RawVector().Data, nil
}

// lfilter runs the transposed direct form II recursion over x starting from
// state z, which it updates in place.
func lfilter(b, a, x, z []float64) []float64 {
	n := len(a) - 1
	y := make([]float64, len(x))
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for j := 0; j < n-1; j++ {
			z[j] = b[j+1]*xi + z[j+1] - a[j+1]*yi
		}
		if n > 0 {
			z[n-1] = b[n]*xi - a[n]*yi
		}
		y[i] = yi
	}
	return y
}

// filtfilt applies the filter forward and backward for zero phase, after
// extending x at both ends by padLen samples of odd reflection. len(x) must
// exceed padLen.
func filtfilt(b, a, x []float64, padLen int) ([]float64, error) {
	n := len(x)
	ext := make([]float64, 0, n+2*padLen)
	for i := padLen; i >= 1; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-padLen; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	zi, err := lfilterZI(b, a)
	if err != nil {
		return nil, err
	}
	state := make([]float64, len(zi))
	for i, v := range zi {
		state[i] = v * ext[0]
	}
	y := lfilter(b, a, ext, state)

	reverse(y)
	for i, v := range zi {
		state[i] = v * y[0]
	}
	y = lfilter(b, a, y, state)
	reverse(y)
	return y[padLen : padLen+n], nil
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

// butterworth filters each contiguous run of samples longer than the pad
// length. The design order is half the requested order because the forward
// and backward passes double it.
func butterworth(x []float64, p Butterworth, fps float64) ([]float64, error) {
	order := max(1, p.Order/2)
	b, a := butterLowpass(order, p.CutoffHz/(fps/2))
	padLen := 3 * max(len(a), len(b))
	out := append([]float64(nil), x...)
	for _, r := range runs(x) {
		if r.len() <= padLen {
			continue
		}
		y, err := filtfilt(b, a, x[r.start:r.end], padLen)
		if err != nil {
			return nil, err
		}
		copy(out[r.start:r.end], y)
	}
	return out, nil
}
