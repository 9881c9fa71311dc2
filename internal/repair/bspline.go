package repair

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// bspline is an interpolating B-spline of degree k.
type bspline struct {
	t []float64 // knots, len(c)+k+1
	c []float64 // coefficients
	k int
}

// newBSpline fits a degree-k spline through every (xs[i], ys[i]). Odd
// degrees place interior knots on the data points, skipping (k-1)/2 at each
// end (not-a-knot). Even degrees place them at midpoints between data points,
// skipping k/2 at each end.
func newBSpline(xs, ys []float64, k int) (*bspline, error) {
	n := len(xs)
	if n < k+1 {
		return nil, errors.New("bspline: too few points for degree")
	}

	t := make([]float64, 0, n+k+1)
	for i := 0; i <= k; i++ {
		t = append(t, xs[0])
	}
	if k%2 == 1 {
		m := (k - 1) / 2
		t = append(t, xs[m+1:n-m-1]...)
	} else {
		skip := k / 2
		for i := skip; i < n-1-skip; i++ {
			t = append(t, (xs[i]+xs[i+1])/2)
		}
	}
	for i := 0; i <= k; i++ {
		t = append(t, xs[n-1])
	}

	s := &bspline{t: t, k: k}
	w := k + 1
	band := mat.NewBandDense(n, n, w, w, nil)
	for i, x := range xs {
		l := s.interval(x, n)
		basis := s.basis(l, x)
		for r, v := range basis {
			j := l - k + r
			if j-i > w || i-j > w {
				if v != 0 {
					return nil, errors.New("bspline: collocation outside band")
				}
				continue
			}
			band.SetBand(i, j, v)
		}
	}
	c, err := solveCollocation(band, ys)
	if err != nil {
		return nil, err
	}
	s.c = c
	return s, nil
}

// interval returns l with t[l] <= x < t[l+1], clamped to [k, n-1].
func (s *bspline) interval(x float64, n int) int {
	l := sort.Search(len(s.t), func(i int) bool { return s.t[i] > x }) - 1
	if l < s.k {
		l = s.k
	}
	if l > n-1 {
		l = n - 1
	}
	return l
}

// basis evaluates the k+1 basis functions that are non-zero on interval l.
// The r-th entry belongs to coefficient l-k+r.
func (s *bspline) basis(l int, x float64) []float64 {
	k := s.k
	bv := make([]float64, k+1)
	left := make([]float64, k+1)
	right := make([]float64, k+1)
	bv[0] = 1
	for j := 1; j <= k; j++ {
		left[j] = x - s.t[l+1-j]
		right[j] = s.t[l+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			den := right[r+1] + left[j-r]
			temp := 0.0
			if den != 0 {
				temp = bv[r] / den
			}
			bv[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		bv[j] = saved
	}
	return bv
}

func (s *bspline) Predict(x float64) float64 {
	n := len(s.c)
	l := s.interval(x, n)
	sum := 0.0
	for r, v := range s.basis(l, x) {
		sum += v * s.c[l-s.k+r]
	}
	return sum
}

// maxCollocationCond rejects knot sequences whose normal equations are too
// ill-conditioned to trust.
const maxCollocationCond = 1e12

// solveCollocation solves the banded collocation system a·c = y through its
// normal equations aᵀa·c = aᵀy, which are symmetric positive definite with
// twice the bandwidth and factor with a band Cholesky.
func solveCollocation(a *mat.BandDense, y []float64) ([]float64, error) {
	n, _ := a.Dims()
	w, _ := a.Bandwidth()
	k := 2 * w
	normal := mat.NewSymBandDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := i; j <= min(n-1, i+k); j++ {
			sum := 0.0
			for r := max(0, j-w); r <= min(n-1, i+w); r++ {
				sum += a.At(r, i) * a.At(r, j)
			}
			normal.SetSymBand(i, j, sum)
		}
	}
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sum := 0.0
		for r := max(0, i-w); r <= min(n-1, i+w); r++ {
			sum += a.At(r, i) * y[r]
		}
		rhs.SetVec(i, sum)
	}

	var ch mat.BandCholesky
	if ok := ch.Factorize(normal); !ok {
		return nil, errors.New("bspline: singular collocation matrix")
	}
	if ch.Cond() > maxCollocationCond {
		return nil, errors.New("bspline: ill-conditioned collocation matrix")
	}
	var c mat.VecDense
	if err := ch.SolveVecTo(&c, rhs); err != nil {
		return nil, fmt.Errorf("bspline: %w", err)
	}
	return mat.Col(nil, 0, &c), nil
}
