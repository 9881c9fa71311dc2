package filter

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// gaussianTruncate is the kernel half-width in standard deviations.
const gaussianTruncate = 4.0

func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	k := make([]float64, 2*radius+1)
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// reflect maps an out-of-bounds index into [0, n) by mirroring about the
// edges, repeating the edge sample (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i - 1
	}
	return i
}

// gaussian convolves each contiguous run with a normalised Gaussian kernel,
// reflecting at the run edges.
func gaussian(x []float64, p Gaussian) []float64 {
	k := gaussianKernel(p.SigmaKernel)
	radius := len(k) / 2
	out := append([]float64(nil), x...)
	for _, r := range runs(x) {
		seg := x[r.start:r.end]
		n := len(seg)
		for i := range seg {
			var acc float64
			for j, w := range k {
				acc += w * seg[reflect(i+j-radius, n)]
			}
			out[r.start+i] = acc
		}
	}
	return out
}

// loess fits a tricube-weighted straight line around every sample using its
// nb nearest neighbours within the run. Weights fall to zero at the farthest
// neighbour.
func loess(x []float64, p LOESS) []float64 {
	out := append([]float64(nil), x...)
	for _, r := range runs(x) {
		seg := x[r.start:r.end]
		n := len(seg)
		k := min(p.NbValuesUsed, n)
		if k < 2 {
			continue
		}
		lo := 0
		for i := range seg {
			// Slide the k-wide window so it stays the nearest k samples to i.
			for lo+k < n && i-lo > lo+k-i {
				lo++
			}
			hi := lo + k
			radius := math.Max(float64(i-lo), float64(hi-1-i))
			out[r.start+i] = localLinear(seg[lo:hi], lo, i, radius)
		}
	}
	return out
}

func localLinear(ys []float64, offset, at int, radius float64) float64 {
	var sw, sx, sy, sxx, sxy float64
	for j, y := range ys {
		xj := float64(offset + j)
		w := 1.0
		if radius > 0 {
			d := math.Abs(xj-float64(at)) / radius
			if d >= 1 {
				continue
			}
			w = math.Pow(1-d*d*d, 3)
		}
		sw += w
		sx += w * xj
		sy += w * y
		sxx += w * xj * xj
		sxy += w * xj * y
	}
	if sw == 0 {
		return ys[at-offset]
	}
	mx, my := sx/sw, sy/sw
	varx := sxx/sw - mx*mx
	if varx <= 1e-12 {
		return my
	}
	slope := (sxy/sw - mx*my) / varx
	return my + slope*(float64(at)-mx)
}

// median replaces each sample with the median of the odd window centred on
// it. Near the run edges the window is truncated rather than padded, so edge
// samples differ from scipy.signal.medfilt, which zero-pads.
func median(x []float64, p Median) []float64 {
	half := p.KernelSize / 2
	out := append([]float64(nil), x...)
	buf := make([]float64, 0, p.KernelSize)
	for _, r := range runs(x) {
		seg := x[r.start:r.end]
		for i := range seg {
			buf = append(buf[:0], seg[max(0, i-half):min(len(seg), i+half+1)]...)
			sort.Float64s(buf)
			m := len(buf) / 2
			if len(buf)%2 == 1 {
				out[r.start+i] = buf[m]
			} else {
				out[r.start+i] = (buf[m-1] + buf[m]) / 2
			}
		}
	}
	return out
}
