package filter

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// kalmanMeasurementNoise is the measurement standard deviation; the process
// standard deviation is this times the trust ratio.
const kalmanMeasurementNoise = 20.0

// kalman tracks position, velocity and acceleration with a constant
// acceleration model, optionally followed by a Rauch-Tung-Striebel backward
// pass. Each contiguous run of samples is filtered independently.
func kalman(x []float64, p Kalman, fps float64) ([]float64, error) {
	out := append([]float64(nil), x...)
	for _, r := range runs(x) {
		y, err := kalmanRun(x[r.start:r.end], p, fps)
		if err != nil {
			return nil, err
		}
		copy(out[r.start:r.end], y)
	}
	return out, nil
}

func kalmanRun(z []float64, p Kalman, fps float64) ([]float64, error) {
	n := len(z)
	dt := 1 / fps
	r := kalmanMeasurementNoise * kalmanMeasurementNoise
	q := kalmanMeasurementNoise * p.TrustRatio
	q *= q

	F := mat.NewDense(3, 3, []float64{
		1, dt, dt * dt / 2,
		0, 1, dt,
		0, 0, 1,
	})
	// Discrete white noise acceleration model.
	Q := mat.NewDense(3, 3, []float64{
		dt * dt * dt * dt / 4, dt * dt * dt / 2, dt * dt / 2,
		dt * dt * dt / 2, dt * dt, dt,
		dt * dt / 2, dt, 1,
	})
	Q.Scale(q, Q)

	xs := make([]*mat.VecDense, n)
	Ps := make([]*mat.Dense, n)

	x := mat.NewVecDense(3, []float64{z[0], 0, 0})
	P := mat.NewDense(3, 3, []float64{r, 0, 0, 0, r, 0, 0, 0, r})
	for k := 0; k < n; k++ {
		if k > 0 {
			var xp mat.VecDense
			xp.MulVec(F, x)
			x = &xp
			P = predictCov(F, P, Q)
		}
		// H = [1 0 0], so the innovation and gain only touch column 0.
		s := P.At(0, 0) + r
		innov := z[k] - x.AtVec(0)
		K := mat.NewVecDense(3, []float64{P.At(0, 0) / s, P.At(1, 0) / s, P.At(2, 0) / s})
		var xu mat.VecDense
		xu.AddScaledVec(x, innov, K)
		x = &xu

		var kh mat.Dense
		kh.Outer(1, K, mat.NewVecDense(3, []float64{1, 0, 0}))
		var imkh mat.Dense
		imkh.Sub(eye3(), &kh)
		var pu mat.Dense
		pu.Mul(&imkh, P)
		P = &pu

		xs[k] = x
		Ps[k] = P
	}

	if p.Smooth && n > 1 {
		for k := n - 2; k >= 0; k-- {
			pp := predictCov(F, Ps[k], Q)
			var ppInv mat.Dense
			if err := ppInv.Inverse(pp); err != nil {
				return nil, fmt.Errorf("kalman smoother at sample %d: %w", k, err)
			}
			var gain mat.Dense
			gain.Mul(Ps[k], F.T())
			gain.Mul(&gain, &ppInv)

			var xPred, diff, corr mat.VecDense
			xPred.MulVec(F, xs[k])
			diff.SubVec(xs[k+1], &xPred)
			corr.MulVec(&gain, &diff)
			var xsm mat.VecDense
			xsm.AddVec(xs[k], &corr)
			xs[k] = &xsm

			var dP, tmp, Psm mat.Dense
			dP.Sub(Ps[k+1], pp)
			tmp.Mul(&gain, &dP)
			tmp.Mul(&tmp, gain.T())
			Psm.Add(Ps[k], &tmp)
			Ps[k] = &Psm
		}
	}

	out := make([]float64, n)
	for k := range out {
		out[k] = xs[k].AtVec(0)
	}
	return out, nil
}

func predictCov(F, P, Q mat.Matrix) *mat.Dense {
	var fp, out mat.Dense
	fp.Mul(F, P)
	out.Mul(&fp, F.T())
	out.Add(&out, Q)
	return &out
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
