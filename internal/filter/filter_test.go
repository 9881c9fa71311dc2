package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
)

const fps = 100.0

func allSpecs() []Spec {
	return []Spec{
		{Kind: KindButterworth, Butterworth: Butterworth{Order: 4, CutoffHz: 6}},
		{Kind: KindKalman, Kalman: Kalman{TrustRatio: 100, Smooth: true}},
		{Kind: KindKalman, Kalman: Kalman{TrustRatio: 100}},
		{Kind: KindGaussian, Gaussian: Gaussian{SigmaKernel: 3}},
		{Kind: KindLOESS, LOESS: LOESS{NbValuesUsed: 30}},
		{Kind: KindMedian, Median: Median{KernelSize: 5}},
	}
}

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestApply_InvalidCutoffLeavesSeriesUnchanged(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	before := append([]float64(nil), x...)
	out, err := Apply(x, Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 4, CutoffHz: -1}}, 30)
	var pe *markers.InvalidParameterError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "cut_off_frequency", pe.Field)
	assert.Nil(t, out)
	assert.Equal(t, before, x)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		spec  Spec
		fps   float64
		field string
	}{
		{Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 0, CutoffHz: 5}}, 100, "order"},
		{Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 2, CutoffHz: 50}}, 100, "cut_off_frequency"},
		{Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 2, CutoffHz: 5}}, 0, "fps"},
		{Spec{Kind: KindKalman}, 100, "trust_ratio"},
		{Spec{Kind: KindGaussian, Gaussian: Gaussian{SigmaKernel: -1}}, 100, "sigma_kernel"},
		{Spec{Kind: KindLOESS, LOESS: LOESS{NbValuesUsed: 1}}, 100, "nb_values_used"},
		{Spec{Kind: KindMedian, Median: Median{KernelSize: 4}}, 100, "kernel_size"},
		{Spec{Kind: KindMedian}, 100, "kernel_size"},
		{Spec{Kind: Kind(42)}, 100, "filter"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			err := tt.spec.Validate(tt.fps)
			var pe *markers.InvalidParameterError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
	for _, s := range allSpecs() {
		assert.NoError(t, s.Validate(fps), s.String())
	}
}

func TestApply_PreservesConstant(t *testing.T) {
	x := constant(200, 3.5)
	for _, s := range allSpecs() {
		t.Run(s.String(), func(t *testing.T) {
			out, err := Apply(x, s, fps)
			require.NoError(t, err)
			require.Len(t, out, len(x))
			for i, v := range out {
				assert.InDelta(t, 3.5, v, 1e-6, "sample %d", i)
			}
		})
	}
}

func TestApply_PreservesGaps(t *testing.T) {
	x := make([]float64, 120)
	for i := range x {
		x[i] = math.Sin(float64(i) / 10)
	}
	for _, g := range []int{0, 40, 41, 119} {
		x[g] = math.NaN()
	}
	for _, s := range allSpecs() {
		t.Run(s.String(), func(t *testing.T) {
			out, err := Apply(x, s, fps)
			require.NoError(t, err)
			for i := range x {
				assert.Equal(t, math.IsNaN(x[i]), math.IsNaN(out[i]), "sample %d", i)
			}
		})
	}
}

func TestButterworth_AttenuatesHighFrequency(t *testing.T) {
	n := 400
	x := make([]float64, n)
	for i := range x {
		sec := float64(i) / fps
		x[i] = math.Sin(2*math.Pi*1*sec) + 0.5*math.Sin(2*math.Pi*40*sec)
	}
	out, err := Apply(x, Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 4, CutoffHz: 6}}, fps)
	require.NoError(t, err)
	for i := 50; i < n-50; i++ {
		sec := float64(i) / fps
		assert.InDelta(t, math.Sin(2*math.Pi*sec), out[i], 0.05, "sample %d", i)
	}
}

func TestButterworth_ShortRunUntouched(t *testing.T) {
	x := []float64{1, 5, 2, 8, math.NaN(), 3}
	out, err := Apply(x, Spec{Kind: KindButterworth, Butterworth: Butterworth{Order: 2, CutoffHz: 5}}, fps)
	require.NoError(t, err)
	assert.Equal(t, x[:4], out[:4])
	assert.Equal(t, 3.0, out[5])
}

func TestButterLowpass_UnitDCGain(t *testing.T) {
	for order := 1; order <= 4; order++ {
		b, a := butterLowpass(order, 0.2)
		require.Len(t, a, order+1)
		assert.InDelta(t, 1, a[0], 1e-12)
		var sb, sa float64
		for i := range a {
			sb += b[i]
			sa += a[i]
		}
		assert.InDelta(t, 1, sb/sa, 1e-12)
	}
}

func TestMedian_RemovesSpike(t *testing.T) {
	x := []float64{1, 1, 1, 50, 1, 1, 1}
	out := median(x, Median{KernelSize: 3})
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1}, out)

	// Edge windows are truncated: the first sample sees {1, 9}. medfilt would
	// zero-pad to {0, 1, 9} and give 1.
	out = median([]float64{1, 9, 9}, Median{KernelSize: 3})
	assert.Equal(t, []float64{5, 9, 9}, out)
}

func TestLOESS_ReproducesLine(t *testing.T) {
	x := make([]float64, 40)
	for i := range x {
		x[i] = 0.25*float64(i) - 3
	}
	out := loess(x, LOESS{NbValuesUsed: 7})
	for i := range x {
		assert.InDelta(t, x[i], out[i], 1e-9, "sample %d", i)
	}
}

func TestGaussian_Kernel(t *testing.T) {
	k := gaussianKernel(1)
	require.Len(t, k, 9)
	var sum float64
	for _, w := range k {
		sum += w
	}
	assert.InDelta(t, 1, sum, 1e-12)
	assert.Equal(t, k[0], k[8])

	assert.Equal(t, 0, reflect(-1, 4))
	assert.Equal(t, 1, reflect(-2, 4))
	assert.Equal(t, 3, reflect(4, 4))
	assert.Equal(t, 2, reflect(5, 4))
}

func TestKalman_TracksRamp(t *testing.T) {
	x := make([]float64, 300)
	for i := range x {
		x[i] = 0.5 * float64(i)
	}
	out, err := Apply(x, Spec{Kind: KindKalman, Kalman: Kalman{TrustRatio: 100, Smooth: true}}, fps)
	require.NoError(t, err)
	for i := 100; i < 300; i++ {
		assert.InDelta(t, x[i], out[i], 1e-3, "sample %d", i)
	}
}

func TestRuns(t *testing.T) {
	nan := math.NaN()
	got := runs([]float64{nan, 1, 2, nan, nan, 3, math.Inf(1), 4})
	assert.Equal(t, []span{{1, 3}, {5, 6}, {7, 8}}, got)
	assert.Empty(t, runs([]float64{nan}))
}

func TestApplyToStore(t *testing.T) {
	s, err := markers.New([]string{"M", "N"}, 50, fps)
	require.NoError(t, err)
	for f := 0; f < 50; f++ {
		z := 0.0
		if f == 20 {
			z = 10
		}
		require.NoError(t, s.SetPosition("M", f, r3.Vec{X: 1, Y: 2, Z: z}))
	}
	spec := Spec{Kind: KindMedian, Median: Median{KernelSize: 3}}

	res, err := ApplyToStore(s, "M", markers.NewRange(10, 30), spec)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)
	v, _ := s.Get(20, "M", markers.Z)
	assert.Equal(t, 0.0, v)

	before := s.Snapshot()
	_, err = ApplyToStore(s, "Q", markers.Whole(50), spec)
	assert.ErrorIs(t, err, markers.ErrNotFound)
	_, err = ApplyToStore(s, "M", markers.NewRange(10, 80), spec)
	assert.ErrorIs(t, err, markers.ErrInvalidParameter)
	_, err = ApplyToStore(s, "M", markers.Whole(50), Spec{Kind: KindMedian, Median: Median{KernelSize: 2}})
	assert.ErrorIs(t, err, markers.ErrInvalidParameter)
	assert.True(t, s.Equal(before))

	// N is entirely missing; filtering it is a no-op rather than an error.
	res, err = ApplyToStore(s, "N", markers.Whole(50), spec)
	require.NoError(t, err)
	assert.Zero(t, res.Changed)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" LOESS")
	require.NoError(t, err)
	assert.Equal(t, KindLOESS, k)
	_, err = ParseKind("savgol")
	assert.ErrorIs(t, err, markers.ErrInvalidParameter)

	var back Kind
	b, _ := KindMedian.MarshalText()
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, KindMedian, back)
}
