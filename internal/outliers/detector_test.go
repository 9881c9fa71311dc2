package outliers

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
)

// segmentStore places A at the origin and B at (length[f], 0, 0).
func segmentStore(t *testing.T, lengths []float64) *markers.Store {
	t.Helper()
	s, err := markers.New([]string{"A", "B"}, len(lengths), 30)
	require.NoError(t, err)
	for f, l := range lengths {
		require.NoError(t, s.SetPosition("A", f, r3.Vec{}))
		require.NoError(t, s.SetPosition("B", f, r3.Vec{X: l}))
	}
	return s
}

func TestDetect_SegmentJump(t *testing.T) {
	s := segmentStore(t, []float64{1, 1, 1, 1.5, 1.5})
	mask, err := Detect(context.Background(), s, []skeleton.Pair{{A: "A", B: "B"}})
	require.NoError(t, err)

	want := Mask{
		"A": {false, false, false, true, false},
		"B": {false, false, false, true, false},
	}
	if diff := cmp.Diff(want, mask); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, mask.Count("A"))
	assert.Equal(t, []int{3}, mask.Frames("B"))
	assert.True(t, mask.Any(3))
	assert.False(t, mask.Any(2))
	assert.Equal(t, 2, mask.Total())
	assert.Equal(t, []string{"A", "B"}, mask.Markers())
}

func TestDetect_ThresholdIsStrict(t *testing.T) {
	// 1.0 -> 1.25 is exactly 25%, not above it.
	s := segmentStore(t, []float64{1, 1.25, 1.25})
	mask, err := (&Detector{Threshold: 0.25}).Detect(context.Background(), s, []skeleton.Pair{{A: "A", B: "B"}})
	require.NoError(t, err)
	assert.Equal(t, 0, mask.Total())

	mask, err = (&Detector{Threshold: 0.1}).Detect(context.Background(), s, []skeleton.Pair{{A: "A", B: "B"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, mask.Frames("A"))
}

func TestDetect_SkipsMissingAndZeroLength(t *testing.T) {
	s := segmentStore(t, []float64{1, 0, 5, 5, 1, 1})
	require.NoError(t, s.Set(4, "A", markers.Y, math.NaN()))
	mask, err := Detect(context.Background(), s, []skeleton.Pair{{A: "A", B: "B"}})
	require.NoError(t, err)

	// f=1: 1->0 flagged. f=2: previous length zero, skipped.
	// f=4 and f=5 touch the missing sample and are skipped.
	assert.Equal(t, []int{1}, mask.Frames("A"))
	assert.Equal(t, []int{1}, mask.Frames("B"))
}

func TestDetect_EmptyPairs(t *testing.T) {
	s := segmentStore(t, []float64{1, 5, 1})
	mask, err := Detect(context.Background(), s, nil)
	require.NoError(t, err)
	assert.Len(t, mask, 2)
	assert.Equal(t, 0, mask.Total())
	assert.Len(t, mask["A"], 3)
}

func TestDetect_UnknownMarker(t *testing.T) {
	s := segmentStore(t, []float64{1, 1})
	_, err := Detect(context.Background(), s, []skeleton.Pair{{A: "A", B: "Z"}})
	assert.True(t, errors.Is(err, markers.ErrNotFound), "err = %v", err)
}

func TestDetect_InvalidThreshold(t *testing.T) {
	s := segmentStore(t, []float64{1, 1})
	_, err := (&Detector{Threshold: -1}).Detect(context.Background(), s, nil)
	assert.ErrorIs(t, err, markers.ErrInvalidParameter)
}

func randomStore(t *testing.T, names []string, frames int, seed int64) *markers.Store {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	s, err := markers.New(names, frames, 60)
	require.NoError(t, err)
	for _, m := range names {
		for f := 0; f < frames; f++ {
			p := r3.Vec{X: rng.Float64(), Y: rng.Float64(), Z: rng.Float64()}
			if rng.Intn(20) == 0 {
				p.X = math.NaN()
			}
			require.NoError(t, s.SetPosition(m, f, p))
		}
	}
	return s
}

func TestDetect_Properties(t *testing.T) {
	names := []string{"A", "B", "C", "D"}
	pairs := []skeleton.Pair{{A: "A", B: "B"}, {A: "B", B: "C"}, {A: "C", B: "D"}}
	for seed := int64(1); seed <= 5; seed++ {
		s := randomStore(t, names, 200, seed)

		serial, err := NewDetector().Detect(context.Background(), s, pairs)
		require.NoError(t, err)
		parallel, err := (&Detector{Workers: 7}).Detect(context.Background(), s, pairs)
		require.NoError(t, err)
		if diff := cmp.Diff(serial, parallel); diff != "" {
			t.Fatalf("seed %d: parallel mask differs (-serial +parallel):\n%s", seed, diff)
		}

		for _, m := range names {
			assert.False(t, serial[m][0], "seed %d: %s flagged at frame 0", seed, m)
		}

		// Every flag must be explained by a pair whose two endpoints are
		// both flagged at that frame.
		for m, flags := range serial {
			for f, v := range flags {
				if !v {
					continue
				}
				explained := false
				for _, p := range pairs {
					if (p.A == m || p.B == m) && serial[p.A][f] && serial[p.B][f] {
						explained = true
					}
				}
				assert.True(t, explained, "seed %d: %s[%d] flagged alone", seed, m, f)
			}
		}
	}
}

func TestDetect_Cancelled(t *testing.T) {
	s := randomStore(t, []string{"A", "B"}, 600, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Detect(ctx, s, []skeleton.Pair{{A: "A", B: "B"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMask_OutOfRange(t *testing.T) {
	m := NewMask([]string{"A"}, 2)
	assert.False(t, m.Flagged("A", 5))
	assert.False(t, m.Flagged("B", 0))
	assert.False(t, m.Any(-1))
}
