package outliers

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
)

// DefaultThreshold is the relative frame-to-frame segment length change
// above which both endpoints are flagged.
const DefaultThreshold = 0.2

// Detector flags frames where a rigid segment's length jumps.
type Detector struct {
	// Threshold is the relative length change that triggers a flag.
	// Zero means DefaultThreshold.
	Threshold float64
	// Workers splits the frame range across goroutines. Values below 2 run
	// a single pass. The mask is identical either way.
	Workers int
}

// NewDetector returns a Detector with the default threshold and a serial pass.
func NewDetector() *Detector {
	return &Detector{Threshold: DefaultThreshold, Workers: 1}
}

func (d *Detector) threshold() float64 {
	if d == nil || d.Threshold == 0 {
		return DefaultThreshold
	}
	return d.Threshold
}

// Detect builds a fresh mask over every marker of the store.
//
// For each frame f >= 1 and each pair (a, b) the segment length at f is
// compared to the length at f-1. A pair is skipped at f when any endpoint
// component is missing at either frame, or when the previous length is zero.
// When the relative change exceeds the threshold both a and b are flagged at
// f. Frame 0 has no predecessor and is never flagged.
func (d *Detector) Detect(ctx context.Context, store *markers.Store, pairs []skeleton.Pair) (Mask, error) {
	if store == nil {
		return nil, markers.InvalidParam("store", nil, "nil store")
	}
	thr := d.threshold()
	if !(thr > 0) {
		return nil, markers.InvalidParam("threshold", thr, "must be positive")
	}
	for _, p := range pairs {
		for _, m := range []string{p.A, p.B} {
			if !store.ColumnExists(m) {
				return nil, &markers.NotFoundError{Kind: "marker", Name: m}
			}
		}
	}

	numFrames := store.NumFrames()
	mask := NewMask(store.Markers(), numFrames)
	if len(pairs) == 0 || numFrames < 2 {
		return mask, nil
	}

	// Each pair's endpoint series is copied once so the scan reads plain
	// slices instead of taking the store lock per sample.
	snap := store.Snapshot()
	series := make(map[string][]r3.Vec)
	for _, p := range pairs {
		for _, m := range []string{p.A, p.B} {
			if _, ok := series[m]; !ok {
				series[m] = positions(snap, m)
			}
		}
	}

	workers := 1
	if d != nil && d.Workers > 1 {
		workers = d.Workers
	}
	if workers > numFrames-1 {
		workers = numFrames - 1
	}

	// Workers own disjoint frame blocks, so writes into the shared mask
	// never touch the same element.
	g, ctx := errgroup.WithContext(ctx)
	chunk := (numFrames - 1 + workers - 1) / workers
	for start := 1; start < numFrames; start += chunk {
		lo, hi := start, start+chunk
		if hi > numFrames {
			hi = numFrames
		}
		g.Go(func() error {
			for f := lo; f < hi; f++ {
				if f%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for _, p := range pairs {
					if segmentJumped(series[p.A], series[p.B], f, thr) {
						mask[p.A][f] = true
						mask[p.B][f] = true
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mask, nil
}

// Detect runs the default detector.
func Detect(ctx context.Context, store *markers.Store, pairs []skeleton.Pair) (Mask, error) {
	return NewDetector().Detect(ctx, store, pairs)
}

func positions(s *markers.Store, marker string) []r3.Vec {
	out := make([]r3.Vec, s.NumFrames())
	for f := range out {
		// marker presence was checked by the caller
		out[f], _ = s.Position(marker, f)
	}
	return out
}

func segmentJumped(a, b []r3.Vec, f int, threshold float64) bool {
	pa, pb, qa, qb := a[f], b[f], a[f-1], b[f-1]
	if !markers.IsValid(pa) || !markers.IsValid(pb) || !markers.IsValid(qa) || !markers.IsValid(qb) {
		return false
	}
	prev := r3.Norm(r3.Sub(qb, qa))
	if prev == 0 {
		return false
	}
	cur := r3.Norm(r3.Sub(pb, pa))
	return math.Abs(cur-prev)/prev > threshold
}
