package repair

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
)

// reference is the rigid offset from one reference marker to the target,
// captured at the anchor frame.
type reference struct {
	marker string
	dist   float64
	dir    r3.Vec // unit vector from reference to target; zero when dist is 0
	weight float64
	track  []r3.Vec
}

// InterpolatePattern reconstructs target over rng from the live motion of
// reference markers.
//
// The anchor is the frame, anywhere in the capture, where target has a full
// XYZ sample and which lies closest to either edge of rng; ties go to the
// earlier frame. At the anchor the distance and unit direction from each
// reference to the target are recorded. Every frame of rng where target is
// missing is then predicted per reference as ref(f) + dir*dist and the
// predictions are averaged with weights 1/(dist+epsilon). References missing
// at a frame are left out of that frame's average; a frame with no usable
// reference stays missing. Frames where target already has data are never
// touched.
//
// Preconditions are checked in order before anything is written: refs must
// be non-empty, must not contain target, and must all exist; target must
// have valid data somewhere in the capture.
func (r *Repairer) InterpolatePattern(ctx context.Context, store *markers.Store, target string, refs []string, rng markers.Range) (Result, error) {
	res := Result{Marker: target, Method: Pattern, Range: rng, Axes: markers.Axes, Anchor: -1}
	if store == nil {
		return res, markers.InvalidParam("store", nil, "nil store")
	}
	if len(refs) == 0 {
		return res, markers.ErrNoReferencesSelected
	}
	for _, m := range refs {
		if m == target {
			return res, &markers.InvalidSelectionError{Marker: m, Reason: "reference marker is the target"}
		}
	}
	if !store.ColumnExists(target) {
		return res, &markers.NotFoundError{Kind: "marker", Name: target}
	}
	for _, m := range refs {
		if !store.ColumnExists(m) {
			return res, &markers.NotFoundError{Kind: "marker", Name: m}
		}
	}
	if err := rng.Validate(store.NumFrames()); err != nil {
		return res, err
	}
	eps := DefaultEpsilon
	if r != nil && r.Epsilon != 0 {
		eps = r.Epsilon
	}
	if !(eps > 0) {
		return res, markers.InvalidParam("epsilon", eps, "must be positive")
	}

	snap := store.Snapshot()
	valid, err := snap.ValidFrames(target)
	if err != nil {
		return res, err
	}
	if len(valid) == 0 {
		return res, &markers.NoReferenceDataError{Marker: target}
	}
	anchor := closestToEdges(valid, rng)
	res.Anchor = anchor
	targetAt, _ := snap.Position(target, anchor)

	var used []reference
	for _, m := range dedup(refs) {
		refAt, _ := snap.Position(m, anchor)
		if !markers.IsValid(refAt) {
			monitoring.Logf("pattern repair %s: reference %s missing at anchor frame %d, skipped", target, m, anchor)
			continue
		}
		offset := r3.Sub(targetAt, refAt)
		dist := r3.Norm(offset)
		ref := reference{marker: m, dist: dist, weight: 1 / (dist + eps)}
		if dist > 0 {
			ref.dir = r3.Scale(1/dist, offset)
		}
		used = append(used, ref)
	}
	if len(used) == 0 {
		return res, &markers.InvalidSelectionError{
			Marker: refs[0],
			Reason: fmt.Sprintf("no reference marker has data at anchor frame %d", anchor),
		}
	}

	var frames []int
	for f := rng.Start; f <= rng.End; f++ {
		if !snap.HasValue(target, f) {
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		monitoring.Debugf("pattern repair %s %s: nothing missing", target, rng)
		return res, nil
	}
	for i := range used {
		used[i].track = make([]r3.Vec, len(frames))
		for j, f := range frames {
			used[i].track[j], _ = snap.Position(used[i].marker, f)
		}
	}

	// The anchor is fixed above; each frame's prediction only depends on
	// the references at that frame.
	predicted := make([]r3.Vec, len(frames))
	ok := make([]bool, len(frames))
	workers := 1
	if r != nil && r.Workers > 1 {
		workers = r.Workers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (len(frames) + workers - 1) / workers
	for lo := 0; lo < len(frames); lo += chunk {
		hi := min(lo+chunk, len(frames))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for j := lo; j < hi; j++ {
				predicted[j], ok[j] = predict(used, j)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for j, f := range frames {
		if !ok[j] {
			continue
		}
		if err := store.SetPosition(target, f, predicted[j]); err != nil {
			return res, err
		}
		res.Filled++
	}
	res.Written = markers.Axes
	monitoring.Debugf("repair: %s from %v", res, refs)
	return res, nil
}

// predict averages the per-reference predictions for the j-th missing frame.
func predict(refs []reference, j int) (r3.Vec, bool) {
	var sum r3.Vec
	total := 0.0
	for _, ref := range refs {
		at := ref.track[j]
		if !markers.IsValid(at) {
			continue
		}
		guess := r3.Add(at, r3.Scale(ref.dist, ref.dir))
		sum = r3.Add(sum, r3.Scale(ref.weight, guess))
		total += ref.weight
	}
	if total == 0 {
		return r3.Vec{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}, false
	}
	return r3.Scale(1/total, sum), true
}

// closestToEdges returns the frame minimising min(|f-start|, |f-end|).
// frames is ascending, so the first minimum is the earliest frame.
func closestToEdges(frames []int, rng markers.Range) int {
	best, bestDist := frames[0], math.MaxInt
	for _, f := range frames {
		d := min(absInt(f-rng.Start), absInt(f-rng.End))
		if d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func dedup(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// InterpolatePattern runs a default Repairer.
func InterpolatePattern(ctx context.Context, store *markers.Store, target string, refs []string, rng markers.Range) (Result, error) {
	return NewRepairer().InterpolatePattern(ctx, store, target, refs, rng)
}
