package kinematics

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
)

// MarkerSeries holds a marker's derived motion, one entry per frame. Frames
// outside the valid domain or next to missing data are NaN.
type MarkerSeries struct {
	Marker       string
	Velocity     []r3.Vec
	Acceleration []r3.Vec
	Speed        []float64 // |Velocity|
	AccelNorm    []float64 // |Acceleration|
}

// SegmentSeries holds a segment's length and world-axis angles per frame.
type SegmentSeries struct {
	Segment skeleton.Segment
	Length  []float64
	// Angles[axis][frame] in degrees.
	Angles [3][]float64
}

// JointSeries holds a joint angle per frame in degrees.
type JointSeries struct {
	Joint skeleton.Joint
	Angle []float64
}

// Engine derives kinematic series from a store. Each call works on a
// snapshot, so the live store may be edited once the call returns.
type Engine struct {
	// Workers bounds the goroutines used per call. Values below 2 run
	// serially.
	Workers int
}

func (e *Engine) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	if e != nil && e.Workers > 1 {
		g.SetLimit(e.Workers)
	} else {
		g.SetLimit(1)
	}
	return g, ctx
}

func nanVec() r3.Vec {
	nan := math.NaN()
	return r3.Vec{X: nan, Y: nan, Z: nan}
}

func track(s *markers.Store, marker string) []r3.Vec {
	out := make([]r3.Vec, s.NumFrames())
	for f := range out {
		out[f], _ = s.Position(marker, f)
	}
	return out
}

// Markers computes velocity and acceleration series for each named marker.
// An empty names list means every marker in the store.
func (e *Engine) Markers(ctx context.Context, store *markers.Store, names []string) ([]MarkerSeries, error) {
	if len(names) == 0 {
		names = store.Markers()
	}
	for _, m := range names {
		if !store.ColumnExists(m) {
			return nil, &markers.NotFoundError{Kind: "marker", Name: m}
		}
	}
	snap := store.Snapshot()
	fps := snap.FPS()
	out := make([]MarkerSeries, len(names))

	g, ctx := e.group(ctx)
	for i, m := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tr := track(snap, m)
			ms := MarkerSeries{
				Marker:       m,
				Velocity:     make([]r3.Vec, len(tr)),
				Acceleration: make([]r3.Vec, len(tr)),
				Speed:        make([]float64, len(tr)),
				AccelNorm:    make([]float64, len(tr)),
			}
			for f := range tr {
				if v, ok := velocity(tr, f, fps); ok {
					ms.Velocity[f], ms.Speed[f] = v, r3.Norm(v)
				} else {
					ms.Velocity[f], ms.Speed[f] = nanVec(), math.NaN()
				}
				if a, ok := acceleration(tr, f, fps); ok {
					ms.Acceleration[f], ms.AccelNorm[f] = a, r3.Norm(a)
				} else {
					ms.Acceleration[f], ms.AccelNorm[f] = nanVec(), math.NaN()
				}
			}
			out[i] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Segments computes length and orientation series for each segment.
func (e *Engine) Segments(ctx context.Context, store *markers.Store, segments []skeleton.Segment) ([]SegmentSeries, error) {
	for _, s := range segments {
		for _, m := range []string{s.A, s.B} {
			if !store.ColumnExists(m) {
				return nil, &markers.NotFoundError{Kind: "marker", Name: m}
			}
		}
	}
	snap := store.Snapshot()
	tracks := newTrackCache(snap)
	out := make([]SegmentSeries, len(segments))

	g, ctx := e.group(ctx)
	for i, seg := range segments {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, b := tracks.get(seg.A), tracks.get(seg.B)
			ss := SegmentSeries{Segment: seg, Length: make([]float64, len(a))}
			for ax := range ss.Angles {
				ss.Angles[ax] = make([]float64, len(a))
			}
			for f := range a {
				ss.Length[f] = Length(a[f], b[f])
				angles := AxisAngles(a[f], b[f])
				for ax := range angles {
					ss.Angles[ax][f] = angles[ax]
				}
			}
			out[i] = ss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Joints computes the angle series for each joint.
func (e *Engine) Joints(ctx context.Context, store *markers.Store, joints []skeleton.Joint) ([]JointSeries, error) {
	for _, j := range joints {
		for _, m := range []string{j.A, j.B, j.C} {
			if !store.ColumnExists(m) {
				return nil, &markers.NotFoundError{Kind: "marker", Name: m}
			}
		}
	}
	snap := store.Snapshot()
	tracks := newTrackCache(snap)
	out := make([]JointSeries, len(joints))

	g, ctx := e.group(ctx)
	for i, j := range joints {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, b, c := tracks.get(j.A), tracks.get(j.B), tracks.get(j.C)
			js := JointSeries{Joint: j, Angle: make([]float64, len(a))}
			for f := range a {
				js.Angle[f] = Angle(a[f], b[f], c[f])
			}
			out[i] = js
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// trackCache shares marker tracks between goroutines so a marker used by
// several segments is copied out of the snapshot once.
type trackCache struct {
	store *markers.Store
	mu    sync.Mutex
	m     map[string][]r3.Vec
}

func newTrackCache(s *markers.Store) *trackCache {
	return &trackCache{store: s, m: make(map[string][]r3.Vec)}
}

func (c *trackCache) get(marker string) []r3.Vec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.m[marker]; ok {
		return t
	}
	t := track(c.store, marker)
	c.m[marker] = t
	return t
}
