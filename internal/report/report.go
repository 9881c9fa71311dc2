package report

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/kinematics"
	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/outliers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/timeutil"
)

// Options controls Build.
type Options struct {
	// Title labels plots, charts and persisted reports.
	Title string
	// ExtraPairs are user-defined rigid pairs added to the topology links.
	ExtraPairs []skeleton.Pair
	// Workers bounds the kinematics fan-out.
	Workers int
	// Clock stamps the report. Defaults to the wall clock.
	Clock timeutil.Clock
}

// Overview describes the dataset as a whole.
type Overview struct {
	Title    string          `json:"title,omitempty"`
	Model    string          `json:"model"`
	Markers  int             `json:"markers"`
	Frames   int             `json:"frames"`
	FPS      float64         `json:"fps"`
	Duration float64         `json:"duration_s"`
	Pairs    []skeleton.Pair `json:"pairs"`
	// CompleteFrames counts frames at which every marker has a full sample.
	CompleteFrames int `json:"complete_frames"`
	OutlierFlags   int `json:"outlier_flags"`
}

// MarkerRow summarises one marker.
type MarkerRow struct {
	Marker       string     `json:"marker"`
	Completeness float64    `json:"completeness"`
	Outliers     int        `json:"outliers"`
	Coords       [3]Summary `json:"coords"`
	Speed        Summary    `json:"speed"`
	Acceleration Summary    `json:"acceleration"`
}

// SegmentRow summarises one resolved segment.
type SegmentRow struct {
	Segment skeleton.Segment `json:"segment"`
	Length  Summary          `json:"length"`
	Angles  [3]Summary       `json:"angles"`
}

// JointRow summarises one resolved joint.
type JointRow struct {
	Joint skeleton.Joint `json:"joint"`
	Angle Summary        `json:"angle"`
}

// Series carries the full per-frame data behind the summaries for plotting.
// It is not serialised.
type Series struct {
	FPS       float64
	Positions map[string][]r3.Vec
	// FrameCompleteness is the fraction of markers with a full sample at
	// each frame.
	FrameCompleteness []float64
	Markers           []kinematics.MarkerSeries
	Segments          []kinematics.SegmentSeries
	Joints            []kinematics.JointSeries
}

// Report is the aggregated statistics of a session.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Overview    Overview     `json:"overview"`
	Markers     []MarkerRow  `json:"markers"`
	Segments    []SegmentRow `json:"segments"`
	Joints      []JointRow   `json:"joints"`
	Series      *Series      `json:"-"`
}

// Build aggregates store statistics. mask may be nil, in which case outlier
// counts are zero. Segments and joints are resolved from topo against the
// markers present in the store.
func Build(ctx context.Context, store *markers.Store, mask outliers.Mask, topo skeleton.Topology, opts Options) (*Report, error) {
	if store == nil {
		return nil, fmt.Errorf("report: nil store")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	pairs, err := skeleton.PairsFor(topo, store, opts.ExtraPairs)
	if err != nil {
		return nil, err
	}

	// All series below are read from one consistent copy.
	snap := store.Snapshot()
	names := snap.Markers()
	n := snap.NumFrames()

	eng := &kinematics.Engine{Workers: opts.Workers}
	ms, err := eng.Markers(ctx, snap, names)
	if err != nil {
		return nil, fmt.Errorf("marker kinematics: %w", err)
	}
	segs, err := eng.Segments(ctx, snap, skeleton.ResolveSegments(topo, snap))
	if err != nil {
		return nil, fmt.Errorf("segment kinematics: %w", err)
	}
	joints, err := eng.Joints(ctx, snap, skeleton.ResolveJoints(topo, snap))
	if err != nil {
		return nil, fmt.Errorf("joint kinematics: %w", err)
	}

	series := &Series{
		FPS:               snap.FPS(),
		Positions:         make(map[string][]r3.Vec, len(names)),
		FrameCompleteness: make([]float64, n),
		Markers:           ms,
		Segments:          segs,
		Joints:            joints,
	}
	rep := &Report{
		GeneratedAt: clock.Now().UTC(),
		Overview: Overview{
			Title:    opts.Title,
			Model:    topo.Model,
			Markers:  len(names),
			Frames:   n,
			FPS:      snap.FPS(),
			Duration: snap.Duration(),
			Pairs:    pairs,
		},
		Markers:  make([]MarkerRow, len(names)),
		Segments: make([]SegmentRow, len(segs)),
		Joints:   make([]JointRow, len(joints)),
		Series:   series,
	}

	for i, name := range names {
		row := MarkerRow{Marker: name, Outliers: mask.Count(name)}
		row.Completeness, _ = snap.Completeness(name)
		for _, a := range markers.Axes {
			col, _ := snap.Column(name, a)
			row.Coords[a] = Summarize(col)
		}
		row.Speed = Summarize(ms[i].Speed)
		row.Acceleration = Summarize(ms[i].AccelNorm)
		rep.Markers[i] = row
		rep.Overview.OutlierFlags += row.Outliers

		track := make([]r3.Vec, n)
		for f := range track {
			track[f], _ = snap.Position(name, f)
		}
		series.Positions[name] = track
	}

	for f := 0; f < n; f++ {
		valid := 0
		for _, name := range names {
			if markers.IsValid(series.Positions[name][f]) {
				valid++
			}
		}
		series.FrameCompleteness[f] = float64(valid) / float64(len(names))
		if valid == len(names) {
			rep.Overview.CompleteFrames++
		}
	}

	for i, s := range segs {
		row := SegmentRow{Segment: s.Segment, Length: Summarize(s.Length)}
		for a := range s.Angles {
			row.Angles[a] = Summarize(s.Angles[a])
		}
		rep.Segments[i] = row
	}
	for i, j := range joints {
		rep.Joints[i] = JointRow{Joint: j.Joint, Angle: Summarize(j.Angle)}
	}
	return rep, nil
}
