package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/outliers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/timeutil"
)

func TestSummarize(t *testing.T) {
	nan := math.NaN()
	s := Summarize([]float64{2, nan, 4, 4, 4, 5, 5, 7, 9, math.Inf(1)})
	assert.True(t, s.Valid)
	assert.Equal(t, 8, s.Count)
	assert.InDelta(t, 5, s.Mean, 1e-12)
	assert.InDelta(t, 2, s.Std, 1e-12, "population std")
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 7.0, s.Range)
	assert.Equal(t, "5.00 ± 2.00 [2.00, 9.00]", s.Format(2))

	empty := Summarize([]float64{nan, nan})
	assert.False(t, empty.Valid)
	assert.Equal(t, "no data", empty.Format(2))

	zero := Summarize([]float64{0, 0})
	assert.True(t, zero.Valid)
	assert.NotEqual(t, empty.Format(2), zero.Format(2))
	assert.False(t, Summarize(nil).Valid)
}

// walkStore has three markers: A fixed, B circling A at radius 1 and C
// one unit above A. B is missing for the first 10 frames.
func walkStore(t *testing.T) *markers.Store {
	t.Helper()
	const n = 60
	s, err := markers.New([]string{"A", "B", "C"}, n, 30)
	require.NoError(t, err)
	for f := 0; f < n; f++ {
		th := float64(f) / 10
		require.NoError(t, s.SetPosition("A", f, r3.Vec{}))
		require.NoError(t, s.SetPosition("C", f, r3.Vec{Y: 1}))
		if f >= 10 {
			require.NoError(t, s.SetPosition("B", f, r3.Vec{X: math.Cos(th), Z: math.Sin(th)}))
		}
	}
	s.SetRestorePoint()
	return s
}

func walkTopology(t *testing.T) skeleton.Topology {
	t.Helper()
	topo, err := skeleton.Lookup("none")
	require.NoError(t, err)
	topo = topo.WithSegment("AB", [2]string{"X", "Y"}, [2]string{"A", "B"})
	topo = topo.WithJoint("BAC", [3]string{"B", "A", "C"})
	return topo
}

func buildWalk(t *testing.T) *Report {
	t.Helper()
	s := walkStore(t)
	mask := outliers.NewMask(s.Markers(), s.NumFrames())
	mask["B"][20] = true
	mask["A"][20] = true
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rep, err := Build(context.Background(), s, mask, walkTopology(t), Options{
		Title:      "walk",
		ExtraPairs: []skeleton.Pair{{A: "A", B: "B"}},
		Workers:    2,
		Clock:      clock,
	})
	require.NoError(t, err)
	return rep
}

func TestBuild(t *testing.T) {
	rep := buildWalk(t)
	ov := rep.Overview
	assert.Equal(t, 3, ov.Markers)
	assert.Equal(t, 60, ov.Frames)
	assert.InDelta(t, 2, ov.Duration, 1e-12)
	assert.Equal(t, []skeleton.Pair{{A: "A", B: "B"}}, ov.Pairs)
	assert.Equal(t, 50, ov.CompleteFrames)
	assert.Equal(t, 2, ov.OutlierFlags)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rep.GeneratedAt)

	require.Len(t, rep.Markers, 3)
	b := rep.Markers[1]
	assert.Equal(t, "B", b.Marker)
	assert.InDelta(t, 50.0/60, b.Completeness, 1e-12)
	assert.Equal(t, 1, b.Outliers)
	// B moves on a unit circle at 3 rad/s.
	assert.InDelta(t, 3, b.Speed.Mean, 0.01)
	assert.InDelta(t, 9, b.Acceleration.Mean, 0.1)
	assert.Equal(t, 0.0, rep.Markers[0].Speed.Max)
	assert.InDelta(t, 1, rep.Markers[2].Coords[markers.Y].Mean, 1e-12)

	require.Len(t, rep.Segments, 1)
	assert.Equal(t, "AB", rep.Segments[0].Segment.Name)
	assert.InDelta(t, 1, rep.Segments[0].Length.Mean, 1e-9)
	assert.Equal(t, 50, rep.Segments[0].Length.Count)
	assert.InDelta(t, 90, rep.Segments[0].Angles[markers.Y].Mean, 1e-9)

	require.Len(t, rep.Joints, 1)
	assert.InDelta(t, 90, rep.Joints[0].Angle.Mean, 1e-9)

	require.NotNil(t, rep.Series)
	assert.InDelta(t, 2.0/3, rep.Series.FrameCompleteness[0], 1e-12)
	assert.Equal(t, 1.0, rep.Series.FrameCompleteness[59])
}

func TestBuild_AllMissingMarker(t *testing.T) {
	s, err := markers.New([]string{"A", "Ghost"}, 10, 30)
	require.NoError(t, err)
	for f := 0; f < 10; f++ {
		require.NoError(t, s.SetPosition("A", f, r3.Vec{X: float64(f)}))
	}
	topo, _ := skeleton.Lookup("none")
	rep, err := Build(context.Background(), s, nil, topo, Options{})
	require.NoError(t, err)
	g := rep.Markers[1]
	assert.Equal(t, "Ghost", g.Marker)
	assert.False(t, g.Speed.Valid)
	assert.False(t, g.Coords[markers.X].Valid)
	assert.Equal(t, 0, g.Outliers)
	assert.Equal(t, 0, rep.Overview.CompleteFrames)
	assert.True(t, rep.Markers[0].Speed.Valid)
}

func TestBuild_UnknownExtraPair(t *testing.T) {
	s := walkStore(t)
	topo, _ := skeleton.Lookup("none")
	_, err := Build(context.Background(), s, nil, topo, Options{ExtraPairs: []skeleton.Pair{{A: "A", B: "Q"}}})
	assert.ErrorIs(t, err, markers.ErrNotFound)
}

func TestWriteJSON(t *testing.T) {
	rep := buildWalk(t)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var back Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, rep.Overview, back.Overview)
	assert.Equal(t, rep.Markers, back.Markers)
	assert.Nil(t, back.Series)
	assert.NotContains(t, buf.String(), "Positions")
}

func TestWriteCSV(t *testing.T) {
	rep := buildWalk(t)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteCSV(&buf))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, CSVHeader, recs[0])
	// 3 markers x 7 rows + 1 segment x 4 rows + 1 joint.
	assert.Len(t, recs, 1+21+4+1)

	var found bool
	for _, r := range recs[1:] {
		if r[1] == "AB" && r[2] == "length" {
			found = true
			assert.Equal(t, "segment", r[0])
			assert.Equal(t, "50", r[3])
		}
	}
	assert.True(t, found)
}

func TestWriteCSV_NoDataCellsEmpty(t *testing.T) {
	s, err := markers.New([]string{"A"}, 3, 30)
	require.NoError(t, err)
	topo, _ := skeleton.Lookup("none")
	rep, err := Build(context.Background(), s, nil, topo, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rep.WriteCSV(&buf))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	for _, r := range recs[1:] {
		if r[2] == "speed" {
			assert.Equal(t, []string{"0", "", "", "", "", ""}, r[3:])
		}
	}
}

func TestWritePlots(t *testing.T) {
	rep := buildWalk(t)
	dir := filepath.Join(t.TempDir(), "plots")
	n, err := rep.WritePlots(dir, PlotSize{Width: 4, Height: 3})
	require.NoError(t, err)
	// 2 per marker, 1 segment, 1 joint, completeness.
	assert.Equal(t, 3*2+1+1+1, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, n)
	_, err = os.Stat(filepath.Join(dir, "marker_B_position.png"))
	assert.NoError(t, err)

	_, err = (&Report{}).WritePlots(dir, DefaultPlotSize)
	assert.Error(t, err)
}

func TestWriteCharts(t *testing.T) {
	rep := buildWalk(t)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteCharts(&buf))
	html := buf.String()
	assert.Contains(t, html, "Marker Speed")
	assert.Contains(t, html, "Joint Angle")
	assert.Contains(t, html, "Marker Footprint")
}

func TestHandler(t *testing.T) {
	rep := buildWalk(t)
	h := Handler(func(r *http.Request) (*Report, error) {
		if r.URL.Query().Get("fail") != "" {
			return nil, markers.ErrNotFound
		}
		return rep, nil
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/report", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/report?fail=1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWritePlots_SanitisesNames(t *testing.T) {
	topo, err := skeleton.Lookup("none")
	require.NoError(t, err)
	topo = topo.WithSegment("Upper/Arm R", [2]string{"A", "B"})
	r, err := Build(context.Background(), walkStore(t), nil, topo, Options{})
	require.NoError(t, err)
	dir := t.TempDir()
	_, err = r.WritePlots(dir, PlotSize{Width: 4, Height: 3})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "segment_Upper_Arm_R_length.png"))
	assert.NoError(t, err)
}
