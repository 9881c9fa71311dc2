package report

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// EChartsAssetsHost is where rendered pages load the echarts runtime from.
var EChartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// maxChartPoints caps the samples per series so pages stay small.
const maxChartPoints = 4000

// WriteCharts renders an HTML page of interactive charts: marker speed and
// acceleration over time, frame completeness, segment lengths, joint angles
// and a top-down footprint of every marker in Z-up coordinates.
func (r *Report) WriteCharts(w io.Writer) error {
	if r.Series == nil {
		return fmt.Errorf("report has no series")
	}
	s := r.Series
	n := len(s.FrameCompleteness)
	stride := 1
	if n > maxChartPoints {
		stride = int(math.Ceil(float64(n) / float64(maxChartPoints)))
	}
	xs := make([]string, 0, n/stride+1)
	for f := 0; f < n; f += stride {
		xs = append(xs, strconv.FormatFloat(float64(f)/s.FPS, 'f', 3, 64))
	}
	lineData := func(y []float64) []opts.LineData {
		out := make([]opts.LineData, 0, len(xs))
		for f := 0; f < len(y); f += stride {
			if math.IsNaN(y[f]) || math.IsInf(y[f], 0) {
				// echarts treats "-" as an empty point and breaks the line.
				out = append(out, opts.LineData{Value: "-"})
				continue
			}
			out = append(out, opts.LineData{Value: y[f]})
		}
		return out
	}
	newLine := func(title, ylabel string) *charts.Line {
		l := charts.NewLine()
		l.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: EChartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: title, Subtitle: r.Overview.Title}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Name: ylabel}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		)
		l.SetXAxis(xs)
		return l
	}

	page := components.NewPage()
	page.SetAssetsHost(EChartsAssetsHost)
	page.PageTitle = "Marker report"

	speed := newLine("Marker Speed", "Speed")
	accel := newLine("Marker Acceleration", "Acceleration")
	for _, ms := range s.Markers {
		speed.AddSeries(ms.Marker, lineData(ms.Speed))
		accel.AddSeries(ms.Marker, lineData(ms.AccelNorm))
	}
	completeness := newLine("Frame Completeness", "Fraction of markers")
	completeness.AddSeries("complete", lineData(s.FrameCompleteness))
	page.AddCharts(speed, accel, completeness)

	if len(s.Segments) > 0 {
		lengths := newLine("Segment Length", "Length")
		for _, ss := range s.Segments {
			lengths.AddSeries(ss.Segment.Name, lineData(ss.Length))
		}
		page.AddCharts(lengths)
	}
	if len(s.Joints) > 0 {
		angles := newLine("Joint Angle", "Angle (deg)")
		for _, js := range s.Joints {
			angles.AddSeries(js.Joint.Name, lineData(js.Angle))
		}
		page.AddCharts(angles)
	}

	footprint := charts.NewScatter()
	footprint.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "900px", AssetsHost: EChartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Marker Footprint (Z-up, top view)", Subtitle: r.Overview.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	for _, name := range slices.Sorted(maps.Keys(s.Positions)) {
		track := s.Positions[name]
		pts := make([]opts.ScatterData, 0, len(track)/stride+1)
		for f := 0; f < len(track); f += stride {
			if !markers.IsValid(track[f]) {
				continue
			}
			p := markers.YUpToZUp(track[f])
			pts = append(pts, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		footprint.AddSeries(name, pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	}
	page.AddCharts(footprint)

	return page.Render(w)
}

// Handler serves the charts page of the report returned by build.
func Handler(build func(*http.Request) (*Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := build(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var buf bytes.Buffer
		if err := rep.WriteCharts(&buf); err != nil {
			http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}
