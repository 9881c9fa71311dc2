package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/security"
)

// PlotSize is the PNG page size in inches.
type PlotSize struct {
	Width, Height float64
}

// DefaultPlotSize matches the tuning defaults.
var DefaultPlotSize = PlotSize{Width: 14, Height: 6}

// curve is one named line on a plot.
type curve struct {
	label string
	y     []float64
}

// WritePlots renders PNG time-series plots into dir: one position and one
// speed/acceleration plot per marker, one length plot per segment, one angle
// plot per joint and a frame completeness plot. It returns the number of
// files written.
func (r *Report) WritePlots(dir string, size PlotSize) (int, error) {
	if r.Series == nil {
		return 0, fmt.Errorf("report has no series")
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = DefaultPlotSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}
	s := r.Series
	count := 0
	save := func(name, title, ylabel string, curves ...curve) error {
		p, err := timePlot(title, ylabel, s.FPS, curves)
		if err != nil {
			return err
		}
		file := filepath.Join(dir, security.SanitizeFilename(name)+".png")
		if err := p.Save(vg.Length(size.Width)*vg.Inch, vg.Length(size.Height)*vg.Inch, file); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		count++
		return nil
	}

	for _, ms := range s.Markers {
		track := s.Positions[ms.Marker]
		var axes [3]curve
		for _, a := range markers.Axes {
			axes[a] = curve{label: a.String(), y: make([]float64, len(track))}
		}
		for f, p := range track {
			axes[markers.X].y[f], axes[markers.Y].y[f], axes[markers.Z].y[f] = p.X, p.Y, p.Z
		}
		if err := save("marker_"+ms.Marker+"_position", ms.Marker+" - Position", "Position", axes[:]...); err != nil {
			return count, err
		}
		if err := save("marker_"+ms.Marker+"_kinematics", ms.Marker+" - Speed and Acceleration", "Magnitude",
			curve{"speed", ms.Speed}, curve{"acceleration", ms.AccelNorm}); err != nil {
			return count, err
		}
	}
	for _, ss := range s.Segments {
		if err := save("segment_"+ss.Segment.Name+"_length", ss.Segment.Name+" - Length", "Length",
			curve{ss.Segment.A + "-" + ss.Segment.B, ss.Length}); err != nil {
			return count, err
		}
	}
	for _, js := range s.Joints {
		if err := save("joint_"+js.Joint.Name+"_angle", js.Joint.Name+" - Angle", "Angle (deg)",
			curve{js.Joint.A + "-" + js.Joint.B + "-" + js.Joint.C, js.Angle}); err != nil {
			return count, err
		}
	}
	if err := save("completeness", "Frame Completeness", "Fraction of markers",
		curve{"complete", s.FrameCompleteness}); err != nil {
		return count, err
	}
	return count, nil
}

// timePlot draws each curve against time in seconds. Missing samples break
// the line instead of being joined across.
func timePlot(title, ylabel string, fps float64, curves []curve) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = ylabel

	colors := generateColors(len(curves))
	for i, c := range curves {
		first := true
		for _, pts := range finiteRuns(c.y, fps) {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			if first {
				p.Legend.Add(c.label, line)
				first = false
			}
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func finiteRuns(y []float64, fps float64) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for f, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: float64(f) / fps, Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// generateColors creates a palette of distinct colors for plot lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
