package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/marker.studio/internal/markers"
)

// WriteJSON writes the report summaries as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// CSVHeader is the column layout written by WriteCSV.
var CSVHeader = []string{"section", "name", "metric", "count", "mean", "std", "min", "max", "range"}

// Row is one flattened summary line of a report.
type Row struct {
	Section string
	Name    string
	Metric  string
	Summary Summary
}

// Rows flattens the report into one row per summarised quantity. Marker
// completeness and outlier counts are emitted as single-value rows.
func (r *Report) Rows() []Row {
	var rows []Row
	single := func(section, name, metric string, v float64) Row {
		return Row{section, name, metric, Summary{Count: 1, Mean: v, Min: v, Max: v, Valid: true}}
	}
	for _, m := range r.Markers {
		rows = append(rows,
			single("marker", m.Marker, "completeness", m.Completeness),
			single("marker", m.Marker, "outliers", float64(m.Outliers)),
		)
		for _, a := range markers.Axes {
			rows = append(rows, Row{"marker", m.Marker, "position_" + a.String(), m.Coords[a]})
		}
		rows = append(rows,
			Row{"marker", m.Marker, "speed", m.Speed},
			Row{"marker", m.Marker, "acceleration", m.Acceleration},
		)
	}
	for _, s := range r.Segments {
		rows = append(rows, Row{"segment", s.Segment.Name, "length", s.Length})
		for _, a := range markers.Axes {
			rows = append(rows, Row{"segment", s.Segment.Name, "angle_" + a.String(), s.Angles[a]})
		}
	}
	for _, j := range r.Joints {
		rows = append(rows, Row{"joint", j.Joint.Name, "angle", j.Angle})
	}
	return rows
}

// WriteCSV writes the summary tables as CSV. Summaries without data leave
// their numeric cells empty.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }
	for _, row := range r.Rows() {
		rec := []string{row.Section, row.Name, row.Metric, strconv.Itoa(row.Summary.Count), "", "", "", "", ""}
		if s := row.Summary; s.Valid {
			rec[4], rec[5], rec[6], rec[7], rec[8] = f(s.Mean), f(s.Std), f(s.Min), f(s.Max), f(s.Range)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write %s %s: %w", row.Name, row.Metric, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
