package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/report"
)

// ReportRecord is the header of a stored report.
type ReportRecord struct {
	ID           string    `json:"report_id"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	Frames       int       `json:"frames"`
	OutlierFlags int       `json:"outlier_flags"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// SaveReport stores r under sessionID, both as a JSON document and as one
// report_rows line per summarised quantity. It returns the new report ID.
func (db *DB) SaveReport(ctx context.Context, sessionID string, r *report.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("save report: nil report")
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = db.clock.Now()
	}
	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (report_id, session_id, title, model, frames, outlier_flags, generated_at, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, r.Overview.Title, r.Overview.Model, r.Overview.Frames,
		r.Overview.OutlierFlags, generated.UTC().Format(timeFormat), string(doc))
	if err != nil {
		return "", fmt.Errorf("save report for session %s: %w", sessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_rows (report_id, section, name, metric, count, mean, std, min, max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for _, row := range r.Rows() {
		s := row.Summary
		if _, err := stmt.ExecContext(ctx, id, row.Section, row.Name, row.Metric, s.Count,
			nullFloat(s.Valid, s.Mean), nullFloat(s.Valid, s.Std),
			nullFloat(s.Valid, s.Min), nullFloat(s.Valid, s.Max)); err != nil {
			return "", fmt.Errorf("save report row %s/%s/%s: %w", row.Section, row.Name, row.Metric, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func nullFloat(valid bool, v float64) sql.NullFloat64 {
	if !valid || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// ListReports returns the report headers of sessionID, newest first.
func (db *DB) ListReports(ctx context.Context, sessionID string) ([]ReportRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT report_id, session_id, title, model, frames, outlier_flags, generated_at
		FROM reports WHERE session_id = ? ORDER BY generated_at DESC, report_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var (
			rec ReportRecord
			at  string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Title, &rec.Model, &rec.Frames, &rec.OutlierFlags, &at); err != nil {
			return nil, err
		}
		if rec.GeneratedAt, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("report %s: bad generated_at %q: %w", rec.ID, at, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetReport decodes a stored report document. The returned report carries
// no chart series.
func (db *DB) GetReport(ctx context.Context, reportID string) (*report.Report, error) {
	var doc string
	err := db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE report_id = ?`, reportID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &markers.NotFoundError{Kind: "report", Name: reportID}
	}
	if err != nil {
		return nil, err
	}
	var r report.Report
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", reportID, err)
	}
	return &r, nil
}

// ReportRows returns the flattened summary rows of a stored report in
// insertion order. Summaries stored without data come back with Valid unset.
func (db *DB) ReportRows(ctx context.Context, reportID string) ([]report.Row, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT section, name, metric, count, mean, std, min, max
		FROM report_rows WHERE report_id = ? ORDER BY rowid`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []report.Row
	for rows.Next() {
		var (
			row                report.Row
			mean, std, lo, hi sql.NullFloat64
		)
		if err := rows.Scan(&row.Section, &row.Name, &row.Metric, &row.Summary.Count, &mean, &std, &lo, &hi); err != nil {
			return nil, err
		}
		if mean.Valid {
			row.Summary.Mean = mean.Float64
			row.Summary.Std = std.Float64
			row.Summary.Min = lo.Float64
			row.Summary.Max = hi.Float64
			row.Summary.Range = hi.Float64 - lo.Float64
			row.Summary.Valid = true
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
