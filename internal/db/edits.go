package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/session"
)

var _ session.Recorder = (*DB)(nil)

// RecordEdit appends e to the stored history of sessionID. The session row
// must already exist.
func (db *DB) RecordEdit(ctx context.Context, sessionID string, e session.Edit) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM edits WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return err
	}

	var start, end sql.NullInt64
	if e.Range != nil {
		start = sql.NullInt64{Int64: int64(e.Range.Start), Valid: true}
		end = sql.NullInt64{Int64: int64(e.Range.End), Valid: true}
	}
	var params sql.NullString
	if len(e.Params) > 0 {
		params = sql.NullString{String: string(e.Params), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edits (edit_id, session_id, seq, op, marker, range_start, range_end,
			params_json, filled, changed, outliers, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, seq+1, string(e.Op), e.Marker, start, end,
		params, e.Filled, e.Changed, e.Outliers, e.At.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record edit %s for session %s: %w", e.ID, sessionID, err)
	}
	return tx.Commit()
}

// ListEdits returns the stored history of sessionID in the order it was
// applied.
func (db *DB) ListEdits(ctx context.Context, sessionID string) ([]session.Edit, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT edit_id, op, marker, range_start, range_end, params_json,
			filled, changed, outliers, applied_at
		FROM edits WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Edit
	for rows.Next() {
		var (
			e          session.Edit
			op, at     string
			start, end sql.NullInt64
			params     sql.NullString
		)
		if err := rows.Scan(&e.ID, &op, &e.Marker, &start, &end, &params,
			&e.Filled, &e.Changed, &e.Outliers, &at); err != nil {
			return nil, err
		}
		e.Op = session.Op(op)
		if start.Valid && end.Valid {
			e.Range = &markers.Range{Start: int(start.Int64), End: int(end.Int64)}
		}
		if params.Valid {
			e.Params = json.RawMessage(params.String)
		}
		if e.At, err = time.Parse(timeFormat, at); err != nil {
			return nil, fmt.Errorf("edit %s: bad applied_at %q: %w", e.ID, at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
