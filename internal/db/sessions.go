package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/skeleton"
)

// SessionRecord is the persisted header of an editing session.
type SessionRecord struct {
	ID         string    `json:"session_id"`
	SourcePath string    `json:"source_path"`
	Model      string    `json:"model"`
	Markers    int       `json:"markers"`
	Frames     int       `json:"frames"`
	FPS        float64   `json:"fps"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateSession stores the header of a session over store. id is normally
// the session's own ID so edits recorded by it attach here.
func (db *DB) CreateSession(ctx context.Context, id, sourcePath, model string, store *markers.Store) (SessionRecord, error) {
	if id == "" {
		return SessionRecord{}, fmt.Errorf("create session: %w", markers.InvalidParam("session_id", id, "must not be empty"))
	}
	if store == nil {
		return SessionRecord{}, fmt.Errorf("create session: nil store")
	}
	if model == "" {
		model = skeleton.ModelNone
	}
	rec := SessionRecord{
		ID:         id,
		SourcePath: sourcePath,
		Model:      model,
		Markers:    len(store.Markers()),
		Frames:     store.NumFrames(),
		FPS:        store.FPS(),
		CreatedAt:  db.clock.Now().UTC(),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, source_path, model, markers, frames, fps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourcePath, rec.Model, rec.Markers, rec.Frames, rec.FPS, rec.CreatedAt.Format(timeFormat))
	if err != nil {
		return SessionRecord{}, fmt.Errorf("create session %s: %w", id, err)
	}
	return rec, nil
}

// UpdateSessionModel records a model switch on an existing session.
func (db *DB) UpdateSessionModel(ctx context.Context, id, model string) error {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET model = ? WHERE session_id = ?`, model, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &markers.NotFoundError{Kind: "session", Name: id}
	}
	return nil
}

// GetSession loads one session header.
func (db *DB) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	row := db.QueryRowContext(ctx, `
		SELECT session_id, source_path, model, markers, frames, fps, created_at
		FROM sessions WHERE session_id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, &markers.NotFoundError{Kind: "session", Name: id}
	}
	return rec, err
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, source_path, model, markers, frames, fps, created_at
		FROM sessions ORDER BY created_at DESC, session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session with its edits and reports.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &markers.NotFoundError{Kind: "session", Name: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(s rowScanner) (SessionRecord, error) {
	var (
		rec     SessionRecord
		created string
	)
	if err := s.Scan(&rec.ID, &rec.SourcePath, &rec.Model, &rec.Markers, &rec.Frames, &rec.FPS, &created); err != nil {
		return SessionRecord{}, err
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("session %s: bad created_at %q: %w", rec.ID, created, err)
	}
	rec.CreatedAt = t
	return rec, nil
}
