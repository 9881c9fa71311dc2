package db

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/repair"
	"github.com/banshee-data/marker.studio/internal/report"
	"github.com/banshee-data/marker.studio/internal/session"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var epoch = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*DB, *timeutil.MockClock) {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "markers.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	clock := timeutil.NewMockClock(epoch)
	db.SetClock(clock)
	return db, clock
}

// testStore holds two markers 0.3 apart moving along X; B misses frames 5..7.
func testStore(t *testing.T) *markers.Store {
	t.Helper()
	s, err := markers.New([]string{"A", "B"}, 20, 60)
	if err != nil {
		t.Fatalf("markers.New: %v", err)
	}
	for f := 0; f < 20; f++ {
		x := 0.02 * float64(f)
		if err := s.SetPosition("A", f, r3.Vec{X: x, Y: 1}); err != nil {
			t.Fatal(err)
		}
		if f >= 5 && f <= 7 {
			continue
		}
		if err := s.SetPosition("B", f, r3.Vec{X: x, Y: 0.7}); err != nil {
			t.Fatal(err)
		}
	}
	s.SetRestorePoint()
	return s
}

func mustNoneTopology(t *testing.T) skeleton.Topology {
	t.Helper()
	topo, err := skeleton.Lookup(skeleton.ModelNone)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return topo
}

func TestCreateAndGetSession(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()
	store := testStore(t)

	rec, err := db.CreateSession(ctx, "s-1", "walk.trc", "", store)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	want := SessionRecord{ID: "s-1", SourcePath: "walk.trc", Model: "none", Markers: 2, Frames: 20, FPS: 60, CreatedAt: epoch}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("CreateSession mismatch (-want +got):\n%s", diff)
	}

	got, err := db.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetSession mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(time.Minute)
	if _, err := db.CreateSession(ctx, "s-2", "run.trc", "BODY_25", store); err != nil {
		t.Fatalf("CreateSession s-2: %v", err)
	}
	list, err := db.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s-2" || list[1].ID != "s-1" {
		t.Fatalf("ListSessions order = %+v, want s-2 then s-1", list)
	}

	if err := db.UpdateSessionModel(ctx, "s-1", "BODY_25"); err != nil {
		t.Fatalf("UpdateSessionModel: %v", err)
	}
	if got, _ := db.GetSession(ctx, "s-1"); got.Model != "BODY_25" {
		t.Errorf("model = %q, want BODY_25", got.Model)
	}
}

func TestSessionErrors(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetSession(ctx, "missing"); !errors.Is(err, markers.ErrNotFound) {
		t.Errorf("GetSession(missing) err = %v, want ErrNotFound", err)
	}
	if err := db.DeleteSession(ctx, "missing"); !errors.Is(err, markers.ErrNotFound) {
		t.Errorf("DeleteSession(missing) err = %v, want ErrNotFound", err)
	}
	if err := db.UpdateSessionModel(ctx, "missing", "none"); !errors.Is(err, markers.ErrNotFound) {
		t.Errorf("UpdateSessionModel(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := db.CreateSession(ctx, "", "", "", testStore(t)); !errors.Is(err, markers.ErrInvalidParameter) {
		t.Errorf("CreateSession(empty id) err = %v, want ErrInvalidParameter", err)
	}
	if _, err := db.CreateSession(ctx, "dup", "", "", testStore(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateSession(ctx, "dup", "", "", testStore(t)); err == nil {
		t.Error("expected duplicate session id to fail")
	}
}

func TestRecordEditsFromSession(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	store := testStore(t)

	s, err := session.New(ctx, store, session.Options{
		Clock:    timeutil.NewMockClock(epoch),
		Recorder: db,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if _, err := db.CreateSession(ctx, s.ID(), "", "", store); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := s.Interpolate(ctx, "B", nil, markers.Whole(20), repair.Params{Method: repair.Linear}); err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if err := s.Delete(ctx, "A", markers.NewRange(3, 4)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, err := db.ListEdits(ctx, s.ID())
	if err != nil {
		t.Fatalf("ListEdits: %v", err)
	}
	if diff := cmp.Diff(s.History(), got); diff != "" {
		t.Errorf("stored edits mismatch (-history +stored):\n%s", diff)
	}
	if len(got) != 3 || got[0].Op != session.OpInterpolate || got[0].Filled != 3 || got[2].Range != nil {
		t.Errorf("unexpected edits: %+v", got)
	}
}

func TestRecordEditUnknownSession(t *testing.T) {
	db, _ := setupTestDB(t)
	err := db.RecordEdit(context.Background(), "nope", session.Edit{ID: "e1", Op: session.OpRestore, At: epoch})
	if err == nil {
		t.Fatal("expected foreign key failure for an unknown session")
	}
	edits, err := db.ListEdits(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 0 {
		t.Errorf("got %d edits, want 0", len(edits))
	}
}

func TestSaveReport(t *testing.T) {
	db, clock := setupTestDB(t)
	ctx := context.Background()
	store := testStore(t)
	if _, err := db.CreateSession(ctx, "s-1", "", "", store); err != nil {
		t.Fatal(err)
	}

	r, err := report.Build(ctx, store, nil, mustNoneTopology(t), report.Options{Title: "walk", Clock: clock})
	if err != nil {
		t.Fatalf("report.Build: %v", err)
	}
	id, err := db.SaveReport(ctx, "s-1", r)
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	reports, err := db.ListReports(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	want := []ReportRecord{{ID: id, SessionID: "s-1", Title: "walk", Model: "none", Frames: 20, GeneratedAt: epoch}}
	if diff := cmp.Diff(want, reports); diff != "" {
		t.Errorf("ListReports mismatch (-want +got):\n%s", diff)
	}

	rows, err := db.ReportRows(ctx, id)
	if err != nil {
		t.Fatalf("ReportRows: %v", err)
	}
	if diff := cmp.Diff(r.Rows(), rows); diff != "" {
		t.Errorf("ReportRows mismatch (-want +got):\n%s", diff)
	}

	back, err := db.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if diff := cmp.Diff(r.Markers, back.Markers); diff != "" {
		t.Errorf("GetReport markers mismatch (-want +got):\n%s", diff)
	}
	if _, err := db.GetReport(ctx, "missing"); !errors.Is(err, markers.ErrNotFound) {
		t.Errorf("GetReport(missing) err = %v, want ErrNotFound", err)
	}

	if err := db.DeleteSession(ctx, "s-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if rows, _ := db.ReportRows(ctx, id); len(rows) != 0 {
		t.Errorf("report rows survived session delete: %d", len(rows))
	}
}

func TestAdminRoutes(t *testing.T) {
	db, _ := setupTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d, body %q", rec.Code, rec.Body.String())
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 16 || string(data[:15]) != "SQLite format 3" {
		t.Errorf("backup does not look like a sqlite file")
	}
}
