package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/marker.studio/internal/config"
	"github.com/banshee-data/marker.studio/internal/db"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/report"
	"github.com/banshee-data/marker.studio/internal/session"
	"github.com/banshee-data/marker.studio/internal/testutil"
	"github.com/banshee-data/marker.studio/internal/timeutil"
	"github.com/banshee-data/marker.studio/internal/trc"
)

func init() {
	monitoring.SetLogger(nil)
}

type testServer struct {
	srv *Server
	mux http.Handler
	db  *db.DB
}

func newTestServer(t *testing.T, persist bool) *testServer {
	t.Helper()
	dataDir := t.TempDir()
	testutil.WriteTRC(t, dataDir, "arm.trc", testutil.ArmStore(t))

	var database *db.DB
	if persist {
		var err error
		database, err = db.NewDB(filepath.Join(t.TempDir(), "sessions.db"))
		testutil.AssertNoError(t, err)
		t.Cleanup(func() { database.Close() })
	}
	srv := NewServer(config.EmptyTuningConfig(), database, dataDir)
	clock := timeutil.NewMockClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	srv.SetClock(clock)
	return &testServer{srv: srv, mux: LoggingMiddleware(srv.ServeMux(), clock), db: database}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) open(t *testing.T) sessionInfo {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", `{"path": "arm.trc", "model": "BODY_25"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusCreated)
	var info sessionInfo
	testutil.DecodeJSON(t, rec.Body, &info)
	return info
}

func TestOpenSession(t *testing.T) {
	ts := newTestServer(t, false)
	info := ts.open(t)

	if info.ID == "" || info.Model != "BODY_25" || info.Frames != testutil.ArmFrames || info.FPS != testutil.ArmFPS {
		t.Fatalf("unexpected session info: %+v", info)
	}
	if len(info.Pairs) != 2 {
		t.Errorf("pairs = %v, want 2", info.Pairs)
	}
	if info.OutlierFlags != 6 {
		t.Errorf("outlier flags = %d, want 6", info.OutlierFlags)
	}

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+info.ID+"/outliers", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var out struct {
		Total   int              `json:"total"`
		Markers map[string][]int `json:"markers"`
	}
	testutil.DecodeJSON(t, rec.Body, &out)
	if out.Total != 6 || len(out.Markers["RElbow"]) != 2 || out.Markers["RElbow"][0] != 12 {
		t.Errorf("outliers = %+v", out)
	}
}

func TestOpenSession_Errors(t *testing.T) {
	ts := newTestServer(t, false)
	tests := []struct {
		body string
		want int
	}{
		{`{"path": "../arm.trc"}`, http.StatusBadRequest},
		{`{"path": ""}`, http.StatusBadRequest},
		{`{"path": "arm.trc", "model": "MOCAP_9000"}`, http.StatusNotFound},
		{`{"path": "missing.trc"}`, http.StatusInternalServerError},
		{`{"path": "arm.trc", "colour": "red"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		rec := ts.do(t, http.MethodPost, "/api/sessions", tc.body)
		if rec.Code != tc.want {
			t.Errorf("POST %s: status %d, want %d (%s)", tc.body, rec.Code, tc.want, rec.Body.String())
		}
	}
	if ids := ts.srv.IDs(); len(ids) != 0 {
		t.Errorf("failed opens left sessions: %v", ids)
	}

	rec := ts.do(t, http.MethodGet, "/api/sessions/nope", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestEditFlow(t *testing.T) {
	ts := newTestServer(t, true)
	info := ts.open(t)
	base := "/api/sessions/" + info.ID

	rec := ts.do(t, http.MethodPost, base+"/delete", `{"marker": "RElbow", "start": 12, "end": 12}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var edit session.Edit
	testutil.DecodeJSON(t, rec.Body, &edit)
	if edit.Op != session.OpDelete || edit.Changed != 1 || edit.Outliers != 0 {
		t.Errorf("delete edit = %+v", edit)
	}

	rec = ts.do(t, http.MethodPost, base+"/interpolate", `{"marker": "RElbow", "start": 13, "end": 11, "method": "linear"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	testutil.DecodeJSON(t, rec.Body, &edit)
	if edit.Op != session.OpInterpolate || edit.Filled != 1 {
		t.Errorf("interpolate edit = %+v", edit)
	}

	rec = ts.do(t, http.MethodPost, base+"/filter", `{"marker": "RWrist", "kind": "median", "median": {"kernel_size": 3}}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = ts.do(t, http.MethodPost, base+"/pairs", `{"a": "RShoulder", "b": "RWrist"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = ts.do(t, http.MethodPost, base+"/model", `{"model": "none"}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	stored, err := ts.db.GetSession(context.Background(), info.ID)
	testutil.AssertNoError(t, err)
	if stored.Model != "none" {
		t.Errorf("stored model = %q, want none", stored.Model)
	}

	rec = ts.do(t, http.MethodPost, base+"/restore", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	rec = ts.do(t, http.MethodGet, base+"/edits", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var edits []session.Edit
	testutil.DecodeJSON(t, rec.Body, &edits)
	var ops []string
	for _, e := range edits {
		ops = append(ops, string(e.Op))
	}
	if got := strings.Join(ops, ","); got != "delete,interpolate,filter,add_pair,set_model,restore" {
		t.Errorf("stored ops = %s", got)
	}
}

func TestEditErrors(t *testing.T) {
	ts := newTestServer(t, false)
	base := "/api/sessions/" + ts.open(t).ID

	tests := []struct {
		path, body string
		want       int
	}{
		{"/delete", `{"marker": "Nose", "start": 0, "end": 1}`, http.StatusNotFound},
		{"/delete", `{"marker": "RElbow", "start": 0}`, http.StatusBadRequest},
		{"/delete", `{"marker": "RElbow", "start": 0, "end": 99}`, http.StatusBadRequest},
		{"/interpolate", `{"marker": "RElbow", "method": "spline"}`, http.StatusOK},
		{"/interpolate", `{"marker": "RElbow", "method": "spline", "order": 9}`, http.StatusBadRequest},
		{"/interpolate", `{"marker": "RElbow", "method": "warp"}`, http.StatusBadRequest},
		{"/interpolate", `{"marker": "RElbow", "axes": "XW"}`, http.StatusNotFound},
		{"/pattern", `{"marker": "RElbow", "references": []}`, http.StatusBadRequest},
		{"/pattern", `{"marker": "RElbow", "references": ["RElbow"]}`, http.StatusBadRequest},
		{"/filter", `{"marker": "RElbow", "kind": "wavelet"}`, http.StatusBadRequest},
		{"/filter", `{"marker": "RElbow", "butterworth": {"order": 4, "cut_off_frequency": 40}}`, http.StatusBadRequest},
		{"/pairs", `{"a": "RElbow", "b": "RElbow"}`, http.StatusBadRequest},
		{"/model", `{"model": "MOCAP_9000"}`, http.StatusNotFound},
	}
	for _, tc := range tests {
		rec := ts.do(t, http.MethodPost, base+tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("POST %s %s: status %d, want %d (%s)", tc.path, tc.body, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestEditAppliedWhenHistoryWriteFails(t *testing.T) {
	ts := newTestServer(t, true)
	info := ts.open(t)
	base := "/api/sessions/" + info.ID
	testutil.AssertNoError(t, ts.db.Close())

	rec := ts.do(t, http.MethodPost, base+"/delete", `{"marker": "RWrist", "start": 3, "end": 4}`)
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if got := rec.Header().Get("X-Edit-Persisted"); got != "false" {
		t.Errorf("X-Edit-Persisted = %q, want false", got)
	}
	var edit session.Edit
	testutil.DecodeJSON(t, rec.Body, &edit)
	if edit.Op != session.OpDelete || edit.Changed != 2 {
		t.Errorf("edit = %+v", edit)
	}

	sess, err := ts.srv.lookup(info.ID)
	testutil.AssertNoError(t, err)
	if sess.sess.Store().HasValue("RWrist", 3) {
		t.Error("delete was not applied")
	}
}

func TestReportAndExport(t *testing.T) {
	ts := newTestServer(t, true)
	info := ts.open(t)
	base := "/api/sessions/" + info.ID

	rec := ts.do(t, http.MethodGet, base+"/report?save=1", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var rep report.Report
	testutil.DecodeJSON(t, rec.Body, &rep)
	if rep.Overview.Title != "arm.trc" || rep.Overview.OutlierFlags != 6 || len(rep.Markers) != 3 {
		t.Errorf("report overview = %+v", rep.Overview)
	}
	id := rec.Header().Get("X-Report-ID")
	if id == "" {
		t.Fatal("saved report has no ID")
	}
	rows, err := ts.db.ReportRows(context.Background(), id)
	testutil.AssertNoError(t, err)
	if len(rows) == 0 {
		t.Error("no report rows stored")
	}

	rec = ts.do(t, http.MethodGet, base+"/report?format=csv&title=Arm+trial", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.HasPrefix(rec.Body.String(), "section,name,metric") {
		t.Errorf("csv body starts %q", rec.Body.String()[:20])
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Arm_trial_report.csv") {
		t.Errorf("content disposition = %q", cd)
	}

	rec = ts.do(t, http.MethodGet, base+"/report?format=xml", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = ts.do(t, http.MethodGet, base+"/charts", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "Marker Speed") {
		t.Error("charts page missing speed chart")
	}

	rec = ts.do(t, http.MethodGet, base+"/export", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	f, err := trc.Read(bytes.NewReader(rec.Body.Bytes()))
	testutil.AssertNoError(t, err)
	if !f.Store.Equal(testutil.ArmStore(t)) {
		t.Error("exported TRC differs from the loaded data")
	}

	rec = ts.do(t, http.MethodGet, base+"/export?units=MM", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	f, err = trc.Read(bytes.NewReader(rec.Body.Bytes()))
	testutil.AssertNoError(t, err)
	p, err := f.Store.Position("RShoulder", 0)
	testutil.AssertNoError(t, err)
	if f.Units != "mm" || math.Abs(p.Y-1500) > 1e-6 {
		t.Errorf("export in mm: units %q, RShoulder %v", f.Units, p)
	}

	rec = ts.do(t, http.MethodGet, base+"/export?units=in", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestListAndClose(t *testing.T) {
	ts := newTestServer(t, true)
	info := ts.open(t)

	rec := ts.do(t, http.MethodGet, "/api/sessions", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var list struct {
		Open   []string           `json:"open"`
		Stored []db.SessionRecord `json:"stored"`
	}
	testutil.DecodeJSON(t, rec.Body, &list)
	if len(list.Open) != 1 || list.Open[0] != info.ID || len(list.Stored) != 1 || list.Stored[0].SourcePath != "arm.trc" {
		t.Errorf("list = %+v", list)
	}

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+info.ID, "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNoContent)
	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+info.ID, "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestModelsAndConfig(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(t, http.MethodGet, "/api/models", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var models map[string][]string
	testutil.DecodeJSON(t, rec.Body, &models)
	if models["models"][0] != "none" || len(models["filters"]) != 5 {
		t.Errorf("models = %v", models)
	}

	rec = ts.do(t, http.MethodGet, "/api/config", "")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var cfg map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["persisted"] != false || cfg["default_filter"] != "butterworth" {
		t.Errorf("config = %v", cfg)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(250 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}), clock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
	if len(lines) != 1 {
		t.Fatalf("logged %d lines, want 1", len(lines))
	}
	if !strings.Contains(lines[0], "/api/models") || !strings.Contains(lines[0], " 250ms") || !strings.Contains(lines[0], "418") {
		t.Errorf("log line = %q", lines[0])
	}
}
