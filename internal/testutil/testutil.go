// Package testutil provides shared fixtures and assertions for tests that
// span several packages: a small arm recording, TRC files on disk and HTTP
// response checks.
package testutil

import (
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/trc"
)

// ArmFrames and ArmFPS describe the ArmStore recording.
const (
	ArmFrames = 30
	ArmFPS    = 50
)

// ArmMarkers are the markers of ArmStore, in column order.
var ArmMarkers = []string{"RShoulder", "RElbow", "RWrist"}

// ArmStore returns a straight right arm translating along X at 0.01 per
// frame, with RElbow knocked out to X=0.5 at frame 12. Under BODY_25 the
// spike flags frames 12 and 13 on all three markers.
func ArmStore(t testing.TB) *markers.Store {
	t.Helper()
	s, err := markers.New(ArmMarkers, ArmFrames, ArmFPS)
	AssertNoError(t, err)
	for f := 0; f < ArmFrames; f++ {
		x := 0.01 * float64(f)
		AssertNoError(t, s.SetPosition("RShoulder", f, r3.Vec{X: x, Y: 1.5}))
		AssertNoError(t, s.SetPosition("RElbow", f, r3.Vec{X: x, Y: 1.2}))
		AssertNoError(t, s.SetPosition("RWrist", f, r3.Vec{X: x, Y: 0.9}))
	}
	AssertNoError(t, s.SetPosition("RElbow", 12, r3.Vec{X: 0.5, Y: 1.2}))
	s.SetRestorePoint()
	return s
}

// WriteTRC writes store as dir/name and returns the full path.
func WriteTRC(t testing.TB, dir, name string, store *markers.Store) string {
	t.Helper()
	path := filepath.Join(dir, name)
	AssertNoError(t, trc.WriteFile(path, store, "m"))
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// DecodeJSON decodes r into v, failing the test on error.
func DecodeJSON(t testing.TB, r io.Reader, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}
