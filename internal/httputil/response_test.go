package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/marker.studio/internal/markers"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	BadRequest(rec, "bad range")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "bad range" {
		t.Errorf("error = %s, want 'bad range'", resp["error"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"frames": 12})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["frames"] != 12 {
		t.Errorf("frames = %d, want 12", resp["frames"])
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{&markers.NotFoundError{Kind: "marker", Name: "Hip"}, http.StatusNotFound},
		{markers.InvalidParam("order", 0, "must be positive"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", markers.ErrInvalidSelection), http.StatusBadRequest},
		{markers.ErrNoReferencesSelected, http.StatusBadRequest},
		{&markers.NoReferenceDataError{Marker: "Hip"}, http.StatusUnprocessableEntity},
		{markers.ErrInsufficientData, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}

	rec := httptest.NewRecorder()
	WriteError(rec, &markers.NotFoundError{Kind: "marker", Name: "Hip"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("WriteError status = %d, want 404", rec.Code)
	}
}
