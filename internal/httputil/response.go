// Package httputil holds the JSON response helpers shared by the HTTP
// handlers, including the mapping from engine errors to status codes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
)

// WriteJSONError writes {"error": msg} with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteJSON writes data as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a 200 JSON response.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// StatusFor maps an engine error to an HTTP status. Validation failures are
// the caller's fault; missing data is unprocessable rather than malformed.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, markers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, markers.ErrInvalidParameter),
		errors.Is(err, markers.ErrInvalidSelection),
		errors.Is(err, markers.ErrNoReferencesSelected):
		return http.StatusBadRequest
	case errors.Is(err, markers.ErrInsufficientData),
		errors.Is(err, markers.ErrNoReferenceData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err with the status chosen by StatusFor.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSONError(w, StatusFor(err), err.Error())
}
