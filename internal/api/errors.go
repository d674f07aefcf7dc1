// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/geo"
	"github.com/terralab/geoproc/internal/jobs"
	"github.com/terralab/geoproc/internal/shapefile"
	"github.com/terralab/geoproc/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeGeoJSON writes pre-encoded GeoJSON bytes.
func writeGeoJSON(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// writeError writes an error response with a stable two-field shape: a
// machine-readable label derived from the status code and a human-readable
// detail.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{
		"error":  errorLabel(code),
		"detail": message,
	})
}

func errorLabel(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// writeOperationError maps pipeline errors onto HTTP status codes. Bad
// input is the client's fault, an empty result is a 404 and everything
// else is a processing failure.
func writeOperationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geo.ErrEmptyResult):
		writeError(w, http.StatusNotFound, "operation resulted in an empty geometry")
	case errors.Is(err, geo.ErrUnknownOperation),
		errors.Is(err, geo.ErrSecondInputRequired),
		errors.Is(err, geo.ErrInvalidGeoJSON),
		errors.Is(err, geo.ErrNoPolygonalInput),
		errors.Is(err, geo.ErrNegativeBufferInput),
		errors.Is(err, shapefile.ErrNoShapefile),
		errors.Is(err, shapefile.ErrBadArchive),
		errors.Is(err, jobs.ErrDatasetMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, store.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, "processing failed: "+err.Error())
	}
}
