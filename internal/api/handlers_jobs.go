// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/terralab/geoproc/internal/jobs"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/store"
)

// jobResponse is the wire shape of a job record.
type jobResponse struct {
	ID           string     `json:"id"`
	Operation    string     `json:"operation"`
	State        string     `json:"state"`
	DatasetA     string     `json:"dataset_a"`
	DatasetB     string     `json:"dataset_b,omitempty"`
	FeatureCount int        `json:"feature_count,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(j store.Job) jobResponse {
	resp := jobResponse{
		ID:           j.ID,
		Operation:    j.Operation,
		State:        string(j.State),
		DatasetA:     j.DatasetA,
		DatasetB:     j.DatasetB,
		FeatureCount: j.FeatureCount,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		resp.StartedAt = &j.StartedAt
	}
	if !j.FinishedAt.IsZero() {
		resp.FinishedAt = &j.FinishedAt
	}
	return resp
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var params jobs.Params
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job request: "+err.Error())
		return
	}

	j, err := s.runner.Submit(r.Context(), params)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "job.submitted").
		Str(log.FieldJobID, j.ID).
		Str(log.FieldOperation, j.Operation).
		Msg("job accepted")

	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	state := store.JobState(r.URL.Query().Get("state"))
	switch state {
	case "", store.JobQueued, store.JobRunning, store.JobSucceeded, store.JobFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown job state")
		return
	}

	list, err := s.store.ListJobs(r.Context(), state, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]jobResponse, 0, len(list))
	for _, j := range list {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// handleJobResult streams the GeoJSON a finished job produced. There is
// no result until the job succeeds, so every other state reads as 404.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	j, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	switch j.State {
	case store.JobSucceeded:
	case store.JobFailed:
		writeError(w, http.StatusNotFound, "job failed: "+j.Error)
		return
	default:
		writeError(w, http.StatusNotFound, "job not finished")
		return
	}

	payload, err := s.blobs.Get(j.ResultKey)
	if err != nil {
		writeError(w, http.StatusNotFound, "result expired or missing")
		return
	}
	writeGeoJSON(w, http.StatusOK, payload)
}
