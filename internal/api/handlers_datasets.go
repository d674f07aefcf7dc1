// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/geo"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/metrics"
	"github.com/terralab/geoproc/internal/store"
)

// datasetResponse is the wire shape of dataset metadata.
type datasetResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Format       string    `json:"format"`
	SizeBytes    int64     `json:"size_bytes"`
	FeatureCount int       `json:"feature_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDatasetResponse(d store.Dataset) datasetResponse {
	return datasetResponse{
		ID:           d.ID,
		Name:         d.Name,
		Format:       string(d.Format),
		SizeBytes:    d.SizeBytes,
		FeatureCount: d.FeatureCount,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// zipMagic is the local file header signature of a zip archive.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ingestDataset normalizes an upload to GeoJSON. Zip archives are treated
// as zipped shapefiles, everything else must parse as GeoJSON.
func (s *Server) ingestDataset(payload []byte) ([]byte, store.DatasetFormat, int, error) {
	if bytes.HasPrefix(payload, zipMagic) {
		fc, err := s.readShapefile(payload)
		if err != nil {
			return nil, "", 0, err
		}
		encoded, err := geo.EncodeCollection(fc)
		if err != nil {
			return nil, "", 0, err
		}
		return encoded, store.FormatShapefile, len(fc.Features), nil
	}

	fc, err := geo.DecodeCollection(payload)
	if err != nil {
		return nil, "", 0, err
	}
	encoded, err := geo.EncodeCollection(fc)
	if err != nil {
		return nil, "", 0, err
	}
	return encoded, store.FormatGeoJSON, len(fc.Features), nil
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		writeMultipartError(w, err)
		return
	}

	payload, err := readUpload(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	encoded, format, featureCount, err := s.ingestDataset(payload)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = "dataset"
	}

	id := uuid.New().String()
	key := blob.DatasetPrefix + id
	if err := s.blobs.Put(key, encoded); err != nil {
		writeError(w, http.StatusInternalServerError, "store payload: "+err.Error())
		return
	}

	now := time.Now()
	d := store.Dataset{
		ID:           id,
		Name:         name,
		Format:       format,
		BlobKey:      key,
		SizeBytes:    int64(len(encoded)),
		FeatureCount: featureCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertDataset(r.Context(), d); err != nil {
		_ = s.blobs.Delete(key)
		writeError(w, http.StatusInternalServerError, "store dataset: "+err.Error())
		return
	}

	s.updateDatasetGauge(r)
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "dataset.created").
		Str(log.FieldDatasetID, id).
		Str("format", string(format)).
		Int(log.FieldFeatures, featureCount).
		Msg("dataset stored")

	writeJSON(w, http.StatusCreated, toDatasetResponse(d))
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]datasetResponse, 0, len(datasets))
	for _, d := range datasets {
		out = append(out, toDatasetResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(d))
}

func (s *Server) handleDownloadDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	payload, err := s.blobs.Get(d.BlobKey)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeGeoJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReplaceDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.store.GetDataset(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	if err := s.parseMultipart(w, r); err != nil {
		writeMultipartError(w, err)
		return
	}
	payload, err := readUpload(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	encoded, format, featureCount, err := s.ingestDataset(payload)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	if err := s.blobs.Put(d.BlobKey, encoded); err != nil {
		writeError(w, http.StatusInternalServerError, "store payload: "+err.Error())
		return
	}

	if name := r.FormValue("name"); name != "" {
		d.Name = name
	}
	d.Format = format
	d.SizeBytes = int64(len(encoded))
	d.FeatureCount = featureCount
	d.UpdatedAt = time.Now()

	if err := s.store.UpdateDataset(r.Context(), d); err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(d))
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.store.GetDataset(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	if err := s.store.DeleteDataset(r.Context(), id); err != nil {
		writeOperationError(w, err)
		return
	}
	_ = s.blobs.Delete(d.BlobKey)

	s.updateDatasetGauge(r)
	w.WriteHeader(http.StatusNoContent)
}

// handleExportDataset writes the dataset payload atomically into the
// exports directory, so a crash mid-write never leaves a torn file.
func (s *Server) handleExportDataset(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	payload, err := s.blobs.Get(d.BlobKey)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	exportDir := filepath.Join(s.holder.Current().DataDir, "exports")
	if err := os.MkdirAll(exportDir, 0o750); err != nil {
		writeError(w, http.StatusInternalServerError, "create export dir: "+err.Error())
		return
	}

	path := filepath.Join(exportDir, d.ID+".geojson")
	if err := renameio.WriteFile(path, payload, 0o640); err != nil {
		writeError(w, http.StatusInternalServerError, "write export: "+err.Error())
		return
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "dataset.exported").
		Str(log.FieldDatasetID, d.ID).
		Str(log.FieldPath, path).
		Msg("dataset exported")

	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) updateDatasetGauge(r *http.Request) {
	count, err := s.store.CountDatasets(r.Context())
	if err != nil {
		logger := log.FromContext(r.Context())
		logger.Warn().Err(err).Msg("cannot count datasets")
		return
	}
	metrics.SetDatasetsStored(count)
}
