// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/terralab/geoproc/internal/cache"
	"github.com/terralab/geoproc/internal/geo"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/metrics"
	"github.com/terralab/geoproc/internal/shapefile"
)

// headerCRS reports the projected CRS an operation was computed in.
const headerCRS = "X-Geoproc-Crs"

// headerCache reports whether a result came from the cache.
const headerCache = "X-Geoproc-Cache"

// readUpload reads one multipart file field, bounded by the upload cap
// already applied to the request body.
func readUpload(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing upload field %q", field)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", field, err)
	}
	return data, nil
}

// optionalUpload reads a multipart file field that may be absent.
func optionalUpload(r *http.Request, field string) ([]byte, bool, error) {
	file, _, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read upload %q: %w", field, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, false, fmt.Errorf("read upload %q: %w", field, err)
	}
	return data, true, nil
}

// errUploadTooLarge marks a request body beyond the configured upload cap.
var errUploadTooLarge = errors.New("upload exceeds the configured size limit")

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	cfg := s.holder.Current()
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: %d bytes", errUploadTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("invalid multipart request: %w", err)
	}
	return nil
}

// writeMultipartError distinguishes an oversized body (413) from a
// malformed one (400).
func writeMultipartError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUploadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// cachedResult pairs the GeoJSON bytes with the CRS they were computed
// in, so cache hits carry the same headers as fresh responses.
type cachedResult struct {
	CRS  string          `json:"crs"`
	Body json.RawMessage `json:"body"`
}

func (s *Server) cacheStore(key, crs string, body []byte, ttl time.Duration) {
	encoded, err := json.Marshal(cachedResult{CRS: crs, Body: body})
	if err != nil {
		return
	}
	s.results.Set(key, encoded, ttl)
}

func (s *Server) cacheLoad(key string) (string, []byte, bool) {
	raw, ok := s.results.Get(key)
	if !ok {
		return "", nil, false
	}
	var c cachedResult
	if err := json.Unmarshal(raw, &c); err != nil {
		return "", nil, false
	}
	return c.CRS, c.Body, true
}

// handleBuffer buffers an uploaded GeoJSON geometry by a metric distance.
// The geometry is projected into its UTM zone so the distance is meters.
func (s *Server) handleBuffer(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	start := time.Now()

	if err := s.parseMultipart(w, r); err != nil {
		writeMultipartError(w, err)
		return
	}

	payload, err := readUpload(r, "geojson_polygon")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	distanceRaw := r.FormValue("buffer_value")
	if distanceRaw == "" {
		writeError(w, http.StatusBadRequest, "buffer_value is required")
		return
	}
	distance, err := strconv.ParseFloat(distanceRaw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "buffer_value must be a number")
		return
	}

	cfg := s.holder.Current()
	segments := cfg.Geometry.BufferSegments

	key := cache.Key("buffer", fmt.Sprintf("d=%g&s=%d", distance, segments), payload)
	if crs, cached, ok := s.cacheLoad(key); ok {
		metrics.IncCacheHit()
		w.Header().Set(headerCache, "hit")
		w.Header().Set(headerCRS, crs)
		writeGeoJSON(w, http.StatusOK, cached)
		return
	}
	metrics.IncCacheMiss()

	fc, err := geo.DecodeCollection(payload)
	if err != nil {
		metrics.IncOperation("buffer", "error")
		writeOperationError(w, err)
		return
	}
	featuresIn := len(fc.Features)
	metrics.AddFeaturesIn(featuresIn)

	result, err := geo.RunBuffer(fc, distance, segments)
	if err != nil {
		metrics.IncOperation("buffer", outcomeOf(err))
		writeOperationError(w, err)
		return
	}
	metrics.IncReprojection("utm")
	metrics.IncReprojection("epsg4326")

	encoded, err := geo.EncodeCollection(result.Collection)
	if err != nil {
		metrics.IncOperation("buffer", "error")
		writeOperationError(w, err)
		return
	}

	s.cacheStore(key, result.CRS, encoded, cfg.Cache.TTL)
	metrics.IncOperation("buffer", "success")
	metrics.ObserveOperationDuration("buffer", time.Since(start))
	metrics.AddFeaturesOut(len(result.Collection.Features))

	logger.Info().
		Str("event", "operation.buffer").
		Float64("distance_m", distance).
		Str(log.FieldEPSG, result.CRS).
		Int(log.FieldFeatures, featuresIn).
		Dur("duration", time.Since(start)).
		Msg("buffer computed")

	w.Header().Set(headerCRS, result.CRS)
	writeGeoJSON(w, http.StatusOK, encoded)
}

// handleProcess runs an overlay operation on one or two zipped shapefiles.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	start := time.Now()

	if err := s.parseMultipart(w, r); err != nil {
		writeMultipartError(w, err)
		return
	}

	op, err := geo.ParseOperation(r.FormValue("operation"))
	if err != nil {
		writeOperationError(w, err)
		return
	}

	payloadA, err := readUpload(r, "file_a")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payloadB, hasB, err := optionalUpload(r, "file_b")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if op.RequiresSecondLayer() && !hasB {
		writeOperationError(w, geo.ErrSecondInputRequired)
		return
	}

	cfg := s.holder.Current()
	key := cache.Key(string(op), "", payloadA, payloadB)
	if crs, cached, ok := s.cacheLoad(key); ok {
		metrics.IncCacheHit()
		w.Header().Set(headerCache, "hit")
		w.Header().Set(headerCRS, crs)
		writeGeoJSON(w, http.StatusOK, cached)
		return
	}
	metrics.IncCacheMiss()

	a, err := s.readShapefile(payloadA)
	if err != nil {
		metrics.IncOperation(string(op), "error")
		writeOperationError(w, err)
		return
	}
	metrics.AddFeaturesIn(len(a.Features))

	var b *geojson.FeatureCollection
	if hasB {
		if b, err = s.readShapefile(payloadB); err != nil {
			metrics.IncOperation(string(op), "error")
			writeOperationError(w, err)
			return
		}
		metrics.AddFeaturesIn(len(b.Features))
	}

	result, err := geo.RunOverlay(op, a, b)
	if err != nil {
		metrics.IncOperation(string(op), outcomeOf(err))
		writeOperationError(w, err)
		return
	}
	metrics.IncReprojection("epsg3395")
	metrics.IncReprojection("epsg4326")

	encoded, err := geo.EncodeCollection(result)
	if err != nil {
		metrics.IncOperation(string(op), "error")
		writeOperationError(w, err)
		return
	}

	s.cacheStore(key, geo.CRSName(geo.EPSGWorldMercator), encoded, cfg.Cache.TTL)
	metrics.IncOperation(string(op), "success")
	metrics.ObserveOperationDuration(string(op), time.Since(start))
	metrics.AddFeaturesOut(len(result.Features))

	logger.Info().
		Str("event", "operation.process").
		Str(log.FieldOperation, string(op)).
		Str(log.FieldEPSG, geo.CRSName(geo.EPSGWorldMercator)).
		Int(log.FieldFeatures, len(result.Features)).
		Dur("duration", time.Since(start)).
		Msg("overlay computed")

	w.Header().Set(headerCRS, geo.CRSName(geo.EPSGWorldMercator))
	writeGeoJSON(w, http.StatusOK, encoded)
}

func (s *Server) readShapefile(payload []byte) (*geojson.FeatureCollection, error) {
	fc, err := shapefile.FromZip(payload)
	if err != nil {
		metrics.IncShapefileRead("error")
		return nil, err
	}
	metrics.IncShapefileRead("success")
	return fc, nil
}

// outcomeOf classifies a pipeline error for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, geo.ErrEmptyResult) {
		return "empty"
	}
	return "error"
}
