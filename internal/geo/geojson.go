// SPDX-License-Identifier: MIT

// Package geo implements the geometry pipeline: GeoJSON normalization,
// coordinate reprojection, metric buffering and polygon overlay operations.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrEmptyResult signals an operation whose output contains no geometry.
	ErrEmptyResult = errors.New("operation resulted in an empty geometry")
	// ErrNoPolygonalInput signals input without any polygonal geometry where
	// an overlay operation requires one.
	ErrNoPolygonalInput = errors.New("input contains no polygonal geometry")
	// ErrInvalidGeoJSON signals a payload that is not parseable GeoJSON.
	ErrInvalidGeoJSON = errors.New("invalid GeoJSON payload")
)

// DecodeCollection parses GeoJSON into a FeatureCollection. A bare Feature
// or geometry is wrapped into a single-feature collection, matching what
// permissive readers accept.
func DecodeCollection(data []byte) (*geojson.FeatureCollection, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		return fc, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		return fc, nil
	case "":
		return nil, fmt.Errorf("%w: missing type member", ErrInvalidGeoJSON)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidGeoJSON, err)
		}
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g.Geometry()))
		return fc, nil
	}
}

// EncodeCollection serializes a FeatureCollection to GeoJSON bytes.
func EncodeCollection(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return data, nil
}

// Bound returns the bounding box of all feature geometries. The second
// return value is false when the collection has no geometries.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound = b
			found = true
			continue
		}
		bound = bound.Union(b)
	}
	return bound, found
}
