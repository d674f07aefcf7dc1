// SPDX-License-Identifier: MIT

package geo

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// BufferResult carries a buffered collection and the projected CRS used
// for the metric computation.
type BufferResult struct {
	Collection *geojson.FeatureCollection
	CRS        string
}

// RunBuffer buffers a lon/lat collection by a distance in meters. The
// collection is projected into its estimated UTM zone, buffered there and
// projected back to WGS84.
func RunBuffer(fc *geojson.FeatureCollection, distance float64, segments int) (BufferResult, error) {
	zone, northern, err := EstimateUTM(fc)
	if err != nil {
		return BufferResult{}, fmt.Errorf("estimate utm zone: %w", err)
	}

	ProjectCollection(fc, UTMForward(zone, northern))
	buffered, err := BufferCollection(fc, distance, segments)
	if err != nil {
		return BufferResult{}, err
	}
	ProjectCollection(buffered, UTMInverse(zone, northern))

	return BufferResult{
		Collection: buffered,
		CRS:        UTMCRSName(zone, northern),
	}, nil
}

// RunOverlay executes an overlay operation on lon/lat collections. Both
// layers are projected to world Mercator so the boolean operations run on
// a planar metric surface, and the result is projected back to WGS84.
func RunOverlay(op Operation, a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	ProjectCollection(a, MercatorForward)
	if b != nil {
		ProjectCollection(b, MercatorForward)
	}

	result, err := Overlay(op, a, b)
	if err != nil {
		return nil, err
	}

	ProjectCollection(result, MercatorInverse)
	return result, nil
}
