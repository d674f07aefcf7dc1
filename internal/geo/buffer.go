// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNegativeBufferInput signals a negative buffer distance applied to a
// geometry without interior, which has no defined result.
var ErrNegativeBufferInput = errors.New("negative buffer requires polygonal input")

// DefaultBufferSegments is the number of segments per quarter circle used
// to approximate round buffer corners.
const DefaultBufferSegments = 8

// Buffer computes the buffer of a geometry in the units of its coordinate
// system. The dilation is built as the union of the input with rectangles
// swept along each edge and circles at each vertex. Erosion subtracts the
// boundary dilation from the polygon interior.
func Buffer(g orb.Geometry, distance float64, segments int) (orb.Geometry, error) {
	if segments < 1 {
		segments = DefaultBufferSegments
	}
	if distance == 0 {
		return g, nil
	}
	if distance < 0 {
		return erode(g, -distance, segments)
	}
	return dilate(g, distance, segments)
}

// BufferCollection buffers every feature geometry in place, keeping
// properties. Features whose geometry erodes to nothing are dropped.
func BufferCollection(fc *geojson.FeatureCollection, distance float64, segments int) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		buffered, err := Buffer(f.Geometry, distance, segments)
		if errors.Is(err, ErrEmptyResult) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if buffered == nil {
			continue
		}
		nf := geojson.NewFeature(buffered)
		nf.Properties = f.Properties
		out.Append(nf)
	}
	if len(out.Features) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

func dilate(g orb.Geometry, distance float64, segments int) (orb.Geometry, error) {
	pieces, err := dilationPieces(g, distance, segments)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, ErrNoPolygonalInput
	}
	merged, err := unionGeoms(pieces)
	if err != nil {
		return nil, fmt.Errorf("buffer union: %w", err)
	}
	result := fromGeom(merged)
	if result == nil {
		return nil, ErrEmptyResult
	}
	return result, nil
}

func dilationPieces(g orb.Geometry, distance float64, segments int) ([]polygol.Geom, error) {
	switch v := g.(type) {
	case orb.Point:
		return []polygol.Geom{{{circleRing(v, distance, segments)}}}, nil
	case orb.MultiPoint:
		var pieces []polygol.Geom
		for _, p := range v {
			pieces = append(pieces, polygol.Geom{{circleRing(p, distance, segments)}})
		}
		return pieces, nil
	case orb.LineString:
		return pathPieces([]orb.Point(v), false, distance, segments), nil
	case orb.MultiLineString:
		var pieces []polygol.Geom
		for _, ls := range v {
			pieces = append(pieces, pathPieces([]orb.Point(ls), false, distance, segments)...)
		}
		return pieces, nil
	case orb.Ring:
		return dilationPieces(orb.Polygon{v}, distance, segments)
	case orb.Polygon:
		pieces := []polygol.Geom{toGeom(v)}
		for _, ring := range v {
			pieces = append(pieces, pathPieces([]orb.Point(ring), true, distance, segments)...)
		}
		return pieces, nil
	case orb.MultiPolygon:
		var pieces []polygol.Geom
		for _, p := range v {
			sub, err := dilationPieces(p, distance, segments)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, sub...)
		}
		return pieces, nil
	case orb.Collection:
		var pieces []polygol.Geom
		for _, member := range v {
			sub, err := dilationPieces(member, distance, segments)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, sub...)
		}
		return pieces, nil
	default:
		return nil, fmt.Errorf("buffer: unsupported geometry type %T", g)
	}
}

func erode(g orb.Geometry, distance float64, segments int) (orb.Geometry, error) {
	interior := toGeom(g)
	if interior == nil {
		return nil, ErrNegativeBufferInput
	}

	var boundary []polygol.Geom
	switch v := g.(type) {
	case orb.Polygon:
		for _, ring := range v {
			boundary = append(boundary, pathPieces([]orb.Point(ring), true, distance, segments)...)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, ring := range p {
				boundary = append(boundary, pathPieces([]orb.Point(ring), true, distance, segments)...)
			}
		}
	case orb.Ring:
		boundary = pathPieces([]orb.Point(v), true, distance, segments)
	case orb.Collection:
		var results []polygol.Geom
		for _, member := range v {
			eroded, err := erode(member, distance, segments)
			if err != nil {
				if errors.Is(err, ErrEmptyResult) {
					continue
				}
				return nil, err
			}
			if sub := toGeom(eroded); sub != nil {
				results = append(results, sub)
			}
		}
		if len(results) == 0 {
			return nil, ErrEmptyResult
		}
		merged, err := unionGeoms(results)
		if err != nil {
			return nil, err
		}
		return fromGeom(merged), nil
	default:
		return nil, ErrNegativeBufferInput
	}

	strip, err := unionGeoms(boundary)
	if err != nil {
		return nil, fmt.Errorf("erosion strip: %w", err)
	}
	result, err := polygol.Difference(interior, strip)
	if err != nil {
		return nil, fmt.Errorf("erosion difference: %w", err)
	}
	out := fromGeom(result)
	if out == nil {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// pathPieces covers a polyline (or closed ring) with edge rectangles and
// vertex circles of the given radius.
func pathPieces(points []orb.Point, closed bool, radius float64, segments int) []polygol.Geom {
	if len(points) == 0 {
		return nil
	}
	if closed && len(points) > 1 && points[0] == points[len(points)-1] {
		points = points[:len(points)-1]
	}

	var pieces []polygol.Geom
	for i, p := range points {
		pieces = append(pieces, polygol.Geom{{circleRing(p, radius, segments)}})

		j := i + 1
		if j == len(points) {
			if !closed {
				break
			}
			j = 0
		}
		if rect := edgeRect(p, points[j], radius); rect != nil {
			pieces = append(pieces, polygol.Geom{{rect}})
		}
	}
	return pieces
}

// circleRing approximates a circle as a closed counter-clockwise ring with
// 4*segments vertices.
func circleRing(center orb.Point, radius float64, segments int) [][]float64 {
	n := 4 * segments
	ring := make([][]float64, 0, n+1)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, []float64{
			center[0] + radius*math.Cos(angle),
			center[1] + radius*math.Sin(angle),
		})
	}
	ring = append(ring, append([]float64{}, ring[0]...))
	return ring
}

// edgeRect builds the rectangle swept by a disc of the given radius moving
// from a to b. Returns nil for degenerate edges.
func edgeRect(a, b orb.Point, radius float64) [][]float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}
	// Unit normal, scaled to the radius.
	nx, ny := -dy/length*radius, dx/length*radius
	return [][]float64{
		{a[0] + nx, a[1] + ny},
		{b[0] + nx, b[1] + ny},
		{b[0] - nx, b[1] - ny},
		{a[0] - nx, a[1] - ny},
		{a[0] + nx, a[1] + ny},
	}
}
