// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"fmt"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb/geojson"
)

// Operation names a supported geoprocessing operation.
type Operation string

const (
	OpClip       Operation = "clip"
	OpDifference Operation = "difference"
	OpUnion      Operation = "union"
	OpIntersect  Operation = "intersect"
	OpMerge      Operation = "merge"
	OpDissolve   Operation = "dissolve"
	OpBuffer     Operation = "buffer"
)

// ErrUnknownOperation signals an operation name outside the supported set.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrSecondInputRequired signals a two-layer operation invoked with a
// single input layer.
var ErrSecondInputRequired = errors.New("operation requires a second input layer")

// ParseOperation validates an operation name from the wire.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpClip, OpDifference, OpUnion, OpIntersect, OpMerge, OpDissolve:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// RequiresSecondLayer reports whether the operation consumes two layers.
func (op Operation) RequiresSecondLayer() bool {
	switch op {
	case OpClip, OpDifference, OpUnion, OpIntersect, OpMerge:
		return true
	default:
		return false
	}
}

// Overlay runs an overlay operation on planar feature collections. Inputs
// must already share a projected coordinate system. Operations returning
// per-feature results keep the source feature's properties.
func Overlay(op Operation, a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	if op.RequiresSecondLayer() && b == nil {
		return nil, ErrSecondInputRequired
	}

	switch op {
	case OpClip:
		return clip(a, b)
	case OpDifference:
		return difference(a, b)
	case OpUnion:
		return union(a, b)
	case OpIntersect:
		return intersect(a, b)
	case OpMerge:
		return merge(a, b), nil
	case OpDissolve:
		return dissolve(a)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
}

// clip keeps the parts of each feature of a that fall inside the combined
// footprint of b.
func clip(a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	mask, err := collectionGeom(b)
	if err != nil {
		return nil, err
	}

	out := geojson.NewFeatureCollection()
	for _, f := range a.Features {
		g := toGeom(f.Geometry)
		if g == nil {
			continue
		}
		clipped, err := polygol.Intersection(g, mask)
		if err != nil {
			return nil, fmt.Errorf("clip: %w", err)
		}
		if geom := fromGeom(clipped); geom != nil {
			nf := geojson.NewFeature(geom)
			nf.Properties = f.Properties
			out.Append(nf)
		}
	}
	if len(out.Features) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// difference removes the combined footprint of b from each feature of a.
func difference(a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	mask, err := collectionGeom(b)
	if err != nil {
		return nil, err
	}

	out := geojson.NewFeatureCollection()
	for _, f := range a.Features {
		g := toGeom(f.Geometry)
		if g == nil {
			continue
		}
		remainder, err := polygol.Difference(g, mask)
		if err != nil {
			return nil, fmt.Errorf("difference: %w", err)
		}
		if geom := fromGeom(remainder); geom != nil {
			nf := geojson.NewFeature(geom)
			nf.Properties = f.Properties
			out.Append(nf)
		}
	}
	if len(out.Features) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// union dissolves both layers into a single combined geometry carried by
// one property-less feature.
func union(a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	ga, err := collectionGeom(a)
	if err != nil {
		return nil, err
	}
	gb, err := collectionGeom(b)
	if err != nil {
		return nil, err
	}
	combined, err := polygol.Union(ga, gb)
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	geom := fromGeom(combined)
	if geom == nil {
		return nil, ErrEmptyResult
	}
	out := geojson.NewFeatureCollection()
	out.Append(geojson.NewFeature(geom))
	return out, nil
}

// intersect computes pairwise intersections between the features of both
// layers, merging properties. Colliding keys from b get a "_2" suffix.
func intersect(a, b *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	out := geojson.NewFeatureCollection()
	for _, fa := range a.Features {
		ga := toGeom(fa.Geometry)
		if ga == nil {
			continue
		}
		for _, fb := range b.Features {
			gb := toGeom(fb.Geometry)
			if gb == nil {
				continue
			}
			overlap, err := polygol.Intersection(ga, gb)
			if err != nil {
				return nil, fmt.Errorf("intersect: %w", err)
			}
			geom := fromGeom(overlap)
			if geom == nil {
				continue
			}
			nf := geojson.NewFeature(geom)
			nf.Properties = mergeProperties(fa.Properties, fb.Properties)
			out.Append(nf)
		}
	}
	if len(out.Features) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// merge concatenates the features of both layers without geometry math.
func merge(a, b *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	out.Features = append(out.Features, a.Features...)
	out.Features = append(out.Features, b.Features...)
	return out
}

// dissolve unions all features of a layer into one feature that keeps the
// first feature's properties.
func dissolve(a *geojson.FeatureCollection) (*geojson.FeatureCollection, error) {
	combined, err := collectionGeom(a)
	if err != nil {
		return nil, err
	}
	geom := fromGeom(combined)
	if geom == nil {
		return nil, ErrEmptyResult
	}
	nf := geojson.NewFeature(geom)
	if len(a.Features) > 0 {
		nf.Properties = a.Features[0].Properties
	}
	out := geojson.NewFeatureCollection()
	out.Append(nf)
	return out, nil
}

func mergeProperties(a, b geojson.Properties) geojson.Properties {
	merged := make(geojson.Properties, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		if _, exists := merged[k]; exists {
			merged[k+"_2"] = v
			continue
		}
		merged[k] = v
	}
	return merged
}
