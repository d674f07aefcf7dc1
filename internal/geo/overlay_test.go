// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func collection(features ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	return fc
}

func feature(g orb.Geometry, props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(g)
	if props != nil {
		f.Properties = props
	}
	return f
}

func TestParseOperation(t *testing.T) {
	for _, name := range []string{"clip", "difference", "union", "intersect", "merge", "dissolve"} {
		if _, err := ParseOperation(name); err != nil {
			t.Errorf("ParseOperation(%q) error = %v", name, err)
		}
	}

	_, err := ParseOperation("erase")
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("error = %v, want ErrUnknownOperation", err)
	}
}

func TestOverlayRequiresSecondLayer(t *testing.T) {
	a := collection(feature(square(0, 0, 1, 1), nil))

	_, err := Overlay(OpClip, a, nil)
	if !errors.Is(err, ErrSecondInputRequired) {
		t.Fatalf("error = %v, want ErrSecondInputRequired", err)
	}

	if _, err := Overlay(OpDissolve, a, nil); err != nil {
		t.Fatalf("dissolve without second layer: %v", err)
	}
}

func TestOverlayClip(t *testing.T) {
	a := collection(feature(square(0, 0, 4, 4), geojson.Properties{"name": "parcel"}))
	b := collection(feature(square(2, 2, 6, 6), nil))

	out, err := Overlay(OpClip, a, b)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}
	if got := out.Features[0].Properties["name"]; got != "parcel" {
		t.Errorf("properties not preserved, got %v", got)
	}
	if area := geometryArea(t, out.Features[0].Geometry); math.Abs(area-4) > 1e-9 {
		t.Errorf("clipped area = %.6f, want 4", area)
	}
}

func TestOverlayClipDisjoint(t *testing.T) {
	a := collection(feature(square(0, 0, 1, 1), nil))
	b := collection(feature(square(5, 5, 6, 6), nil))

	_, err := Overlay(OpClip, a, b)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("error = %v, want ErrEmptyResult", err)
	}
}

func TestOverlayDifference(t *testing.T) {
	a := collection(feature(square(0, 0, 4, 4), geojson.Properties{"id": 7.0}))
	b := collection(feature(square(2, 2, 6, 6), nil))

	out, err := Overlay(OpDifference, a, b)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}
	if area := geometryArea(t, out.Features[0].Geometry); math.Abs(area-12) > 1e-9 {
		t.Errorf("difference area = %.6f, want 12", area)
	}
}

func TestOverlayUnion(t *testing.T) {
	a := collection(feature(square(0, 0, 4, 4), geojson.Properties{"name": "a"}))
	b := collection(feature(square(2, 2, 6, 6), geojson.Properties{"name": "b"}))

	out, err := Overlay(OpUnion, a, b)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}
	if area := geometryArea(t, out.Features[0].Geometry); math.Abs(area-28) > 1e-9 {
		t.Errorf("union area = %.6f, want 28", area)
	}
}

func TestOverlayIntersect(t *testing.T) {
	a := collection(feature(square(0, 0, 4, 4), geojson.Properties{"name": "a", "kind": "field"}))
	b := collection(feature(square(2, 2, 6, 6), geojson.Properties{"name": "b"}))

	out, err := Overlay(OpIntersect, a, b)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}

	props := out.Features[0].Properties
	if props["name"] != "a" || props["name_2"] != "b" || props["kind"] != "field" {
		t.Errorf("merged properties = %v", props)
	}
	if area := geometryArea(t, out.Features[0].Geometry); math.Abs(area-4) > 1e-9 {
		t.Errorf("intersection area = %.6f, want 4", area)
	}
}

func TestOverlayMerge(t *testing.T) {
	a := collection(
		feature(square(0, 0, 1, 1), geojson.Properties{"src": "a"}),
		feature(square(1, 1, 2, 2), geojson.Properties{"src": "a"}),
	)
	b := collection(feature(square(9, 9, 10, 10), geojson.Properties{"src": "b"}))

	out, err := Overlay(OpMerge, a, b)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 3 {
		t.Fatalf("features = %d, want 3", len(out.Features))
	}
}

func TestOverlayDissolve(t *testing.T) {
	a := collection(
		feature(square(0, 0, 4, 4), geojson.Properties{"region": "north"}),
		feature(square(2, 2, 6, 6), geojson.Properties{"region": "south"}),
	)

	out, err := Overlay(OpDissolve, a, nil)
	if err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}
	if got := out.Features[0].Properties["region"]; got != "north" {
		t.Errorf("dissolve kept properties %v, want first feature's", out.Features[0].Properties)
	}
	if area := geometryArea(t, out.Features[0].Geometry); math.Abs(area-28) > 1e-9 {
		t.Errorf("dissolved area = %.6f, want 28", area)
	}
}

func TestOverlayNonPolygonalInput(t *testing.T) {
	a := collection(feature(orb.Point{1, 1}, nil))
	b := collection(feature(square(0, 0, 2, 2), nil))

	_, err := Overlay(OpDissolve, a, nil)
	if !errors.Is(err, ErrNoPolygonalInput) {
		t.Fatalf("dissolve error = %v, want ErrNoPolygonalInput", err)
	}

	_, err = Overlay(OpClip, a, b)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("clip error = %v, want ErrEmptyResult", err)
	}
}
