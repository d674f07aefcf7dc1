// SPDX-License-Identifier: MIT

package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}
}

func geometryArea(t *testing.T, g orb.Geometry) float64 {
	t.Helper()
	if g == nil {
		t.Fatal("expected geometry, got nil")
	}
	return planar.Area(g)
}

func TestBufferPoint(t *testing.T) {
	g, err := Buffer(orb.Point{10, 20}, 5, 8)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}

	area := geometryArea(t, g)
	want := math.Pi * 25
	if area < want*0.98 || area > want {
		t.Errorf("circle area = %.4f, want close to %.4f", area, want)
	}

	b := g.Bound()
	if math.Abs(b.Min[0]-5) > 0.1 || math.Abs(b.Max[0]-15) > 0.1 {
		t.Errorf("unexpected bound %v", b)
	}
}

func TestBufferLineString(t *testing.T) {
	line := orb.LineString{{0, 0}, {10, 0}}
	g, err := Buffer(line, 2, 16)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}

	area := geometryArea(t, g)
	want := 10*4 + math.Pi*4
	if math.Abs(area-want) > want*0.02 {
		t.Errorf("capsule area = %.4f, want close to %.4f", area, want)
	}
}

func TestBufferPolygonDilation(t *testing.T) {
	g, err := Buffer(square(0, 0, 10, 10), 5, 16)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}

	area := geometryArea(t, g)
	// 10x10 core, four 10x5 edge strips, four quarter circles at corners.
	want := 100 + 4*50 + math.Pi*25
	if math.Abs(area-want) > want*0.02 {
		t.Errorf("dilated area = %.4f, want close to %.4f", area, want)
	}
}

func TestBufferPolygonErosion(t *testing.T) {
	g, err := Buffer(square(0, 0, 10, 10), -2, 8)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}

	area := geometryArea(t, g)
	if math.Abs(area-36) > 1e-6 {
		t.Errorf("eroded area = %.8f, want 36", area)
	}
}

func TestBufferZeroDistance(t *testing.T) {
	in := square(1, 1, 2, 2)
	g, err := Buffer(in, 0, 8)
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Fatalf("zero buffer changed geometry type to %T", g)
	}
}

func TestBufferNegativeOnPoint(t *testing.T) {
	_, err := Buffer(orb.Point{0, 0}, -1, 8)
	if !errors.Is(err, ErrNegativeBufferInput) {
		t.Fatalf("error = %v, want ErrNegativeBufferInput", err)
	}
}

func TestBufferErosionConsumesPolygon(t *testing.T) {
	_, err := Buffer(square(0, 0, 2, 2), -5, 8)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("error = %v, want ErrEmptyResult", err)
	}
}

func TestBufferCollection(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(square(0, 0, 10, 10))
	f.Properties = geojson.Properties{"zone": "industrial"}
	fc.Append(f)

	out, err := BufferCollection(fc, 1, 8)
	if err != nil {
		t.Fatalf("BufferCollection() error = %v", err)
	}
	if len(out.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(out.Features))
	}
	if got := out.Features[0].Properties["zone"]; got != "industrial" {
		t.Errorf("properties not preserved, got %v", got)
	}

	area := geometryArea(t, out.Features[0].Geometry)
	if area <= 100 {
		t.Errorf("buffered area = %.4f, want > 100", area)
	}
}

func TestBufferCollectionEmptyResult(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(square(0, 0, 1, 1)))

	_, err := BufferCollection(fc, -10, 8)
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("error = %v, want ErrEmptyResult", err)
	}
}
