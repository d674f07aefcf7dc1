// SPDX-License-Identifier: MIT

package shapefile

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// writeFixture builds a one-polygon shapefile with attributes and returns
// the zipped archive bytes.
func writeFixture(t *testing.T) []byte {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "parcels.shp")

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("shp.Create() error = %v", err)
	}

	if err := w.SetFields([]shp.Field{
		shp.StringField("NAME", 25),
		shp.NumberField("ID", 10),
	}); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}

	// Outer ring clockwise per the shapefile spec.
	line := shp.NewPolyLine([][]shp.Point{{
		{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0},
	}})
	poly := shp.Polygon(*line)
	w.Write(&poly)

	if err := w.WriteAttribute(0, 0, "plot"); err != nil {
		t.Fatalf("WriteAttribute() error = %v", err)
	}
	if err := w.WriteAttribute(0, 1, 7); err != nil {
		t.Fatalf("WriteAttribute() error = %v", err)
	}
	w.Close()

	return zipDir(t, dir)
}

func zipDir(t *testing.T, dir string) []byte {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		f, err := zw.Create(e.Name())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFromZip(t *testing.T) {
	fc, err := FromZip(writeFixture(t))
	if err != nil {
		t.Fatalf("FromZip() error = %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d, want 1", len(fc.Features))
	}

	f := fc.Features[0]
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry type = %T, want orb.Polygon", f.Geometry)
	}
	if len(poly) != 1 || len(poly[0]) != 5 {
		t.Errorf("polygon shape = %d rings, %d points", len(poly), len(poly[0]))
	}

	if f.Properties["NAME"] != "plot" {
		t.Errorf("NAME = %v", f.Properties["NAME"])
	}
	if f.Properties["ID"] != int64(7) {
		t.Errorf("ID = %v (%T)", f.Properties["ID"], f.Properties["ID"])
	}
}

func TestFromZipNoShapefile(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("no shapes here")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = FromZip(buf.Bytes())
	if !errors.Is(err, ErrNoShapefile) {
		t.Fatalf("error = %v, want ErrNoShapefile", err)
	}
}

func TestFromZipBadArchive(t *testing.T) {
	_, err := FromZip([]byte("definitely not a zip"))
	if !errors.Is(err, ErrBadArchive) {
		t.Fatalf("error = %v, want ErrBadArchive", err)
	}
}

func TestAttributeValue(t *testing.T) {
	tests := []struct {
		fieldtype byte
		raw       string
		want      any
	}{
		{'N', "42", int64(42)},
		{'N', "3.14", 3.14},
		{'F', "2.5", 2.5},
		{'N', "", nil},
		{'L', "T", true},
		{'L', "N", false},
		{'L', "?", nil},
		{'C', "  hello ", "hello"},
	}

	for _, tc := range tests {
		got := attributeValue(shp.Field{Fieldtype: tc.fieldtype}, tc.raw)
		if got != tc.want {
			t.Errorf("attributeValue(%c, %q) = %v (%T), want %v", tc.fieldtype, tc.raw, got, got, tc.want)
		}
	}
}

func TestAssemblePolygonsWithHole(t *testing.T) {
	outer := []orb.Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	hole := []orb.Point{{2, 2}, {8, 2}, {8, 8}, {2, 8}, {2, 2}}

	g := assemblePolygons([][]orb.Point{outer, hole})
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry type = %T, want orb.Polygon", g)
	}
	if len(poly) != 2 {
		t.Fatalf("rings = %d, want 2", len(poly))
	}
}
