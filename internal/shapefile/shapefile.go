// SPDX-License-Identifier: MIT

// Package shapefile reads zipped ESRI shapefiles into GeoJSON feature
// collections. The archive is extracted to a temporary directory and the
// first .shp member is read together with its .dbf attribute table.
package shapefile

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoShapefile signals an archive without a .shp member.
var ErrNoShapefile = errors.New("archive contains no shapefile")

// ErrBadArchive signals an unreadable or unsafe zip archive.
var ErrBadArchive = errors.New("invalid zip archive")

// FromZip extracts a zipped shapefile and converts it to a feature
// collection with DBF attributes as properties.
func FromZip(data []byte) (*geojson.FeatureCollection, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadArchive, err)
	}

	dir, err := os.MkdirTemp("", "geoproc-shp-*")
	if err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	shpPath := ""
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, err := extractMember(dir, f)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(filepath.Ext(dest), ".shp") && shpPath == "" {
			shpPath = dest
		}
	}
	if shpPath == "" {
		return nil, ErrNoShapefile
	}

	return readShapefile(shpPath)
}

// extractMember writes one archive member into dir, flattening any
// directory structure and refusing paths that escape the extraction dir.
func extractMember(dir string, f *zip.File) (string, error) {
	name := filepath.Base(filepath.Clean(f.Name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: unsafe member name %q", ErrBadArchive, f.Name)
	}
	dest := filepath.Join(dir, name)

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open member %s: %w", ErrBadArchive, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	return dest, nil
}

func readShapefile(path string) (*geojson.FeatureCollection, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer func() { _ = r.Close() }()

	fields := r.Fields()
	fc := geojson.NewFeatureCollection()

	for r.Next() {
		row, shape := r.Shape()

		geom := shapeGeometry(shape)
		if geom == nil {
			continue
		}

		f := geojson.NewFeature(geom)
		f.Properties = make(geojson.Properties, len(fields))
		for i, field := range fields {
			f.Properties[field.String()] = attributeValue(field, r.ReadAttribute(row, i))
		}
		fc.Append(f)
	}

	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read shapefile: %w", err)
	}
	return fc, nil
}

// shapeGeometry converts a shapefile shape to orb geometry. Unsupported
// shape types map to nil and are skipped.
func shapeGeometry(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, 0, len(v.Points))
		for _, p := range v.Points {
			mp = append(mp, orb.Point{p.X, p.Y})
		}
		return mp
	case *shp.PolyLine:
		lines := splitParts(v.Parts, v.Points)
		if len(lines) == 1 {
			return orb.LineString(lines[0])
		}
		mls := make(orb.MultiLineString, 0, len(lines))
		for _, l := range lines {
			mls = append(mls, orb.LineString(l))
		}
		return mls
	case *shp.Polygon:
		return assemblePolygons(splitParts(v.Parts, v.Points))
	default:
		return nil
	}
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		part := make([]orb.Point, 0, end-int(start))
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

// assemblePolygons groups shapefile rings into polygons. Outer rings are
// clockwise per the shapefile spec; counter-clockwise rings are holes
// attached to the preceding outer ring.
func assemblePolygons(parts [][]orb.Point) orb.Geometry {
	var polygons orb.MultiPolygon
	for _, part := range parts {
		ring := orb.Ring(part)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CW || len(polygons) == 0 {
			polygons = append(polygons, orb.Polygon{ring})
			continue
		}
		last := len(polygons) - 1
		polygons[last] = append(polygons[last], ring)
	}

	switch len(polygons) {
	case 0:
		return nil
	case 1:
		return polygons[0]
	default:
		return polygons
	}
}

// attributeValue converts a DBF attribute to its JSON-friendly type based
// on the declared field type.
func attributeValue(field shp.Field, raw string) any {
	value := strings.TrimSpace(raw)
	switch field.Fieldtype {
	case 'N', 'F':
		if value == "" {
			return nil
		}
		if !strings.ContainsAny(value, ".eE") {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return value
	case 'L':
		switch strings.ToUpper(value) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		default:
			return nil
		}
	default:
		return value
	}
}
