// SPDX-License-Identifier: MIT

package geo

import (
	"fmt"

	"github.com/engelsjk/polygol"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// toGeom converts polygonal orb geometry into polygol's multipolygon
// representation. Non-polygonal members of collections are skipped. Returns
// nil when the geometry contains nothing polygonal.
func toGeom(g orb.Geometry) polygol.Geom {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil
		}
		return polygol.Geom{polygonToCoords(v)}
	case orb.MultiPolygon:
		if len(v) == 0 {
			return nil
		}
		out := make(polygol.Geom, 0, len(v))
		for _, p := range v {
			if len(p) == 0 {
				continue
			}
			out = append(out, polygonToCoords(p))
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case orb.Ring:
		if len(v) == 0 {
			return nil
		}
		return toGeom(orb.Polygon{v})
	case orb.Collection:
		var out polygol.Geom
		for _, member := range v {
			if sub := toGeom(member); sub != nil {
				out = append(out, sub...)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

func polygonToCoords(p orb.Polygon) [][][]float64 {
	rings := make([][][]float64, 0, len(p))
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		coords := make([][]float64, 0, len(ring)+1)
		for _, pt := range ring {
			coords = append(coords, []float64{pt[0], pt[1]})
		}
		// polygol expects closed rings.
		first, last := ring[0], ring[len(ring)-1]
		if first != last {
			coords = append(coords, []float64{first[0], first[1]})
		}
		rings = append(rings, coords)
	}
	return rings
}

// fromGeom converts a polygol multipolygon back into orb geometry. A single
// polygon collapses to orb.Polygon, multiples become orb.MultiPolygon and an
// empty result returns nil.
func fromGeom(g polygol.Geom) orb.Geometry {
	mp := make(orb.MultiPolygon, 0, len(g))
	for _, poly := range g {
		rings := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			if len(ring) < 4 {
				continue
			}
			r := make(orb.Ring, 0, len(ring))
			for _, coord := range ring {
				if len(coord) < 2 {
					continue
				}
				r = append(r, orb.Point{coord[0], coord[1]})
			}
			if len(r) >= 4 {
				rings = append(rings, r)
			}
		}
		if len(rings) > 0 {
			mp = append(mp, rings)
		}
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	default:
		return mp
	}
}

// unionGeoms unions a set of polygol geometries into one.
func unionGeoms(geoms []polygol.Geom) (polygol.Geom, error) {
	if len(geoms) == 0 {
		return nil, ErrNoPolygonalInput
	}
	if len(geoms) == 1 {
		return geoms[0], nil
	}
	out, err := polygol.Union(geoms[0], geoms[1:]...)
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	return out, nil
}

// collectionGeom unions all polygonal feature geometries of a collection
// into a single polygol multipolygon.
func collectionGeom(fc *geojson.FeatureCollection) (polygol.Geom, error) {
	var geoms []polygol.Geom
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if g := toGeom(f.Geometry); g != nil {
			geoms = append(geoms, g)
		}
	}
	return unionGeoms(geoms)
}
