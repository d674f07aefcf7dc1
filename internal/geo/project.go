// SPDX-License-Identifier: MIT

package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

// WGS84 reference ellipsoid parameters.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
)

// EPSG codes of the coordinate reference systems the service works in.
const (
	EPSGWGS84         = 4326
	EPSGWorldMercator = 3395
)

// UTMZone returns the UTM zone and hemisphere covering the given lon/lat
// point. Longitude is normalized into [-180, 180).
func UTMZone(p orb.Point) (zone int, northern bool) {
	lon := math.Mod(p[0]+180, 360)
	if lon < 0 {
		lon += 360
	}
	zone = int(lon/6) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone, p[1] >= 0
}

// EstimateUTM picks the UTM zone for a collection based on the center of
// its bounding box.
func EstimateUTM(fc *geojson.FeatureCollection) (zone int, northern bool, err error) {
	bound, ok := Bound(fc)
	if !ok {
		return 0, false, ErrNoPolygonalInput
	}
	zone, northern = UTMZone(bound.Center())
	return zone, northern, nil
}

// UTMForward returns the lon/lat to UTM point transform for a zone.
func UTMForward(zone int, northern bool) func(orb.Point) orb.Point {
	to := wgs84.LonLat().To(wgs84.UTM(float64(zone), northern))
	return func(p orb.Point) orb.Point {
		x, y, _ := to(p[0], p[1], 0)
		return orb.Point{x, y}
	}
}

// UTMInverse returns the UTM to lon/lat point transform for a zone.
func UTMInverse(zone int, northern bool) func(orb.Point) orb.Point {
	from := wgs84.UTM(float64(zone), northern).To(wgs84.LonLat())
	return func(p orb.Point) orb.Point {
		lon, lat, _ := from(p[0], p[1], 0)
		return orb.Point{lon, lat}
	}
}

// MercatorForward projects lon/lat degrees to EPSG:3395 world Mercator
// meters using the ellipsoidal formulas.
func MercatorForward(p orb.Point) orb.Point {
	e := math.Sqrt(2*flattening - flattening*flattening)
	lon := p[0] * math.Pi / 180
	lat := p[1] * math.Pi / 180

	x := semiMajorAxis * lon
	esin := e * math.Sin(lat)
	y := semiMajorAxis * math.Log(math.Tan(math.Pi/4+lat/2)*math.Pow((1-esin)/(1+esin), e/2))
	return orb.Point{x, y}
}

// MercatorInverse projects EPSG:3395 meters back to lon/lat degrees. The
// latitude series converges within a few iterations.
func MercatorInverse(p orb.Point) orb.Point {
	e := math.Sqrt(2*flattening - flattening*flattening)
	lon := p[0] / semiMajorAxis

	t := math.Exp(-p[1] / semiMajorAxis)
	lat := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		esin := e * math.Sin(lat)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-esin)/(1+esin), e/2))
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}
	return orb.Point{lon * 180 / math.Pi, lat * 180 / math.Pi}
}

// ProjectCollection applies a point transform to every feature geometry in
// place and returns the collection for chaining.
func ProjectCollection(fc *geojson.FeatureCollection, transform func(orb.Point) orb.Point) *geojson.FeatureCollection {
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		f.Geometry = project.Geometry(f.Geometry, transform)
	}
	return fc
}

// CRSName formats an EPSG code the way responses report it.
func CRSName(code int) string {
	return fmt.Sprintf("EPSG:%d", code)
}

// UTMCRSName formats a UTM zone as its EPSG code. Northern zones live in
// the 326xx range, southern in 327xx.
func UTMCRSName(zone int, northern bool) string {
	base := 32700
	if northern {
		base = 32600
	}
	return CRSName(base + zone)
}
