// Package geo provides the boundary geometry and the spatial station filter.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/hidrodados/coletor/internal/domain"
)

// DefaultCRS is the coordinate reference system assumed for boundaries and
// station coordinates when none is supplied.
const DefaultCRS = "EPSG:4326"

// Boundary is an immutable polygon or multi-polygon with its CRS. Holes in a
// polygon exclude points; multiple polygons act as a union.
type Boundary struct {
	geom orb.MultiPolygon
	crs  string
}

// NewBoundary wraps an orb geometry as a Boundary. Polygon and MultiPolygon
// geometries are accepted.
func NewBoundary(g orb.Geometry, crs string) (*Boundary, error) {
	if crs == "" {
		crs = DefaultCRS
	}
	switch geom := g.(type) {
	case orb.Polygon:
		return &Boundary{geom: orb.MultiPolygon{geom}, crs: crs}, nil
	case orb.MultiPolygon:
		return &Boundary{geom: geom, crs: crs}, nil
	default:
		return nil, fmt.Errorf("unsupported boundary geometry %T", g)
	}
}

// FromGeoJSON parses a GeoJSON FeatureCollection or single Feature into a
// Boundary, unioning every polygonal feature.
func FromGeoJSON(data []byte) (*Boundary, error) {
	var geoms []orb.Geometry

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil {
		geoms = append(geoms, f.Geometry)
	} else {
		return nil, fmt.Errorf("parse boundary geojson: %w", err)
	}

	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch geom := g.(type) {
		case orb.Polygon:
			mp = append(mp, geom)
		case orb.MultiPolygon:
			mp = append(mp, geom...)
		}
	}
	if len(mp) == 0 {
		return nil, fmt.Errorf("boundary geojson contains no polygon geometry")
	}
	return &Boundary{geom: mp, crs: DefaultCRS}, nil
}

// CRS returns the boundary's coordinate reference system.
func (b *Boundary) CRS() string { return b.crs }

// Contains reports whether the point lies within the boundary. Points on the
// boundary edge are inclusive, by convention of the underlying containment
// predicate; points inside a polygon hole are outside.
func (b *Boundary) Contains(lon, lat float64) bool {
	return planar.MultiPolygonContains(b.geom, orb.Point{lon, lat})
}

// Filter returns the subset of the inventory whose stations lie inside the
// boundary. Pure function over its inputs; inventory order is preserved.
func (b *Boundary) Filter(inv domain.Inventory) domain.Inventory {
	var inside []domain.Station
	for _, s := range inv.Stations {
		if b.Contains(s.Longitude, s.Latitude) {
			inside = append(inside, s)
		}
	}
	return domain.NewInventory(inside)
}

// Bound returns the boundary's bounding box as (minLon, minLat, maxLon, maxLat).
func (b *Boundary) Bound() (float64, float64, float64, float64) {
	bb := b.geom.Bound()
	return bb.Min[0], bb.Min[1], bb.Max[0], bb.Max[1]
}
