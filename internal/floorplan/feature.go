package floorplan

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is a named shape on one layer, in display coordinates.
// Features are never modified after ingestion; a layer reload replaces them.
type Feature struct {
	Name     string
	Layer    LayerID
	Geometry orb.Geometry
}

// Extent returns the axis-aligned bounding box of the feature's geometry.
func (f *Feature) Extent() orb.Bound {
	if f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}

// Centroid returns the midpoint of the extent. It is not area weighted.
func (f *Feature) Centroid() orb.Point {
	b := f.Extent()
	return orb.Point{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
	}
}

// Named reports whether the feature can be looked up by name.
func (f *Feature) Named() bool {
	return f.Name != ""
}

// featureName reads the "name" property. The store emits desk and room ids
// which may arrive as JSON numbers.
func featureName(props geojson.Properties) string {
	v, ok := props["name"]
	if !ok || v == nil {
		return ""
	}
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	}
	return ""
}
