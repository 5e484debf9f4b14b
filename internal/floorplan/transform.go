package floorplan

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FlipY reflects the outer ring of a polygon across the x axis (y' = -y).
// The authoring tool stores floor plans with y growing down; the display
// projection has it growing up. Other geometry types are returned as is.
//
// The input is never modified. Applying FlipY twice restores the original
// coordinates, which is why it must only run once, at ingestion.
func FlipY(g orb.Geometry) orb.Geometry {
	poly, ok := g.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return g
	}

	out := poly.Clone()
	for i, p := range out[0] {
		out[0][i] = orb.Point{p[0], -p[1]}
	}
	return out
}

// Transformer normalizes raw geometry into display coordinates.
type Transformer func(orb.Geometry) orb.Geometry

// Identity leaves geometry untouched, for sources already in display
// convention.
func Identity(g orb.Geometry) orb.Geometry { return g }

// Ingest turns raw GeoJSON features into Features of the given layer,
// transforming every geometry exactly once. Features without geometry are
// dropped; features without a name are kept as anonymous shapes.
func Ingest(layer LayerID, raw []*geojson.Feature, transform Transformer) []*Feature {
	if transform == nil {
		transform = FlipY
	}

	out := make([]*Feature, 0, len(raw))
	for _, f := range raw {
		if f == nil || f.Geometry == nil {
			continue
		}
		out = append(out, &Feature{
			Name:     featureName(f.Properties),
			Layer:    layer,
			Geometry: transform(f.Geometry),
		})
	}
	return out
}
