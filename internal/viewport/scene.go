package viewport

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// FeatureSource supplies the features drawn on each layer.
type FeatureSource interface {
	Features(layer floorplan.LayerID) []*floorplan.Feature
}

// PointStyle sizes the circles point features (desks) are drawn as.
// The radius shrinks as the view zooms out, clamped to [MinRadius, MaxRadius].
type PointStyle struct {
	BaseRadius  float64
	MinRadius   float64
	MaxRadius   float64
	StrokeWidth float64
}

// DefaultPointStyle matches the desk markers.
func DefaultPointStyle() PointStyle {
	return PointStyle{BaseRadius: 4, MinRadius: 2, MaxRadius: 10, StrokeWidth: 1}
}

// Radius returns the on-screen radius in pixels at resolution res.
func (s PointStyle) Radius(res float64) float64 {
	r := s.BaseRadius / res
	return math.Min(math.Max(r, s.MinRadius), s.MaxRadius)
}

// Scene hit tests pixels against the features of a view, the way they are
// drawn: later layers above earlier ones, later features above earlier ones.
type Scene struct {
	view   *View
	source FeatureSource
	points PointStyle
}

// NewScene creates a scene drawing source through view.
func NewScene(view *View, source FeatureSource, points PointStyle) *Scene {
	return &Scene{view: view, source: source, points: points}
}

// HitTest implements floorplan.HitTester.
func (s *Scene) HitTest(px floorplan.Pixel, filter func(floorplan.LayerID) bool) *floorplan.Feature {
	if s.source == nil {
		return nil
	}
	world := s.view.Unproject(px)
	res := s.view.Resolution()

	for i := len(floorplan.RenderOrder) - 1; i >= 0; i-- {
		layer := floorplan.RenderOrder[i]
		if filter != nil && !filter(layer) {
			continue
		}
		features := s.source.Features(layer)
		for j := len(features) - 1; j >= 0; j-- {
			if s.contains(features[j].Geometry, px, world, res) {
				return features[j]
			}
		}
	}
	return nil
}

func (s *Scene) contains(g orb.Geometry, px floorplan.Pixel, world orb.Point, res float64) bool {
	switch geom := g.(type) {
	case orb.Point:
		return s.pointHit(geom, px, res)
	case orb.MultiPoint:
		for _, p := range geom {
			if s.pointHit(p, px, res) {
				return true
			}
		}
		return false
	case orb.Polygon:
		if !geom.Bound().Contains(world) {
			return false
		}
		return planar.PolygonContains(geom, world)
	case orb.MultiPolygon:
		if !geom.Bound().Contains(world) {
			return false
		}
		return planar.MultiPolygonContains(geom, world)
	default:
		return false
	}
}

func (s *Scene) pointHit(p orb.Point, px floorplan.Pixel, res float64) bool {
	at := s.view.Project(p)
	r := s.points.Radius(res) + s.points.StrokeWidth/2
	return math.Hypot(at.X-px.X, at.Y-px.Y) <= r
}
