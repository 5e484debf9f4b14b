// Package viewport is a headless stand-in for the map renderer: a view that
// plays camera animations frame by frame, the projection between floor
// plan coordinates and screen pixels, and pixel hit testing.
package viewport

import (
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// tileSize is the pixel width the whole extent spans at zoom 0.
const tileSize = 256

// Config describes the view and the projection it displays.
type Config struct {
	Center  orb.Point
	Zoom    float64
	MinZoom float64
	MaxZoom float64
	// Extent is the projection's valid area in floor plan units.
	Extent orb.Bound
	// Width and Height are the viewport size in pixels.
	Width  float64
	Height float64
}

// DefaultConfig is the office floor plan view.
func DefaultConfig() Config {
	return Config{
		Center:  orb.Point{0, 700},
		Zoom:    2,
		MinZoom: 1,
		MaxZoom: 5,
		Extent:  orb.Bound{Min: orb.Point{-292.21, -731.34}, Max: orb.Point{495.18, 2195.93}},
		Width:   1024,
		Height:  768,
	}
}

type series struct {
	steps     []floorplan.Transition
	step      int
	stepStart time.Time
	from      floorplan.CameraState
	onTick    func(bool)
}

// View holds the camera and plays animations against it. It implements
// floorplan.Camera and, like the session, is only touched from the run loop.
type View struct {
	cfg    Config
	center orb.Point
	zoom   float64
	maxRes float64
	series []*series
	clock  func() time.Time
}

// NewView creates a view. A nil clock means time.Now.
func NewView(cfg Config, clock func() time.Time) *View {
	if clock == nil {
		clock = time.Now
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		d := DefaultConfig()
		cfg.Width, cfg.Height = d.Width, d.Height
	}
	if cfg.MaxZoom <= cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = 0, 28
	}

	maxRes := 1.0
	if w, h := cfg.Extent.Max[0]-cfg.Extent.Min[0], cfg.Extent.Max[1]-cfg.Extent.Min[1]; w > 0 || h > 0 {
		maxRes = math.Max(w, h) / tileSize
	}

	v := &View{cfg: cfg, center: cfg.Center, maxRes: maxRes, clock: clock}
	v.zoom = v.clampZoom(cfg.Zoom)
	return v
}

// State implements floorplan.Camera.
func (v *View) State() floorplan.CameraState {
	return floorplan.CameraState{Center: v.center, Zoom: v.zoom}
}

// Animate implements floorplan.Camera. The series starts now; each step
// starts from wherever the camera is when the previous step ends.
func (v *View) Animate(onTick func(bool), steps ...floorplan.Transition) {
	if len(steps) == 0 {
		if onTick != nil {
			onTick(true)
		}
		return
	}
	v.series = append(v.series, &series{
		steps:     steps,
		stepStart: v.clock(),
		from:      v.State(),
		onTick:    onTick,
	})
}

// CancelAnimations implements floorplan.Camera. The camera stays where the
// last frame left it.
func (v *View) CancelAnimations() {
	cancelled := v.series
	v.series = nil
	for _, s := range cancelled {
		if s.onTick != nil {
			s.onTick(false)
		}
	}
}

// Animating reports whether any series is still playing.
func (v *View) Animating() bool {
	return len(v.series) > 0
}

// Frame advances every playing series to now. It reports whether the
// camera moved.
func (v *View) Frame(now time.Time) bool {
	if len(v.series) == 0 {
		return false
	}
	before := v.State()

	var finished []*series
	playing := v.series[:0]
	for _, s := range v.series {
		if v.advance(s, now) {
			finished = append(finished, s)
		} else {
			playing = append(playing, s)
		}
	}
	v.series = playing

	for _, s := range finished {
		if s.onTick != nil {
			s.onTick(true)
		}
	}
	return v.State() != before
}

// advance applies s at now and reports whether its last step has ended.
func (v *View) advance(s *series, now time.Time) bool {
	for s.step < len(s.steps) {
		step := s.steps[s.step]

		frac := 1.0
		if step.Duration > 0 {
			frac = math.Min(float64(now.Sub(s.stepStart))/float64(step.Duration), 1)
		}
		if frac < 0 {
			frac = 0
		}
		t := inAndOut(frac)

		if step.Center != nil {
			v.center = orb.Point{
				s.from.Center[0] + t*(step.Center[0]-s.from.Center[0]),
				s.from.Center[1] + t*(step.Center[1]-s.from.Center[1]),
			}
		}
		if step.Zoom != nil {
			v.zoom = v.clampZoom(s.from.Zoom + t*(*step.Zoom-s.from.Zoom))
		}

		if frac < 1 {
			return false
		}
		s.step++
		s.stepStart = s.stepStart.Add(step.Duration)
		s.from = v.State()
	}
	return true
}

// Resize sets the viewport size in pixels.
func (v *View) Resize(width, height float64) {
	if width > 0 && height > 0 {
		v.cfg.Width, v.cfg.Height = width, height
	}
}

// Size returns the viewport size in pixels.
func (v *View) Size() (width, height float64) {
	return v.cfg.Width, v.cfg.Height
}

// Resolution is floor plan units per pixel at the current zoom.
func (v *View) Resolution() float64 {
	return v.maxRes / math.Pow(2, v.zoom)
}

// Project maps a floor plan coordinate to a viewport pixel.
func (v *View) Project(p orb.Point) floorplan.Pixel {
	res := v.Resolution()
	return floorplan.Pixel{
		X: (p[0]-v.center[0])/res + v.cfg.Width/2,
		Y: (v.center[1]-p[1])/res + v.cfg.Height/2,
	}
}

// Unproject maps a viewport pixel to a floor plan coordinate.
func (v *View) Unproject(px floorplan.Pixel) orb.Point {
	res := v.Resolution()
	return orb.Point{
		v.center[0] + (px.X-v.cfg.Width/2)*res,
		v.center[1] - (px.Y-v.cfg.Height/2)*res,
	}
}

func (v *View) clampZoom(z float64) float64 {
	return math.Max(v.cfg.MinZoom, math.Min(v.cfg.MaxZoom, z))
}

// inAndOut eases a transition in and out: t²(3-2t).
func inAndOut(t float64) float64 {
	return t * t * (3 - 2*t)
}
