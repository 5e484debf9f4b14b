package floorplan

import (
	"log/slog"
	"time"

	"github.com/paulmach/orb"
)

// CameraState is the center and zoom of the map view.
type CameraState struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Transition is one step of a camera animation. Nil fields are not animated.
type Transition struct {
	Center   *orb.Point
	Zoom     *float64
	Duration time.Duration
}

// PanTo returns a transition moving the center to c.
func PanTo(c orb.Point, d time.Duration) Transition {
	return Transition{Center: &c, Duration: d}
}

// ZoomTo returns a transition moving the zoom to z.
func ZoomTo(z float64, d time.Duration) Transition {
	return Transition{Zoom: &z, Duration: d}
}

// Camera is the view the animator drives. Animate plays steps in sequence
// and calls onTick(true) when the last one ends, or onTick(false) if the
// series is cancelled. Separate Animate calls run concurrently.
type Camera interface {
	State() CameraState
	Animate(onTick func(completed bool), steps ...Transition)
	CancelAnimations()
}

// Flight describes a finished FlyTo.
type Flight struct {
	Generation uint64
	Target     *Feature
	Completed  bool
}

type subAnimation int

const (
	panAnimation subAnimation = iota
	zoomAnimation
	subAnimationCount
)

func (s subAnimation) String() string {
	if s == panAnimation {
		return "pan"
	}
	return "zoom"
}

// handle tags a sub-animation callback with the flight that started it.
type handle struct {
	generation uint64
	kind       subAnimation
}

type flight struct {
	Flight
	reported  [subAnimationCount]bool
	completed [subAnimationCount]bool
	settled   bool
}

func (f *flight) joined() bool {
	for _, r := range f.reported {
		if !r {
			return false
		}
	}
	return true
}

// AnimatorConfig tunes FlyTo.
type AnimatorConfig struct {
	// Duration of the pan. The zoom dip and the zoom return take a third
	// each.
	Duration time.Duration
	// ZoomDip is how far the zoom drops mid-flight.
	ZoomDip float64
}

// DefaultAnimatorConfig matches the viewer's swoop.
func DefaultAnimatorConfig() AnimatorConfig {
	return AnimatorConfig{Duration: 2000 * time.Millisecond, ZoomDip: 2}
}

// Animator flies the camera to features. It is the only writer of the
// camera; a new FlyTo supersedes any flight still in the air.
type Animator struct {
	camera     Camera
	cfg        AnimatorConfig
	generation uint64
	active     *flight
	listeners  []func(Flight)
	log        *slog.Logger
}

// NewAnimator creates an animator for camera.
func NewAnimator(camera Camera, cfg AnimatorConfig, log *slog.Logger) *Animator {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultAnimatorConfig().Duration
	}
	if log == nil {
		log = slog.Default()
	}
	return &Animator{camera: camera, cfg: cfg, log: log}
}

// OnSettled registers fn to run once per flight, when both sub-animations
// of the current generation have reported.
func (a *Animator) OnSettled(fn func(Flight)) {
	a.listeners = append(a.listeners, fn)
}

// InFlight reports whether a flight is still waiting for its joint
// completion.
func (a *Animator) InFlight() bool {
	return a.active != nil && !a.active.settled
}

// Generation returns the id of the most recent flight.
func (a *Animator) Generation() uint64 {
	return a.generation
}

// FlyTo pans to the centroid of f over the configured duration while the
// zoom dips and comes back. It returns the flight's generation.
func (a *Animator) FlyTo(f *Feature) uint64 {
	a.generation++
	gen := a.generation

	if a.InFlight() {
		a.log.Debug("flight superseded", "generation", a.active.Generation, "by", gen)
		// Callbacks fired by the cancel carry the old generation and are
		// dropped in report.
		a.camera.CancelAnimations()
	}

	a.active = &flight{Flight: Flight{Generation: gen, Target: f}}

	start := a.camera.State()
	center := f.Centroid()
	third := a.cfg.Duration / 3

	a.camera.Animate(a.callback(gen, panAnimation),
		PanTo(center, a.cfg.Duration),
	)
	a.camera.Animate(a.callback(gen, zoomAnimation),
		ZoomTo(start.Zoom-a.cfg.ZoomDip, third),
		ZoomTo(start.Zoom, third),
	)
	return gen
}

func (a *Animator) callback(gen uint64, kind subAnimation) func(bool) {
	h := handle{generation: gen, kind: kind}
	return func(completed bool) { a.report(h, completed) }
}

func (a *Animator) report(h handle, completed bool) {
	if h.generation != a.generation || a.active == nil {
		a.log.Debug("late animation callback dropped", "generation", h.generation, "part", h.kind)
		return
	}

	fl := a.active
	if fl.settled || fl.reported[h.kind] {
		return
	}
	fl.reported[h.kind] = true
	fl.completed[h.kind] = completed

	if !fl.joined() {
		return
	}

	fl.settled = true
	fl.Completed = fl.completed[panAnimation] && fl.completed[zoomAnimation]
	for _, fn := range a.listeners {
		fn(fl.Flight)
	}
}
