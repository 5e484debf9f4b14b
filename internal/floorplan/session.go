package floorplan

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"
)

// Config bundles the tunables of a map session.
type Config struct {
	Animator  AnimatorConfig
	Hover     HoverConfig
	Transform Transformer
}

// DefaultConfig returns the viewer defaults.
func DefaultConfig() Config {
	return Config{
		Animator:  DefaultAnimatorConfig(),
		Hover:     DefaultHoverConfig(),
		Transform: FlipY,
	}
}

// LayerStatus is the load state of one layer.
type LayerStatus struct {
	Layer    LayerID `json:"layer"`
	Ready    bool    `json:"ready"`
	Features int     `json:"features"`
	Error    string  `json:"error,omitempty"`
}

// Session is one map view: its feature index, camera animator and hover
// controller. It is created with the map and torn down with Close.
type Session struct {
	index    *Index
	animator *Animator
	hover    *HoverController
	camera   Camera
	status   map[LayerID]LayerStatus
	closed   bool

	namesListeners []func([]string)
	log            *slog.Logger
}

// NewSession wires a session around the rendering collaborators.
func NewSession(cfg Config, camera Camera, hit HitTester, view TooltipView, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		index:    NewIndex(cfg.Transform),
		animator: NewAnimator(camera, cfg.Animator, log),
		hover:    NewHoverController(hit, view, cfg.Hover),
		camera:   camera,
		status:   make(map[LayerID]LayerStatus),
		log:      log,
	}
	for _, l := range RenderOrder {
		s.status[l] = LayerStatus{Layer: l}
	}
	return s
}

// Index exposes the feature index, e.g. to a hit tester drawing from it.
func (s *Session) Index() *Index { return s.index }

// Animator exposes the camera animator.
func (s *Session) Animator() *Animator { return s.animator }

// OnNames registers fn to receive the sorted names every time an
// interactive layer becomes ready.
func (s *Session) OnNames(fn func([]string)) {
	s.namesListeners = append(s.namesListeners, fn)
}

// LayerReady rebuilds the layer from freshly loaded features.
func (s *Session) LayerReady(layer LayerID, raw []*geojson.Feature) {
	if s.closed {
		return
	}
	s.index.Rebuild(layer, raw)
	s.status[layer] = LayerStatus{Layer: layer, Ready: true, Features: s.index.Len(layer)}
	s.log.Debug("layer ready", "layer", layer, "features", s.index.Len(layer))

	if !layer.Interactive() {
		return
	}
	names := s.index.AllNames()
	for _, fn := range s.namesListeners {
		fn(names)
	}
}

// LayerFailed records a load failure. The layer keeps whatever it held.
func (s *Session) LayerFailed(layer LayerID, err error) {
	if s.closed {
		return
	}
	st := s.status[layer]
	st.Error = err.Error()
	s.status[layer] = st
	s.log.Warn("layer load failed", "layer", layer, "error", err)
}

// Layers returns the load state of every layer in render order.
func (s *Session) Layers() []LayerStatus {
	out := make([]LayerStatus, 0, len(RenderOrder))
	for _, l := range RenderOrder {
		out = append(out, s.status[l])
	}
	return out
}

// SortedFeatureNames returns the selector list.
func (s *Session) SortedFeatureNames() []string {
	return s.index.AllNames()
}

// GoToFeature flies the camera to the named feature. It returns
// ErrNotFound, leaving the camera alone, when no feature matches.
func (s *Session) GoToFeature(name string) (uint64, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	f, ok := s.index.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	gen := s.animator.FlyTo(f)
	s.log.Debug("flying to feature", "name", name, "layer", f.Layer, "generation", gen)
	return gen, nil
}

// HandlePointer forwards a pointer event to the hover controller.
func (s *Session) HandlePointer(ev PointerEvent) {
	if s.closed {
		return
	}
	s.hover.HandlePointer(ev)
}

// PointerLeave clears the hover state.
func (s *Session) PointerLeave() {
	if s.closed {
		return
	}
	s.hover.Leave()
}

// HoverState returns the tooltip state.
func (s *Session) HoverState() Tooltip {
	return s.hover.State()
}

// Camera returns the current camera state.
func (s *Session) Camera() CameraState {
	return s.camera.State()
}

// Close stops any flight and detaches listeners. Later calls are no-ops.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.animator.InFlight() {
		s.camera.CancelAnimations()
	}
	s.hover.Leave()
	s.namesListeners = nil
}
