package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/runloop"
	"github.com/joeblew999/plat-floor/internal/viewport"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionConfig configures every map session a manager creates.
type SessionConfig struct {
	Session       floorplan.Config
	View          viewport.Config
	Points        viewport.PointStyle
	FrameInterval time.Duration
}

// DefaultSessionConfig returns the viewer defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Session:       floorplan.DefaultConfig(),
		View:          viewport.DefaultConfig(),
		Points:        viewport.DefaultPointStyle(),
		FrameInterval: 16 * time.Millisecond,
	}
}

// SessionManager owns the live map sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*MapSession

	layers *LayerService
	bus    *EventBus
	cfg    SessionConfig
	log    *slog.Logger
}

// NewSessionManager creates a session manager.
func NewSessionManager(layers *LayerService, bus *EventBus, cfg SessionConfig, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultSessionConfig().FrameInterval
	}
	return &SessionManager{
		sessions: make(map[string]*MapSession),
		layers:   layers,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// Bus returns the event bus sessions publish to.
func (m *SessionManager) Bus() *EventBus {
	return m.bus
}

// Config returns the settings new sessions are created with.
func (m *SessionManager) Config() SessionConfig {
	return m.cfg
}

// Create starts a new map session and begins loading every layer.
func (m *SessionManager) Create() *MapSession {
	ms := newMapSession(uuid.NewString(), m.layers, m.bus, m.cfg, m.log)

	m.mu.Lock()
	m.sessions[ms.ID] = ms
	m.mu.Unlock()

	ms.start()
	m.log.Info("session created", "session", ms.ID)
	return ms
}

// Get returns the session with id.
func (m *SessionManager) Get(id string) (*MapSession, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ms, nil
}

// List returns the IDs of the live sessions, oldest first.
func (m *SessionManager) List() []string {
	m.mu.RLock()
	all := make([]*MapSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Created.Before(all[j].Created) })
	ids := make([]string, len(all))
	for i, ms := range all {
		ids[i] = ms.ID
	}
	return ids
}

// Close tears down the session with id.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	ms.close()
	m.log.Info("session closed", "session", id)
	return nil
}

// Attach registers an event stream on the session with id. Calling the
// returned release ends the registration and closes the session if no
// other stream is attached.
func (m *SessionManager) Attach(id string) (release func(), err error) {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if ok {
		ms.streams++
	}
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			ms.streams--
			m.mu.Unlock()
			m.CloseIdle(id)
		})
	}, nil
}

// CloseIdle closes the session with id unless an event stream is attached
// to it. It reports whether the session was closed.
func (m *SessionManager) CloseIdle(id string) bool {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if !ok || ms.streams > 0 {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	ms.close()
	m.log.Info("idle session closed", "session", id)
	return true
}

// CloseAll tears down every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*MapSession)
	m.mu.Unlock()

	for _, ms := range all {
		ms.close()
	}
}

// MapSession is one viewer: a floorplan session driven by its own run loop,
// a camera that animates on a frame clock, and a hit-testing scene.
type MapSession struct {
	ID      string
	Created time.Time

	loop    *runloop.Loop
	view    *viewport.View
	session *floorplan.Session
	layers  *LayerService
	bus     *EventBus
	frame   time.Duration
	log     *slog.Logger

	// loadSeq tags layer loads so a slower, older load cannot overwrite a
	// newer one.
	seqMu   sync.Mutex
	loadSeq map[floorplan.LayerID]uint64

	// frames stops the frame ticker. Owned by the loop; nil while the
	// camera is idle.
	frames func()

	streams int // guarded by SessionManager.mu

	ctx    context.Context
	cancel context.CancelFunc
}

// indexSource draws the scene from the session index, which only exists
// once the session is built.
type indexSource struct {
	index *floorplan.Index
}

func (s *indexSource) Features(layer floorplan.LayerID) []*floorplan.Feature {
	if s.index == nil {
		return nil
	}
	return s.index.Features(layer)
}

func newMapSession(id string, layers *LayerService, bus *EventBus, cfg SessionConfig, log *slog.Logger) *MapSession {
	log = log.With("session", id)
	ctx, cancel := context.WithCancel(context.Background())

	ms := &MapSession{
		ID:      id,
		Created: time.Now(),
		loop:    runloop.New(),
		view:    viewport.NewView(cfg.View, nil),
		layers:  layers,
		bus:     bus,
		frame:   cfg.FrameInterval,
		log:     log,
		loadSeq: make(map[floorplan.LayerID]uint64),
		ctx:     ctx,
		cancel:  cancel,
	}

	src := &indexSource{}
	scene := viewport.NewScene(ms.view, src, cfg.Points)
	ms.session = floorplan.NewSession(cfg.Session, ms.view, scene, &tooltipSink{ms: ms}, log)
	src.index = ms.session.Index()

	ms.session.OnNames(func(names []string) {
		ms.publish(EventNames, names)
	})
	ms.session.Animator().OnSettled(func(f floorplan.Flight) {
		ms.publish(EventFlight, f)
	})
	return ms
}

func (ms *MapSession) start() {
	go ms.loop.Run(ms.ctx)

	for _, l := range floorplan.RenderOrder {
		ms.reload(l)
	}
}

// startFrames runs the frame ticker until the camera stops animating. Must
// run on the loop.
func (ms *MapSession) startFrames() {
	if ms.frames != nil {
		return
	}
	ms.frames = ms.loop.Every(ms.frame, func(now time.Time) {
		if ms.view.Frame(now) {
			ms.publish(EventCamera, ms.view.State())
		}
		if !ms.view.Animating() && ms.frames != nil {
			ms.frames()
			ms.frames = nil
		}
	})
}

// reload starts a load of layer that supersedes any load still in flight.
func (ms *MapSession) reload(layer floorplan.LayerID) {
	ms.seqMu.Lock()
	ms.loadSeq[layer]++
	seq := ms.loadSeq[layer]
	ms.seqMu.Unlock()
	go ms.load(layer, seq)
}

func (ms *MapSession) current(layer floorplan.LayerID, seq uint64) bool {
	ms.seqMu.Lock()
	defer ms.seqMu.Unlock()
	return ms.loadSeq[layer] == seq
}

// load fetches layer off the loop and hands the result to the session on it.
func (ms *MapSession) load(layer floorplan.LayerID, seq uint64) {
	fc, err := ms.layers.Load(ms.ctx, layer)
	if ms.ctx.Err() != nil {
		return
	}
	_ = ms.loop.Post(func() {
		if !ms.current(layer, seq) {
			ms.log.Debug("dropping superseded layer load", "layer", layer, "seq", seq)
			return
		}
		if err != nil {
			ms.session.LayerFailed(layer, err)
		} else {
			ms.session.LayerReady(layer, fc.Features)
		}
		for _, st := range ms.session.Layers() {
			if st.Layer == layer {
				ms.publish(EventLayer, st)
			}
		}
	})
}

func (ms *MapSession) close() {
	_ = ms.loop.Call(context.Background(), ms.session.Close)
	ms.cancel()
	ms.loop.Stop()
	ms.publish(EventClosed, nil)
}

func (ms *MapSession) publish(kind string, data any) {
	if ms.bus == nil {
		return
	}
	ms.bus.Publish(Event{Session: ms.ID, Kind: kind, Data: data})
}

// do runs fn on the session's loop.
func (ms *MapSession) do(ctx context.Context, fn func()) error {
	err := ms.loop.Call(ctx, fn)
	if errors.Is(err, runloop.ErrStopped) {
		return floorplan.ErrSessionClosed
	}
	return err
}

// Names returns the sorted feature names.
func (ms *MapSession) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := ms.do(ctx, func() { names = ms.session.SortedFeatureNames() })
	return names, err
}

// GoTo flies the camera to the named feature and returns the flight
// generation.
func (ms *MapSession) GoTo(ctx context.Context, name string) (uint64, error) {
	var gen uint64
	var goErr error
	if err := ms.do(ctx, func() {
		gen, goErr = ms.session.GoToFeature(name)
		if goErr == nil {
			ms.startFrames()
		}
	}); err != nil {
		return 0, err
	}
	return gen, goErr
}

// Pointer handles a pointer event and returns the resulting tooltip.
func (ms *MapSession) Pointer(ctx context.Context, ev floorplan.PointerEvent) (floorplan.Tooltip, error) {
	var tip floorplan.Tooltip
	err := ms.do(ctx, func() {
		ms.session.HandlePointer(ev)
		tip = ms.session.HoverState()
	})
	return tip, err
}

// Leave handles the pointer leaving the viewport.
func (ms *MapSession) Leave(ctx context.Context) error {
	return ms.do(ctx, ms.session.PointerLeave)
}

// Hover returns the tooltip state.
func (ms *MapSession) Hover(ctx context.Context) (floorplan.Tooltip, error) {
	var tip floorplan.Tooltip
	err := ms.do(ctx, func() { tip = ms.session.HoverState() })
	return tip, err
}

// Camera returns the camera state.
func (ms *MapSession) Camera(ctx context.Context) (floorplan.CameraState, error) {
	var cam floorplan.CameraState
	err := ms.do(ctx, func() { cam = ms.session.Camera() })
	return cam, err
}

// Layers returns the load state of every layer.
func (ms *MapSession) Layers(ctx context.Context) ([]floorplan.LayerStatus, error) {
	var out []floorplan.LayerStatus
	err := ms.do(ctx, func() { out = ms.session.Layers() })
	return out, err
}

// Resize sets the viewport size in pixels.
func (ms *MapSession) Resize(ctx context.Context, width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport size %vx%v", width, height)
	}
	return ms.do(ctx, func() { ms.view.Resize(width, height) })
}

// Info summarizes the session.
func (ms *MapSession) Info(ctx context.Context) (SessionInfo, error) {
	info := SessionInfo{ID: ms.ID, Created: ms.Created}
	err := ms.do(ctx, func() {
		info.Layers = ms.session.Layers()
		info.Camera = ms.session.Camera()
	})
	return info, err
}

// Reload drops the cached layer and loads it again. The result arrives
// asynchronously as a layer event.
func (ms *MapSession) Reload(ctx context.Context, layer floorplan.LayerID) error {
	select {
	case <-ms.loop.Done():
		return floorplan.ErrSessionClosed
	default:
	}
	ms.layers.Invalidate(ctx, layer)
	ms.reload(layer)
	return nil
}

// tooltipSink publishes tooltip changes for the viewer to render.
type tooltipSink struct {
	ms  *MapSession
	tip floorplan.Tooltip
}

func (t *tooltipSink) Show(text string) {
	t.tip.Visible = true
	t.tip.Text = text
	t.ms.publish(EventTooltip, t.tip)
}

func (t *tooltipSink) Move(x, y float64) {
	t.tip.X, t.tip.Y = x, y
	if t.tip.Visible {
		t.ms.publish(EventTooltip, t.tip)
	}
}

func (t *tooltipSink) Hide() {
	t.tip.Visible = false
	t.ms.publish(EventTooltip, t.tip)
}
