package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/viewport"
)

type fakeStore struct {
	mu     sync.Mutex
	layers map[floorplan.LayerID]*geojson.FeatureCollection
	fail   map[floorplan.LayerID]error
	loads  map[floorplan.LayerID]int
	gates  map[floorplan.LayerID]*gate
}

// gate holds the first load of a layer until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func (s *fakeStore) hold(layer floorplan.LayerID) *gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	s.gates[layer] = g
	return g
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		layers: make(map[floorplan.LayerID]*geojson.FeatureCollection),
		fail:   make(map[floorplan.LayerID]error),
		loads:  make(map[floorplan.LayerID]int),
		gates:  make(map[floorplan.LayerID]*gate),
	}
}

func (s *fakeStore) set(layer floorplan.LayerID, features ...*geojson.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	s.layers[layer] = fc
}

func (s *fakeStore) LoadLayer(ctx context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error) {
	s.mu.Lock()
	s.loads[layer]++
	g := s.gates[layer]
	delete(s.gates, layer)
	err := s.fail[layer]
	fc, ok := s.layers[layer]
	s.mu.Unlock()

	if g != nil {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		fc = geojson.NewFeatureCollection()
	}
	return fc, nil
}

func named(name string, g orb.Geometry) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["name"] = name
	return f
}

func box(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}

// testSessionConfig maps pixel (x,y) to world (x,100-y) on a 100x100 view.
func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.Session.Transform = floorplan.Identity
	cfg.Session.Animator = floorplan.AnimatorConfig{Duration: 60 * time.Millisecond, ZoomDip: 1}
	cfg.View = viewport.Config{
		Center:  orb.Point{50, 50},
		Zoom:    2,
		MinZoom: 0,
		MaxZoom: 5,
		Extent:  orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1024, 1024}},
		Width:   100,
		Height:  100,
	}
	cfg.FrameInterval = 5 * time.Millisecond
	return cfg
}

func newTestManager(t *testing.T, st *fakeStore) *SessionManager {
	t.Helper()
	m := NewSessionManager(NewLayerService(st, nil, nil), NewEventBus(), testSessionConfig(), nil)
	t.Cleanup(m.CloseAll)
	return m
}

func waitNames(t *testing.T, ms *MapSession, want []string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		names, err := ms.Names(context.Background())
		return err == nil && assert.ObjectsAreEqual(want, names)
	}, time.Second, 5*time.Millisecond)
}

func TestEventBus_FiltersBySession(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe("a")
	all := bus.Subscribe("")
	defer bus.Unsubscribe(all)

	bus.Publish(Event{Session: "b", Kind: EventNames})
	bus.Publish(Event{Session: "a", Kind: EventCamera})

	assert.Equal(t, EventCamera, (<-a).Kind)
	assert.Len(t, a, 0)
	assert.Len(t, all, 2)

	bus.Unsubscribe(a)
	bus.Unsubscribe(a)
	_, open := <-a
	assert.False(t, open)
}

func TestLayerService_Load(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-101", box(0, 0, 4, 3)))
	svc := NewLayerService(st, nil, nil)

	fc, err := svc.Load(context.Background(), floorplan.Rooms)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "R-101", fc.Features[0].Properties["name"])

	raw, err := svc.Raw(context.Background(), floorplan.Rooms)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"FeatureCollection"`)
	assert.Equal(t, 2, st.loads[floorplan.Rooms], "no cache configured")

	st.fail[floorplan.Desks] = errors.New("connection refused")
	_, err = svc.Load(context.Background(), floorplan.Desks)
	assert.ErrorContains(t, err, "connection refused")

	_, err = NewLayerService(nil, nil, nil).Raw(context.Background(), floorplan.Rooms)
	assert.ErrorContains(t, err, "no store")
}

func TestLayerService_List(t *testing.T) {
	infos := NewLayerService(nil, nil, nil).List()
	require.Len(t, infos, 4)
	assert.Equal(t, "floors", infos[0].Name)
	assert.Equal(t, LayerInfo{Name: "desks", Interactive: true, URL: "/api/geojson/desks"}, infos[3])
}

func TestLayerCache_NilIsDisabled(t *testing.T) {
	var c *LayerCache
	assert.Nil(t, NewLayerCache(nil, time.Hour))

	_, ok := c.Get(context.Background(), floorplan.Rooms)
	assert.False(t, ok)
	assert.NoError(t, c.Set(context.Background(), floorplan.Rooms, []byte("{}")))
	assert.NoError(t, c.Delete(context.Background(), floorplan.Rooms))
}

func TestSourceService(t *testing.T) {
	dir := t.TempDir()
	sources := filepath.Join(dir, "sources")
	require.NoError(t, os.MkdirAll(sources, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sources, "rooms.geojson"), make([]byte, 2048), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sources, "notes.txt"), []byte("x"), 0644))

	svc := NewSourceService(dir)
	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, SourceFile{Name: "rooms.geojson", Size: "2.0 KiB", FileType: "GeoJSON"}, files[0])

	path, err := svc.Path("rooms.geojson")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sources, "rooms.geojson"), path)

	for _, bad := range []string{"", "../rooms.geojson", "a/b.geojson", "notes.txt", "missing.geojson"} {
		_, err := svc.Path(bad)
		assert.Error(t, err, bad)
	}

	empty, err := NewSourceService(filepath.Join(dir, "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSessionManager_LoadsLayers(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-2", box(40, 40, 60, 60)), named("R-1", box(0, 0, 10, 10)))
	st.set(floorplan.Desks, named("D-7", orb.Point{80, 80}))
	st.fail[floorplan.Obstacles] = errors.New("table missing")
	m := newTestManager(t, st)

	ms := m.Create()
	waitNames(t, ms, []string{"D-7", "R-1", "R-2"})

	assert.Eventually(t, func() bool {
		layers, err := ms.Layers(context.Background())
		return err == nil && layers[1].Error != "" && layers[0].Ready
	}, time.Second, 5*time.Millisecond)

	got, err := m.Get(ms.ID)
	require.NoError(t, err)
	assert.Same(t, ms, got)
	assert.Equal(t, []string{ms.ID}, m.List())
}

func TestSessionManager_GoTo(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-1", box(10, 10, 50, 50)))
	m := newTestManager(t, st)

	events := m.Bus().Subscribe("")
	defer m.Bus().Unsubscribe(events)

	ms := m.Create()
	waitNames(t, ms, []string{"R-1"})

	_, err := ms.GoTo(context.Background(), "nope")
	assert.ErrorIs(t, err, floorplan.ErrNotFound)

	gen, err := ms.GoTo(context.Background(), "R-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	var flight floorplan.Flight
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Kind == EventFlight {
					flight = ev.Data.(floorplan.Flight)
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, flight.Completed)
	assert.Equal(t, uint64(1), flight.Generation)

	cam, err := ms.Camera(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{30, 30}, cam.Center)
	assert.Equal(t, 2.0, cam.Zoom)
}

func TestSessionManager_Pointer(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-1", box(40, 40, 60, 60)))
	m := newTestManager(t, st)
	ms := m.Create()
	waitNames(t, ms, []string{"R-1"})

	// Zoom 2 on a 1024 extent is resolution 1: pixel (50,50) is world (50,50).
	tip, err := ms.Pointer(context.Background(), floorplan.PointerEvent{
		Kind:  floorplan.PointerMove,
		Pixel: floorplan.Pixel{X: 50, Y: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, floorplan.Tooltip{Visible: true, Text: "R-1", X: 60, Y: 50}, tip)

	tip, err = ms.Pointer(context.Background(), floorplan.PointerEvent{
		Kind:   floorplan.PointerMove,
		Pixel:  floorplan.Pixel{X: 50, Y: 50},
		Target: floorplan.ElementPath([]string{"zoom-in"}, []string{"map-control"}),
	})
	require.NoError(t, err)
	assert.False(t, tip.Visible, "pointer over a map control")

	require.NoError(t, ms.Leave(context.Background()))
	tip, err = ms.Hover(context.Background())
	require.NoError(t, err)
	assert.False(t, tip.Visible)
}

func TestSessionManager_Close(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	ms := m.Create()

	require.NoError(t, m.Close(ms.ID))
	assert.ErrorIs(t, m.Close(ms.ID), ErrSessionNotFound)
	_, err := m.Get(ms.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = ms.GoTo(context.Background(), "R-1")
	assert.ErrorIs(t, err, floorplan.ErrSessionClosed)
	assert.ErrorIs(t, ms.Reload(context.Background(), floorplan.Rooms), floorplan.ErrSessionClosed)
}

func TestMapSession_Reload(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-1", box(0, 0, 1, 1)))
	m := newTestManager(t, st)
	ms := m.Create()
	waitNames(t, ms, []string{"R-1"})

	st.set(floorplan.Rooms, named("R-9", box(0, 0, 1, 1)))
	require.NoError(t, ms.Reload(context.Background(), floorplan.Rooms))
	waitNames(t, ms, []string{"R-9"})
}

func TestMapSession_ReloadSupersedesSlowLoad(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-OLD", box(0, 0, 1, 1)))
	first := st.hold(floorplan.Rooms)
	m := newTestManager(t, st)

	ms := m.Create()
	<-first.entered

	st.set(floorplan.Rooms, named("R-NEW", box(0, 0, 1, 1)))
	require.NoError(t, ms.Reload(context.Background(), floorplan.Rooms))
	waitNames(t, ms, []string{"R-NEW"})

	close(first.release)
	assert.Never(t, func() bool {
		names, err := ms.Names(context.Background())
		return err != nil || !assert.ObjectsAreEqual([]string{"R-NEW"}, names)
	}, 100*time.Millisecond, 5*time.Millisecond, "the initial load finished last but is stale")
}

func TestMapSession_FramesOnlyWhileFlying(t *testing.T) {
	st := newFakeStore()
	st.set(floorplan.Rooms, named("R-1", box(10, 10, 50, 50)))
	m := newTestManager(t, st)
	ms := m.Create()
	waitNames(t, ms, []string{"R-1"})

	ticking := func() bool {
		var on bool
		_ = ms.loop.Call(context.Background(), func() { on = ms.frames != nil })
		return on
	}
	assert.False(t, ticking(), "idle camera")

	_, err := ms.GoTo(context.Background(), "R-1")
	require.NoError(t, err)
	assert.True(t, ticking())

	assert.Eventually(t, func() bool { return !ticking() }, 2*time.Second, 5*time.Millisecond)
	cam, err := ms.Camera(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orb.Point{30, 30}, cam.Center)
}
