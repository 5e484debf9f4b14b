package floorplan

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() (*Session, *fakeCamera) {
	cam := &fakeCamera{state: CameraState{Center: orb.Point{0, 700}, Zoom: 2}}
	cfg := DefaultConfig()
	cfg.Transform = Identity
	return NewSession(cfg, cam, &fakeHit{}, nil, nil), cam
}

func TestSession_GoToFeature(t *testing.T) {
	s, cam := newTestSession()
	s.LayerReady(Rooms, []*geojson.Feature{rawFeature("Conference A", square(10, 10, 50, 50))})

	gen, err := s.GoToFeature("Conference A")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	require.Len(t, cam.animations, 2)
	assert.Equal(t, orb.Point{30, 30}, *cam.animations[0].steps[0].Center)

	_, err = s.GoToFeature("Nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, cam.animations, 2, "a failed lookup must not touch the camera")
	assert.Equal(t, 0, cam.cancels)
}

func TestSession_NamesRefreshOnEveryInteractiveLayer(t *testing.T) {
	s, _ := newTestSession()

	var got [][]string
	s.OnNames(func(names []string) { got = append(got, names) })

	s.LayerReady(Floors, []*geojson.Feature{rawFeature("L1", square(0, 0, 1, 1))})
	s.LayerReady(Desks, []*geojson.Feature{rawFeature("d", orb.Point{1, 1})})
	s.LayerReady(Rooms, []*geojson.Feature{rawFeature("c", square(0, 0, 1, 1))})

	require.Len(t, got, 2, "only interactive layers refresh the selector")
	assert.Equal(t, []string{"d"}, got[0])
	assert.Equal(t, []string{"c", "d"}, got[1])
	assert.Equal(t, []string{"c", "d"}, s.SortedFeatureNames())
}

func TestSession_LayerFailureKeepsLayerEmpty(t *testing.T) {
	s, _ := newTestSession()
	s.LayerFailed(Desks, errors.New("connection refused"))
	s.LayerReady(Rooms, []*geojson.Feature{rawFeature("r", square(0, 0, 1, 1))})

	layers := s.Layers()
	require.Len(t, layers, 4)
	assert.Equal(t, LayerStatus{Layer: Desks, Error: "connection refused"}, layers[3])
	assert.Equal(t, LayerStatus{Layer: Rooms, Ready: true, Features: 1}, layers[2])
	assert.Equal(t, []string{"r"}, s.SortedFeatureNames())
}

func TestSession_Close(t *testing.T) {
	s, cam := newTestSession()
	s.LayerReady(Rooms, []*geojson.Feature{rawFeature("r", square(0, 0, 1, 1))})
	_, err := s.GoToFeature("r")
	require.NoError(t, err)

	s.Close()
	s.Close()

	assert.Equal(t, 1, cam.cancels)
	_, err = s.GoToFeature("r")
	assert.ErrorIs(t, err, ErrSessionClosed)
}
