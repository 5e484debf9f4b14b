package viewer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/service"
	"github.com/joeblew999/plat-floor/internal/templates"
	"github.com/joeblew999/plat-floor/internal/viewport"
)

type memStore map[floorplan.LayerID]*geojson.FeatureCollection

func (m memStore) LoadLayer(_ context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error) {
	if fc, ok := m[layer]; ok {
		return fc, nil
	}
	return geojson.NewFeatureCollection(), nil
}

func rooms(names ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, n := range names {
		x := float64(i * 10)
		f := geojson.NewFeature(orb.Polygon{orb.Ring{{x, 0}, {x + 5, 0}, {x + 5, 5}, {x, 5}, {x, 0}}})
		f.Properties["name"] = n
		fc.Append(f)
	}
	return fc
}

func newTestServer(t *testing.T) (*http.ServeMux, *service.SessionManager) {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, configure func(*Handler)) (*http.ServeMux, *service.SessionManager) {
	t.Helper()
	renderer, err := templates.New("../../../web/templates/fragments")
	require.NoError(t, err)

	layers := service.NewLayerService(memStore{floorplan.Rooms: rooms("R-2", "R-1")}, nil, nil)
	cfg := service.DefaultSessionConfig()
	cfg.Session.Animator.Duration = 30 * time.Millisecond
	cfg.FrameInterval = 5 * time.Millisecond
	sessions := service.NewSessionManager(layers, service.NewEventBus(), cfg, nil)
	t.Cleanup(sessions.CloseAll)

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("viewer test", "1.0.0"))
	h := NewHandler(sessions, renderer, nil)
	if configure != nil {
		configure(h)
	}
	h.RegisterRoutes(api)
	return mux, sessions
}

func readySession(t *testing.T, sessions *service.SessionManager) *service.MapSession {
	t.Helper()
	ms := sessions.Create()
	require.Eventually(t, func() bool {
		names, err := ms.Names(context.Background())
		return err == nil && len(names) == 2
	}, time.Second, 5*time.Millisecond)
	return ms
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"featureselect":"R-1","pointerx":12.5,"pointerdrag":true}`))
	require.NoError(t, err)
	assert.Equal(t, "R-1", s.String("featureselect"))
	assert.Equal(t, 12.5, s.Float("pointerx"))
	assert.True(t, s.Bool("pointerdrag"))
	assert.False(t, s.Has("pointery"))
	assert.Empty(t, s.String("pointerx"), "wrong type reads as zero")

	s, err = ParseSignals(nil)
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = ParseSignals([]byte("{"))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	mux, sessions := newTestServer(t)

	rec := do(mux, http.MethodPost, "/api/v1/viewer/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "datastar-patch-signals")

	ids := sessions.List()
	require.Len(t, ids, 1)
	assert.Contains(t, rec.Body.String(), ids[0])
}

func TestSelect(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	rec := do(mux, http.MethodGet, "/api/v1/viewer/"+ms.ID+"/select", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "datastar-patch-elements")
	assert.Contains(t, body, "#feature-select")
	assert.Contains(t, body, `<option value="">Select a feature</option>`)
	assert.Less(t, strings.Index(body, `value="R-1"`), strings.Index(body, `value="R-2"`), "options are sorted")

	rec = do(mux, http.MethodGet, "/api/v1/viewer/missing/select", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestZoom(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	rec := do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/zoom", `{"featureselect":"R-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"flight":1`)

	rec = do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/zoom", `{"featureselect":"Nonexistent"}`)
	assert.Contains(t, rec.Body.String(), "feature not found")

	rec = do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/zoom", `{"featureselect":""}`)
	assert.NotContains(t, rec.Body.String(), "datastar-patch")

	rec = do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/zoom", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPointer(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	rec := do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/pointer", `{"pointerx":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/pointer", `{"pointerx":1,"pointery":2,"pointercontrol":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visible":false`)

	rec = do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/leave", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tooltip")
}

func TestEvents_StreamsUntilSessionCloses(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/viewer/"+ms.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if strings.Contains(sc.Text(), "layer-status") {
			break
		}
	}
	assert.Contains(t, strings.Join(lines, "\n"), `value="R-1"`)

	go func() {
		_, _ = ms.GoTo(context.Background(), "R-1")
		time.Sleep(100 * time.Millisecond)
		_ = sessions.Close(ms.ID)
	}()

	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	all := strings.Join(lines, "\n")
	assert.Contains(t, all, `"camera"`)
	assert.Contains(t, all, `"flying":false`)
}

func openEvents(t *testing.T, ctx context.Context, url string) *bufio.Scanner {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.Contains(sc.Text(), "layer-status") {
			break
		}
	}
	return sc
}

func TestEvents_LastStreamClosesSession(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	srv := httptest.NewServer(mux)
	defer srv.Close()
	url := srv.URL + "/api/v1/viewer/" + ms.ID + "/events"

	ctx1, cancel1 := context.WithCancel(context.Background())
	openEvents(t, ctx1, url)
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	openEvents(t, ctx2, url)

	cancel1()
	assert.Never(t, func() bool {
		_, err := sessions.Get(ms.ID)
		return err != nil
	}, 100*time.Millisecond, 5*time.Millisecond, "a second tab is still streaming")

	cancel2()
	assert.Eventually(t, func() bool {
		_, err := sessions.Get(ms.ID)
		return errors.Is(err, service.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)

	_, err := ms.Names(context.Background())
	assert.ErrorIs(t, err, floorplan.ErrSessionClosed)
}

func TestOpen_ClosesSessionWithoutStream(t *testing.T) {
	mux, sessions := newTestServerWith(t, func(h *Handler) { h.openTimeout = 20 * time.Millisecond })

	rec := do(mux, http.MethodPost, "/api/v1/viewer/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sessions.List(), 1)

	assert.Eventually(t, func() bool { return len(sessions.List()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestOpen_StreamingSessionOutlivesTimeout(t *testing.T) {
	mux, sessions := newTestServerWith(t, func(h *Handler) { h.openTimeout = 200 * time.Millisecond })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := do(mux, http.MethodPost, "/api/v1/viewer/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ids := sessions.List()
	require.Len(t, ids, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	openEvents(t, ctx, srv.URL+"/api/v1/viewer/"+ids[0]+"/events")

	assert.Never(t, func() bool { return len(sessions.List()) == 0 }, 400*time.Millisecond, 10*time.Millisecond)
}

func TestPointer_Click(t *testing.T) {
	mux, sessions := newTestServer(t)
	ms := readySession(t, sessions)

	// R-2 covers x 0..5 and, flipped on load, y -5..0.
	px := viewport.NewView(viewport.DefaultConfig(), nil).Project(orb.Point{2.5, -2.5})
	body := fmt.Sprintf(`{"pointerkind":"click","pointerx":%v,"pointery":%v,"pointerdrag":true}`, px.X, px.Y)

	rec := do(mux, http.MethodPost, "/api/v1/viewer/"+ms.ID+"/pointer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"visible":true`, "a click is never treated as a drag")
	assert.Contains(t, rec.Body.String(), `"text":"R-2"`)
}
