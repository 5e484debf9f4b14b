package viewer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/service"
	"github.com/joeblew999/plat-floor/internal/templates"
)

// SelectPlaceholder is the first, empty option of the feature selector.
const SelectPlaceholder = "Select a feature"

// DefaultOpenTimeout is how long a session opened by the page may wait for
// its event stream before it is closed.
const DefaultOpenTimeout = 30 * time.Second

// Handler serves the viewer page's Datastar endpoints for one map session.
type Handler struct {
	sessions *service.SessionManager
	renderer *templates.Renderer
	log      *slog.Logger

	openTimeout time.Duration
}

// NewHandler creates a viewer handler.
func NewHandler(sessions *service.SessionManager, renderer *templates.Renderer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{sessions: sessions, renderer: renderer, log: log, openTimeout: DefaultOpenTimeout}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Post(api, "/api/v1/viewer/sessions", h.Open, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/{id}/select", h.Select, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/{id}/events", h.Events, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/{id}/zoom", h.Zoom, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/{id}/pointer", h.Pointer, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/{id}/leave", h.Leave, huma.OperationTags("viewer"))
}

type SessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type SignalsSessionInput struct {
	SessionInput
	SignalsInput
}

// Open creates a map session and hands its ID to the page. The session
// lives as long as the page keeps an event stream open, and is closed if
// none attaches within the open timeout.
func (h *Handler) Open(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			ms := h.sessions.Create()
			id := ms.ID
			time.AfterFunc(h.openTimeout, func() {
				if h.sessions.CloseIdle(id) {
					h.log.Debug("viewer session never streamed", "session", id)
				}
			})
			sse.SendSignals(map[string]any{"session": ms.ID})
		},
	}, nil
}

// Select patches the feature selector with the current names.
func (h *Handler) Select(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			names, err := ms.Names(humaCtx.Context())
			if err != nil {
				sse.SendError(err.Error())
				return
			}
			sse.PatchElements(h.renderOptions(names), "#feature-select")
		},
	}, nil
}

// Events streams the session's changes until the client goes away or the
// session closes. The session is closed when its last stream ends.
func (h *Handler) Events(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			reqCtx := humaCtx.Context()

			release, err := h.sessions.Attach(ms.ID)
			if err != nil {
				sse.SendError(err.Error())
				return
			}
			defer release()

			bus := h.sessions.Bus()
			ch := bus.Subscribe(ms.ID)
			defer bus.Unsubscribe(ch)

			// Layers may have loaded before the subscription.
			if names, err := ms.Names(reqCtx); err == nil {
				sse.PatchElements(h.renderOptions(names), "#feature-select")
			}
			if layers, err := ms.Layers(reqCtx); err == nil {
				sse.PatchElements(h.renderLayers(layers), "#layer-status")
			}

			for {
				select {
				case <-reqCtx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if !h.send(reqCtx, sse, ms, ev) {
						return
					}
				}
			}
		},
	}, nil
}

// send writes one event. It reports false once the stream should end.
func (h *Handler) send(ctx context.Context, sse *SSEContext, ms *service.MapSession, ev service.Event) bool {
	switch ev.Kind {
	case service.EventNames:
		names, _ := ev.Data.([]string)
		sse.PatchElements(h.renderOptions(names), "#feature-select")
	case service.EventTooltip:
		sse.SendSignals(map[string]any{"tooltip": ev.Data})
	case service.EventCamera:
		sse.SendSignals(map[string]any{"camera": ev.Data})
	case service.EventLayer:
		if layers, err := ms.Layers(ctx); err == nil {
			sse.PatchElements(h.renderLayers(layers), "#layer-status")
		}
	case service.EventFlight:
		if f, ok := ev.Data.(floorplan.Flight); ok {
			sse.SendSignals(map[string]any{"flying": false, "flight": f.Generation})
		}
	case service.EventClosed:
		return false
	}
	return true
}

// Zoom flies to the feature in the featureselect signal. An empty
// selection does nothing.
func (h *Handler) Zoom(ctx context.Context, input *SignalsSessionInput) (*huma.StreamResponse, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	name := signals.String("featureselect")

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			if name == "" {
				return
			}
			gen, err := ms.GoTo(humaCtx.Context(), name)
			if err != nil {
				h.log.Debug("zoom failed", "session", ms.ID, "name", name, "error", err)
				sse.SendError(err.Error())
				return
			}
			sse.SendSignals(map[string]any{"flying": true, "flight": gen, "error": ""})
		},
	}, nil
}

// Pointer feeds a pointer move or click from the pointerx, pointery,
// pointerdrag and pointercontrol signals.
func (h *Handler) Pointer(ctx context.Context, input *SignalsSessionInput) (*huma.StreamResponse, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	if !signals.Has("pointerx") || !signals.Has("pointery") {
		return nil, huma.Error400BadRequest("pointerx and pointery are required")
	}

	ev := floorplan.PointerEvent{
		Kind:     floorplan.PointerMove,
		Pixel:    floorplan.Pixel{X: signals.Float("pointerx"), Y: signals.Float("pointery")},
		Dragging: signals.Bool("pointerdrag"),
	}
	if signals.String("pointerkind") == "click" {
		ev.Kind = floorplan.PointerClick
	}
	if signals.Bool("pointercontrol") {
		ev.Target = floorplan.ElementPath([]string{h.sessions.Config().Session.Hover.ControlClass})
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			tip, err := ms.Pointer(humaCtx.Context(), ev)
			if err != nil {
				sse.SendError(err.Error())
				return
			}
			sse.SendSignals(map[string]any{"tooltip": tip})
		},
	}, nil
}

// Leave hides the tooltip when the pointer leaves the map.
func (h *Handler) Leave(ctx context.Context, input *SessionInput) (*huma.StreamResponse, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSEContext(humaCtx)
			if err := ms.Leave(humaCtx.Context()); err != nil {
				sse.SendError(err.Error())
				return
			}
			tip, _ := ms.Hover(humaCtx.Context())
			sse.SendSignals(map[string]any{"tooltip": tip})
		},
	}, nil
}

func (h *Handler) session(id string) (*service.MapSession, error) {
	ms, err := h.sessions.Get(id)
	if errors.Is(err, service.ErrSessionNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	return ms, err
}

func (h *Handler) renderOptions(names []string) string {
	var buf bytes.Buffer
	h.renderer.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: SelectPlaceholder})
	for _, n := range names {
		h.renderer.RenderToBuffer(&buf, "select-option", SelectOptionData{Value: n, Label: n})
	}
	return buf.String()
}

func (h *Handler) renderLayers(layers []floorplan.LayerStatus) string {
	var buf bytes.Buffer
	for _, st := range layers {
		h.renderer.RenderToBuffer(&buf, "layer-status", st)
	}
	return buf.String()
}
