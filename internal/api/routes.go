// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Layers   *service.LayerService
	Sessions *service.SessionManager
	Sources  *service.SourceService
}

// Types

type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID" example:"0b6e1e4a-3f7d-4a7e-9b8f-6c1d2e3f4a5b"`
}

type LayerInput struct {
	Layer string `path:"layer" enum:"floors,obstacles,rooms,desks" doc:"Layer name" example:"rooms"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	AllowOrigin string `header:"Access-Control-Allow-Origin"`
	Body        []byte
}

type SessionOutput struct {
	Body service.SessionInfo
}

type NamesBody struct {
	Names []string `json:"names" doc:"Feature names, sorted"`
}

type GoToInput struct {
	SessionIDInput
	Body struct {
		Name string `json:"name" minLength:"1" doc:"Feature name" example:"R-101"`
	}
}

type GoToBody struct {
	Generation uint64 `json:"generation" doc:"Flight generation; settles as a flight event"`
}

type PointerInput struct {
	SessionIDInput
	Body struct {
		Kind     string     `json:"kind" enum:"move,click" default:"move" doc:"Pointer event kind"`
		X        float64    `json:"x" doc:"Viewport pixel x"`
		Y        float64    `json:"y" doc:"Viewport pixel y"`
		Dragging bool       `json:"dragging,omitempty" doc:"Whether a drag is in progress"`
		Target   [][]string `json:"target,omitempty" doc:"CSS classes of the event target and its ancestors, innermost first"`
	}
}

type ViewportInput struct {
	SessionIDInput
	Body struct {
		Width  float64 `json:"width" exclusiveMinimum:"0" doc:"Viewport width in pixels"`
		Height float64 `json:"height" exclusiveMinimum:"0" doc:"Viewport height in pixels"`
	}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RegisterRoutes registers every APIHandler route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/geojson/{layer}", h.GetGeoJSON, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// RegisterSessions registers map session routes.
func (h *APIHandler) RegisterSessions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions",
		DefaultStatus: http.StatusCreated,
		Tags:          []string{"sessions"},
	}, h.CreateSession)
	huma.Get(api, "/api/v1/sessions", h.ListSessions, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}", h.GetSession, huma.OperationTags("sessions"))
	huma.Delete(api, "/api/v1/sessions/{id}", h.DeleteSession, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/names", h.GetNames, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/goto", h.GoTo, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/pointer", h.Pointer, huma.OperationTags("sessions"))
	huma.Post(api, "/api/v1/sessions/{id}/leave", h.Leave, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/hover", h.GetHover, huma.OperationTags("sessions"))
	huma.Get(api, "/api/v1/sessions/{id}/camera", h.GetCamera, huma.OperationTags("sessions"))
	huma.Put(api, "/api/v1/sessions/{id}/viewport", h.PutViewport, huma.OperationTags("sessions"))
	huma.Register(api, huma.Operation{
		OperationID:   "reload-session-layer",
		Method:        http.MethodPost,
		Path:          "/api/v1/sessions/{id}/layers/{layer}/reload",
		DefaultStatus: http.StatusAccepted,
		Tags:          []string{"sessions"},
	}, h.ReloadLayer)
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body []service.LayerInfo }, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return &struct{ Body []service.LayerInfo }{Body: []service.LayerInfo{}}, nil
	}
	return &struct{ Body []service.LayerInfo }{Body: h.svc.Layers.List()}, nil
}

func (h *APIHandler) GetGeoJSON(ctx context.Context, input *LayerInput) (*GeoJSONOutput, error) {
	if h.svc == nil || h.svc.Layers == nil {
		return nil, huma.Error503ServiceUnavailable("layer service not available")
	}
	layer, err := floorplan.ParseLayer(input.Layer)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	data, err := h.svc.Layers.Raw(ctx, layer)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load layer", err)
	}
	return &GeoJSONOutput{
		ContentType: "application/geo+json",
		AllowOrigin: "*",
		Body:        data,
	}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) CreateSession(ctx context.Context, input *struct{}) (*SessionOutput, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("session service not available")
	}
	ms := h.svc.Sessions.Create()
	info, err := ms.Info(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &SessionOutput{Body: info}, nil
}

func (h *APIHandler) ListSessions(ctx context.Context, input *struct{}) (*struct{ Body []string }, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return &struct{ Body []string }{Body: []string{}}, nil
	}
	return &struct{ Body []string }{Body: h.svc.Sessions.List()}, nil
}

func (h *APIHandler) GetSession(ctx context.Context, input *SessionIDInput) (*SessionOutput, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	info, err := ms.Info(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &SessionOutput{Body: info}, nil
}

func (h *APIHandler) DeleteSession(ctx context.Context, input *SessionIDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("session service not available")
	}
	if err := h.svc.Sessions.Close(input.ID); err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Session closed"}}, nil
}

func (h *APIHandler) GetNames(ctx context.Context, input *SessionIDInput) (*struct{ Body NamesBody }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	names, err := ms.Names(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body NamesBody }{Body: NamesBody{Names: names}}, nil
}

func (h *APIHandler) GoTo(ctx context.Context, input *GoToInput) (*struct{ Body GoToBody }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	gen, err := ms.GoTo(ctx, input.Body.Name)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body GoToBody }{Body: GoToBody{Generation: gen}}, nil
}

func (h *APIHandler) Pointer(ctx context.Context, input *PointerInput) (*struct{ Body floorplan.Tooltip }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	ev := floorplan.PointerEvent{
		Kind:     floorplan.PointerMove,
		Pixel:    floorplan.Pixel{X: input.Body.X, Y: input.Body.Y},
		Dragging: input.Body.Dragging,
		Target:   floorplan.ElementPath(input.Body.Target...),
	}
	if input.Body.Kind == "click" {
		ev.Kind = floorplan.PointerClick
	}
	tip, err := ms.Pointer(ctx, ev)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body floorplan.Tooltip }{Body: tip}, nil
}

func (h *APIHandler) Leave(ctx context.Context, input *SessionIDInput) (*struct{ Body floorplan.Tooltip }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := ms.Leave(ctx); err != nil {
		return nil, sessionError(err)
	}
	tip, err := ms.Hover(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body floorplan.Tooltip }{Body: tip}, nil
}

func (h *APIHandler) GetHover(ctx context.Context, input *SessionIDInput) (*struct{ Body floorplan.Tooltip }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	tip, err := ms.Hover(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body floorplan.Tooltip }{Body: tip}, nil
}

func (h *APIHandler) GetCamera(ctx context.Context, input *SessionIDInput) (*struct{ Body floorplan.CameraState }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	cam, err := ms.Camera(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body floorplan.CameraState }{Body: cam}, nil
}

func (h *APIHandler) PutViewport(ctx context.Context, input *ViewportInput) (*struct{ Body floorplan.CameraState }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	if err := ms.Resize(ctx, input.Body.Width, input.Body.Height); err != nil {
		return nil, sessionError(err)
	}
	cam, err := ms.Camera(ctx)
	if err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body floorplan.CameraState }{Body: cam}, nil
}

func (h *APIHandler) ReloadLayer(ctx context.Context, input *struct {
	SessionIDInput
	LayerInput
}) (*struct{ Body MessageBody }, error) {
	ms, err := h.session(input.ID)
	if err != nil {
		return nil, err
	}
	layer, err := floorplan.ParseLayer(input.Layer)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err := ms.Reload(ctx, layer); err != nil {
		return nil, sessionError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Reloading " + layer.String()}}, nil
}

func (h *APIHandler) session(id string) (*service.MapSession, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("session service not available")
	}
	ms, err := h.svc.Sessions.Get(id)
	if err != nil {
		return nil, sessionError(err)
	}
	return ms, nil
}

// sessionError maps session errors to HTTP status codes.
func sessionError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, floorplan.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, floorplan.ErrSessionClosed):
		return huma.Error410Gone(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("request cancelled", err)
	default:
		return huma.Error500InternalServerError("session error", err)
	}
}
