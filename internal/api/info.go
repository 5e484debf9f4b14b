package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	store   string
	dbOK    bool
	cacheOK bool
}

func NewInfoHandler(dataDir, store string, dbOK, cacheOK bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: store, dbOK: dbOK, cacheOK: cacheOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Store    string   `json:"store" doc:"Layer store driver" example:"duckdb"`
	DB       bool     `json:"db" doc:"Whether database is available"`
	Cache    bool     `json:"cache" doc:"Whether the redis layer cache is enabled"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-floor",
		Version:  "0.1.0",
		DataDir:  h.dataDir,
		Store:    h.store,
		DB:       h.dbOK,
		Cache:    h.cacheOK,
		Features: []string{"geojson", "sessions", "fly-to", "hover", "datastar"},
	}}, nil
}
