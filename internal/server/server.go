// Package server assembles the floor plan HTTP server: the Huma REST API,
// the Datastar viewer endpoints and the static viewer page.
package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-floor/internal/api"
	"github.com/joeblew999/plat-floor/internal/api/viewer"
	"github.com/joeblew999/plat-floor/internal/service"
	"github.com/joeblew999/plat-floor/internal/store"
	"github.com/joeblew999/plat-floor/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and templates
}

// Deps are the backends the server reads layers through.
type Deps struct {
	Store       store.Store
	StoreDriver string

	// DB enables /api/v1/tables when set.
	DB    *sql.DB
	Cache *service.LayerCache

	Session service.SessionConfig
	Log     *slog.Logger
}

// Server is the floor plan HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	renderer *templates.Renderer
	deps     Deps
	log      *slog.Logger
}

// New creates a new floor plan server.
func New(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-floor API", "1.0.0")
	humaConfig.Info.Description = "Interactive office floor plan API: layers, map sessions, fly-to navigation and hover tooltips."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	layers := service.NewLayerService(deps.Store, deps.Cache, log)
	services := &api.Services{
		Layers:   layers,
		Sessions: service.NewSessionManager(layers, service.NewEventBus(), deps.Session, log),
		Sources:  service.NewSourceService(cfg.DataDir),
	}

	// Initialize template renderer for viewer SSE handlers
	var renderer *templates.Renderer
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			renderer = r
			log.Info("loaded fragment templates", "dir", fragmentsDir)
		} else {
			log.Warn("fragment templates not loaded, viewer endpoints disabled", "dir", fragmentsDir, "error", err)
		}
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
		renderer: renderer,
		deps:     deps,
		log:      log,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the map session manager.
func (s *Server) Sessions() *service.SessionManager {
	return s.services.Sessions
}

// Close tears down every map session.
func (s *Server) Close() error {
	s.services.Sessions.CloseAll()
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.deps.StoreDriver, s.deps.DB != nil, s.deps.Cache != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(s.deps.DB).RegisterRoutes(s.humaAPI)

	// Register viewer SSE routes using Huma + Datastar SDK
	if s.renderer != nil {
		viewer.NewHandler(s.services.Sessions, s.renderer, s.log).RegisterRoutes(s.humaAPI)
	}

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}

	// Page routes
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-floor",
		"status":   "running",
		"sessions": len(s.services.Sessions.List()),
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	if s.config.WebDir == "" {
		http.NotFound(w, r)
		return
	}
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}
