package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-floor/internal/config"
	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/logging"
	"github.com/joeblew999/plat-floor/internal/server"
	"github.com/joeblew999/plat-floor/internal/service"
	"github.com/joeblew999/plat-floor/internal/store"
)

// Options defines all CLI flags and env vars for the floor plan server.
// Flags: --host, --port, --data-dir, --web-dir, --config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host     string `doc:"Host to bind to" default:"0.0.0.0"`
	Port     int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir  string `doc:"Directory for floor plan data files" default:".data"`
	WebDir   string `doc:"Path to web/ directory" default:"web"`
	Config   string `doc:"Path to YAML config file" short:"c"`
	LogLevel string `doc:"Log level override (debug, info, warn, error)"`
}

// app is everything a command needs, opened from the options.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   store.Store
	conn    *sql.DB
	backend *store.Backend
	rc      *redis.Client
	close   func()
}

func open(ctx context.Context, opts *Options) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	log := logging.Init(cfg.Log.Level, cfg.Log.Format)

	opened, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, opts.DataDir, storeOptions(cfg), log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: opened.Store, conn: opened.DB, backend: opened}
	closers := []func(){func() {
		if err := opened.Close(); err != nil {
			log.Warn("closing store", "error", err)
		}
	}}

	if cfg.Redis.Addr != "" {
		rc, err := service.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("layer cache disabled", "error", err)
		} else {
			a.rc = rc
			closers = append(closers, func() { rc.Close() })
		}
	}

	a.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return a, nil
}

func storeOptions(cfg config.Config) store.Options {
	cols := make(map[floorplan.LayerID]string, len(floorplan.RenderOrder))
	for _, l := range floorplan.RenderOrder {
		cols[l] = cfg.Store.NameColumn(l)
	}
	return store.Options{
		Schema:      cfg.Store.Schema,
		TablePrefix: cfg.Store.TablePrefix,
		NameColumns: cols,
	}
}

func newServer(opts *Options, a *app) *server.Server {
	sessionCfg := service.SessionConfig{
		Session:       a.cfg.Session(),
		View:          a.cfg.Viewport(),
		FrameInterval: a.cfg.Animation.FrameInterval,
	}
	sessionCfg.Points = service.DefaultSessionConfig().Points

	return server.New(server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		WebDir:  opts.WebDir,
	}, server.Deps{
		Store:       a.store,
		StoreDriver: a.cfg.Store.Driver,
		DB:          a.conn,
		Cache:       service.NewLayerCache(a.rc, a.cfg.Redis.TTL),
		Session:     sessionCfg,
		Log:         a.log,
	})
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load(".env")

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		var a *app
		var srv *server.Server
		var httpSrv *http.Server

		hooks.OnStart(func() {
			var err error
			a, err = open(context.Background(), opts)
			if err != nil {
				fail("Startup error: %v", err)
			}
			srv = newServer(opts, a)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-floor API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Store:   %s\n", a.cfg.Store.Driver)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpSrv = &http.Server{Addr: addr, Handler: srv}
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error("server error", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if httpSrv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(ctx)
			}
			if srv != nil {
				srv.Close()
			}
			if a != nil {
				a.close()
			}
		})
	})

	cli.Root().Use = "floorplan"
	cli.Root().Short = "Interactive office floor plan server"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := server.New(server.Config{Host: opts.Host, Port: fmt.Sprintf("%d", opts.Port), WebDir: opts.WebDir}, server.Deps{
				Session: service.DefaultSessionConfig(),
			})
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// import subcommand: load a GeoJSON file into a DuckDB layer table
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a GeoJSON file into a layer table (duckdb store)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			layerName, _ := cmd.Flags().GetString("layer")
			file, _ := cmd.Flags().GetString("file")
			layer, err := floorplan.ParseLayer(layerName)
			if err != nil {
				fail("%v", err)
			}

			ctx := context.Background()
			a, err := open(ctx, opts)
			if err != nil {
				fail("Startup error: %v", err)
			}
			defer a.close()
			if _, err := a.backend.ImportTable(layer); err != nil {
				fail("%v", err)
			}

			path := file
			if filepath.Base(file) == file {
				if path, err = service.NewSourceService(opts.DataDir).Path(file); err != nil {
					fail("%v", err)
				}
			}

			table, n, err := a.backend.ImportGeoJSON(ctx, layer, path)
			if err != nil {
				fail("Import failed: %v", err)
			}
			if rc := a.rc; rc != nil {
				service.NewLayerService(a.store, service.NewLayerCache(rc, a.cfg.Redis.TTL), a.log).Invalidate(ctx, layer)
			}
			fmt.Printf("Imported %d features into %s\n", n, table)
		}),
	}
	importCmd.Flags().StringP("layer", "l", "", "Layer to import (floors, obstacles, rooms, desks)")
	importCmd.Flags().StringP("file", "f", "", "GeoJSON file, or a file name in <data-dir>/sources")
	_ = importCmd.MarkFlagRequired("layer")
	_ = importCmd.MarkFlagRequired("file")
	cli.Root().AddCommand(importCmd)

	// names subcommand: print the feature selector entries
	namesCmd := &cobra.Command{
		Use:   "names",
		Short: "Print the sorted names of rooms and desks",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			ctx := context.Background()
			a, err := open(ctx, opts)
			if err != nil {
				fail("Startup error: %v", err)
			}
			defer a.close()

			layers := service.NewLayerService(a.store, service.NewLayerCache(a.rc, a.cfg.Redis.TTL), a.log)
			index := floorplan.NewIndex(a.cfg.Session().Transform)
			for _, l := range floorplan.LookupPriority {
				fc, err := layers.Load(ctx, l)
				if err != nil {
					a.log.Warn("layer not loaded", "layer", l, "error", err)
					continue
				}
				index.Rebuild(l, fc.Features)
			}
			for _, name := range index.AllNames() {
				fmt.Println(name)
			}
		}),
	}
	cli.Root().AddCommand(namesCmd)

	cli.Run()
}
