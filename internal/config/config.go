// Package config loads the floor plan settings from YAML, with environment
// overrides for the values that differ per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/viewport"
)

// Config is the root of the YAML file.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	View      ViewConfig      `yaml:"view"`
	Animation AnimationConfig `yaml:"animation"`
	Tooltip   TooltipConfig   `yaml:"tooltip"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig selects where layers are read from.
type StoreConfig struct {
	// Driver is "duckdb", "postgres" or "file".
	Driver      string            `yaml:"driver"`
	DSN         string            `yaml:"dsn"`
	Schema      string            `yaml:"schema"`
	TablePrefix string            `yaml:"table_prefix"`
	NameColumns map[string]string `yaml:"name_columns"`
}

// RedisConfig enables the layer cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ViewConfig is the initial camera and the projection extent.
type ViewConfig struct {
	Center  [2]float64 `yaml:"center"`
	Zoom    float64    `yaml:"zoom"`
	MinZoom float64    `yaml:"min_zoom"`
	MaxZoom float64    `yaml:"max_zoom"`
	Extent  [4]float64 `yaml:"extent"`
	Width   float64    `yaml:"width"`
	Height  float64    `yaml:"height"`
}

// AnimationConfig tunes the fly-to swoop and the frame clock.
type AnimationConfig struct {
	Duration      time.Duration `yaml:"duration"`
	ZoomDip       float64       `yaml:"zoom_dip"`
	FrameInterval time.Duration `yaml:"frame_interval"`
}

// TooltipConfig tunes the hover tooltip.
type TooltipConfig struct {
	OffsetX      float64 `yaml:"offset_x"`
	ControlClass string  `yaml:"control_class"`
}

// IngestConfig controls geometry normalization on load.
type IngestConfig struct {
	FlipY bool `yaml:"flip_y"`
}

// LogConfig sets the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings of the office floor plan.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:      "duckdb",
			Schema:      "main",
			TablePrefix: "route",
			NameColumns: map[string]string{
				"floors":    "name",
				"obstacles": "id",
				"rooms":     "room_id",
				"desks":     "desk_id",
			},
		},
		Redis: RedisConfig{TTL: time.Hour},
		View: ViewConfig{
			Center:  [2]float64{0, 700},
			Zoom:    2,
			MinZoom: 1,
			MaxZoom: 5,
			Extent:  [4]float64{-292.21, -731.34, 495.18, 2195.93},
			Width:   1024,
			Height:  768,
		},
		Animation: AnimationConfig{
			Duration:      2000 * time.Millisecond,
			ZoomDip:       2,
			FrameInterval: 16 * time.Millisecond,
		},
		Tooltip: TooltipConfig{OffsetX: 10, ControlClass: "map-control"},
		Ingest:  IngestConfig{FlipY: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets deployments override connection settings without editing
// the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLOORPLAN_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("FLOORPLAN_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("FLOORPLAN_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("FLOORPLAN_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FLOORPLAN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("FLOORPLAN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "duckdb", "postgres", "file":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("postgres store needs a dsn")
	}
	for name := range c.Store.NameColumns {
		if _, err := floorplan.ParseLayer(name); err != nil {
			return fmt.Errorf("name_columns: %w", err)
		}
	}
	if c.View.MaxZoom < c.View.MinZoom {
		return fmt.Errorf("view: max_zoom %v below min_zoom %v", c.View.MaxZoom, c.View.MinZoom)
	}
	if c.Animation.Duration <= 0 {
		return fmt.Errorf("animation: duration must be positive")
	}
	return nil
}

// NameColumn returns the column holding feature names for layer.
func (c StoreConfig) NameColumn(layer floorplan.LayerID) string {
	if col, ok := c.NameColumns[layer.String()]; ok && col != "" {
		return col
	}
	return "name"
}

// Viewport converts the view settings.
func (c Config) Viewport() viewport.Config {
	v := c.View
	return viewport.Config{
		Center:  orb.Point{v.Center[0], v.Center[1]},
		Zoom:    v.Zoom,
		MinZoom: v.MinZoom,
		MaxZoom: v.MaxZoom,
		Extent: orb.Bound{
			Min: orb.Point{v.Extent[0], v.Extent[1]},
			Max: orb.Point{v.Extent[2], v.Extent[3]},
		},
		Width:  v.Width,
		Height: v.Height,
	}
}

// Session converts the session settings.
func (c Config) Session() floorplan.Config {
	transform := floorplan.Identity
	if c.Ingest.FlipY {
		transform = floorplan.FlipY
	}
	return floorplan.Config{
		Animator: floorplan.AnimatorConfig{
			Duration: c.Animation.Duration,
			ZoomDip:  c.Animation.ZoomDip,
		},
		Hover: floorplan.HoverConfig{
			OffsetX:      c.Tooltip.OffsetX,
			ControlClass: c.Tooltip.ControlClass,
		},
		Transform: transform,
	}
}
