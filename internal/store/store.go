// Package store reads floor plan layers as GeoJSON feature collections,
// from a spatial SQL database or from GeoJSON files on disk.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-floor/internal/db"
	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// Store loads one layer's features.
type Store interface {
	LoadLayer(ctx context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error)
}

// Options names the tables a SQLStore reads. Layer tables are called
// <schema>.<prefix>_<layer>.
type Options struct {
	Schema      string
	TablePrefix string
	// NameColumns maps a layer to the column used as its feature name.
	NameColumns map[floorplan.LayerID]string
}

// SQLStore reads layers from DuckDB (spatial extension) or PostGIS. Both
// speak ST_AsText, so the same query serves either.
type SQLStore struct {
	db   *sql.DB
	opts Options
	log  *slog.Logger
}

// NewSQLStore creates a store over conn.
func NewSQLStore(conn *sql.DB, opts Options, log *slog.Logger) *SQLStore {
	if log == nil {
		log = slog.Default()
	}
	return &SQLStore{db: conn, opts: opts, log: log}
}

// Table returns the qualified table name of layer.
func (s *SQLStore) Table(layer floorplan.LayerID) (string, error) {
	table, err := db.Ident(s.opts.TablePrefix + "_" + layer.String())
	if err != nil {
		return "", err
	}
	if s.opts.Schema == "" {
		return table, nil
	}
	schema, err := db.Ident(s.opts.Schema)
	if err != nil {
		return "", err
	}
	return schema + "." + table, nil
}

// Query returns the SELECT used to read layer.
func (s *SQLStore) Query(layer floorplan.LayerID) (string, error) {
	table, err := s.Table(layer)
	if err != nil {
		return "", err
	}
	col := s.opts.NameColumns[layer]
	if col == "" {
		col = "name"
	}
	if _, err := db.Ident(col); err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT %s AS name, ST_AsText(geom) AS geom FROM %s", col, table), nil
}

// LoadLayer implements Store.
func (s *SQLStore) LoadLayer(ctx context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error) {
	if s.db == nil {
		return nil, fmt.Errorf("loading %s: database not available", layer)
	}
	q, err := s.Query(layer)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", layer, err)
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", layer, err)
	}
	defer rows.Close()

	fc := geojson.NewFeatureCollection()
	for rows.Next() {
		var name sql.NullString
		var geom sql.NullString
		if err := rows.Scan(&name, &geom); err != nil {
			return nil, fmt.Errorf("loading %s: %w", layer, err)
		}
		f, err := FeatureFromWKT(name, geom.String)
		if err != nil {
			s.log.Warn("skipping feature", "layer", layer, "name", name.String, "error", err)
			continue
		}
		fc.Append(f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", layer, err)
	}
	return fc, nil
}

// FeatureFromWKT builds a GeoJSON feature with a "name" property from a
// name column and WKT geometry. A NULL name leaves the property out.
func FeatureFromWKT(name sql.NullString, text string) (*geojson.Feature, error) {
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("parsing geometry: %w", err)
	}
	f := geojson.NewFeature(g)
	if name.Valid {
		f.Properties["name"] = name.String
	}
	return f, nil
}
