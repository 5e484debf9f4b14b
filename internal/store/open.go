package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joeblew999/plat-floor/internal/db"
	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// Backend is an opened store and, for the SQL drivers, its connection.
type Backend struct {
	Store  Store
	DB     *sql.DB
	Driver string
	close  func() error
}

// Close releases the connection.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// ImportTable returns the table a GeoJSON import of layer writes to, the
// same table the store reads the layer from. Only duckdb can import files.
func (b *Backend) ImportTable(layer floorplan.LayerID) (string, error) {
	s, ok := b.Store.(*SQLStore)
	if b.Driver != "duckdb" || !ok {
		return "", fmt.Errorf("import needs the duckdb store, not %q", b.Driver)
	}
	return s.Table(layer)
}

// ImportGeoJSON replaces layer's table with the features in path.
func (b *Backend) ImportGeoJSON(ctx context.Context, layer floorplan.LayerID, path string) (string, int64, error) {
	table, err := b.ImportTable(layer)
	if err != nil {
		return "", 0, err
	}
	n, err := db.ImportGeoJSON(ctx, b.DB, table, path)
	return table, n, err
}

// Open returns the store for driver: "duckdb", "postgres" or "file".
func Open(ctx context.Context, driver, dsn, dataDir string, opts Options, log *slog.Logger) (*Backend, error) {
	switch driver {
	case "duckdb":
		conn, err := db.Get(db.Config{DataDir: dataDir, DBName: "floorplan"})
		if err != nil {
			return nil, fmt.Errorf("opening duckdb: %w", err)
		}
		return &Backend{Store: NewSQLStore(conn, opts, log), DB: conn, Driver: driver, close: db.Close}, nil
	case "postgres":
		conn, err := db.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if opts.Schema == "main" {
			opts.Schema = "public"
		}
		return &Backend{Store: NewSQLStore(conn, opts, log), DB: conn, Driver: driver, close: conn.Close}, nil
	case "file":
		return &Backend{Store: NewFileStore(filepath.Join(dataDir, "sources")), Driver: driver}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
