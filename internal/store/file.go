package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// FileStore reads <dir>/<layer>.geojson.
type FileStore struct {
	dir string
}

// NewFileStore creates a store over dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the file layer is read from.
func (s *FileStore) Path(layer floorplan.LayerID) string {
	return filepath.Join(s.dir, layer.String()+".geojson")
}

// LoadLayer implements Store.
func (s *FileStore) LoadLayer(ctx context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(layer))
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson %s: %w", layer, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson %s: %w", layer, err)
	}
	return fc, nil
}
