package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-floor/internal/floorplan"
	"github.com/joeblew999/plat-floor/internal/store"
)

// LayerService loads floor plan layers from the store, through the cache.
type LayerService struct {
	store store.Store
	cache *LayerCache
	log   *slog.Logger

	// epoch counts invalidations so a fetch that started before one does
	// not write its result back to the cache.
	mu    sync.Mutex
	epoch map[floorplan.LayerID]uint64
}

// NewLayerService creates a layer service. cache may be nil.
func NewLayerService(st store.Store, cache *LayerCache, log *slog.Logger) *LayerService {
	if log == nil {
		log = slog.Default()
	}
	return &LayerService{store: st, cache: cache, log: log, epoch: make(map[floorplan.LayerID]uint64)}
}

// List returns every layer in render order.
func (s *LayerService) List() []LayerInfo {
	out := make([]LayerInfo, 0, len(floorplan.RenderOrder))
	for _, l := range floorplan.RenderOrder {
		out = append(out, LayerInfo{
			Name:        l.String(),
			Interactive: l.Interactive(),
			URL:         "/api/geojson/" + l.String(),
		})
	}
	return out
}

// Raw returns the layer as encoded GeoJSON.
func (s *LayerService) Raw(ctx context.Context, layer floorplan.LayerID) ([]byte, error) {
	if data, ok := s.cache.Get(ctx, layer); ok {
		return data, nil
	}

	if s.store == nil {
		return nil, fmt.Errorf("loading %s: no store configured", layer)
	}
	epoch := s.epochOf(layer)
	fc, err := s.store.LoadLayer(ctx, layer)
	if err != nil {
		return nil, err
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", layer, err)
	}
	if s.epochOf(layer) != epoch {
		return data, nil
	}
	if err := s.cache.Set(ctx, layer, data); err != nil {
		s.log.Warn("layer cache write failed", "layer", layer, "error", err)
	}
	return data, nil
}

// Load returns the layer's features.
func (s *LayerService) Load(ctx context.Context, layer floorplan.LayerID) (*geojson.FeatureCollection, error) {
	data, err := s.Raw(ctx, layer)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", layer, err)
	}
	return fc, nil
}

// Invalidate drops the cached copy of layer so the next load hits the
// store.
func (s *LayerService) Invalidate(ctx context.Context, layer floorplan.LayerID) {
	s.mu.Lock()
	s.epoch[layer]++
	s.mu.Unlock()
	if err := s.cache.Delete(ctx, layer); err != nil {
		s.log.Warn("layer cache delete failed", "layer", layer, "error", err)
	}
}

func (s *LayerService) epochOf(layer floorplan.LayerID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch[layer]
}
