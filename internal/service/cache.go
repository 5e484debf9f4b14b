package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// LayerCache keeps encoded layer GeoJSON in redis so sessions opened
// together don't each hit the store. A nil *LayerCache is a disabled cache.
type LayerCache struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisClient connects to redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return rc, nil
}

// NewLayerCache wraps rc. A nil client returns a nil (disabled) cache.
func NewLayerCache(rc *redis.Client, ttl time.Duration) *LayerCache {
	if rc == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LayerCache{rc: rc, ttl: ttl}
}

// Key returns the redis key of layer.
func (c *LayerCache) Key(layer floorplan.LayerID) string {
	return "floorplan:layer:" + layer.String()
}

// Get returns the cached GeoJSON of layer.
func (c *LayerCache) Get(ctx context.Context, layer floorplan.LayerID) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.rc.Get(ctx, c.Key(layer)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

// Set stores the GeoJSON of layer.
func (c *LayerCache) Set(ctx context.Context, layer floorplan.LayerID, data []byte) error {
	if c == nil {
		return nil
	}
	return c.rc.Set(ctx, c.Key(layer), data, c.ttl).Err()
}

// Delete drops layer from the cache.
func (c *LayerCache) Delete(ctx context.Context, layer floorplan.LayerID) error {
	if c == nil {
		return nil
	}
	if err := c.rc.Del(ctx, c.Key(layer)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
