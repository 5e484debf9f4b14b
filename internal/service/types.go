// Package service contains the map session runtime of the floor plan
// server: layer loading, the session registry and its event bus.
package service

import (
	"time"

	"github.com/joeblew999/plat-floor/internal/floorplan"
)

// LayerInfo describes a floor plan layer.
type LayerInfo struct {
	Name        string `json:"name" doc:"Layer name" example:"rooms"`
	Interactive bool   `json:"interactive" doc:"Whether features can be looked up and hovered"`
	URL         string `json:"url" doc:"GeoJSON endpoint" example:"/api/geojson/rooms"`
}

// SourceFile represents a GeoJSON source file.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"rooms.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MiB"`
	FileType string `json:"fileType" doc:"File type" example:"GeoJSON"`
}

// SessionInfo summarizes a map session.
type SessionInfo struct {
	ID      string                  `json:"id" doc:"Session ID"`
	Created time.Time               `json:"created" doc:"Creation time"`
	Layers  []floorplan.LayerStatus `json:"layers" doc:"Layer load state in render order"`
	Camera  floorplan.CameraState   `json:"camera" doc:"Current camera"`
}
