// Package floorplan holds the map session core: the feature index, the
// camera animator and the hover controller that drives the tooltip.
//
// Nothing in this package locks. A Session and everything it owns must only
// be touched from the session's event loop (see internal/runloop).
package floorplan

import (
	"fmt"
	"strings"
)

// LayerID identifies one of the fixed floor plan layers.
type LayerID int

const (
	Floors LayerID = iota
	Obstacles
	Rooms
	Desks
)

// RenderOrder lists the layers bottom to top, the order they are drawn in.
var RenderOrder = []LayerID{Floors, Obstacles, Rooms, Desks}

// LookupPriority is the order name lookups scan the interactive layers in.
var LookupPriority = []LayerID{Rooms, Desks}

// HitTestOrder is the order pointer hit tests visit the interactive layers
// in: top-most rendered layer first.
var HitTestOrder = []LayerID{Desks, Rooms}

var layerNames = map[LayerID]string{
	Floors:    "floors",
	Obstacles: "obstacles",
	Rooms:     "rooms",
	Desks:     "desks",
}

func (l LayerID) String() string {
	if name, ok := layerNames[l]; ok {
		return name
	}
	return fmt.Sprintf("layer(%d)", int(l))
}

// Interactive reports whether features of the layer take part in name
// lookup and hover hit testing.
func (l LayerID) Interactive() bool {
	return l == Rooms || l == Desks
}

// Valid reports whether l is one of the known layers.
func (l LayerID) Valid() bool {
	_, ok := layerNames[l]
	return ok
}

// ParseLayer maps a layer name such as "rooms" to its LayerID.
func ParseLayer(name string) (LayerID, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for id, s := range layerNames {
		if s == n {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
}

// MarshalText implements encoding.TextMarshaler.
func (l LayerID) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLayer, int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *LayerID) UnmarshalText(b []byte) error {
	id, err := ParseLayer(string(b))
	if err != nil {
		return err
	}
	*l = id
	return nil
}
