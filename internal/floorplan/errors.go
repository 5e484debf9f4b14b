package floorplan

import "errors"

var (
	// ErrNotFound is returned when no interactive feature carries the name.
	ErrNotFound = errors.New("feature not found")

	// ErrUnknownLayer is returned for layer names outside the fixed set.
	ErrUnknownLayer = errors.New("unknown layer")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)
