package tilemap

import "errors"

var (
	// ErrNoDevice is returned when a Map is created without a usable
	// device and queue.
	ErrNoDevice = errors.New("tilemap: no GPU device")

	// ErrNoStyle is returned by Render before a style was set.
	ErrNoStyle = errors.New("tilemap: no style")
)
