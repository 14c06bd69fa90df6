package style

import "errors"

var (
	// ErrSourceInUse is returned when removing a source a layer still uses.
	ErrSourceInUse = errors.New("style: source in use")
	// ErrUnknownLayer is returned for operations on a missing layer.
	ErrUnknownLayer = errors.New("style: unknown layer")
	// ErrUnknownSource is returned for operations on a missing source.
	ErrUnknownSource = errors.New("style: unknown source")
	// ErrDuplicateLayer is returned when adding a layer ID twice.
	ErrDuplicateLayer = errors.New("style: duplicate layer")
	// ErrDuplicateSource is returned when adding a source ID twice.
	ErrDuplicateSource = errors.New("style: duplicate source")
	// ErrUnsupportedOperation is returned when a style change cannot be
	// applied incrementally. Callers rebuild the style instead.
	ErrUnsupportedOperation = errors.New("style: unsupported operation")
)
