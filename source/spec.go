package source

import (
	"errors"
	"fmt"
)

// Type is the kind of data a source serves.
type Type string

const (
	TypeVector    Type = "vector"
	TypeRaster    Type = "raster"
	TypeRasterDEM Type = "raster-dem"
	TypeGeoJSON   Type = "geojson"
)

// DefaultTileSize is the tile size in pixels when a spec leaves it unset.
const DefaultTileSize = 512

// MaxZoom is the highest zoom any source may declare.
const MaxZoom = 24

// ErrInvalidSpec is returned by Spec.Validate.
var ErrInvalidSpec = errors.New("source: invalid spec")

// Spec describes a source as declared in a style.
type Spec struct {
	ID       string `toml:"id"`
	Type     Type   `toml:"type"`
	URL      string `toml:"url,omitempty"`
	TileSize int    `toml:"tile_size,omitempty"`
	MinZoom  uint8  `toml:"min_zoom,omitempty"`
	MaxZoom  uint8  `toml:"max_zoom,omitempty"`
}

// Validate checks the declaration and fills defaults.
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSpec)
	}
	switch s.Type {
	case TypeVector, TypeRaster, TypeRasterDEM, TypeGeoJSON:
	default:
		return fmt.Errorf("%w: source %q has unknown type %q", ErrInvalidSpec, s.ID, s.Type)
	}
	if s.TileSize == 0 {
		s.TileSize = DefaultTileSize
	}
	if s.MaxZoom == 0 {
		s.MaxZoom = 22
	}
	if s.MaxZoom > MaxZoom {
		return fmt.Errorf("%w: source %q max zoom %d above %d", ErrInvalidSpec, s.ID, s.MaxZoom, MaxZoom)
	}
	if s.MinZoom > s.MaxZoom {
		return fmt.Errorf("%w: source %q min zoom %d above max zoom %d", ErrInvalidSpec, s.ID, s.MinZoom, s.MaxZoom)
	}
	return nil
}
