package source

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/maptile"
)

// Extent is the coordinate range of tile-local geometry. Anchors and
// vertices in a bucket lie in [0, Extent).
const Extent = 8192

// TileID identifies a tile as rendered: a canonical web-mercator tile,
// the zoom it is drawn at (which may exceed the canonical zoom when a
// source is overscaled) and the world copy it belongs to.
type TileID struct {
	OverscaledZ uint8
	Wrap        int32
	Canonical   maptile.Tile
}

// NewTileID returns the ID of canonical tile z/x/y drawn at overscaledZ on
// world copy wrap. overscaledZ is raised to z when lower.
func NewTileID(overscaledZ uint8, wrap int32, z uint8, x, y uint32) TileID {
	if overscaledZ < z {
		overscaledZ = z
	}
	return TileID{
		OverscaledZ: overscaledZ,
		Wrap:        wrap,
		Canonical:   maptile.New(x, y, maptile.Zoom(z)),
	}
}

// Z returns the canonical zoom.
func (id TileID) Z() uint8 { return uint8(id.Canonical.Z) }

// OverscaleFactor is 2^(OverscaledZ - canonical zoom).
func (id TileID) OverscaleFactor() float64 {
	return float64(uint32(1) << (id.OverscaledZ - id.Z()))
}

// Parent returns the tile one overscaled zoom level up. An overscaled tile
// keeps its canonical tile; otherwise the canonical parent is used.
// The zoom 0 tile is its own parent.
func (id TileID) Parent() TileID {
	if id.OverscaledZ == 0 {
		return id
	}
	if id.OverscaledZ > id.Z() {
		return TileID{OverscaledZ: id.OverscaledZ - 1, Wrap: id.Wrap, Canonical: id.Canonical}
	}
	return TileID{OverscaledZ: id.OverscaledZ - 1, Wrap: id.Wrap, Canonical: id.Canonical.Parent()}
}

// ScaledTo returns the tile containing id at zoom z. For z above the
// canonical zoom the canonical tile is kept and only OverscaledZ moves.
func (id TileID) ScaledTo(z uint8) TileID {
	if z >= id.Z() {
		return TileID{OverscaledZ: z, Wrap: id.Wrap, Canonical: id.Canonical}
	}
	c := id.Canonical
	for uint8(c.Z) > z {
		c = c.Parent()
	}
	return TileID{OverscaledZ: z, Wrap: id.Wrap, Canonical: c}
}

// Children returns the four (or one, when overscaling past sourceMaxZoom)
// tiles one zoom level down.
func (id TileID) Children(sourceMaxZoom uint8) []TileID {
	if id.Z() >= sourceMaxZoom {
		return []TileID{{OverscaledZ: id.OverscaledZ + 1, Wrap: id.Wrap, Canonical: id.Canonical}}
	}
	kids := id.Canonical.Children()
	out := make([]TileID, 0, len(kids))
	for _, c := range kids {
		out = append(out, TileID{OverscaledZ: id.OverscaledZ + 1, Wrap: id.Wrap, Canonical: c})
	}
	return out
}

// IsChildOf reports whether id lies strictly below parent in the tile
// pyramid on the same world copy.
func (id TileID) IsChildOf(parent TileID) bool {
	if parent.Wrap != id.Wrap || parent.OverscaledZ >= id.OverscaledZ {
		return false
	}
	if parent.Z() > id.Z() {
		return false
	}
	return parent.Canonical.Contains(id.Canonical)
}

// Unwrapped returns the canonical tile shifted onto world copy Wrap,
// in tile units at the canonical zoom.
func (id TileID) Unwrapped() (x, y float64) {
	n := float64(uint32(1) << id.Z())
	return float64(id.Canonical.X) + float64(id.Wrap)*n, float64(id.Canonical.Y)
}

func (id TileID) String() string {
	if id.Wrap != 0 {
		return fmt.Sprintf("%d/%d/%d/%d@%d", id.OverscaledZ, id.Z(), id.Canonical.X, id.Canonical.Y, id.Wrap)
	}
	return fmt.Sprintf("%d/%d/%d/%d", id.OverscaledZ, id.Z(), id.Canonical.X, id.Canonical.Y)
}

// Less orders tiles by overscaled zoom, then wrap, then canonical zoom,
// then y, then x. The order is total on distinct IDs.
func (id TileID) Less(o TileID) bool {
	if id.OverscaledZ != o.OverscaledZ {
		return id.OverscaledZ < o.OverscaledZ
	}
	if id.Wrap != o.Wrap {
		return id.Wrap < o.Wrap
	}
	if id.Canonical.Z != o.Canonical.Z {
		return id.Canonical.Z < o.Canonical.Z
	}
	if id.Canonical.Y != o.Canonical.Y {
		return id.Canonical.Y < o.Canonical.Y
	}
	return id.Canonical.X < o.Canonical.X
}

// SortAscending sorts ids bottom zoom first.
func SortAscending(ids []TileID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// SortDescending sorts ids highest zoom first.
func SortDescending(ids []TileID) {
	sort.Slice(ids, func(i, j int) bool { return ids[j].Less(ids[i]) })
}
