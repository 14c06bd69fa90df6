package placement

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/tilemap/source"
)

// DefaultMatchTolerance is how far apart, in tile units of the finer of
// two tiles, two instances of one label may be and still match.
const DefaultMatchTolerance = 32

// CrossTileIndex assigns IDs to symbol instances that stay the same for
// one label across the tiles and zoom levels it appears in.
type CrossTileIndex struct {
	tolerance float64
	layers    map[string]*layerIndex
	nextID    uint64
}

type layerIndex struct {
	tiles map[source.TileID]*tileSymbols
}

type tileSymbols struct {
	id      source.TileID
	count   int
	symbols []indexedSymbol
}

type indexedSymbol struct {
	key string
	// world is the anchor in [0, 1) world coordinates.
	world orb.Point
	id    uint64
}

// NewCrossTileIndex returns an empty index. tolerance <= 0 selects
// DefaultMatchTolerance.
func NewCrossTileIndex(tolerance float64) *CrossTileIndex {
	if tolerance <= 0 {
		tolerance = DefaultMatchTolerance
	}
	return &CrossTileIndex{tolerance: tolerance, layers: make(map[string]*layerIndex)}
}

// SymbolKey is the matching key of a label: its NFC-normalised text.
func SymbolKey(text string) string { return norm.NFC.String(text) }

// worldPoint maps a tile anchor to [0, 1) world coordinates. Wrapped
// copies map to the same point.
func worldPoint(id source.TileID, anchor orb.Point) orb.Point {
	n := math.Exp2(float64(id.Canonical.Z))
	return orb.Point{
		(float64(id.Canonical.X) + anchor[0]/source.Extent) / n,
		(float64(id.Canonical.Y) + anchor[1]/source.Extent) / n,
	}
}

// AddTile indexes the symbols of one tile of a layer and returns their
// cross-tile IDs. An instance takes the ID of a matching instance in an
// indexed ancestor or descendant, unless a tile at its own zoom level
// already uses that ID. A tile that is already indexed keeps its IDs.
func (x *CrossTileIndex) AddTile(layerID string, id source.TileID, symbols []source.SymbolInstance) []uint64 {
	li := x.layers[layerID]
	if li == nil {
		li = &layerIndex{tiles: make(map[source.TileID]*tileSymbols)}
		x.layers[layerID] = li
	}
	if ts := li.tiles[id]; ts != nil && ts.count == len(symbols) {
		return ts.ids()
	}

	related, used := li.related(id)
	ts := &tileSymbols{id: id, count: len(symbols), symbols: make([]indexedSymbol, len(symbols))}
	for i, s := range symbols {
		sym := indexedSymbol{key: SymbolKey(s.Key), world: worldPoint(id, s.Anchor)}
		if match, ok := x.match(id, sym, related, used); ok {
			sym.id = match
		} else {
			x.nextID++
			sym.id = x.nextID
		}
		used[sym.id] = struct{}{}
		ts.symbols[i] = sym
	}
	li.tiles[id] = ts
	return ts.ids()
}

// related returns the indexed ancestors and descendants of id in a fixed
// order, and the IDs used by other tiles at the same zoom level.
func (li *layerIndex) related(id source.TileID) ([]*tileSymbols, map[uint64]struct{}) {
	var out []*tileSymbols
	used := make(map[uint64]struct{})
	for other, ts := range li.tiles {
		switch {
		case other == id:
		case other.OverscaledZ == id.OverscaledZ:
			for _, s := range ts.symbols {
				used[s.id] = struct{}{}
			}
		case other.IsChildOf(id) || id.IsChildOf(other):
			out = append(out, ts)
		}
	}
	slices.SortFunc(out, func(a, b *tileSymbols) int {
		switch {
		case a.id.Less(b.id):
			return -1
		case b.id.Less(a.id):
			return 1
		}
		return 0
	})
	return out, used
}

// match returns the ID of the nearest instance with the same key within
// tolerance. Distances are measured in tile units of the finer tile.
func (x *CrossTileIndex) match(id source.TileID, sym indexedSymbol, related []*tileSymbols, used map[uint64]struct{}) (uint64, bool) {
	var best uint64
	bestDist := math.Inf(1)
	for _, ts := range related {
		z := max(id.Canonical.Z, ts.id.Canonical.Z)
		scale := math.Exp2(float64(z)) * source.Extent
		for _, s := range ts.symbols {
			if s.key != sym.key {
				continue
			}
			if _, taken := used[s.id]; taken {
				continue
			}
			d := math.Hypot(s.world[0]-sym.world[0], s.world[1]-sym.world[1]) * scale
			if d <= x.tolerance && d < bestDist {
				best, bestDist = s.id, d
			}
		}
	}
	return best, bestDist <= x.tolerance
}

func (ts *tileSymbols) ids() []uint64 {
	out := make([]uint64, len(ts.symbols))
	for i, s := range ts.symbols {
		out[i] = s.id
	}
	return out
}

// RemoveTile drops one tile of a layer.
func (x *CrossTileIndex) RemoveTile(layerID string, id source.TileID) {
	if li := x.layers[layerID]; li != nil {
		delete(li.tiles, id)
	}
}

// PruneTiles drops the tiles of a layer for which keep returns false and
// reports whether any were dropped.
func (x *CrossTileIndex) PruneTiles(layerID string, keep func(source.TileID) bool) bool {
	li := x.layers[layerID]
	if li == nil {
		return false
	}
	n := len(li.tiles)
	for id := range li.tiles {
		if !keep(id) {
			delete(li.tiles, id)
		}
	}
	return len(li.tiles) != n
}

// PruneLayers drops every layer not in layerIDs and reports whether any
// were dropped.
func (x *CrossTileIndex) PruneLayers(layerIDs []string) bool {
	pruned := false
	for id := range x.layers {
		if !slices.Contains(layerIDs, id) {
			delete(x.layers, id)
			pruned = true
		}
	}
	return pruned
}

// Tiles returns the number of indexed tiles of a layer.
func (x *CrossTileIndex) Tiles(layerID string) int {
	if li := x.layers[layerID]; li != nil {
		return len(li.tiles)
	}
	return 0
}

// Layers returns the number of indexed layers.
func (x *CrossTileIndex) Layers() int { return len(x.layers) }
