package source

import (
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/paulmach/orb"
)

// LoadState is the lifecycle state of a tile.
type LoadState uint8

const (
	// StateLoading means the tile was requested and has no buckets yet.
	StateLoading LoadState = iota
	// StateLoaded means buckets are attached and the tile is renderable.
	StateLoaded
	// StateErrored means loading failed; Tile.Err holds the cause.
	StateErrored
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Segment is one indexed draw range within a bucket.
type Segment struct {
	BaseVertex int32
	FirstIndex uint32
	IndexCount uint32
}

// SymbolInstance is one label candidate in a symbol bucket.
type SymbolInstance struct {
	// Key identifies the label across tiles and zoom levels, usually its text.
	Key string
	// Anchor is the label anchor in tile units.
	Anchor orb.Point
	// Box is the collision box in screen pixels relative to the anchor.
	Box orb.Bound
	// Offsets are candidate anchor shifts in screen pixels, tried in order.
	// An empty list means the single candidate {0, 0}.
	Offsets []orb.Point

	AllowOverlap    bool
	IgnorePlacement bool
}

// Bucket holds one layer's geometry for one tile. Buffers are uploaded by
// the tile loader; the renderer only binds and draws them.
type Bucket struct {
	LayerID string

	Vertices    hal.Buffer
	Indices     hal.Buffer
	IndexFormat gputypes.IndexFormat
	Segments    []Segment

	// Texture is the image of raster and raster-dem tiles, or the glyph
	// atlas of symbol tiles.
	Texture hal.TextureView

	// Symbols are the label instances of a symbol bucket. Instance i is
	// drawn by Segments[i], so both have the same length.
	Symbols []SymbolInstance
}

// IndexCount is the total number of indices over all segments.
func (b *Bucket) IndexCount() uint32 {
	var n uint32
	for _, s := range b.Segments {
		n += s.IndexCount
	}
	return n
}

// Empty reports whether the bucket has nothing to draw or place.
func (b *Bucket) Empty() bool {
	return b == nil || (len(b.Segments) == 0 && b.Texture == nil && len(b.Symbols) == 0)
}

// Tile is one loaded (or loading) tile of a source. Tiles are owned by
// their Cache; the renderer reads them and never mutates them.
type Tile struct {
	ID    TileID
	State LoadState
	Err   error

	// LoadedAt is when buckets were last attached.
	LoadedAt time.Time

	source  int
	buckets map[string]*Bucket

	// holdUntil keeps a tile with symbols renderable after it left the
	// ideal set so its labels can fade out.
	holdUntil time.Time
}

// SourceIndex is the arena index of the owning source cache.
func (t *Tile) SourceIndex() int { return t.source }

// Bucket returns the bucket for layerID, or nil.
func (t *Tile) Bucket(layerID string) *Bucket {
	return t.buckets[layerID]
}

// Loaded reports whether the tile is renderable.
func (t *Tile) Loaded() bool { return t.State == StateLoaded }

// HasSymbols reports whether any bucket carries symbol instances.
func (t *Tile) HasSymbols() bool {
	for _, b := range t.buckets {
		if len(b.Symbols) > 0 {
			return true
		}
	}
	return false
}

// HoldingForFade reports whether the tile is retained only for fading.
func (t *Tile) HoldingForFade(now time.Time) bool {
	return !t.holdUntil.IsZero() && now.Before(t.holdUntil)
}
