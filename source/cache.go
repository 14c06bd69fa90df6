package source

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownTile is returned when a tile operation names a tile the cache
// does not hold.
var ErrUnknownTile = errors.New("source: unknown tile")

// Cache is the per-source tile set. It tracks which tiles exist, which are
// renderable this frame and which are kept alive only to fade symbols out.
//
// Cache is not safe for concurrent use; the render loop owns it.
type Cache struct {
	spec  Spec
	index int

	tiles map[TileID]*Tile

	renderable []TileID // ascending
	held       []TileID // retained for symbol fading, ascending

	used     bool
	revision uint64
}

// NewCache creates the cache for spec at arena position index.
func NewCache(spec Spec, index int) *Cache {
	return &Cache{
		spec:  spec,
		index: index,
		tiles: make(map[TileID]*Tile),
	}
}

// ID returns the source ID.
func (c *Cache) ID() string { return c.spec.ID }

// Spec returns the source spec.
func (c *Cache) Spec() Spec { return c.spec }

// Index returns the arena position of the cache.
func (c *Cache) Index() int { return c.index }

// Used reports whether a visible layer referenced the source this frame.
func (c *Cache) Used() bool { return c.used }

// SetUsed sets the per-frame used flag.
func (c *Cache) SetUsed(used bool) { c.used = used }

// Revision increases whenever tile contents change.
func (c *Cache) Revision() uint64 { return c.revision }

// Len returns the number of tiles held, in any state.
func (c *Cache) Len() int { return len(c.tiles) }

// Tile returns the tile with the given ID, or nil.
func (c *Cache) Tile(id TileID) *Tile { return c.tiles[id] }

// AddTile registers a loading tile. An existing tile is returned as is.
func (c *Cache) AddTile(id TileID) *Tile {
	if t, ok := c.tiles[id]; ok {
		return t
	}
	t := &Tile{ID: id, State: StateLoading, source: c.index}
	c.tiles[id] = t
	return t
}

// SetLoaded attaches buckets to a tile and marks it renderable. Previous
// buckets are replaced.
func (c *Cache) SetLoaded(id TileID, buckets []*Bucket, now time.Time) error {
	t, ok := c.tiles[id]
	if !ok {
		return fmt.Errorf("%w: %s in source %q", ErrUnknownTile, id, c.spec.ID)
	}
	t.buckets = make(map[string]*Bucket, len(buckets))
	for _, b := range buckets {
		if b != nil {
			t.buckets[b.LayerID] = b
		}
	}
	t.State = StateLoaded
	t.Err = nil
	t.LoadedAt = now
	c.revision++
	return nil
}

// SetErrored records a load failure.
func (c *Cache) SetErrored(id TileID, err error) error {
	t, ok := c.tiles[id]
	if !ok {
		return fmt.Errorf("%w: %s in source %q", ErrUnknownTile, id, c.spec.ID)
	}
	t.State = StateErrored
	t.Err = err
	t.buckets = nil
	c.revision++
	return nil
}

// RemoveTile drops a tile.
func (c *Cache) RemoveTile(id TileID) {
	if _, ok := c.tiles[id]; !ok {
		return
	}
	delete(c.tiles, id)
	c.renderable = without(c.renderable, id)
	c.held = without(c.held, id)
	c.revision++
}

// Clear drops every tile.
func (c *Cache) Clear() {
	if len(c.tiles) == 0 {
		return
	}
	c.tiles = make(map[TileID]*Tile)
	c.renderable = nil
	c.held = nil
	c.revision++
}

// Update recomputes the renderable set for the ideal tiles of this frame
// and returns the ideal tiles that have no entry yet; those are registered
// as loading so the caller can fetch them.
//
// An ideal tile that is not loaded is covered by its loaded children and
// its nearest loaded ancestor. Tiles with symbols that leave the
// renderable set are held for fadeDuration so labels can fade out.
// Everything else outside the new set is dropped.
func (c *Cache) Update(ideal []TileID, now time.Time, fadeDuration time.Duration) []TileID {
	var missing []TileID
	next := make(map[TileID]struct{}, len(ideal))
	keep := make(map[TileID]struct{}, len(ideal))

	for _, id := range ideal {
		keep[id] = struct{}{}
		t, ok := c.tiles[id]
		if !ok {
			c.AddTile(id)
			missing = append(missing, id)
		}
		if ok && t.Loaded() {
			next[id] = struct{}{}
			continue
		}
		for _, child := range id.Children(c.spec.MaxZoom) {
			if ct := c.tiles[child]; ct != nil && ct.Loaded() {
				next[child] = struct{}{}
			}
		}
		for p := id.Parent(); p.OverscaledZ < id.OverscaledZ && p.OverscaledZ >= c.spec.MinZoom; p = p.Parent() {
			if pt := c.tiles[p]; pt != nil && pt.Loaded() {
				next[p] = struct{}{}
				break
			}
			if p.OverscaledZ == 0 {
				break
			}
		}
	}

	for _, id := range c.renderable {
		if _, ok := next[id]; ok {
			continue
		}
		t := c.tiles[id]
		if t != nil && fadeDuration > 0 && t.HasSymbols() {
			t.holdUntil = now.Add(fadeDuration)
		}
	}

	c.renderable = c.renderable[:0]
	c.held = c.held[:0]
	for id, t := range c.tiles {
		_, render := next[id]
		_, wanted := keep[id]
		switch {
		case render:
			t.holdUntil = time.Time{}
			c.renderable = append(c.renderable, id)
		case t.HoldingForFade(now):
			c.held = append(c.held, id)
		case wanted:
			t.holdUntil = time.Time{}
		default:
			delete(c.tiles, id)
			c.revision++
		}
	}
	SortAscending(c.renderable)
	SortAscending(c.held)
	return missing
}

// IDs returns the renderable tiles in ascending order. The slice is owned
// by the cache and valid until the next Update.
func (c *Cache) IDs() []TileID { return c.renderable }

// DescendingIDs returns the renderable tiles highest zoom first.
func (c *Cache) DescendingIDs() []TileID {
	out := append([]TileID(nil), c.renderable...)
	SortDescending(out)
	return out
}

// SymbolIDs returns renderable and fade-held tiles ordered for symbol
// work: highest overscaled zoom first, ties in ascending ID order.
func (c *Cache) SymbolIDs() []TileID {
	out := make([]TileID, 0, len(c.renderable)+len(c.held))
	out = append(out, c.renderable...)
	out = append(out, c.held...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].OverscaledZ != out[j].OverscaledZ {
			return out[i].OverscaledZ > out[j].OverscaledZ
		}
		return out[i].Less(out[j])
	})
	return out
}

// Tiles resolves ids to tiles, skipping unknown ones.
func (c *Cache) Tiles(ids []TileID) []*Tile {
	out := make([]*Tile, 0, len(ids))
	for _, id := range ids {
		if t := c.tiles[id]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

func without(ids []TileID, id TileID) []TileID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
