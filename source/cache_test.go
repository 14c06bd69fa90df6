package source

import (
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestCache() *Cache {
	spec := Spec{ID: "streets", Type: TypeVector}
	if err := spec.Validate(); err != nil {
		panic(err)
	}
	return NewCache(spec, 0)
}

func load(t *testing.T, c *Cache, id TileID, buckets ...*Bucket) {
	t.Helper()
	c.AddTile(id)
	require.NoError(t, c.SetLoaded(id, buckets, t0))
}

func TestCacheUpdateRegistersMissing(t *testing.T) {
	c := newTestCache()
	ideal := []TileID{NewTileID(2, 0, 2, 1, 1), NewTileID(2, 0, 2, 2, 1)}

	missing := c.Update(ideal, t0, 0)
	assert.Equal(t, ideal, missing)
	assert.Equal(t, 2, c.Len())
	assert.Empty(t, c.IDs(), "loading tiles are not renderable")

	assert.Empty(t, c.Update(ideal, t0, 0), "second update requests nothing")
}

func TestCacheUpdateAncestorFallback(t *testing.T) {
	c := newTestCache()
	parent := NewTileID(1, 0, 1, 0, 0)
	load(t, c, parent)

	ideal := []TileID{NewTileID(3, 0, 3, 1, 1), NewTileID(3, 0, 3, 2, 1)}
	c.Update(ideal, t0, 0)
	assert.Equal(t, []TileID{parent}, c.IDs())

	require.NoError(t, c.SetLoaded(ideal[0], nil, t0))
	c.Update(ideal, t0, 0)
	assert.Equal(t, []TileID{parent, ideal[0]}, c.IDs())

	require.NoError(t, c.SetLoaded(ideal[1], nil, t0))
	c.Update(ideal, t0, 0)
	assert.Equal(t, []TileID{ideal[0], ideal[1]}, c.IDs())
	assert.Nil(t, c.Tile(parent), "unneeded ancestor is dropped")
}

func TestCacheUpdateChildFallback(t *testing.T) {
	c := newTestCache()
	ideal := NewTileID(2, 0, 2, 1, 1)
	child := NewTileID(3, 0, 3, 2, 2)
	load(t, c, child)

	c.Update([]TileID{ideal}, t0, 0)
	assert.Equal(t, []TileID{child}, c.IDs())
}

func TestCacheRetainsSymbolTilesForFade(t *testing.T) {
	c := newTestCache()
	old := NewTileID(2, 0, 2, 1, 1)
	load(t, c, old, &Bucket{LayerID: "labels", Symbols: []SymbolInstance{{Key: "a", Anchor: orb.Point{10, 10}}}})
	c.Update([]TileID{old}, t0, 300*time.Millisecond)
	require.Equal(t, []TileID{old}, c.IDs())

	next := NewTileID(2, 0, 2, 3, 3)
	load(t, c, next)
	c.Update([]TileID{next}, t0.Add(10*time.Millisecond), 300*time.Millisecond)
	assert.Equal(t, []TileID{next}, c.IDs())
	assert.ElementsMatch(t, []TileID{old, next}, c.SymbolIDs())
	assert.True(t, c.Tile(old).HoldingForFade(t0.Add(100*time.Millisecond)))

	c.Update([]TileID{next}, t0.Add(400*time.Millisecond), 300*time.Millisecond)
	assert.Nil(t, c.Tile(old))
	assert.Equal(t, []TileID{next}, c.SymbolIDs())
}

func TestCacheNoRetentionWithoutFade(t *testing.T) {
	c := newTestCache()
	old := NewTileID(2, 0, 2, 1, 1)
	load(t, c, old, &Bucket{LayerID: "labels", Symbols: []SymbolInstance{{Key: "a"}}})
	c.Update([]TileID{old}, t0, 0)

	c.Update([]TileID{NewTileID(2, 0, 2, 0, 0)}, t0, 0)
	assert.Nil(t, c.Tile(old))
}

func TestCacheRevision(t *testing.T) {
	c := newTestCache()
	id := NewTileID(1, 0, 1, 0, 0)
	c.AddTile(id)
	r0 := c.Revision()

	require.NoError(t, c.SetLoaded(id, nil, t0))
	assert.Greater(t, c.Revision(), r0)

	r1 := c.Revision()
	c.Update([]TileID{id}, t0, 0)
	assert.Equal(t, r1, c.Revision(), "stable tile set keeps revision")

	c.RemoveTile(id)
	assert.Greater(t, c.Revision(), r1)
}

func TestCacheSetLoadedUnknown(t *testing.T) {
	c := newTestCache()
	err := c.SetLoaded(NewTileID(1, 0, 1, 0, 0), nil, t0)
	assert.True(t, errors.Is(err, ErrUnknownTile))

	id := NewTileID(1, 0, 1, 1, 1)
	c.AddTile(id)
	boom := errors.New("boom")
	require.NoError(t, c.SetErrored(id, boom))
	assert.Equal(t, StateErrored, c.Tile(id).State)
	assert.ErrorIs(t, c.Tile(id).Err, boom)
}

func TestCacheSymbolIDsOrder(t *testing.T) {
	c := newTestCache()
	ids := []TileID{NewTileID(2, 0, 2, 1, 1), NewTileID(3, 0, 3, 0, 0), NewTileID(3, 0, 3, 5, 0)}
	for _, id := range ids {
		load(t, c, id)
	}
	c.Update(ids, t0, 0)
	assert.Equal(t, []TileID{ids[1], ids[2], ids[0]}, c.SymbolIDs())
	assert.Equal(t, []TileID{ids[2], ids[1], ids[0]}, c.DescendingIDs())
}

func TestBucketIndexCount(t *testing.T) {
	b := &Bucket{Segments: []Segment{{IndexCount: 6}, {IndexCount: 12}}}
	assert.Equal(t, uint32(18), b.IndexCount())
	assert.False(t, b.Empty())
	assert.True(t, (&Bucket{}).Empty())
	var nilBucket *Bucket
	assert.True(t, nilBucket.Empty())
}

func TestSpecValidate(t *testing.T) {
	s := Spec{ID: "dem", Type: TypeRasterDEM}
	require.NoError(t, s.Validate())
	assert.Equal(t, DefaultTileSize, s.TileSize)

	bad := Spec{ID: "x", Type: "mystery"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSpec)

	inverted := Spec{ID: "x", Type: TypeVector, MinZoom: 10, MaxZoom: 5}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidSpec)
}
