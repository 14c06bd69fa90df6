package placement

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/tilemap/source"
)

func box(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func TestCollisionIndex(t *testing.T) {
	c := NewCollisionIndex(400, 300, 50, 64)

	tests := []struct {
		name string
		box  orb.Bound
		want bool
	}{
		{"overlap", box(90, 90, 110, 110), true},
		{"inside", box(101, 101, 102, 102), true},
		{"shared edge", box(150, 100, 170, 150), false},
		{"disjoint", box(300, 200, 320, 220), false},
		{"spans cells", box(0, 0, 400, 300), true},
	}
	c.Insert(box(100, 100, 150, 150))
	require.Equal(t, 1, c.Len())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Collides(tt.box))
		})
	}
}

func TestCollisionIndexEdges(t *testing.T) {
	c := NewCollisionIndex(400, 300, 50, 0)

	assert.True(t, c.OnScreen(box(-10, -10, 5, 5)))
	assert.False(t, c.OnScreen(box(-40, -40, -20, -20)))

	// Just outside the viewport but inside the padding.
	c.Insert(box(-40, -40, -20, -20))
	assert.True(t, c.Collides(box(-30, -30, -25, -25)))

	// Outside the covered area entirely.
	c.Insert(box(-500, -500, -480, -480))
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Collides(box(-500, -500, -480, -480)))
}

func TestSymbolKeyNormalises(t *testing.T) {
	assert.Equal(t, SymbolKey("Caf\u00e9"), SymbolKey("Cafe\u0301"))
	assert.NotEqual(t, SymbolKey("Cafe"), SymbolKey("Caf\u00e9"))
}

func TestCrossTileIndexMatchesAcrossZoom(t *testing.T) {
	x := NewCrossTileIndex(0)
	parent := x.AddTile("labels", parentTile, []source.SymbolInstance{
		symbol("Caf\u00e9", 6144, 6144),
		symbol("Oak Ave", 1000, 1000),
	})
	require.Equal(t, []uint64{1, 2}, parent)

	child := x.AddTile("labels", childTile, []source.SymbolInstance{
		symbol("Cafe\u0301", 4096+20, 4096),
		symbol("Oak Ave", 4096, 4096),
		symbol("Elm St", 100, 100),
	})
	assert.Equal(t, parent[0], child[0], "same label, normalised text, within tolerance")
	assert.NotContains(t, parent, child[1], "same text far away")
	assert.NotContains(t, parent, child[2])

	again := x.AddTile("labels", childTile, make([]source.SymbolInstance, 3))
	assert.Equal(t, child, again, "an indexed tile keeps its IDs")
}

func TestCrossTileIndexTolerance(t *testing.T) {
	x := NewCrossTileIndex(0)
	parent := x.AddTile("labels", parentTile, []source.SymbolInstance{symbol("A", 6144, 6144)})
	// 40 units in the child are 40 units apart at the finer zoom.
	child := x.AddTile("labels", childTile, []source.SymbolInstance{symbol("A", 4096+40, 4096)})
	assert.NotEqual(t, parent[0], child[0])
}

func TestCrossTileIndexNoDuplicatesAtOneZoom(t *testing.T) {
	// The label sits on the edge shared by two children of parentTile.
	x := NewCrossTileIndex(0)
	parent := x.AddTile("labels", parentTile, []source.SymbolInstance{symbol("A", 4096, 6144)})
	first := x.AddTile("labels", childTile, []source.SymbolInstance{symbol("A", 0, 4096)})
	require.Equal(t, parent, first)

	// A sibling at the child zoom cannot take an ID already in use there.
	sibling := source.NewTileID(3, 0, 3, 2, 3)
	second := x.AddTile("labels", sibling, []source.SymbolInstance{symbol("A", source.Extent, 4096)})
	assert.NotEqual(t, first[0], second[0])

	// Two instances in one tile never share an ID.
	x.RemoveTile("labels", childTile)
	x.RemoveTile("labels", sibling)
	both := x.AddTile("labels", sibling, []source.SymbolInstance{
		symbol("A", source.Extent, 4096),
		symbol("A", source.Extent-1, 4096),
	})
	assert.Equal(t, parent[0], both[0])
	assert.NotEqual(t, both[0], both[1])
}

func TestCrossTileIndexPrune(t *testing.T) {
	x := NewCrossTileIndex(0)
	x.AddTile("a", parentTile, []source.SymbolInstance{symbol("A", 1, 1)})
	x.AddTile("a", otherTile, []source.SymbolInstance{symbol("B", 1, 1)})
	x.AddTile("b", parentTile, []source.SymbolInstance{symbol("C", 1, 1)})

	assert.True(t, x.PruneTiles("a", func(id source.TileID) bool { return id == otherTile }))
	assert.Equal(t, 1, x.Tiles("a"))
	assert.False(t, x.PruneTiles("missing", func(source.TileID) bool { return false }))

	assert.True(t, x.PruneLayers([]string{"a"}))
	assert.Equal(t, 1, x.Layers())
	assert.False(t, x.PruneLayers([]string{"a"}))
}

func TestResultFadeOut(t *testing.T) {
	r := &Result{
		fade: fade,
		symbols: map[uint64]SymbolState{
			1: {Placed: false, Opacity: 0.9, ChangedAt: t0},
			2: {Placed: true, Opacity: 1, ChangedAt: t0},
		},
	}
	assert.InDelta(t, 0.4, r.Opacity(1, t0.Add(150*time.Millisecond)), 1e-6)
	assert.Zero(t, r.Opacity(1, t0.Add(fade)))
	assert.InDelta(t, 1, r.Opacity(2, t0.Add(fade)), 1e-6)
	assert.True(t, r.Fading(t0))
	assert.False(t, r.Fading(t0.Add(fade)))
	assert.Equal(t, []uint64{1, 2}, r.IDs())
}

func TestDeadlines(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	d := NewDeadline(clock, 2*time.Millisecond)
	assert.False(t, d.Done())
	now = now.Add(2 * time.Millisecond)
	assert.True(t, d.Done())

	b := Buckets(2)
	assert.False(t, b.Done())
	assert.True(t, b.Done())
	assert.False(t, Unlimited.Done())
}
