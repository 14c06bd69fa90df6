package placement

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/source"
	"github.com/gogpu/tilemap/style"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

const fade = 300 * time.Millisecond

var (
	// parentTile spans screen [-256, 256] at the test transform; an anchor
	// of 6144 tile units lands on screen pixel 128.
	parentTile = source.NewTileID(2, 0, 2, 1, 1)
	// childTile holds the same world point at anchor 4096.
	childTile = source.NewTileID(3, 0, 3, 3, 3)
	otherTile = source.NewTileID(2, 0, 2, 2, 2)
)

func testTransform() geo.Transform {
	return geo.NewTransform(512, 512, 2, orb.Point{0, 0})
}

func symbol(key string, x, y float64) source.SymbolInstance {
	return source.SymbolInstance{
		Key:    key,
		Anchor: orb.Point{x, y},
		Box:    orb.Bound{Min: orb.Point{-20, -10}, Max: orb.Point{20, 10}},
	}
}

func labels(layerID string, symbols ...source.SymbolInstance) *source.Bucket {
	return &source.Bucket{LayerID: layerID, Symbols: symbols}
}

func newStyle(t *testing.T, layerIDs ...string) *style.Style {
	t.Helper()
	spec := style.Spec{Sources: []source.Spec{{ID: "streets", Type: source.TypeVector, MaxZoom: 14}}}
	for _, id := range layerIDs {
		spec.Layers = append(spec.Layers, style.LayerSpec{ID: id, Type: style.TypeSymbol, Source: "streets"})
	}
	st, err := style.New(spec)
	require.NoError(t, err)
	st.Update(style.EvaluationParameters{Zoom: 2, Now: t0})
	return st
}

// show makes tiles the visible set of the streets source, loading those
// given buckets.
func show(t *testing.T, st *style.Style, now time.Time, tiles map[source.TileID][]*source.Bucket, visible ...source.TileID) {
	t.Helper()
	c := st.Source("streets")
	for id, buckets := range tiles {
		c.AddTile(id)
		require.NoError(t, c.SetLoaded(id, buckets, now))
	}
	c.Update(visible, now, fade)
}

func input(st *style.Style, now time.Time) Input {
	return Input{Style: st, Transform: testTransform(), Now: now, FadeDuration: fade}
}

func TestSchedulerPlacesAndCollides(t *testing.T) {
	st := newStyle(t, "labels")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("labels",
			symbol("Main St", 6144, 6144),
			symbol("Oak Ave", 6144, 6144),
			symbol("Far Rd", 100, 100),
		)},
	}, parentTile)

	s := NewScheduler(Config{})
	committed, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)
	require.True(t, committed)
	assert.Equal(t, StateCommitted, s.State())

	r := s.Result()

	main, ok := r.CrossTileID("labels", parentTile, 0)
	require.True(t, ok)
	state, _ := r.State(main)
	assert.True(t, state.Placed)

	oak, _ := r.CrossTileID("labels", parentTile, 1)
	state, _ = r.State(oak)
	assert.False(t, state.Placed, "overlaps Main St")

	far, _ := r.CrossTileID("labels", parentTile, 2)
	state, _ = r.State(far)
	assert.False(t, state.Placed, "off screen")

	assert.Zero(t, r.Opacity(main, t0), "fades in from zero")
	assert.InDelta(t, 0.5, r.Opacity(main, t0.Add(fade/2)), 1e-6)
	assert.InDelta(t, 1, r.Opacity(main, t0.Add(fade)), 1e-6)
}

func TestSchedulerOverlapFlags(t *testing.T) {
	st := newStyle(t, "labels")
	allow := symbol("B", 6144, 6144)
	allow.AllowOverlap = true
	ignore := symbol("A", 6144, 6144)
	ignore.IgnorePlacement = true
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("labels", ignore, allow, symbol("C", 6144, 6144))},
	}, parentTile)

	s := NewScheduler(Config{})
	_, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)

	placed := func(i int) bool {
		id, _ := s.Result().CrossTileID("labels", parentTile, i)
		state, _ := s.Result().State(id)
		return state.Placed
	}
	assert.True(t, placed(0))
	assert.True(t, placed(1), "allowed to overlap the ignored box")
	assert.False(t, placed(2), "blocked by the overlapping label")
}

func TestSchedulerVariableAnchor(t *testing.T) {
	st := newStyle(t, "labels")
	shifted := symbol("Oak Ave", 6144, 6144)
	shifted.Offsets = []orb.Point{{0, 0}, {0, 30}}
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("labels", symbol("Main St", 6144, 6144), shifted)},
	}, parentTile)

	s := NewScheduler(Config{})
	_, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)

	opacity, offset, ok := s.Result().Symbol("labels", parentTile, 1, t0.Add(fade))
	require.True(t, ok)
	assert.Equal(t, orb.Point{0, 30}, offset)
	assert.InDelta(t, 1, opacity, 1e-6)
}

func TestSchedulerResumesAfterBudget(t *testing.T) {
	st := newStyle(t, "a", "b", "c")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {
			labels("a", symbol("A", 6144, 6144)),
			labels("b", symbol("B", 6144, 7000)),
			labels("c", symbol("C", 6144, 7800)),
		},
	}, parentTile)
	s := NewScheduler(Config{})

	committed, err := s.Update(input(st, t0), Buckets(1))
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Nil(t, s.Result(), "partial passes are not visible")
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, Cursor{Layer: 1}, s.Cursor())
	assert.Equal(t, 1, s.Stats().Buckets)

	committed, err = s.Update(input(st, t0.Add(16*time.Millisecond)), Buckets(1))
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Equal(t, Cursor{Layer: 2}, s.Cursor())
	assert.Equal(t, 2, s.Stats().Buckets, "layer a is not placed again")

	committed, err = s.Update(input(st, t0.Add(32*time.Millisecond)), Buckets(1))
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, 3, s.Stats().Buckets)
	assert.Equal(t, 1, s.Stats().Passes)
	assert.Equal(t, 3, s.Result().Len())
}

func TestSchedulerRestartsWhenTilesChange(t *testing.T) {
	st := newStyle(t, "a", "b")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("a", symbol("A", 6144, 6144)), labels("b", symbol("B", 6144, 7000))},
	}, parentTile)
	s := NewScheduler(Config{})

	_, err := s.Update(input(st, t0), Buckets(1))
	require.NoError(t, err)
	require.Equal(t, Cursor{Layer: 1}, s.Cursor())

	show(t, st, t0, map[source.TileID][]*source.Bucket{
		otherTile: {labels("a", symbol("D", 100, 100))},
	}, parentTile, otherTile)

	committed, err := s.Update(input(st, t0), Buckets(1))
	require.NoError(t, err)
	assert.False(t, committed)
	assert.Equal(t, 1, s.Stats().Invalidations)
	assert.Equal(t, 2, s.Stats().Passes)
	assert.Equal(t, Cursor{Layer: 0, Tile: 1}, s.Cursor(), "the new pass starts over")
}

func TestSchedulerForcedPasses(t *testing.T) {
	st := newStyle(t, "a", "b")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("a", symbol("A", 6144, 6144)), labels("b", symbol("B", 6144, 7000))},
	}, parentTile)

	t.Run("no fade", func(t *testing.T) {
		s := NewScheduler(Config{})
		in := input(st, t0)
		in.FadeDuration = 0
		committed, err := s.Update(in, Buckets(1))
		require.NoError(t, err)
		assert.True(t, committed, "runs to completion")
		assert.InDelta(t, 1, s.Result().Opacity(1, t0), 1e-6, "no fade in")
	})

	t.Run("order change", func(t *testing.T) {
		s := NewScheduler(Config{})
		_, err := s.Update(input(st, t0), Unlimited)
		require.NoError(t, err)

		require.NoError(t, st.MoveLayer("b", "a"))
		st.Update(style.EvaluationParameters{Zoom: 2, Now: t0})

		committed, err := s.Update(input(st, t0.Add(time.Millisecond)), Buckets(1))
		require.NoError(t, err)
		assert.True(t, committed)
		assert.Equal(t, 2, s.Stats().Passes)
	})
}

func TestSchedulerStaleness(t *testing.T) {
	st := newStyle(t, "labels")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("labels", symbol("A", 6144, 6144))},
	}, parentTile)
	s := NewScheduler(Config{})

	committed, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)
	require.True(t, committed)

	committed, err = s.Update(input(st, t0.Add(fade/3)), Unlimited)
	require.NoError(t, err)
	assert.False(t, committed, "recent result is kept")
	assert.Equal(t, StateCommitted, s.State())

	zoomed := input(st, t0.Add(fade/3))
	zoomed.Transform.Zoom = 2.5
	committed, err = s.Update(zoomed, Unlimited)
	require.NoError(t, err)
	assert.True(t, committed, "zoom changed")

	committed, err = s.Update(input(st, t0.Add(fade*2)), Unlimited)
	require.NoError(t, err)
	assert.True(t, committed, "result older than the fade")
	assert.Equal(t, 3, s.Stats().Commits)
}

func TestSchedulerDeterministic(t *testing.T) {
	run := func() map[uint64]SymbolState {
		st := newStyle(t, "a", "b")
		show(t, st, t0, map[source.TileID][]*source.Bucket{
			parentTile: {
				labels("a", symbol("A", 6144, 6144), symbol("B", 6200, 6144), symbol("C", 7000, 6144)),
				labels("b", symbol("A", 6144, 6300), symbol("D", 5000, 5000)),
			},
			otherTile: {labels("a", symbol("E", 1000, 1000))},
		}, parentTile, otherTile)
		s := NewScheduler(Config{})
		for i := 0; ; i++ {
			committed, err := s.Update(input(st, t0.Add(time.Duration(i)*time.Millisecond)), Buckets(1))
			require.NoError(t, err)
			if committed {
				break
			}
		}
		out := make(map[uint64]SymbolState)
		for _, id := range s.Result().IDs() {
			out[id], _ = s.Result().State(id)
		}
		return out
	}
	first := run()
	assert.NotEmpty(t, first)
	for range 5 {
		assert.Equal(t, first, run())
	}
}

func TestFadeContinuesAcrossTileSwap(t *testing.T) {
	st := newStyle(t, "labels")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("labels", symbol("Main St", 6144, 6144))},
	}, parentTile)
	s := NewScheduler(Config{})
	_, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)
	before, ok := s.Result().CrossTileID("labels", parentTile, 0)
	require.True(t, ok)

	t1 := t0.Add(fade + 100*time.Millisecond)
	show(t, st, t1, map[source.TileID][]*source.Bucket{
		childTile: {labels("labels", symbol("Main St", 4096, 4096))},
	}, childTile)
	require.Equal(t, []source.TileID{childTile, parentTile}, st.Source("streets").SymbolIDs(),
		"the parent is held while fading")

	committed, err := s.Update(input(st, t1), Unlimited)
	require.NoError(t, err)
	require.True(t, committed)

	r := s.Result()
	after, ok := r.CrossTileID("labels", childTile, 0)
	require.True(t, ok)
	assert.Equal(t, before, after, "the child inherits the label identity")
	opacity, _, ok := r.Symbol("labels", childTile, 0, t1)
	require.True(t, ok)
	assert.InDelta(t, 1, opacity, 1e-6, "no fade from zero")

	_, _, ok = r.Symbol("labels", parentTile, 0, t1)
	assert.False(t, ok, "the duplicate in the fading parent is hidden")
}

func TestSchedulerPrunesRemovedLayers(t *testing.T) {
	st := newStyle(t, "a", "b")
	show(t, st, t0, map[source.TileID][]*source.Bucket{
		parentTile: {labels("a", symbol("A", 6144, 6144)), labels("b", symbol("B", 6144, 7000))},
	}, parentTile)
	s := NewScheduler(Config{})
	_, err := s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)
	require.Equal(t, 2, s.Index().Layers())

	require.NoError(t, st.RemoveLayer("b"))
	st.Update(style.EvaluationParameters{Zoom: 2, Now: t0})
	_, err = s.Update(input(st, t0), Unlimited)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Index().Layers())
	assert.Zero(t, s.Index().Tiles("b"))
}

func TestSchedulerErrors(t *testing.T) {
	s := NewScheduler(Config{})
	_, err := s.Update(Input{}, Unlimited)
	assert.ErrorIs(t, err, ErrNoStyle)

	var r *Result
	_, _, ok := r.Symbol("labels", parentTile, 0, t0)
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	s.Reset()
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Result())
}
