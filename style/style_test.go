package style

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/tilemap/source"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testSpec() Spec {
	return Spec{
		Sources: []source.Spec{{ID: "source1", Type: source.TypeVector}},
		Layers: []LayerSpec{
			{ID: "background", Type: TypeBackground, Paint: map[string]any{"background-color": "#ffffff"}},
			{ID: "water", Type: TypeFill, Source: "source1", Paint: map[string]any{"fill-color": "#0000ff"}},
			{ID: "labels", Type: TypeSymbol, Source: "source1"},
		},
	}
}

func newTestStyle(t *testing.T) *Style {
	t.Helper()
	s, err := New(testSpec())
	require.NoError(t, err)
	return s
}

func TestNewStyleOrder(t *testing.T) {
	s := newTestStyle(t)
	assert.Equal(t, []string{"background", "water", "labels"}, s.Order())
	require.NotNil(t, s.Source("source1"))
	assert.Equal(t, TypeFill, s.Layer("water").Type())
}

func TestStructuralChangesApplyOnUpdate(t *testing.T) {
	s := newTestStyle(t)
	assert.Empty(t, s.Layers(), "nothing is drawn before the first Update")
	s.Update(EvaluationParameters{Zoom: 3, Now: t0})

	require.NoError(t, s.AddLayer(LayerSpec{ID: "roads", Type: TypeLine, Source: "source1"}, "labels"))
	require.NoError(t, s.MoveLayer("background", "labels"))
	require.NoError(t, s.RemoveLayer("water"))
	assert.Equal(t, []string{"roads", "background", "labels"}, s.Order())
	assert.Equal(t, []string{"background", "water", "labels"}, layerIDs(s.Layers()))

	version := s.OrderVersion()
	res := s.Update(EvaluationParameters{Zoom: 3, Now: t0})
	assert.True(t, res.OrderChanged)
	assert.Equal(t, version+1, s.OrderVersion(), "three changes, one new order")
	assert.Equal(t, s.Order(), layerIDs(s.Layers()))
}

func layerIDs(layers []*Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.ID()
	}
	return out
}

func TestUpdateEvaluatesPaint(t *testing.T) {
	s := newTestStyle(t)
	res := s.Update(EvaluationParameters{Zoom: 3, Now: t0})
	assert.Equal(t, 3, res.Recalculated)
	assert.True(t, res.OrderChanged)

	c := s.Layer("water").Paint("fill-color").Color
	assert.InDelta(t, 1.0, c.B, 1e-9)
	assert.InDelta(t, 0.0, c.R, 1e-9)
	assert.Equal(t, 1.0, s.Layer("water").Paint("fill-opacity").Number, "default")
	assert.True(t, s.Layer("water").IsOpaque())

	res = s.Update(EvaluationParameters{Zoom: 4, Now: t0})
	assert.Zero(t, res.Recalculated, "constant properties skip recalculation")
	assert.False(t, res.OrderChanged)
}

func TestMutationsCoalesce(t *testing.T) {
	s := newTestStyle(t)
	s.Update(EvaluationParameters{Zoom: 3, Now: t0})

	require.NoError(t, s.SetPaintProperty("water", "fill-opacity", 0.5))
	require.NoError(t, s.SetPaintProperty("water", "fill-opacity", 0.7))
	require.NoError(t, s.SetPaintProperty("water", "fill-color", "#ff0000"))
	require.NoError(t, s.SetLayoutProperty("water", "visibility", "visible"))

	res := s.Update(EvaluationParameters{Zoom: 3, Now: t0})
	assert.Equal(t, 1, res.Recalculated)
	assert.InDelta(t, 0.7, s.Layer("water").Paint("fill-opacity").Number, 1e-9)
	assert.False(t, s.Layer("water").IsOpaque())
}

func TestRemoveSourceInUse(t *testing.T) {
	s := newTestStyle(t)
	err := s.RemoveSource("source1")
	require.ErrorIs(t, err, ErrSourceInUse)
	assert.NotNil(t, s.Source("source1"), "rejected removal has no effect")

	require.NoError(t, s.RemoveLayer("water"))
	require.NoError(t, s.RemoveLayer("labels"))
	require.NoError(t, s.RemoveSource("source1"))
	assert.Nil(t, s.Source("source1"))
	assert.ErrorIs(t, s.RemoveSource("source1"), ErrUnknownSource)
}

func TestSourceArenaReuse(t *testing.T) {
	s := newTestStyle(t)
	require.NoError(t, s.AddSource(source.Spec{ID: "dem", Type: source.TypeRasterDEM}))
	dem := s.Source("dem")
	require.NotNil(t, dem)
	assert.Equal(t, 1, dem.Index())

	require.NoError(t, s.RemoveSource("dem"))
	require.NoError(t, s.AddSource(source.Spec{ID: "sat", Type: source.TypeRaster}))
	assert.Equal(t, 1, s.Source("sat").Index())
	assert.ErrorIs(t, s.AddSource(source.Spec{ID: "sat", Type: source.TypeRaster}), ErrDuplicateSource)

	tile := s.Source("sat").AddTile(source.NewTileID(0, 0, 0, 0, 0))
	assert.Same(t, s.Source("sat"), s.TileSource(tile))
}

func TestAddLayerErrors(t *testing.T) {
	s := newTestStyle(t)
	assert.ErrorIs(t, s.AddLayer(LayerSpec{ID: "water", Type: TypeFill, Source: "source1"}, ""), ErrDuplicateLayer)
	assert.ErrorIs(t, s.AddLayer(LayerSpec{ID: "roads", Type: TypeLine, Source: "nope"}, ""), ErrUnknownSource)
	assert.ErrorIs(t, s.AddLayer(LayerSpec{ID: "roads", Type: TypeLine, Source: "source1"}, "nope"), ErrUnknownLayer)
	assert.ErrorIs(t, s.RemoveLayer("nope"), ErrUnknownLayer)
	assert.ErrorIs(t, s.SetPaintProperty("nope", "fill-color", "red"), ErrUnknownLayer)

	require.NoError(t, s.AddLayer(LayerSpec{ID: "roads", Type: TypeLine, Source: "source1"}, "labels"))
	assert.Equal(t, []string{"background", "water", "roads", "labels"}, s.Order())
}

func TestMoveLayerBumpsOrderVersion(t *testing.T) {
	s := newTestStyle(t)
	s.Update(EvaluationParameters{Zoom: 1, Now: t0})
	v := s.OrderVersion()

	require.NoError(t, s.MoveLayer("background", ""))
	assert.Equal(t, []string{"water", "labels", "background"}, s.Order())
	res := s.Update(EvaluationParameters{Zoom: 1, Now: t0})
	assert.True(t, res.OrderChanged)
	assert.Equal(t, v+1, s.OrderVersion())
}

func TestPaintTransition(t *testing.T) {
	s := newTestStyle(t)
	s.SetTransition(Transition{Duration: Duration(200 * time.Millisecond)})
	s.Update(EvaluationParameters{Zoom: 2, Now: t0})

	require.NoError(t, s.SetPaintProperty("water", "fill-opacity", 0.0))
	res := s.Update(EvaluationParameters{Zoom: 2, Now: t0})
	assert.True(t, res.Transitioning)
	assert.InDelta(t, 1.0, s.Layer("water").Paint("fill-opacity").Number, 1e-9)

	s.Update(EvaluationParameters{Zoom: 2, Now: t0.Add(100 * time.Millisecond)})
	mid := s.Layer("water").Paint("fill-opacity").Number
	assert.InDelta(t, 0.5, mid, 1e-9, "cubic ease is 0.5 at the midpoint")

	res = s.Update(EvaluationParameters{Zoom: 2, Now: t0.Add(250 * time.Millisecond)})
	assert.False(t, res.Transitioning)
	assert.Zero(t, s.Layer("water").Paint("fill-opacity").Number)

	res = s.Update(EvaluationParameters{Zoom: 2, Now: t0.Add(300 * time.Millisecond)})
	assert.Zero(t, res.Recalculated)
}

func TestTransitionDelay(t *testing.T) {
	s := newTestStyle(t)
	s.SetTransition(Transition{Duration: Duration(100 * time.Millisecond), Delay: Duration(50 * time.Millisecond)})
	s.Update(EvaluationParameters{Zoom: 2, Now: t0})

	require.NoError(t, s.SetPaintProperty("water", "fill-opacity", 0.0))
	s.Update(EvaluationParameters{Zoom: 2, Now: t0})
	s.Update(EvaluationParameters{Zoom: 2, Now: t0.Add(40 * time.Millisecond)})
	assert.InDelta(t, 1.0, s.Layer("water").Paint("fill-opacity").Number, 1e-9)
}

func TestZoomDependentRecalculation(t *testing.T) {
	s := newTestStyle(t)
	require.NoError(t, s.SetPaintProperty("water", "fill-opacity", map[string]any{
		"stops": []any{[]any{int64(0), 0.0}, []any{int64(10), 1.0}},
	}))
	s.Update(EvaluationParameters{Zoom: 5, Now: t0})
	assert.InDelta(t, 0.5, s.Layer("water").Paint("fill-opacity").Number, 1e-9)
	assert.Equal(t, "fill/fill-opacity", s.Layer("water").ProgramFingerprint())
	assert.Equal(t, "background", s.Layer("background").ProgramFingerprint())

	res := s.Update(EvaluationParameters{Zoom: 6, Now: t0})
	assert.Equal(t, 1, res.Recalculated)
	assert.InDelta(t, 0.6, s.Layer("water").Paint("fill-opacity").Number, 1e-9)
}

func TestUsedSources(t *testing.T) {
	s := newTestStyle(t)
	require.NoError(t, s.AddSource(source.Spec{ID: "idle", Type: source.TypeRaster}))
	s.Update(EvaluationParameters{Zoom: 3, Now: t0})
	assert.True(t, s.Source("source1").Used())
	assert.False(t, s.Source("idle").Used())

	require.NoError(t, s.SetVisibility("water", false))
	require.NoError(t, s.SetLayerZoomRange("labels", 10, 0))
	s.Update(EvaluationParameters{Zoom: 3, Now: t0})
	assert.False(t, s.Source("source1").Used())
	assert.True(t, s.Layer("labels").IsHidden(3))
	assert.False(t, s.Layer("labels").IsHidden(10))
}

func TestLayerKinds(t *testing.T) {
	tests := []struct {
		typ       LayerType
		clipped   bool
		offscreen bool
		is3D      bool
	}{
		{TypeFill, true, false, false},
		{TypeLine, true, false, false},
		{TypeSymbol, false, false, false},
		{TypeFillExtrusion, true, false, true},
		{TypeHeatmap, false, true, false},
		{TypeHillshade, false, true, false},
		{TypeRaster, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			l, err := newLayer(LayerSpec{ID: "l", Type: tt.typ, Source: "s"})
			require.NoError(t, err)
			assert.Equal(t, tt.clipped, l.IsTileClipped())
			assert.Equal(t, tt.offscreen, l.HasOffscreenPass())
			assert.Equal(t, tt.is3D, l.Is3D())
		})
	}
}

func TestNewLayerValidation(t *testing.T) {
	_, err := newLayer(LayerSpec{ID: "x", Type: "sparkle"})
	assert.Error(t, err)
	_, err = newLayer(LayerSpec{ID: "x", Type: TypeFill})
	assert.Error(t, err, "fill needs a source")
	_, err = newLayer(LayerSpec{ID: "x", Type: TypeCustom})
	assert.Error(t, err, "custom needs a renderer")
	_, err = newLayer(LayerSpec{ID: "x", Type: TypeFill, Source: "s", Paint: map[string]any{"fill-color": "nope"}})
	assert.Error(t, err)
}
