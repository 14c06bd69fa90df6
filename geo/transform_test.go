package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/tilemap/source"
)

func TestProjectCenterTile(t *testing.T) {
	tr := NewTransform(512, 512, 0, orb.Point{0, 0})
	id := source.NewTileID(0, 0, 0, 0, 0)

	p := tr.Project(id, orb.Point{source.Extent / 2, source.Extent / 2})
	assert.InDelta(t, 256, p[0], 1e-6)
	assert.InDelta(t, 256, p[1], 1e-6)

	p = tr.Project(id, orb.Point{0, 0})
	assert.InDelta(t, 0, p[0], 1e-6)
	assert.InDelta(t, 0, p[1], 1e-6)
}

func TestTileMatrixMatchesProject(t *testing.T) {
	tr := NewTransform(800, 600, 3.5, orb.Point{13.4, 52.5})
	id := source.NewTileID(3, 0, 3, 4, 2)
	m := tr.TileMatrix(id)

	for _, pt := range []orb.Point{{0, 0}, {4096, 1000}, {8192, 8192}} {
		px := tr.Project(id, pt)
		cx, cy := MulPoint(m, float32(pt[0]), float32(pt[1]))
		assert.InDelta(t, px[0]/800*2-1, cx, 1e-3)
		assert.InDelta(t, 1-px[1]/600*2, cy, 1e-3)
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(Identity(), 0.5, -0.25)
	x, y := MulPoint(m, 0, 0)
	assert.InDelta(t, 0.5, x, 1e-6)
	assert.InDelta(t, -0.25, y, 1e-6)
}

func TestPadding(t *testing.T) {
	tr := NewTransform(400, 400, 0, orb.Point{0, 0})
	tr.Padding = EdgeInsets{Left: 100}
	p := tr.Project(source.NewTileID(0, 0, 0, 0, 0), orb.Point{source.Extent / 2, source.Extent / 2})
	assert.InDelta(t, 250, p[0], 1e-6)
}

func TestCoveringTiles(t *testing.T) {
	spec := source.Spec{ID: "s", Type: source.TypeVector}
	require.NoError(t, spec.Validate())

	tr := NewTransform(512, 512, 1, orb.Point{0, 0})
	ids := tr.CoveringTiles(spec)
	assert.Equal(t, []source.TileID{
		source.NewTileID(1, 0, 1, 0, 0),
		source.NewTileID(1, 0, 1, 1, 0),
		source.NewTileID(1, 0, 1, 0, 1),
		source.NewTileID(1, 0, 1, 1, 1),
	}, ids)
}

func TestCoveringTilesWraps(t *testing.T) {
	spec := source.Spec{ID: "s", Type: source.TypeVector}
	require.NoError(t, spec.Validate())

	tr := NewTransform(1024, 256, 0, orb.Point{180, 0})
	ids := tr.CoveringTiles(spec)
	assert.Contains(t, ids, source.NewTileID(0, 0, 0, 0, 0))
	assert.Contains(t, ids, source.NewTileID(0, 1, 0, 0, 0))
}

func TestCoveringTilesOverscale(t *testing.T) {
	spec := source.Spec{ID: "s", Type: source.TypeVector, MaxZoom: 14}
	require.NoError(t, spec.Validate())

	tr := NewTransform(100, 100, 16.2, orb.Point{0.001, 0.001})
	ids := tr.CoveringTiles(spec)
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, uint8(16), id.OverscaledZ)
		assert.Equal(t, uint8(14), id.Z())
	}
}

func TestCoveringTilesBelowMinZoom(t *testing.T) {
	spec := source.Spec{ID: "s", Type: source.TypeVector, MinZoom: 5}
	require.NoError(t, spec.Validate())
	assert.Empty(t, NewTransform(512, 512, 2, orb.Point{}).CoveringTiles(spec))
}
