package geo

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilemap/source"
)

// DefaultTileSize is the size in pixels of one tile at integer zoom.
const DefaultTileSize = 512

// EdgeInsets is screen padding in pixels. The map center is shifted into
// the middle of the unpadded area.
type EdgeInsets struct {
	Top, Bottom, Left, Right float64
}

// Transform is the camera state of one frame: viewport size, zoom and
// center. Bearing and pitch are always zero.
type Transform struct {
	Width, Height float64
	Zoom          float64
	Center        orb.Point // longitude, latitude
	TileSize      float64
	Padding       EdgeInsets
}

// NewTransform returns a transform with the default tile size.
func NewTransform(width, height, zoom float64, center orb.Point) Transform {
	return Transform{Width: width, Height: height, Zoom: zoom, Center: center, TileSize: DefaultTileSize}
}

func (t Transform) tileSize() float64 {
	if t.TileSize <= 0 {
		return DefaultTileSize
	}
	return t.TileSize
}

// Scale is 2^Zoom.
func (t Transform) Scale() float64 { return math.Exp2(t.Zoom) }

// WorldSize is the width of one world copy in pixels.
func (t Transform) WorldSize() float64 { return t.tileSize() * t.Scale() }

// CenterPoint is the center in world pixels.
func (t Transform) CenterPoint() orb.Point {
	f := maptile.Fraction(t.Center, 0)
	ws := t.WorldSize()
	return orb.Point{f[0] * ws, f[1] * ws}
}

// screenCenter is where CenterPoint lands on screen after padding.
func (t Transform) screenCenter() orb.Point {
	return orb.Point{
		(t.Width + t.Padding.Left - t.Padding.Right) / 2,
		(t.Height + t.Padding.Top - t.Padding.Bottom) / 2,
	}
}

// tileGeometry returns the world pixel origin of a tile and the size of
// one tile unit in pixels.
func (t Transform) tileGeometry(id source.TileID) (origin orb.Point, unit float64) {
	x, y := id.Unwrapped()
	tilePx := t.WorldSize() / float64(uint32(1)<<id.Z())
	return orb.Point{x * tilePx, y * tilePx}, tilePx / source.Extent
}

// Project maps a point in tile units of id to screen pixels.
func (t Transform) Project(id source.TileID, p orb.Point) orb.Point {
	origin, unit := t.tileGeometry(id)
	c := t.CenterPoint()
	sc := t.screenCenter()
	return orb.Point{
		origin[0] + p[0]*unit - c[0] + sc[0],
		origin[1] + p[1]*unit - c[1] + sc[1],
	}
}

// PixelsToTileUnits converts a length in pixels to tile units of id.
func (t Transform) PixelsToTileUnits(id source.TileID, px float64) float64 {
	_, unit := t.tileGeometry(id)
	return px / unit
}

// TileMatrix returns the row-major matrix taking tile units of id to clip
// space. Clip y points up.
func (t Transform) TileMatrix(id source.TileID) f32.Mat4 {
	origin, unit := t.tileGeometry(id)
	c := t.CenterPoint()
	sc := t.screenCenter()

	ox := origin[0] - c[0] + sc[0]
	oy := origin[1] - c[1] + sc[1]
	return f32.Mat4{
		float32(2 * unit / t.Width), 0, 0, float32(2*ox/t.Width - 1),
		0, float32(-2 * unit / t.Height), 0, float32(1 - 2*oy/t.Height),
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Identity is the identity matrix, used for geometry already in clip space.
func Identity() f32.Mat4 {
	return f32.Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns m followed by a translation of (dx, dy) in source units.
func Translate(m f32.Mat4, dx, dy float32) f32.Mat4 {
	m[3] += m[0]*dx + m[1]*dy
	m[7] += m[4]*dx + m[5]*dy
	return m
}

// MulPoint applies m to (x, y, 0, 1) and returns clip x and y.
func MulPoint(m f32.Mat4, x, y float32) (float32, float32) {
	cx := m[0]*x + m[1]*y + m[3]
	cy := m[4]*x + m[5]*y + m[7]
	w := m[12]*x + m[13]*y + m[15]
	if math32.Abs(w) < 1e-12 {
		return cx, cy
	}
	return cx / w, cy / w
}

// CoveringZoom returns the tile zoom used for a source of the given tile
// size, before clamping to the source zoom range.
func (t Transform) CoveringZoom(sourceTileSize int) float64 {
	if sourceTileSize <= 0 {
		sourceTileSize = source.DefaultTileSize
	}
	return math.Floor(t.Zoom + math.Log2(t.tileSize()/float64(sourceTileSize)))
}

// CoveringTiles returns the tiles of a source needed to cover the viewport,
// in ascending order. Above the source max zoom the max zoom tiles are
// overscaled. Below min zoom nothing is returned.
func (t Transform) CoveringTiles(spec source.Spec) []source.TileID {
	z := t.CoveringZoom(spec.TileSize)
	if z < float64(spec.MinZoom) || t.Width <= 0 || t.Height <= 0 {
		return nil
	}
	overscaledZ := uint8(math.Min(z, source.MaxZoom))
	tileZ := overscaledZ
	if tileZ > spec.MaxZoom {
		tileZ = spec.MaxZoom
	}

	n := float64(uint32(1) << tileZ)
	tilePx := t.WorldSize() / n
	c := t.CenterPoint()
	sc := t.screenCenter()
	minX := math.Floor((c[0] - sc[0]) / tilePx)
	maxX := math.Floor((c[0] - sc[0] + t.Width - 1e-9) / tilePx)
	minY := math.Max(0, math.Floor((c[1]-sc[1])/tilePx))
	maxY := math.Min(n-1, math.Floor((c[1]-sc[1]+t.Height-1e-9)/tilePx))

	var ids []source.TileID
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			wrap := math.Floor(x / n)
			cx := x - wrap*n
			ids = append(ids, source.NewTileID(overscaledZ, int32(wrap), tileZ, uint32(cx), uint32(y)))
		}
	}
	source.SortAscending(ids)
	return ids
}
