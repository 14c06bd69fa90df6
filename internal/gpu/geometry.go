package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Mesh is a vertex buffer with an optional index buffer.
type Mesh struct {
	Vertices    hal.Buffer
	Indices     hal.Buffer
	IndexFormat gputypes.IndexFormat
	// Count is the index count of indexed meshes, the vertex count otherwise.
	Count uint32
}

// Indexed reports whether the mesh is drawn with an index buffer.
func (m *Mesh) Indexed() bool { return m.Indices != nil }

// Geometry owns the fixed meshes shared by every frame. Meshes are created
// on first use and released by Destroy.
type Geometry struct {
	device hal.Device
	queue  hal.Queue
	extent float32

	quadIndices  hal.Buffer
	tileQuad     *Mesh
	texturedQuad *Mesh
	viewportQuad *Mesh
	tileBorder   *Mesh
}

// NewGeometry returns geometry for tiles spanning [0, extent] units.
func NewGeometry(device hal.Device, queue hal.Queue, extent float32) *Geometry {
	return &Geometry{device: device, queue: queue, extent: extent}
}

// TileQuad covers one tile in tile units.
func (g *Geometry) TileQuad() (*Mesh, error) {
	if g.tileQuad != nil {
		return g.tileQuad, nil
	}
	e := g.extent
	m, err := g.indexedQuad("tile_quad", []float32{0, 0, e, 0, 0, e, e, e})
	if err != nil {
		return nil, err
	}
	g.tileQuad = m
	return m, nil
}

// TexturedTileQuad covers one tile with uv coordinates spanning [0, 1].
func (g *Geometry) TexturedTileQuad() (*Mesh, error) {
	if g.texturedQuad != nil {
		return g.texturedQuad, nil
	}
	e := g.extent
	m, err := g.indexedQuad("tile_textured_quad", []float32{
		0, 0, 0, 0,
		e, 0, 1, 0,
		0, e, 0, 1,
		e, e, 1, 1,
	})
	if err != nil {
		return nil, err
	}
	g.texturedQuad = m
	return m, nil
}

// ViewportQuad covers clip space and is drawn with the identity matrix.
func (g *Geometry) ViewportQuad() (*Mesh, error) {
	if g.viewportQuad != nil {
		return g.viewportQuad, nil
	}
	m, err := g.indexedQuad("viewport_quad", []float32{-1, -1, 1, -1, -1, 1, 1, 1})
	if err != nil {
		return nil, err
	}
	g.viewportQuad = m
	return m, nil
}

// TileBorder outlines one tile as a closed line strip.
func (g *Geometry) TileBorder() (*Mesh, error) {
	if g.tileBorder != nil {
		return g.tileBorder, nil
	}
	e := g.extent
	verts := []float32{0, 0, e, 0, e, e, 0, e, 0, 0}
	vb, err := g.upload("tile_border_vertices", float32Bytes(verts), gputypes.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	g.tileBorder = &Mesh{Vertices: vb, Count: uint32(len(verts) / 2)}
	return g.tileBorder, nil
}

func (g *Geometry) indexedQuad(label string, verts []float32) (*Mesh, error) {
	if g.quadIndices == nil {
		idx := make([]byte, 0, 12)
		for _, i := range []uint16{0, 1, 2, 1, 3, 2} {
			idx = binary.LittleEndian.AppendUint16(idx, i)
		}
		ib, err := g.upload("quad_indices", idx, gputypes.BufferUsageIndex)
		if err != nil {
			return nil, err
		}
		g.quadIndices = ib
	}
	vb, err := g.upload(label+"_vertices", float32Bytes(verts), gputypes.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	return &Mesh{
		Vertices:    vb,
		Indices:     g.quadIndices,
		IndexFormat: gputypes.IndexFormatUint16,
		Count:       6,
	}, nil
}

func (g *Geometry) upload(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := g.queue.WriteBuffer(buf, 0, data); err != nil {
		g.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

// Destroy releases every mesh. Meshes are recreated on next use.
func (g *Geometry) Destroy() {
	for _, m := range []*Mesh{g.tileQuad, g.texturedQuad, g.viewportQuad, g.tileBorder} {
		if m != nil {
			g.device.DestroyBuffer(m.Vertices)
		}
	}
	if g.quadIndices != nil {
		g.device.DestroyBuffer(g.quadIndices)
	}
	g.tileQuad, g.texturedQuad, g.viewportQuad, g.tileBorder = nil, nil, nil, nil
	g.quadIndices = nil
}

func float32Bytes(v []float32) []byte {
	b := make([]byte, 0, len(v)*4)
	for _, f := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}
