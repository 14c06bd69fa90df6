package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"
)

// UniformSize is the byte size of one uniform block:
// mat4x4<f32> + vec4<f32> color + vec4<f32> params.
const UniformSize = 96

// uniformAlign is the dynamic offset alignment required by WebGPU.
const uniformAlign = 256

// uniformChunkSlots is the number of uniform blocks per GPU buffer.
const uniformChunkSlots = 256

// Uniforms is the per-draw uniform block.
type Uniforms struct {
	// Matrix maps vertex positions to clip space, row-major.
	Matrix f32.Mat4
	// Color is a premultiplied RGBA color.
	Color [4]float32
	// Params carries per-program scalars. Params[0] is opacity.
	Params [4]float32
}

// put writes u into b in WGSL layout. The matrix is stored column-major.
func (u *Uniforms) put(b []byte) {
	off := 0
	for c := range 4 {
		for r := range 4 {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(u.Matrix[r*4+c]))
			off += 4
		}
	}
	for _, v := range u.Color {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range u.Params {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
		off += 4
	}
}

type uniformChunk struct {
	buffer hal.Buffer
	group  hal.BindGroup
	data   []byte
	used   int
}

// uniformRing hands out 256-byte aligned slices of uniform buffers for one
// frame. Chunks are kept across frames and rewound by reset.
type uniformRing struct {
	device hal.Device
	queue  hal.Queue
	layout func() (hal.BindGroupLayout, error)

	chunks  []*uniformChunk
	current int
}

func newUniformRing(device hal.Device, queue hal.Queue, layout func() (hal.BindGroupLayout, error)) *uniformRing {
	return &uniformRing{device: device, queue: queue, layout: layout}
}

// push stores u and returns the bind group and dynamic offset to use.
func (r *uniformRing) push(u *Uniforms) (hal.BindGroup, uint32, error) {
	if r.current < len(r.chunks) && r.chunks[r.current].used == uniformChunkSlots {
		r.current++
	}
	if r.current == len(r.chunks) {
		c, err := r.newChunk()
		if err != nil {
			return nil, 0, err
		}
		r.chunks = append(r.chunks, c)
	}
	c := r.chunks[r.current]
	off := c.used * uniformAlign
	u.put(c.data[off : off+UniformSize])
	c.used++
	return c.group, uint32(off), nil
}

func (r *uniformRing) newChunk() (*uniformChunk, error) {
	layout, err := r.layout()
	if err != nil {
		return nil, err
	}
	size := uint64(uniformChunkSlots * uniformAlign)
	buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("tile_uniforms_%d", len(r.chunks)),
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform buffer: %w", err)
	}
	group, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  fmt.Sprintf("tile_uniforms_group_%d", len(r.chunks)),
		Layout: layout,
		Entries: []gputypes.BindGroupEntry{{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: 0, Size: UniformSize},
		}},
	})
	if err != nil {
		r.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("create uniform bind group: %w", err)
	}
	return &uniformChunk{buffer: buf, group: group, data: make([]byte, size)}, nil
}

// upload writes the used part of every chunk to the GPU.
func (r *uniformRing) upload() error {
	for _, c := range r.chunks {
		if c.used == 0 {
			break
		}
		n := (c.used-1)*uniformAlign + UniformSize
		if err := r.queue.WriteBuffer(c.buffer, 0, c.data[:n]); err != nil {
			return fmt.Errorf("write uniforms: %w", err)
		}
	}
	return nil
}

// used returns the number of uniform blocks pushed since the last reset.
func (r *uniformRing) used() int {
	n := 0
	for _, c := range r.chunks {
		n += c.used
	}
	return n
}

func (r *uniformRing) reset() {
	for _, c := range r.chunks {
		c.used = 0
	}
	r.current = 0
}

func (r *uniformRing) destroy() {
	for _, c := range r.chunks {
		r.device.DestroyBindGroup(c.group)
		r.device.DestroyBuffer(c.buffer)
	}
	r.chunks = nil
	r.current = 0
}
