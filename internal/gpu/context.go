package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrNoPass is returned by Draw outside a render pass.
	ErrNoPass = errors.New("gpu: no render pass")
	// ErrNoFrame is returned when a pass is begun outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("gpu: no frame in progress")
	// ErrMissingTexture is returned when a textured program is drawn without a texture.
	ErrMissingTexture = errors.New("gpu: textured draw without texture")
)

// PassKind identifies the render pass being recorded.
type PassKind uint8

const (
	// PassNone means no pass is open.
	PassNone PassKind = iota
	// PassOffscreen renders into a per-layer color target.
	PassOffscreen
	// PassMain renders into the frame target with depth and stencil.
	PassMain
)

func (k PassKind) String() string {
	switch k {
	case PassOffscreen:
		return "offscreen"
	case PassMain:
		return "main"
	}
	return "none"
}

// Config configures a Context.
type Config struct {
	// Format is the color format of frame targets.
	Format gputypes.TextureFormat
	// Extent is the tile coordinate extent of the fixed tile meshes.
	Extent float32
	// Library resolves program names. Nil uses BuiltinShaders.
	Library ShaderLibrary
	// SPIRV compiles WGSL to SPIR-V with naga before module creation.
	SPIRV bool
}

// DrawCall is one draw recorded into the current pass.
type DrawCall struct {
	Program  *Program
	State    DrawState
	Uniforms Uniforms
	Mesh     *Mesh
	// Count limits the draw to a range of the mesh. Zero draws the whole mesh.
	Count      uint32
	FirstIndex uint32
	BaseVertex int32
	// Texture is sampled by textured programs.
	Texture hal.TextureView
}

// FrameStats counts the work recorded in one frame.
type FrameStats struct {
	Passes           int
	Draws            int
	Skipped          int
	PipelineSwitches int
	Uniforms         int
}

// Context records one frame at a time into a single command encoder. It
// owns the GPU resource caches that live as long as the device.
type Context struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat

	programs *ProgramCache
	geometry *Geometry
	targets  *Targets
	uniforms *uniformRing

	encoder hal.CommandEncoder
	target  hal.TextureView
	pass    hal.RenderPassEncoder
	kind    PassKind

	width, height uint32

	// Bound state of the open pass.
	boundProgram *Program
	boundKey     pipelineKey
	bound        bool
	stencilRef   uint32
	depthRange   [2]float32

	timestampsProbed bool
	querySet         hal.QuerySet
	timestampBuf     hal.Buffer

	stats FrameStats
}

// NewContext returns a context for device and queue.
func NewContext(device hal.Device, queue hal.Queue, cfg Config) *Context {
	if cfg.Format == gputypes.TextureFormatUndefined {
		cfg.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if cfg.Extent == 0 {
		cfg.Extent = 8192
	}
	c := &Context{
		device:   device,
		queue:    queue,
		format:   cfg.Format,
		programs: NewProgramCache(device, cfg.Library, cfg.SPIRV),
		geometry: NewGeometry(device, queue, cfg.Extent),
		targets:  NewTargets(device),
	}
	c.uniforms = newUniformRing(device, queue, c.programs.UniformLayout)
	return c
}

// Device returns the device the context records for.
func (c *Context) Device() hal.Device { return c.device }

// Programs returns the program cache.
func (c *Context) Programs() *ProgramCache { return c.programs }

// Geometry returns the fixed meshes.
func (c *Context) Geometry() *Geometry { return c.geometry }

// Targets returns the offscreen and depth/stencil targets.
func (c *Context) Targets() *Targets { return c.targets }

// Encoder returns the command encoder of the frame, nil between frames.
func (c *Context) Encoder() hal.CommandEncoder { return c.encoder }

// Pass returns the open render pass, nil when none is open.
func (c *Context) Pass() hal.RenderPassEncoder { return c.pass }

// PassKind returns the kind of the open pass.
func (c *Context) PassKind() PassKind { return c.kind }

// Size returns the frame size.
func (c *Context) Size() (uint32, uint32) { return c.width, c.height }

// Stats returns the counters of the current or last frame.
func (c *Context) Stats() FrameStats { return c.stats }

// BeginFrame starts recording a frame into target.
func (c *Context) BeginFrame(target hal.TextureView, width, height uint32) error {
	if c.encoder != nil {
		return fmt.Errorf("gpu: frame already in progress")
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("gpu: empty frame %dx%d", width, height)
	}
	c.targets.Resize(width, height)
	c.width, c.height = width, height
	c.target = target
	c.uniforms.reset()
	c.stats = FrameStats{}

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "tile_frame_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("tile_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	c.encoder = encoder
	return nil
}

// BeginOffscreen opens a pass into the offscreen target of layerID. The
// target is cleared to transparent. Offscreen passes have no depth or
// stencil attachment.
func (c *Context) BeginOffscreen(layerID string) error {
	if c.encoder == nil {
		return ErrNoFrame
	}
	c.EndPass()
	view, err := c.targets.Offscreen(layerID)
	if err != nil {
		return err
	}
	c.pass = c.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "offscreen_" + layerID,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{},
		}},
	})
	c.beginPass(PassOffscreen)
	return nil
}

// BeginMain opens the main pass into the frame target, clearing color to
// clearColor, depth to 1 and stencil to 0.
func (c *Context) BeginMain(clearColor gputypes.Color) error {
	if c.encoder == nil {
		return ErrNoFrame
	}
	c.EndPass()
	depth, err := c.targets.DepthStencil()
	if err != nil {
		return err
	}
	desc := &hal.RenderPassDescriptor{
		Label: "main_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       c.target,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearColor,
		}},
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:              depth,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		},
	}
	if c.querySet != nil {
		begin, end := uint32(0), uint32(1)
		desc.TimestampWrites = &hal.RenderPassTimestampWrites{
			QuerySet:                  c.querySet,
			BeginningOfPassWriteIndex: &begin,
			EndOfPassWriteIndex:       &end,
		}
	}
	c.pass = c.encoder.BeginRenderPass(desc)
	c.beginPass(PassMain)
	return nil
}

func (c *Context) beginPass(kind PassKind) {
	c.kind = kind
	c.stats.Passes++
	c.ResetState()
}

// EndPass ends the open pass, if any.
func (c *Context) EndPass() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
	c.kind = PassNone
}

// ResetState restores the default dynamic state of the open pass: full
// viewport with depth range [0, 1], full scissor and stencil reference 0.
// The next draw rebinds its pipeline.
func (c *Context) ResetState() {
	c.bound = false
	c.boundProgram = nil
	if c.pass == nil {
		return
	}
	c.pass.SetViewport(0, 0, float32(c.width), float32(c.height), 0, 1)
	c.pass.SetScissorRect(0, 0, c.width, c.height)
	c.depthRange = [2]float32{0, 1}
	if c.kind == PassMain {
		c.pass.SetStencilReference(0)
	}
	c.stencilRef = 0
}

// Draw records d into the open pass. Draws of failed programs are skipped
// without error. A pipeline creation failure fails the program and is
// returned.
func (c *Context) Draw(d *DrawCall) error {
	if c.pass == nil {
		return ErrNoPass
	}
	if !d.Program.Drawable() {
		c.stats.Skipped++
		return nil
	}
	if d.Program.Textured() && d.Texture == nil {
		return ErrMissingTexture
	}
	depthless := c.kind == PassOffscreen
	format := c.format
	if depthless {
		format = OffscreenFormat
	}
	key := d.State.key(format, depthless)
	if !c.bound || c.boundProgram != d.Program || c.boundKey != key {
		rp, err := d.Program.pipeline(d.State, format, depthless)
		if err != nil {
			return err
		}
		c.pass.SetPipeline(rp)
		c.boundProgram, c.boundKey, c.bound = d.Program, key, true
		c.stats.PipelineSwitches++
	}

	group, offset, err := c.uniforms.push(&d.Uniforms)
	if err != nil {
		return err
	}
	c.pass.SetBindGroup(0, group, []uint32{offset})

	if d.Program.Textured() {
		layout, err := c.programs.TextureLayout()
		if err != nil {
			return err
		}
		tg, err := c.targets.TextureGroup(d.Texture, layout)
		if err != nil {
			return err
		}
		c.pass.SetBindGroup(1, tg, nil)
	}

	if !depthless {
		if d.State.Stencil.Ref != c.stencilRef {
			c.pass.SetStencilReference(d.State.Stencil.Ref)
			c.stencilRef = d.State.Stencil.Ref
		}
		r := d.State.Depth.Range
		if r == ([2]float32{}) {
			r = [2]float32{0, 1}
		}
		if r != c.depthRange {
			c.pass.SetViewport(0, 0, float32(c.width), float32(c.height), r[0], r[1])
			c.depthRange = r
		}
	}

	m := d.Mesh
	count := d.Count
	if count == 0 {
		count = m.Count
	}
	c.pass.SetVertexBuffer(0, m.Vertices, 0)
	if m.Indexed() {
		c.pass.SetIndexBuffer(m.Indices, m.IndexFormat, 0)
		c.pass.DrawIndexed(count, 1, d.FirstIndex, d.BaseVertex, 0)
	} else {
		c.pass.Draw(count, 1, d.FirstIndex, 0)
	}
	c.stats.Draws++
	return nil
}

// EnableTimestamps asks for timestamp queries around the main pass. It
// reports whether the backend supports them; the probe runs once per
// device.
func (c *Context) EnableTimestamps() bool {
	if c.timestampsProbed {
		return c.querySet != nil
	}
	c.timestampsProbed = true
	qs, err := c.device.CreateQuerySet(&hal.QuerySetDescriptor{
		Label: "main_pass_timestamps",
		Type:  hal.QueryTypeTimestamp,
		Count: 2,
	})
	if err != nil {
		slogger().Debug("gpu: timestamp queries unavailable", "err", err)
		return false
	}
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "main_pass_timestamp_resolve",
		Size:  16,
		Usage: gputypes.BufferUsageQueryResolve | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		c.device.DestroyQuerySet(qs)
		slogger().Warn("gpu: timestamp buffer", "err", err)
		return false
	}
	c.querySet, c.timestampBuf = qs, buf
	return true
}

// TimestampBuffer returns the buffer the main pass timestamps are resolved
// into, nil when timestamps are disabled.
func (c *Context) TimestampBuffer() hal.Buffer { return c.timestampBuf }

// EndFrame ends the open pass, uploads uniforms and submits the frame.
func (c *Context) EndFrame() error {
	if c.encoder == nil {
		return ErrNoFrame
	}
	c.EndPass()
	encoder := c.encoder
	c.encoder = nil
	c.stats.Uniforms = c.uniforms.used()

	if err := c.uniforms.upload(); err != nil {
		encoder.DiscardEncoding()
		return err
	}
	if c.querySet != nil {
		encoder.ResolveQuerySet(c.querySet, 0, 2, c.timestampBuf, 0)
	}
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmd)
	if _, err := c.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	c.targets.ReleaseRetired()
	return nil
}

// AbortFrame discards everything recorded since BeginFrame.
func (c *Context) AbortFrame() {
	if c.encoder == nil {
		return
	}
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
		c.kind = PassNone
	}
	c.encoder.DiscardEncoding()
	c.encoder = nil
	c.targets.ReleaseRetired()
}

// Reset releases every cached GPU resource. Programs, meshes and targets
// are recreated on demand. Used after context loss.
func (c *Context) Reset() {
	c.AbortFrame()
	c.uniforms.destroy()
	c.programs.Reset()
	c.geometry.Destroy()
	c.targets.Destroy()
	if c.querySet != nil {
		c.device.DestroyQuerySet(c.querySet)
		c.device.DestroyBuffer(c.timestampBuf)
		c.querySet, c.timestampBuf = nil, nil
	}
	c.timestampsProbed = false
	slogger().Info("gpu: context reset")
}
