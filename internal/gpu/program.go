package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ErrProgramFailed is wrapped by every program creation failure.
var ErrProgramFailed = errors.New("gpu: program failed")

// ProgramConfiguration selects the variant of a named shader.
type ProgramConfiguration struct {
	// Fingerprint lists the zoom-dependent paint properties of the layer.
	Fingerprint string
	// Overdraw selects the overdraw inspector variant.
	Overdraw bool
}

// ShaderSource is the WGSL text of a program and its vertex input.
type ShaderSource struct {
	WGSL    string
	Buffers []gputypes.VertexBufferLayout
	// Textured programs bind a texture and sampler at group(1).
	Textured bool
}

// ShaderLibrary resolves program names to shader sources.
type ShaderLibrary interface {
	Source(name string, cfg ProgramConfiguration) (ShaderSource, error)
}

// ProgramKey identifies a program in the cache.
type ProgramKey struct {
	Name        string
	Fingerprint string
	Overdraw    bool
}

func (k ProgramKey) String() string {
	s := k.Name
	if k.Fingerprint != "" {
		s += "#" + k.Fingerprint
	}
	if k.Overdraw {
		s += "+overdraw"
	}
	return s
}

// Program is a compiled shader module plus the pipeline variants created
// for it so far. A failed program stays failed until the cache is reset.
type Program struct {
	key      ProgramKey
	cache    *ProgramCache
	module   hal.ShaderModule
	buffers  []gputypes.VertexBufferLayout
	textured bool
	variants map[pipelineKey]hal.RenderPipeline
	err      error
}

// Key returns the cache key of the program.
func (p *Program) Key() ProgramKey { return p.key }

// Drawable reports whether the program can be used for draws.
func (p *Program) Drawable() bool { return p != nil && p.err == nil }

// Err returns the failure of the program, nil when drawable.
func (p *Program) Err() error { return p.err }

// Textured reports whether draws must supply a texture.
func (p *Program) Textured() bool { return p.textured }

// Variants returns the number of pipeline variants created.
func (p *Program) Variants() int { return len(p.variants) }

func (p *Program) fail(err error) error {
	p.err = fmt.Errorf("%w: %s: %w", ErrProgramFailed, p.key, err)
	slogger().Warn("gpu: program failed", "program", p.key.String(), "err", err)
	p.cache.destroyProgram(p)
	return p.err
}

// pipeline returns the variant for state, creating it on first use.
// Creation failure marks the whole program failed.
func (p *Program) pipeline(state DrawState, format gputypes.TextureFormat, depthless bool) (hal.RenderPipeline, error) {
	if p.err != nil {
		return nil, p.err
	}
	k := state.key(format, depthless)
	if rp, ok := p.variants[k]; ok {
		return rp, nil
	}
	layout, err := p.cache.pipelineLayout(p.textured)
	if err != nil {
		return nil, p.fail(err)
	}
	rp, err := p.cache.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s_pipeline_%d", p.key, len(p.variants)),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
			Buffers:    p.buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets:    []gputypes.ColorTargetState{k.colorTarget()},
		},
		DepthStencil: k.depthStencil(),
		Multisample:  gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Primitive: gputypes.PrimitiveState{
			Topology:  k.topology,
			FrontFace: k.cull.FrontFace,
			CullMode:  k.cull.Cull,
		},
	})
	if err != nil {
		return nil, p.fail(fmt.Errorf("create render pipeline: %w", err))
	}
	p.variants[k] = rp
	return rp, nil
}

// ProgramCache creates programs on first request and keeps them for the
// lifetime of the GPU context.
type ProgramCache struct {
	device  hal.Device
	library ShaderLibrary
	spirv   bool

	programs map[ProgramKey]*Program

	uniformLayout  hal.BindGroupLayout
	textureLayout  hal.BindGroupLayout
	solidLayout    hal.PipelineLayout
	texturedLayout hal.PipelineLayout
}

// NewProgramCache returns an empty cache. When spirv is set, WGSL is
// compiled to SPIR-V with naga before the shader module is created.
func NewProgramCache(device hal.Device, library ShaderLibrary, spirv bool) *ProgramCache {
	if library == nil {
		library = BuiltinShaders()
	}
	return &ProgramCache{
		device:   device,
		library:  library,
		spirv:    spirv,
		programs: make(map[ProgramKey]*Program),
	}
}

// Len returns the number of cached programs, failed ones included.
func (c *ProgramCache) Len() int { return len(c.programs) }

// Program returns the program for name and configuration, compiling it on
// a miss. The creation error is returned only by the call that created the
// program; later calls return the failed program and a nil error.
func (c *ProgramCache) Program(name, fingerprint string, overdraw bool) (*Program, error) {
	key := ProgramKey{Name: name, Fingerprint: fingerprint, Overdraw: overdraw}
	if p, ok := c.programs[key]; ok {
		return p, nil
	}
	p := &Program{key: key, cache: c, variants: make(map[pipelineKey]hal.RenderPipeline)}
	c.programs[key] = p

	src, err := c.library.Source(name, ProgramConfiguration{Fingerprint: fingerprint, Overdraw: overdraw})
	if err != nil {
		return p, p.fail(fmt.Errorf("shader source: %w", err))
	}
	desc := &hal.ShaderModuleDescriptor{Label: key.String() + "_shader"}
	if c.spirv {
		words, err := compileSPIRV(src.WGSL)
		if err != nil {
			return p, p.fail(err)
		}
		desc.Source = hal.ShaderSource{SPIRV: words}
	} else {
		desc.Source = hal.ShaderSource{WGSL: src.WGSL}
	}
	module, err := c.device.CreateShaderModule(desc)
	if err != nil {
		return p, p.fail(fmt.Errorf("compile shader: %w", err))
	}
	p.module = module
	p.buffers = src.Buffers
	p.textured = src.Textured
	slogger().Debug("gpu: program created", "program", key.String())
	return p, nil
}

// Reset destroys every program and layout. Used after context loss.
func (c *ProgramCache) Reset() {
	for _, p := range c.programs {
		c.destroyProgram(p)
	}
	clear(c.programs)
	if c.solidLayout != nil {
		c.device.DestroyPipelineLayout(c.solidLayout)
		c.solidLayout = nil
	}
	if c.texturedLayout != nil {
		c.device.DestroyPipelineLayout(c.texturedLayout)
		c.texturedLayout = nil
	}
	if c.uniformLayout != nil {
		c.device.DestroyBindGroupLayout(c.uniformLayout)
		c.uniformLayout = nil
	}
	if c.textureLayout != nil {
		c.device.DestroyBindGroupLayout(c.textureLayout)
		c.textureLayout = nil
	}
}

func (c *ProgramCache) destroyProgram(p *Program) {
	for k, rp := range p.variants {
		c.device.DestroyRenderPipeline(rp)
		delete(p.variants, k)
	}
	if p.module != nil {
		c.device.DestroyShaderModule(p.module)
		p.module = nil
	}
}

// UniformLayout returns the group(0) layout: one uniform buffer with a
// dynamic offset.
func (c *ProgramCache) UniformLayout() (hal.BindGroupLayout, error) {
	if c.uniformLayout != nil {
		return c.uniformLayout, nil
	}
	l, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tile_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   UniformSize,
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("create uniform bind group layout: %w", err)
	}
	c.uniformLayout = l
	return l, nil
}

// TextureLayout returns the group(1) layout of textured programs.
func (c *ProgramCache) TextureLayout() (hal.BindGroupLayout, error) {
	if c.textureLayout != nil {
		return c.textureLayout, nil
	}
	l, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "tile_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group layout: %w", err)
	}
	c.textureLayout = l
	return l, nil
}

func (c *ProgramCache) pipelineLayout(textured bool) (hal.PipelineLayout, error) {
	if !textured && c.solidLayout != nil {
		return c.solidLayout, nil
	}
	if textured && c.texturedLayout != nil {
		return c.texturedLayout, nil
	}
	uniforms, err := c.UniformLayout()
	if err != nil {
		return nil, err
	}
	groups := []hal.BindGroupLayout{uniforms}
	label := "tile_solid_pipe_layout"
	if textured {
		tex, err := c.TextureLayout()
		if err != nil {
			return nil, err
		}
		groups = append(groups, tex)
		label = "tile_textured_pipe_layout"
	}
	l, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: groups,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	if textured {
		c.texturedLayout = l
	} else {
		c.solidLayout = l
	}
	return l, nil
}

// compileSPIRV compiles WGSL with naga and returns little-endian words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	b, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader to SPIR-V: %w", err)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
