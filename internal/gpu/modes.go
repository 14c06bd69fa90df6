package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DepthMode is the depth test and write state of a draw plus the depth
// range the draw is mapped into.
type DepthMode struct {
	Compare gputypes.CompareFunction
	Write   bool
	Range   [2]float32
}

// DepthModeDisabled passes every fragment and leaves depth untouched.
var DepthModeDisabled = DepthMode{Compare: gputypes.CompareFunctionAlways, Range: [2]float32{0, 1}}

// Enabled reports whether the mode tests or writes depth.
func (m DepthMode) Enabled() bool {
	return m.Write || (m.Compare != gputypes.CompareFunctionAlways && m.Compare != gputypes.CompareFunctionUndefined)
}

// StencilMode is the stencil test of a draw. Ref is dynamic state.
type StencilMode struct {
	Compare   gputypes.CompareFunction
	Ref       uint32
	ReadMask  uint32
	WriteMask uint32
	Fail      hal.StencilOperation
	DepthFail hal.StencilOperation
	Pass      hal.StencilOperation
}

// StencilModeDisabled passes every fragment and never writes.
var StencilModeDisabled = StencilMode{
	Compare:   gputypes.CompareFunctionAlways,
	Fail:      hal.StencilOperationKeep,
	DepthFail: hal.StencilOperationKeep,
	Pass:      hal.StencilOperationKeep,
}

// ColorMode is the blend and write mask state of a draw.
type ColorMode struct {
	Blend     *gputypes.BlendState
	WriteMask gputypes.ColorWriteMask
}

var (
	// ColorModeDisabled writes no color.
	ColorModeDisabled = ColorMode{WriteMask: gputypes.ColorWriteMaskNone}
	// ColorModeUnblended replaces the target color.
	ColorModeUnblended = ColorMode{WriteMask: gputypes.ColorWriteMaskAll}
	// ColorModeAlphaBlended composites premultiplied color over the target.
	ColorModeAlphaBlended = ColorMode{Blend: blendPremultiplied(), WriteMask: gputypes.ColorWriteMaskAll}
	// ColorModeAdditive sums colors, used by the overdraw inspector.
	ColorModeAdditive = ColorMode{Blend: &gputypes.BlendState{
		Color: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
		Alpha: gputypes.BlendComponent{SrcFactor: gputypes.BlendFactorOne, DstFactor: gputypes.BlendFactorOne, Operation: gputypes.BlendOperationAdd},
	}, WriteMask: gputypes.ColorWriteMaskAll}
)

func blendPremultiplied() *gputypes.BlendState {
	b := gputypes.BlendStatePremultiplied()
	return &b
}

// CullFaceMode selects face culling.
type CullFaceMode struct {
	Cull      gputypes.CullMode
	FrontFace gputypes.FrontFace
}

var (
	// CullFaceDisabled draws both faces.
	CullFaceDisabled = CullFaceMode{Cull: gputypes.CullModeNone}
	// CullFaceBackCCW culls back faces of counter-clockwise geometry.
	CullFaceBackCCW = CullFaceMode{Cull: gputypes.CullModeBack, FrontFace: gputypes.FrontFaceCCW}
)

// pipelineKey selects one pipeline variant of a program.
type pipelineKey struct {
	depthCompare gputypes.CompareFunction
	depthWrite   bool

	stencilCompare   gputypes.CompareFunction
	stencilRead      uint32
	stencilWrite     uint32
	stencilFail      hal.StencilOperation
	stencilDepthFail hal.StencilOperation
	stencilPass      hal.StencilOperation

	blended   bool
	blend     gputypes.BlendState
	writeMask gputypes.ColorWriteMask

	cull      CullFaceMode
	topology  gputypes.PrimitiveTopology
	format    gputypes.TextureFormat
	depthless bool
}

// DrawState is the fixed-function state of a draw.
type DrawState struct {
	Depth    DepthMode
	Stencil  StencilMode
	Color    ColorMode
	Cull     CullFaceMode
	Topology gputypes.PrimitiveTopology
}

func (s DrawState) key(format gputypes.TextureFormat, depthless bool) pipelineKey {
	k := pipelineKey{
		depthCompare:     s.Depth.Compare,
		depthWrite:       s.Depth.Write,
		stencilCompare:   s.Stencil.Compare,
		stencilRead:      s.Stencil.ReadMask,
		stencilWrite:     s.Stencil.WriteMask,
		stencilFail:      s.Stencil.Fail,
		stencilDepthFail: s.Stencil.DepthFail,
		stencilPass:      s.Stencil.Pass,
		writeMask:        s.Color.WriteMask,
		cull:             s.Cull,
		topology:         s.Topology,
		format:           format,
		depthless:        depthless,
	}
	if s.Color.Blend != nil {
		k.blended = true
		k.blend = *s.Color.Blend
	}
	if depthless {
		k.depthCompare, k.depthWrite = 0, false
		k.stencilCompare, k.stencilRead, k.stencilWrite = 0, 0, 0
		k.stencilFail, k.stencilDepthFail, k.stencilPass = 0, 0, 0
	}
	return k
}

func (k pipelineKey) depthStencil() *hal.DepthStencilState {
	if k.depthless {
		return nil
	}
	face := hal.StencilFaceState{
		Compare:     k.stencilCompare,
		FailOp:      k.stencilFail,
		DepthFailOp: k.stencilDepthFail,
		PassOp:      k.stencilPass,
	}
	return &hal.DepthStencilState{
		Format:            DepthStencilFormat,
		DepthWriteEnabled: k.depthWrite,
		DepthCompare:      k.depthCompare,
		StencilFront:      face,
		StencilBack:       face,
		StencilReadMask:   k.stencilRead,
		StencilWriteMask:  k.stencilWrite,
	}
}

func (k pipelineKey) colorTarget() gputypes.ColorTargetState {
	t := gputypes.ColorTargetState{Format: k.format, WriteMask: k.writeMask}
	if k.blended {
		b := k.blend
		t.Blend = &b
	}
	return t
}
