package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Embedded WGSL sources of the built-in programs.

//go:embed shaders/solid.wgsl
var solidShaderSource string

//go:embed shaders/textured.wgsl
var texturedShaderSource string

//go:embed shaders/overdraw.wgsl
var overdrawShaderSource string

// Program names known to the built-in library.
const (
	ProgramBackground    = "background"
	ProgramFill          = "fill"
	ProgramLine          = "line"
	ProgramCircle        = "circle"
	ProgramFillExtrusion = "fillExtrusion"
	ProgramHeatmap       = "heatmap"
	ProgramClippingMask  = "clippingMask"
	ProgramDebug         = "debug"
	ProgramSymbol        = "symbol"
	ProgramRaster        = "raster"
	ProgramHillshade     = "hillshade"
	ProgramTexture       = "texture"
)

const (
	// SolidVertexStride is 2 x float32 position.
	SolidVertexStride = 8
	// TexturedVertexStride is 2 x float32 position plus 2 x float32 uv.
	TexturedVertexStride = 16
)

var solidBuffers = []gputypes.VertexBufferLayout{{
	ArrayStride: SolidVertexStride,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
	},
}}

var texturedBuffers = []gputypes.VertexBufferLayout{{
	ArrayStride: TexturedVertexStride,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
		{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1},
	},
}}

type builtinLibrary struct{}

// BuiltinShaders returns the library used when the host supplies none.
// Every program shares one uniform block; textured programs sample
// group(1).
func BuiltinShaders() ShaderLibrary { return builtinLibrary{} }

func (builtinLibrary) Source(name string, cfg ProgramConfiguration) (ShaderSource, error) {
	var textured bool
	switch name {
	case ProgramBackground, ProgramFill, ProgramLine, ProgramCircle,
		ProgramFillExtrusion, ProgramHeatmap, ProgramClippingMask, ProgramDebug:
	case ProgramSymbol, ProgramRaster, ProgramHillshade, ProgramTexture:
		textured = true
	default:
		return ShaderSource{}, fmt.Errorf("unknown program %q", name)
	}
	buffers := solidBuffers
	if textured {
		buffers = texturedBuffers
	}
	if cfg.Overdraw {
		return ShaderSource{WGSL: overdrawShaderSource, Buffers: buffers}, nil
	}
	if textured {
		return ShaderSource{WGSL: texturedShaderSource, Buffers: buffers, Textured: true}, nil
	}
	return ShaderSource{WGSL: solidShaderSource, Buffers: buffers}, nil
}
