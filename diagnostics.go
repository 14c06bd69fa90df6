package tilemap

import (
	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/internal/painter"
)

// Diagnostic is an event raised while rendering. Diagnostics never abort
// a frame.
type Diagnostic = painter.Diagnostic

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind = painter.DiagnosticKind

// Diagnostic kinds.
const (
	DiagnosticProgramFailed = painter.DiagnosticProgramFailed
	DiagnosticDrawFailed    = painter.DiagnosticDrawFailed
	DiagnosticLayerTiming   = painter.DiagnosticLayerTiming
)

// RenderPass names the pass a diagnostic was raised in.
type RenderPass = painter.RenderPass

// ShaderLibrary resolves program names to shader source. It is consulted
// once per program and configuration; failures are sticky until Reset.
type ShaderLibrary = gpu.ShaderLibrary

// ShaderSource is the WGSL of one program.
type ShaderSource = gpu.ShaderSource

// ProgramConfiguration selects a program variant.
type ProgramConfiguration = gpu.ProgramConfiguration

// BuiltinShaders returns the shader library used when none is given.
func BuiltinShaders() ShaderLibrary { return gpu.BuiltinShaders() }

// FrameStats counts the work recorded in one frame.
type FrameStats = gpu.FrameStats
