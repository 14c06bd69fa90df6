// Package gpu owns the GPU resources of the map renderer and the state of
// one frame's command recording.
//
// # Programs
//
// A [ProgramCache] compiles shader programs on first use, keyed by program
// name, configuration fingerprint and the overdraw flag. WGSL comes from a
// [ShaderLibrary]; it can be compiled to SPIR-V with naga before module
// creation. Each [Program] builds render pipelines lazily, one per
// combination of [DepthMode], [StencilMode], [ColorMode], [CullFaceMode],
// topology and target format. The stencil reference and the depth range
// are dynamic state and never part of the key.
//
// A program that fails to compile stays failed: [Program.Drawable] reports
// false and draws with it are skipped until [ProgramCache.Reset].
//
// # Frames
//
// A [Context] records one frame:
//
//	ctx.BeginFrame(target, width, height)
//	ctx.BeginOffscreen(layerID) ... ctx.EndPass() // zero or more
//	ctx.BeginMain(clearColor)
//	ctx.Draw(&call)                               // many
//	ctx.EndFrame()                                // submit
//
// Uniforms for each draw are written into a per-frame ring buffer and bound
// with a dynamic offset. Depth per draw is applied through the viewport
// depth range, so one pipeline serves every layer depth.
package gpu
