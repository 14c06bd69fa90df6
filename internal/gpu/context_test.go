package gpu

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilemap/internal/gputest"
)

func newTestContext(t *testing.T) (*Context, *gputest.Device, hal.TextureView) {
	t.Helper()
	device, queue := gputest.NewDevice(t)
	ctx := NewContext(device, queue, Config{})
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "frame",
		Size:          hal.Extent3D{Width: 256, Height: 256, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatal(err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "frame_view"})
	if err != nil {
		t.Fatal(err)
	}
	return ctx, device, view
}

func solidDraw(t *testing.T, ctx *Context, name string, state DrawState) *DrawCall {
	t.Helper()
	p, err := ctx.Programs().Program(name, name, false)
	if err != nil {
		t.Fatal(err)
	}
	quad, err := ctx.Geometry().TileQuad()
	if err != nil {
		t.Fatal(err)
	}
	return &DrawCall{Program: p, State: state, Mesh: quad, Uniforms: Uniforms{Params: [4]float32{1}}}
}

func TestContextFrameSequence(t *testing.T) {
	ctx, device, view := newTestContext(t)

	if err := ctx.BeginFrame(view, 256, 256); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginOffscreen("heat"); err != nil {
		t.Fatal(err)
	}
	if ctx.PassKind() != PassOffscreen {
		t.Errorf("PassKind = %v, want offscreen", ctx.PassKind())
	}
	ctx.EndPass()
	if err := ctx.BeginMain(gputypes.Color{A: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(solidDraw(t, ctx, ProgramFill, DrawState{Color: ColorModeUnblended})); err != nil {
		t.Fatal(err)
	}
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}

	if want := []string{"offscreen_heat", "main_pass"}; !slices.Equal(device.Passes, want) {
		t.Errorf("Passes = %v, want %v", device.Passes, want)
	}
	if device.Submits != 1 {
		t.Errorf("Submits = %d, want 1", device.Submits)
	}
	st := ctx.Stats()
	if st.Passes != 2 || st.Draws != 1 || st.Uniforms != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if ctx.Encoder() != nil || ctx.Pass() != nil {
		t.Error("frame state must be cleared after EndFrame")
	}
}

func TestContextDrawOutsidePass(t *testing.T) {
	ctx, _, view := newTestContext(t)
	d := solidDraw(t, ctx, ProgramFill, DrawState{})
	if err := ctx.Draw(d); !errors.Is(err, ErrNoPass) {
		t.Errorf("err = %v, want ErrNoPass", err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); !errors.Is(err, ErrNoFrame) {
		t.Errorf("err = %v, want ErrNoFrame", err)
	}
	if err := ctx.BeginFrame(view, 0, 10); err == nil {
		t.Error("empty frame must be rejected")
	}
}

func TestContextDynamicState(t *testing.T) {
	ctx, device, view := newTestContext(t)
	if err := ctx.BeginFrame(view, 256, 256); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	state := DrawState{
		Depth:   DepthMode{Compare: gputypes.CompareFunctionLessEqual, Range: [2]float32{0.5, 0.5}},
		Stencil: StencilMode{Compare: gputypes.CompareFunctionEqual, Ref: 3, ReadMask: 0xFF},
		Color:   ColorModeAlphaBlended,
	}
	d := solidDraw(t, ctx, ProgramFill, state)
	for range 2 {
		if err := ctx.Draw(d); err != nil {
			t.Fatal(err)
		}
	}
	ctx.ResetState()
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}

	got := device.Ops("main_pass", "SetPipeline", "SetStencilReference", "SetViewport", "DrawIndexed")
	want := []string{
		"SetViewport 0 1",
		"SetStencilReference 0",
		"SetPipeline fill#fill_pipeline_0",
		"SetStencilReference 3",
		"SetViewport 0.5 0.5",
		"DrawIndexed 6 0 0",
		"DrawIndexed 6 0 0",
		"SetViewport 0 1",
		"SetStencilReference 0",
	}
	if !slices.Equal(got, want) {
		t.Errorf("commands:\n got %v\nwant %v", got, want)
	}
}

func TestContextUniformOffsets(t *testing.T) {
	ctx, device, view := newTestContext(t)
	if err := ctx.BeginFrame(view, 64, 64); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	d := solidDraw(t, ctx, ProgramBackground, DrawState{})
	for range uniformChunkSlots + 1 {
		if err := ctx.Draw(d); err != nil {
			t.Fatal(err)
		}
	}
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}
	groups := device.Ops("main_pass", "SetBindGroup")
	if groups[0] != "SetBindGroup 0 0" || groups[1] != "SetBindGroup 0 256" {
		t.Errorf("first offsets = %v", groups[:2])
	}
	if last := groups[len(groups)-1]; last != "SetBindGroup 0 0" {
		t.Errorf("overflowing draw = %q, want a fresh chunk at offset 0", last)
	}
	if len(ctx.uniforms.chunks) != 2 {
		t.Errorf("chunks = %d, want 2", len(ctx.uniforms.chunks))
	}
}

func TestContextSkipsFailedProgram(t *testing.T) {
	ctx, device, view := newTestContext(t)
	device.FailShader("circle")
	p, err := ctx.Programs().Program(ProgramCircle, "circle", false)
	if err == nil {
		t.Fatal("expected failure")
	}
	quad, _ := ctx.Geometry().TileQuad()

	if err := ctx.BeginFrame(view, 64, 64); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(&DrawCall{Program: p, Mesh: quad}); err != nil {
		t.Errorf("draw of failed program returned %v", err)
	}
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if ctx.Stats().Skipped != 1 || device.Count("DrawIndexed") != 0 {
		t.Errorf("Stats = %+v, draws = %d", ctx.Stats(), device.Count("DrawIndexed"))
	}
}

func TestContextTexturedDraw(t *testing.T) {
	ctx, device, view := newTestContext(t)
	p, err := ctx.Programs().Program(ProgramRaster, "raster", false)
	if err != nil {
		t.Fatal(err)
	}
	quad, err := ctx.Geometry().TexturedTileQuad()
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginFrame(view, 64, 64); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(&DrawCall{Program: p, Mesh: quad}); !errors.Is(err, ErrMissingTexture) {
		t.Errorf("err = %v, want ErrMissingTexture", err)
	}
	if err := ctx.Draw(&DrawCall{Program: p, Mesh: quad, Texture: view}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(device.Ops("main_pass", "SetBindGroup"), "SetBindGroup 1") {
		t.Error("textured draw must bind group 1")
	}
}

func TestContextTimestampsUnsupported(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	if ctx.EnableTimestamps() {
		t.Error("noop backend has no timestamp queries")
	}
	if ctx.TimestampBuffer() != nil {
		t.Error("no buffer without timestamps")
	}
}

func TestContextReset(t *testing.T) {
	ctx, _, view := newTestContext(t)
	if err := ctx.BeginFrame(view, 64, 64); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(solidDraw(t, ctx, ProgramFill, DrawState{})); err != nil {
		t.Fatal(err)
	}
	ctx.Reset()

	if ctx.Encoder() != nil {
		t.Error("Reset must abort the frame")
	}
	if ctx.Programs().Len() != 0 {
		t.Error("Reset must clear programs")
	}
	if w, h := ctx.Targets().Size(); w != 0 || h != 0 {
		t.Errorf("targets size = %dx%d after Reset", w, h)
	}
	// The context is usable again.
	if err := ctx.BeginFrame(view, 64, 64); err != nil {
		t.Fatal(err)
	}
	if err := ctx.BeginMain(gputypes.Color{}); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Draw(solidDraw(t, ctx, ProgramFill, DrawState{})); err != nil {
		t.Fatal(err)
	}
	if err := ctx.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestUniformsLayout(t *testing.T) {
	u := Uniforms{Color: [4]float32{1, 0, 0, 1}, Params: [4]float32{0.5}}
	u.Matrix[3] = 2 // row 0, column 3: translation x
	b := make([]byte, UniformSize)
	u.put(b)
	// Column 3 starts at byte 48; its first element is row 0.
	if got := b[48:52]; got[3] != 0x40 {
		t.Errorf("translation bytes = %x, want float32(2) = 0x40000000", got)
	}
	if got := b[64:68]; got[3] != 0x3f || got[2] != 0x80 {
		t.Errorf("color.r bytes = %x, want float32(1)", got)
	}
}
