// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package painter

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/paulmach/orb"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/internal/clip"
	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/source"
	"github.com/gogpu/tilemap/style"
)

// ErrNoStyle is returned by Render without a style.
var ErrNoStyle = errors.New("painter: no style")

// ErrSymbolSegments reports a symbol bucket whose segments do not match
// its instances one to one.
var ErrSymbolSegments = errors.New("painter: symbol bucket segments do not match instances")

// Default depth parameters.
const (
	DefaultDepthEpsilon      = 1.0 / (1 << 16)
	DefaultSublayersPerLayer = 3
)

// SymbolPlacement resolves the placement of symbol instances.
type SymbolPlacement interface {
	// Symbol returns the opacity and screen offset of instance index of the
	// layer's bucket in tile. ok is false for instances never placed.
	Symbol(layerID string, tile source.TileID, index int, now time.Time) (opacity float64, offset orb.Point, ok bool)
}

// Options are the per-frame debug switches.
type Options struct {
	ShowTileBoundaries    bool
	ShowOverdrawInspector bool
	ShowPadding           bool
	// GPUTiming measures the main pass with timestamp queries, or reports
	// per-layer encode times when the backend has none.
	GPUTiming bool
}

// FrameInput is everything one frame is drawn from.
type FrameInput struct {
	Target    hal.TextureView
	Style     *style.Style
	Transform geo.Transform
	Now       time.Time
	Placement SymbolPlacement
	Options   Options
}

// Config configures a Painter.
type Config struct {
	// StencilValues is the number of distinct stencil values, 256 for an
	// 8-bit buffer.
	StencilValues     int
	DepthEpsilon      float64
	SublayersPerLayer int
	// Diagnostics receives render diagnostics. Nil drops them.
	Diagnostics func(Diagnostic)
}

// Painter schedules the render passes of a frame: offscreen layers first,
// then opaque layers top to bottom, then everything else bottom to top.
type Painter struct {
	ctx *gpu.Context
	cfg Config

	frame   FrameContext
	tiles   tileSource
	stencil *clip.State
	masks   maskDrawer

	// depth band for 3D layers, recomputed when the layer count changes
	depthLayers  int
	depthRange3D [2]float32

	timestamps bool
}

// New returns a painter recording through ctx.
func New(ctx *gpu.Context, cfg Config) *Painter {
	if cfg.DepthEpsilon <= 0 {
		cfg.DepthEpsilon = DefaultDepthEpsilon
	}
	if cfg.SublayersPerLayer <= 0 {
		cfg.SublayersPerLayer = DefaultSublayersPerLayer
	}
	p := &Painter{
		ctx:         ctx,
		cfg:         cfg,
		stencil:     clip.NewState(cfg.StencilValues),
		depthLayers: -1,
	}
	p.masks = maskDrawer{p: p}
	return p
}

// Context returns the GPU context the painter records through.
func (p *Painter) Context() *gpu.Context { return p.ctx }

// Frame returns the state of the frame being or last recorded.
func (p *Painter) Frame() *FrameContext { return &p.frame }

// Reset drops every GPU resource after context loss.
func (p *Painter) Reset() {
	p.ctx.Reset()
	p.stencil.Reset()
	p.timestamps = false
}

func (p *Painter) emit(d Diagnostic) {
	if d.Kind == DiagnosticProgramFailed {
		slogger().Warn("painter: program failed", "layer", d.LayerID, "program", d.Program, "err", d.Err)
	}
	if p.cfg.Diagnostics != nil {
		p.cfg.Diagnostics(d)
	}
}

// Render records and submits one frame. Layer failures are reported as
// diagnostics; only failures to set up the frame itself are returned.
func (p *Painter) Render(in FrameInput) error {
	if in.Style == nil {
		return ErrNoStyle
	}
	layers := in.Style.Layers()
	p.beginFrame(in, layers)
	defer func() { p.frame.Pass = PassNone }()

	if in.Options.GPUTiming {
		p.timestamps = p.ctx.EnableTimestamps()
	}
	width, height := uint32(in.Transform.Width), uint32(in.Transform.Height)
	if err := p.ctx.BeginFrame(in.Target, width, height); err != nil {
		return err
	}
	if err := p.renderPasses(in.Style, layers); err != nil {
		p.ctx.AbortFrame()
		return err
	}
	if err := p.ctx.EndFrame(); err != nil {
		return err
	}
	st := p.stencil.Stats()
	slogger().Debug("painter: frame",
		"layers", len(layers),
		"draws", p.ctx.Stats().Draws,
		"skipped", p.ctx.Stats().Skipped,
		"stencil_masks", st.Masks,
		"stencil_clears", st.Clears)
	return nil
}

func (p *Painter) beginFrame(in FrameInput, layers []*style.Layer) {
	if len(layers) != p.depthLayers {
		p.depthLayers = len(layers)
		p.depthRange3D = DepthRangeFor3D(len(layers), p.cfg.SublayersPerLayer, p.cfg.DepthEpsilon)
	}
	p.stencil.Reset()
	p.tiles = tileSource{style: in.Style}
	p.frame = FrameContext{
		LayerCount:   len(layers),
		OpaqueCutoff: opaqueCutoff(layers, in.Transform.Zoom),
		Epsilon:      p.cfg.DepthEpsilon,
		Sublayers:    p.cfg.SublayersPerLayer,
		DepthRange3D: p.depthRange3D,
		Stencil:      p.stencil,
		Transform:    in.Transform,
		Now:          in.Now,
		Options:      in.Options,
		Placement:    in.Placement,
	}
}

// opaqueCutoff returns the index of the lowest visible 3D layer, or
// len(layers).
func opaqueCutoff(layers []*style.Layer, zoom float64) int {
	for i, l := range layers {
		if l.Is3D() && !l.IsHidden(zoom) {
			return i
		}
	}
	return len(layers)
}

func (p *Painter) renderPasses(st *style.Style, layers []*style.Layer) error {
	fc := &p.frame
	zoom := fc.Transform.Zoom

	fc.Pass = PassOffscreen
	keep := make(map[string]bool)
	for i, l := range layers {
		if !l.HasOffscreenPass() || l.IsHidden(zoom) {
			continue
		}
		fc.LayerIndex = i
		if pre, ok := l.Custom().(style.CustomPrerenderer); ok {
			p.ctx.EndPass()
			pre.Prerender(p.ctx.Encoder(), p.worldMatrix())
			continue
		}
		tiles := layerTiles(st, l)
		if len(tiles) == 0 {
			continue
		}
		if err := p.ctx.BeginOffscreen(l.ID()); err != nil {
			return fmt.Errorf("offscreen %s: %w", l.ID(), err)
		}
		keep[l.ID()] = true
		p.renderLayer(l, tiles)
		p.ctx.EndPass()
	}
	p.ctx.Targets().ReleaseOffscreen(keep)

	clearColor := gputypes.Color{}
	if fc.Options.ShowOverdrawInspector {
		clearColor = gputypes.Color{A: 1}
	}
	if err := p.ctx.BeginMain(clearColor); err != nil {
		return fmt.Errorf("main pass: %w", err)
	}
	p.stencil.Reset()

	fc.Pass = PassOpaque
	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if l.IsHidden(zoom) {
			continue
		}
		fc.LayerIndex = i
		p.renderLayer(l, layerTiles(st, l))
	}

	fc.Pass = PassTranslucent
	for i, l := range layers {
		if l.IsHidden(zoom) {
			continue
		}
		fc.LayerIndex = i
		p.renderLayer(l, layerTiles(st, l))
	}

	if fc.Options.ShowTileBoundaries {
		if src := debugSource(st, layers, zoom); src != nil {
			p.drawTileBoundaries(src)
		}
	}
	if fc.Options.ShowPadding {
		p.drawPadding()
	}
	p.ctx.ResetState()
	return nil
}

// layerTiles returns the tiles a layer draws: the symbol order including
// fading tiles for symbol layers, the descending order otherwise.
func layerTiles(st *style.Style, l *style.Layer) []source.TileID {
	if !l.Type().NeedsSource() {
		return nil
	}
	c := st.Source(l.Source())
	if c == nil {
		return nil
	}
	if l.Type() == style.TypeSymbol {
		return c.SymbolIDs()
	}
	return c.DescendingIDs()
}

func (p *Painter) renderLayer(l *style.Layer, tiles []source.TileID) {
	// Tiles that have not loaded yet are not a failure.
	if len(tiles) == 0 && l.Type().NeedsSource() {
		return
	}
	d := drawerFor(l.Type())
	if d == nil {
		return
	}
	start := time.Now()
	draws := p.ctx.Stats().Draws
	err := d.draw(p, l, tiles)
	if err != nil {
		p.emit(Diagnostic{Kind: DiagnosticDrawFailed, LayerID: l.ID(), Pass: p.frame.Pass, Err: err})
	}
	if p.frame.Options.GPUTiming && !p.timestamps && p.ctx.Stats().Draws > draws {
		p.emit(Diagnostic{Kind: DiagnosticLayerTiming, LayerID: l.ID(), Pass: p.frame.Pass, Duration: time.Since(start)})
	}
}

// program returns the program of a layer, reporting a creation failure.
func (p *Painter) program(name string, l *style.Layer) *gpu.Program {
	fingerprint, layerID := "", ""
	if l != nil {
		fingerprint, layerID = l.ProgramFingerprint(), l.ID()
	}
	prog, err := p.ctx.Programs().Program(name, fingerprint, p.frame.Options.ShowOverdrawInspector && l != nil)
	if err != nil {
		p.emit(Diagnostic{
			Kind:    DiagnosticProgramFailed,
			LayerID: layerID,
			Program: prog.Key().String(),
			Pass:    p.frame.Pass,
			Err:     err,
		})
	}
	return prog
}

// draw records d. A pipeline failure fails the program; it is reported
// once and later draws with the program are skipped.
func (p *Painter) draw(l *style.Layer, d *gpu.DrawCall) error {
	err := p.ctx.Draw(d)
	if errors.Is(err, gpu.ErrProgramFailed) {
		layerID := ""
		if l != nil {
			layerID = l.ID()
		}
		p.emit(Diagnostic{
			Kind:    DiagnosticProgramFailed,
			LayerID: layerID,
			Program: d.Program.Key().String(),
			Pass:    p.frame.Pass,
			Err:     err,
		})
		return nil
	}
	return err
}

// worldMatrix maps tile units of the zoom 0 tile to clip space.
func (p *Painter) worldMatrix() f32.Mat4 {
	return p.frame.Transform.TileMatrix(source.NewTileID(0, 0, 0, 0, 0))
}

// viewportMatrix maps [0, extent] tile units onto the whole viewport,
// y down.
func viewportMatrix() f32.Mat4 {
	s := float32(2.0 / source.Extent)
	return f32.Mat4{
		s, 0, 0, -1,
		0, -s, 0, 1,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// maskDrawer draws stencil masks for the clip allocator.
type maskDrawer struct {
	p *Painter
}

func (m maskDrawer) state(mode gpu.StencilMode) gpu.DrawState {
	return gpu.DrawState{
		Depth:   gpu.DepthModeDisabled,
		Stencil: mode,
		Color:   gpu.ColorModeDisabled,
		Cull:    gpu.CullFaceDisabled,
	}
}

func (m maskDrawer) ClearStencil(mode gpu.StencilMode) error {
	slogger().Debug("painter: stencil clear")
	quad, err := m.p.ctx.Geometry().ViewportQuad()
	if err != nil {
		return err
	}
	return m.p.draw(nil, &gpu.DrawCall{
		Program:  m.p.program(gpu.ProgramClippingMask, nil),
		State:    m.state(mode),
		Uniforms: gpu.Uniforms{Matrix: geo.Identity()},
		Mesh:     quad,
	})
}

func (m maskDrawer) DrawMask(tile source.TileID, mode gpu.StencilMode) error {
	quad, err := m.p.ctx.Geometry().TileQuad()
	if err != nil {
		return err
	}
	return m.p.draw(nil, &gpu.DrawCall{
		Program:  m.p.program(gpu.ProgramClippingMask, nil),
		State:    m.state(mode),
		Uniforms: gpu.Uniforms{Matrix: m.p.frame.Transform.TileMatrix(tile)},
		Mesh:     quad,
	})
}

// debugSource returns the used source with the highest max zoom.
func debugSource(st *style.Style, layers []*style.Layer, zoom float64) *source.Cache {
	var best *source.Cache
	for _, l := range layers {
		if l.IsHidden(zoom) || !l.Type().NeedsSource() {
			continue
		}
		c := st.Source(l.Source())
		if c == nil || !c.Used() {
			continue
		}
		if best == nil || c.Spec().MaxZoom > best.Spec().MaxZoom {
			best = c
		}
	}
	return best
}

var (
	debugTileColor    = [4]float32{1, 0, 0, 1}
	debugPaddingColor = [4]float32{0, 1, 0, 1}
)

func (p *Painter) debugState() gpu.DrawState {
	return gpu.DrawState{
		Depth:    gpu.DepthModeDisabled,
		Stencil:  gpu.StencilModeDisabled,
		Color:    gpu.ColorModeAlphaBlended,
		Cull:     gpu.CullFaceDisabled,
		Topology: gputypes.PrimitiveTopologyLineStrip,
	}
}

func (p *Painter) drawTileBoundaries(src *source.Cache) {
	border, err := p.ctx.Geometry().TileBorder()
	if err != nil {
		p.emit(Diagnostic{Kind: DiagnosticDrawFailed, Pass: p.frame.Pass, Err: err})
		return
	}
	prog := p.program(gpu.ProgramDebug, nil)
	for _, id := range src.IDs() {
		err := p.draw(nil, &gpu.DrawCall{
			Program: prog,
			State:   p.debugState(),
			Uniforms: gpu.Uniforms{
				Matrix: p.frame.Transform.TileMatrix(id),
				Color:  debugTileColor,
				Params: [4]float32{1},
			},
			Mesh: border,
		})
		if err != nil {
			p.emit(Diagnostic{Kind: DiagnosticDrawFailed, Pass: p.frame.Pass, Err: err})
			return
		}
	}
}

// drawPadding outlines the unpadded area of the viewport.
func (p *Painter) drawPadding() {
	tr := p.frame.Transform
	pad := tr.Padding
	if pad == (geo.EdgeInsets{}) || tr.Width <= 0 || tr.Height <= 0 {
		return
	}
	border, err := p.ctx.Geometry().TileBorder()
	if err != nil {
		p.emit(Diagnostic{Kind: DiagnosticDrawFailed, Pass: p.frame.Pass, Err: err})
		return
	}
	// Map [0, extent] onto the rectangle inside the padding.
	w := tr.Width - pad.Left - pad.Right
	h := tr.Height - pad.Top - pad.Bottom
	sx := float32(2 * w / tr.Width / source.Extent)
	sy := float32(2 * h / tr.Height / source.Extent)
	m := f32.Mat4{
		sx, 0, 0, float32(2*pad.Left/tr.Width - 1),
		0, -sy, 0, float32(1 - 2*pad.Top/tr.Height),
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	err = p.draw(nil, &gpu.DrawCall{
		Program:  p.program(gpu.ProgramDebug, nil),
		State:    p.debugState(),
		Uniforms: gpu.Uniforms{Matrix: m, Color: debugPaddingColor, Params: [4]float32{1}},
		Mesh:     border,
	})
	if err != nil {
		p.emit(Diagnostic{Kind: DiagnosticDrawFailed, Pass: p.frame.Pass, Err: err})
	}
}

// clippedTiles calls fn for each tile with the stencil test gating it to
// its mask. Masks are assigned in runs that fit the stencil buffer, lower
// zoom first so children win where tiles overlap.
func (p *Painter) clippedTiles(l *style.Layer, tiles []source.TileID, fn func(id source.TileID, stencil gpu.StencilMode) error) error {
	for _, batch := range p.stencil.Batches(tiles) {
		if l.IsTileClipped() {
			asc := slices.Clone(batch)
			source.SortAscending(asc)
			if err := p.stencil.AssignClipMasks(l.Source(), true, asc, p.masks); err != nil {
				return err
			}
		}
		for _, id := range batch {
			mode := gpu.StencilModeDisabled
			if l.IsTileClipped() {
				mode, _ = p.stencil.ClipMode(id)
			}
			if err := fn(id, mode); err != nil {
				return err
			}
		}
	}
	return nil
}
