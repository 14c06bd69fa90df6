package painter

import (
	"fmt"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/source"
	"github.com/gogpu/tilemap/style"
)

// drawer records the draws of one layer kind. draw is called once per
// pass and does nothing in passes the kind does not take part in.
type drawer interface {
	draw(p *Painter, l *style.Layer, tiles []source.TileID) error
}

func drawerFor(t style.LayerType) drawer {
	switch t {
	case style.TypeBackground:
		return backgroundDrawer{}
	case style.TypeFill:
		return fillDrawer{}
	case style.TypeLine:
		return lineDrawer{}
	case style.TypeSymbol:
		return symbolDrawer{}
	case style.TypeRaster:
		return rasterDrawer{}
	case style.TypeCircle:
		return circleDrawer{}
	case style.TypeFillExtrusion:
		return extrusionDrawer{}
	case style.TypeHeatmap:
		return offscreenDrawer{program: gpu.ProgramHeatmap, opacity: "heatmap-opacity"}
	case style.TypeHillshade:
		return offscreenDrawer{program: gpu.ProgramHillshade, textured: true}
	case style.TypeCustom:
		return customDrawer{}
	}
	return nil
}

// opaque reports whether l draws in the opaque pass. Only depth tested
// layers do: drawn top to bottom, anything else would cover the layers
// above it.
func (p *Painter) opaque(l *style.Layer) bool {
	return !p.frame.Options.ShowOverdrawInspector && p.frame.DepthGated() && l.IsOpaque()
}

// flatState returns the state of a 2D draw in the current pass: replacing
// color and writing depth in the opaque pass, blending and testing only
// in the translucent pass.
func (p *Painter) flatState(stencil gpu.StencilMode) gpu.DrawState {
	fc := &p.frame
	if fc.Pass == PassOpaque {
		return gpu.DrawState{
			Depth:   fc.DepthModeForSublayer(0, true),
			Stencil: stencil,
			Color:   gpu.ColorModeUnblended,
			Cull:    gpu.CullFaceDisabled,
		}
	}
	return gpu.DrawState{
		Depth:   fc.DepthModeForSublayer(0, false),
		Stencil: stencil,
		Color:   fc.ColorMode(gpu.ColorModeAlphaBlended),
		Cull:    gpu.CullFaceDisabled,
	}
}

// inPass reports whether a layer that may be opaque draws in this pass.
func (p *Painter) inPass(l *style.Layer) bool {
	switch p.frame.Pass {
	case PassOpaque:
		return p.opaque(l)
	case PassTranslucent:
		return !p.opaque(l)
	}
	return false
}

func colorOf(v style.Value) [4]float32 {
	c := v.Premultiplied()
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}

func bucketMesh(b *source.Bucket) *gpu.Mesh {
	return &gpu.Mesh{
		Vertices:    b.Vertices,
		Indices:     b.Indices,
		IndexFormat: b.IndexFormat,
		Count:       b.IndexCount(),
	}
}

// drawSegments draws every segment of b with one draw call each.
func (p *Painter) drawSegments(l *style.Layer, prog *gpu.Program, state gpu.DrawState, u gpu.Uniforms, b *source.Bucket) error {
	if b.Vertices == nil || b.Indices == nil {
		return nil
	}
	mesh := bucketMesh(b)
	for _, seg := range b.Segments {
		if seg.IndexCount == 0 {
			continue
		}
		err := p.draw(l, &gpu.DrawCall{
			Program:    prog,
			State:      state,
			Uniforms:   u,
			Mesh:       mesh,
			Count:      seg.IndexCount,
			FirstIndex: seg.FirstIndex,
			BaseVertex: seg.BaseVertex,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// bucketOf returns the non-empty bucket of l in tile id, or nil.
func bucketOf(st tileSource, l *style.Layer, id source.TileID) *source.Bucket {
	t := st.tile(l, id)
	if t == nil || !t.Loaded() {
		return nil
	}
	b := t.Bucket(l.ID())
	if b.Empty() {
		return nil
	}
	return b
}

type backgroundDrawer struct{}

func (backgroundDrawer) draw(p *Painter, l *style.Layer, _ []source.TileID) error {
	if !p.inPass(l) {
		return nil
	}
	prog := p.program(gpu.ProgramBackground, l)
	if !prog.Drawable() {
		return nil
	}
	quad, err := p.ctx.Geometry().ViewportQuad()
	if err != nil {
		return err
	}
	return p.draw(l, &gpu.DrawCall{
		Program: prog,
		State:   p.flatState(gpu.StencilModeDisabled),
		Uniforms: gpu.Uniforms{
			Matrix: geo.Identity(),
			Color:  colorOf(l.Paint("background-color")),
			Params: [4]float32{float32(l.Paint("background-opacity").Number)},
		},
		Mesh: quad,
	})
}

type fillDrawer struct{}

func (fillDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	if !p.inPass(l) {
		return nil
	}
	prog := p.program(gpu.ProgramFill, l)
	if !prog.Drawable() {
		return nil
	}
	color := colorOf(l.Paint("fill-color"))
	opacity := float32(l.Paint("fill-opacity").Number)
	return p.clippedTiles(l, tiles, func(id source.TileID, stencil gpu.StencilMode) error {
		b := bucketOf(p.tiles, l, id)
		if b == nil {
			return nil
		}
		u := gpu.Uniforms{
			Matrix: p.frame.Transform.TileMatrix(id),
			Color:  color,
			Params: [4]float32{opacity},
		}
		return p.drawSegments(l, prog, p.flatState(stencil), u, b)
	})
}

type lineDrawer struct{}

func (lineDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	if p.frame.Pass != PassTranslucent {
		return nil
	}
	prog := p.program(gpu.ProgramLine, l)
	if !prog.Drawable() {
		return nil
	}
	color := colorOf(l.Paint("line-color"))
	opacity := float32(l.Paint("line-opacity").Number)
	width := l.Paint("line-width").Number
	blur := l.Paint("line-blur").Number
	return p.clippedTiles(l, tiles, func(id source.TileID, stencil gpu.StencilMode) error {
		b := bucketOf(p.tiles, l, id)
		if b == nil {
			return nil
		}
		tr := p.frame.Transform
		u := gpu.Uniforms{
			Matrix: tr.TileMatrix(id),
			Color:  color,
			Params: [4]float32{
				opacity,
				float32(tr.PixelsToTileUnits(id, width)),
				float32(tr.PixelsToTileUnits(id, blur)),
			},
		}
		return p.drawSegments(l, prog, p.flatState(stencil), u, b)
	})
}

type circleDrawer struct{}

func (circleDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	if p.frame.Pass != PassTranslucent {
		return nil
	}
	prog := p.program(gpu.ProgramCircle, l)
	if !prog.Drawable() {
		return nil
	}
	color := colorOf(l.Paint("circle-color"))
	opacity := float32(l.Paint("circle-opacity").Number)
	radius := l.Paint("circle-radius").Number
	blur := float32(l.Paint("circle-blur").Number)
	for _, id := range tiles {
		b := bucketOf(p.tiles, l, id)
		if b == nil {
			continue
		}
		tr := p.frame.Transform
		u := gpu.Uniforms{
			Matrix: tr.TileMatrix(id),
			Color:  color,
			Params: [4]float32{opacity, float32(tr.PixelsToTileUnits(id, radius)), blur},
		}
		if err := p.drawSegments(l, prog, p.flatState(gpu.StencilModeDisabled), u, b); err != nil {
			return err
		}
	}
	return nil
}

type extrusionDrawer struct{}

func (extrusionDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	if p.frame.Pass != PassTranslucent {
		return nil
	}
	prog := p.program(gpu.ProgramFillExtrusion, l)
	if !prog.Drawable() {
		return nil
	}
	color := colorOf(l.Paint("fill-extrusion-color"))
	params := [4]float32{
		float32(l.Paint("fill-extrusion-opacity").Number),
		float32(l.Paint("fill-extrusion-height").Number),
		float32(l.Paint("fill-extrusion-base").Number),
	}
	return p.clippedTiles(l, tiles, func(id source.TileID, stencil gpu.StencilMode) error {
		b := bucketOf(p.tiles, l, id)
		if b == nil {
			return nil
		}
		state := gpu.DrawState{
			Depth:   p.frame.DepthModeFor3D(true),
			Stencil: stencil,
			Color:   p.frame.ColorMode(gpu.ColorModeAlphaBlended),
			Cull:    gpu.CullFaceBackCCW,
		}
		u := gpu.Uniforms{Matrix: p.frame.Transform.TileMatrix(id), Color: color, Params: params}
		return p.drawSegments(l, prog, state, u, b)
	})
}

type rasterDrawer struct{}

func (rasterDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	if p.frame.Pass != PassTranslucent {
		return nil
	}
	prog := p.program(gpu.ProgramRaster, l)
	if !prog.Drawable() {
		return nil
	}
	quad, err := p.ctx.Geometry().TexturedTileQuad()
	if err != nil {
		return err
	}
	sorted, modes, err := p.stencil.ConfigForOverlap(tiles, p.masks)
	if err != nil {
		return err
	}
	params := [4]float32{
		float32(l.Paint("raster-opacity").Number),
		float32(l.Paint("raster-brightness-min").Number),
		float32(l.Paint("raster-brightness-max").Number),
		float32(l.Paint("raster-saturation").Number),
	}
	for _, id := range sorted {
		b := bucketOf(p.tiles, l, id)
		if b == nil || b.Texture == nil {
			continue
		}
		state := p.flatState(modes[id.OverscaledZ])
		err := p.draw(l, &gpu.DrawCall{
			Program:  prog,
			State:    state,
			Uniforms: gpu.Uniforms{Matrix: p.frame.Transform.TileMatrix(id), Params: params},
			Mesh:     quad,
			Texture:  b.Texture,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

type symbolDrawer struct{}

func (symbolDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	fc := &p.frame
	if fc.Pass != PassTranslucent || fc.Placement == nil {
		return nil
	}
	prog := p.program(gpu.ProgramSymbol, l)
	if !prog.Drawable() {
		return nil
	}
	color := colorOf(l.Paint("text-color"))
	layerOpacity := l.Paint("text-opacity").Number
	state := gpu.DrawState{
		Depth:   gpu.DepthModeDisabled,
		Stencil: gpu.StencilModeDisabled,
		Color:   fc.ColorMode(gpu.ColorModeAlphaBlended),
		Cull:    gpu.CullFaceDisabled,
	}
	for _, id := range tiles {
		b := bucketOf(p.tiles, l, id)
		if b == nil || b.Texture == nil {
			continue
		}
		// Each instance is drawn by the segment at its index.
		if len(b.Segments) != len(b.Symbols) {
			p.emit(Diagnostic{
				Kind:    DiagnosticDrawFailed,
				LayerID: l.ID(),
				Pass:    fc.Pass,
				Err:     fmt.Errorf("%w: tile %s has %d segments, %d instances", ErrSymbolSegments, id, len(b.Segments), len(b.Symbols)),
			})
			continue
		}
		mesh := bucketMesh(b)
		base := fc.Transform.TileMatrix(id)
		for i, seg := range b.Segments {
			opacity, offset, ok := fc.Placement.Symbol(l.ID(), id, i, fc.Now)
			if !ok || opacity <= 0 {
				continue
			}
			dx := fc.Transform.PixelsToTileUnits(id, offset[0])
			dy := fc.Transform.PixelsToTileUnits(id, offset[1])
			err := p.draw(l, &gpu.DrawCall{
				Program: prog,
				State:   state,
				Uniforms: gpu.Uniforms{
					Matrix: geo.Translate(base, float32(dx), float32(dy)),
					Color:  color,
					Params: [4]float32{float32(opacity * layerOpacity)},
				},
				Mesh:       mesh,
				Count:      seg.IndexCount,
				FirstIndex: seg.FirstIndex,
				BaseVertex: seg.BaseVertex,
				Texture:    b.Texture,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// offscreenDrawer renders a layer into its own target in the offscreen
// pass and composites the target over the viewport in the translucent
// pass.
type offscreenDrawer struct {
	program  string
	opacity  string
	textured bool
}

func (d offscreenDrawer) draw(p *Painter, l *style.Layer, tiles []source.TileID) error {
	switch p.frame.Pass {
	case PassOffscreen:
		return d.render(p, l, tiles)
	case PassTranslucent:
		return d.composite(p, l)
	}
	return nil
}

func (d offscreenDrawer) render(p *Painter, l *style.Layer, tiles []source.TileID) error {
	prog := p.program(d.program, l)
	if !prog.Drawable() {
		return nil
	}
	state := gpu.DrawState{
		Depth:   gpu.DepthModeDisabled,
		Stencil: gpu.StencilModeDisabled,
		Color:   gpu.ColorModeAdditive,
		Cull:    gpu.CullFaceDisabled,
	}
	var color [4]float32
	var params [4]float32
	switch l.Type() {
	case style.TypeHeatmap:
		params = [4]float32{1, float32(l.Paint("heatmap-intensity").Number), float32(l.Paint("heatmap-radius").Number)}
	case style.TypeHillshade:
		state.Color = gpu.ColorModeAlphaBlended
		color = colorOf(l.Paint("hillshade-shadow-color"))
		params = [4]float32{
			1,
			float32(l.Paint("hillshade-exaggeration").Number),
			float32(l.Paint("hillshade-illumination-direction").Number),
		}
	}
	for _, id := range tiles {
		b := bucketOf(p.tiles, l, id)
		if b == nil {
			continue
		}
		u := gpu.Uniforms{Matrix: p.frame.Transform.TileMatrix(id), Color: color, Params: params}
		if !d.textured {
			if err := p.drawSegments(l, prog, state, u, b); err != nil {
				return err
			}
			continue
		}
		if b.Texture == nil {
			continue
		}
		quad, err := p.ctx.Geometry().TexturedTileQuad()
		if err != nil {
			return err
		}
		if err := p.draw(l, &gpu.DrawCall{Program: prog, State: state, Uniforms: u, Mesh: quad, Texture: b.Texture}); err != nil {
			return err
		}
	}
	return nil
}

func (d offscreenDrawer) composite(p *Painter, l *style.Layer) error {
	targets := p.ctx.Targets()
	if !targets.HasOffscreen(l.ID()) {
		return nil
	}
	view, err := targets.Offscreen(l.ID())
	if err != nil {
		return err
	}
	prog := p.program(gpu.ProgramTexture, l)
	if !prog.Drawable() {
		return nil
	}
	quad, err := p.ctx.Geometry().TexturedTileQuad()
	if err != nil {
		return err
	}
	opacity := float32(1)
	if d.opacity != "" {
		opacity = float32(l.Paint(d.opacity).Number)
	}
	return p.draw(l, &gpu.DrawCall{
		Program:  prog,
		State:    p.flatState(gpu.StencilModeDisabled),
		Uniforms: gpu.Uniforms{Matrix: viewportMatrix(), Params: [4]float32{opacity}},
		Mesh:     quad,
		Texture:  view,
	})
}

type customDrawer struct{}

func (customDrawer) draw(p *Painter, l *style.Layer, _ []source.TileID) error {
	if p.frame.Pass != PassTranslucent || l.Custom() == nil {
		return nil
	}
	pass := p.ctx.Pass()
	if pass == nil {
		return gpu.ErrNoPass
	}
	l.Custom().Render(pass, p.worldMatrix())
	// The host may have changed any pass state.
	p.ctx.ResetState()
	return nil
}

// tileSource resolves tiles of the style being drawn.
type tileSource struct {
	style *style.Style
}

func (s tileSource) tile(l *style.Layer, id source.TileID) *source.Tile {
	if s.style == nil {
		return nil
	}
	c := s.style.Source(l.Source())
	if c == nil {
		return nil
	}
	return c.Tile(id)
}
