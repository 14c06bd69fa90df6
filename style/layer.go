package style

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"
)

// CustomLayer is a host-rendered layer drawn inside the translucent pass.
// The render pass state is reset after Render returns.
type CustomLayer interface {
	Render(pass hal.RenderPassEncoder, matrix f32.Mat4)
}

// CustomPrerenderer is implemented by custom layers that record work
// before the main pass begins.
type CustomPrerenderer interface {
	Prerender(encoder hal.CommandEncoder, matrix f32.Mat4)
}

// LayerSpec declares a layer as written in a style document.
type LayerSpec struct {
	ID          string         `toml:"id"`
	Type        LayerType      `toml:"type"`
	Source      string         `toml:"source,omitempty"`
	SourceLayer string         `toml:"source_layer,omitempty"`
	MinZoom     float64        `toml:"min_zoom,omitempty"`
	MaxZoom     float64        `toml:"max_zoom,omitempty"`
	Paint       map[string]any `toml:"paint,omitempty"`
	Layout      map[string]any `toml:"layout,omitempty"`

	// Custom is the renderer of a custom layer.
	Custom CustomLayer `toml:"-"`
	// Custom3D places a custom layer in the 3D depth band.
	Custom3D bool `toml:"custom_3d,omitempty"`
}

func (s *LayerSpec) clone() LayerSpec {
	c := *s
	c.Paint = maps.Clone(s.Paint)
	c.Layout = maps.Clone(s.Layout)
	return c
}

// Layer is a style layer with its evaluated property state. Layers are
// owned by a Style and changed only through Style methods.
type Layer struct {
	spec LayerSpec

	paint  map[string]*transitioning
	layout map[string]Expression

	pendingPaint  map[string]Expression
	pendingLayout map[string]Expression

	evaluatedPaint  map[string]Value
	evaluatedLayout map[string]Value
	fingerprint     string
}

func newLayer(spec LayerSpec) (*Layer, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("style: layer without id")
	}
	if !spec.Type.Valid() {
		return nil, fmt.Errorf("style: layer %q has unknown type %q", spec.ID, spec.Type)
	}
	if spec.Type == TypeCustom && spec.Custom == nil {
		return nil, fmt.Errorf("style: custom layer %q has no renderer", spec.ID)
	}
	if spec.Type.NeedsSource() && spec.Source == "" {
		return nil, fmt.Errorf("style: layer %q of type %s needs a source", spec.ID, spec.Type)
	}
	l := &Layer{
		spec:            spec.clone(),
		paint:           make(map[string]*transitioning),
		layout:          make(map[string]Expression),
		pendingPaint:    make(map[string]Expression),
		pendingLayout:   make(map[string]Expression),
		evaluatedPaint:  make(map[string]Value),
		evaluatedLayout: make(map[string]Value),
	}
	for name, raw := range spec.Paint {
		e, err := ParseExpression(name, raw)
		if err != nil {
			return nil, fmt.Errorf("style: layer %q paint %s: %w", spec.ID, name, err)
		}
		l.paint[name] = &transitioning{value: e}
	}
	for name, raw := range spec.Layout {
		e, err := ParseExpression(name, raw)
		if err != nil {
			return nil, fmt.Errorf("style: layer %q layout %s: %w", spec.ID, name, err)
		}
		l.layout[name] = e
	}
	l.fingerprint = l.computeFingerprint()
	return l, nil
}

// ID returns the layer ID.
func (l *Layer) ID() string { return l.spec.ID }

// Type returns the layer type.
func (l *Layer) Type() LayerType { return l.spec.Type }

// Source returns the source ID, empty for background and custom layers.
func (l *Layer) Source() string { return l.spec.Source }

// SourceLayer returns the layer name inside vector tiles.
func (l *Layer) SourceLayer() string { return l.spec.SourceLayer }

// Spec returns a copy of the layer's current declaration.
func (l *Layer) Spec() LayerSpec { return l.spec.clone() }

// Custom returns the host renderer of a custom layer.
func (l *Layer) Custom() CustomLayer { return l.spec.Custom }

// ZoomRange returns the min and max zoom. Max zoom 0 means unbounded.
func (l *Layer) ZoomRange() (float64, float64) {
	maxZoom := l.spec.MaxZoom
	if maxZoom == 0 {
		maxZoom = 24
	}
	return l.spec.MinZoom, maxZoom
}

// Visible reports the visibility layout property.
func (l *Layer) Visible() bool {
	return l.Layout("visibility").String != "none"
}

// IsHidden reports whether the layer draws nothing at zoom.
func (l *Layer) IsHidden(zoom float64) bool {
	minZoom, maxZoom := l.ZoomRange()
	return !l.Visible() || zoom < minZoom || zoom >= maxZoom
}

// Is3D reports whether the layer needs real depth testing.
func (l *Layer) Is3D() bool {
	return l.spec.Type == TypeFillExtrusion || (l.spec.Type == TypeCustom && l.spec.Custom3D)
}

// HasOffscreenPass reports whether the layer renders into its own target
// before the main pass.
func (l *Layer) HasOffscreenPass() bool {
	switch l.spec.Type {
	case TypeHeatmap, TypeHillshade:
		return true
	case TypeCustom:
		_, ok := l.spec.Custom.(CustomPrerenderer)
		return ok
	}
	return false
}

// IsTileClipped reports whether draws are masked to tile boundaries.
func (l *Layer) IsTileClipped() bool { return l.spec.Type.TileClipped() }

// IsOpaque reports whether the layer can be drawn in the opaque pass:
// a fill or background whose color and opacity are fully opaque.
func (l *Layer) IsOpaque() bool {
	switch l.spec.Type {
	case TypeBackground:
		return l.Paint("background-color").Color.A == 1 && l.Paint("background-opacity").Number == 1
	case TypeFill:
		return l.Paint("fill-color").Color.A == 1 && l.Paint("fill-opacity").Number == 1
	}
	return false
}

// Paint returns the evaluated paint property, or the type default.
func (l *Layer) Paint(name string) Value {
	if v, ok := l.evaluatedPaint[name]; ok {
		return v
	}
	return defaultPaint[l.spec.Type][name]
}

// Layout returns the evaluated layout property, or the default.
func (l *Layer) Layout(name string) Value {
	if v, ok := l.evaluatedLayout[name]; ok {
		return v
	}
	return defaultLayout[name]
}

// ProgramFingerprint identifies the program configuration of the layer:
// which paint properties vary with zoom and so are fed per draw rather
// than baked. Layers with equal fingerprints share programs.
func (l *Layer) ProgramFingerprint() string { return l.fingerprint }

func (l *Layer) computeFingerprint() string {
	var dynamic []string
	for _, name := range slices.Sorted(maps.Keys(l.paint)) {
		if l.paint[name].value.ZoomDependent() {
			dynamic = append(dynamic, name)
		}
	}
	if len(dynamic) == 0 {
		return string(l.spec.Type)
	}
	return string(l.spec.Type) + "/" + strings.Join(dynamic, ",")
}

// queuePaint records a paint change to be applied by the next Update.
// A nil expression resets the property to its default.
func (l *Layer) queuePaint(name string, e Expression, raw any) {
	l.pendingPaint[name] = e
	if l.spec.Paint == nil {
		l.spec.Paint = make(map[string]any)
	}
	if e == nil {
		delete(l.spec.Paint, name)
	} else {
		l.spec.Paint[name] = raw
	}
}

func (l *Layer) queueLayout(name string, e Expression, raw any) {
	l.pendingLayout[name] = e
	if l.spec.Layout == nil {
		l.spec.Layout = make(map[string]any)
	}
	if e == nil {
		delete(l.spec.Layout, name)
	} else {
		l.spec.Layout[name] = raw
	}
}

// applyPending starts transitions for queued paint changes and installs
// queued layout values. It reports whether anything was pending.
func (l *Layer) applyPending(tr Transition, now time.Time) bool {
	if len(l.pendingPaint) == 0 && len(l.pendingLayout) == 0 {
		return false
	}
	for name, e := range l.pendingPaint {
		if e == nil {
			e = Constant{Value: defaultPaint[l.spec.Type][name]}
		}
		prior := l.paint[name]
		if prior == nil {
			prior = &transitioning{value: Constant{Value: defaultPaint[l.spec.Type][name]}}
		}
		l.paint[name] = newTransitioning(e, prior, tr, now)
	}
	for name, e := range l.pendingLayout {
		if e == nil {
			delete(l.layout, name)
			continue
		}
		l.layout[name] = e
	}
	clear(l.pendingPaint)
	clear(l.pendingLayout)
	l.fingerprint = l.computeFingerprint()
	return true
}

// evaluate recomputes property values at zoom and now. It reports whether
// a transition is still running.
func (l *Layer) evaluate(zoom float64, now time.Time) bool {
	transitioning := false
	clear(l.evaluatedPaint)
	for name, p := range l.paint {
		l.evaluatedPaint[name] = p.evaluate(zoom, now)
		if p.active(now) {
			transitioning = true
		}
	}
	clear(l.evaluatedLayout)
	for name, e := range l.layout {
		l.evaluatedLayout[name] = e.Evaluate(zoom)
	}
	return transitioning
}

// zoomDependent reports whether any property varies with zoom.
func (l *Layer) zoomDependent() bool {
	for _, p := range l.paint {
		if p.value.ZoomDependent() || (p.prior != nil && p.prior.value.ZoomDependent()) {
			return true
		}
	}
	for _, e := range l.layout {
		if e.ZoomDependent() {
			return true
		}
	}
	return false
}
