package painter

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/internal/clip"
	"github.com/gogpu/tilemap/internal/gpu"
)

// RenderPass is the phase of the frame being recorded.
type RenderPass uint8

const (
	// PassNone is outside Render.
	PassNone RenderPass = iota
	// PassOffscreen draws layers into their own targets.
	PassOffscreen
	// PassOpaque draws opaque layers top to bottom with depth writes.
	PassOpaque
	// PassTranslucent draws the remaining layers bottom to top, blended.
	PassTranslucent
)

func (p RenderPass) String() string {
	switch p {
	case PassOffscreen:
		return "offscreen"
	case PassOpaque:
		return "opaque"
	case PassTranslucent:
		return "translucent"
	}
	return "none"
}

// DepthFor is the depth of sublayer of the layer at style index layer:
// 1 - ((1 + layer) * sublayers + sublayer) * epsilon. Higher layers get
// smaller depths, so with a less-or-equal test a layer never overwrites
// one above it.
func DepthFor(layer, sublayer, sublayers int, epsilon float64) float32 {
	return float32(1 - float64((1+layer)*sublayers+sublayer)*epsilon)
}

// DepthRangeFor3D is the depth band reserved for 3D layers. It ends below
// the smallest depth DepthFor gives any 2D layer of a style with
// layerCount layers.
func DepthRangeFor3D(layerCount, sublayers int, epsilon float64) [2]float32 {
	return [2]float32{0, float32(1 - float64((layerCount+2)*sublayers)*epsilon)}
}

// FrameContext is the per-frame state shared by the passes and drawers.
// It is reset at the start of every frame.
type FrameContext struct {
	Pass       RenderPass
	LayerIndex int
	LayerCount int
	// OpaqueCutoff is the style index of the lowest visible 3D layer, or
	// LayerCount when there is none. Layers below it are depth tested and
	// may draw in the opaque pass; layers at or above it draw in the
	// translucent pass without depth testing.
	OpaqueCutoff int

	Epsilon      float64
	Sublayers    int
	DepthRange3D [2]float32

	Stencil   *clip.State
	Transform geo.Transform
	Now       time.Time
	Options   Options
	Placement SymbolPlacement
}

// Depth returns DepthFor at the current layer.
func (fc *FrameContext) Depth(sublayer int) float32 {
	return DepthFor(fc.LayerIndex, sublayer, fc.Sublayers, fc.Epsilon)
}

// DepthGated reports whether the current layer is depth tested.
func (fc *FrameContext) DepthGated() bool { return fc.LayerIndex < fc.OpaqueCutoff }

// DepthModeForSublayer returns the depth state of a 2D draw: a
// less-or-equal test at the sublayer's depth, or no depth at all at and
// above the opaque cutoff.
func (fc *FrameContext) DepthModeForSublayer(sublayer int, write bool) gpu.DepthMode {
	if !fc.DepthGated() {
		return gpu.DepthModeDisabled
	}
	d := fc.Depth(sublayer)
	return gpu.DepthMode{
		Compare: gputypes.CompareFunctionLessEqual,
		Write:   write,
		Range:   [2]float32{d, d},
	}
}

// DepthModeFor3D returns the depth state of a 3D draw.
func (fc *FrameContext) DepthModeFor3D(write bool) gpu.DepthMode {
	return gpu.DepthMode{
		Compare: gputypes.CompareFunctionLessEqual,
		Write:   write,
		Range:   fc.DepthRange3D,
	}
}

// ColorMode returns m, or additive blending under the overdraw inspector.
func (fc *FrameContext) ColorMode(m gpu.ColorMode) gpu.ColorMode {
	if fc.Options.ShowOverdrawInspector {
		return gpu.ColorModeAdditive
	}
	return m
}
