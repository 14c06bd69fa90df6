// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tilemap

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/internal/painter"
	"github.com/gogpu/tilemap/placement"
	"github.com/gogpu/tilemap/style"
)

// RenderOptions are the per-frame switches of Render.
type RenderOptions struct {
	ShowTileBoundaries    bool
	ShowOverdrawInspector bool
	ShowPadding           bool

	// Rotating, Zooming and Moving report camera motion. While the camera
	// moves, placement work is bounded by Config.PlacementBudget per
	// frame; a still camera finishes a placement pass in one frame.
	Rotating bool
	Zooming  bool
	Moving   bool

	// GPUTiming measures the main pass with timestamp queries, falling
	// back to per-layer encode times reported as diagnostics.
	GPUTiming bool

	// FadeDuration is the label fade time. Zero disables fading: labels
	// switch at once and placement runs to completion every frame.
	FadeDuration time.Duration
}

func (o RenderOptions) cameraMoving() bool {
	return o.Rotating || o.Zooming || o.Moving
}

// Map draws frames of a styled tiled map into a render target.
//
// A Map is driven from a single goroutine. Placement may be called from
// any goroutine.
type Map struct {
	cfg   Config
	clock func() time.Time
	tiles TileRequester

	painter   *painter.Painter
	placement *placement.Scheduler
	style     *style.Style
}

// NewMap returns a map recording through device and queue.
func NewMap(device hal.Device, queue hal.Queue, opts ...Option) (*Map, error) {
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	ctx := gpu.NewContext(device, queue, gpu.Config{
		Format:  o.format,
		Library: o.library,
		SPIRV:   o.config.CompileShadersToSPIRV,
	})
	m := &Map{
		cfg:   o.config,
		clock: o.clock,
		tiles: o.tiles,
		painter: painter.New(ctx, painter.Config{
			StencilValues:     o.config.StencilValues,
			DepthEpsilon:      o.config.DepthEpsilon,
			SublayersPerLayer: o.config.SublayersPerLayer,
			Diagnostics:       o.diagnostics,
		}),
		placement: placement.NewScheduler(placement.Config{
			GridCell: o.config.CollisionGridCell,
		}),
	}
	return m, nil
}

// NewMapFromProvider returns a map on the device of a host application.
// The provider must hand out wgpu hal objects; frame targets default to
// its surface format.
func NewMapFromProvider(p gpucontext.DeviceProvider, opts ...Option) (*Map, error) {
	if p == nil {
		return nil, ErrNoDevice
	}
	device, ok := p.Device().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: provider device is %T", ErrNoDevice, p.Device())
	}
	queue, ok := p.Queue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: provider queue is %T", ErrNoDevice, p.Queue())
	}
	if f := p.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]Option{WithTargetFormat(f)}, opts...)
	}
	info := p.AdapterInfo()
	Logger().Info("tilemap: using host device", "adapter", info.Name, "type", info.Type)
	return NewMap(device, queue, opts...)
}

// Config returns the tunables the map was created with.
func (m *Map) Config() Config { return m.cfg }

// Style returns the current style, or nil. Changes made through it take
// effect on the next Render.
func (m *Map) Style() *style.Style { return m.style }

// SetStyle makes spec the current style. An existing style is patched in
// place so tiles and label state survive; when the patch needs an
// operation that cannot be applied incrementally the style is rebuilt.
//
// A spec without a transition gets Config.TransitionDuration.
func (m *Map) SetStyle(spec style.Spec) error {
	if spec.Transition == (style.Transition{}) {
		spec.Transition.Duration = m.cfg.TransitionDuration
	}
	if m.style == nil {
		return m.rebuild(spec)
	}

	ops := style.Diff(m.style.Spec(), spec)
	if len(ops) == 0 {
		return nil
	}
	err := m.style.ApplyOperations(ops)
	switch {
	case err == nil:
		Logger().Debug("tilemap: style patched", "operations", len(ops))
		return nil
	case errors.Is(err, style.ErrUnsupportedOperation):
		Logger().Info("tilemap: style rebuild", "reason", err)
	default:
		Logger().Warn("tilemap: style patch failed, rebuilding", "err", err)
	}
	return m.rebuild(spec)
}

func (m *Map) rebuild(spec style.Spec) error {
	st, err := style.New(spec)
	if err != nil {
		return fmt.Errorf("tilemap: style: %w", err)
	}
	m.style = st
	m.placement.Reset()
	Logger().Info("tilemap: style built", "sources", len(spec.Sources), "layers", len(spec.Layers))
	return nil
}

// Render draws one frame of the current style into target.
//
// The style is updated for the frame, the visible tiles of every used
// source are refreshed, placement advances by one step and the frame is
// recorded and submitted. Failures of single layers are reported as
// diagnostics and do not fail the frame.
func (m *Map) Render(target hal.TextureView, tr geo.Transform, opts RenderOptions) error {
	if m.style == nil {
		return ErrNoStyle
	}
	now := m.clock()

	res := m.style.Update(style.EvaluationParameters{Zoom: tr.Zoom, Now: now})
	if res.OrderChanged {
		Logger().Debug("tilemap: layer order changed", "layers", len(m.style.Order()))
	}
	m.updateTiles(tr, now, opts.FadeDuration)

	d := placement.Unlimited
	if opts.cameraMoving() && m.cfg.PlacementBudget > 0 {
		d = placement.NewDeadline(m.clock, m.cfg.PlacementBudget.Std())
	}
	in := placement.Input{
		Style:        m.style,
		Transform:    tr,
		Now:          now,
		FadeDuration: opts.FadeDuration,
	}
	if _, err := m.placement.Update(in, d); err != nil {
		return fmt.Errorf("tilemap: placement: %w", err)
	}

	frame := painter.FrameInput{
		Target:    target,
		Style:     m.style,
		Transform: tr,
		Now:       now,
		Options: painter.Options{
			ShowTileBoundaries:    opts.ShowTileBoundaries,
			ShowOverdrawInspector: opts.ShowOverdrawInspector,
			ShowPadding:           opts.ShowPadding,
			GPUTiming:             opts.GPUTiming,
		},
	}
	// A nil *Result must not become a non-nil interface.
	if r := m.placement.Result(); r != nil {
		frame.Placement = r
	}
	return m.painter.Render(frame)
}

// updateTiles recomputes the renderable tiles of every used source and
// passes the tiles nobody has asked for yet to the tile requester.
func (m *Map) updateTiles(tr geo.Transform, now time.Time, fade time.Duration) {
	for _, c := range m.style.Sources() {
		if !c.Used() {
			continue
		}
		missing := c.Update(tr.CoveringTiles(c.Spec()), now, fade)
		if len(missing) > 0 && m.tiles != nil {
			m.tiles(c.ID(), missing)
		}
	}
}

// Placement returns the last committed label placement, or nil.
func (m *Map) Placement() *placement.Result { return m.placement.Result() }

// PlacementStats returns the placement work counters.
func (m *Map) PlacementStats() placement.Stats { return m.placement.Stats() }

// FrameStats returns the counters of the last recorded frame.
func (m *Map) FrameStats() FrameStats { return m.painter.Context().Stats() }

// Reset drops every GPU resource and all label state, for use after the
// device was lost. The style and its tiles are kept.
func (m *Map) Reset() {
	m.painter.Reset()
	m.placement.Reset()
	Logger().Info("tilemap: GPU context reset")
}
