// Package tilemap draws styled tiled maps on a wgpu device.
//
// # Overview
//
// tilemap is the frame core of a vector map renderer. It takes a style
// (sources and an ordered list of layers), tiles of GPU-ready geometry
// produced elsewhere, and a camera, and records the render passes of one
// frame. Between frames it places labels incrementally so that a frame
// never spends more than a small budget on collision detection.
//
// # Quick Start
//
//	m, err := tilemap.NewMap(device, queue,
//	    tilemap.WithTileRequester(loader.Request),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := m.SetStyle(spec); err != nil {
//	    return err
//	}
//	opts := tilemap.RenderOptions{FadeDuration: m.Config().FadeDuration.Std()}
//	for frame := range frames {
//	    if err := m.Render(frame.View, camera.Transform(), opts); err != nil {
//	        return err
//	    }
//	}
//
// # Frames
//
// A frame runs in three steps: the style applies queued property changes
// and transitions, the placement scheduler advances by one step, and the
// painter records the frame. The painter draws layers that need their own
// target first, then opaque layers top to bottom with depth writes, then
// every other layer bottom to top. Tile clipping uses stencil masks.
//
// # Architecture
//
// The module is organized into:
//   - Public API: Map, Config, RenderOptions, diagnostics
//   - style: layers, sources, property evaluation and style diffs
//   - source: tile IDs, tile caches and buckets
//   - placement: label collision, cross-tile identity and fades
//   - geo: the camera transform and tile covering
//   - internal/painter, internal/clip, internal/gpu: frame recording
//
// # Coordinate System
//
// Screen coordinates are in pixels with the origin at the top-left.
// Tile geometry uses integer tile units, source.Extent per tile side.
package tilemap
