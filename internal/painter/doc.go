// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package painter records the render passes of one map frame.
//
// A frame has three phases. Layers with an offscreen pass (heatmap,
// hillshade and prerendering custom layers) draw into their own targets
// first. The main pass then draws opaque layers top to bottom, writing
// depth so that lower layers are rejected early, and finally draws every
// other layer bottom to top with blending.
//
// Each layer owns a band of the depth range sized by the sublayers per
// layer; higher layers sit nearer the viewer. 3D layers share a band
// below all 2D layers and test depth against each other. Depth testing
// of 2D layers stops at the lowest 3D layer: from there up, layers draw
// in the blended phase only and cover the 3D content under them.
//
// Draws of tile clipped layers are gated by the stencil masks allocated
// by package clip. Raster layers draw children before their ancestors
// and use one stencil reference per zoom level instead.
//
// Failures of individual layers never abort a frame; they are reported
// through Config.Diagnostics.
package painter
