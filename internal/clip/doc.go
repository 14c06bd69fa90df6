// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package clip allocates stencil reference values to tiles.
//
// Tiles of one source overlap at their buffered edges, and tiles of
// different zoom levels overlap entirely while a parent stands in for
// children that have not loaded yet. Each tile therefore gets its own
// reference value, written into the stencil buffer by a mask draw of the
// tile's quad, and every layer draw of that tile is gated on stencil ==
// reference.
//
// The stencil buffer holds 8 bits, so references run from 1 to 255. When
// a layer needs more references than remain, the buffer is cleared by a
// viewport quad and numbering starts again at 1. Consecutive layers of
// the same source reuse the masks already in the buffer.
//
// Raster layers use ConfigForOverlap instead: one reference per zoom level
// with a greater-or-equal test, so a child tile drawn first keeps its
// parent from painting over it.
package clip
