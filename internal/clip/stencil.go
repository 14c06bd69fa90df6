// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package clip

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tilemap/internal/gpu"
	"github.com/gogpu/tilemap/source"
)

// StencilValues is the number of values an 8-bit stencil buffer holds.
const StencilValues = 256

// ErrTooManyTiles is returned when one call needs more references than
// the buffer holds. Split the list with State.Batches.
var ErrTooManyTiles = errors.New("clip: more tiles than stencil values")

// MaskDrawer records the draws that write the stencil buffer.
type MaskDrawer interface {
	// ClearStencil draws a quad covering the viewport with mode and color
	// writes disabled.
	ClearStencil(mode gpu.StencilMode) error
	// DrawMask draws the quad of tile with mode and color writes disabled.
	DrawMask(tile source.TileID, mode gpu.StencilMode) error
}

// Stats counts the stencil work of one frame.
type Stats struct {
	Clears int
	Masks  int
}

// State is the stencil allocation of the frame being recorded. The zero
// value is not usable; call NewState.
type State struct {
	values int
	next   uint32
	source string
	refs   map[source.TileID]uint32
	stats  Stats
}

// NewState returns a state for a freshly cleared stencil buffer holding
// values distinct values. Values outside [2, StencilValues] select
// StencilValues.
func NewState(values int) *State {
	if values < 2 || values > StencilValues {
		values = StencilValues
	}
	s := &State{values: values, refs: make(map[source.TileID]uint32)}
	s.Reset()
	return s
}

// Reset forgets every reference. Call when the stencil buffer is cleared
// by the render pass load operation.
func (s *State) Reset() {
	s.next = 1
	s.source = ""
	clear(s.refs)
	s.stats = Stats{}
}

// MaxRefs returns how many tiles can hold a reference at once. Zero is
// the cleared value and never assigned.
func (s *State) MaxRefs() int { return s.values - 1 }

// Next returns the next unassigned reference.
func (s *State) Next() uint32 { return s.next }

// Source returns the source whose tile masks are in the buffer, or "".
func (s *State) Source() string { return s.source }

// Stats returns the counters since the last Reset.
func (s *State) Stats() Stats { return s.stats }

// Ref returns the reference of tile and whether it is live.
func (s *State) Ref(tile source.TileID) (uint32, bool) {
	r, ok := s.refs[tile]
	return r, ok
}

// AssignClipMasks draws one mask per tile with a distinct reference. It
// does nothing when the layer is not tile clipped, has no tiles, or the
// masks of sourceID already cover every tile.
func (s *State) AssignClipMasks(sourceID string, tileClipped bool, tiles []source.TileID, d MaskDrawer) error {
	if !tileClipped || len(tiles) == 0 {
		return nil
	}
	if sourceID == s.source && s.covers(tiles) {
		return nil
	}
	if len(tiles) > s.MaxRefs() {
		return fmt.Errorf("%w: %d", ErrTooManyTiles, len(tiles))
	}
	if err := s.reserve(len(tiles), d); err != nil {
		return err
	}
	clear(s.refs)
	s.source = sourceID

	for _, t := range tiles {
		ref := s.next
		s.next++
		s.refs[t] = ref
		if err := d.DrawMask(t, maskMode(ref)); err != nil {
			return fmt.Errorf("clip mask %s: %w", t, err)
		}
		s.stats.Masks++
	}
	return nil
}

func (s *State) covers(tiles []source.TileID) bool {
	for _, t := range tiles {
		if _, ok := s.refs[t]; !ok {
			return false
		}
	}
	return true
}

// reserve clears the buffer when n more references would overflow it.
func (s *State) reserve(n int, d MaskDrawer) error {
	if int(s.next)+n <= s.values {
		return nil
	}
	if err := d.ClearStencil(clearMode); err != nil {
		return fmt.Errorf("clear stencil: %w", err)
	}
	s.stats.Clears++
	s.next = 1
	s.source = ""
	clear(s.refs)
	return nil
}

// ClipMode returns the test that gates a draw of tile on its mask. The
// second result is false when tile holds no live reference.
func (s *State) ClipMode(tile source.TileID) (gpu.StencilMode, bool) {
	ref, ok := s.refs[tile]
	if !ok {
		return gpu.StencilModeDisabled, false
	}
	return gpu.StencilMode{
		Compare:   gputypes.CompareFunctionEqual,
		Ref:       ref,
		ReadMask:  0xFF,
		Fail:      hal.StencilOperationKeep,
		DepthFail: hal.StencilOperationKeep,
		Pass:      hal.StencilOperationKeep,
	}, true
}

// ConfigForOverlap orders tiles highest zoom first and returns the stencil
// mode of each zoom level. When the tiles span more than one level each
// level gets a reference that grows with zoom, tested greater-or-equal and
// written on pass, so a child drawn first masks its ancestors. The tile
// masks in the buffer are invalidated. A single level needs no test.
func (s *State) ConfigForOverlap(tiles []source.TileID, d MaskDrawer) ([]source.TileID, map[uint8]gpu.StencilMode, error) {
	sorted := slices.Clone(tiles)
	source.SortDescending(sorted)
	modes := make(map[uint8]gpu.StencilMode)
	if len(sorted) == 0 {
		return sorted, modes, nil
	}

	maxZ := sorted[0].OverscaledZ
	minZ := sorted[len(sorted)-1].OverscaledZ
	levels := int(maxZ-minZ) + 1
	if levels == 1 {
		modes[maxZ] = gpu.StencilModeDisabled
		return sorted, modes, nil
	}
	if levels > s.MaxRefs() {
		return nil, nil, fmt.Errorf("%w: %d zoom levels", ErrTooManyTiles, levels)
	}

	s.source = ""
	clear(s.refs)
	if err := s.reserve(levels, d); err != nil {
		return nil, nil, err
	}
	for i := range levels {
		z := minZ + uint8(i)
		modes[z] = gpu.StencilMode{
			Compare:   gputypes.CompareFunctionGreaterEqual,
			Ref:       s.next + uint32(i),
			ReadMask:  0xFF,
			WriteMask: 0xFF,
			Fail:      hal.StencilOperationKeep,
			DepthFail: hal.StencilOperationKeep,
			Pass:      hal.StencilOperationReplace,
		}
	}
	s.next += uint32(levels)
	return sorted, modes, nil
}

// Batches splits tiles into runs that each fit the reference space.
func (s *State) Batches(tiles []source.TileID) [][]source.TileID {
	if len(tiles) == 0 {
		return nil
	}
	return slices.Collect(slices.Chunk(tiles, s.MaxRefs()))
}

func maskMode(ref uint32) gpu.StencilMode {
	return gpu.StencilMode{
		Compare:   gputypes.CompareFunctionAlways,
		Ref:       ref,
		ReadMask:  0xFF,
		WriteMask: 0xFF,
		Fail:      hal.StencilOperationKeep,
		DepthFail: hal.StencilOperationKeep,
		Pass:      hal.StencilOperationReplace,
	}
}

var clearMode = gpu.StencilMode{
	Compare:   gputypes.CompareFunctionAlways,
	ReadMask:  0xFF,
	WriteMask: 0xFF,
	Fail:      hal.StencilOperationZero,
	DepthFail: hal.StencilOperationZero,
	Pass:      hal.StencilOperationZero,
}

// ClearMode is the stencil mode of the clearing quad.
func ClearMode() gpu.StencilMode { return clearMode }
