package placement

import (
	"slices"
	"time"

	"github.com/paulmach/orb"

	"github.com/gogpu/tilemap/source"
)

// SymbolState is the placement of one label.
type SymbolState struct {
	Placed bool
	// Opacity is the opacity at ChangedAt, when Placed last changed.
	Opacity   float32
	ChangedAt time.Time
	// Offset is the chosen anchor shift in screen pixels.
	Offset orb.Point
}

// opacityAt moves linearly from Opacity towards 1 (placed) or 0 over
// fade, starting at ChangedAt.
func (s SymbolState) opacityAt(now time.Time, fade time.Duration) float32 {
	target := float32(0)
	if s.Placed {
		target = 1
	}
	if fade <= 0 {
		return target
	}
	step := float32(now.Sub(s.ChangedAt)) / float32(fade)
	if step < 0 {
		step = 0
	}
	if s.Placed {
		return min(target, s.Opacity+step)
	}
	return max(target, s.Opacity-step)
}

type symbolRef struct {
	layerID string
	tile    source.TileID
	index   int
}

// Result is an immutable placement snapshot. A nil *Result places
// nothing.
type Result struct {
	committedAt time.Time
	zoom        float64
	fade        time.Duration
	revisions   map[string]uint64

	symbols map[uint64]SymbolState
	refs    map[symbolRef]uint64
}

// CommittedAt returns the time the result was committed.
func (r *Result) CommittedAt() time.Time { return r.committedAt }

// Zoom returns the zoom the result was placed at.
func (r *Result) Zoom() float64 { return r.zoom }

// FadeDuration returns the duration of a full fade.
func (r *Result) FadeDuration() time.Duration { return r.fade }

// Len returns the number of labels with a state.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.symbols)
}

// IDs returns the cross-tile IDs with a state, ascending.
func (r *Result) IDs() []uint64 {
	if r == nil {
		return nil
	}
	ids := make([]uint64, 0, len(r.symbols))
	for id := range r.symbols {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// State returns the state of a label.
func (r *Result) State(id uint64) (SymbolState, bool) {
	if r == nil {
		return SymbolState{}, false
	}
	s, ok := r.symbols[id]
	return s, ok
}

// Opacity returns the opacity of a label at now.
func (r *Result) Opacity(id uint64, now time.Time) float64 {
	s, ok := r.State(id)
	if !ok {
		return 0
	}
	return float64(s.opacityAt(now, r.fade))
}

// CrossTileID returns the ID of instance index of the layer's bucket in
// tile. Instances hidden as duplicates of a label placed from another
// tile have none.
func (r *Result) CrossTileID(layerID string, tile source.TileID, index int) (uint64, bool) {
	if r == nil {
		return 0, false
	}
	id, ok := r.refs[symbolRef{layerID: layerID, tile: tile, index: index}]
	return id, ok
}

// Symbol returns the opacity and offset of one symbol instance at now.
func (r *Result) Symbol(layerID string, tile source.TileID, index int, now time.Time) (float64, orb.Point, bool) {
	id, ok := r.CrossTileID(layerID, tile, index)
	if !ok {
		return 0, orb.Point{}, false
	}
	s := r.symbols[id]
	return float64(s.opacityAt(now, r.fade)), s.Offset, true
}

// Fading reports whether any label is still changing opacity at now.
func (r *Result) Fading(now time.Time) bool {
	if r == nil || r.fade <= 0 {
		return false
	}
	for _, s := range r.symbols {
		o := s.opacityAt(now, r.fade)
		if (s.Placed && o < 1) || (!s.Placed && o > 0) {
			return true
		}
	}
	return false
}

// stale reports whether the result should be replaced by a new pass.
func (r *Result) stale(zoom float64, now time.Time, revisions map[string]uint64) bool {
	if r.zoom != zoom || !now.Before(r.committedAt.Add(r.fade)) {
		return true
	}
	for id, rev := range revisions {
		if r.revisions[id] != rev {
			return true
		}
	}
	return false
}

// commit builds the result of a finished pass. Labels keep the opacity
// they have in prev at now, so fades continue across commits; labels no
// pass placed fade out and are dropped once invisible.
func commit(p *pass, prev *Result, now time.Time, fade time.Duration) *Result {
	r := &Result{
		committedAt: now,
		zoom:        p.transform.Zoom,
		fade:        fade,
		revisions:   p.revisions,
		symbols:     make(map[uint64]SymbolState, len(p.decisions)),
		refs:        p.refs,
	}
	for id, d := range p.decisions {
		old, ok := prev.State(id)
		switch {
		case !ok:
			r.symbols[id] = SymbolState{Placed: d.placed, ChangedAt: now, Offset: d.offset}
		case old.Placed != d.placed:
			r.symbols[id] = SymbolState{Placed: d.placed, Opacity: old.opacityAt(now, prev.fade), ChangedAt: now, Offset: d.offset}
		default:
			if prev.fade != fade {
				old.Opacity, old.ChangedAt = old.opacityAt(now, prev.fade), now
			}
			old.Offset = d.offset
			r.symbols[id] = old
		}
	}
	if prev == nil {
		return r
	}
	for id, old := range prev.symbols {
		if _, ok := r.symbols[id]; ok {
			continue
		}
		o := old.opacityAt(now, prev.fade)
		if o <= 0 {
			continue
		}
		if old.Placed {
			old = SymbolState{Opacity: o, ChangedAt: now, Offset: old.Offset}
		}
		r.symbols[id] = old
	}
	return r
}
