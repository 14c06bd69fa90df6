// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package placement

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"github.com/gogpu/tilemap/geo"
	"github.com/gogpu/tilemap/source"
	"github.com/gogpu/tilemap/style"
)

// ErrNoStyle is returned by Update without a style.
var ErrNoStyle = errors.New("placement: no style")

// State is the phase of the scheduler.
type State uint8

const (
	// StateIdle has no pass and no result.
	StateIdle State = iota
	// StateRunning has a pass in progress.
	StateRunning
	// StateCommitted has a committed result and no pass in progress.
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	}
	return "idle"
}

// Cursor is the position of a running pass: the symbol layer and the
// tile within it that the next step starts at.
type Cursor struct {
	Layer int
	Tile  int
}

// Config configures a Scheduler.
type Config struct {
	// GridCell is the collision grid cell size in pixels.
	GridCell float64
	// ViewportPadding extends the collision grid past the viewport.
	ViewportPadding float64
	// MatchTolerance is the cross-tile match distance in tile units.
	MatchTolerance float64
}

// Input is the frame state a placement step reads.
type Input struct {
	Style     *style.Style
	Transform geo.Transform
	Now       time.Time
	// FadeDuration is the time of a full fade. Zero disables fading and
	// places everything in a single step.
	FadeDuration time.Duration
}

// Stats counts scheduler work since the scheduler was created.
type Stats struct {
	Passes        int
	Commits       int
	Invalidations int
	Buckets       int
}

// Scheduler runs placement passes incrementally, one step per frame.
// It is driven from a single goroutine; Result may be read from any.
type Scheduler struct {
	cfg Config

	state  State
	pass   *pass
	result atomic.Pointer[Result]
	index  *CrossTileIndex

	orderVersion uint64
	orderSeen    bool
	stats        Stats
}

type decision struct {
	placed bool
	offset orb.Point
}

// pass is one placement run over the symbol layers in style order.
type pass struct {
	layers    []string
	cursor    Cursor
	transform geo.Transform
	revisions map[string]uint64
	collision *CollisionIndex
	prev      *Result

	decisions map[uint64]decision
	refs      map[symbolRef]uint64
}

// NewScheduler returns an idle scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.ViewportPadding == 0 {
		cfg.ViewportPadding = DefaultViewportPadding
	}
	return &Scheduler{cfg: cfg, index: NewCrossTileIndex(cfg.MatchTolerance)}
}

// State returns the current phase.
func (s *Scheduler) State() State { return s.state }

// Cursor returns the position of the running pass.
func (s *Scheduler) Cursor() Cursor {
	if s.pass == nil {
		return Cursor{}
	}
	return s.pass.cursor
}

// Result returns the last committed result, or nil.
func (s *Scheduler) Result() *Result { return s.result.Load() }

// Stats returns the work counters.
func (s *Scheduler) Stats() Stats { return s.stats }

// Index returns the cross-tile index.
func (s *Scheduler) Index() *CrossTileIndex { return s.index }

// Reset drops the running pass, the result and the cross-tile index.
func (s *Scheduler) Reset() {
	s.state = StateIdle
	s.pass = nil
	s.result.Store(nil)
	s.index = NewCrossTileIndex(s.cfg.MatchTolerance)
	s.orderSeen = false
}

// Update advances placement by one step bounded by d and reports whether
// a new result was committed.
//
// A new pass starts when the layer order changed, when fading is
// disabled, when there is no pass and no result, or when the committed
// result is stale: placed at another zoom, older than the fade duration
// or made from tiles that have changed since. A forced pass runs to
// completion in this step. A running pass whose tiles changed is
// dropped and restarted.
func (s *Scheduler) Update(in Input, d Deadline) (bool, error) {
	if in.Style == nil {
		return false, ErrNoStyle
	}
	forced := in.FadeDuration <= 0
	if !s.orderSeen || in.Style.OrderVersion() != s.orderVersion {
		if s.orderSeen {
			forced = true
		}
		s.orderSeen = true
		s.orderVersion = in.Style.OrderVersion()
		if s.index.PruneLayers(in.Style.Order()) {
			slogger().Debug("placement: pruned cross-tile index", "layers", s.index.Layers())
		}
	}

	layers := symbolLayers(in.Style, in.Transform.Zoom)
	revisions := sourceRevisions(in.Style, layers)

	if s.pass != nil && !sameRevisions(s.pass.revisions, revisions) {
		slogger().Debug("placement: tiles changed, restarting pass", "cursor", s.pass.cursor)
		s.pass = nil
		s.stats.Invalidations++
	}

	prev := s.result.Load()
	if forced || s.pass == nil && (prev == nil || prev.stale(in.Transform.Zoom, in.Now, revisions)) {
		s.start(in, layers, revisions, prev)
	}
	if s.pass == nil {
		return false, nil
	}
	if forced {
		d = Unlimited
	}

	if !s.advance(in.Style, d) {
		return false, nil
	}
	r := commit(s.pass, prev, in.Now, in.FadeDuration)
	s.result.Store(r)
	s.pass = nil
	s.state = StateCommitted
	s.stats.Commits++
	slogger().Debug("placement: committed", "symbols", r.Len(), "zoom", r.Zoom())
	return true, nil
}

func (s *Scheduler) start(in Input, layers []string, revisions map[string]uint64, prev *Result) {
	tr := in.Transform
	s.pass = &pass{
		layers:    layers,
		transform: tr,
		revisions: revisions,
		collision: NewCollisionIndex(tr.Width, tr.Height, s.cfg.ViewportPadding, s.cfg.GridCell),
		prev:      prev,
		decisions: make(map[uint64]decision),
		refs:      make(map[symbolRef]uint64),
	}
	s.state = StateRunning
	s.stats.Passes++

	for _, id := range layers {
		c := in.Style.Source(in.Style.Layer(id).Source())
		live := make(map[source.TileID]bool)
		for _, t := range c.SymbolIDs() {
			live[t] = true
		}
		s.index.PruneTiles(id, func(t source.TileID) bool { return live[t] })
	}
}

// advance places buckets from the cursor until the pass is done or d
// expires. It reports whether the pass is done.
func (s *Scheduler) advance(st *style.Style, d Deadline) bool {
	p := s.pass
	for p.cursor.Layer < len(p.layers) {
		layerID := p.layers[p.cursor.Layer]
		c := st.Source(st.Layer(layerID).Source())
		tiles := c.SymbolIDs()
		for p.cursor.Tile < len(tiles) {
			id := tiles[p.cursor.Tile]
			if t := c.Tile(id); t != nil && t.Loaded() {
				if b := t.Bucket(layerID); b != nil && len(b.Symbols) > 0 {
					s.placeBucket(layerID, id, b)
				}
			}
			p.cursor.Tile++
			s.stats.Buckets++
			if d.Done() && !p.lastBucket(p.cursor, len(tiles)) {
				if p.cursor.Tile == len(tiles) {
					p.cursor = Cursor{Layer: p.cursor.Layer + 1}
				}
				slogger().Debug("placement: yielding", "cursor", p.cursor)
				return false
			}
		}
		p.cursor = Cursor{Layer: p.cursor.Layer + 1}
	}
	return true
}

// lastBucket reports whether no buckets remain after c.
func (p *pass) lastBucket(c Cursor, tiles int) bool {
	return c.Tile == tiles && c.Layer == len(p.layers)-1
}

// placeBucket decides the instances of one bucket in order.
func (s *Scheduler) placeBucket(layerID string, id source.TileID, b *source.Bucket) {
	p := s.pass
	ids := s.index.AddTile(layerID, id, b.Symbols)
	for i, sym := range b.Symbols {
		cross := ids[i]
		// A label already decided from another tile is hidden here.
		if _, seen := p.decisions[cross]; seen {
			continue
		}
		p.refs[symbolRef{layerID: layerID, tile: id, index: i}] = cross
		p.decisions[cross] = p.place(id, sym, cross)
	}
}

// place tries the anchor offsets of sym in order, the previously chosen
// offset first, and takes the first box that is on screen and free.
func (p *pass) place(id source.TileID, sym source.SymbolInstance, cross uint64) decision {
	anchor := p.transform.Project(id, sym.Anchor)
	offsets := sym.Offsets
	if len(offsets) == 0 {
		offsets = []orb.Point{{0, 0}}
	}
	if old, ok := p.prev.State(cross); ok && old.Placed {
		offsets = preferOffset(offsets, old.Offset)
	}
	for _, off := range offsets {
		box := translate(sym.Box, orb.Point{anchor[0] + off[0], anchor[1] + off[1]})
		if !p.collision.OnScreen(box) {
			continue
		}
		if !sym.AllowOverlap && p.collision.Collides(box) {
			continue
		}
		if !sym.IgnorePlacement {
			p.collision.Insert(box)
		}
		return decision{placed: true, offset: off}
	}
	return decision{}
}

func preferOffset(offsets []orb.Point, first orb.Point) []orb.Point {
	for i, o := range offsets {
		if o == first {
			if i == 0 {
				return offsets
			}
			out := make([]orb.Point, 0, len(offsets))
			out = append(out, o)
			out = append(out, offsets[:i]...)
			return append(out, offsets[i+1:]...)
		}
	}
	return offsets
}

func translate(b orb.Bound, d orb.Point) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min[0] + d[0], b.Min[1] + d[1]},
		Max: orb.Point{b.Max[0] + d[0], b.Max[1] + d[1]},
	}
}

// symbolLayers returns the visible symbol layers in style order.
func symbolLayers(st *style.Style, zoom float64) []string {
	var out []string
	for _, l := range st.Layers() {
		if l.Type() != style.TypeSymbol || l.IsHidden(zoom) {
			continue
		}
		if st.Source(l.Source()) == nil {
			continue
		}
		out = append(out, l.ID())
	}
	return out
}

func sourceRevisions(st *style.Style, layers []string) map[string]uint64 {
	out := make(map[string]uint64)
	for _, id := range layers {
		src := st.Layer(id).Source()
		out[src] = st.Source(src).Revision()
	}
	return out
}

func sameRevisions(a, b map[string]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
