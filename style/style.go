package style

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/tilemap/source"
)

// Spec is a parsed style document: sources, layers bottom to top, and the
// default property transition.
type Spec struct {
	Sources    []source.Spec `toml:"sources"`
	Layers     []LayerSpec   `toml:"layers"`
	Transition Transition    `toml:"transition"`
}

// EvaluationParameters are the inputs of one Update.
type EvaluationParameters struct {
	Zoom float64
	Now  time.Time
}

// UpdateResult reports what an Update did.
type UpdateResult struct {
	// Recalculated is the number of layers whose values were recomputed.
	Recalculated int
	// OrderChanged is set when layers were added, removed or moved since
	// the previous Update.
	OrderChanged bool
	// Transitioning is set while any property transition is running.
	Transitioning bool
}

// Style is the ordered layer list and the source caches it draws from.
//
// Mutations are validated when they are made and queued for the next
// Update. Structural changes show in Order and Spec at once, but the layer
// list drawn from (Layers) and OrderVersion only move at Update. Update
// applies everything that was queued since the previous frame in one
// batch: a layer touched many times is recomputed once.
type Style struct {
	layers map[string]*Layer
	order  []string
	// frame is the layer list published by the last Update.
	frame []*Layer

	sources     []*source.Cache
	free        []int
	sourceIndex map[string]int

	transition Transition

	dirty         map[string]struct{}
	transitioning map[string]struct{}
	orderDirty    bool
	orderVersion  uint64

	zoom      float64
	evaluated bool
}

// New builds a style from spec.
func New(spec Spec) (*Style, error) {
	s := &Style{
		layers:        make(map[string]*Layer),
		sourceIndex:   make(map[string]int),
		dirty:         make(map[string]struct{}),
		transitioning: make(map[string]struct{}),
		transition:    spec.Transition,
		orderDirty:    true,
	}
	for _, src := range spec.Sources {
		if err := s.AddSource(src); err != nil {
			return nil, err
		}
	}
	for _, l := range spec.Layers {
		if err := s.AddLayer(l, ""); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddSource creates the cache for a new source.
func (s *Style) AddSource(spec source.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, ok := s.sourceIndex[spec.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSource, spec.ID)
	}
	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.sources[idx] = source.NewCache(spec, idx)
	} else {
		idx = len(s.sources)
		s.sources = append(s.sources, source.NewCache(spec, idx))
	}
	s.sourceIndex[spec.ID] = idx
	return nil
}

// RemoveSource destroys a source cache. It fails with ErrSourceInUse while
// a layer references the source; the style is left unchanged.
func (s *Style) RemoveSource(id string) error {
	idx, ok := s.sourceIndex[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	var users []string
	for _, lid := range s.order {
		if s.layers[lid].Source() == id {
			users = append(users, lid)
		}
	}
	if len(users) > 0 {
		return fmt.Errorf("%w: %q is used by layers %v", ErrSourceInUse, id, users)
	}
	s.sources[idx].Clear()
	s.sources[idx] = nil
	s.free = append(s.free, idx)
	delete(s.sourceIndex, id)
	return nil
}

// Source returns the cache of source id, or nil.
func (s *Style) Source(id string) *source.Cache {
	idx, ok := s.sourceIndex[id]
	if !ok {
		return nil
	}
	return s.sources[idx]
}

// SourceAt returns the cache at arena index idx, or nil.
func (s *Style) SourceAt(idx int) *source.Cache {
	if idx < 0 || idx >= len(s.sources) {
		return nil
	}
	return s.sources[idx]
}

// TileSource returns the cache owning t.
func (s *Style) TileSource(t *source.Tile) *source.Cache {
	return s.SourceAt(t.SourceIndex())
}

// Sources returns every live source cache in arena order.
func (s *Style) Sources() []*source.Cache {
	out := make([]*source.Cache, 0, len(s.sourceIndex))
	for _, c := range s.sources {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// AddLayer inserts a layer below the layer before, or on top when before
// is empty.
func (s *Style) AddLayer(spec LayerSpec, before string) error {
	if _, ok := s.layers[spec.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateLayer, spec.ID)
	}
	if spec.Type.NeedsSource() {
		if _, ok := s.sourceIndex[spec.Source]; !ok {
			return fmt.Errorf("%w: %q referenced by layer %q", ErrUnknownSource, spec.Source, spec.ID)
		}
	}
	pos := len(s.order)
	if before != "" {
		pos = slices.Index(s.order, before)
		if pos < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownLayer, before)
		}
	}
	l, err := newLayer(spec)
	if err != nil {
		return err
	}
	s.layers[spec.ID] = l
	s.order = slices.Insert(s.order, pos, spec.ID)
	s.markDirty(spec.ID)
	s.orderDirty = true
	return nil
}

// RemoveLayer deletes a layer.
func (s *Style) RemoveLayer(id string) error {
	pos := slices.Index(s.order, id)
	if pos < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	s.order = slices.Delete(s.order, pos, pos+1)
	delete(s.layers, id)
	delete(s.dirty, id)
	delete(s.transitioning, id)
	s.orderDirty = true
	return nil
}

// MoveLayer moves a layer below before, or to the top when before is empty.
func (s *Style) MoveLayer(id, before string) error {
	pos := slices.Index(s.order, id)
	if pos < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	if before != "" && !slices.Contains(s.order, before) {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, before)
	}
	if id == before {
		return nil
	}
	s.order = slices.Delete(s.order, pos, pos+1)
	to := len(s.order)
	if before != "" {
		to = slices.Index(s.order, before)
	}
	s.order = slices.Insert(s.order, to, id)
	s.orderDirty = true
	return nil
}

// SetPaintProperty queues a paint change. A nil value restores the default.
func (s *Style) SetPaintProperty(layerID, name string, value any) error {
	l, ok := s.layers[layerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, layerID)
	}
	var e Expression
	if value != nil {
		var err error
		if e, err = ParseExpression(name, value); err != nil {
			return fmt.Errorf("style: layer %q paint %s: %w", layerID, name, err)
		}
	}
	l.queuePaint(name, e, value)
	s.markDirty(layerID)
	return nil
}

// SetLayoutProperty queues a layout change. A nil value restores the
// default.
func (s *Style) SetLayoutProperty(layerID, name string, value any) error {
	l, ok := s.layers[layerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, layerID)
	}
	var e Expression
	if value != nil {
		var err error
		if e, err = ParseExpression(name, value); err != nil {
			return fmt.Errorf("style: layer %q layout %s: %w", layerID, name, err)
		}
	}
	l.queueLayout(name, e, value)
	s.markDirty(layerID)
	return nil
}

// SetVisibility shows or hides a layer.
func (s *Style) SetVisibility(layerID string, visible bool) error {
	v := "none"
	if visible {
		v = "visible"
	}
	return s.SetLayoutProperty(layerID, "visibility", v)
}

// SetLayerZoomRange sets the zoom range a layer is drawn in.
func (s *Style) SetLayerZoomRange(layerID string, minZoom, maxZoom float64) error {
	l, ok := s.layers[layerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, layerID)
	}
	l.spec.MinZoom, l.spec.MaxZoom = minZoom, maxZoom
	s.markDirty(layerID)
	return nil
}

// SetTransition sets the transition used by subsequent property changes.
func (s *Style) SetTransition(tr Transition) { s.transition = tr }

// Transition returns the default property transition.
func (s *Style) Transition() Transition { return s.transition }

// Layer returns the layer with the given ID, or nil.
func (s *Style) Layer(id string) *Layer { return s.layers[id] }

// Layers returns the layers of the last Update, bottom to top.
func (s *Style) Layers() []*Layer { return slices.Clone(s.frame) }

// Order returns the declared layer IDs bottom to top, including
// structural changes not yet applied by Update.
func (s *Style) Order() []string { return slices.Clone(s.order) }

// OrderVersion increases on each Update that follows an order change.
func (s *Style) OrderVersion() uint64 { return s.orderVersion }

// Dirty reports whether Update has queued work regardless of zoom.
func (s *Style) Dirty() bool {
	return s.orderDirty || len(s.dirty) > 0 || len(s.transitioning) > 0 || !s.evaluated
}

func (s *Style) markDirty(id string) { s.dirty[id] = struct{}{} }

// Update applies queued changes and recomputes property values for the
// frame. Layers are recomputed when they were mutated, are transitioning,
// or depend on zoom and the zoom changed. Source used flags are refreshed.
func (s *Style) Update(p EvaluationParameters) UpdateResult {
	var res UpdateResult
	if s.orderDirty {
		s.frame = s.frame[:0]
		for _, id := range s.order {
			s.frame = append(s.frame, s.layers[id])
		}
		s.orderVersion++
		s.orderDirty = false
		res.OrderChanged = true
	}
	zoomChanged := !s.evaluated || p.Zoom != s.zoom

	for _, id := range s.order {
		l := s.layers[id]
		_, dirty := s.dirty[id]
		_, active := s.transitioning[id]
		if l.applyPending(s.transition, p.Now) {
			dirty = true
		}
		if !dirty && !active && !(zoomChanged && l.zoomDependent()) && s.evaluated {
			continue
		}
		res.Recalculated++
		if l.evaluate(p.Zoom, p.Now) {
			s.transitioning[id] = struct{}{}
		} else {
			delete(s.transitioning, id)
		}
	}
	clear(s.dirty)
	res.Transitioning = len(s.transitioning) > 0

	for _, c := range s.sources {
		if c != nil {
			c.SetUsed(false)
		}
	}
	for _, id := range s.order {
		l := s.layers[id]
		if l.Source() == "" || l.IsHidden(p.Zoom) {
			continue
		}
		if c := s.Source(l.Source()); c != nil {
			c.SetUsed(true)
		}
	}

	s.zoom = p.Zoom
	s.evaluated = true
	return res
}

// Spec returns the current declaration of the style.
func (s *Style) Spec() Spec {
	spec := Spec{Transition: s.transition}
	for _, c := range s.Sources() {
		spec.Sources = append(spec.Sources, c.Spec())
	}
	for _, id := range s.order {
		spec.Layers = append(spec.Layers, s.layers[id].Spec())
	}
	return spec
}
