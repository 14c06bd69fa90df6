package style

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/gogpu/tilemap/source"
)

// Command names a style patch operation.
type Command string

const (
	CommandSetTransition     Command = "setTransition"
	CommandAddSource         Command = "addSource"
	CommandRemoveSource      Command = "removeSource"
	CommandUpdateSource      Command = "updateSource"
	CommandAddLayer          Command = "addLayer"
	CommandRemoveLayer       Command = "removeLayer"
	CommandMoveLayer         Command = "moveLayer"
	CommandSetPaintProperty  Command = "setPaintProperty"
	CommandSetLayoutProperty Command = "setLayoutProperty"
	CommandSetLayerZoomRange Command = "setLayerZoomRange"
)

// Operation is one step of a style patch. Fields are used according to
// Command.
type Operation struct {
	Command Command

	// ID is the layer or source the operation targets.
	ID     string
	Before string

	Source source.Spec
	Layer  LayerSpec

	Property string
	Value    any

	MinZoom, MaxZoom float64
	Transition       Transition
}

func (op Operation) supported() bool {
	switch op.Command {
	case CommandSetTransition, CommandAddSource, CommandRemoveSource,
		CommandAddLayer, CommandRemoveLayer, CommandMoveLayer,
		CommandSetPaintProperty, CommandSetLayoutProperty, CommandSetLayerZoomRange:
		return true
	}
	return false
}

// Diff returns the operations turning prev into next. A source whose
// declaration changed yields CommandUpdateSource, which ApplyOperations
// rejects.
func Diff(prev, next Spec) []Operation {
	var (
		ops          []Operation
		removeSource []Operation
	)
	if prev.Transition != next.Transition {
		ops = append(ops, Operation{Command: CommandSetTransition, Transition: next.Transition})
	}

	prevSources := make(map[string]source.Spec, len(prev.Sources))
	for _, s := range prev.Sources {
		prevSources[s.ID] = s
	}
	nextSources := make(map[string]bool, len(next.Sources))
	for _, s := range next.Sources {
		nextSources[s.ID] = true
		old, ok := prevSources[s.ID]
		switch {
		case !ok:
			ops = append(ops, Operation{Command: CommandAddSource, ID: s.ID, Source: s})
		case !sameSource(old, s):
			ops = append(ops, Operation{Command: CommandUpdateSource, ID: s.ID, Source: s})
		}
	}
	for _, s := range prev.Sources {
		if !nextSources[s.ID] {
			removeSource = append(removeSource, Operation{Command: CommandRemoveSource, ID: s.ID})
		}
	}

	prevLayers := make(map[string]LayerSpec, len(prev.Layers))
	for _, l := range prev.Layers {
		prevLayers[l.ID] = l
	}
	nextLayers := make(map[string]LayerSpec, len(next.Layers))
	for _, l := range next.Layers {
		nextLayers[l.ID] = l
	}

	cur := make([]string, 0, len(prev.Layers))
	for _, l := range prev.Layers {
		n, ok := nextLayers[l.ID]
		if !ok || !sameLayerIdentity(l, n) {
			ops = append(ops, Operation{Command: CommandRemoveLayer, ID: l.ID})
			continue
		}
		cur = append(cur, l.ID)
	}

	for i := len(next.Layers) - 1; i >= 0; i-- {
		l := next.Layers[i]
		before := ""
		if i+1 < len(next.Layers) {
			before = next.Layers[i+1].ID
		}
		pos := slices.Index(cur, l.ID)
		if pos < 0 {
			ops = append(ops, Operation{Command: CommandAddLayer, ID: l.ID, Layer: l, Before: before})
			cur = insertBefore(cur, l.ID, before)
			continue
		}
		curBefore := ""
		if pos+1 < len(cur) {
			curBefore = cur[pos+1]
		}
		if curBefore != before {
			ops = append(ops, Operation{Command: CommandMoveLayer, ID: l.ID, Before: before})
			cur = slices.Delete(cur, pos, pos+1)
			cur = insertBefore(cur, l.ID, before)
		}
	}

	for _, l := range next.Layers {
		old, ok := prevLayers[l.ID]
		if !ok || !sameLayerIdentity(old, l) {
			continue
		}
		if old.MinZoom != l.MinZoom || old.MaxZoom != l.MaxZoom {
			ops = append(ops, Operation{Command: CommandSetLayerZoomRange, ID: l.ID, MinZoom: l.MinZoom, MaxZoom: l.MaxZoom})
		}
		ops = append(ops, diffProperties(CommandSetLayoutProperty, l.ID, old.Layout, l.Layout)...)
		ops = append(ops, diffProperties(CommandSetPaintProperty, l.ID, old.Paint, l.Paint)...)
	}

	return append(ops, removeSource...)
}

func diffProperties(cmd Command, layerID string, before, after map[string]any) []Operation {
	var ops []Operation
	keys := slices.Sorted(maps.Keys(after))
	for _, k := range keys {
		if v, ok := before[k]; !ok || !reflect.DeepEqual(v, after[k]) {
			ops = append(ops, Operation{Command: cmd, ID: layerID, Property: k, Value: after[k]})
		}
	}
	for _, k := range slices.Sorted(maps.Keys(before)) {
		if _, ok := after[k]; !ok {
			ops = append(ops, Operation{Command: cmd, ID: layerID, Property: k})
		}
	}
	return ops
}

func sameSource(a, b source.Spec) bool {
	// Validate fills defaults; compare the filled forms.
	_ = a.Validate()
	_ = b.Validate()
	return a == b
}

func sameLayerIdentity(a, b LayerSpec) bool {
	return a.Type == b.Type && a.Source == b.Source && a.SourceLayer == b.SourceLayer &&
		sameCustom(a.Custom, b.Custom) && a.Custom3D == b.Custom3D
}

func sameCustom(a, b CustomLayer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	return a == b
}

func insertBefore(order []string, id, before string) []string {
	if before == "" {
		return append(order, id)
	}
	pos := slices.Index(order, before)
	if pos < 0 {
		return append(order, id)
	}
	return slices.Insert(order, pos, id)
}

// ApplyOperations applies a patch produced by Diff. The patch applies
// completely or not at all: if any operation is unsupported
// ErrUnsupportedOperation is returned and the caller rebuilds the style
// instead; if any operation fails the style is left unchanged.
func (s *Style) ApplyOperations(ops []Operation) error {
	for _, op := range ops {
		if !op.supported() {
			return fmt.Errorf("%w: %s %q", ErrUnsupportedOperation, op.Command, op.ID)
		}
	}
	// Rehearse on a tileless copy of the declaration first.
	scratch, err := New(s.Spec())
	if err != nil {
		return fmt.Errorf("style: current declaration: %w", err)
	}
	if err := scratch.apply(ops); err != nil {
		return err
	}
	return s.apply(ops)
}

func (s *Style) apply(ops []Operation) error {
	for _, op := range ops {
		var err error
		switch op.Command {
		case CommandSetTransition:
			s.SetTransition(op.Transition)
		case CommandAddSource:
			err = s.AddSource(op.Source)
		case CommandRemoveSource:
			err = s.RemoveSource(op.ID)
		case CommandAddLayer:
			err = s.AddLayer(op.Layer, op.Before)
		case CommandRemoveLayer:
			err = s.RemoveLayer(op.ID)
		case CommandMoveLayer:
			err = s.MoveLayer(op.ID, op.Before)
		case CommandSetPaintProperty:
			err = s.SetPaintProperty(op.ID, op.Property, op.Value)
		case CommandSetLayoutProperty:
			err = s.SetLayoutProperty(op.ID, op.Property, op.Value)
		case CommandSetLayerZoomRange:
			err = s.SetLayerZoomRange(op.ID, op.MinZoom, op.MaxZoom)
		}
		if err != nil {
			return fmt.Errorf("style: apply %s %q: %w", op.Command, op.ID, err)
		}
	}
	return nil
}
