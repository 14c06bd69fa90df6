// Package style is the layer and source order model of a map.
//
// A [Style] owns the ordered layer list (bottom to top) and one
// [source.Cache] per source. Paint and layout properties are constants or
// zoom functions; paint changes blend in over the style's [Transition].
//
// Changes made between frames are applied together by [Style.Update],
// which also re-evaluates properties for the frame's zoom and marks which
// sources are used by visible layers. [Diff] and [Style.ApplyOperations]
// patch a live style to match a new document; a patch that cannot be
// applied reports [ErrUnsupportedOperation] and the caller rebuilds.
package style
