// Package placement decides which labels are shown and how they fade.
//
// Placement runs as a pass over the symbol layers of a style, in style
// order, one tile bucket at a time. A Scheduler advances the running pass
// by one step per frame and yields when the step's Deadline is reached,
// resuming at the same bucket on the next frame. Only a finished pass is
// visible: it commits an immutable Result with a single atomic store.
//
// Labels are matched across tiles and zoom levels by a CrossTileIndex, so
// a label keeps its fade state when a tile is replaced by its parent or
// children.
package placement
