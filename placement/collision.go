package placement

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultGridCell is the side of a collision grid cell in pixels.
const DefaultGridCell = 64

// DefaultViewportPadding extends the collision grid past the viewport so
// labels entering the screen collide with those just outside it.
const DefaultViewportPadding = 100

// CollisionIndex is a uniform grid of placed boxes in screen pixels. It
// covers the viewport plus padding; boxes are clipped to that area.
type CollisionIndex struct {
	viewport orb.Bound
	area     orb.Bound
	cell     float64
	cols     int
	rows     int
	cells    [][]int
	boxes    []orb.Bound
}

// NewCollisionIndex returns an empty index for a width x height viewport.
// cell <= 0 selects DefaultGridCell.
func NewCollisionIndex(width, height, padding, cell float64) *CollisionIndex {
	if cell <= 0 {
		cell = DefaultGridCell
	}
	if padding < 0 {
		padding = 0
	}
	viewport := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{width, height}}
	area := viewport.Pad(padding)
	cols := max(1, int(math.Ceil((area.Max[0]-area.Min[0])/cell)))
	rows := max(1, int(math.Ceil((area.Max[1]-area.Min[1])/cell)))
	return &CollisionIndex{
		viewport: viewport,
		area:     area,
		cell:     cell,
		cols:     cols,
		rows:     rows,
		cells:    make([][]int, cols*rows),
	}
}

// Len returns the number of inserted boxes.
func (c *CollisionIndex) Len() int { return len(c.boxes) }

// OnScreen reports whether box overlaps the viewport.
func (c *CollisionIndex) OnScreen(box orb.Bound) bool {
	return overlaps(box, c.viewport)
}

// Collides reports whether box overlaps an inserted box.
func (c *CollisionIndex) Collides(box orb.Bound) bool {
	found := false
	c.visit(box, func(cell int) bool {
		for _, i := range c.cells[cell] {
			if overlaps(box, c.boxes[i]) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// Insert adds box to the index. Boxes outside the covered area are
// dropped.
func (c *CollisionIndex) Insert(box orb.Bound) {
	if !overlaps(box, c.area) {
		return
	}
	i := len(c.boxes)
	c.boxes = append(c.boxes, box)
	c.visit(box, func(cell int) bool {
		c.cells[cell] = append(c.cells[cell], i)
		return true
	})
}

// visit calls fn for each cell box touches until fn returns false.
func (c *CollisionIndex) visit(box orb.Bound, fn func(cell int) bool) {
	x0, y0 := c.cellOf(box.Min)
	x1, y1 := c.cellOf(box.Max)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !fn(y*c.cols + x) {
				return
			}
		}
	}
}

func (c *CollisionIndex) cellOf(p orb.Point) (int, int) {
	x := int((p[0] - c.area.Min[0]) / c.cell)
	y := int((p[1] - c.area.Min[1]) / c.cell)
	return min(max(x, 0), c.cols-1), min(max(y, 0), c.rows-1)
}

// overlaps is a strict intersection test: boxes that only share an edge
// do not collide.
func overlaps(a, b orb.Bound) bool {
	return a.Min[0] < b.Max[0] && b.Min[0] < a.Max[0] &&
		a.Min[1] < b.Max[1] && b.Min[1] < a.Max[1]
}
