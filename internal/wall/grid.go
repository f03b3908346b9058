// Package wall lays photos out on a display.
//
// Each connected display gets a Session. The session owns a Grid: a set of
// occupied cells sized from the display's viewport, plus the placement
// history that drives eviction. Nothing in here renders anything; a session
// produces Instructions ("put ref R at row r, col c", "take ref R down") and
// the transport forwards them to the display.
//
// The building blocks are pure functions so they can be tested without a
// display: DimensionsFor, Capacity, ChooseFreeCell and EvictOldest.
package wall

import "math"

// Cell is one slot of the grid.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Dimensions is the grid size in cells.
type Dimensions struct {
	Rows int
	Cols int
}

// Total returns the number of cells.
func (d Dimensions) Total() int { return d.Rows * d.Cols }

// DimensionsFor fits cells of cellW x cellH into a viewport. A viewport
// smaller than one cell still gets a 1x1 grid so the display is never empty.
func DimensionsFor(width, height, cellW, cellH int) Dimensions {
	d := Dimensions{Rows: 1, Cols: 1}
	if cellW > 0 && width/cellW > 1 {
		d.Cols = width / cellW
	}
	if cellH > 0 && height/cellH > 1 {
		d.Rows = height / cellH
	}
	return d
}

// Capacity is how many photos a grid of d shows at once: fraction of the
// cells, rounded down, but never less than one.
func Capacity(d Dimensions, fraction float64) int {
	total := d.Total()
	if total <= 0 {
		return 0
	}
	// The epsilon keeps 10 * 0.8 at 8 despite float representation.
	c := int(math.Floor(float64(total)*fraction + 1e-9))
	if c < 1 {
		return 1
	}
	if c > total {
		return total
	}
	return c
}

// ChooseFreeCell picks uniformly at random among the cells of d that are not
// in occupied. intn(n) must return a value in [0, n). ok is false when every
// cell is taken.
func ChooseFreeCell(occupied map[Cell]string, d Dimensions, intn func(int) int) (cell Cell, ok bool) {
	free := make([]Cell, 0, d.Total())
	for r := 0; r < d.Rows; r++ {
		for c := 0; c < d.Cols; c++ {
			cell := Cell{Row: r, Col: c}
			if _, taken := occupied[cell]; !taken {
				free = append(free, cell)
			}
		}
	}
	if len(free) == 0 {
		return Cell{}, false
	}
	return free[intn(len(free))], true
}

// Placement is one photo on the grid.
type Placement struct {
	ContentRef string
	Caption    string
	Cell       Cell
}

// EvictOldest trims placements, oldest first, until at most capacity remain.
// placements must be in placement order.
func EvictOldest(placements []Placement, capacity int) (kept, evicted []Placement) {
	if capacity < 0 {
		capacity = 0
	}
	if len(placements) <= capacity {
		return placements, nil
	}
	n := len(placements) - capacity
	return placements[n:], placements[:n]
}

// Grid is one display's occupancy state. Not safe for concurrent use; a
// Session drives it from a single goroutine.
type Grid struct {
	dims     Dimensions
	fraction float64
	capacity int
	intn     func(int) int

	occupied map[Cell]string // cell -> content ref
	order    []Placement     // oldest first
	placed   map[string]Cell // dedup set: content ref -> cell
}

// NewGrid creates an empty grid.
func NewGrid(d Dimensions, fraction float64, intn func(int) int) *Grid {
	return &Grid{
		dims:     d,
		fraction: fraction,
		capacity: Capacity(d, fraction),
		intn:     intn,
		occupied: make(map[Cell]string),
		placed:   make(map[string]Cell),
	}
}

// Place puts ref on a random free cell and evicts the oldest placements if
// that takes the grid over capacity.
//
// placed is nil when ref is already on the grid or no cell is free; both are
// silent no-ops.
func (g *Grid) Place(ref, caption string) (placed *Placement, evicted []Placement) {
	if _, dup := g.placed[ref]; dup {
		return nil, nil
	}
	cell, ok := ChooseFreeCell(g.occupied, g.dims, g.intn)
	if !ok {
		return nil, nil
	}

	p := Placement{ContentRef: ref, Caption: caption, Cell: cell}
	g.occupied[cell] = ref
	g.placed[ref] = cell
	g.order = append(g.order, p)

	kept, evicted := EvictOldest(g.order, g.capacity)
	for _, e := range evicted {
		delete(g.occupied, e.Cell)
		delete(g.placed, e.ContentRef)
	}
	// Copy so the backing array does not grow without bound.
	g.order = append([]Placement(nil), kept...)

	return &p, evicted
}

// Resize changes the dimensions used for future placements. Existing
// placements stay where they are, even outside the new bounds.
func (g *Grid) Resize(d Dimensions) {
	g.dims = d
	g.capacity = Capacity(d, g.fraction)
}

// Has reports whether ref is currently placed.
func (g *Grid) Has(ref string) bool {
	_, ok := g.placed[ref]
	return ok
}

// Len is the number of photos on the grid.
func (g *Grid) Len() int { return len(g.order) }

// Free is the number of unoccupied cells inside the current dimensions.
func (g *Grid) Free() int {
	n := 0
	for cell := range g.occupied {
		if cell.Row < g.dims.Rows && cell.Col < g.dims.Cols {
			n++
		}
	}
	return g.dims.Total() - n
}

// Capacity is the current capacity bound.
func (g *Grid) Capacity() int { return g.capacity }

// Dimensions returns the current grid size.
func (g *Grid) Dimensions() Dimensions { return g.dims }

// Placements returns the placements, oldest first.
func (g *Grid) Placements() []Placement {
	return append([]Placement(nil), g.order...)
}
