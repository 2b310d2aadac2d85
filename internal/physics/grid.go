package physics

import "math"

// grid is the broadphase: a uniform cell grid keyed by cell coordinates.
// A record sits in every cell its AABB touches; records spanning more than
// maxCellsPerRecord cells (large tilemaps) are kept in an oversized set that
// is paired with everything.
// Accessed only from the game loop goroutine, no locks.

const (
	defaultCellSize   = 4
	maxCellsPerRecord = 64
)

type cellKey struct {
	cx int32
	cy int32
}

// cellSpan is the inclusive range of cells an AABB covers.
type cellSpan struct {
	min, max cellKey
}

func (s cellSpan) count() int {
	return int(s.max.cx-s.min.cx+1) * int(s.max.cy-s.min.cy+1)
}

type grid struct {
	size      float32
	cells     map[cellKey]map[*record]struct{}
	oversized map[*record]struct{}
}

func newGrid(size float32) *grid {
	if size <= 0 {
		size = defaultCellSize
	}
	return &grid{
		size:      size,
		cells:     make(map[cellKey]map[*record]struct{}),
		oversized: make(map[*record]struct{}),
	}
}

func (g *grid) toCellCoord(v float32) int32 {
	return int32(math.Floor(float64(v / g.size)))
}

func (g *grid) span(b AABB) cellSpan {
	return cellSpan{
		min: cellKey{cx: g.toCellCoord(b.Min.X()), cy: g.toCellCoord(b.Min.Y())},
		max: cellKey{cx: g.toCellCoord(b.Max.X()), cy: g.toCellCoord(b.Max.Y())},
	}
}

// Add places r into the grid using r.bounds.
func (g *grid) Add(r *record) {
	r.span = g.span(r.bounds)
	if r.span.count() > maxCellsPerRecord {
		g.oversized[r] = struct{}{}
		return
	}
	for cy := r.span.min.cy; cy <= r.span.max.cy; cy++ {
		for cx := r.span.min.cx; cx <= r.span.max.cx; cx++ {
			k := cellKey{cx: cx, cy: cy}
			cell := g.cells[k]
			if cell == nil {
				cell = make(map[*record]struct{})
				g.cells[k] = cell
			}
			cell[r] = struct{}{}
		}
	}
}

// Remove takes r out of the grid.
func (g *grid) Remove(r *record) {
	if _, ok := g.oversized[r]; ok {
		delete(g.oversized, r)
		return
	}
	for cy := r.span.min.cy; cy <= r.span.max.cy; cy++ {
		for cx := r.span.min.cx; cx <= r.span.max.cx; cx++ {
			k := cellKey{cx: cx, cy: cy}
			if cell := g.cells[k]; cell != nil {
				delete(cell, r)
				if len(cell) == 0 {
					delete(g.cells, k)
				}
			}
		}
	}
}

// Move re-files r after its bounds changed.
func (g *grid) Move(r *record, bounds AABB) {
	r.bounds = bounds
	if _, big := g.oversized[r]; !big && g.span(bounds) == r.span {
		return
	}
	g.Remove(r)
	g.Add(r)
}

// Nearby calls fn for every record sharing a cell with r, plus every
// oversized record. A record may be reported more than once; callers dedupe.
func (g *grid) Nearby(r *record, fn func(*record)) {
	if _, big := g.oversized[r]; big {
		for cell := range g.cells {
			for other := range g.cells[cell] {
				fn(other)
			}
		}
	} else {
		for cy := r.span.min.cy; cy <= r.span.max.cy; cy++ {
			for cx := r.span.min.cx; cx <= r.span.max.cx; cx++ {
				for other := range g.cells[cellKey{cx: cx, cy: cy}] {
					fn(other)
				}
			}
		}
	}
	for other := range g.oversized {
		fn(other)
	}
}
