package gridindex

import (
	"iter"

	"github.com/aukilabs/cellgrid/geometry"
)

// Index is a grid index over elements of type T. Elements are interned in an
// arena and the grid cells store their handles. Two Add calls with the same
// element, as compared with ==, refer to the same element in queries.
//
// Index holds references to elements but never owns them. Clear drops every
// reference.
type Index[T comparable] struct {
	grid    *Grid
	arena   *Arena[T]
	handles []Handle
}

// NewIndex creates an index covering gridSize with cells of cellSize. It
// panics when a dimension of gridSize or cellSize is not positive.
func NewIndex[T comparable](gridSize, cellSize geometry.Size) *Index[T] {
	grid := New(gridSize, cellSize)

	return &Index[T]{
		grid:  grid,
		arena: NewArena[T](grid.CellCount()),
	}
}

// Grid returns the underlying handle grid.
func (idx *Index[T]) Grid() *Grid {
	return idx.grid
}

// Arena returns the arena holding the indexed elements.
func (idx *Index[T]) Arena() *Arena[T] {
	return idx.arena
}

func (idx *Index[T]) GridSize() geometry.Size {
	return idx.grid.GridSize()
}

func (idx *Index[T]) CellSize() geometry.Size {
	return idx.grid.CellSize()
}

func (idx *Index[T]) NumRows() int {
	return idx.grid.NumRows()
}

func (idx *Index[T]) NumColumns() int {
	return idx.grid.NumColumns()
}

func (idx *Index[T]) CellCount() int {
	return idx.grid.CellCount()
}

// Len returns the number of distinct elements added since the last clear.
func (idx *Index[T]) Len() int {
	return idx.arena.Len()
}

// Clear removes every element from every cell.
func (idx *Index[T]) Clear() {
	idx.grid.Clear()
	idx.arena.Reset()
	idx.handles = idx.handles[:0]
}

// Add stores the element in every cell covered by rect. Degenerate
// rectangles and rectangles outside the grid are ignored and the element is
// not retained.
func (idx *Index[T]) Add(element T, rect geometry.Rectangle) {
	rows, columns, ok := idx.grid.CellRange(rect)
	if !ok {
		return
	}
	idx.grid.add(idx.arena.Intern(element), rows, columns)
}

// Elements returns the elements stored in the cell at the given linear index.
// The sequence is only valid until the next Clear. It panics when cellIndex
// is not in [0, CellCount()).
func (idx *Index[T]) Elements(cellIndex int) iter.Seq[T] {
	handles := idx.grid.Cell(cellIndex)
	arena := idx.arena

	return func(yield func(T) bool) {
		for h := range handles {
			if !yield(arena.Get(h)) {
				return
			}
		}
	}
}

// Region appends to out every element stored in the cells covered by rect and
// returns the extended slice. Each element is appended once, in the order it
// is first encountered when scanning the cells row by row. Existing elements
// of out are kept.
func (idx *Index[T]) Region(rect geometry.Rectangle, out []T) []T {
	idx.handles = idx.grid.Query(rect, idx.handles[:0])
	for _, h := range idx.handles {
		out = append(out, idx.arena.Get(h))
	}
	return out
}

func (idx *Index[T]) DebugInfo() DebugInfo {
	info := idx.grid.DebugInfo()
	info.ElementCount = idx.arena.Len()
	return info
}
