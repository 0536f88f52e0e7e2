// Package gridindex implements a uniform 2D grid that buckets elements by
// axis-aligned cell and answers deduplicated rectangle-region queries.
//
// A grid is meant to be cleared and rebuilt once per frame by its owner and
// queried during that same frame. It has no internal locking: every method,
// queries included, must be called from a single goroutine at a time.
package gridindex

import (
	"iter"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Span is an inclusive range of rows or columns.
type Span struct {
	First int
	Last  int
}

func (s Span) Len() int {
	return s.Last - s.First + 1
}

// Grid is a fixed-size grid of cells stored in row-major order. Each cell
// holds the handles of the elements whose rectangle covers it. An element
// spanning several cells is stored once per cell.
type Grid struct {
	gridSize   geometry.Size
	cellSize   geometry.Size
	numRows    int
	numColumns int
	cells      [][]Handle

	// One past the highest handle added since the last clear.
	handleLimit int
	visited     visitedSet
}

// New creates a grid covering gridSize, subdivided in cells of cellSize. Row
// and column counts are rounded up so a partial trailing cell is still
// allocated.
//
// It panics when a dimension of gridSize or cellSize is not positive.
func New(gridSize, cellSize geometry.Size) *Grid {
	if !gridSize.IsPositive() {
		panic(errors.New("grid size must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("width", gridSize.Width).
			WithTag("height", gridSize.Height))
	}
	if !cellSize.IsPositive() {
		panic(errors.New("cell size must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("width", cellSize.Width).
			WithTag("height", cellSize.Height))
	}

	numRows := geometry.CeilDiv(gridSize.Height, cellSize.Height)
	numColumns := geometry.CeilDiv(gridSize.Width, cellSize.Width)

	cells := make([][]Handle, numRows*numColumns)
	for i := range cells {
		cells[i] = make([]Handle, 0, 4)
	}

	return &Grid{
		gridSize:   gridSize,
		cellSize:   cellSize,
		numRows:    numRows,
		numColumns: numColumns,
		cells:      cells,
	}
}

func (g *Grid) GridSize() geometry.Size {
	return g.gridSize
}

func (g *Grid) CellSize() geometry.Size {
	return g.cellSize
}

func (g *Grid) NumRows() int {
	return g.numRows
}

func (g *Grid) NumColumns() int {
	return g.numColumns
}

// CellCount returns the number of cells, numRows * numColumns.
func (g *Grid) CellCount() int {
	return len(g.cells)
}

// CellIndex returns the linear index of the cell at the given row and column.
func (g *Grid) CellIndex(row, column int) int {
	return row*g.numColumns + column
}

// Clear empties every cell. Cell capacity is kept for the next rebuild.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.handleLimit = 0
}

// CellRange returns the rows and columns covered by rect, clipped to the
// grid. The covered range goes from the cell containing the rectangle origin
// to the cell containing its far edge, (x+width, y+height). ok is false when
// the range is inverted or lies entirely outside the grid.
func (g *Grid) CellRange(rect geometry.Rectangle) (rows, columns Span, ok bool) {
	row1 := geometry.FloorDiv(rect.Y, g.cellSize.Height)
	row2 := geometry.FloorDiv(rect.Bottom(), g.cellSize.Height)
	col1 := geometry.FloorDiv(rect.X, g.cellSize.Width)
	col2 := geometry.FloorDiv(rect.Right(), g.cellSize.Width)
	if row1 > row2 || col1 > col2 {
		return Span{}, Span{}, false
	}

	rows = Span{First: max(row1, 0), Last: min(row2, g.numRows-1)}
	columns = Span{First: max(col1, 0), Last: min(col2, g.numColumns-1)}
	if rows.First > rows.Last || columns.First > columns.Last {
		return Span{}, Span{}, false
	}
	return rows, columns, true
}

// Add appends the handle to every cell covered by rect. Degenerate
// rectangles and rectangles outside the grid are ignored.
func (g *Grid) Add(h Handle, rect geometry.Rectangle) {
	rows, columns, ok := g.CellRange(rect)
	if !ok {
		return
	}
	g.add(h, rows, columns)
}

func (g *Grid) add(h Handle, rows, columns Span) {
	if int(h) >= g.handleLimit {
		g.handleLimit = int(h) + 1
	}

	for row := rows.First; row <= rows.Last; row++ {
		base := row * g.numColumns
		for col := columns.First; col <= columns.Last; col++ {
			g.cells[base+col] = append(g.cells[base+col], h)
		}
	}
}

// Cell returns the handles stored in the cell at the given linear index, in
// insertion order. The sequence can be iterated several times but is only
// valid until the next Clear, which reuses the cell storage.
//
// It panics when cellIndex is not in [0, CellCount()).
func (g *Grid) Cell(cellIndex int) iter.Seq[Handle] {
	cell := g.cell(cellIndex)

	return func(yield func(Handle) bool) {
		for _, h := range cell {
			if !yield(h) {
				return
			}
		}
	}
}

// CellLen returns the number of handles in the cell at the given linear
// index. It panics when cellIndex is not in [0, CellCount()).
func (g *Grid) CellLen(cellIndex int) int {
	return len(g.cell(cellIndex))
}

func (g *Grid) cell(cellIndex int) []Handle {
	if cellIndex < 0 || cellIndex >= len(g.cells) {
		panic(errors.New("cell index out of range").
			WithType(ErrTypeInvalidCellIndex).
			WithTag("cell_index", cellIndex).
			WithTag("cell_count", len(g.cells)))
	}
	return g.cells[cellIndex]
}

// Query appends to out the handles stored in the cells covered by rect and
// returns the extended slice. Cells are scanned in row-major order and every
// handle is appended once, the first time it is encountered. Existing
// elements of out are kept.
func (g *Grid) Query(rect geometry.Rectangle, out []Handle) []Handle {
	rows, columns, ok := g.CellRange(rect)
	if !ok {
		return out
	}

	g.visited.begin(g.handleLimit)
	for row := rows.First; row <= rows.Last; row++ {
		base := row * g.numColumns
		for col := columns.First; col <= columns.Last; col++ {
			for _, h := range g.cells[base+col] {
				if g.visited.visit(h) {
					out = append(out, h)
				}
			}
		}
	}
	return out
}
