package gridindex

import "github.com/aukilabs/cellgrid/geometry"

// DebugInfo is a snapshot of a grid occupancy.
type DebugInfo struct {
	GridSize     geometry.Size `json:"grid_size"`
	CellSize     geometry.Size `json:"cell_size"`
	RowCount     int           `json:"row_count"`
	ColumnCount  int           `json:"column_count"`
	ElementCount int           `json:"element_count"`
	EntryCount   int           `json:"entry_count"`
	MaxOccupancy int           `json:"max_occupancy"`

	// Number of entries per cell, in row-major order.
	Occupancy []uint32 `json:"occupancy"`
}

func (g *Grid) DebugInfo() DebugInfo {
	info := DebugInfo{
		GridSize:     g.gridSize,
		CellSize:     g.cellSize,
		RowCount:     g.numRows,
		ColumnCount:  g.numColumns,
		ElementCount: g.handleLimit,
		Occupancy:    make([]uint32, len(g.cells)),
	}

	for i, cell := range g.cells {
		info.Occupancy[i] = uint32(len(cell))
		info.EntryCount += len(cell)
		info.MaxOccupancy = max(info.MaxOccupancy, len(cell))
	}
	return info
}
