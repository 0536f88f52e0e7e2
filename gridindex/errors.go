package gridindex

// Error types attached to the panics raised on precondition violations.
const (
	ErrTypeInvalidConfig    = "gridindex_invalid_config"
	ErrTypeInvalidCellIndex = "gridindex_invalid_cell_index"
)
