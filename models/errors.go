package models

const (
	ErrTypeCellIndexOutOfRange = "cell_index_out_of_range"
	ErrTypePresetNotFound      = "region_preset_not_found"
	ErrTypeInvalidRegionSize   = "invalid_region_size"
)
