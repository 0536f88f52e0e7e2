package models

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// The name of the preset used when a join request names none.
	DefaultPresetName = "default"

	// The maximum number of cells a region can have.
	MaxRegionCellCount = 1 << 20

	// The name given to regions sized explicitly by a join request.
	customPresetName = "custom"
)

// RegionPreset describes the dimensions of a region.
type RegionPreset struct {
	GridWidth  int `toml:"grid_width"`
	GridHeight int `toml:"grid_height"`
	CellWidth  int `toml:"cell_width"`
	CellHeight int `toml:"cell_height"`
}

// NewRegionPreset returns a preset with the given grid and cell sizes.
func NewRegionPreset(gridSize, cellSize geometry.Size) RegionPreset {
	return RegionPreset{
		GridWidth:  gridSize.Width,
		GridHeight: gridSize.Height,
		CellWidth:  cellSize.Width,
		CellHeight: cellSize.Height,
	}
}

func (p RegionPreset) GridSize() geometry.Size {
	return geometry.NewSize(p.GridWidth, p.GridHeight)
}

func (p RegionPreset) CellSize() geometry.Size {
	return geometry.NewSize(p.CellWidth, p.CellHeight)
}

// Validate reports whether a grid index can be created from the preset.
func (p RegionPreset) Validate() error {
	gridSize := p.GridSize()
	cellSize := p.CellSize()

	if !gridSize.IsPositive() || !cellSize.IsPositive() {
		return errors.New("region sizes must be positive").
			WithType(ErrTypeInvalidRegionSize).
			WithTag("grid_size", gridSize).
			WithTag("cell_size", cellSize)
	}

	rows := geometry.CeilDiv(gridSize.Height, cellSize.Height)
	columns := geometry.CeilDiv(gridSize.Width, cellSize.Width)
	if rows > MaxRegionCellCount/columns {
		return errors.New("region has too many cells").
			WithType(ErrTypeInvalidRegionSize).
			WithTag("rows", rows).
			WithTag("columns", columns).
			WithTag("max_cells", MaxRegionCellCount)
	}
	return nil
}

// RegionPresets contains region presets by name.
type RegionPresets map[string]RegionPreset

// LoadRegionPresets reads presets from a TOML file where each table is a
// named preset:
//
//	[arena]
//	grid_width = 1024
//	grid_height = 1024
//	cell_width = 32
//	cell_height = 32
func LoadRegionPresets(filename string) (RegionPresets, error) {
	var presets RegionPresets
	md, err := toml.DecodeFile(filename, &presets)
	if err != nil {
		return nil, errors.New("decoding region presets failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	if err := presets.validate(); err != nil {
		return nil, err
	}
	return presets, nil
}

// ParseRegionPresets parses presets from TOML data, in the format described
// in LoadRegionPresets.
func ParseRegionPresets(data string) (RegionPresets, error) {
	var presets RegionPresets
	md, err := toml.Decode(data, &presets)
	if err != nil {
		return nil, errors.New("decoding region presets failed").Wrap(err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	if err := presets.validate(); err != nil {
		return nil, err
	}
	return presets, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return errors.New("unknown region preset keys").
		WithType(ErrTypeInvalidRegionSize).
		WithTag("keys", strings.Join(keys, ","))
}

func (p RegionPresets) validate() error {
	for name, preset := range p {
		if err := preset.Validate(); err != nil {
			return errors.New("invalid region preset").
				WithTag("preset", name).
				Wrap(err)
		}
	}
	return nil
}

// Resolve returns the dimensions of a region to create along with the name
// of the preset they come from. Explicit sizes take precedence over the
// preset name. An empty name resolves to the default preset.
func (p RegionPresets) Resolve(name string, gridSize, cellSize *geometry.Size) (string, RegionPreset, error) {
	if gridSize != nil && cellSize != nil {
		preset := NewRegionPreset(*gridSize, *cellSize)
		return customPresetName, preset, preset.Validate()
	}

	if name == "" {
		name = DefaultPresetName
	}

	preset, ok := p[name]
	if !ok {
		return name, RegionPreset{}, errors.New("region preset not found").
			WithType(ErrTypePresetNotFound).
			WithTag("preset", name)
	}
	return name, preset, nil
}
