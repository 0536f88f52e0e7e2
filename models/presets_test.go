package models

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testPresets = `
[default]
grid_width = 4096
grid_height = 4096
cell_width = 64
cell_height = 64

[arena]
grid_width = 1000
grid_height = 500
cell_width = 32
cell_height = 32
`

func TestRegionPresetValidate(t *testing.T) {
	tests := []struct {
		scenario string
		preset   RegionPreset
		err      bool
	}{
		{
			scenario: "valid preset",
			preset:   RegionPreset{GridWidth: 64, GridHeight: 64, CellWidth: 32, CellHeight: 32},
		},
		{
			scenario: "cell larger than grid",
			preset:   RegionPreset{GridWidth: 10, GridHeight: 10, CellWidth: 32, CellHeight: 32},
		},
		{
			scenario: "zero grid width",
			preset:   RegionPreset{GridWidth: 0, GridHeight: 64, CellWidth: 32, CellHeight: 32},
			err:      true,
		},
		{
			scenario: "negative cell height",
			preset:   RegionPreset{GridWidth: 64, GridHeight: 64, CellWidth: 32, CellHeight: -1},
			err:      true,
		},
		{
			scenario: "too many cells",
			preset:   RegionPreset{GridWidth: 1 << 20, GridHeight: 1 << 20, CellWidth: 1, CellHeight: 1},
			err:      true,
		},
		{
			scenario: "grid height at the int limit",
			preset:   RegionPreset{GridWidth: 1, GridHeight: math.MaxInt, CellWidth: 1, CellHeight: 2},
			err:      true,
		},
		{
			scenario: "grid width at the int limit",
			preset:   RegionPreset{GridWidth: math.MaxInt, GridHeight: 1, CellWidth: 3, CellHeight: 1},
			err:      true,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			err := test.preset.Validate()
			if test.err {
				require.Error(t, err)
				require.True(t, errors.IsType(err, ErrTypeInvalidRegionSize))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestParseRegionPresets(t *testing.T) {
	t.Run("presets are parsed", func(t *testing.T) {
		presets, err := ParseRegionPresets(testPresets)
		require.NoError(t, err)
		require.Len(t, presets, 2)

		arena := presets["arena"]
		require.Equal(t, geometry.NewSize(1000, 500), arena.GridSize())
		require.Equal(t, geometry.NewSize(32, 32), arena.CellSize())
	})

	t.Run("unknown key returns an error", func(t *testing.T) {
		_, err := ParseRegionPresets("[arena]\ngrid_widht = 10\n")
		require.Error(t, err)
	})

	t.Run("invalid preset returns an error", func(t *testing.T) {
		_, err := ParseRegionPresets("[arena]\ngrid_width = 10\ngrid_height = 10\n")
		require.Error(t, err)
	})

	t.Run("malformed toml returns an error", func(t *testing.T) {
		_, err := ParseRegionPresets("[arena")
		require.Error(t, err)
	})
}

func TestLoadRegionPresets(t *testing.T) {
	t.Run("presets are loaded", func(t *testing.T) {
		filename := filepath.Join(t.TempDir(), "presets.toml")
		err := os.WriteFile(filename, []byte(testPresets), 0o600)
		require.NoError(t, err)

		presets, err := LoadRegionPresets(filename)
		require.NoError(t, err)
		require.Contains(t, presets, DefaultPresetName)
		require.Contains(t, presets, "arena")
	})

	t.Run("missing file returns an error", func(t *testing.T) {
		_, err := LoadRegionPresets(filepath.Join(t.TempDir(), "missing.toml"))
		require.Error(t, err)
	})
}

func TestRegionPresetsResolve(t *testing.T) {
	presets, err := ParseRegionPresets(testPresets)
	require.NoError(t, err)

	t.Run("empty name resolves to the default preset", func(t *testing.T) {
		name, preset, err := presets.Resolve("", nil, nil)
		require.NoError(t, err)
		require.Equal(t, DefaultPresetName, name)
		require.Equal(t, geometry.NewSize(4096, 4096), preset.GridSize())
	})

	t.Run("named preset", func(t *testing.T) {
		name, preset, err := presets.Resolve("arena", nil, nil)
		require.NoError(t, err)
		require.Equal(t, "arena", name)
		require.Equal(t, geometry.NewSize(1000, 500), preset.GridSize())
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, _, err := presets.Resolve("moon", nil, nil)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypePresetNotFound))
	})

	t.Run("explicit sizes take precedence", func(t *testing.T) {
		gridSize := geometry.NewSize(100, 100)
		cellSize := geometry.NewSize(10, 10)

		name, preset, err := presets.Resolve("arena", &gridSize, &cellSize)
		require.NoError(t, err)
		require.Equal(t, "custom", name)
		require.Equal(t, gridSize, preset.GridSize())
		require.Equal(t, cellSize, preset.CellSize())
	})

	t.Run("invalid explicit sizes", func(t *testing.T) {
		gridSize := geometry.NewSize(100, 100)
		cellSize := geometry.NewSize(0, 10)

		_, _, err := presets.Resolve("", &gridSize, &cellSize)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidRegionSize))
	})

	t.Run("explicit sizes at the int limit", func(t *testing.T) {
		gridSize := geometry.NewSize(math.MaxInt, math.MaxInt)
		cellSize := geometry.NewSize(2, 2)

		_, _, err := presets.Resolve("", &gridSize, &cellSize)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidRegionSize))
	})
}
