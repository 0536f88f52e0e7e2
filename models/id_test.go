package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequentialIDGeneratorNew(t *testing.T) {
	t.Run("returns a new id", func(t *testing.T) {
		var idGen SequentialIDGenerator

		for i := 1; i <= 5; i++ {
			id := idGen.New()
			require.Equal(t, uint32(i), id)
		}
	})

	t.Run("returns a reusable id", func(t *testing.T) {
		var idGen SequentialIDGenerator

		for i := 1; i <= 5; i++ {
			idGen.New()
		}

		idGen.Reuse(2)
		id := idGen.New()
		require.Equal(t, uint32(2), id)
		require.Equal(t, uint32(6), idGen.New())
	})

	t.Run("returns the lowest reusable id first", func(t *testing.T) {
		var idGen SequentialIDGenerator

		for i := 1; i <= 5; i++ {
			idGen.New()
		}

		idGen.Reuse(4)
		idGen.Reuse(1)
		idGen.Reuse(3)
		idGen.Reuse(1)

		require.Equal(t, uint32(1), idGen.New())
		require.Equal(t, uint32(3), idGen.New())
		require.Equal(t, uint32(4), idGen.New())
		require.Equal(t, uint32(6), idGen.New())
	})

	t.Run("unknown ids are not reused", func(t *testing.T) {
		var idGen SequentialIDGenerator

		idGen.New()
		idGen.Reuse(0)
		idGen.Reuse(42)

		require.Equal(t, uint32(2), idGen.New())
	})
}
