package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"feature1", " disable_overlap_events ", ""})

	t.Run("run if enabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.True(t, runFeature1)

		var runFeature2 bool
		f.IfSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.False(t, runFeature2)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfNotSet("FEATURE1", func() {
			runFeature1 = true
		})
		require.False(t, runFeature1)

		var runFeature2 bool
		f.IfNotSet("FEATURE2", func() {
			runFeature2 = true
		})
		require.True(t, runFeature2)
	})

	t.Run("flags are normalized", func(t *testing.T) {
		require.True(t, f.IsSet(FlagDisableOverlapEvents))
		require.Len(t, f, 2)
	})

	t.Run("unknown flags", func(t *testing.T) {
		require.Equal(t, []string{"FEATURE1"}, f.Unknown())
		require.Empty(t, New([]string{string(FlagDisableRegionState)}).Unknown())
	})
}
