package overlap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateSubscribe(t *testing.T) {
	var s State

	require.False(t, s.IsSubscribed(42))

	s.Subscribe(42)
	s.Subscribe(42)
	require.True(t, s.IsSubscribed(42))
	require.Equal(t, 1, s.SubscriberCount())

	s.Unsubscribe(42)
	require.False(t, s.IsSubscribed(42))
	require.Zero(t, s.SubscriberCount())
}
