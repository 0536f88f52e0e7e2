package models

import (
	"testing"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/stretchr/testify/require"
)

func TestEntityBounds(t *testing.T) {
	var e Entity

	r := geometry.NewRectangle(10, 20, 30, 40)
	e.SetBounds(r)
	require.Equal(t, r, e.Bounds())
}

func TestEntityToMessage(t *testing.T) {
	e := Entity{
		ID:            1,
		ParticipantID: 11,
		Kind:          "crate",
		bounds:        geometry.NewRectangle(1, 2, 3, 4),
	}

	m := e.ToMessage()
	require.Equal(t, e.ID, m.ID)
	require.Equal(t, e.ParticipantID, m.ParticipantID)
	require.Equal(t, e.Kind, m.Kind)
	require.Equal(t, e.bounds, m.Bounds)
}

func TestEntitiesToMessage(t *testing.T) {
	e := &Entity{
		ID:            1,
		ParticipantID: 11,
		bounds:        geometry.NewRectangle(1, 2, 3, 4),
	}

	entities := EntitiesToMessage([]*Entity{e})
	require.Len(t, entities, 1)
	require.Equal(t, e.ID, entities[0].ID)
	require.Equal(t, e.bounds, entities[0].Bounds)
}

func TestEntityIDs(t *testing.T) {
	ids := EntityIDs([]*Entity{{ID: 3}, {ID: 1}, {ID: 2}})
	require.Equal(t, []uint32{3, 1, 2}, ids)
}
