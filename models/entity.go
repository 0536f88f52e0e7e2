package models

import (
	"sync"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/cellgrid/protocol"
)

// Entity is an axis-aligned object placed in a region by a participant.
type Entity struct {
	ID            uint32
	ParticipantID uint32

	// A free form label set by the client, such as "player" or "wall".
	Kind string

	mutex  sync.RWMutex
	bounds geometry.Rectangle
}

func (e *Entity) SetBounds(v geometry.Rectangle) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.bounds = v
}

func (e *Entity) Bounds() geometry.Rectangle {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.bounds
}

func (e *Entity) ToMessage() protocol.Entity {
	return protocol.Entity{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		Kind:          e.Kind,
		Bounds:        e.Bounds(),
	}
}

func EntitiesToMessage(entities []*Entity) []protocol.Entity {
	res := make([]protocol.Entity, len(entities))
	for i, e := range entities {
		res[i] = e.ToMessage()
	}
	return res
}

// EntityIDs returns the ids of the given entities, in the same order.
func EntityIDs(entities []*Entity) []uint32 {
	ids := make([]uint32, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	return ids
}
