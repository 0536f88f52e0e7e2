package models

import (
	"slices"
	"sync"
)

// A sequential id generator.
type SequentialIDGenerator struct {
	mutex     sync.Mutex
	currentID uint32

	// Sorted in ascending order.
	reusableIDs []uint32
}

// New returns a sequential id. The lowest reusable id is returned first.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusableIDs) != 0 {
		id := g.reusableIDs[0]
		g.reusableIDs = slices.Delete(g.reusableIDs, 0, 1)
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Reusable ids are returned in priority
// when using New. Ids that were never generated are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	i, found := slices.BinarySearch(g.reusableIDs, id)
	if found {
		return
	}
	g.reusableIDs = slices.Insert(g.reusableIDs, i, id)
}
