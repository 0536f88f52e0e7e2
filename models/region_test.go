package models

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestRegion(frameDuration time.Duration) *Region {
	return NewRegion(42, DefaultPresetName, RegionPreset{
		GridWidth:  64,
		GridHeight: 64,
		CellWidth:  32,
		CellHeight: 32,
	}, frameDuration)
}

func newTestEntity(r *Region, participantID uint32, bounds geometry.Rectangle) *Entity {
	e := &Entity{
		ID:            r.NewEntityID(),
		ParticipantID: participantID,
	}
	e.SetBounds(bounds)
	r.AddEntity(e)
	return e
}

func TestNewRegion(t *testing.T) {
	region := newTestRegion(time.Second)
	defer region.Close()

	require.NotEmpty(t, region.RegionUUID)
	require.Equal(t, geometry.NewSize(64, 64), region.GridSize)
	require.Equal(t, geometry.NewSize(32, 32), region.CellSize)
	require.Zero(t, region.Frame())
}

func TestRegionNewParticipantID(t *testing.T) {
	region := newTestRegion(time.Second)
	require.NotZero(t, region.NewParticipantID())
}

func TestRegionAddParticipant(t *testing.T) {
	participant := &Participant{ID: 777}
	region := newTestRegion(time.Second)

	region.AddParticipant(participant)
	require.Len(t, region.participants, 1)
	require.Equal(t, participant, region.participants[777])
}

func TestRegionRemoveParticipant(t *testing.T) {
	participant := &Participant{ID: 777}
	region := newTestRegion(time.Second)

	region.AddParticipant(participant)
	require.Equal(t, 1, region.ParticipantCount())

	region.RemoveParticipant(participant)
	require.Empty(t, region.participants)
	require.Zero(t, region.ParticipantCount())
}

func TestRegionGetParticipants(t *testing.T) {
	participant := &Participant{ID: 777}
	region := newTestRegion(time.Second)

	region.AddParticipant(participant)

	participants := region.GetParticipants()
	require.Len(t, participants, 1)
	require.Equal(t, participant, participants[0])
}

func TestRegionGetParticipantsByIDs(t *testing.T) {
	region := newTestRegion(time.Second)

	for i := 1; i <= 10; i++ {
		region.AddParticipant(&Participant{ID: uint32(i)})
	}

	participants := region.GetParticipantsByIDs(3, 7)
	require.Len(t, participants, 2)

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})

	require.Equal(t, uint32(3), participants[0].ID)
	require.Equal(t, uint32(7), participants[1].ID)
}

func TestRegionEntities(t *testing.T) {
	region := newTestRegion(time.Second)

	t.Run("entity is added", func(t *testing.T) {
		entity := &Entity{ID: 11}
		region.AddEntity(entity)
		require.Len(t, region.entities, 1)
		require.Equal(t, entity, region.entities[11])
	})

	t.Run("entity is returned", func(t *testing.T) {
		entity, ok := region.EntityByID(11)
		require.True(t, ok)
		require.Equal(t, uint32(11), entity.ID)
	})

	t.Run("entity is not returned", func(t *testing.T) {
		entity, ok := region.EntityByID(2)
		require.False(t, ok)
		require.Nil(t, entity)
	})

	t.Run("entities are sorted by id", func(t *testing.T) {
		region.AddEntity(&Entity{ID: 3})
		region.AddEntity(&Entity{ID: 7})

		require.Equal(t, []uint32{3, 7, 11}, EntityIDs(region.Entities()))
	})

	t.Run("entity is removed", func(t *testing.T) {
		region.RemoveEntity(&Entity{ID: 11})
		_, ok := region.EntityByID(11)
		require.False(t, ok)
		require.Len(t, region.Entities(), 2)
	})
}

func TestRegionModuleState(t *testing.T) {
	t.Run("module state is found", func(t *testing.T) {
		r := newTestRegion(time.Second)

		stateA := 42
		r.SetModuleState("testModule", stateA)

		stateB, ok := r.ModuleState("testModule")
		require.True(t, ok)
		require.Equal(t, stateA, stateB)
	})

	t.Run("module state is not found", func(t *testing.T) {
		r := newTestRegion(time.Second)

		state, ok := r.ModuleState("testModule")
		require.False(t, ok)
		require.Nil(t, state)
	})
}

func TestRegionBroadcast(t *testing.T) {
	t.Run("msg from participant A is broadcasted to participant B", func(t *testing.T) {
		var sendACalled bool
		participantA := &Participant{
			ID: 1,
			Responder: testResponseSender{
				sendMsg: func(_ protocol.Msg) {
					sendACalled = true
				},
			},
		}

		var received protocol.Msg
		participantB := &Participant{
			ID: 2,
			Responder: testResponseSender{
				sendMsg: func(msg protocol.Msg) {
					received = msg
				},
			},
		}

		region := newTestRegion(time.Second)
		region.AddParticipant(participantA)
		region.AddParticipant(participantB)

		region.Broadcast(participantA, &protocol.ParticipantJoinBroadcast{
			Header:        protocol.NewHeader(protocol.MsgTypeParticipantJoinBroadcast),
			ParticipantID: 1,
		})
		require.False(t, sendACalled)
		require.Equal(t, protocol.MsgTypeParticipantJoinBroadcast, received.Type)
	})
}

func TestRegionBroadcastTo(t *testing.T) {
	msg := &protocol.EntityDeleteBroadcast{
		Header:   protocol.NewHeader(protocol.MsgTypeEntityDeleteBroadcast),
		EntityID: 1,
	}

	t.Run("message is not broadcasted to sender", func(t *testing.T) {
		var sendACalled bool
		participantA := &Participant{
			ID: 1,
			Responder: testResponseSender{
				sendMsg: func(_ protocol.Msg) {
					sendACalled = true
				},
			},
		}

		region := newTestRegion(time.Second)
		region.AddParticipant(participantA)

		region.BroadcastTo(participantA, msg, participantA.ID)
		require.False(t, sendACalled)
	})

	t.Run("message is broadcasted to participant B once", func(t *testing.T) {
		var sendACalled bool
		participantA := &Participant{
			ID: 1,
			Responder: testResponseSender{
				sendMsg: func(_ protocol.Msg) {
					sendACalled = true
				},
			},
		}

		var sendBCalls int
		participantB := &Participant{
			ID: 2,
			Responder: testResponseSender{
				sendMsg: func(_ protocol.Msg) {
					sendBCalls++
				},
			},
		}

		region := newTestRegion(time.Second)
		region.AddParticipant(participantA)
		region.AddParticipant(participantB)

		region.BroadcastTo(participantA, msg,
			participantB.ID,
			participantB.ID,
			participantB.ID,
		)
		require.False(t, sendACalled)
		require.Equal(t, 1, sendBCalls)
	})

	t.Run("message to unknown participant is skipped", func(t *testing.T) {
		var sendACalled bool
		participantA := &Participant{
			ID: 1,
			Responder: testResponseSender{
				sendMsg: func(_ protocol.Msg) {
					sendACalled = true
				},
			},
		}

		region := newTestRegion(time.Second)
		region.AddParticipant(participantA)

		region.BroadcastTo(participantA, msg, 42)
		require.False(t, sendACalled)
	})
}

func TestRegionRebuild(t *testing.T) {
	region := newTestRegion(time.Second)
	a := newTestEntity(region, 1, geometry.NewRectangle(2, 2, 4, 4))
	b := newTestEntity(region, 2, geometry.NewRectangle(10, 10, 40, 40))

	t.Run("entities are not queryable before a rebuild", func(t *testing.T) {
		require.Empty(t, region.Query(geometry.NewRectangle(0, 0, 64, 64)))
	})

	t.Run("rebuild indexes entities", func(t *testing.T) {
		frame := region.Rebuild()
		require.Equal(t, uint64(1), frame.Number)
		require.Equal(t, []*Entity{a, b}, region.Query(geometry.NewRectangle(0, 0, 64, 64)))
		require.Equal(t, []*Entity{b}, region.Query(geometry.NewRectangle(40, 40, 10, 10)))
	})

	t.Run("bounds changes are applied at the next rebuild", func(t *testing.T) {
		a.SetBounds(geometry.NewRectangle(40, 2, 4, 4))
		require.Equal(t, []*Entity{a, b}, region.Query(geometry.NewRectangle(0, 0, 1, 1)))

		frame := region.Rebuild()
		require.Equal(t, uint64(2), frame.Number)
		require.Equal(t, []*Entity{b}, region.Query(geometry.NewRectangle(0, 0, 1, 1)))
		require.Equal(t, []*Entity{a, b}, region.Query(geometry.NewRectangle(34, 0, 1, 1)))
	})

	t.Run("removed entities are dropped at the next rebuild", func(t *testing.T) {
		region.RemoveEntity(b)
		region.Rebuild()
		require.Equal(t, []*Entity{a}, region.Query(geometry.NewRectangle(0, 0, 64, 64)))
		require.Equal(t, 1, region.DebugInfo().ElementCount)
	})
}

func TestRegionQueryOverlaps(t *testing.T) {
	region := newTestRegion(time.Second)
	a := newTestEntity(region, 1, geometry.NewRectangle(2, 2, 4, 4))
	b := newTestEntity(region, 1, geometry.NewRectangle(20, 20, 4, 4))
	region.Rebuild()

	require.Equal(t, []*Entity{a, b}, region.Query(geometry.NewRectangle(0, 0, 8, 8)))
	require.Equal(t, []*Entity{a}, region.QueryOverlaps(geometry.NewRectangle(0, 0, 8, 8)))
	require.Equal(t, []*Entity{b}, region.QueryOverlaps(geometry.NewRectangle(22, 22, 8, 8)))
	require.Empty(t, region.QueryOverlaps(geometry.NewRectangle(10, 10, 4, 4)))
}

func TestRegionCellEntities(t *testing.T) {
	region := newTestRegion(time.Second)
	a := newTestEntity(region, 1, geometry.NewRectangle(2, 2, 4, 4))
	b := newTestEntity(region, 1, geometry.NewRectangle(10, 10, 40, 40))
	region.Rebuild()

	t.Run("cell entities are returned", func(t *testing.T) {
		entities, err := region.CellEntities(0)
		require.NoError(t, err)
		require.Equal(t, []*Entity{a, b}, entities)

		entities, err = region.CellEntities(3)
		require.NoError(t, err)
		require.Equal(t, []*Entity{b}, entities)
	})

	t.Run("out of range cell index returns an error", func(t *testing.T) {
		for _, i := range []int{-1, 4, 100} {
			entities, err := region.CellEntities(i)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeCellIndexOutOfRange))
			require.Nil(t, entities)
		}
	})
}

func TestRegionOverlapPairs(t *testing.T) {
	region := newTestRegion(time.Second)
	a := newTestEntity(region, 1, geometry.NewRectangle(0, 0, 10, 10))
	b := newTestEntity(region, 2, geometry.NewRectangle(5, 5, 10, 10))
	c := newTestEntity(region, 2, geometry.NewRectangle(40, 40, 10, 10))
	d := newTestEntity(region, 3, geometry.NewRectangle(12, 12, 40, 40))
	newTestEntity(region, 3, geometry.NewRectangle(60, 0, 0, 0))

	frame := region.Rebuild()
	expected := []OverlapPair{
		{A: b, B: d},
		{A: c, B: d},
	}
	require.Equal(t, append([]OverlapPair{{A: a, B: b}}, expected...), frame.Overlaps)
	require.Equal(t, frame.Overlaps, region.OverlapPairs())

	t.Run("touching entities do not overlap", func(t *testing.T) {
		b.SetBounds(geometry.NewRectangle(10, 0, 2, 2))
		frame := region.Rebuild()
		require.Equal(t, expected[1:], frame.Overlaps)
	})

	t.Run("pair to message", func(t *testing.T) {
		require.Equal(t, protocol.OverlapPair{A: a.ID, B: b.ID}, OverlapPair{A: a, B: b}.ToMessage())
	})
}

func TestRegionHandleFrame(t *testing.T) {
	region := newTestRegion(time.Millisecond * 5)

	cancel := region.HandleFrame(func(Frame) {})
	require.Len(t, region.frameHandlers, 1)
	defer cancel()

	cancel()
	require.Empty(t, region.frameHandlers)
}

func TestRegionStartDispatchFrame(t *testing.T) {
	region := newTestRegion(time.Millisecond * 5)
	newTestEntity(region, 1, geometry.NewRectangle(0, 0, 10, 10))

	var wg sync.WaitGroup
	wg.Add(1)

	go region.StartDispatchFrames()

	var once sync.Once
	var frame Frame
	region.HandleFrame(func(f Frame) {
		once.Do(func() {
			frame = f
			wg.Done()
		})
	})

	wg.Wait()
	region.Close()

	require.NotZero(t, frame.Number)
	require.Len(t, region.Query(geometry.NewRectangle(0, 0, 1, 1)), 1)
}

func TestRegionStoreNewID(t *testing.T) {
	regions := RegionStore{}
	require.NotZero(t, regions.NewID())
}

func TestRegionStoreAdd(t *testing.T) {
	var regions RegionStore

	region := newTestRegion(time.Second)
	regions.Add(region)
	require.Equal(t, region, regions.regions[regions.GlobalRegionID(region.ID)])
	require.Equal(t, "cellgridx2a", regions.GlobalRegionID(region.ID))
}

func TestRegionStoreRemove(t *testing.T) {
	t.Run("region is successfully removed", func(t *testing.T) {
		var regions RegionStore

		region := newTestRegion(time.Second)
		regions.Add(region)
		require.Len(t, regions.regions, 1)

		regions.Remove(region)
		require.Empty(t, regions.regions)

		regions.Remove(region)
		require.Empty(t, regions.regions)
	})

	t.Run("region id is reused", func(t *testing.T) {
		regions := RegionStore{ServerID: "test"}

		regionID := regions.NewID()
		region := NewRegion(regionID, DefaultPresetName, RegionPreset{
			GridWidth:  10,
			GridHeight: 10,
			CellWidth:  5,
			CellHeight: 5,
		}, time.Second)
		regions.Add(region)
		require.Len(t, regions.regions, 1)

		regions.Remove(region)
		require.Empty(t, regions.regions)

		nextRegionID := regions.NewID()
		require.Equal(t, regionID, nextRegionID)
	})
}

func TestRegionStoreGetByGlobalID(t *testing.T) {
	var regions RegionStore

	t.Run("region is retrieved", func(t *testing.T) {
		region := newTestRegion(time.Second)
		regions.Add(region)

		res, ok := regions.GetByGlobalID(regions.GlobalRegionID(region.ID))
		require.True(t, ok)
		require.Equal(t, region, res)
	})

	t.Run("region is not retrieved", func(t *testing.T) {
		res, ok := regions.GetByGlobalID(regions.GlobalRegionID(84))
		require.False(t, ok)
		require.Nil(t, res)
	})
}

func TestRegionStoreList(t *testing.T) {
	var regions RegionStore

	for _, id := range []uint32{3, 1, 2} {
		regions.Add(NewRegion(id, DefaultPresetName, RegionPreset{
			GridWidth:  10,
			GridHeight: 10,
			CellWidth:  5,
			CellHeight: 5,
		}, time.Second))
	}

	list := regions.List()
	require.Len(t, list, 3)
	for i, r := range list {
		require.Equal(t, uint32(i+1), r.ID)
	}
}

type testResponseSender struct {
	send    func(protocol.Message)
	sendMsg func(protocol.Msg)
}

func (r testResponseSender) Send(m protocol.Message) {
	r.send(m)
}

func (r testResponseSender) SendMsg(msg protocol.Msg) {
	r.sendMsg(msg)
}
