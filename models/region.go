package models

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/cellgrid/gridindex"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

// Frame describes the state of a region grid index after a rebuild.
type Frame struct {
	Number   uint64
	Overlaps []OverlapPair
}

// OverlapPair is a pair of entities whose bounds intersect. A always has the
// lowest id.
type OverlapPair struct {
	A *Entity
	B *Entity
}

func (p OverlapPair) ToMessage() protocol.OverlapPair {
	return protocol.OverlapPair{
		A: p.A.ID,
		B: p.B.ID,
	}
}

// Region represents a 2D space where participants place entities. Entities
// are indexed in a grid that is rebuilt at every frame. Queries see the
// entities as they were at the last rebuild.
type Region struct {
	ID         uint32
	RegionUUID string
	Preset     string
	GridSize   geometry.Size
	CellSize   geometry.Size

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	entityIDs   SequentialIDGenerator
	entityMutex sync.RWMutex
	entities    map[uint32]*Entity

	moduleStates map[string]any
	moduleMutex  sync.RWMutex

	indexMutex  sync.Mutex
	index       *gridindex.Index[*Entity]
	frameBounds map[*Entity]geometry.Rectangle
	frame       uint64
	overlaps    []OverlapPair
	candidates  []*Entity

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func(Frame)
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

// NewRegion creates a region with the dimensions of the given preset. The
// preset must be valid.
func NewRegion(id uint32, presetName string, preset RegionPreset, frameDuration time.Duration) *Region {
	gridSize := preset.GridSize()
	cellSize := preset.CellSize()

	return &Region{
		ID:             id,
		RegionUUID:     uuid.New().String(),
		Preset:         presetName,
		GridSize:       gridSize,
		CellSize:       cellSize,
		participants:   make(map[uint32]*Participant),
		entities:       make(map[uint32]*Entity),
		moduleStates:   make(map[string]any),
		index:          gridindex.NewIndex[*Entity](gridSize, cellSize),
		frameBounds:    make(map[*Entity]geometry.Rectangle),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func(Frame)),
	}
}

func (r *Region) Close() {
	r.closeOnce.Do(func() {
		r.frameTicker.Stop()
		r.closeFrameChan <- struct{}{}
	})
}

func (r *Region) NewParticipantID() uint32 {
	return r.participantIDs.New()
}

func (r *Region) AddParticipant(p *Participant) {
	r.participantMutex.Lock()
	defer r.participantMutex.Unlock()

	r.participants[p.ID] = p
}

func (r *Region) RemoveParticipant(p *Participant) {
	r.participantMutex.Lock()
	defer r.participantMutex.Unlock()

	delete(r.participants, p.ID)
}

func (r *Region) GetParticipants() []*Participant {
	r.participantMutex.RLock()
	defer r.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p)
	}
	return participants
}

func (r *Region) GetParticipantsByIDs(ids ...uint32) []*Participant {
	r.participantMutex.RLock()
	defer r.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		p, ok := r.participants[id]
		if ok {
			participants = append(participants, p)
		}
	}
	return participants
}

func (r *Region) ParticipantCount() int {
	r.participantMutex.RLock()
	defer r.participantMutex.RUnlock()

	return len(r.participants)
}

func (r *Region) NewEntityID() uint32 {
	return r.entityIDs.New()
}

func (r *Region) AddEntity(e *Entity) {
	r.entityMutex.Lock()
	defer r.entityMutex.Unlock()

	r.entities[e.ID] = e
}

func (r *Region) RemoveEntity(e *Entity) {
	r.entityMutex.Lock()
	defer r.entityMutex.Unlock()

	delete(r.entities, e.ID)
}

func (r *Region) EntityByID(id uint32) (*Entity, bool) {
	r.entityMutex.RLock()
	defer r.entityMutex.RUnlock()

	e, ok := r.entities[id]
	return e, ok
}

// Entities returns the region entities sorted by id.
func (r *Region) Entities() []*Entity {
	r.entityMutex.RLock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	r.entityMutex.RUnlock()

	slices.SortFunc(entities, func(a, b *Entity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return entities
}

func (r *Region) Broadcast(sender *Participant, m protocol.Message) {
	r.participantMutex.RLock()
	defer r.participantMutex.RUnlock()

	msg, err := protocol.MsgFromMessage(m)
	if err != nil {
		logs.WithTag("message", m).Debug(err)
		return
	}

	for _, p := range r.participants {
		if p == sender {
			continue
		}
		p.Responder.SendMsg(msg)
	}
}

func (r *Region) BroadcastTo(sender *Participant, m protocol.Message, participantIDs ...uint32) {
	participants := r.GetParticipantsByIDs(participantIDs...)
	isParticipantHandled := make(map[uint32]struct{}, len(participantIDs))

	msg, err := protocol.MsgFromMessage(m)
	if err != nil {
		logs.WithTag("message", m).Debug(err)
		return
	}

	for _, p := range participants {
		if p == sender {
			continue
		}

		if _, ok := isParticipantHandled[p.ID]; ok {
			continue
		}
		isParticipantHandled[p.ID] = struct{}{}

		p.Responder.SendMsg(msg)
	}
}

func (r *Region) SetModuleState(moduleName string, state any) {
	r.moduleMutex.Lock()
	defer r.moduleMutex.Unlock()

	r.moduleStates[moduleName] = state
}

func (r *Region) ModuleState(moduleName string) (any, bool) {
	r.moduleMutex.RLock()
	defer r.moduleMutex.RUnlock()

	state, ok := r.moduleStates[moduleName]
	return state, ok
}

// Rebuild clears the grid index and adds every entity with its current
// bounds, then computes the overlapping pairs of the new frame.
func (r *Region) Rebuild() Frame {
	start := time.Now()
	entities := r.Entities()

	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	r.index.Clear()
	clear(r.frameBounds)
	for _, e := range entities {
		bounds := e.Bounds()
		r.frameBounds[e] = bounds
		r.index.Add(e, bounds)
	}

	r.frame++
	r.overlaps = r.overlapPairs(entities)
	instrumentFrameRebuild(time.Since(start))

	return Frame{
		Number:   r.frame,
		Overlaps: r.overlaps,
	}
}

func (r *Region) overlapPairs(entities []*Entity) []OverlapPair {
	var pairs []OverlapPair

	for _, e := range entities {
		bounds := r.frameBounds[e]
		if bounds.IsEmpty() {
			continue
		}

		r.candidates = r.index.Region(bounds, r.candidates[:0])
		for _, c := range r.candidates {
			if c.ID <= e.ID {
				continue
			}
			if bounds.Intersects(r.frameBounds[c]) {
				pairs = append(pairs, OverlapPair{A: e, B: c})
			}
		}
	}

	clear(r.candidates)
	return pairs
}

// Frame returns the number of the last rebuilt frame. It is 0 until the first
// rebuild.
func (r *Region) Frame() uint64 {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	return r.frame
}

// Query returns the entities stored in the cells covered by rect, each once.
// Returned entities may not intersect rect.
func (r *Region) Query(rect geometry.Rectangle) []*Entity {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	entities := r.index.Region(rect, nil)
	instrumentQueryCandidates(len(entities))
	return entities
}

// QueryOverlaps returns the entities whose bounds intersect rect.
func (r *Region) QueryOverlaps(rect geometry.Rectangle) []*Entity {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	candidates := r.index.Region(rect, nil)
	instrumentQueryCandidates(len(candidates))

	entities := candidates[:0]
	for _, e := range candidates {
		if r.frameBounds[e].Intersects(rect) {
			entities = append(entities, e)
		}
	}
	return entities
}

// CellEntities returns the entities stored in the cell at the given linear
// index.
func (r *Region) CellEntities(cellIndex int) ([]*Entity, error) {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	if cellIndex < 0 || cellIndex >= r.index.CellCount() {
		return nil, errors.New("cell index out of range").
			WithType(ErrTypeCellIndexOutOfRange).
			WithTag("cell_index", cellIndex).
			WithTag("cell_count", r.index.CellCount())
	}
	return slices.Collect(r.index.Elements(cellIndex)), nil
}

// OverlapPairs returns the overlapping entity pairs of the last frame.
func (r *Region) OverlapPairs() []OverlapPair {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	return slices.Clone(r.overlaps)
}

func (r *Region) DebugInfo() gridindex.DebugInfo {
	r.indexMutex.Lock()
	defer r.indexMutex.Unlock()

	return r.index.DebugInfo()
}

// HandleFrame registers a function called after each frame rebuild.
func (r *Region) HandleFrame(h func(Frame)) (cancel func()) {
	r.frameMutex.Lock()
	defer r.frameMutex.Unlock()

	id := r.frameHandlerIDs.New()
	r.frameHandlers[id] = h

	return func() {
		r.frameMutex.Lock()
		defer r.frameMutex.Unlock()

		delete(r.frameHandlers, id)
		r.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames rebuilds the region at every frame tick and calls the
// frame handlers. It blocks until the region is closed.
func (r *Region) StartDispatchFrames() {
	r.startFrameOnce.Do(func() {
		for {
			select {
			case <-r.closeFrameChan:
				return

			case <-r.frameTicker.C:
				frame := r.Rebuild()

				r.frameMutex.RLock()
				for _, h := range r.frameHandlers {
					h(frame)
				}
				r.frameMutex.RUnlock()
			}
		}
	})
}

// RegionStore contains the regions hosted by a server.
type RegionStore struct {
	// The id of the server, used as a prefix of global region ids.
	ServerID string

	initOnce sync.Once
	mutex    sync.RWMutex
	regions  map[string]*Region
	ids      SequentialIDGenerator
}

func (s *RegionStore) init() {
	s.regions = map[string]*Region{}

	if s.ServerID == "" {
		s.ServerID = "cellgrid"
	}
}

func (s *RegionStore) NewID() uint32 {
	return s.ids.New()
}

func (s *RegionStore) Add(region *Region) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.regions[s.GlobalRegionID(region.ID)] = region

	instrumentIncreaseRegionGauge(region.Preset)
	instrumentCountRegion(region.Preset)
}

func (s *RegionStore) Remove(region *Region) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.GlobalRegionID(region.ID)
	if _, ok := s.regions[id]; !ok {
		return
	}

	delete(s.regions, id)
	region.Close()

	s.ids.Reuse(region.ID)

	instrumentDecreaseRegionGauge(region.Preset)
}

func (s *RegionStore) GetByGlobalID(v string) (*Region, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	region, ok := s.regions[v]
	return region, ok
}

// List returns the regions sorted by id.
func (s *RegionStore) List() []*Region {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	regions := make([]*Region, 0, len(s.regions))
	for _, r := range s.regions {
		regions = append(regions, r)
	}
	s.mutex.RUnlock()

	slices.SortFunc(regions, func(a, b *Region) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return regions
}

func (s *RegionStore) GlobalRegionID(regionID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, regionID)
}
