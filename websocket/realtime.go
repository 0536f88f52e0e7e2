package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/cellgrid/featureflag"
	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the HTTP header where clients put their id.
const HeaderClientID = "X-Cellgrid-Client-Id"

// RealtimeHandler represents a service that manages multiple client connections
// and relays their actions in realtime.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The duration of a frame.
	FrameDuration time.Duration

	// The store that contains all the server regions.
	Regions *models.RegionStore

	// The presets used to size new regions.
	Presets models.RegionPresets

	// The modules that expand cellgrid features.
	Modules []modules.Module

	FeatureFlags featureflag.FeatureFlag

	conn               *websocket.Conn
	currentRegion      *models.Region
	currentParticipant *models.Participant

	stopFrameHandling func()

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(&protocol.Response{
		Header:    protocol.NewHeader(protocol.MsgTypePingResponse),
		RequestID: req.RequestID,
	})
	return nil
}

func (h *RealtimeHandler) HandleRegionJoin(ctx context.Context, handleFrame func(models.Frame), respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.RegionJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentRegion != nil && h.Regions.GlobalRegionID(h.currentRegion.ID) == req.RegionID {
		sendError(respond, req.RequestID, protocol.ErrorCodeRegionAlreadyJoined)
		return nil
	}

	if h.currentParticipant != nil {
		h.leaveRegion()
	}

	region, ok := h.Regions.GetByGlobalID(req.RegionID)
	if !ok && req.RegionID != "" {
		sendError(respond, req.RequestID, protocol.ErrorCodeNotFound)
		return nil
	}

	if !ok {
		presetName, preset, err := h.Presets.Resolve(req.Preset, req.GridSize, req.CellSize)
		if errors.IsType(err, models.ErrTypePresetNotFound) {
			sendError(respond, req.RequestID, protocol.ErrorCodeNotFound)
			return nil
		}
		if err != nil {
			sendError(respond, req.RequestID, protocol.ErrorCodeBadRequest)
			return nil
		}

		region = models.NewRegion(h.Regions.NewID(), presetName, preset, h.FrameDuration)
		h.Regions.Add(region)
		go region.StartDispatchFrames()
	}

	participant := &models.Participant{
		ID:        region.NewParticipantID(),
		Responder: respond,
	}

	region.AddParticipant(participant)
	h.stopFrameHandling = region.HandleFrame(handleFrame)

	respond.Send(&protocol.RegionJoinResponse{
		Header:        protocol.NewHeader(protocol.MsgTypeRegionJoinResponse),
		RequestID:     req.RequestID,
		RegionID:      h.Regions.GlobalRegionID(region.ID),
		RegionUUID:    region.RegionUUID,
		ParticipantID: participant.ID,
		GridSize:      region.GridSize,
		CellSize:      region.CellSize,
	})

	h.currentRegion = region
	h.currentParticipant = participant

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableRegionState, func() {
		respond.Send(&protocol.RegionState{
			Header:       protocol.NewHeader(protocol.MsgTypeRegionState),
			Participants: models.ParticipantsToMessage(region.GetParticipants()),
			Entities:     models.EntitiesToMessage(region.Entities()),
		})
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantJoinBroadcast, func() {
		region.Broadcast(participant, &protocol.ParticipantJoinBroadcast{
			Header:        protocol.NewHeader(protocol.MsgTypeParticipantJoinBroadcast),
			ParticipantID: participant.ID,
		})
	})

	for _, m := range h.Modules {
		m.Init(region, participant)
	}

	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveRegion()
	}
}

func (h *RealtimeHandler) HandleEntityAdd(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.EntityAddRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	region := h.currentRegion
	if participant == nil || region == nil {
		return errRegionNotJoined(msg)
	}

	if req.Bounds.Width < 0 || req.Bounds.Height < 0 {
		sendError(respond, req.RequestID, protocol.ErrorCodeBadRequest)
		return nil
	}

	entity := &models.Entity{
		ID:            region.NewEntityID(),
		ParticipantID: participant.ID,
		Kind:          req.Kind,
	}
	entity.SetBounds(req.Bounds)

	region.AddEntity(entity)
	participant.AddEntity(entity)

	respond.Send(&protocol.EntityAddResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeEntityAddResponse),
		RequestID: req.RequestID,
		EntityID:  entity.ID,
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityAddBroadcast, func() {
		region.Broadcast(participant, &protocol.EntityAddBroadcast{
			Header: protocol.NewHeader(protocol.MsgTypeEntityAddBroadcast),
			Entity: entity.ToMessage(),
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleEntityDelete(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.EntityDeleteRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	region := h.currentRegion
	if participant == nil || region == nil {
		return errRegionNotJoined(msg)
	}

	entity, ok := region.EntityByID(req.EntityID)
	if !ok {
		sendError(respond, req.RequestID, protocol.ErrorCodeNotFound)
		return nil
	}

	if entity.ParticipantID != participant.ID {
		sendError(respond, req.RequestID, protocol.ErrorCodeUnauthorized)
		return nil
	}

	region.RemoveEntity(entity)
	participant.RemoveEntity(entity)

	respond.Send(&protocol.EntityDeleteResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeEntityDeleteResponse),
		RequestID: req.RequestID,
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityDeleteBroadcast, func() {
		region.Broadcast(participant, &protocol.EntityDeleteBroadcast{
			Header:   protocol.NewHeader(protocol.MsgTypeEntityDeleteBroadcast),
			EntityID: entity.ID,
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleEntityUpdateBounds(ctx context.Context, msg protocol.Msg) error {
	var update protocol.EntityUpdateBounds
	if err := msg.DataTo(&update); err != nil {
		return err
	}

	participant := h.currentParticipant
	region := h.currentRegion
	if participant == nil || region == nil {
		return errRegionNotJoined(msg)
	}

	entity, ok := region.EntityByID(update.EntityID)
	if !ok {
		return nil
	}

	if entity.ParticipantID != participant.ID {
		return nil
	}

	if update.Bounds.Width < 0 || update.Bounds.Height < 0 {
		return nil
	}

	entity.SetBounds(update.Bounds)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityUpdateBoundsBroadcast, func() {
		region.Broadcast(participant, &protocol.EntityUpdateBoundsBroadcast{
			Header:   protocol.NewHeader(protocol.MsgTypeEntityUpdateBoundsBroadcast),
			EntityID: entity.ID,
			Bounds:   update.Bounds,
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleRegionQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.RegionQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	region := h.currentRegion
	if region == nil {
		return errRegionNotJoined(msg)
	}

	var entities []*models.Entity
	if req.Exact {
		entities = region.QueryOverlaps(req.Bounds)
	} else {
		entities = region.Query(req.Bounds)
	}

	respond.Send(&protocol.RegionQueryResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeRegionQueryResponse),
		RequestID: req.RequestID,
		Frame:     region.Frame(),
		EntityIDs: models.EntityIDs(entities),
	})
	return nil
}

func (h *RealtimeHandler) HandleCellQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.CellQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	region := h.currentRegion
	if region == nil {
		return errRegionNotJoined(msg)
	}

	entities, err := region.CellEntities(req.CellIndex)
	if err != nil {
		sendError(respond, req.RequestID, protocol.ErrorCodeBadRequest)
		return nil
	}

	respond.Send(&protocol.CellQueryResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeCellQueryResponse),
		RequestID: req.RequestID,
		Frame:     region.Frame(),
		EntityIDs: models.EntityIDs(entities),
	})
	return nil
}

func (h *RealtimeHandler) HandleDebugInfo(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	region := h.currentRegion
	if region == nil {
		return errRegionNotJoined(msg)
	}

	respond.Send(&protocol.DebugInfoResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeDebugInfoResponse),
		RequestID: req.RequestID,
		Frame:     region.Frame(),
		Info:      region.DebugInfo(),
	})
	return nil
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error {
	if h.CurrentParticipant() == nil || h.CurrentRegion() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, protocol.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) HandleFrame(ctx context.Context, respond protocol.ResponseSender, frame models.Frame) error {
	if h.CurrentParticipant() == nil || h.CurrentRegion() == nil {
		return nil
	}

	if h.FeatureFlags.IsSet(featureflag.FlagDisableOverlapEvents) {
		return nil
	}

	for _, m := range h.Modules {
		if err := m.HandleFrame(ctx, respond, frame); err != nil {
			return errors.New("handling frame with module failed").
				WithTag("module", m.Name()).
				WithTag("frame", frame.Number).
				Wrap(err)
		}
	}
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error {
	respond.Send(&protocol.SyncClock{
		Header: protocol.NewHeader(protocol.MsgTypeSyncClock),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() protocol.Receiver {
	return func() (protocol.Msg, int, error) {
		return protocol.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() protocol.Sender {
	return func(msg protocol.Msg) (int, error) {
		return protocol.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetRegions() *models.RegionStore {
	return h.Regions
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentRegion() *models.Region {
	return h.currentRegion
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) leaveRegion() {
	region := h.currentRegion
	participant := h.currentParticipant

	if participant == nil || region == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	for id := range participant.EntityIDs() {
		entity, ok := region.EntityByID(id)
		if !ok {
			continue
		}

		region.RemoveEntity(entity)

		h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityDeleteBroadcast, func() {
			region.Broadcast(participant, &protocol.EntityDeleteBroadcast{
				Header:   protocol.NewHeader(protocol.MsgTypeEntityDeleteBroadcast),
				EntityID: entity.ID,
			})
		})
	}

	if h.stopFrameHandling != nil {
		h.stopFrameHandling()
		h.stopFrameHandling = nil
	}
	region.RemoveParticipant(participant)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantLeaveBroadcast, func() {
		region.Broadcast(participant, &protocol.ParticipantLeaveBroadcast{
			Header:        protocol.NewHeader(protocol.MsgTypeParticipantLeaveBroadcast),
			ParticipantID: participant.ID,
		})
	})

	if region.ParticipantCount() == 0 {
		h.Regions.Remove(region)
	}

	h.currentParticipant = nil
	h.currentRegion = nil
}

func sendError(respond protocol.ResponseSender, requestID uint32, code protocol.ErrorCode) {
	respond.Send(&protocol.ErrorResponse{
		Header:    protocol.NewHeader(protocol.MsgTypeErrorResponse),
		RequestID: requestID,
		Code:      code,
	})
}

func errRegionNotJoined(msg protocol.Msg) error {
	return errors.New("region not joined").
		WithType(protocol.ErrTypeRegionNotJoined).
		WithTag("msg_type", msg.Type)
}
