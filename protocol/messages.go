package protocol

import (
	"github.com/aukilabs/cellgrid/geometry"
	"github.com/aukilabs/cellgrid/gridindex"
)

// MsgType identifies the kind of a message.
type MsgType string

const (
	MsgTypeErrorResponse MsgType = "error_response"
	MsgTypeSyncClock     MsgType = "sync_clock"
	MsgTypePingRequest   MsgType = "ping_request"
	MsgTypePingResponse  MsgType = "ping_response"

	MsgTypeRegionJoinRequest  MsgType = "region_join_request"
	MsgTypeRegionJoinResponse MsgType = "region_join_response"
	MsgTypeRegionState        MsgType = "region_state"

	MsgTypeParticipantJoinBroadcast  MsgType = "participant_join_broadcast"
	MsgTypeParticipantLeaveBroadcast MsgType = "participant_leave_broadcast"

	MsgTypeEntityAddRequest            MsgType = "entity_add_request"
	MsgTypeEntityAddResponse           MsgType = "entity_add_response"
	MsgTypeEntityAddBroadcast          MsgType = "entity_add_broadcast"
	MsgTypeEntityDeleteRequest         MsgType = "entity_delete_request"
	MsgTypeEntityDeleteResponse        MsgType = "entity_delete_response"
	MsgTypeEntityDeleteBroadcast       MsgType = "entity_delete_broadcast"
	MsgTypeEntityUpdateBounds          MsgType = "entity_update_bounds"
	MsgTypeEntityUpdateBoundsBroadcast MsgType = "entity_update_bounds_broadcast"

	MsgTypeRegionQueryRequest  MsgType = "region_query_request"
	MsgTypeRegionQueryResponse MsgType = "region_query_response"
	MsgTypeCellQueryRequest    MsgType = "cell_query_request"
	MsgTypeCellQueryResponse   MsgType = "cell_query_response"
	MsgTypeDebugInfoRequest    MsgType = "debug_info_request"
	MsgTypeDebugInfoResponse   MsgType = "debug_info_response"

	MsgTypeOverlapSubscribeRequest    MsgType = "overlap_subscribe_request"
	MsgTypeOverlapSubscribeResponse   MsgType = "overlap_subscribe_response"
	MsgTypeOverlapUnsubscribeRequest  MsgType = "overlap_unsubscribe_request"
	MsgTypeOverlapUnsubscribeResponse MsgType = "overlap_unsubscribe_response"
	MsgTypeOverlapBroadcast           MsgType = "overlap_broadcast"
)

// ErrorCode describes why a request failed.
type ErrorCode string

const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeRegionAlreadyJoined ErrorCode = "region_already_joined"
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
)

type ErrorResponse struct {
	Header
	RequestID uint32    `json:"request_id,omitempty"`
	Code      ErrorCode `json:"code"`
}

type SyncClock struct {
	Header
}

// Request is a request that carries no other data than its id.
type Request struct {
	Header
	RequestID uint32 `json:"request_id"`
}

// Response is a response that carries no other data than the id of the
// request it answers.
type Response struct {
	Header
	RequestID uint32 `json:"request_id"`
}

type Entity struct {
	ID            uint32             `json:"id"`
	ParticipantID uint32             `json:"participant_id"`
	Kind          string             `json:"kind,omitempty"`
	Bounds        geometry.Rectangle `json:"bounds"`
}

type Participant struct {
	ID uint32 `json:"id"`
}

// RegionJoinRequest asks to join a region. An empty RegionID creates a new
// region sized after Preset, or after GridSize and CellSize when both are
// set.
type RegionJoinRequest struct {
	Header
	RequestID uint32         `json:"request_id"`
	RegionID  string         `json:"region_id,omitempty"`
	Preset    string         `json:"preset,omitempty"`
	GridSize  *geometry.Size `json:"grid_size,omitempty"`
	CellSize  *geometry.Size `json:"cell_size,omitempty"`
}

type RegionJoinResponse struct {
	Header
	RequestID     uint32        `json:"request_id"`
	RegionID      string        `json:"region_id"`
	RegionUUID    string        `json:"region_uuid"`
	ParticipantID uint32        `json:"participant_id"`
	GridSize      geometry.Size `json:"grid_size"`
	CellSize      geometry.Size `json:"cell_size"`
}

type RegionState struct {
	Header
	Participants []Participant `json:"participants"`
	Entities     []Entity      `json:"entities"`
}

type ParticipantJoinBroadcast struct {
	Header
	ParticipantID uint32 `json:"participant_id"`
}

type ParticipantLeaveBroadcast struct {
	Header
	ParticipantID uint32 `json:"participant_id"`
}

type EntityAddRequest struct {
	Header
	RequestID uint32             `json:"request_id"`
	Kind      string             `json:"kind,omitempty"`
	Bounds    geometry.Rectangle `json:"bounds"`
}

type EntityAddResponse struct {
	Header
	RequestID uint32 `json:"request_id"`
	EntityID  uint32 `json:"entity_id"`
}

type EntityAddBroadcast struct {
	Header
	Entity Entity `json:"entity"`
}

type EntityDeleteRequest struct {
	Header
	RequestID uint32 `json:"request_id"`
	EntityID  uint32 `json:"entity_id"`
}

type EntityDeleteResponse struct {
	Header
	RequestID uint32 `json:"request_id"`
}

type EntityDeleteBroadcast struct {
	Header
	EntityID uint32 `json:"entity_id"`
}

// EntityUpdateBounds moves or resizes an entity. It is not answered.
type EntityUpdateBounds struct {
	Header
	EntityID uint32             `json:"entity_id"`
	Bounds   geometry.Rectangle `json:"bounds"`
}

type EntityUpdateBoundsBroadcast struct {
	Header
	EntityID uint32             `json:"entity_id"`
	Bounds   geometry.Rectangle `json:"bounds"`
}

// RegionQueryRequest asks for the entities stored in the cells covered by
// Bounds. When Exact is set, only entities whose bounds intersect Bounds are
// returned.
type RegionQueryRequest struct {
	Header
	RequestID uint32             `json:"request_id"`
	Bounds    geometry.Rectangle `json:"bounds"`
	Exact     bool               `json:"exact,omitempty"`
}

type RegionQueryResponse struct {
	Header
	RequestID uint32   `json:"request_id"`
	Frame     uint64   `json:"frame"`
	EntityIDs []uint32 `json:"entity_ids"`
}

type CellQueryRequest struct {
	Header
	RequestID uint32 `json:"request_id"`
	CellIndex int    `json:"cell_index"`
}

type CellQueryResponse struct {
	Header
	RequestID uint32   `json:"request_id"`
	Frame     uint64   `json:"frame"`
	EntityIDs []uint32 `json:"entity_ids"`
}

type DebugInfoResponse struct {
	Header
	RequestID uint32              `json:"request_id"`
	Frame     uint64              `json:"frame"`
	Info      gridindex.DebugInfo `json:"info"`
}

type OverlapPair struct {
	A uint32 `json:"a"`
	B uint32 `json:"b"`
}

// OverlapBroadcast reports, for a frame, the overlapping entity pairs that
// involve at least one entity of the receiving participant.
type OverlapBroadcast struct {
	Header
	Frame uint64        `json:"frame"`
	Pairs []OverlapPair `json:"pairs"`
}
