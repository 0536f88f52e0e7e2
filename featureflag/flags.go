package featureflag

type Flag string

const (
	FlagDisableRegionState                 Flag = "DISABLE_REGION_STATE"
	FlagDisableParticipantJoinBroadcast    Flag = "DISABLE_PARTICIPANT_JOIN_BROADCAST"
	FlagDisableParticipantLeaveBroadcast   Flag = "DISABLE_PARTICIPANT_LEAVE_BROADCAST"
	FlagDisableEntityAddBroadcast          Flag = "DISABLE_ENTITY_ADD_BROADCAST"
	FlagDisableEntityDeleteBroadcast       Flag = "DISABLE_ENTITY_DELETE_BROADCAST"
	FlagDisableEntityUpdateBoundsBroadcast Flag = "DISABLE_ENTITY_UPDATE_BOUNDS_BROADCAST"
	FlagDisableOverlapEvents               Flag = "DISABLE_OVERLAP_EVENTS"
)

// Known returns the flags understood by the server.
func Known() []Flag {
	return []Flag{
		FlagDisableRegionState,
		FlagDisableParticipantJoinBroadcast,
		FlagDisableParticipantLeaveBroadcast,
		FlagDisableEntityAddBroadcast,
		FlagDisableEntityDeleteBroadcast,
		FlagDisableEntityUpdateBoundsBroadcast,
		FlagDisableOverlapEvents,
	}
}
