// Package overlap implements a module that notifies participants when their
// entities overlap other entities of the region.
package overlap

import (
	"context"

	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

type Module struct {
	currentRegion      *models.Region
	currentParticipant *models.Participant
	state              *State

	// The number of pairs reported at the last broadcast, used to send a
	// final empty broadcast when overlaps end.
	lastPairCount int
}

func (m *Module) Name() string {
	return "overlap"
}

func (m *Module) Init(r *models.Region, p *models.Participant) {
	m.currentRegion = r
	m.currentParticipant = p
	m.lastPairCount = 0

	state, ok := r.ModuleState(m.Name())
	if !ok {
		state = &State{}
		r.SetModuleState(m.Name(), state)
	}
	m.state = state.(*State)
}

func (m *Module) HandleMsg(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var err error

	switch msg.Type {
	case protocol.MsgTypeOverlapSubscribeRequest:
		err = m.handleSubscribe(ctx, respond, msg)

	case protocol.MsgTypeOverlapUnsubscribeRequest:
		err = m.handleUnsubscribe(ctx, respond, msg)

	default:
		err = modules.ErrMsgSkip(msg)
	}

	return err
}

func (m *Module) HandleFrame(ctx context.Context, respond protocol.ResponseSender, frame models.Frame) error {
	participant := m.currentParticipant
	if participant == nil || m.state == nil || !m.state.IsSubscribed(participant.ID) {
		return nil
	}

	var pairs []protocol.OverlapPair
	for _, p := range frame.Overlaps {
		if p.A.ParticipantID == participant.ID || p.B.ParticipantID == participant.ID {
			pairs = append(pairs, p.ToMessage())
		}
	}

	if len(pairs) == 0 && m.lastPairCount == 0 {
		return nil
	}
	m.lastPairCount = len(pairs)

	respond.Send(&protocol.OverlapBroadcast{
		Header: protocol.NewHeader(protocol.MsgTypeOverlapBroadcast),
		Frame:  frame.Number,
		Pairs:  pairs,
	})
	return nil
}

func (m *Module) HandleDisconnect() {
	if m.currentParticipant != nil && m.state != nil {
		m.state.Unsubscribe(m.currentParticipant.ID)
	}

	m.currentRegion = nil
	m.currentParticipant = nil
	m.state = nil
}

func (m *Module) handleSubscribe(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if m.currentParticipant == nil {
		return errors.New("region not joined").
			WithType(protocol.ErrTypeRegionNotJoined).
			WithTag("msg_type", msg.Type)
	}

	m.state.Subscribe(m.currentParticipant.ID)
	m.lastPairCount = 0

	respond.Send(&protocol.Response{
		Header:    protocol.NewHeader(protocol.MsgTypeOverlapSubscribeResponse),
		RequestID: req.RequestID,
	})
	return nil
}

func (m *Module) handleUnsubscribe(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if m.currentParticipant == nil {
		return errors.New("region not joined").
			WithType(protocol.ErrTypeRegionNotJoined).
			WithTag("msg_type", msg.Type)
	}

	m.state.Unsubscribe(m.currentParticipant.ID)

	respond.Send(&protocol.Response{
		Header:    protocol.NewHeader(protocol.MsgTypeOverlapUnsubscribeResponse),
		RequestID: req.RequestID,
	})
	return nil
}
