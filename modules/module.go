package modules

import (
	"context"

	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Module is the interface that describes a module that extends cellgrid
// capabilities.
type Module interface {
	// Returns the module name.
	Name() string

	// Initializes the module.
	Init(*models.Region, *models.Participant)

	// Handles a given message. Modules are free to decide whether they handle a
	// message.
	//
	// Returning an error typed protocol.ErrTypeMsgSkip indicates that handling
	// a message was skipped.
	//
	// Any other returned errors causes the current WebSocket client to be
	// disconnected.
	HandleMsg(context.Context, protocol.ResponseSender, protocol.Msg) error

	// Handles a region frame, after the region grid index was rebuilt. It is
	// called from the same goroutine as HandleMsg.
	HandleFrame(context.Context, protocol.ResponseSender, models.Frame) error

	// Handles a client disconnection.
	HandleDisconnect()
}

// ErrMsgSkip returns the error that modules return when they do not handle a
// message.
func ErrMsgSkip(msg protocol.Msg) error {
	return errors.New("message skipped").
		WithType(protocol.ErrTypeMsgSkip).
		WithTag("msg_type", msg.Type)
}
