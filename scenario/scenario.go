// Package scenario runs scripted exchanges against a cellgrid WebSocket
// endpoint. It is used by tests and by the smoke test.
package scenario

import (
	"context"
	"time"

	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

// DefaultTimeout is the time a scenario runs when its context has no
// deadline.
const DefaultTimeout = 5 * time.Second

// Handler handles a received message. A handler returning an error typed
// protocol.ErrTypeMsgSkip lets the scenario wait for the next message.
type Handler func(protocol.Msg) error

// Scenario is a sequence of messages to send and receive over a WebSocket
// connection.
type Scenario struct {
	conn  *websocket.Conn
	steps []func(ctx context.Context) error
}

func NewScenario(conn *websocket.Conn) *Scenario {
	return &Scenario{conn: conn}
}

// Send adds a step that sends the message returned by newMsg. newMsg is
// called when the step runs, so it can use data received by earlier steps.
func (s *Scenario) Send(newMsg func() protocol.Message) *Scenario {
	s.steps = append(s.steps, func(ctx context.Context) error {
		msg, err := protocol.MsgFromMessage(newMsg())
		if err != nil {
			return err
		}

		if _, err := protocol.Send(s.conn, msg); err != nil {
			return errors.New("sending message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}
		return nil
	})
	return s
}

// Receive adds a step that reads messages until one is accepted by every
// handler. Handlers are called in order.
func (s *Scenario) Receive(handlers ...Handler) *Scenario {
	s.steps = append(s.steps, func(ctx context.Context) error {
		for {
			msg, _, err := protocol.Receive(s.conn)
			if err != nil {
				return errors.New("receiving message failed").Wrap(err)
			}

			err = handle(msg, handlers)
			if errors.IsType(err, protocol.ErrTypeMsgSkip) {
				continue
			}
			return err
		}
	})
	return s
}

// Run executes the scenario steps in order and stops at the first error.
func (s *Scenario) Run(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	deadline, _ := ctx.Deadline()
	if err := s.conn.SetDeadline(deadline); err != nil {
		return errors.New("setting connection deadline failed").Wrap(err)
	}
	defer s.conn.SetDeadline(time.Time{})

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := step(ctx); err != nil {
			return errors.New("running scenario step failed").
				WithTag("step", i).
				Wrap(err)
		}
	}
	return nil
}

func handle(msg protocol.Msg, handlers []Handler) error {
	for _, h := range handlers {
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

// FilterByType skips messages that are not of the given type.
func FilterByType(t protocol.MsgType) Handler {
	return func(msg protocol.Msg) error {
		if msg.Type != t {
			return skip(msg)
		}
		return nil
	}
}

// FilterByRequestID skips messages that do not answer the given request.
func FilterByRequestID(id uint32) Handler {
	return func(msg protocol.Msg) error {
		var res protocol.Response
		if err := msg.DataTo(&res); err != nil {
			return skip(msg)
		}
		if res.RequestID != id {
			return skip(msg)
		}
		return nil
	}
}

// DataTo decodes accepted messages into v.
func DataTo(v protocol.Message) Handler {
	return func(msg protocol.Msg) error {
		return msg.DataTo(v)
	}
}

func skip(msg protocol.Msg) error {
	return errors.New("message skipped").
		WithType(protocol.ErrTypeMsgSkip).
		WithTag("msg_type", msg.Type)
}
