package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a cellgrid connection handler.
type Handler interface {
	// Answers a ping request with a ping response.
	HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Called once when the client connects, before any message is handled.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to join a region. handleFrame is registered as a
	// frame handler of the joined region.
	HandleRegionJoin(ctx context.Context, handleFrame func(models.Frame), respond protocol.ResponseSender, msg protocol.Msg) error

	// Called once when the connection ends, with the reason.
	HandleDisconnect(error)

	// Creates an entity owned by the current participant.
	HandleEntityAdd(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a request to delete an entity.
	HandleEntityDelete(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles an entity bounds update.
	HandleEntityUpdateBounds(ctx context.Context, msg protocol.Msg) error

	// Handles a request for the entities found in a rectangle.
	HandleRegionQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a request for the entities stored in a grid cell.
	HandleCellQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a request for the region grid occupancy.
	HandleDebugInfo(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error

	// Passes a message to a module of the joined region.
	HandleWithModule(ctx context.Context, module modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error

	// Handles a frame of the joined region.
	HandleFrame(ctx context.Context, respond protocol.ResponseSender, frame models.Frame) error

	// Sends the server clock to the client.
	SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error

	// Returns the function that reads client messages.
	Receiver() protocol.Receiver

	// Returns the function that writes messages to the client.
	Sender() protocol.Sender

	// Releases the handler resources.
	Close()

	// How often the server clock is sent to the client.
	SyncClockInterval() time.Duration

	// How long a silent client stays connected.
	IdleTimeout() time.Duration

	// Returns the region store.
	GetRegions() *models.RegionStore

	// The modules run on each message and frame.
	GetModules() []modules.Module

	// The currently joined region.
	CurrentRegion() *models.Region

	// The participant of the current connection.
	CurrentParticipant() *models.Participant

	// Returns the id of the connected client.
	GetClientID() string
}

// Handle handles the given connection with h. It blocks until the client is
// disconnected or ctx is canceled.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The client connection.
	Conn *websocket.Conn

	// The cellgrid handler.
	Handler Handler

	ctx            context.Context
	sendChan       chan protocol.Msg
	sender         protocol.Sender
	receiveChan    chan protocol.Msg
	receiver       protocol.Receiver
	frameChan      chan models.Frame
	disconnectChan chan error
	disconnected   bool
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h.ctx = ctx

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	h.frameChan = make(chan models.Frame, 1)

	var wg sync.WaitGroup

	h.sendChan = make(chan protocol.Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan protocol.Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	syncClockTicker := time.NewTicker(h.Handler.SyncClockInterval())
	defer syncClockTicker.Stop()

	var responder = responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", h.Handler.IdleTimeout()))

		case <-syncClockTicker.C:
			if err := h.Handler.SendSyncClock(ctx, responder); err != nil {
				h.disconnect(errors.New("sending sync clock failed").Wrap(err))
			}

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case frame := <-h.frameChan:
			if err := h.Handler.HandleFrame(ctx, responder, frame); err != nil {
				h.disconnect(errors.New("handling frame failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// Stops the send and receive goroutines.
				cancel()
			}
		}
	}

	if !h.disconnected {
		h.handleDisconnect(ctx.Err())
	}
	wg.Wait()
}

func (h *handler) send(m protocol.Message) {
	msg, err := protocol.MsgFromMessage(m)
	if err != nil {
		logs.WithTag("message", m).
			WithClientID(h.Handler.GetClientID()).
			Debug(err)
		return
	}
	h.sendMsg(msg)
}

func (h *handler) sendMsg(msg protocol.Msg) {
	select {
	case h.sendChan <- msg:
	case <-h.ctx.Done():
	}
}

// handleFrame is called from the region frame goroutine. Frames that the
// connection did not handle yet are replaced by the newest one.
func (h *handler) handleFrame(frame models.Frame) {
	select {
	case h.frameChan <- frame:
		return
	default:
	}

	select {
	case <-h.frameChan:
	default:
	}

	select {
	case h.frameChan <- frame:
	default:
	}
}

func (h *handler) startSending(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg protocol.Msg, responder protocol.ResponseSender) error {
	var err error

	switch msg.Type {
	case protocol.MsgTypePingRequest:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case protocol.MsgTypeRegionJoinRequest:
		err = h.Handler.HandleRegionJoin(ctx, h.handleFrame, responder, msg)

	case protocol.MsgTypeEntityAddRequest:
		err = h.Handler.HandleEntityAdd(ctx, responder, msg)

	case protocol.MsgTypeEntityDeleteRequest:
		err = h.Handler.HandleEntityDelete(ctx, responder, msg)

	case protocol.MsgTypeEntityUpdateBounds:
		err = h.Handler.HandleEntityUpdateBounds(ctx, msg)

	case protocol.MsgTypeRegionQueryRequest:
		err = h.Handler.HandleRegionQuery(ctx, responder, msg)

	case protocol.MsgTypeCellQueryRequest:
		err = h.Handler.HandleCellQuery(ctx, responder, msg)

	case protocol.MsgTypeDebugInfoRequest:
		err = h.Handler.HandleDebugInfo(ctx, responder, msg)
	}

	if err != nil {
		return err
	}

	if h.Handler.CurrentParticipant() == nil || h.Handler.CurrentRegion() == nil {
		return nil
	}

	for _, m := range h.Handler.GetModules() {
		if err = h.Handler.HandleWithModule(ctx, m, responder, msg); err != nil {
			return err
		}
	}
	return nil
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.disconnected = true
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(protocol.Message)
	sendMsg func(protocol.Msg)
}

func (r responseSender) Send(m protocol.Message) {
	r.send(m)
}

func (r responseSender) SendMsg(msg protocol.Msg) {
	r.sendMsg(msg)
}
