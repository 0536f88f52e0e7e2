package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	regionIDTag      = "region_id"
	regionUUIDTag    = "region_uuid"
	participantIDTag = "participant_id"

	headerXForwardedFor = "X-Forwarded-For"
)

// HandlerWithLogs wraps h with connection lifecycle logs, per message debug
// logs and a periodic summary of the received message types.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	regionID      string
	regionUUID    string
	participantID uint32
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	logs.WithClientID(h.GetClientID()).
		WithTag("http_headers", h.headers()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleRegionJoin(ctx context.Context, handleFrame func(models.Frame), respond protocol.ResponseSender, msg protocol.Msg) error {
	if err := h.Handler.HandleRegionJoin(ctx, handleFrame, respond, msg); err != nil {
		return err
	}

	if h.CurrentParticipant() == nil {
		var req protocol.RegionJoinRequest
		// Parsing already succeeded in the wrapped handler.
		msg.DataTo(&req)

		logs.WithClientID(h.GetClientID()).
			WithTag(regionIDTag, req.RegionID).
			WithTag("preset", req.Preset).
			WithTag("request_id", req.RequestID).
			Info("participant failed to join a region")
		return nil
	}

	region := h.CurrentRegion()
	h.regionID = h.GetRegions().GlobalRegionID(region.ID)
	h.regionUUID = region.RegionUUID
	h.participantID = h.CurrentParticipant().ID

	h.entry().
		WithTag("preset", region.Preset).
		WithTag("grid_size", region.GridSize).
		WithTag("cell_size", region.CellSize).
		WithTag("http_headers", h.headers()).
		Info("participant joined a region")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)
	h.entry().Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() protocol.Receiver {
	receive := h.Handler.Receiver()

	return func() (protocol.Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			h.entry().Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() protocol.Sender {
	send := h.Handler.Sender()

	return func(msg protocol.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := send(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			h.entry().
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) entry() logs.Entry {
	return logs.WithClientID(h.GetClientID()).
		WithTag(regionIDTag, h.regionID).
		WithTag(regionUUIDTag, h.regionUUID).
		WithTag(participantIDTag, h.participantID)
}

func (h *handlerWithLogs) headers() httpHeaders {
	if h.originalRequest == nil {
		return httpHeaders{}
	}
	return httpHeaders{
		UserAgent:     h.originalRequest.UserAgent(),
		XForwardedFor: h.originalRequest.Header.Get(headerXForwardedFor),
	}
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := h.entry().WithTag("time_interval", h.summaryInterval)
	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
	}
	clear(h.counter)

	entry.Info("inbound message summary")
}
