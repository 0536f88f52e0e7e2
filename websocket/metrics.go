package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/cellgrid/modules"
	"github.com/aukilabs/cellgrid/protocol"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	moduleLabel         = "module"
	publicEndpointLabel = "public_endpoint"

	defaultModule = "cellgrid"
	frameMsgType  = "frame"
)

var (
	endpointLabels = []string{publicEndpointLabel}
	msgTypeLabels  = []string{publicEndpointLabel, msgTypeLabel}

	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "Number of WebSocket clients currently connected.",
	}, endpointLabels)

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "Number of messages received, by message type.",
	}, msgTypeLabels)

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "Number of bytes received, by message type.",
	}, msgTypeLabels)

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "Number of failed message receptions, by error type.",
	}, []string{publicEndpointLabel, errTypeLabel})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "Number of messages sent, by message type.",
	}, msgTypeLabels)

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "Number of bytes sent, by message type.",
	}, msgTypeLabels)

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "Number of failed message sends, by message and error type.",
	}, []string{publicEndpointLabel, errTypeLabel, msgTypeLabel})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ws_msg_latency",
		Help:    "Time spent handling a message or a region frame, in seconds.",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{publicEndpointLabel, msgTypeLabel, moduleLabel})
)

// HandlerWithMetrics wraps h with prometheus instrumentation labelled with
// the given public endpoint.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	return &handlerWithMetrics{
		Handler:        h,
		publicEndpoint: publicEndpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	publicEndpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.
		With(prometheus.Labels{publicEndpointLabel: h.publicEndpoint}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleRegionJoin(ctx context.Context, handleFrame func(models.Frame), respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleRegionJoin(ctx, handleFrame, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.
		With(prometheus.Labels{publicEndpointLabel: h.publicEndpoint}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleEntityAdd(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleEntityAdd(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityDelete(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleEntityDelete(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleEntityUpdateBounds(ctx context.Context, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleEntityUpdateBounds(ctx, msg)
	})
}

func (h *handlerWithMetrics) HandleRegionQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleRegionQuery(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleCellQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleCellQuery(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDebugInfo(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), defaultModule, func() error {
		return h.Handler.HandleDebugInfo(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleWithModule(ctx context.Context, module modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error {
	return h.measureLatency(msg.TypeString(), module.Name(), func() error {
		return h.Handler.HandleWithModule(ctx, module, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleFrame(ctx context.Context, respond protocol.ResponseSender, frame models.Frame) error {
	return h.measureLatency(frameMsgType, defaultModule, func() error {
		return h.Handler.HandleFrame(ctx, respond, frame)
	})
}

func (h *handlerWithMetrics) SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error {
	return h.measureLatency(string(protocol.MsgTypeSyncClock), defaultModule, func() error {
		return h.Handler.SendSyncClock(ctx, respond)
	})
}

func (h *handlerWithMetrics) Receiver() protocol.Receiver {
	receive := h.Handler.Receiver()

	return func() (protocol.Msg, int, error) {
		msg, n, err := receive()
		labels := h.msgLabels(msg.TypeString())

		if err != nil {
			wsReceiveError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.With(labels).Inc()
		}

		if n != 0 {
			wsReceivedBytes.With(labels).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() protocol.Sender {
	send := h.Handler.Sender()

	return func(msg protocol.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := send(msg)
		if err != nil {
			wsSendError.
				With(prometheus.Labels{
					publicEndpointLabel: h.publicEndpoint,
					msgTypeLabel:        msgType,
					errTypeLabel:        errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			labels := h.msgLabels(msgType)
			wsSentMsgs.With(labels).Inc()
			wsSentBytes.With(labels).Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) msgLabels(msgType string) prometheus.Labels {
	return prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		msgTypeLabel:        msgType,
	}
}

func (h *handlerWithMetrics) measureLatency(msgType, module string, f func() error) error {
	start := time.Now()

	err := f()
	if errors.IsType(err, protocol.ErrTypeMsgSkip) {
		return err
	}

	wsMsgLatency.With(prometheus.Labels{
		publicEndpointLabel: h.publicEndpoint,
		msgTypeLabel:        msgType,
		moduleLabel:         module,
	}).Observe(time.Since(start).Seconds())

	return err
}
