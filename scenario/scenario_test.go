package scenario

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/cellgrid/protocol"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

// newPingServer answers each ping request with a sync clock followed by a
// ping response.
func newPingServer(t *testing.T) *websocket.Conn {
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		for {
			msg, _, err := protocol.Receive(conn)
			if err != nil {
				return
			}

			var req protocol.Request
			if err := msg.DataTo(&req); err != nil {
				return
			}

			for _, m := range []protocol.Message{
				&protocol.SyncClock{Header: protocol.NewHeader(protocol.MsgTypeSyncClock)},
				&protocol.Response{
					Header:    protocol.NewHeader(protocol.MsgTypePingResponse),
					RequestID: req.RequestID,
				},
			} {
				res, _ := protocol.MsgFromMessage(m)
				protocol.Send(conn, res)
			}
		}
	}))
	t.Cleanup(server.Close)

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http"), "", server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestScenario(t *testing.T) {
	t.Run("messages are filtered", func(t *testing.T) {
		conn := newPingServer(t)

		var res protocol.Response
		err := NewScenario(conn).
			Send(func() protocol.Message {
				return &protocol.Request{
					Header:    protocol.NewHeader(protocol.MsgTypePingRequest),
					RequestID: 7,
				}
			}).
			Receive(
				FilterByType(protocol.MsgTypePingResponse),
				FilterByRequestID(7),
				DataTo(&res),
			).
			Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint32(7), res.RequestID)
	})

	t.Run("handler error stops the scenario", func(t *testing.T) {
		conn := newPingServer(t)

		err := NewScenario(conn).
			Send(func() protocol.Message {
				return &protocol.Request{
					Header:    protocol.NewHeader(protocol.MsgTypePingRequest),
					RequestID: 1,
				}
			}).
			Receive(func(msg protocol.Msg) error {
				return context.Canceled
			}).
			Run(context.Background())
		require.Error(t, err)
	})

	t.Run("scenario times out", func(t *testing.T) {
		conn := newPingServer(t)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := NewScenario(conn).
			Receive(FilterByType(protocol.MsgTypePingResponse)).
			Run(ctx)
		require.Error(t, err)
	})
}
