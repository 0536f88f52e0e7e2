package protocol

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aukilabs/cellgrid/geometry"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func TestMsgFromMessage(t *testing.T) {
	msg, err := MsgFromMessage(&EntityAddRequest{
		Header:    NewHeader(MsgTypeEntityAddRequest),
		RequestID: 7,
		Kind:      "crate",
		Bounds:    geometry.NewRectangle(1, 2, 3, 4),
	})
	require.NoError(t, err)
	require.Equal(t, MsgTypeEntityAddRequest, msg.Type)
	require.NotZero(t, msg.Time)
	require.Contains(t, string(msg.Data), `"type":"entity_add_request"`)

	var req EntityAddRequest
	err = msg.DataTo(&req)
	require.NoError(t, err)
	require.Equal(t, uint32(7), req.RequestID)
	require.Equal(t, "crate", req.Kind)
	require.Equal(t, geometry.NewRectangle(1, 2, 3, 4), req.Bounds)
}

func TestMsgFromBytes(t *testing.T) {
	t.Run("header is parsed", func(t *testing.T) {
		msg, err := MsgFromBytes([]byte(`{"type":"ping_request","timestamp":"2024-03-01T10:00:00Z","request_id":3}`))
		require.NoError(t, err)
		require.Equal(t, MsgTypePingRequest, msg.Type)
		require.Equal(t, 2024, msg.Time.Year())

		var req Request
		err = msg.DataTo(&req)
		require.NoError(t, err)
		require.Equal(t, uint32(3), req.RequestID)
	})

	t.Run("missing type returns an error", func(t *testing.T) {
		_, err := MsgFromBytes([]byte(`{"request_id":3}`))
		require.Error(t, err)
	})

	t.Run("invalid json returns an error", func(t *testing.T) {
		_, err := MsgFromBytes([]byte(`{"type":`))
		require.Error(t, err)
	})
}

func TestMsgDataTo(t *testing.T) {
	msg := Msg{
		Type: MsgTypeRegionQueryRequest,
		Data: []byte(`{"type":"region_query_request","bounds":"oops"}`),
	}

	var req RegionQueryRequest
	err := msg.DataTo(&req)
	require.Error(t, err)
}

func TestSendReceive(t *testing.T) {
	received := make(chan Msg, 1)

	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		msg, _, err := Receive(conn)
		if err != nil {
			close(received)
			return
		}
		received <- msg
	}))
	defer server.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(server.URL, "http"), "", server.URL)
	require.NoError(t, err)
	defer conn.Close()

	msg, err := MsgFromMessage(&Request{
		Header:    NewHeader(MsgTypePingRequest),
		RequestID: 42,
	})
	require.NoError(t, err)

	n, err := Send(conn, msg)
	require.NoError(t, err)
	require.Equal(t, len(msg.Data), n)

	res, ok := <-received
	require.True(t, ok)
	require.Equal(t, MsgTypePingRequest, res.Type)

	var req Request
	err = res.DataTo(&req)
	require.NoError(t, err)
	require.Equal(t, uint32(42), req.RequestID)
}
