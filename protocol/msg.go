// Package protocol defines the JSON messages exchanged between cellgrid
// servers and their clients, and the helpers to move them over a WebSocket
// connection.
package protocol

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	// Error type returned when a message requires a joined region.
	ErrTypeRegionNotJoined = "region_not_joined"

	// Error type returned by modules to signal that they skipped a message.
	ErrTypeMsgSkip = "msg_skip"
)

// Message is implemented by every message struct of the protocol.
type Message interface {
	GetType() MsgType
}

// Header contains the fields shared by every message.
type Header struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHeader returns a header of the given type stamped with the current time.
func NewHeader(t MsgType) Header {
	return Header{
		Type:      t,
		Timestamp: time.Now(),
	}
}

func (h Header) GetType() MsgType {
	return h.Type
}

// Msg is a received or encoded message whose body has not been decoded in a
// concrete message type yet.
type Msg struct {
	Type MsgType
	Time time.Time
	Data []byte
}

// MsgFromMessage encodes the given message.
func MsgFromMessage(m Message) (Msg, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").
			WithTag("type", m.GetType()).
			Wrap(err)
	}

	return Msg{
		Type: m.GetType(),
		Time: time.Now(),
		Data: data,
	}, nil
}

// MsgFromBytes parses the header of an encoded message.
func MsgFromBytes(data []byte) (Msg, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Msg{}, errors.New("decoding message header failed").Wrap(err)
	}
	if h.Type == "" {
		return Msg{}, errors.New("message type is missing")
	}

	return Msg{
		Type: h.Type,
		Time: h.Timestamp,
		Data: data,
	}, nil
}

// DataTo decodes the message body into v.
func (m Msg) DataTo(v Message) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message failed").
			WithTag("type", m.Type).
			Wrap(err)
	}
	return nil
}

// ResponseSender sends messages to a connected client.
type ResponseSender interface {
	// Encodes and sends the given message.
	Send(Message)

	// Sends an already encoded message.
	SendMsg(Msg)
}

// Sender writes a message on a connection and returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// Receiver reads a message from a connection and returns it with the number
// of bytes read.
type Receiver func() (Msg, int, error)

// Send writes the given message as a text frame.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	if err := websocket.Message.Send(conn, string(msg.Data)); err != nil {
		return 0, err
	}
	return len(msg.Data), nil
}

// Receive reads the next message from the connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	msg, err := MsgFromBytes(data)
	if err != nil {
		return Msg{}, len(data), err
	}
	return msg, len(data), nil
}

// TypeString returns the message type as a string.
func (m Msg) TypeString() string {
	return string(m.Type)
}
