package table

import (
	"encoding/json"
	"fmt"
)

// MessageType is the type of a streaming channel message.
type MessageType string

const (
	// Server -> client
	MsgTypeSnapshot  MessageType = "snapshot"  // full table state
	MsgTypeDelta     MessageType = "delta"     // partial update, sequence must be previous+1
	MsgTypeHeartbeat MessageType = "heartbeat" // keep-alive
	MsgTypeError     MessageType = "error"     // server-side error notice

	// Client -> server
	MsgTypeSubscribe       MessageType = "subscribe"        // handshake for a table
	MsgTypeRequestSnapshot MessageType = "request_snapshot" // resync request
	MsgTypePong            MessageType = "pong"             // heartbeat reply
)

// Message is the envelope of every streaming channel message.
type Message struct {
	Type     MessageType     `json:"type"`
	Sequence uint64          `json:"sequence,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a Message with a marshaled payload.
func NewMessage(msgType MessageType, sequence uint64, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: msgType, Sequence: sequence}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Message{
		Type:     msgType,
		Sequence: sequence,
		Payload:  b,
	}, nil
}

// Parse unmarshals the payload into the message's concrete type:
// *TableState, *Delta, *HeartbeatPayload, *ErrorPayload, *SubscribePayload,
// *RequestSnapshotPayload or *PongPayload. For snapshots and deltas the
// envelope sequence wins over the payload one when both are set.
func (m *Message) Parse() (interface{}, error) {
	var target interface{}
	switch m.Type {
	case MsgTypeSnapshot:
		target = &TableState{}
	case MsgTypeDelta:
		target = &Delta{}
	case MsgTypeHeartbeat:
		target = &HeartbeatPayload{}
	case MsgTypeError:
		target = &ErrorPayload{}
	case MsgTypeSubscribe:
		target = &SubscribePayload{}
	case MsgTypeRequestSnapshot:
		target = &RequestSnapshotPayload{}
	case MsgTypePong:
		target = &PongPayload{}
	default:
		return nil, fmt.Errorf("unknown message type: %s", m.Type)
	}

	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", m.Type, err)
		}
	}

	switch v := target.(type) {
	case *TableState:
		if m.Sequence != 0 {
			v.Sequence = m.Sequence
		}
	case *Delta:
		if m.Sequence != 0 {
			v.Sequence = m.Sequence
		}
	}
	return target, nil
}

// SubscribePayload is the handshake sent after dialing.
type SubscribePayload struct {
	TableID      string `json:"table_id"`
	LastSequence uint64 `json:"last_sequence,omitempty"`
}

// RequestSnapshotPayload asks the server for a fresh full snapshot.
type RequestSnapshotPayload struct {
	TableID      string `json:"table_id"`
	LastSequence uint64 `json:"last_sequence,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// HeartbeatPayload is the keep-alive sent by the server.
type HeartbeatPayload struct {
	ServerTime int64 `json:"server_time,omitempty"` // unix nanos
}

// PongPayload answers a heartbeat.
type PongPayload struct {
	ServerTime int64 `json:"server_time,omitempty"` // echoed from the heartbeat
	ClientTime int64 `json:"client_time"`
}

// ErrorPayload is a server-side error notice.
type ErrorPayload struct {
	Message string `json:"message"`
}
