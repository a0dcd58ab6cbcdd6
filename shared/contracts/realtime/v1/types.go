// Package v1 defines the realtime invalidation protocol v1.
//
// The server pushes one envelope per change; clients treat every event as a
// hint to refetch, never as authoritative data to merge.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated on the websocket upgrade.
const Subprotocol = "arc.realtime.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts a session handshake (client -> server).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (server -> client).
	TypeHelloAck = "hello_ack"

	// TypeMessageNew announces an accepted message (server -> members).
	TypeMessageNew = "message_new"
	// TypeConversationRead announces a read marker change (server -> members).
	TypeConversationRead = "conversation_read"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	ConvID  string          `json:"conv_id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeHello, TypeHelloAck, TypeError:
		return nil
	case TypeMessageNew, TypeConversationRead:
		if strings.TrimSpace(e.ConvID) == "" {
			return fmt.Errorf("missing field: conv_id for %s", e.Type)
		}
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// New builds an envelope with a JSON-encoded payload.
func New(typ, convID string, ts time.Time, payload any) (Envelope, error) {
	env := Envelope{V: Version, Type: typ, ConvID: convID, TS: ts.UTC()}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = b
	}
	return env, nil
}

// HelloAckPayload carries the server-side connection id.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
}

// MessageNewPayload is broadcast when a new message is accepted (non-duplicate).
type MessageNewPayload struct {
	ConversationID string    `json:"conversation_id"`
	ClientMsgID    string    `json:"client_msg_id"`
	ServerMsgID    string    `json:"server_msg_id"`
	Seq            int64     `json:"seq"`
	Sender         string    `json:"sender"`
	Text           string    `json:"text"`
	ServerTS       time.Time `json:"server_ts"`
}

// ConversationReadPayload is broadcast when a member advances their read marker.
type ConversationReadPayload struct {
	ConversationID   string `json:"conversation_id"`
	UserID           string `json:"user_id"`
	LastReadSequence int64  `json:"last_read_sequence"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
