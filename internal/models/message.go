package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeReading   MessageType = "reading"
	MessageTypeBatch     MessageType = "batch"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeAck       MessageType = "ack"
	MessageTypeError     MessageType = "error"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeInvalidPayload   = "invalid_payload"
	ErrorCodeStoreUnavailable = "store_unavailable"
	ErrorCodeUnknownType      = "unknown_type"
)

// Message is the envelope for all WebSocket communications
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// BatchMessage is the payload for MessageTypeBatch.
// Each entry is an ingest payload, validated individually by the server.
type BatchMessage struct {
	Readings []json.RawMessage `json:"readings"`
	Count    int               `json:"count"`
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat
type HeartbeatMessage struct {
	DeviceID   string `json:"device_id"`
	Uptime     int64  `json:"uptime"`
	BufferSize int    `json:"buffer_size"`
}

// AckMessage is the payload for MessageTypeAck
type AckMessage struct {
	Status string   `json:"status"`
	IDs    []string `json:"ids,omitempty"`
}

// ErrorMessage is the payload for MessageTypeError
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
