// internal/models/message_test.go
package models

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(MessageTypeHeartbeat, HeartbeatMessage{DeviceID: "sensor-01", Uptime: 42})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != MessageTypeHeartbeat {
		t.Errorf("Type = %v, want %v", msg.Type, MessageTypeHeartbeat)
	}

	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}

	if len(msg.Payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestMessage_UnmarshalPayload(t *testing.T) {
	msg, err := NewMessage(MessageTypeAck, AckMessage{Status: "ok", IDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var ack AckMessage
	if err := msg.UnmarshalPayload(&ack); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if ack.Status != "ok" {
		t.Errorf("Status = %q, want ok", ack.Status)
	}
	if len(ack.IDs) != 2 {
		t.Errorf("len(IDs) = %d, want 2", len(ack.IDs))
	}
}

func TestBatchMessage_KeepsRawPayloads(t *testing.T) {
	batch := BatchMessage{
		Readings: []json.RawMessage{
			json.RawMessage(`{"temperature":20,"humidity":40,"sound":30}`),
			json.RawMessage(`{"temperature":"20"}`),
		},
		Count: 2,
	}

	msg, err := NewMessage(MessageTypeBatch, batch)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	var decoded BatchMessage
	if err := msg.UnmarshalPayload(&decoded); err != nil {
		t.Fatalf("UnmarshalPayload failed: %v", err)
	}

	if decoded.Count != 2 {
		t.Errorf("Count = %d, want 2", decoded.Count)
	}
	if string(decoded.Readings[1]) != `{"temperature":"20"}` {
		t.Errorf("raw payload altered: %s", decoded.Readings[1])
	}
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msg, _ := NewMessage(MessageTypeError, ErrorMessage{Code: ErrorCodeInvalidPayload, Message: "bad"})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != MessageTypeError {
		t.Errorf("Type = %v, want error", decoded.Type)
	}

	var errMsg ErrorMessage
	decoded.UnmarshalPayload(&errMsg)
	if errMsg.Code != ErrorCodeInvalidPayload {
		t.Errorf("Code = %q, want %q", errMsg.Code, ErrorCodeInvalidPayload)
	}
}
