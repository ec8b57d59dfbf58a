// Package protocol defines the WebSocket messages of the browser audio
// bridge. One socket carries microphone audio up and synthesized speech,
// session state, and barge-in clears back down; every frame is a JSON
// envelope with a type tag and a type-specific payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType tags the envelope with its payload kind.
type MessageType string

const (
	// Browser → server
	TypeMic        MessageType = "mic"        // microphone audio
	TypePermission MessageType = "permission" // getUserMedia outcome

	// Server → browser
	TypeAudio   MessageType = "audio"   // synthesized speech playback
	TypeSession MessageType = "session" // voice session state
	TypeClear   MessageType = "clear"   // drop queued playback (barge-in)

	// Either direction
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the wire envelope. Data holds the payload struct for the
// given Type, or nothing for payload-free types like clear.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps data in a stamped envelope.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	msg := &Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// Bytes renders the envelope as JSON.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseData unmarshals the payload into v. An empty payload leaves v
// untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// ParseMessage decodes one wire frame. Frames without a type tag are
// rejected outright.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: message has no type")
	}
	return &msg, nil
}

// PCMData carries base64-encoded PCM16 audio in either direction:
// microphone capture up (TypeMic), synthesized speech down (TypeAudio).
type PCMData struct {
	Format     string `json:"format"` // always "pcm16"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Data       string `json:"data"`
}

// PermissionData reports the outcome of the browser's microphone prompt.
type PermissionData struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"` // "denied by user", "no device"
}

// SessionData tells the page what the voice session is doing.
type SessionData struct {
	State    string `json:"state"` // "idle", "connecting", "active"
	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PingData is a liveness probe.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData answers a ping and carries both clocks so either side can
// compute the round trip.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
