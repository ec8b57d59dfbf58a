package protocol

import (
	"encoding/base64"
	"fmt"
	"time"
)

// NewMicMessage wraps captured microphone audio. Capture is always mono.
func NewMicMessage(pcm []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, PCMData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcm),
	})
}

// NewAudioMessage wraps synthesized speech for playback. Providers emit
// mono.
func NewAudioMessage(pcm []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudio, PCMData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcm),
	})
}

// NewPermissionMessage reports the browser's microphone prompt outcome.
func NewPermissionMessage(granted bool, reason string) (*Message, error) {
	return NewMessage(TypePermission, PermissionData{Granted: granted, Reason: reason})
}

// NewSessionMessage reports the voice session state to the page.
func NewSessionMessage(state, provider string) (*Message, error) {
	return NewMessage(TypeSession, SessionData{State: state, Provider: provider})
}

// NewClearMessage tells the page to drop everything queued for playback.
func NewClearMessage() (*Message, error) {
	return NewMessage(TypeClear, nil)
}

// NewPingMessage starts a liveness probe.
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage answers a ping.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// payload parses the envelope's data as T.
func payload[T any](m *Message) (*T, error) {
	var data T
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Decode returns the raw PCM16 bytes.
func (p *PCMData) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// PCM returns the audio payload of a mic or audio message.
func (m *Message) PCM() (*PCMData, error) {
	if m.Type != TypeMic && m.Type != TypeAudio {
		return nil, fmt.Errorf("protocol: %s message carries no audio", m.Type)
	}
	return payload[PCMData](m)
}

// Permission returns the payload of a permission message.
func (m *Message) Permission() (*PermissionData, error) {
	if m.Type != TypePermission {
		return nil, fmt.Errorf("protocol: %s message carries no permission result", m.Type)
	}
	return payload[PermissionData](m)
}

// Session returns the payload of a session message.
func (m *Message) Session() (*SessionData, error) {
	if m.Type != TypeSession {
		return nil, fmt.Errorf("protocol: %s message carries no session state", m.Type)
	}
	return payload[SessionData](m)
}

// Ping returns the payload of a ping message.
func (m *Message) Ping() (*PingData, error) {
	if m.Type != TypePing {
		return nil, fmt.Errorf("protocol: %s message is not a ping", m.Type)
	}
	return payload[PingData](m)
}

// Pong returns the payload of a pong message.
func (m *Message) Pong() (*PongData, error) {
	if m.Type != TypePong {
		return nil, fmt.Errorf("protocol: %s message is not a pong", m.Type)
	}
	return payload[PongData](m)
}
