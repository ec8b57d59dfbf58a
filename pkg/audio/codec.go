// Package audio converts between the wire form of speech audio (base64
// PCM16) and playable sample buffers, and schedules decoded buffers for
// gap-free playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// FormatError reports an audio payload that cannot be interpreted as PCM16
// in the declared layout. Check for it with errors.As.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: %s: %v", e.Reason, e.Err)
	}
	return "audio: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// Encode encodes raw bytes to the base64 form used on the wire.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode decodes a base64 wire payload back to raw bytes. Malformed text
// returns a *FormatError.
func Decode(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &FormatError{Reason: "invalid base64 audio payload", Err: err}
	}
	return data, nil
}

// Buffer is decoded audio: interleaved float samples in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// PCM16 converts the buffer back to little-endian PCM16 wire bytes,
// clamping samples outside [-1, 1].
func (b *Buffer) PCM16() []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, v := range b.Samples {
		s := math.Round(float64(v) * 32768)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// Reconstruct interprets data as little-endian PCM16 with the given layout
// and returns normalized float samples. The byte length must be a whole
// number of frames (2 bytes per sample per channel) or a *FormatError is
// returned.
func Reconstruct(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &FormatError{Reason: fmt.Sprintf("invalid channel count %d", channels)}
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return nil, &FormatError{
			Reason: fmt.Sprintf("payload length %d is not a multiple of frame size %d", len(data), frameBytes),
		}
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return &Buffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}
