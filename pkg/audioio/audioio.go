// Package audioio provides audio capture and playback behind Source and
// Sink interfaces.
//
// Bundled backends:
//   - PortAudio - local microphone and speakers (workstation mode)
//   - Mock - CI/testing without hardware
//
// The browser audio bridge in pkg/web implements the same interfaces, so a
// session controller never knows whether audio comes from a local device or
// a WebSocket client. The backend is selected via configuration; "auto"
// picks the best one for the platform.
package audioio

import (
	"context"
	"errors"
	"io"
)

// ErrPermissionDenied indicates the capture or playback device could not be
// opened: access denied, device missing, or claimed by another process.
// Callers decide whether to surface it to the user; it is never retried here.
var ErrPermissionDenied = errors.New("audio device permission denied")

// Source captures audio from a microphone or other input device.
//
// A Source hands out chunks two ways: pull one at a time with Read, or
// range over Stream. Both drain the same channel, so use one or the other.
type Source interface {
	// Start opens the device and begins capture. A device that cannot be
	// opened returns an error wrapping ErrPermissionDenied. Starting a
	// running source is a no-op.
	Start(ctx context.Context) error

	// Stop halts capture and releases the device. Safe to call repeatedly.
	Stop() error

	// Read blocks for the next chunk. It returns io.EOF once the source
	// has stopped and the remaining chunks are drained.
	Read(ctx context.Context) (AudioChunk, error)

	// Stream returns the capture channel. It is closed when the source
	// stops.
	Stream() <-chan AudioChunk

	// Config returns the configuration the source was built with.
	Config() Config

	// Name identifies the backend ("portaudio", "bridge", "mock").
	Name() string

	// Close releases all resources. A closed source cannot be restarted.
	io.Closer
}

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start opens the device for playback.
	Start(ctx context.Context) error

	// Stop halts playback and releases the device. Safe to call repeatedly.
	Stop() error

	// Write queues a chunk for playback. It may block while the device
	// drains earlier audio.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush plays out whatever is buffered before returning.
	Flush(ctx context.Context) error

	// Clear drops buffered audio immediately. This is the barge-in path:
	// when the user starts talking, queued speech must die now.
	Clear() error

	// Config returns the configuration the sink was built with.
	Config() Config

	// Name identifies the backend ("portaudio", "bridge", "mock").
	Name() string

	// Close releases all resources. A closed sink cannot be restarted.
	io.Closer
}

// SourceStats counts what a source has captured so far.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"` // chunks dropped because the consumer lagged
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SinkStats counts what a sink has played so far.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Underruns       int64  `json:"underruns"` // device starved for samples mid-playback
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

// SourceWithStats is a Source that exposes capture counters.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

// SinkWithStats is a Sink that exposes playback counters.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
