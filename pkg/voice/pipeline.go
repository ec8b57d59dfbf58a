package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Common errors returned by pipelines.
var (
	ErrNotConnected     = errors.New("voice: pipeline not connected")
	ErrAlreadyStarted   = errors.New("voice: pipeline already started")
	ErrMissingAPIKey    = errors.New("voice: missing API key")
	ErrConnectionFailed = errors.New("voice: connection failed")
)

// Pipeline is a live bidirectional voice session with a speech model:
// caller audio up, synthesized speech and events down, over one streaming
// connection. Lifecycle calls are serialized by the owner.
type Pipeline interface {
	// Start dials the provider and begins the session. Register tools
	// and set callbacks first; Start snapshots both. Dial failures wrap
	// ErrConnectionFailed and are not retried.
	Start(ctx context.Context) error

	// Stop closes the connection and ends the session.
	Stop() error

	// IsConnected reports whether the session is live.
	IsConnected() bool

	// SendAudio pushes mono PCM16 at Config().InputSampleRate up to
	// the model. Fails with ErrNotConnected before Start.
	SendAudio(pcm16 []byte) error

	// OnAudioOut delivers synthesized speech as it streams in, mono
	// PCM16 at Config().OutputSampleRate.
	OnAudioOut(fn func(pcm16 []byte))

	// OnSpeechStart fires when server-side VAD hears the user. This is
	// the barge-in signal: queued playback should be cut immediately.
	OnSpeechStart(fn func())

	// OnSpeechEnd fires when the user's turn ends.
	OnSpeechEnd(fn func())

	// OnTranscript streams the recognized user speech. isFinal marks
	// the last fragment of a turn.
	OnTranscript(fn func(text string, isFinal bool))

	// OnResponse streams the model's text alongside its audio. isFinal
	// marks the end of the response.
	OnResponse(fn func(text string, isFinal bool))

	// OnError reports session failures. A pipeline never reconnects on
	// its own; the owner decides what the session's end means.
	OnError(fn func(err error))

	// RegisterTool declares a tool the model may invoke. Tools
	// registered after Start are invisible to the running session.
	RegisterTool(tool Tool)

	// OnToolCall fires for each model tool invocation. Answer with
	// SubmitToolResult using the call's ID.
	OnToolCall(fn func(call ToolCall))

	// SubmitToolResult returns a tool call result to the model.
	SubmitToolResult(callID string, result string) error

	// Interrupt cancels the in-flight model response for barge-in.
	Interrupt() error

	// Metrics returns counters and latencies for the current session.
	Metrics() Metrics

	// Config returns the configuration the pipeline was built with.
	Config() Config
}

// PipelineFactory is a function that creates a Pipeline.
type PipelineFactory func(cfg Config) (Pipeline, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[Provider]PipelineFactory)
)

// Register installs a pipeline factory for a provider. Bundled
// implementations call this from init(); a duplicate registration panics
// since it can only be a programming error.
func Register(p Provider, f PipelineFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[p]; dup {
		panic("voice: Register called twice for provider " + string(p))
	}
	registry[p] = f
}

// New creates a Pipeline for cfg.Provider. Returns an error if the config
// is invalid or the provider has no registered implementation.
func New(cfg Config) (Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	f, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("voice: no pipeline registered for provider %q", cfg.Provider)
	}

	return f(cfg)
}

// Providers returns the registered provider names.
func Providers() []Provider {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Provider, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	return out
}

// Callbacks bundles every pipeline callback so a session can be wired in
// one Apply call. Nil fields are left unset on the pipeline.
type Callbacks struct {
	OnAudioOut    func(pcm16 []byte)
	OnSpeechStart func()
	OnSpeechEnd   func()
	OnTranscript  func(text string, isFinal bool)
	OnResponse    func(text string, isFinal bool)
	OnToolCall    func(call ToolCall)
	OnError       func(err error)
}

// Apply installs the non-nil callbacks on p.
func (c *Callbacks) Apply(p Pipeline) {
	if c.OnError != nil {
		p.OnError(c.OnError)
	}
	if c.OnAudioOut != nil {
		p.OnAudioOut(c.OnAudioOut)
	}
	if c.OnToolCall != nil {
		p.OnToolCall(c.OnToolCall)
	}
	if c.OnTranscript != nil {
		p.OnTranscript(c.OnTranscript)
	}
	if c.OnResponse != nil {
		p.OnResponse(c.OnResponse)
	}
	if c.OnSpeechStart != nil {
		p.OnSpeechStart(c.OnSpeechStart)
	}
	if c.OnSpeechEnd != nil {
		p.OnSpeechEnd(c.OnSpeechEnd)
	}
}
