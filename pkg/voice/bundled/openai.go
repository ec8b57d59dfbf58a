package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicdesk/clinicvoice/pkg/debug"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

const (
	openAIRealtimeURL  = "wss://api.openai.com/v1/realtime"
	openAIDefaultModel = "gpt-4o-realtime-preview-2024-12-17"
	openAIDefaultVoice = "alloy"

	// Window for collecting tool calls into one parallel batch. The
	// Realtime API emits function_call_arguments.done events one at a
	// time even when the model requested several calls in a turn.
	openAIToolBatchWindow = 50 * time.Millisecond
)

// Uplink events.

type openAISessionUpdate struct {
	Type    string        `json:"type"` // session.update
	Session openAISession `json:"session"`
}

type openAISession struct {
	Modalities         []string            `json:"modalities"`
	Voice              string              `json:"voice"`
	InputAudioFormat   string              `json:"input_audio_format"`
	OutputAudioFormat  string              `json:"output_audio_format"`
	InputTranscription openAIASR           `json:"input_audio_transcription"`
	TurnDetection      openAITurnDetection `json:"turn_detection"`
	Instructions       string              `json:"instructions,omitempty"`
	Temperature        float64             `json:"temperature,omitempty"`
	Tools              []openAIToolDef     `json:"tools,omitempty"`
	ToolChoice         string              `json:"tool_choice,omitempty"`
}

type openAIASR struct {
	Model string `json:"model"`
}

type openAITurnDetection struct {
	Type              string  `json:"type"` // server_vad
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int64   `json:"prefix_padding_ms"`
	SilenceDurationMs int64   `json:"silence_duration_ms"`
}

type openAIToolDef struct {
	Type        string         `json:"type"` // function
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openAIAudioAppend struct {
	Type  string `json:"type"` // input_audio_buffer.append
	Audio string `json:"audio"`
}

type openAIItemCreate struct {
	Type string     `json:"type"` // conversation.item.create
	Item openAIItem `json:"item"`
}

type openAIItem struct {
	Type   string `json:"type"` // function_call_output
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type openAIBareEvent struct {
	Type string `json:"type"` // response.create, response.cancel
}

// openAIServerEvent is the downlink envelope. Only the fields relevant to
// the event's type are populated; the rest decode to zero values.
type openAIServerEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta"`
	Transcript string       `json:"transcript"`
	Name       string       `json:"name"`
	CallID     string       `json:"call_id"`
	Arguments  string       `json:"arguments"`
	Error      *openAIError `json:"error"`
}

type openAIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// pendingCall is a tool invocation waiting for its batch to run.
type pendingCall struct {
	name   string
	callID string
	args   map[string]any
}

// OpenAI implements voice.Pipeline on OpenAI's Realtime API. GPT-4o
// handles VAD, ASR, and TTS over a single WebSocket.
type OpenAI struct {
	config voice.Config

	wsMu sync.Mutex // serializes writes
	ws   *websocket.Conn

	mu           sync.RWMutex
	connected    bool
	sessionReady bool
	closed       bool
	cancel       context.CancelFunc

	tools    []voice.Tool
	toolsMap map[string]voice.Tool

	// Tool calls queue here until the batch window closes, then run in
	// parallel and answer with a single response.create.
	batchMu    sync.Mutex
	batch      []pendingCall
	batchTimer *time.Timer

	metrics *voice.MetricsCollector

	// Callbacks are read without a lock; set them before Start.
	onAudioOut    func(pcm16 []byte)
	onSpeechStart func()
	onSpeechEnd   func()
	onTranscript  func(text string, isFinal bool)
	onResponse    func(text string, isFinal bool)
	onToolCall    func(call voice.ToolCall)
	onError       func(err error)
}

// NewOpenAI creates a new OpenAI Realtime pipeline.
func NewOpenAI(cfg voice.Config) (*OpenAI, error) {
	if cfg.OpenAIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}
	return &OpenAI{
		config:   cfg,
		toolsMap: make(map[string]voice.Tool),
		metrics:  voice.NewMetricsCollector(),
	}, nil
}

// Start dials the Realtime endpoint, configures the session, and begins
// the read loop. The session ends when Stop is called, the socket drops,
// or ctx is cancelled.
func (o *OpenAI) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	o.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	model := o.config.Model
	if model == "" {
		model = openAIDefaultModel
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+o.config.OpenAIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	url := fmt.Sprintf("%s?model=%s", openAIRealtimeURL, model)
	ws, _, err := dialer.DialContext(sctx, url, headers)
	if err != nil {
		cancel()
		return fmt.Errorf("voice/openai: %w: %v", voice.ErrConnectionFailed, err)
	}

	o.mu.Lock()
	o.ws = ws
	o.connected = true
	o.closed = false
	o.mu.Unlock()

	go o.readLoop(ws)
	go func() {
		<-sctx.Done()
		o.mu.RLock()
		closed := o.closed
		o.mu.RUnlock()
		if !closed {
			o.Stop()
		}
	}()

	if err := o.sendJSON(o.sessionUpdate()); err != nil {
		o.Stop()
		return fmt.Errorf("voice/openai: session update failed: %w", err)
	}

	if o.config.Debug {
		debug.Logln("🎤 OpenAI Realtime connecting...")
	}
	return nil
}

// sessionUpdate renders the session configuration: voice, audio formats,
// server VAD, and the tool declarations.
func (o *OpenAI) sessionUpdate() openAISessionUpdate {
	voiceName := o.config.Voice
	if voiceName == "" {
		voiceName = openAIDefaultVoice
	}

	session := openAISession{
		Modalities:         []string{"text", "audio"},
		Voice:              voiceName,
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		InputTranscription: openAIASR{Model: "whisper-1"},
		TurnDetection: openAITurnDetection{
			Type:              "server_vad",
			Threshold:         o.config.VADThreshold,
			PrefixPaddingMs:   o.config.VADPrefixPadding.Milliseconds(),
			SilenceDurationMs: o.config.VADSilenceDuration.Milliseconds(),
		},
		Instructions: o.config.SystemPrompt,
		Temperature:  o.config.Temperature,
	}

	if len(o.tools) > 0 {
		session.Tools = make([]openAIToolDef, len(o.tools))
		for i, tool := range o.tools {
			session.Tools[i] = openAIToolDef{
				Type:        "function",
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		session.ToolChoice = "auto"
	}

	return openAISessionUpdate{Type: "session.update", Session: session}
}

// Stop closes the connection and ends the session. Safe to call twice.
func (o *OpenAI) Stop() error {
	o.mu.Lock()
	o.closed = true
	o.connected = false
	o.sessionReady = false
	ws := o.ws
	o.ws = nil
	o.mu.Unlock()

	o.batchMu.Lock()
	if o.batchTimer != nil {
		o.batchTimer.Stop()
		o.batchTimer = nil
	}
	o.batch = nil
	o.batchMu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// IsConnected reports whether the session is configured and live.
func (o *OpenAI) IsConnected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected && o.sessionReady && !o.closed
}

// SendAudio appends PCM16 to the input buffer. Server-side VAD decides
// when a turn starts and ends.
func (o *OpenAI) SendAudio(pcm16 []byte) error {
	o.mu.RLock()
	ready := o.connected && !o.closed
	o.mu.RUnlock()
	if !ready {
		return voice.ErrNotConnected
	}

	o.metrics.IncrementAudioIn()
	debug.WireLog("🎤 -> audio %d bytes\n", len(pcm16))

	return o.sendJSON(openAIAudioAppend{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm16),
	})
}

// Callback setters. The read loop calls these without a lock, so install
// them before Start.

func (o *OpenAI) OnAudioOut(fn func(pcm16 []byte))                { o.onAudioOut = fn }
func (o *OpenAI) OnSpeechStart(fn func())                         { o.onSpeechStart = fn }
func (o *OpenAI) OnSpeechEnd(fn func())                           { o.onSpeechEnd = fn }
func (o *OpenAI) OnTranscript(fn func(text string, isFinal bool)) { o.onTranscript = fn }
func (o *OpenAI) OnResponse(fn func(text string, isFinal bool))   { o.onResponse = fn }
func (o *OpenAI) OnToolCall(fn func(call voice.ToolCall))         { o.onToolCall = fn }
func (o *OpenAI) OnError(fn func(err error))                      { o.onError = fn }

// RegisterTool declares a tool before Start; the declarations go out with
// session.update.
func (o *OpenAI) RegisterTool(tool voice.Tool) {
	o.tools = append(o.tools, tool)
	o.toolsMap[tool.Name] = tool
}

// SubmitToolResult answers a function call and requests a spoken response.
func (o *OpenAI) SubmitToolResult(callID string, result string) error {
	if err := o.sendJSON(openAIItemCreate{
		Type: "conversation.item.create",
		Item: openAIItem{Type: "function_call_output", CallID: callID, Output: result},
	}); err != nil {
		return err
	}
	return o.sendJSON(openAIBareEvent{Type: "response.create"})
}

// Interrupt cancels the in-flight response.
func (o *OpenAI) Interrupt() error {
	return o.sendJSON(openAIBareEvent{Type: "response.cancel"})
}

// Metrics returns current session metrics.
func (o *OpenAI) Metrics() voice.Metrics {
	return o.metrics.Current()
}

// Config returns the configuration the pipeline was built with.
func (o *OpenAI) Config() voice.Config {
	return o.config
}

// readLoop pumps events off the socket until it closes.
func (o *OpenAI) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			o.mu.RLock()
			closed := o.closed
			o.mu.RUnlock()
			if !closed && o.onError != nil {
				o.onError(fmt.Errorf("voice/openai: read: %w", err))
			}
			return
		}
		o.dispatch(raw)
	}
}

// dispatch parses one downlink event and routes it by type.
func (o *OpenAI) dispatch(raw []byte) {
	var ev openAIServerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		if o.config.Debug {
			debug.Log("🎤 Unparseable event (%d bytes): %v\n", len(raw), err)
		}
		return
	}
	debug.WireLog("🎤 <- %s (%d bytes)\n", ev.Type, len(raw))

	switch ev.Type {
	case "session.created":
		if o.config.Debug {
			debug.Logln("🎤 OpenAI session created")
		}

	case "session.updated":
		o.mu.Lock()
		o.sessionReady = true
		o.mu.Unlock()
		o.metrics.MarkConnected()
		if o.config.Debug {
			debug.Logln("🎤 OpenAI session ready")
		}

	case "input_audio_buffer.speech_started":
		if o.config.Debug {
			debug.Logln("🎤 Speech started")
		}
		if o.onSpeechStart != nil {
			o.onSpeechStart()
		}

	case "input_audio_buffer.speech_stopped":
		o.metrics.MarkSpeechEnd()
		if o.config.Debug {
			debug.Logln("🎤 Speech stopped")
		}
		if o.onSpeechEnd != nil {
			o.onSpeechEnd()
		}

	case "conversation.item.input_audio_transcription.completed":
		if ev.Transcript != "" && o.onTranscript != nil {
			o.onTranscript(ev.Transcript, true)
		}

	case "response.audio.delta":
		if ev.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			if o.config.Debug {
				debug.Log("🎤 Bad audio payload: %v\n", err)
			}
			return
		}
		o.metrics.MarkAudioOut()
		if o.onAudioOut != nil {
			o.onAudioOut(pcm)
		}

	case "response.audio.done":
		o.metrics.MarkTurnComplete()
		if o.config.ProfileLatency {
			m := o.metrics.Current()
			fmt.Printf("⏱️  %s\n", m.FormatLatency())
		}

	case "response.audio_transcript.delta":
		if ev.Delta != "" && o.onResponse != nil {
			o.onResponse(ev.Delta, false)
		}

	case "response.audio_transcript.done":
		if ev.Transcript != "" && o.onResponse != nil {
			o.onResponse(ev.Transcript, true)
		}

	case "response.function_call_arguments.done":
		o.queueToolCall(ev)

	case "error":
		if ev.Error != nil && o.onError != nil {
			o.onError(fmt.Errorf("voice/openai: server error: %s", ev.Error.Message))
		}

	default:
		if o.config.Debug {
			debug.Log("🎤 Unhandled event: %s\n", ev.Type)
		}
	}
}

// queueToolCall hands the invocation to the external callback or, when
// none is installed, adds it to the current batch and (re)arms the window.
func (o *OpenAI) queueToolCall(ev openAIServerEvent) {
	args := make(map[string]any)
	if ev.Arguments != "" {
		if err := json.Unmarshal([]byte(ev.Arguments), &args); err != nil && o.config.Debug {
			debug.Log("🎤 Bad tool arguments for %s: %v\n", ev.Name, err)
		}
	}

	o.metrics.IncrementToolCalls()
	if o.config.Debug {
		debug.Log("🎤 Tool call: %s (%s)\n", ev.Name, ev.CallID)
	}

	if o.onToolCall != nil {
		o.onToolCall(voice.ToolCall{ID: ev.CallID, Name: ev.Name, Arguments: args})
		return
	}

	o.batchMu.Lock()
	defer o.batchMu.Unlock()

	o.batch = append(o.batch, pendingCall{name: ev.Name, callID: ev.CallID, args: args})
	if o.batchTimer != nil {
		o.batchTimer.Stop()
	}
	o.batchTimer = time.AfterFunc(openAIToolBatchWindow, o.runBatch)
}

// runBatch executes the queued tool calls in parallel, submits each
// result, then requests a single spoken response.
func (o *OpenAI) runBatch() {
	o.batchMu.Lock()
	batch := o.batch
	o.batch = nil
	o.batchTimer = nil
	o.batchMu.Unlock()

	if len(batch) == 0 {
		return
	}
	if o.config.Debug {
		debug.Log("🎤 Executing %d tool call(s)\n", len(batch))
	}

	results := make([]string, len(batch))
	var wg sync.WaitGroup
	for i, call := range batch {
		wg.Add(1)
		go func(i int, call pendingCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Sprintf("Error: tool panicked: %v", r)
				}
			}()

			tool, ok := o.toolsMap[call.name]
			if !ok || tool.Handler == nil {
				results[i] = "Function not found"
				return
			}
			result, err := tool.Handler(call.args)
			if err != nil {
				results[i] = fmt.Sprintf("Error: %v", err)
				return
			}
			results[i] = result
		}(i, call)
	}
	wg.Wait()

	for i, call := range batch {
		err := o.sendJSON(openAIItemCreate{
			Type: "conversation.item.create",
			Item: openAIItem{Type: "function_call_output", CallID: call.callID, Output: results[i]},
		})
		if err != nil && o.onError != nil {
			o.onError(fmt.Errorf("voice/openai: submit tool result: %w", err))
		}
	}

	if err := o.sendJSON(openAIBareEvent{Type: "response.create"}); err != nil && o.onError != nil {
		o.onError(fmt.Errorf("voice/openai: request response: %w", err))
	}
}

// sendJSON writes one event, serialized against concurrent senders.
func (o *OpenAI) sendJSON(v any) error {
	o.wsMu.Lock()
	defer o.wsMu.Unlock()

	o.mu.RLock()
	ws := o.ws
	o.mu.RUnlock()
	if ws == nil {
		return voice.ErrNotConnected
	}
	return ws.WriteJSON(v)
}

// Ensure OpenAI implements voice.Pipeline at compile time.
var _ voice.Pipeline = (*OpenAI)(nil)

func init() {
	voice.Register(voice.ProviderOpenAI, func(cfg voice.Config) (voice.Pipeline, error) {
		return NewOpenAI(cfg)
	})
}
