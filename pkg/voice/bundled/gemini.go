// Package bundled provides all-in-one voice pipeline implementations.
package bundled

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicdesk/clinicvoice/pkg/debug"
	"github.com/clinicdesk/clinicvoice/pkg/voice"
)

const (
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/" +
		"google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	geminiDefaultModel = "models/gemini-2.0-flash-exp"
	geminiDefaultVoice = "Puck"
)

// Uplink frames. The Live API accepts snake_case keys.

type geminiSetupFrame struct {
	Setup geminiSetup `json:"setup"`
}

type geminiSetup struct {
	Model            string           `json:"model"`
	GenerationConfig geminiGenConfig  `json:"generation_config"`
	SystemPrompt     *geminiContent   `json:"system_instruction,omitempty"`
	Tools            []geminiToolDecl `json:"tools,omitempty"`

	// Empty objects opt in to transcripts of both legs, so the UI can
	// show captions.
	InputTranscription  struct{} `json:"input_audio_transcription"`
	OutputTranscription struct{} `json:"output_audio_transcription"`
}

type geminiGenConfig struct {
	ResponseModalities []string     `json:"response_modalities"`
	SpeechConfig       geminiSpeech `json:"speech_config"`
	Temperature        float64      `json:"temperature,omitempty"`
}

type geminiSpeech struct {
	VoiceConfig struct {
		Prebuilt struct {
			VoiceName string `json:"voice_name"`
		} `json:"prebuilt_voice_config"`
	} `json:"voice_config"`
}

type geminiContent struct {
	Parts []geminiTextPart `json:"parts"`
}

type geminiTextPart struct {
	Text string `json:"text"`
}

type geminiToolDecl struct {
	FunctionDeclarations []geminiFunction `json:"function_declarations"`
}

type geminiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiAudioFrame struct {
	RealtimeInput geminiRealtimeInput `json:"realtime_input"`
}

type geminiRealtimeInput struct {
	MediaChunks []geminiBlob `json:"media_chunks"`
}

type geminiBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

type geminiToolResultFrame struct {
	ToolResponse geminiToolResponse `json:"tool_response"`
}

type geminiToolResponse struct {
	FunctionResponses []geminiFunctionResponse `json:"function_responses"`
}

type geminiFunctionResponse struct {
	ID       string         `json:"id"`
	Response map[string]any `json:"response"`
}

// Downlink frames arrive camelCase.

type geminiServerFrame struct {
	SetupComplete *struct{}            `json:"setupComplete"`
	ServerContent *geminiServerContent `json:"serverContent"`
	ToolCall      *geminiToolCallFrame `json:"toolCall"`
	ToolCancel    *struct{}            `json:"toolCallCancellation"`
}

type geminiServerContent struct {
	Interrupted         bool                 `json:"interrupted"`
	TurnComplete        bool                 `json:"turnComplete"`
	ModelTurn           *geminiModelTurn     `json:"modelTurn"`
	InputTranscription  *geminiTranscription `json:"inputTranscription"`
	OutputTranscription *geminiTranscription `json:"outputTranscription"`
}

type geminiModelTurn struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text"`
	InlineData *geminiBlob `json:"inlineData"`
}

type geminiTranscription struct {
	Text string `json:"text"`
}

type geminiToolCallFrame struct {
	FunctionCalls []geminiFunctionCall `json:"functionCalls"`
}

type geminiFunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Gemini implements voice.Pipeline on Google's Gemini Live API. A single
// WebSocket carries audio both ways plus transcripts and tool calls; VAD
// and barge-in run server-side.
type Gemini struct {
	config voice.Config

	wsMu sync.Mutex // serializes writes
	ws   *websocket.Conn

	mu        sync.RWMutex
	connected bool
	closed    bool
	cancel    context.CancelFunc

	tools    []voice.Tool
	toolsMap map[string]voice.Tool

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

// NewGemini creates a new Gemini Live pipeline.
func NewGemini(cfg voice.Config) (*Gemini, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, voice.ErrMissingAPIKey
	}
	return &Gemini{
		config:   cfg,
		toolsMap: make(map[string]voice.Tool),
		metrics:  voice.NewMetricsCollector(),
	}, nil
}

// Start dials the Live endpoint, sends the session setup, and begins the
// read loop. The session ends when Stop is called, the socket drops, or
// ctx is cancelled.
func (g *Gemini) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return voice.ErrAlreadyStarted
	}
	g.mu.Unlock()

	sctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	url := fmt.Sprintf("%s?key=%s", geminiLiveURL, g.config.GoogleAPIKey)
	ws, _, err := dialer.DialContext(sctx, url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("voice/gemini: %w: %v", voice.ErrConnectionFailed, err)
	}

	g.mu.Lock()
	g.ws = ws
	g.connected = true
	g.closed = false
	g.mu.Unlock()

	if err := g.sendJSON(g.setupFrame()); err != nil {
		g.Stop()
		return fmt.Errorf("voice/gemini: setup failed: %w", err)
	}

	go g.readLoop(ws)
	go func() {
		<-sctx.Done()
		if g.IsConnected() {
			g.Stop()
		}
	}()

	if g.config.Debug {
		debug.Logln("🌟 Gemini Live connecting...")
	}
	return nil
}

// setupFrame renders the session configuration sent as the first message.
func (g *Gemini) setupFrame() geminiSetupFrame {
	setup := geminiSetup{
		Model: g.config.Model,
		GenerationConfig: geminiGenConfig{
			ResponseModalities: []string{"AUDIO"},
			Temperature:        g.config.Temperature,
		},
	}
	if setup.Model == "" {
		setup.Model = geminiDefaultModel
	}

	voiceName := g.config.Voice
	if voiceName == "" {
		voiceName = geminiDefaultVoice
	}
	setup.GenerationConfig.SpeechConfig.VoiceConfig.Prebuilt.VoiceName = voiceName

	if g.config.SystemPrompt != "" {
		setup.SystemPrompt = &geminiContent{
			Parts: []geminiTextPart{{Text: g.config.SystemPrompt}},
		}
	}

	if len(g.tools) > 0 {
		fns := make([]geminiFunction, len(g.tools))
		for i, tool := range g.tools {
			fns[i] = geminiFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		setup.Tools = []geminiToolDecl{{FunctionDeclarations: fns}}
	}

	return geminiSetupFrame{Setup: setup}
}

// Stop closes the connection and ends the session. Safe to call twice.
func (g *Gemini) Stop() error {
	g.mu.Lock()
	g.closed = true
	g.connected = false
	ws := g.ws
	g.ws = nil
	g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	if ws != nil {
		return ws.Close()
	}
	return nil
}

// IsConnected reports whether the session is live.
func (g *Gemini) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected && !g.closed
}

// SendAudio pushes PCM16 up to the model as a realtime media chunk.
func (g *Gemini) SendAudio(pcm16 []byte) error {
	if !g.IsConnected() {
		return voice.ErrNotConnected
	}

	g.metrics.IncrementAudioIn()
	debug.WireLog("🌟 -> audio %d bytes\n", len(pcm16))

	return g.sendJSON(geminiAudioFrame{
		RealtimeInput: geminiRealtimeInput{
			MediaChunks: []geminiBlob{{
				Data:     base64.StdEncoding.EncodeToString(pcm16),
				MimeType: "audio/pcm",
			}},
		},
	})
}

// Callback setters. The read loop calls these without a lock, so install
// them before Start.

func (g *Gemini) OnAudioOut(fn func(pcm16 []byte))                { g.onAudioOut = fn }
func (g *Gemini) OnSpeechStart(fn func())                         { g.onSpeechStart = fn }
func (g *Gemini) OnSpeechEnd(fn func())                           { g.onSpeechEnd = fn }
func (g *Gemini) OnTranscript(fn func(text string, isFinal bool)) { g.onTranscript = fn }
func (g *Gemini) OnResponse(fn func(text string, isFinal bool))   { g.onResponse = fn }
func (g *Gemini) OnToolCall(fn func(call voice.ToolCall))         { g.onToolCall = fn }
func (g *Gemini) OnError(fn func(err error))                      { g.onError = fn }

// RegisterTool declares a tool before Start; Gemini receives the
// declarations in the setup frame.
func (g *Gemini) RegisterTool(tool voice.Tool) {
	g.tools = append(g.tools, tool)
	g.toolsMap[tool.Name] = tool
}

// SubmitToolResult answers a model function call.
func (g *Gemini) SubmitToolResult(callID string, result string) error {
	return g.sendJSON(geminiToolResultFrame{
		ToolResponse: geminiToolResponse{
			FunctionResponses: []geminiFunctionResponse{{
				ID:       callID,
				Response: map[string]any{"result": result},
			}},
		},
	})
}

// Interrupt is a no-op: Gemini Live detects barge-in server-side and
// reports it via the interrupted flag on serverContent.
func (g *Gemini) Interrupt() error {
	return nil
}

// Metrics returns current session metrics.
func (g *Gemini) Metrics() voice.Metrics {
	return g.metrics.Current()
}

// Config returns the configuration the pipeline was built with.
func (g *Gemini) Config() voice.Config {
	return g.config
}

// readLoop pumps frames off the socket until it closes.
func (g *Gemini) readLoop(ws *websocket.Conn) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			g.mu.RLock()
			closed := g.closed
			g.mu.RUnlock()
			if !closed && g.onError != nil {
				g.onError(fmt.Errorf("voice/gemini: read: %w", err))
			}
			return
		}
		g.dispatch(raw)
	}
}

// dispatch parses one downlink frame and routes it.
func (g *Gemini) dispatch(raw []byte) {
	var frame geminiServerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		if g.config.Debug {
			debug.Log("🌟 Unparseable frame (%d bytes): %v\n", len(raw), err)
		}
		return
	}
	debug.WireLog("🌟 <- %d bytes\n", len(raw))

	switch {
	case frame.SetupComplete != nil:
		g.metrics.MarkConnected()
		if g.config.Debug {
			debug.Logln("🌟 Gemini session ready")
		}

	case frame.ServerContent != nil:
		g.handleContent(frame.ServerContent)

	case frame.ToolCall != nil:
		g.handleToolCall(frame.ToolCall)

	case frame.ToolCancel != nil:
		if g.config.Debug {
			debug.Logln("🌟 Tool call cancelled by model")
		}

	default:
		if g.config.Debug {
			debug.Log("🌟 Unhandled frame (%d bytes)\n", len(raw))
		}
	}
}

// handleContent processes model output: audio, text, transcripts, turn
// boundaries, and barge-in interruptions.
func (g *Gemini) handleContent(sc *geminiServerContent) {
	if sc.Interrupted {
		if g.config.Debug {
			debug.Logln("🌟 Generation interrupted (user barge-in)")
		}
		if g.onSpeechStart != nil {
			g.onSpeechStart()
		}
		return
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if blob := part.InlineData; blob != nil {
				if !strings.HasPrefix(blob.MimeType, "audio/pcm") || blob.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(blob.Data)
				if err != nil {
					if g.config.Debug {
						debug.Log("🌟 Bad audio payload: %v\n", err)
					}
					continue
				}
				g.metrics.MarkAudioOut()
				if g.onAudioOut != nil {
					g.onAudioOut(pcm)
				}
				continue
			}
			if part.Text != "" && g.onResponse != nil {
				g.onResponse(part.Text, false)
			}
		}
	}

	if it := sc.InputTranscription; it != nil && it.Text != "" {
		g.metrics.MarkSpeechEnd()
		if g.onTranscript != nil {
			g.onTranscript(it.Text, true)
		}
	}

	if ot := sc.OutputTranscription; ot != nil && ot.Text != "" && g.onResponse != nil {
		g.onResponse(ot.Text, true)
	}

	if sc.TurnComplete {
		g.metrics.MarkTurnComplete()
		if g.config.ProfileLatency {
			m := g.metrics.Current()
			fmt.Printf("⏱️  %s\n", m.FormatLatency())
		}
		if g.onSpeechEnd != nil {
			g.onSpeechEnd()
		}
	}
}

// handleToolCall routes model function calls to the external callback, or
// runs the registered handler inline when no callback is installed.
func (g *Gemini) handleToolCall(tc *geminiToolCallFrame) {
	for _, fc := range tc.FunctionCalls {
		args := fc.Args
		if args == nil {
			args = make(map[string]any)
		}

		g.metrics.IncrementToolCalls()
		if g.config.Debug {
			debug.Log("🌟 Tool call: %s (%s)\n", fc.Name, fc.ID)
		}

		if g.onToolCall != nil {
			g.onToolCall(voice.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
			continue
		}

		result := "Function not found"
		if tool, ok := g.toolsMap[fc.Name]; ok && tool.Handler != nil {
			var err error
			result, err = tool.Handler(args)
			if err != nil {
				result = fmt.Sprintf("Error: %v", err)
			}
		}
		if err := g.SubmitToolResult(fc.ID, result); err != nil && g.onError != nil {
			g.onError(fmt.Errorf("voice/gemini: submit tool result: %w", err))
		}
	}
}

// sendJSON writes one frame, serialized against concurrent senders.
func (g *Gemini) sendJSON(v any) error {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	g.mu.RLock()
	ws := g.ws
	g.mu.RUnlock()
	if ws == nil {
		return voice.ErrNotConnected
	}
	return ws.WriteJSON(v)
}

// Ensure Gemini implements voice.Pipeline at compile time.
var _ voice.Pipeline = (*Gemini)(nil)

func init() {
	voice.Register(voice.ProviderGemini, func(cfg voice.Config) (voice.Pipeline, error) {
		return NewGemini(cfg)
	})
}
