// Package web serves the clinic dashboard: static assets, the REST API,
// and WebSocket feeds for live state, conversation captions, and browser
// audio.
package web

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/clinicdesk/clinicvoice/pkg/audioio"
	"github.com/clinicdesk/clinicvoice/pkg/hub"
	"github.com/clinicdesk/clinicvoice/pkg/records"
)

// StateView is the dashboard's view of application state. It is the JSON
// shape served by GET /api/state and broadcast on /ws/state after every
// mutation.
type StateView struct {
	Records       []records.MedicalRecord `json:"records"`
	Visible       []records.MedicalRecord `json:"visible"`
	PendingCount  int                     `json:"pendingCount"`
	Bonus         float64                 `json:"bonus"`
	BonusRate     float64                 `json:"bonusRate"`
	Theme         records.Theme           `json:"theme"`
	Filter        records.Filter          `json:"filter"`
	VoiceState    string                  `json:"voiceState"`
	IsConnecting  bool                    `json:"isConnecting"`
	IsVoiceActive bool                    `json:"isVoiceActive"`
}

// ConversationEntry is one line of the live transcript feed. Non-final
// entries are streaming partials; the buffer keeps finals only.
type ConversationEntry struct {
	Time  string `json:"time"`
	Role  string `json:"role"` // user, assistant
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Config holds the web server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// StaticDir is served at /; it holds the dashboard assets.
	StaticDir string

	// Audio configures the browser audio bridge.
	Audio audioio.Config
}

// Server is the dashboard web server. Behavior is injected through the
// exported callback fields so the transport layer never reaches into the
// application; wire them before Start.
type Server struct {
	app *fiber.App
	cfg Config

	stateMu sync.RWMutex
	state   StateView

	conversationMu sync.RWMutex
	conversation   []ConversationEntry

	stateHub        *hub.Hub
	conversationHub *hub.Hub
	bridge          *AudioBridge

	// OnAddRecord creates a record from form input.
	OnAddRecord func(records.Input) records.MedicalRecord

	// OnUploadAll uploads every pending record, returning the count and
	// the bonus credited.
	OnUploadAll func() (int, float64)

	// OnToolTrigger runs a voice tool manually and returns its
	// confirmation text.
	OnToolTrigger func(name string, args map[string]any) string

	// OnVoiceStart and OnVoiceStop toggle the voice session.
	OnVoiceStart func() error
	OnVoiceStop  func() error

	// Tools lists the voice tools for the dashboard's manual triggers.
	Tools []ToolInfo
}

// NewServer creates the server with all routes registered. Callbacks are
// wired by the caller before Start.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:             cfg,
		conversation:    make([]ConversationEntry, 0, 100),
		stateHub:        hub.NewRetained("state"),
		conversationHub: hub.New("conversation"),
		bridge:          NewAudioBridge(cfg.Audio),
	}
	s.state.VoiceState = "idle"
	s.state.Records = []records.MedicalRecord{}
	s.state.Visible = []records.MedicalRecord{}

	app := fiber.New(fiber.Config{
		AppName:               "ClinicVoice Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// Static files
	app.Static("/", cfg.StaticDir)

	// API routes
	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/records", s.handleAddRecord)
	api.Post("/records/upload", s.handleUploadAll)
	api.Get("/tools", s.handleListTools)
	api.Post("/tools/:name", s.handleTriggerTool)
	api.Post("/voice/start", s.handleVoiceStart)
	api.Post("/voice/stop", s.handleVoiceStop)
	api.Get("/conversation", s.handleGetConversation)

	app.Get("/healthz", s.handleHealth)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/conversation", websocket.New(s.handleConversationWS))
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))

	s.app = app
	return s
}

// Bridge returns the browser audio bridge for use as a capture source and
// playback sink.
func (s *Server) Bridge() *AudioBridge {
	return s.bridge
}

// Start runs the broadcast hubs and listens for HTTP traffic. It blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if strings.HasPrefix(s.cfg.Addr, ":") {
		fmt.Printf("🌐 Dashboard: http://localhost%s\n", s.cfg.Addr)
	} else {
		fmt.Printf("🌐 Dashboard: http://%s\n", s.cfg.Addr)
	}

	go s.stateHub.Run()
	go s.conversationHub.Run()

	return s.app.Listen(s.cfg.Addr)
}

// UpdateState replaces the record-store portion of the dashboard state
// and broadcasts the result to every state subscriber.
func (s *Server) UpdateState(snap records.Snapshot) {
	s.stateMu.Lock()
	s.state.Records = snap.Records
	s.state.Visible = snap.Visible
	s.state.PendingCount = snap.PendingCount
	s.state.Bonus = snap.BonusTotal
	s.state.BonusRate = snap.BonusRate
	s.state.Theme = snap.Theme
	s.state.Filter = snap.Filter
	state := s.state
	s.stateMu.Unlock()

	s.stateHub.BroadcastJSON(state)
}

// SetVoiceState updates the voice session portion of the dashboard state
// and broadcasts it.
func (s *Server) SetVoiceState(state string) {
	s.stateMu.Lock()
	s.state.VoiceState = state
	s.state.IsConnecting = state == "connecting"
	s.state.IsVoiceActive = state == "active"
	snapshot := s.state
	s.stateMu.Unlock()

	s.stateHub.BroadcastJSON(snapshot)
}

// AddConversation appends a transcript line and broadcasts it. Streaming
// partials are broadcast for live captions but kept out of the buffer;
// the final line replaces them.
func (s *Server) AddConversation(role, text string, final bool) {
	entry := ConversationEntry{
		Time:  time.Now().Format("15:04:05"),
		Role:  role,
		Text:  text,
		Final: final,
	}

	if final {
		s.conversationMu.Lock()
		s.conversation = append(s.conversation, entry)
		if len(s.conversation) > 100 {
			s.conversation = s.conversation[1:]
		}
		s.conversationMu.Unlock()
	}

	s.conversationHub.BroadcastJSON(entry)
}

// Shutdown gracefully stops the web server and detaches the audio bridge.
func (s *Server) Shutdown() error {
	s.bridge.Close()
	return s.app.Shutdown()
}
