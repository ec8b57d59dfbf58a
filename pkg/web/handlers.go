package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/clinicdesk/clinicvoice/internal/metrics"
	"github.com/clinicdesk/clinicvoice/pkg/hub"
	"github.com/clinicdesk/clinicvoice/pkg/records"
)

// ToolInfo describes a voice tool for the dashboard's manual triggers.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleState returns the full dashboard state.
func (s *Server) handleState(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// handleAddRecord creates a record from the entry form.
func (s *Server) handleAddRecord(c *fiber.Ctx) error {
	var in records.Input
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid record body",
		})
	}

	if s.OnAddRecord == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "record entry not configured",
		})
	}

	rec := s.OnAddRecord(in)
	return c.Status(fiber.StatusCreated).JSON(rec)
}

// handleUploadAll uploads every pending record.
func (s *Server) handleUploadAll(c *fiber.Ctx) error {
	if s.OnUploadAll == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "upload not configured",
		})
	}

	count, credited := s.OnUploadAll()
	return c.JSON(fiber.Map{
		"uploaded": count,
		"credited": credited,
	})
}

// handleListTools returns the available voice tools.
func (s *Server) handleListTools(c *fiber.Ctx) error {
	if s.Tools == nil {
		return c.JSON([]ToolInfo{})
	}
	return c.JSON(s.Tools)
}

// TriggerToolRequest is the request body for triggering a tool
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// handleTriggerTool runs a voice tool from a dashboard button. The result
// is the same confirmation text the assistant would speak.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := c.Params("name")

	var req TriggerToolRequest
	if err := c.BodyParser(&req); err != nil || req.Args == nil {
		req.Args = make(map[string]any)
	}

	if s.OnToolTrigger == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "tool trigger not configured",
		})
	}

	result := s.OnToolTrigger(name, req.Args)
	return c.JSON(fiber.Map{
		"tool":   name,
		"result": result,
	})
}

// handleVoiceStart toggles the voice session on. The reply carries the
// resulting state; a session that could not start simply reports idle.
func (s *Server) handleVoiceStart(c *fiber.Ctx) error {
	if s.OnVoiceStart == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "voice control not configured",
		})
	}

	// Failures are already logged and land the session back in Idle;
	// the dashboard only needs the state it ended up in.
	s.OnVoiceStart()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"state": s.voiceState(),
	})
}

// handleVoiceStop tears the voice session down.
func (s *Server) handleVoiceStop(c *fiber.Ctx) error {
	if s.OnVoiceStop == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "voice control not configured",
		})
	}

	s.OnVoiceStop()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"state": s.voiceState(),
	})
}

func (s *Server) voiceState() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.VoiceState
}

// handleGetConversation returns the buffered transcript.
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	defer s.conversationMu.RUnlock()
	return c.JSON(s.conversation)
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStateWS streams dashboard state updates. The hub replays the
// latest snapshot on register, so a fresh page renders without waiting
// for a change.
func (s *Server) handleStateWS(c *websocket.Conn) {
	metrics.WSClients.WithLabelValues("state").Inc()
	defer metrics.WSClients.WithLabelValues("state").Dec()

	client := hub.NewClient(s.stateHub, c)
	client.Run() // Blocks until connection closes
}

// handleConversationWS streams transcript entries, replaying the buffer
// on connect.
func (s *Server) handleConversationWS(c *websocket.Conn) {
	metrics.WSClients.WithLabelValues("conversation").Inc()
	defer metrics.WSClients.WithLabelValues("conversation").Dec()

	s.conversationMu.RLock()
	entries := make([]ConversationEntry, len(s.conversation))
	copy(entries, s.conversation)
	s.conversationMu.RUnlock()
	for _, entry := range entries {
		if err := c.WriteJSON(entry); err != nil {
			c.Close()
			return
		}
	}

	client := hub.NewClient(s.conversationHub, c)
	client.Run() // Blocks until connection closes
}

// handleAudioWS hands the socket to the audio bridge.
func (s *Server) handleAudioWS(c *websocket.Conn) {
	metrics.WSClients.WithLabelValues("audio").Inc()
	defer metrics.WSClients.WithLabelValues("audio").Dec()

	s.bridge.Serve(c) // Blocks until connection closes
}
