package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/shopdesk/shopdesk-backend/internal/contextstore"
	"github.com/shopdesk/shopdesk-backend/internal/orchestrator"
	"github.com/shopdesk/shopdesk-backend/internal/promptbuilder"
)

// ChatRequest is the UI-boundary payload: a session and the user's text.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatHandler exposes the orchestrator over HTTP and WebSocket.
type ChatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(orch *orchestrator.Orchestrator, logger *logrus.Logger) *ChatHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &ChatHandler{orch: orch, logger: logger}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	result, err := h.orch.ProcessTurn(c.Context(), req.SessionID, req.Message)
	if err != nil {
		return h.turnError(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id": req.SessionID,
		"state":      result.State,
		"reply":      result.Reply,
		"degraded":   result.Degraded,
		"attempts":   result.Attempts,
		"latency_ms": result.LatencyMs,
	})
}

// History handles GET /api/v1/sessions/:id/history
func (h *ChatHandler) History(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid limit",
			})
		}
		limit = parsed
	}

	turns, err := h.orch.History(c.Context(), sessionID, limit)
	if err != nil {
		return h.turnError(c, err)
	}
	if turns == nil {
		turns = []contextstore.Turn{}
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// Reset handles POST /api/v1/sessions/:id/reset
func (h *ChatHandler) Reset(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	if err := h.orch.Reset(c.Context(), sessionID); err != nil {
		return h.turnError(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"reset":      true,
	})
}

type streamFrame struct {
	Type  string `json:"type"` // "chunk", "done", "error"
	Delta string `json:"delta,omitempty"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// StreamChat handles WebSocket /ws/chat: one request in, a chunk sequence
// out, closed by a terminal done/error frame.
func (h *ChatHandler) StreamChat(c *websocket.Conn) {
	defer c.Close()

	var req ChatRequest
	if err := c.ReadJSON(&req); err != nil {
		c.WriteJSON(streamFrame{Type: "error", Error: "failed to parse request"})
		return
	}
	if req.SessionID == "" {
		c.WriteJSON(streamFrame{Type: "error", Error: "session_id is required"})
		return
	}

	stream, err := h.orch.ProcessTurnStream(context.Background(), req.SessionID, req.Message)
	if err != nil {
		c.WriteJSON(streamFrame{Type: "error", Error: err.Error()})
		return
	}
	defer stream.Close()

	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			c.WriteJSON(streamFrame{Type: "done", State: string(orchestrator.StateCompleted)})
			return
		}
		if err != nil {
			c.WriteJSON(streamFrame{
				Type:  "error",
				State: string(orchestrator.StateFailed),
				Error: err.Error(),
			})
			return
		}

		if err := c.WriteJSON(streamFrame{Type: "chunk", Delta: delta}); err != nil {
			// Client disconnected; Close cancels the dispatch.
			h.logger.WithError(err).Debug("websocket client went away")
			return
		}
	}
}

// turnError maps orchestration errors to HTTP statuses.
func (h *ChatHandler) turnError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "message must not be empty"})
	case errors.Is(err, contextstore.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	case errors.Is(err, contextstore.ErrSessionBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "session has a turn in flight"})
	case errors.Is(err, promptbuilder.ErrBudgetExceeded):
		h.logger.WithError(err).Error("system prompt exceeds token budget")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "service misconfigured"})
	default:
		h.logger.WithError(err).Error("turn processing failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
