package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/guided"
	"github.com/voicehealth/backend/pkg/logger"
)

type LogHandler struct {
	merger *guided.Merger
}

func NewLogHandler(merger *guided.Merger) *LogHandler {
	return &LogHandler{
		merger: merger,
	}
}

// HandleQuickLog runs the single-shot mode: extract the transcript,
// persist, kick off a background recompute. The response never waits
// on analysis.
func (h *LogHandler) HandleQuickLog(c *fiber.Ctx) error {
	var req struct {
		UserID     string `json:"user_id"`
		Transcript string `json:"transcript"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.Transcript == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and transcript are required",
		})
	}

	entry, err := h.merger.QuickLog(c.Context(), req.UserID, req.Transcript)
	if err != nil {
		logger.Error("Failed to log entry", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to log entry",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry": entry,
	})
}

// HandleGuidedStart opens a guided session and returns its first
// follow-up question. A transcript with no gaps comes back already
// complete; the client should finalize immediately.
func (h *LogHandler) HandleGuidedStart(c *fiber.Ctx) error {
	var req struct {
		UserID     string `json:"user_id"`
		Transcript string `json:"transcript"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.Transcript == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and transcript are required",
		})
	}

	session, err := h.merger.Start(c.Context(), req.UserID, req.Transcript)
	if err != nil {
		logger.Error("Failed to start guided session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start guided session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse(session))
}

// HandleGuidedAnswer records one reply and returns the next question,
// or the complete status when none remain.
func (h *LogHandler) HandleGuidedAnswer(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SessionID == "" || req.Answer == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id and answer are required",
		})
	}

	session, err := h.merger.Answer(c.Context(), req.SessionID, req.Answer)
	if err != nil {
		if errors.Is(err, guided.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found or expired",
			})
		}
		logger.Error("Failed to record answer", zap.Error(err))
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(sessionResponse(session))
}

// HandleGuidedFinalize merges the answers, persists the entry and
// tears the session down.
func (h *LogHandler) HandleGuidedFinalize(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	entry, err := h.merger.Finalize(c.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, guided.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found or expired",
			})
		}
		logger.Error("Failed to finalize guided session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to finalize guided session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry": entry,
	})
}

func sessionResponse(session *guided.Session) fiber.Map {
	resp := fiber.Map{
		"session_id": session.ID,
		"status":     session.Status,
		"answered":   len(session.QA),
		"total":      len(session.Questions),
	}
	if question, ok := session.CurrentQuestion(); ok {
		resp["question"] = question
	}
	return resp
}
