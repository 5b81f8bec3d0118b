package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/guided"
	"github.com/voicehealth/backend/pkg/logger"
)

// WebSocketHandler drives a guided log conversation over one socket.
// Message types mirror the HTTP endpoints: "start" opens a session,
// "answer" advances it, "finalize" persists the entry. The server
// replies with "question", "entry" or "error" frames.
type WebSocketHandler struct {
	merger *guided.Merger
}

func NewWebSocketHandler(merger *guided.Merger) *WebSocketHandler {
	return &WebSocketHandler{
		merger: merger,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type       string `json:"type"`
			UserID     string `json:"user_id"`
			Transcript string `json:"transcript"`
			SessionID  string `json:"session_id"`
			Answer     string `json:"answer"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		ctx := context.Background()

		switch msg.Type {
		case "start":
			if msg.UserID == "" || msg.Transcript == "" {
				h.sendError(c, "user_id and transcript are required")
				continue
			}
			session, err := h.merger.Start(ctx, msg.UserID, msg.Transcript)
			if err != nil {
				logger.Error("Failed to start guided session", zap.Error(err))
				h.sendError(c, "Failed to start guided session")
				continue
			}
			h.sendSessionState(c, session)

		case "answer":
			if msg.SessionID == "" || msg.Answer == "" {
				h.sendError(c, "session_id and answer are required")
				continue
			}
			session, err := h.merger.Answer(ctx, msg.SessionID, msg.Answer)
			if err != nil {
				h.sendSessionError(c, err)
				continue
			}
			h.sendSessionState(c, session)

		case "finalize":
			if msg.SessionID == "" {
				h.sendError(c, "session_id is required")
				continue
			}
			entry, err := h.merger.Finalize(ctx, msg.SessionID)
			if err != nil {
				h.sendSessionError(c, err)
				continue
			}
			c.WriteJSON(map[string]interface{}{
				"type":  "entry",
				"entry": entry,
			})

		default:
			h.sendError(c, "Unknown message type")
		}
	}
}

func (h *WebSocketHandler) sendSessionState(c *websocket.Conn, session *guided.Session) {
	msg := map[string]interface{}{
		"type":       "question",
		"session_id": session.ID,
		"status":     session.Status,
		"answered":   len(session.QA),
		"total":      len(session.Questions),
	}
	if question, ok := session.CurrentQuestion(); ok {
		msg["question"] = question
	} else {
		msg["type"] = "complete"
	}

	c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendSessionError(c *websocket.Conn, err error) {
	if errors.Is(err, guided.ErrSessionNotFound) {
		h.sendError(c, "Session not found or expired")
		return
	}
	logger.Error("Guided session operation failed", zap.Error(err))
	h.sendError(c, err.Error())
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
