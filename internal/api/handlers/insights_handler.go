package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/analysis"
	"github.com/voicehealth/backend/internal/insights"
	"github.com/voicehealth/backend/pkg/logger"
)

type InsightsHandler struct {
	manager *insights.Manager
	entries insights.EntryStore
	engine  *analysis.Engine
}

func NewInsightsHandler(manager *insights.Manager, entries insights.EntryStore, engine *analysis.Engine) *InsightsHandler {
	return &InsightsHandler{
		manager: manager,
		entries: entries,
		engine:  engine,
	}
}

// HandleGetInsights serves the cached payload only. A user with no
// cache record yet gets the same not-enough-data shape as a user whose
// history is below the analysis threshold; the read path never
// computes.
func (h *InsightsHandler) HandleGetInsights(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	record, err := h.manager.ReadCache(c.Context(), userID)
	if err != nil {
		if errors.Is(err, insights.ErrNoCacheYet) {
			return c.JSON(insights.NotEnoughDataPayload(0))
		}
		logger.Error("Failed to read insights cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read insights",
		})
	}

	c.Set("Content-Type", "application/json")
	return c.Send(record.InsightsJSON)
}

// HandleGetStats computes the raw statistics bundle synchronously for
// the detail view. Unlike insights this does not touch the cache or
// the LLM.
func (h *InsightsHandler) HandleGetStats(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	entries, err := h.entries.EntriesByUser(userID)
	if err != nil {
		logger.Error("Failed to fetch entries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	return c.JSON(h.engine.ComputeAllStats(entries))
}
