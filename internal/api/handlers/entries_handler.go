package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/logger"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type EntryReader interface {
	EntriesByUserPage(userID string, limit, offset int) ([]models.Entry, error)
	CountEntries(userID string) (int, error)
}

type EntriesHandler struct {
	reader EntryReader
}

func NewEntriesHandler(reader EntryReader) *EntriesHandler {
	return &EntriesHandler{
		reader: reader,
	}
}

// HandleGetEntries returns a page of the user's log, newest first.
func (h *EntriesHandler) HandleGetEntries(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := parseIntQuery(c, "limit", defaultPageLimit)
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := h.reader.EntriesByUserPage(userID, limit, offset)
	if err != nil {
		logger.Error("Failed to fetch entries page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch entries",
		})
	}

	total, err := h.reader.CountEntries(userID)
	if err != nil {
		logger.Error("Failed to count entries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch entries",
		})
	}

	if entries == nil {
		entries = []models.Entry{}
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func parseIntQuery(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
