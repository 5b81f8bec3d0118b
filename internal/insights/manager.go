package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/analysis"
	"github.com/voicehealth/backend/internal/metrics"
	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/logger"
)

// ErrNoCacheYet is returned by ReadCache when a user has no cache
// record. Callers present the same "not enough data" state as the
// explicit insufficient-data case; the window between a user's first
// entries and the first completed recompute is accepted, not an error.
var ErrNoCacheYet = errors.New("no insights cache record yet")

// NotEnoughDataMessage is the fixed payload text for both the
// insufficient-data and the no-cache-yet cases, so the two are
// indistinguishable to the dashboard.
const NotEnoughDataMessage = "Not enough data yet. Keep logging to unlock insights."

type EntryStore interface {
	EntriesByUser(userID string) ([]models.Entry, error)
}

type CacheStore interface {
	GetInsightsCache(userID string) (*models.InsightsCacheRecord, error)
	UpsertInsightsCache(record *models.InsightsCacheRecord) error
}

// HotCache is an optional read-through layer over the durable record.
type HotCache interface {
	GetInsights(ctx context.Context, userID string) (*models.InsightsCacheRecord, bool, error)
	SetInsights(ctx context.Context, userID string, record *models.InsightsCacheRecord, ttl time.Duration) error
}

type Generator interface {
	GenerateInsights(ctx context.Context, bundle *models.StatsBundle) (*models.InsightPayload, error)
}

// Manager owns the per-user insights cache record. Recomputation is
// at-most-once, best-effort per log write: a failed or timed-out cycle
// drops its result and the next write triggers another attempt. There
// is no durable work queue; that is a known limitation of this design.
type Manager struct {
	entries   EntryStore
	cache     CacheStore
	hot       HotCache
	engine    *analysis.Engine
	generator Generator
	timeout   time.Duration
	cacheTTL  time.Duration
}

type Config struct {
	RecomputeTimeout time.Duration
	CacheTTL         time.Duration
}

func NewManager(entries EntryStore, cache CacheStore, hot HotCache, engine *analysis.Engine, generator Generator, cfg Config) *Manager {
	if cfg.RecomputeTimeout == 0 {
		cfg.RecomputeTimeout = 2 * time.Minute
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Manager{
		entries:   entries,
		cache:     cache,
		hot:       hot,
		engine:    engine,
		generator: generator,
		timeout:   cfg.RecomputeTimeout,
		cacheTTL:  cfg.CacheTTL,
	}
}

// NotEnoughDataPayload builds the fixed cache payload used whenever
// the history is below the analysis threshold.
func NotEnoughDataPayload(totalEntries int) *models.InsightPayload {
	return &models.InsightPayload{
		Insights:     []models.Insight{},
		Message:      NotEnoughDataMessage,
		TotalEntries: totalEntries,
	}
}

// ScheduleRecompute spawns one background recompute cycle and returns
// immediately; the log-write path must never block on analysis.
// Cycles for the same user are not serialized; ordering correctness
// comes solely from the freshness check at write time.
func (m *Manager) ScheduleRecompute(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		start := time.Now()
		err := m.Recompute(ctx, userID)
		elapsed := time.Since(start)

		outcome := "success"
		if err != nil {
			outcome = "error"
			logger.Warn("Insights recompute failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}

		metrics.RecomputeTotal.WithLabelValues(outcome).Inc()
		metrics.RecomputeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}()
}

// Recompute runs one full analysis-and-generation cycle and attempts
// to persist the result under the freshness rule.
func (m *Manager) Recompute(ctx context.Context, userID string) error {
	entries, err := m.entries.EntriesByUser(userID)
	if err != nil {
		return fmt.Errorf("failed to fetch entries: %w", err)
	}

	bundle := m.engine.ComputeAllStats(entries)

	var payload *models.InsightPayload
	if bundle.Insufficient() {
		payload = NotEnoughDataPayload(bundle.TotalEntries)
	} else {
		payload, err = m.generator.GenerateInsights(ctx, bundle)
		if err != nil {
			return fmt.Errorf("failed to generate insights: %w", err)
		}
	}

	return m.writeCacheIfFresh(ctx, userID, len(entries), payload)
}

// writeCacheIfFresh persists the payload unless a recompute that
// observed more entries already wrote. This read-then-write check is
// the only concurrency guard: deliberately optimistic, no locking. A
// true race between two sufficiently-fresh writers resolves as
// last-write-wins, which is tolerated.
func (m *Manager) writeCacheIfFresh(ctx context.Context, userID string, entryCount int, payload *models.InsightPayload) error {
	existing, err := m.cache.GetInsightsCache(userID)
	if err != nil {
		return fmt.Errorf("failed to read existing cache: %w", err)
	}

	if existing != nil && entryCount < existing.EntryCountAtComputation {
		logger.Debug("Stale recompute skipped",
			zap.String("user_id", userID),
			zap.Int("entry_count", entryCount),
			zap.Int("cached_entry_count", existing.EntryCountAtComputation),
		)
		metrics.StaleWriteSkips.Inc()
		return nil
	}

	insightsJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal insights payload: %w", err)
	}

	record := &models.InsightsCacheRecord{
		ID:                      uuid.New().String(),
		UserID:                  userID,
		InsightsJSON:            insightsJSON,
		EntryCountAtComputation: entryCount,
		CreatedAt:               time.Now(),
	}

	if err := m.cache.UpsertInsightsCache(record); err != nil {
		return fmt.Errorf("failed to write insights cache: %w", err)
	}

	if m.hot != nil {
		if err := m.hot.SetInsights(ctx, userID, record, m.cacheTTL); err != nil {
			logger.Warn("Failed to populate hot cache", zap.Error(err))
		}
	}

	logger.Info("Insights cache updated",
		zap.String("user_id", userID),
		zap.Int("entry_count", entryCount),
	)

	return nil
}

// ReadCache returns the stored record without ever triggering
// computation. ErrNoCacheYet means the dashboard should show the same
// "not enough data" state as the explicit insufficient-data payload.
func (m *Manager) ReadCache(ctx context.Context, userID string) (*models.InsightsCacheRecord, error) {
	if m.hot != nil {
		record, hit, err := m.hot.GetInsights(ctx, userID)
		if err != nil {
			logger.Warn("Hot cache read failed", zap.Error(err))
		} else if hit {
			metrics.CacheHits.WithLabelValues("hot").Inc()
			return record, nil
		}
		metrics.CacheMisses.WithLabelValues("hot").Inc()
	}

	record, err := m.cache.GetInsightsCache(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read insights cache: %w", err)
	}
	if record == nil {
		metrics.CacheMisses.WithLabelValues("durable").Inc()
		return nil, ErrNoCacheYet
	}
	metrics.CacheHits.WithLabelValues("durable").Inc()

	if m.hot != nil {
		if err := m.hot.SetInsights(ctx, userID, record, m.cacheTTL); err != nil {
			logger.Debug("Failed to backfill hot cache", zap.Error(err))
		}
	}

	return record, nil
}
