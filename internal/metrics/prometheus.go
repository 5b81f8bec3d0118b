package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecomputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicehealth_recompute_duration_seconds",
			Help:    "Background insights recompute duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	RecomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_recompute_total",
			Help: "Total background recompute cycles by outcome",
		},
		[]string{"outcome"},
	)

	StaleWriteSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicehealth_stale_write_skips_total",
			Help: "Recompute results skipped because a fresher cache record existed",
		},
	)

	ExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_extraction_failures_total",
			Help: "Extraction calls that failed or returned unparseable output",
		},
		[]string{"stage"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_cache_hits_total",
			Help: "Total insights cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_cache_misses_total",
			Help: "Total insights cache misses",
		},
		[]string{"cache_type"},
	)

	EntriesLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_entries_logged_total",
			Help: "Total entries persisted by log mode",
		},
		[]string{"mode"},
	)

	GuidedSessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "voicehealth_guided_sessions_started_total",
			Help: "Total guided log sessions started",
		},
	)

	GuidedSessionsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicehealth_guided_sessions_completed_total",
			Help: "Total guided log sessions completed by outcome",
		},
		[]string{"outcome"},
	)
)

func Init() {
	prometheus.MustRegister(RecomputeDuration)
	prometheus.MustRegister(RecomputeTotal)
	prometheus.MustRegister(StaleWriteSkips)
	prometheus.MustRegister(ExtractionFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(EntriesLogged)
	prometheus.MustRegister(GuidedSessionsStarted)
	prometheus.MustRegister(GuidedSessionsCompleted)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
