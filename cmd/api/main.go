package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/analysis"
	"github.com/voicehealth/backend/internal/api/handlers"
	"github.com/voicehealth/backend/internal/cache/redis"
	"github.com/voicehealth/backend/internal/guided"
	"github.com/voicehealth/backend/internal/insights"
	"github.com/voicehealth/backend/internal/llm"
	"github.com/voicehealth/backend/internal/metrics"
	"github.com/voicehealth/backend/internal/middleware/ratelimit"
	"github.com/voicehealth/backend/internal/middleware/security"
	"github.com/voicehealth/backend/internal/storage/sqlite"
	"github.com/voicehealth/backend/pkg/config"
	appLogger "github.com/voicehealth/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting VoiceHealth API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
	}

	llmClient := llm.NewClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	engine := analysis.NewEngine(analysis.Config{
		MinSampleSize:            cfg.Analysis.MinSampleSize,
		TrendEpsilon:             cfg.Analysis.TrendEpsilon,
		TrendWindowDays:          cfg.Analysis.TrendWindowDays,
		CorrelationLookbackHours: cfg.Analysis.CorrelationLookbackHours,
	})

	var hotCache insights.HotCache
	if redisClient != nil {
		hotCache = redisClient
	}

	manager := insights.NewManager(sqliteClient, sqliteClient, hotCache, engine, llmClient, insights.Config{
		RecomputeTimeout: time.Duration(cfg.Insights.RecomputeTimeoutSec) * time.Second,
		CacheTTL:         time.Duration(cfg.Insights.CacheTTLSec) * time.Second,
	})

	sessionTTL := time.Duration(cfg.Guided.SessionTTLSec) * time.Second
	var sessionStore guided.Store
	if cfg.Guided.Store == "redis" && redisClient != nil {
		sessionStore = guided.NewRedisStore(redisClient, sessionTTL)
		appLogger.Info("Using Redis session store")
	} else {
		memStore := guided.NewMemoryStore(sessionTTL)
		defer memStore.Stop()
		sessionStore = memStore
		appLogger.Info("Using in-memory session store")
	}

	merger := guided.NewMerger(sessionStore, llmClient, sqliteClient, manager, guided.Config{
		MaxQuestions: cfg.Guided.MaxQuestions,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()

	logHandler := handlers.NewLogHandler(merger)
	insightsHandler := handlers.NewInsightsHandler(manager, sqliteClient, engine)
	entriesHandler := handlers.NewEntriesHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(merger)

	api := app.Group("/api/v1")

	// Log writes fan out into LLM calls; charge them more.
	writeLimit := limiter.Middleware(5)
	readLimit := limiter.Middleware(1)

	api.Post("/log/quick", writeLimit, logHandler.HandleQuickLog)
	api.Post("/log/guided/start", writeLimit, logHandler.HandleGuidedStart)
	api.Post("/log/guided/answer", readLimit, logHandler.HandleGuidedAnswer)
	api.Post("/log/guided/finalize", writeLimit, logHandler.HandleGuidedFinalize)

	api.Get("/insights/:user_id", readLimit, insightsHandler.HandleGetInsights)
	api.Get("/stats/:user_id", readLimit, insightsHandler.HandleGetStats)
	api.Get("/entries/:user_id", readLimit, entriesHandler.HandleGetEntries)

	api.Get("/log/guided/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
