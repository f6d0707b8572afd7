package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/quizclash/backend/go/internal/v1/config"
	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/events"
	"github.com/quizclash/backend/go/internal/v1/health"
	"github.com/quizclash/backend/go/internal/v1/httpapi"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/middleware"
	"github.com/quizclash/backend/go/internal/v1/questions"
	"github.com/quizclash/backend/go/internal/v1/ratelimit"
	"github.com/quizclash/backend/go/internal/v1/service"
	"github.com/quizclash/backend/go/internal/v1/sessions"
	"github.com/quizclash/backend/go/internal/v1/store"
	"github.com/quizclash/backend/go/internal/v1/timer"
	"github.com/quizclash/backend/go/internal/v1/tracing"
	"github.com/quizclash/backend/go/internal/v1/transport"
)

func main() {
	// Load .env file for local development. Try multiple paths to handle
	// different ways of running the app.
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	development := cfg.GoEnv != "production"
	if err := logging.Initialize(development); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// --- Tracing (optional) ---
	var tracerShutdown func(context.Context) error
	if cfg.OTELCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "quiz-backend", cfg.OTELCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			tracerShutdown = tp.Shutdown
			slog.Info("Tracing initialized", "collector", cfg.OTELCollectorAddr)
		}
	}

	// --- Redis (optional, rate limiter store) ---
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			slog.Error("Redis unreachable, rate limiter falling back to memory store", "error", err)
			_ = redisClient.Close()
			redisClient = nil
		}
		cancel()
	}

	// --- State restore ---
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		slog.Error("Failed to create state directory", "dir", cfg.StateDir, "error", err)
		os.Exit(1)
	}

	fileStore := store.NewFileStore(cfg.RoomStateFile)
	registry := engine.NewRegistry(fileStore)
	if restored := fileStore.LoadRooms(ctx); len(restored) > 0 {
		registry.RestoreRooms(ctx, restored)
	}

	sessionStore := sessions.NewStore(cfg.SessionStateFile)
	if pruned := sessionStore.Prune(registry.CheckPin); pruned > 0 {
		slog.Info("Pruned sessions for vanished rooms", "count", pruned)
	}

	// --- Question provider ---
	var generator questions.Generator
	if cfg.GeminiAPIKey != "" {
		generator = questions.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTimeout)
		slog.Info("Question generator enabled", "model", cfg.GeminiModel)
	} else {
		slog.Warn("GEMINI_API_KEY not set, every game uses the reserve question bank")
	}
	provider := questions.NewProvider(generator, cfg.GeminiTimeout)

	// --- Engine wiring ---
	dispatcher := events.NewDispatcher()
	timers := timer.NewSupervisor(registry, dispatcher)
	svc := service.New(registry, provider, sessionStore, timers, dispatcher)

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	hub := transport.NewHub(svc, rateLimiter, cfg.CORSAllowOrigins)
	apiHandler := httpapi.NewHandler(svc)

	// --- Set up server ---
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if tracerShutdown != nil {
		router.Use(otelgin.Middleware("quiz-backend"))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowCredentials = true
	if len(cfg.CORSAllowOrigins) == 1 && cfg.CORSAllowOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowOrigins
	}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api/v1")
	api.Use(rateLimiter.GlobalMiddleware())
	apiHandler.Register(api, rateLimiter)

	router.GET("/ws", hub.ServeWs)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(cfg.StateDir, redisClient)
	router.GET("/health", healthHandler.Status)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if err := timers.Shutdown(shutdownCtx); err != nil {
		slog.Error("Timer supervisor shutdown timed out", "error", err)
	}

	// Flushes any pending room snapshot before exit.
	fileStore.Close()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("Failed to close Redis connection", "error", err)
		}
	}

	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			slog.Error("Tracer shutdown failed", "error", err)
		}
	}

	slog.Info("Server exiting")
}
