// Package config validates environment configuration at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration.
type Config struct {
	// Required variables
	Port string

	// State persistence
	StateDir         string
	RoomStateFile    string
	SessionStateFile string

	// Question generation
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Optional variables with defaults
	GoEnv            string
	LogLevel         string
	CORSAllowOrigins []string

	// Reserved: parsed and validated, not acted on yet. Disconnect currently
	// equals leave; the grace window is the planned follow-up.
	SocketDisconnectGraceSeconds int

	// Redis (optional, backs the rate limiter store when enabled)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Rate limits (ulule/limiter formatted, e.g. "100-M")
	RateLimitAPIGlobal string
	RateLimitAPIRooms  string
	RateLimitWsIP      string

	// Tracing
	OTELCollectorAddr string
}

// ValidateEnv validates all environment variables and returns a Config.
// Returns an error listing every invalid or missing variable at once.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if !isValidPort(cfg.Port) {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.StateDir = getEnvOrDefault("STATE_DIR", "/data")
	cfg.RoomStateFile = getEnvOrDefault("ROOM_STATE_FILE", filepath.Join(cfg.StateDir, "rooms.json"))
	cfg.SessionStateFile = getEnvOrDefault("SESSION_STATE_FILE", filepath.Join(cfg.StateDir, "sessions.json"))

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash")
	geminiTimeout := getEnvOrDefault("GEMINI_TIMEOUT_SECONDS", "35")
	if secs, err := strconv.Atoi(geminiTimeout); err != nil || secs < 1 {
		errs = append(errs, fmt.Sprintf("GEMINI_TIMEOUT_SECONDS must be a positive integer (got '%s')", geminiTimeout))
	} else {
		cfg.GeminiTimeout = time.Duration(secs) * time.Second
	}

	grace := getEnvOrDefault("SOCKET_DISCONNECT_GRACE_SECONDS", "0")
	if secs, err := strconv.Atoi(grace); err != nil || secs < 0 {
		errs = append(errs, fmt.Sprintf("SOCKET_DISCONNECT_GRACE_SECONDS must be a non-negative integer (got '%s')", grace))
	} else {
		cfg.SocketDisconnectGraceSeconds = secs
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	origins := getEnvOrDefault("CORS_ALLOW_ORIGINS", "http://localhost:3000")
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowOrigins = append(cfg.CORSAllowOrigins, origin)
		}
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.RateLimitAPIGlobal = getEnvOrDefault("RATE_LIMIT_API_GLOBAL", "300-M")
	cfg.RateLimitAPIRooms = getEnvOrDefault("RATE_LIMIT_API_ROOMS", "30-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")

	cfg.OTELCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidPort(value string) bool {
	port, err := strconv.Atoi(value)
	return err == nil && port >= 1 && port <= 65535
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	return isValidPort(parts[1])
}

// logValidatedConfig logs the validated configuration with secrets redacted.
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated")
	slog.Info("Configuration",
		"port", cfg.Port,
		"state_dir", cfg.StateDir,
		"room_state_file", cfg.RoomStateFile,
		"session_state_file", cfg.SessionStateFile,
		"gemini_api_key", redactSecret(cfg.GeminiAPIKey),
		"gemini_model", cfg.GeminiModel,
		"gemini_timeout", cfg.GeminiTimeout,
		"redis_enabled", cfg.RedisEnabled,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"cors_allow_origins", cfg.CORSAllowOrigins,
		"rate_limit_api_global", cfg.RateLimitAPIGlobal,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default
// value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 4 characters.
func redactSecret(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***"
}
