// Package ratelimit implements rate limiting backed by Redis or local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/config"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/sessions"
)

// RateLimiter holds the limiter instances. Requests are keyed by the session
// cookie when one is present, by client IP otherwise.
type RateLimiter struct {
	apiGlobal *limiter.Limiter
	apiRooms  *limiter.Limiter
	wsIP      *limiter.Limiter
	store     limiter.Store
}

// NewRateLimiter creates a RateLimiter. redisClient may be nil; the limiter
// then falls back to an in-process memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	apiGlobalRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIGlobal)
	if err != nil {
		return nil, fmt.Errorf("invalid API global rate: %w", err)
	}
	apiRoomsRate, err := limiter.NewRateFromFormatted(cfg.RateLimitAPIRooms)
	if err != nil {
		return nil, fmt.Errorf("invalid API rooms rate: %w", err)
	}
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "Rate limiter using memory store")
	}

	return &RateLimiter{
		apiGlobal: limiter.New(store, apiGlobalRate),
		apiRooms:  limiter.New(store, apiRoomsRate),
		wsIP:      limiter.New(store, wsIPRate),
		store:     store,
	}, nil
}

// GlobalMiddleware enforces the baseline request limit across the API.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return rl.middlewareFor(rl.apiGlobal, "global")
}

// RoomsMiddleware enforces the tighter limit on room creation and game start.
func (rl *RateLimiter) RoomsMiddleware() gin.HandlerFunc {
	return rl.middlewareFor(rl.apiRooms, "rooms")
}

func (rl *RateLimiter) middlewareFor(instance *limiter.Limiter, limitType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := instance.Get(ctx, requestKey(c))
		if err != nil {
			// Fail open: availability beats strictness when the store is down.
			logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
			c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail":      "too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}

		metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}

// CheckWebSocket applies the per-IP connection limit before the upgrade.
// Returns false after writing the 429 response.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	lctx, err := rl.wsIP.Get(ctx, c.ClientIP())
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("Retry-After", strconv.FormatInt(lctx.Reset-time.Now().Unix(), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many connections from this address"})
		return false
	}
	return true
}

// requestKey identifies the caller: the session cookie when present, the
// client IP otherwise.
func requestKey(c *gin.Context) string {
	if cookie, err := c.Cookie(sessions.CookieName); err == nil && cookie != "" {
		return "session:" + cookie
	}
	return "ip:" + c.ClientIP()
}
