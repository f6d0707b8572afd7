package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/quizclash/backend/go/internal/v1/ratelimit"
)

// Register mounts the REST surface on the given group (normally /api/v1).
// rl may be nil to skip per-endpoint limits (tests).
func (h *Handler) Register(api *gin.RouterGroup, rl *ratelimit.RateLimiter) {
	roomsLimit := func(c *gin.Context) { c.Next() }
	if rl != nil {
		roomsLimit = rl.RoomsMiddleware()
	}

	rooms := api.Group("/rooms")
	{
		rooms.POST("", roomsLimit, h.CreateRoom)
		rooms.POST("/check-pin", h.CheckPin)
		rooms.GET("/check-pin", h.CheckPin)
		rooms.POST("/:pin/join", h.JoinRoom)
		rooms.GET("/:pin", h.GetRoom)
		rooms.POST("/:pin/start", roomsLimit, h.StartGame)
		rooms.POST("/:pin/answer", h.SubmitAnswer)
		rooms.POST("/:pin/messages", h.AddMessage)
		rooms.POST("/:pin/leave", h.LeaveRoom)
	}

	api.GET("/session", h.GetSession)
	api.POST("/session/logout", h.Logout)
}
