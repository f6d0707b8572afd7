// Package httpapi is the REST edge under /api/v1: request validation,
// session cookies, and the HTTP mapping of engine errors.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/service"
	"github.com/quizclash/backend/go/internal/v1/sessions"
	"github.com/quizclash/backend/go/internal/v1/types"
)

const sessionCookieMaxAge = 604800 // 7 days

// Handler carries the handler dependencies.
type Handler struct {
	svc *service.Service
}

// NewHandler creates the REST handler set.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type createRoomRequest struct {
	HostName         string `json:"hostName" binding:"required"`
	Topic            string `json:"topic" binding:"required"`
	QuestionsPerTeam int    `json:"questionsPerTeam" binding:"required"`
	MaxParticipants  int    `json:"maxParticipants" binding:"required"`
	TimerSeconds     int    `json:"timerSeconds" binding:"required"`
}

type joinRoomRequest struct {
	PlayerName string `json:"playerName" binding:"required"`
}

type answerRequest struct {
	OptionIndex *int `json:"optionIndex" binding:"required"`
}

type messageRequest struct {
	Text string `json:"text" binding:"required"`
}

type checkPinRequest struct {
	Pin string `json:"pin"`
}

// CreateRoom handles POST /rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, "invalid request body")
		return
	}

	// A cookie already attached to a live room blocks a second one.
	if session, ok := h.currentSession(c); ok && h.svc.Registry().CheckPin(session.RoomPin) {
		c.JSON(http.StatusConflict, gin.H{"detail": "session already belongs to an active room"})
		return
	}

	ctx := c.Request.Context()
	room, host, err := h.svc.Registry().CreateRoom(ctx, req.HostName, req.Topic,
		req.QuestionsPerTeam, req.MaxParticipants, req.TimerSeconds)
	if err != nil {
		h.writeError(c, err)
		return
	}

	session := h.svc.Sessions().Create(room.Pin, host.ID, host.Name, host.Role)
	setSessionCookie(c, session.SessionID)

	c.JSON(http.StatusCreated, gin.H{"room": room, "participant": host})
}

// JoinRoom handles POST /rooms/:pin/join.
func (h *Handler) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, "playerName is required")
		return
	}

	pin := types.NormalizePin(c.Param("pin"))
	ctx := c.Request.Context()
	room, joined, err := h.svc.Registry().JoinRoom(ctx, pin, req.PlayerName)
	if err != nil {
		h.writeError(c, err)
		return
	}

	session := h.svc.Sessions().Create(room.Pin, joined.ID, joined.Name, joined.Role)
	setSessionCookie(c, session.SessionID)

	c.JSON(http.StatusOK, gin.H{"room": room, "participant": joined})
}

// GetRoom handles GET /rooms/:pin. The snapshot is only served to a session
// bound to that room.
func (h *Handler) GetRoom(c *gin.Context) {
	pin := types.NormalizePin(c.Param("pin"))

	session, ok := h.sessionFor(c, pin)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "no session for this room"})
		return
	}

	room, err := h.svc.Registry().GetRoom(pin)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "participantId": session.ParticipantID})
}

// StartGame handles POST /rooms/:pin/start.
func (h *Handler) StartGame(c *gin.Context) {
	pin := types.NormalizePin(c.Param("pin"))

	session, ok := h.sessionFor(c, pin)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "no session for this room"})
		return
	}

	res, err := h.svc.StartGame(c.Request.Context(), pin, session.ParticipantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":              res.Room,
		"gameInfo":          res.Room.Game,
		"generationSource":  res.Source,
		"generationMessage": res.Reason,
	})
}

// SubmitAnswer handles POST /rooms/:pin/answer.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OptionIndex == nil {
		unprocessable(c, "optionIndex is required")
		return
	}
	if *req.OptionIndex < 0 || *req.OptionIndex > 3 {
		unprocessable(c, "optionIndex must be between 0 and 3")
		return
	}

	pin := types.NormalizePin(c.Param("pin"))
	session, ok := h.sessionFor(c, pin)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "no session for this room"})
		return
	}

	res, err := h.svc.SubmitAnswer(c.Request.Context(), pin, session.ParticipantID, *req.OptionIndex)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room":         res.Room,
		"answerStatus": res.Status,
		"gameFinished": res.GameFinished,
	})
}

// AddMessage handles POST /rooms/:pin/messages.
func (h *Handler) AddMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		unprocessable(c, "text is required")
		return
	}
	if len(req.Text) == 0 || len(req.Text) > types.MaxMessageLength {
		unprocessable(c, "text must be 1 to 400 characters")
		return
	}

	pin := types.NormalizePin(c.Param("pin"))
	session, ok := h.sessionFor(c, pin)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "no session for this room"})
		return
	}

	msg, err := h.svc.AddMessage(c.Request.Context(), pin, session.ParticipantID, req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// LeaveRoom handles POST /rooms/:pin/leave.
func (h *Handler) LeaveRoom(c *gin.Context) {
	pin := types.NormalizePin(c.Param("pin"))
	session, ok := h.sessionFor(c, pin)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"detail": "no session for this room"})
		return
	}

	res, err := h.svc.Leave(c.Request.Context(), pin, session.ParticipantID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"left": true, "roomDeleted": res.RoomDeleted})
}

// CheckPin handles POST /rooms/check-pin and GET /rooms/check-pin.
func (h *Handler) CheckPin(c *gin.Context) {
	var pin string
	if c.Request.Method == http.MethodPost {
		var req checkPinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			unprocessable(c, "pin is required")
			return
		}
		pin = req.Pin
	} else {
		pin = c.Query("pin")
	}

	normalized := types.NormalizePin(pin)
	if !types.ValidPin(normalized) {
		c.JSON(http.StatusOK, gin.H{"exists": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": h.svc.Registry().CheckPin(normalized)})
}

// GetSession handles GET /session. A session whose room is gone is deleted
// on the spot so the stale cookie stops shadowing the store.
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	if !h.svc.Registry().CheckPin(session.RoomPin) {
		h.svc.Sessions().Delete(session.SessionID)
		clearSessionCookie(c)
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "session": session})
}

// Logout handles POST /session/logout. Clears the cookie without leaving
// the room; a later socket disconnect or leave finishes the departure.
func (h *Handler) Logout(c *gin.Context) {
	if session, ok := h.currentSession(c); ok {
		h.svc.Sessions().Delete(session.SessionID)
	}
	clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"active": false})
}

// currentSession resolves the cookie to a stored session.
func (h *Handler) currentSession(c *gin.Context) (types.SessionData, bool) {
	cookie, err := c.Cookie(sessions.CookieName)
	if err != nil || cookie == "" {
		return types.SessionData{}, false
	}
	return h.svc.Sessions().Get(cookie)
}

// sessionFor resolves the cookie and checks it belongs to the given pin.
func (h *Handler) sessionFor(c *gin.Context, pin types.PinType) (types.SessionData, bool) {
	session, ok := h.currentSession(c)
	if !ok || session.RoomPin != pin {
		return types.SessionData{}, false
	}
	return session, true
}

func setSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessions.CookieName, sessionID, sessionCookieMaxAge, "/", "", false, true)
}

func clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessions.CookieName, "", -1, "/", "", false, true)
}

func unprocessable(c *gin.Context, detail string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": detail})
}

// writeError maps engine error kinds onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrCapacityExceeded),
		errors.Is(err, engine.ErrStateClosed),
		errors.Is(err, engine.ErrNameTaken),
		errors.Is(err, engine.ErrWrongTurn),
		errors.Is(err, engine.ErrAlreadyAnswered),
		errors.Is(err, engine.ErrGameNotActive),
		errors.Is(err, engine.ErrNotEnoughPlayers),
		errors.Is(err, engine.ErrNotEnoughQuestions):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrParticipantNotFound):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrPinExhausted):
		status = http.StatusInternalServerError
	default:
		logging.Error(c.Request.Context(), "Unhandled error", zap.Error(err))
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
