// Package transport is the WebSocket edge: connection upgrade, the inbound
// event router, and per-connection read/write pumps.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/events"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/ratelimit"
	"github.com/quizclash/backend/go/internal/v1/service"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// Inbound event names.
const (
	evCreateRoom = "create_room"
	evJoinRoom   = "join_room"
	evMessage    = "message"
	evStartGame  = "start_game"
	evAnswer     = "answer"
	evLeaveRoom  = "leave_room"
)

// Hub owns the WebSocket entry point and routes inbound events to the
// service layer.
type Hub struct {
	svc            *service.Service
	rateLimiter    *ratelimit.RateLimiter
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewHub creates a Hub. rateLimiter may be nil (tests).
func NewHub(svc *service.Service, rateLimiter *ratelimit.RateLimiter, allowedOrigins []string) *Hub {
	h := &Hub{
		svc:            svc,
		rateLimiter:    rateLimiter,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.originAllowed(r) },
	}
	return h
}

func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWs upgrades the request and starts the connection pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return
	}

	if !h.originAllowed(c.Request) {
		c.JSON(http.StatusForbidden, gin.H{"detail": "origin not allowed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.HandleConnection(conn)
}

// HandleConnection registers an established connection and starts its pumps.
func (h *Hub) HandleConnection(conn wsConnection) *Client {
	sid := types.SocketIDType(uuid.NewString())
	client := newClient(conn, h, sid)

	h.svc.Dispatcher().Register(sid, client)
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) handleDisconnect(c *Client) {
	ctx := context.Background()
	if res, ok := h.svc.Disconnect(ctx, c.sid); ok {
		logging.Info(ctx, "Socket disconnect removed participant",
			zap.String("sid", string(c.sid)),
			zap.String("pin", string(res.Pin)),
			zap.Bool("roomDeleted", res.RoomDeleted),
		)
	}
	h.svc.Dispatcher().Unregister(c.sid)
	c.Close()
}

// Inbound payloads.

type bindPayload struct {
	Pin           string `json:"pin"`
	ParticipantID string `json:"participantId"`
}

type pinPayload struct {
	Pin string `json:"pin"`
}

type messagePayload struct {
	Pin  string `json:"pin"`
	Text string `json:"text"`
}

type answerPayload struct {
	Pin         string `json:"pin"`
	OptionIndex int    `json:"optionIndex"`
}

// route dispatches one inbound envelope. Every failure answers the offending
// socket with a single error emit and keeps the connection open.
func (h *Hub) route(ctx context.Context, c *Client, env *envelope) {
	start := time.Now()
	err := h.handle(ctx, c, env)

	status := "ok"
	if err != nil {
		status = "error"
		c.Send(events.Error, events.ErrorPayload{Detail: errorDetail(err)})
	}
	metrics.WebsocketEvents.WithLabelValues(env.Event, status).Inc()
	metrics.EventHandlingDuration.WithLabelValues(env.Event).Observe(time.Since(start).Seconds())
}

var errUnknownEvent = errors.New("unknown event")
var errNotBound = errors.New("socket is not bound to a room")

func (h *Hub) handle(ctx context.Context, c *Client, env *envelope) error {
	switch env.Event {
	case evCreateRoom:
		var p bindPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return h.svc.BindCreated(ctx, types.NormalizePin(p.Pin), types.ParticipantIDType(p.ParticipantID), c.sid)

	case evJoinRoom:
		var p bindPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		return h.svc.BindJoined(ctx, types.NormalizePin(p.Pin), types.ParticipantIDType(p.ParticipantID), c.sid)

	case evMessage:
		var p messagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		pin, participantID, err := h.boundFor(c, p.Pin)
		if err != nil {
			return err
		}
		if len(p.Text) == 0 || len(p.Text) > types.MaxMessageLength {
			return errors.New("message must be 1 to 400 characters")
		}
		_, err = h.svc.AddMessage(ctx, pin, participantID, p.Text)
		return err

	case evStartGame:
		var p pinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		pin, participantID, err := h.boundFor(c, p.Pin)
		if err != nil {
			return err
		}
		_, err = h.svc.StartGame(ctx, pin, participantID)
		return err

	case evAnswer:
		var p answerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		pin, participantID, err := h.boundFor(c, p.Pin)
		if err != nil {
			return err
		}
		if p.OptionIndex < 0 || p.OptionIndex > 3 {
			return errors.New("optionIndex must be between 0 and 3")
		}
		_, err = h.svc.SubmitAnswer(ctx, pin, participantID, p.OptionIndex)
		return err

	case evLeaveRoom:
		var p pinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		pin, participantID, err := h.boundFor(c, p.Pin)
		if err != nil {
			return err
		}
		_, err = h.svc.Leave(ctx, pin, participantID, c.sid)
		if err != nil {
			return err
		}
		h.svc.Dispatcher().Leave(c.sid)
		return nil

	default:
		return errUnknownEvent
	}
}

// boundFor resolves the socket's binding and checks it matches the claimed
// pin. Unbound sockets may not act.
func (h *Hub) boundFor(c *Client, claimedPin string) (types.PinType, types.ParticipantIDType, error) {
	pin, participantID, ok := h.svc.Registry().GetBound(c.sid)
	if !ok {
		return "", "", errNotBound
	}
	if claimed := types.NormalizePin(claimedPin); claimed != "" && claimed != pin {
		return "", "", errNotBound
	}
	return pin, participantID, nil
}

// errorDetail maps engine errors to client-facing detail strings.
func errorDetail(err error) string {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, engine.ErrCapacityExceeded):
		return "room is full"
	case errors.Is(err, engine.ErrStateClosed):
		return "room is not accepting this action"
	case errors.Is(err, engine.ErrNameTaken):
		return "name is already taken"
	case errors.Is(err, engine.ErrAccessDenied):
		return "only the host may do that"
	case errors.Is(err, engine.ErrWrongTurn):
		return "it is not your team's turn"
	case errors.Is(err, engine.ErrAlreadyAnswered):
		return "question is already answered"
	case errors.Is(err, engine.ErrGameNotActive):
		return "game is not active"
	case errors.Is(err, engine.ErrParticipantNotFound):
		return "participant not found"
	default:
		return err.Error()
	}
}
