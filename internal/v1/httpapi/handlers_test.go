package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/events"
	"github.com/quizclash/backend/go/internal/v1/questions"
	"github.com/quizclash/backend/go/internal/v1/service"
	"github.com/quizclash/backend/go/internal/v1/sessions"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// noopTimers satisfies service.Timers without background tasks.
type noopTimers struct {
	restarts []types.PinType
	cancels  []types.PinType
}

func (n *noopTimers) Restart(pin types.PinType) { n.restarts = append(n.restarts, pin) }
func (n *noopTimers) Cancel(pin types.PinType)  { n.cancels = append(n.cancels, pin) }

type harness struct {
	router   *gin.Engine
	registry *engine.Registry
	timers   *noopTimers
	svc      *service.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := engine.NewRegistry(nil)
	timers := &noopTimers{}
	svc := service.New(
		registry,
		questions.NewProvider(nil, time.Second),
		sessions.NewStore(""),
		timers,
		events.NewDispatcher(),
	)

	router := gin.New()
	NewHandler(svc).Register(router.Group("/api/v1"), nil)
	return &harness{router: router, registry: registry, timers: timers, svc: svc}
}

func (h *harness) do(t *testing.T, method, path string, body any, cookie string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: sessions.CookieName, Value: cookie})
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	}
	return w, parsed
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie in response")
	return ""
}

func createRoomBody() map[string]any {
	return map[string]any{
		"hostName":         "Alice",
		"topic":            "science",
		"questionsPerTeam": 5,
		"maxParticipants":  10,
		"timerSeconds":     30,
	}
}

// createRoom drives POST /rooms and returns the pin and host cookie.
func (h *harness) createRoom(t *testing.T) (string, string) {
	t.Helper()
	w, body := h.do(t, http.MethodPost, "/api/v1/rooms", createRoomBody(), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	room := body["room"].(map[string]any)
	return room["pin"].(string), sessionCookie(t, w)
}

func (h *harness) joinRoom(t *testing.T, pin, name string) string {
	t.Helper()
	w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/join", map[string]any{"playerName": name}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

func TestCreateRoom(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms", createRoomBody(), "")
	require.Equal(t, http.StatusCreated, w.Code)

	room := body["room"].(map[string]any)
	assert.Len(t, room["pin"].(string), 6)
	assert.Equal(t, "waiting", room["status"])
	participant := body["participant"].(map[string]any)
	assert.Equal(t, "host", participant["role"])

	cookie := func() *http.Cookie {
		for _, c := range w.Result().Cookies() {
			if c.Name == sessions.CookieName {
				return c
			}
		}
		return nil
	}()
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 604800, cookie.MaxAge)
	assert.Len(t, cookie.Value, 32)
}

func TestCreateRoom_Validation(t *testing.T) {
	h := newHarness(t)

	body := createRoomBody()
	body["questionsPerTeam"] = 9
	w, _ := h.do(t, http.MethodPost, "/api/v1/rooms", body, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = h.do(t, http.MethodPost, "/api/v1/rooms", map[string]any{"hostName": "Alice"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreateRoom_ConflictWhenSessionLive(t *testing.T) {
	h := newHarness(t)
	_, cookie := h.createRoom(t)

	req := createRoomBody()
	w, _ := h.do(t, http.MethodPost, "/api/v1/rooms", req, cookie)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t)
	pin, _ := h.createRoom(t)

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/join", map[string]any{"playerName": "Bob"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "participant", body["participant"].(map[string]any)["role"])

	t.Run("unknown pin", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/ZZZZZ9/join", map[string]any{"playerName": "X"}, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("name collision", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/join", map[string]any{"playerName": "bob"}, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/join", map[string]any{}, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestGetRoom_RequiresMatchingSession(t *testing.T) {
	h := newHarness(t)
	pin, cookie := h.createRoom(t)

	w, body := h.do(t, http.MethodGet, "/api/v1/rooms/"+pin, nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pin, body["room"].(map[string]any)["pin"])

	t.Run("no cookie", func(t *testing.T) {
		w, _ := h.do(t, http.MethodGet, "/api/v1/rooms/"+pin, nil, "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("cookie for another room", func(t *testing.T) {
		otherPin, otherCookie := h.createRoom(t)
		require.NotEqual(t, pin, otherPin)
		w, _ := h.do(t, http.MethodGet, "/api/v1/rooms/"+pin, nil, otherCookie)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestStartGame(t *testing.T) {
	h := newHarness(t)
	pin, hostCookie := h.createRoom(t)
	bobCookie := h.joinRoom(t, pin, "Bob")

	t.Run("non-host denied", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/start", nil, bobCookie)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/start", nil, hostCookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "fallback", body["generationSource"])
	assert.NotEmpty(t, body["generationMessage"])
	game := body["gameInfo"].(map[string]any)
	assert.Equal(t, "active", game["status"])
	assert.Len(t, game["questions"].([]any), 10)
	assert.Equal(t, []types.PinType{types.PinType(pin)}, h.timers.restarts)

	t.Run("already started", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/start", nil, hostCookie)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestStartGame_NotEnoughPlayers(t *testing.T) {
	h := newHarness(t)
	pin, hostCookie := h.createRoom(t)

	w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/start", nil, hostCookie)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitAnswer(t *testing.T) {
	h := newHarness(t)
	pin, hostCookie := h.createRoom(t)
	bobCookie := h.joinRoom(t, pin, "Bob")

	w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/start", nil, hostCookie)
	require.Equal(t, http.StatusOK, w.Code)

	// Work out whose turn it is from the engine directly.
	room, err := h.registry.GetRoom(types.PinType(pin))
	require.NoError(t, err)
	activeCookie, idleCookie := hostCookie, bobCookie
	for _, p := range room.Participants {
		if p.Team == room.Game.ActiveTeam && p.Name == "Bob" {
			activeCookie, idleCookie = bobCookie, hostCookie
		}
	}

	t.Run("wrong turn", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/answer", map[string]any{"optionIndex": 0}, idleCookie)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/answer", map[string]any{"optionIndex": 5}, activeCookie)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/answer", map[string]any{"optionIndex": 0}, activeCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, []any{"correct", "incorrect"}, body["answerStatus"])
	assert.Equal(t, false, body["gameFinished"])
}

func TestAddMessage(t *testing.T) {
	h := newHarness(t)
	pin, cookie := h.createRoom(t)

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/messages", map[string]any{"text": "hello"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", body["message"].(map[string]any)["text"])

	t.Run("too long", func(t *testing.T) {
		long := make([]byte, types.MaxMessageLength+1)
		for i := range long {
			long[i] = 'x'
		}
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/messages", map[string]any{"text": string(long)}, cookie)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("empty", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/messages", map[string]any{"text": ""}, cookie)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t)
	pin, hostCookie := h.createRoom(t)
	h.joinRoom(t, pin, "Bob")

	w, body := h.do(t, http.MethodPost, "/api/v1/rooms/"+pin+"/leave", nil, hostCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["roomDeleted"])

	// Cookie cleared.
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)

	// Bob is now host; his leave deletes the room.
	room, err := h.registry.GetRoom(types.PinType(pin))
	require.NoError(t, err)
	assert.Equal(t, types.RoleHost, room.Participants[0].Role)
}

func TestCheckPin(t *testing.T) {
	h := newHarness(t)
	pin, _ := h.createRoom(t)

	w, body := h.do(t, http.MethodGet, "/api/v1/rooms/check-pin?pin="+pin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["exists"])

	w, body = h.do(t, http.MethodPost, "/api/v1/rooms/check-pin", map[string]any{"pin": "zzzzz9"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["exists"])

	w, body = h.do(t, http.MethodGet, "/api/v1/rooms/check-pin?pin=bogus!", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["exists"])
}

func TestSessionEndpoints(t *testing.T) {
	h := newHarness(t)

	t.Run("no cookie", func(t *testing.T) {
		w, body := h.do(t, http.MethodGet, "/api/v1/session", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["active"])
	})

	pin, cookie := h.createRoom(t)

	w, body := h.do(t, http.MethodGet, "/api/v1/session", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, pin, body["session"].(map[string]any)["roomPin"])

	t.Run("vanished room deletes session inline", func(t *testing.T) {
		deadPin, deadCookie := h.createRoom(t)
		require.NoError(t, h.registry.DeleteRoom(context.Background(), types.PinType(deadPin)))

		w, body := h.do(t, http.MethodGet, "/api/v1/session", nil, deadCookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["active"])

		// Dropped from the store, not just reported inactive, and the stale
		// cookie no longer blocks creating a fresh room.
		_, ok := h.svc.Sessions().Get(deadCookie)
		assert.False(t, ok)
		w, _ = h.do(t, http.MethodPost, "/api/v1/rooms", createRoomBody(), deadCookie)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("logout", func(t *testing.T) {
		w, _ := h.do(t, http.MethodPost, "/api/v1/session/logout", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)

		w, body := h.do(t, http.MethodGet, "/api/v1/session", nil, cookie)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, body["active"])
	})
}

func TestPinIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	pin, cookie := h.createRoom(t)

	w, _ := h.do(t, http.MethodGet, "/api/v1/rooms/"+strings.ToLower(pin), nil, cookie)
	assert.Equal(t, http.StatusOK, w.Code)
}
