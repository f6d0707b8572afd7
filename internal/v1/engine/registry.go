package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/types"
)

const (
	// pinAllocAttempts bounds the retry loop for PIN collisions.
	pinAllocAttempts = 200

	// maxChatHistory caps per-room chat retention.
	maxChatHistory = 200
)

// Saver receives the full registry snapshot after every mutating operation.
// Implementations are best-effort; the engine never blocks on them.
type Saver interface {
	SaveRooms(rooms []*Room)
}

type binding struct {
	pin           types.PinType
	participantID types.ParticipantIDType
}

// Registry owns every Room, keyed by PIN. One mutex covers the map and all
// contained rooms; operations on a single room are total-ordered by it.
// The sid index is a derived cache, reconstructable from Participant records,
// and is updated under the same lock.
type Registry struct {
	mu       sync.Mutex
	rooms    map[types.PinType]*Room
	sidIndex map[types.SocketIDType]binding

	saver Saver
	now   func() time.Time
	randN func(n int) int
}

// Option customizes a Registry, mainly for tests.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(rg *Registry) { rg.now = now }
}

// WithRand overrides the random source used for PIN allocation and team
// assignment. randN must return a uniform value in [0, n).
func WithRand(randN func(n int) int) Option {
	return func(rg *Registry) { rg.randN = randN }
}

// NewRegistry creates an empty registry. saver may be nil to disable
// persistence.
func NewRegistry(saver Saver, opts ...Option) *Registry {
	rg := &Registry{
		rooms:    make(map[types.PinType]*Room),
		sidIndex: make(map[types.SocketIDType]binding),
		saver:    saver,
		now:      time.Now,
		randN:    rand.IntN,
	}
	for _, opt := range opts {
		opt(rg)
	}
	return rg
}

// CreateRoom allocates a PIN, creates the room, and seats the host in the
// same step. Returns detached copies of both.
func (rg *Registry) CreateRoom(ctx context.Context, hostName, topic string, questionsPerTeam, maxParticipants, timerSeconds int) (*Room, *Participant, error) {
	if err := validateRoomSettings(hostName, topic, questionsPerTeam, maxParticipants, timerSeconds); err != nil {
		return nil, nil, err
	}

	rg.mu.Lock()
	defer rg.mu.Unlock()

	pin, err := rg.allocatePinLocked()
	if err != nil {
		return nil, nil, err
	}

	host := &Participant{
		ID:       types.ParticipantIDType(uuid.NewString()),
		Name:     strings.TrimSpace(hostName),
		Role:     types.RoleHost,
		Team:     types.TeamNone,
		JoinedAt: rg.now().UTC(),
	}

	room := &Room{
		Pin:              pin,
		Topic:            strings.TrimSpace(topic),
		QuestionsPerTeam: questionsPerTeam,
		MaxParticipants:  maxParticipants,
		TimerSeconds:     timerSeconds,
		Status:           types.StatusWaiting,
		CreatedAt:        rg.now().UTC(),
		Participants:     []*Participant{host},
		Messages:         []*ChatMessage{},
	}
	rg.rooms[pin] = room

	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(string(pin)).Set(1)
	logging.Info(ctx, "Room created",
		zap.String("pin", string(pin)),
		zap.String("topic", room.Topic),
		zap.Int("questionsPerTeam", questionsPerTeam),
	)

	rg.persistLocked()
	return room.Clone(), host.Clone(), nil
}

// GetRoom returns a detached snapshot of the room.
func (rg *Registry) GetRoom(pin types.PinType) (*Room, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	return room.Clone(), nil
}

// CheckPin reports whether a room with the given PIN exists.
func (rg *Registry) CheckPin(pin types.PinType) bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	_, ok := rg.rooms[types.NormalizePin(string(pin))]
	return ok
}

// ListRooms returns detached snapshots of every live room.
func (rg *Registry) ListRooms() []*Room {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	out := make([]*Room, 0, len(rg.rooms))
	for _, room := range rg.rooms {
		out = append(out, room.Clone())
	}
	return out
}

// DeleteRoom removes a room and every socket binding pointing into it.
func (rg *Registry) DeleteRoom(ctx context.Context, pin types.PinType) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return err
	}
	rg.deleteRoomLocked(ctx, room)
	rg.persistLocked()
	return nil
}

func validateRoomSettings(hostName, topic string, questionsPerTeam, maxParticipants, timerSeconds int) error {
	switch {
	case strings.TrimSpace(hostName) == "":
		return fmt.Errorf("%w: hostName must not be empty", ErrValidation)
	case strings.TrimSpace(topic) == "":
		return fmt.Errorf("%w: topic must not be empty", ErrValidation)
	case questionsPerTeam < types.MinQuestionsPerTeam || questionsPerTeam > types.MaxQuestionsPerTeam:
		return fmt.Errorf("%w: questionsPerTeam must be between %d and %d", ErrValidation, types.MinQuestionsPerTeam, types.MaxQuestionsPerTeam)
	case maxParticipants < types.MinParticipants || maxParticipants > types.MaxParticipants:
		return fmt.Errorf("%w: maxParticipants must be between %d and %d", ErrValidation, types.MinParticipants, types.MaxParticipants)
	case timerSeconds < types.MinTimerSeconds || timerSeconds > types.MaxTimerSeconds:
		return fmt.Errorf("%w: timerSeconds must be between %d and %d", ErrValidation, types.MinTimerSeconds, types.MaxTimerSeconds)
	}
	return nil
}

// --- Locked internals ---

func (rg *Registry) getRoomLocked(pin types.PinType) (*Room, error) {
	room, ok := rg.rooms[types.NormalizePin(string(pin))]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (rg *Registry) deleteRoomLocked(ctx context.Context, room *Room) {
	for _, p := range room.Participants {
		if p.SocketID != "" {
			delete(rg.sidIndex, p.SocketID)
		}
	}
	delete(rg.rooms, room.Pin)

	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(string(room.Pin))
	logging.Info(ctx, "Room deleted", zap.String("pin", string(room.Pin)))
}

func (rg *Registry) allocatePinLocked() (types.PinType, error) {
	buf := make([]byte, types.PinLength)
	for attempt := 0; attempt < pinAllocAttempts; attempt++ {
		for i := range buf {
			buf[i] = types.PinAlphabet[rg.randN(len(types.PinAlphabet))]
		}
		pin := types.PinType(buf)
		if _, taken := rg.rooms[pin]; !taken {
			return pin, nil
		}
	}
	return "", ErrPinExhausted
}

// persistLocked hands a snapshot of every room to the saver. Caller holds
// the registry lock; the saver must not block.
func (rg *Registry) persistLocked() {
	if rg.saver == nil {
		return
	}
	rooms := make([]*Room, 0, len(rg.rooms))
	for _, room := range rg.rooms {
		rooms = append(rooms, room.Clone())
	}
	rg.saver.SaveRooms(rooms)
}

// RestoreRooms replaces registry contents with the given rooms, clearing
// every socket binding (sockets are process-local and never survive a
// restart). Used once at startup.
func (rg *Registry) RestoreRooms(ctx context.Context, rooms []*Room) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.rooms = make(map[types.PinType]*Room, len(rooms))
	rg.sidIndex = make(map[types.SocketIDType]binding)
	for _, room := range rooms {
		restored := room.Clone()
		for _, p := range restored.Participants {
			p.SocketID = ""
		}
		rg.rooms[restored.Pin] = restored
		metrics.RoomParticipants.WithLabelValues(string(restored.Pin)).Set(float64(len(restored.Participants)))
	}
	metrics.ActiveRooms.Set(float64(len(rg.rooms)))
	logging.Info(ctx, "Registry restored from snapshot", zap.Int("rooms", len(rooms)))
}
