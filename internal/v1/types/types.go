package types

import (
	"errors"
	"strings"
	"time"
)

// --- Core Domain Types ---

// PinType is the 6-character uppercase-alphanumeric identifier of a room.
type PinType string

// ParticipantIDType represents a unique identifier for a room participant.
type ParticipantIDType string

// SocketIDType represents a unique identifier for a live socket connection.
type SocketIDType string

// RoleType defines the permission level of a participant.
type RoleType string

// TeamType is one of the two competing teams, or empty before assignment.
type TeamType string

// RoomStatusType is the lifecycle state of a room and its game.
type RoomStatusType string

// AnswerStatusType records how a question was resolved.
type AnswerStatusType string

const (
	RoleHost        RoleType = "host"
	RoleParticipant RoleType = "participant"
)

const (
	TeamRed  TeamType = "red"
	TeamBlue TeamType = "blue"
	TeamNone TeamType = ""
)

const (
	StatusWaiting  RoomStatusType = "waiting"
	StatusActive   RoomStatusType = "active"
	StatusFinished RoomStatusType = "finished"
)

const (
	AnswerCorrect   AnswerStatusType = "correct"
	AnswerIncorrect AnswerStatusType = "incorrect"
	AnswerPending   AnswerStatusType = ""
)

// PinAlphabet is the character set PINs are drawn from.
const PinAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// PinLength is the fixed length of a room PIN.
const PinLength = 6

// Room setting bounds.
const (
	MinQuestionsPerTeam = 5
	MaxQuestionsPerTeam = 7
	MinParticipants     = 2
	MaxParticipants     = 100
	MinTimerSeconds     = 10
	MaxTimerSeconds     = 120
	MaxMessageLength    = 400
)

// Opposite returns the other team. TeamNone maps to itself.
func (t TeamType) Opposite() TeamType {
	switch t {
	case TeamRed:
		return TeamBlue
	case TeamBlue:
		return TeamRed
	default:
		return TeamNone
	}
}

// NormalizePin uppercases a pin argument before registry lookup.
func NormalizePin(pin string) PinType {
	return PinType(strings.ToUpper(strings.TrimSpace(pin)))
}

// ValidPin reports whether pin has the right shape (length and alphabet).
func ValidPin(pin PinType) bool {
	if len(pin) != PinLength {
		return false
	}
	for _, c := range pin {
		if !strings.ContainsRune(PinAlphabet, c) {
			return false
		}
	}
	return true
}

// --- Question provider contract ---

// GeneratedQuestion is a team-agnostic question produced by the provider.
type GeneratedQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}

// Validate checks the entry against the provider contract: non-empty text,
// exactly 4 non-empty options, correct option in range.
func (q GeneratedQuestion) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("question text cannot be empty")
	}
	if len(q.Options) != 4 {
		return errors.New("question must have exactly 4 options")
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return errors.New("question options cannot be empty")
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption > 3 {
		return errors.New("correctOption must be in range 0..3")
	}
	return nil
}

// GenerationSource tells callers whether questions came from the upstream
// generator or the static reserve bank.
type GenerationSource string

const (
	SourceAI       GenerationSource = "ai"
	SourceFallback GenerationSource = "fallback"
)

// --- Session data ---

// SessionData binds an opaque cookie value to a room participant.
type SessionData struct {
	SessionID     string            `json:"sessionId"`
	RoomPin       PinType           `json:"roomPin"`
	ParticipantID ParticipantIDType `json:"participantId"`
	Name          string            `json:"name"`
	Role          RoleType          `json:"role"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// --- Shared Interfaces ---

// EventSink is the write side of a bound socket. The dispatcher fans events
// out through this interface so the engine never depends on the transport.
type EventSink interface {
	Send(event string, payload any)
	Close()
}

// Broadcaster is the room-scoped emit surface consumed by the engine's
// callers (HTTP handlers, socket hub, timer supervisor).
type Broadcaster interface {
	ToRoom(pin PinType, event string, payload any, skip ...SocketIDType)
	ToSocket(sid SocketIDType, event string, payload any)
}
