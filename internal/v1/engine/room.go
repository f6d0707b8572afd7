package engine

import (
	"time"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// Room is the authoritative state of one trivia room. Rooms live inside the
// Registry and are mutated only under its lock; everything handed to callers
// is a deep copy produced by Clone.
type Room struct {
	Pin              types.PinType        `json:"pin"`
	Topic            string               `json:"topic"`
	QuestionsPerTeam int                  `json:"questionsPerTeam"`
	MaxParticipants  int                  `json:"maxParticipants"`
	TimerSeconds     int                  `json:"timerSeconds"`
	Status           types.RoomStatusType `json:"status"`
	CreatedAt        time.Time            `json:"createdAt"`
	Participants     []*Participant       `json:"participants"`
	Messages         []*ChatMessage       `json:"messages"`
	Game             *GameInfo            `json:"gameInfo,omitempty"`
}

// Participant is a named member of a room. SocketID is runtime-only state
// and never serialized.
type Participant struct {
	ID       types.ParticipantIDType `json:"participantId"`
	Name     string                  `json:"name"`
	Role     types.RoleType          `json:"role"`
	Team     types.TeamType          `json:"team,omitempty"`
	JoinedAt time.Time               `json:"joinedAt"`
	SocketID types.SocketIDType      `json:"-"`
}

// GameInfo carries the per-game progress once a room goes active.
type GameInfo struct {
	Status              types.RoomStatusType `json:"status"`
	ActiveTeam          types.TeamType       `json:"activeTeam"`
	ActiveQuestionIndex int                  `json:"activeQuestionIndex"`
	Counter             int                  `json:"counter"`
	Scores              Scores               `json:"scores"`
	Questions           []*Question          `json:"questions"`
}

// Scores holds the running totals per team.
type Scores struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// Add increments the total for the given team.
func (s *Scores) Add(team types.TeamType) {
	switch team {
	case types.TeamRed:
		s.Red++
	case types.TeamBlue:
		s.Blue++
	}
}

// Question is one turn's worth of game content. Once Answered is set the
// question is immutable.
type Question struct {
	QuestionID     string                  `json:"questionId"`
	Text           string                  `json:"text"`
	Options        []string                `json:"options"`
	CorrectOption  int                     `json:"correctOption"`
	Team           types.TeamType          `json:"team"`
	Answered       bool                    `json:"answered"`
	SelectedOption *int                    `json:"selectedOption,omitempty"`
	AnswerStatus   types.AnswerStatusType  `json:"answerStatus,omitempty"`
}

// ChatMessage is a room-scoped chat entry. Command carries the author's team
// at send time, or empty before teams are assigned.
type ChatMessage struct {
	MessageID  string         `json:"messageId"`
	Text       string         `json:"text"`
	CreatedAt  time.Time      `json:"createdAt"`
	AuthorName string         `json:"authorName"`
	Command    types.TeamType `json:"command,omitempty"`
}

// --- Deep copies ---

// Clone returns a detached deep copy of the room. Mutating the copy never
// affects registry state.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = make([]*Participant, len(r.Participants))
	for i, p := range r.Participants {
		out.Participants[i] = p.Clone()
	}
	out.Messages = make([]*ChatMessage, len(r.Messages))
	for i, m := range r.Messages {
		cm := *m
		out.Messages[i] = &cm
	}
	out.Game = r.Game.Clone()
	return &out
}

// Clone returns a detached copy of the participant.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Clone returns a detached deep copy of the game info.
func (g *GameInfo) Clone() *GameInfo {
	if g == nil {
		return nil
	}
	out := *g
	out.Questions = make([]*Question, len(g.Questions))
	for i, q := range g.Questions {
		out.Questions[i] = q.Clone()
	}
	return &out
}

// Clone returns a detached copy of the question.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	cq := *q
	cq.Options = append([]string(nil), q.Options...)
	if q.SelectedOption != nil {
		sel := *q.SelectedOption
		cq.SelectedOption = &sel
	}
	return &cq
}

// --- Locked helpers (caller must hold the registry lock) ---

func (r *Room) findParticipantLocked(id types.ParticipantIDType) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) hostLocked() *Participant {
	for _, p := range r.Participants {
		if p.Role == types.RoleHost {
			return p
		}
	}
	return nil
}

func (r *Room) currentQuestionLocked() *Question {
	if r.Game == nil {
		return nil
	}
	idx := r.Game.ActiveQuestionIndex
	if idx < 0 || idx >= len(r.Game.Questions) {
		return nil
	}
	return r.Game.Questions[idx]
}
