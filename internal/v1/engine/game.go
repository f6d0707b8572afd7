package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// LeaveResult reports the outcome of a participant leaving a room.
type LeaveResult struct {
	Room        *Room        // snapshot after removal, nil when the room was deleted
	Pin         types.PinType
	Removed     *Participant
	Promoted    *Participant // new host, nil when no promotion happened
	RoomDeleted bool
}

// AnswerResult reports the outcome of submitAnswer.
type AnswerResult struct {
	Room         *Room
	Status       types.AnswerStatusType
	NextQuestion *Question
	GameFinished bool
}

// AdvanceResult reports the outcome of a timer-driven advance. Advanced is
// false when the timeout turned out stale and nothing was touched.
type AdvanceResult struct {
	Room         *Room
	NextQuestion *Question
	GameFinished bool
	Advanced     bool
}

// StartPlan is the lock-free read phase of startGame: everything the caller
// needs to run question generation without holding the registry lock.
type StartPlan struct {
	Topic            string
	QuestionsPerTeam int
	TimerSeconds     int
}

// JoinRoom appends a new participant to a waiting room.
func (rg *Registry) JoinRoom(ctx context.Context, pin types.PinType, name string) (*Room, *Participant, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, nil, err
	}
	if room.Status != types.StatusWaiting {
		return nil, nil, ErrStateClosed
	}
	if len(room.Participants) >= room.MaxParticipants {
		return nil, nil, ErrCapacityExceeded
	}

	name = strings.TrimSpace(name)
	for _, p := range room.Participants {
		if strings.EqualFold(p.Name, name) {
			return nil, nil, ErrNameTaken
		}
	}

	joined := &Participant{
		ID:       types.ParticipantIDType(uuid.NewString()),
		Name:     name,
		Role:     types.RoleParticipant,
		Team:     types.TeamNone,
		JoinedAt: rg.now().UTC(),
	}
	room.Participants = append(room.Participants, joined)

	metrics.RoomParticipants.WithLabelValues(string(room.Pin)).Set(float64(len(room.Participants)))
	logging.Info(ctx, "Participant joined",
		zap.String("pin", string(room.Pin)),
		zap.String("participantId", string(joined.ID)),
	)

	rg.persistLocked()
	return room.Clone(), joined.Clone(), nil
}

// LeaveRoom removes a participant. The first remaining participant (insertion
// order) is promoted when the host leaves; the room is deleted when the last
// participant leaves.
func (rg *Registry) LeaveRoom(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType) (*LeaveResult, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	res, err := rg.leaveRoomLocked(ctx, room, participantID)
	if err != nil {
		return nil, err
	}
	rg.persistLocked()
	return res, nil
}

func (rg *Registry) leaveRoomLocked(ctx context.Context, room *Room, participantID types.ParticipantIDType) (*LeaveResult, error) {
	removed := room.findParticipantLocked(participantID)
	if removed == nil {
		return nil, ErrParticipantNotFound
	}
	wasHost := removed.Role == types.RoleHost

	if removed.SocketID != "" {
		delete(rg.sidIndex, removed.SocketID)
	}

	remaining := room.Participants[:0]
	for _, p := range room.Participants {
		if p.ID != participantID {
			remaining = append(remaining, p)
		}
	}
	room.Participants = remaining

	res := &LeaveResult{
		Pin:     room.Pin,
		Removed: removed.Clone(),
	}

	if len(room.Participants) == 0 {
		rg.deleteRoomLocked(ctx, room)
		res.RoomDeleted = true
		return res, nil
	}

	if wasHost {
		promoted := room.Participants[0]
		promoted.Role = types.RoleHost
		res.Promoted = promoted.Clone()
		logging.Info(ctx, "Host promoted",
			zap.String("pin", string(room.Pin)),
			zap.String("participantId", string(promoted.ID)),
		)
	}

	metrics.RoomParticipants.WithLabelValues(string(room.Pin)).Set(float64(len(room.Participants)))
	res.Room = room.Clone()
	return res, nil
}

// PrepareStart is phase (a) of startGame: a lock-free read of the settings
// needed for question generation, plus the host check. The lock is released
// before the provider call; StartGame re-validates on re-entry.
func (rg *Registry) PrepareStart(pin types.PinType, requestedBy types.ParticipantIDType) (StartPlan, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return StartPlan{}, err
	}
	if err := room.checkStartPreconditionsLocked(requestedBy); err != nil {
		return StartPlan{}, err
	}
	return StartPlan{
		Topic:            room.Topic,
		QuestionsPerTeam: room.QuestionsPerTeam,
		TimerSeconds:     room.TimerSeconds,
	}, nil
}

func (r *Room) checkStartPreconditionsLocked(requestedBy types.ParticipantIDType) error {
	requester := r.findParticipantLocked(requestedBy)
	if requester == nil {
		return ErrParticipantNotFound
	}
	if requester.Role != types.RoleHost {
		return ErrAccessDenied
	}
	if r.Status != types.StatusWaiting {
		return ErrStateClosed
	}
	if len(r.Participants) < types.MinParticipants {
		return ErrNotEnoughPlayers
	}
	return nil
}

// StartGame is phase (c): re-acquire the lock, verify preconditions still
// hold, assign teams, build the question list, and activate the room.
// Question position i is tagged red when i is even, blue otherwise, so the
// first turn always belongs to red; the random starting team only decides
// which participants end up on it.
func (rg *Registry) StartGame(ctx context.Context, pin types.PinType, requestedBy types.ParticipantIDType, questions []types.GeneratedQuestion) (*Room, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	if err := room.checkStartPreconditionsLocked(requestedBy); err != nil {
		return nil, err
	}
	total := 2 * room.QuestionsPerTeam
	if len(questions) < total {
		return nil, ErrNotEnoughQuestions
	}

	rg.assignTeamsLocked(room)

	built := make([]*Question, total)
	for i := 0; i < total; i++ {
		team := types.TeamRed
		if i%2 == 1 {
			team = types.TeamBlue
		}
		built[i] = &Question{
			QuestionID:    uuid.NewString(),
			Text:          questions[i].Text,
			Options:       append([]string(nil), questions[i].Options...),
			CorrectOption: questions[i].CorrectOption,
			Team:          team,
		}
	}

	room.Status = types.StatusActive
	room.Game = &GameInfo{
		Status:              types.StatusActive,
		ActiveTeam:          built[0].Team,
		ActiveQuestionIndex: 0,
		Counter:             room.TimerSeconds,
		Scores:              Scores{},
		Questions:           built,
	}

	logging.Info(ctx, "Game started",
		zap.String("pin", string(room.Pin)),
		zap.Int("questions", total),
		zap.Int("timerSeconds", room.TimerSeconds),
	)

	rg.persistLocked()
	return room.Clone(), nil
}

// assignTeamsLocked shuffles participants and deals them onto teams in
// alternating order, starting from a random team.
func (rg *Registry) assignTeamsLocked(room *Room) {
	order := make([]*Participant, len(room.Participants))
	copy(order, room.Participants)
	for i := len(order) - 1; i > 0; i-- {
		j := rg.randN(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	team := types.TeamRed
	if rg.randN(2) == 1 {
		team = types.TeamBlue
	}
	for _, p := range order {
		p.Team = team
		team = team.Opposite()
	}
}

// SubmitAnswer resolves the active question for the active team and
// advances the game.
func (rg *Registry) SubmitAnswer(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, optionIndex int) (*AnswerResult, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	if room.Status != types.StatusActive || room.Game == nil {
		return nil, ErrGameNotActive
	}
	participant := room.findParticipantLocked(participantID)
	if participant == nil {
		return nil, ErrParticipantNotFound
	}
	if participant.Team != room.Game.ActiveTeam {
		return nil, ErrWrongTurn
	}
	question := room.currentQuestionLocked()
	if question == nil || question.Answered {
		return nil, ErrAlreadyAnswered
	}

	question.Answered = true
	sel := optionIndex
	question.SelectedOption = &sel
	if optionIndex == question.CorrectOption {
		question.AnswerStatus = types.AnswerCorrect
		room.Game.Scores.Add(question.Team)
	} else {
		question.AnswerStatus = types.AnswerIncorrect
	}

	next, finished := rg.advanceLocked(ctx, room)

	logging.Info(ctx, "Answer submitted",
		zap.String("pin", string(room.Pin)),
		zap.String("participantId", string(participantID)),
		zap.String("status", string(question.AnswerStatus)),
		zap.Bool("finished", finished),
	)

	rg.persistLocked()
	return &AnswerResult{
		Room:         room.Clone(),
		Status:       question.AnswerStatus,
		NextQuestion: next.Clone(),
		GameFinished: finished,
	}, nil
}

// HandleTimerEnd marks an unanswered question incorrect (no score change)
// and advances. Only a genuine timeout may advance: an answer that slipped
// in after the final tick already advanced and reset the counter, so a
// non-zero counter means this call is stale and must not touch the game.
func (rg *Registry) HandleTimerEnd(ctx context.Context, pin types.PinType) (*AdvanceResult, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	if room.Status != types.StatusActive || room.Game == nil {
		return nil, ErrGameNotActive
	}

	if room.Game.Counter != 0 {
		logging.Info(ctx, "Stale timeout ignored, answer won the race",
			zap.String("pin", string(room.Pin)),
			zap.Int("counter", room.Game.Counter),
		)
		return &AdvanceResult{Room: room.Clone()}, nil
	}

	if question := room.currentQuestionLocked(); question != nil && !question.Answered {
		question.Answered = true
		question.AnswerStatus = types.AnswerIncorrect
	}

	next, finished := rg.advanceLocked(ctx, room)

	rg.persistLocked()
	return &AdvanceResult{
		Room:         room.Clone(),
		NextQuestion: next.Clone(),
		GameFinished: finished,
		Advanced:     true,
	}, nil
}

// advanceLocked moves to the next question, or finishes the game when the
// current question was the last one.
func (rg *Registry) advanceLocked(ctx context.Context, room *Room) (*Question, bool) {
	game := room.Game
	nextIndex := game.ActiveQuestionIndex + 1
	if nextIndex >= len(game.Questions) {
		room.Status = types.StatusFinished
		game.Status = types.StatusFinished
		logging.Info(ctx, "Game finished",
			zap.String("pin", string(room.Pin)),
			zap.Int("red", game.Scores.Red),
			zap.Int("blue", game.Scores.Blue),
		)
		return nil, true
	}

	game.ActiveQuestionIndex = nextIndex
	game.ActiveTeam = game.Questions[nextIndex].Team
	game.Counter = room.TimerSeconds
	return game.Questions[nextIndex], false
}

// TickCounter decrements the countdown under the room lock (floor 0) and
// reports whether the game is still active.
func (rg *Registry) TickCounter(pin types.PinType) (int, bool, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return 0, false, err
	}
	if room.Game == nil || room.Game.Status != types.StatusActive {
		return 0, false, nil
	}
	if room.Game.Counter > 0 {
		room.Game.Counter--
	}
	return room.Game.Counter, true, nil
}

// AddMessage appends a chat message stamped with the author's current team.
func (rg *Registry) AddMessage(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, text string) (*ChatMessage, error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return nil, err
	}
	author := room.findParticipantLocked(participantID)
	if author == nil {
		return nil, ErrParticipantNotFound
	}

	msg := &ChatMessage{
		MessageID:  uuid.NewString(),
		Text:       text,
		CreatedAt:  rg.now().UTC(),
		AuthorName: author.Name,
		Command:    author.Team,
	}
	room.Messages = append(room.Messages, msg)
	if len(room.Messages) > maxChatHistory {
		room.Messages = room.Messages[len(room.Messages)-maxChatHistory:]
	}

	rg.persistLocked()
	out := *msg
	return &out, nil
}
