// Package service orchestrates engine operations with their broadcast
// sequences and timer side-effects. The HTTP edge and the socket edge both
// drive the game through this layer so the emit order is identical no
// matter which surface triggered the mutation.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/events"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/questions"
	"github.com/quizclash/backend/go/internal/v1/sessions"
	"github.com/quizclash/backend/go/internal/v1/timer"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// Timers is the slice of the timer supervisor the service drives.
type Timers interface {
	Restart(pin types.PinType)
	Cancel(pin types.PinType)
}

// Service wires the registry, question provider, session store, timer
// supervisor, and dispatcher into the game flows.
type Service struct {
	registry   *engine.Registry
	provider   *questions.Provider
	sessions   *sessions.Store
	timers     Timers
	dispatcher *events.Dispatcher
}

var _ Timers = (*timer.Supervisor)(nil)

// New creates the service.
func New(registry *engine.Registry, provider *questions.Provider, sessionStore *sessions.Store, timers Timers, dispatcher *events.Dispatcher) *Service {
	return &Service{
		registry:   registry,
		provider:   provider,
		sessions:   sessionStore,
		timers:     timers,
		dispatcher: dispatcher,
	}
}

// Registry exposes the underlying engine for read paths and binding.
func (s *Service) Registry() *engine.Registry { return s.registry }

// Sessions exposes the session store.
func (s *Service) Sessions() *sessions.Store { return s.sessions }

// Dispatcher exposes the event dispatcher.
func (s *Service) Dispatcher() *events.Dispatcher { return s.dispatcher }

// StartResult reports a completed game start.
type StartResult struct {
	Room   *engine.Room
	Source types.GenerationSource
	Reason string
}

// StartGame runs the three-phase start: precondition check, question
// generation with no engine lock held, then activation. The room hears
// game_preparing around the provider call, then game_started and the first
// question, and the countdown task starts.
func (s *Service) StartGame(ctx context.Context, pin types.PinType, requestedBy types.ParticipantIDType) (*StartResult, error) {
	plan, err := s.registry.PrepareStart(pin, requestedBy)
	if err != nil {
		return nil, err
	}

	s.dispatcher.ToRoom(pin, events.GamePreparing, events.PreparingPayload{
		Preparing:        true,
		Topic:            plan.Topic,
		QuestionsPerTeam: plan.QuestionsPerTeam,
	})

	generated := s.provider.Generate(ctx, plan.Topic, plan.QuestionsPerTeam)

	room, err := s.registry.StartGame(ctx, pin, requestedBy, generated.Questions)
	if err != nil {
		s.dispatcher.ToRoom(pin, events.GamePreparing, events.PreparingPayload{
			Preparing: false,
			Error:     "game could not be started",
		})
		return nil, err
	}

	s.dispatcher.ToRoom(pin, events.GamePreparing, events.PreparingPayload{
		Preparing: false,
		Source:    string(generated.Source),
		Message:   generated.Reason,
	})
	s.dispatcher.ToRoom(pin, events.GameStarted, room.Game)
	first := room.Game.Questions[0]
	s.dispatcher.ToRoom(pin, events.NewQuestion, first)
	s.dispatcher.ToRoom(pin, events.NextQuestion, first)
	s.timers.Restart(pin)

	return &StartResult{Room: room, Source: generated.Source, Reason: generated.Reason}, nil
}

// SubmitAnswer resolves the active question and drives the post-answer
// broadcast sequence and timer restart or cancellation.
func (s *Service) SubmitAnswer(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, optionIndex int) (*engine.AnswerResult, error) {
	res, err := s.registry.SubmitAnswer(ctx, pin, participantID, optionIndex)
	if err != nil {
		return nil, err
	}

	s.dispatcher.ToRoom(pin, events.CheckAnswer, string(res.Status))
	if res.GameFinished {
		s.timers.Cancel(pin)
		s.dispatcher.ToRoom(pin, events.GameFinished, "finished")
		return res, nil
	}

	s.dispatcher.ToRoom(pin, events.NewQuestion, res.NextQuestion)
	s.dispatcher.ToRoom(pin, events.NextQuestion, res.NextQuestion)
	s.timers.Restart(pin)
	return res, nil
}

// AddMessage stores a chat message and broadcasts it.
func (s *Service) AddMessage(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, text string) (*engine.ChatMessage, error) {
	msg, err := s.registry.AddMessage(ctx, pin, participantID, text)
	if err != nil {
		return nil, err
	}
	s.dispatcher.ToRoom(pin, events.Message, msg)
	return msg, nil
}

// Leave removes the participant and runs the departure side-effects:
// session cleanup, host promotion notices, timer cancellation for deleted
// rooms. skipSids are excluded from the user_left broadcast (the leaver's
// own socket already knows).
func (s *Service) Leave(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, skipSids ...types.SocketIDType) (*engine.LeaveResult, error) {
	res, err := s.registry.LeaveRoom(ctx, pin, participantID)
	if err != nil {
		return nil, err
	}
	s.finishLeave(ctx, res, skipSids...)
	return res, nil
}

// Disconnect handles a transport-level socket loss: an unbind is a leave.
// Returns false when the socket was not bound to any participant.
func (s *Service) Disconnect(ctx context.Context, sid types.SocketIDType) (*engine.LeaveResult, bool) {
	res, ok := s.registry.UnbindSocket(ctx, sid)
	if !ok {
		return nil, false
	}
	s.finishLeave(ctx, res, sid)
	return res, true
}

func (s *Service) finishLeave(ctx context.Context, res *engine.LeaveResult, skipSids ...types.SocketIDType) {
	s.sessions.DeleteByParticipant(res.Pin, res.Removed.ID)

	// The leaver's socket never hears the departure and stops receiving room
	// broadcasts, no matter which edge triggered the leave.
	if sid := res.Removed.SocketID; sid != "" {
		skipSids = append(skipSids, sid)
		s.dispatcher.Leave(sid)
	}

	if res.RoomDeleted {
		s.timers.Cancel(res.Pin)
		logging.Info(ctx, "Room deleted after last leave", zap.String("pin", string(res.Pin)))
		return
	}

	s.dispatcher.ToRoom(res.Pin, events.UserLeft, res.Removed, skipSids...)
	if res.Promoted != nil {
		s.sessions.UpdateRole(res.Pin, res.Promoted.ID, types.RoleHost)
		s.dispatcher.ToRoom(res.Pin, events.HostChanged, res.Promoted)
	}
}

// BindCreated attaches the creator's socket: bind, subscribe, confirm with
// the room snapshot.
func (s *Service) BindCreated(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, sid types.SocketIDType) error {
	room, err := s.bind(pin, participantID, sid)
	if err != nil {
		return err
	}
	s.dispatcher.ToSocket(sid, events.RoomCreated, room)
	return nil
}

// BindJoined attaches a joiner's socket and announces them to the room.
func (s *Service) BindJoined(ctx context.Context, pin types.PinType, participantID types.ParticipantIDType, sid types.SocketIDType) error {
	room, err := s.bind(pin, participantID, sid)
	if err != nil {
		return err
	}
	s.dispatcher.ToSocket(sid, events.RoomJoined, room)

	var joined *engine.Participant
	for _, p := range room.Participants {
		if p.ID == participantID {
			joined = p
			break
		}
	}
	if joined != nil {
		s.dispatcher.ToRoom(pin, events.PlayerJoined, joined, sid)
	}
	return nil
}

func (s *Service) bind(pin types.PinType, participantID types.ParticipantIDType, sid types.SocketIDType) (*engine.Room, error) {
	if err := s.registry.BindSocket(pin, participantID, sid); err != nil {
		return nil, err
	}
	s.dispatcher.Join(pin, sid)
	return s.registry.GetRoom(pin)
}
