package engine

import "errors"

// Engine-internal error kinds. Callers match with errors.Is; the HTTP and
// socket edges translate them into status codes and error emits.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrCapacityExceeded    = errors.New("room has reached maxParticipants limit")
	ErrStateClosed         = errors.New("game already started")
	ErrNameTaken           = errors.New("name already taken in this room")
	ErrAccessDenied        = errors.New("operation requires host role")
	ErrWrongTurn           = errors.New("it is not your team's turn")
	ErrAlreadyAnswered     = errors.New("current question already answered")
	ErrGameNotActive       = errors.New("game is not active")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPinExhausted        = errors.New("could not allocate a unique pin")
	ErrNotEnoughPlayers    = errors.New("at least 2 participants required to start")
	ErrNotEnoughQuestions  = errors.New("not enough questions to start the game")
	ErrValidation          = errors.New("invalid room settings")
)
