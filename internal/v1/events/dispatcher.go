// Package events fans room-scoped events out to bound sockets. Broadcasts
// always happen after the engine's mutating call has returned, so no emit
// ever runs under the registry lock.
package events

import (
	"sync"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// Outbound event vocabulary.
const (
	RoomCreated   = "room_created"
	RoomJoined    = "room_joined"
	PlayerJoined  = "player_joined"
	UserLeft      = "user_left"
	HostChanged   = "host_changed"
	Message       = "message"
	GamePreparing = "game_preparing"
	GameStarted   = "game_started"
	NewQuestion   = "new_question"
	NextQuestion  = "next_question"
	CheckAnswer   = "check_answer"
	TimerTick     = "timer_tick"
	TimerEnd      = "timer_end"
	GameFinished  = "game_finished"
	Error         = "error"
)

// ErrorPayload is the single error emit sent to an offending socket.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// CounterPayload carries the countdown value for timer events.
type CounterPayload struct {
	Counter int `json:"counter"`
}

// PreparingPayload wraps the startGame question-generation phase.
type PreparingPayload struct {
	Preparing        bool   `json:"preparing"`
	Topic            string `json:"topic,omitempty"`
	QuestionsPerTeam int    `json:"questionsPerTeam,omitempty"`
	Source           string `json:"source,omitempty"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Dispatcher tracks which sockets are subscribed to which room and fans
// events out to them. It implements types.Broadcaster.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   map[types.SocketIDType]types.EventSink
	rooms   map[types.PinType]map[types.SocketIDType]struct{}
	sidRoom map[types.SocketIDType]types.PinType
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		sinks:   make(map[types.SocketIDType]types.EventSink),
		rooms:   make(map[types.PinType]map[types.SocketIDType]struct{}),
		sidRoom: make(map[types.SocketIDType]types.PinType),
	}
}

// Register makes a socket addressable for direct emits.
func (d *Dispatcher) Register(sid types.SocketIDType, sink types.EventSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[sid] = sink
}

// Unregister removes the socket and any room membership.
func (d *Dispatcher) Unregister(sid types.SocketIDType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(sid)
	delete(d.sinks, sid)
}

// Join subscribes the socket to a room's broadcasts. A socket belongs to at
// most one room; joining again moves it.
func (d *Dispatcher) Join(pin types.PinType, sid types.SocketIDType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.leaveLocked(sid)
	members, ok := d.rooms[pin]
	if !ok {
		members = make(map[types.SocketIDType]struct{})
		d.rooms[pin] = members
	}
	members[sid] = struct{}{}
	d.sidRoom[sid] = pin
}

// Leave unsubscribes the socket from its room, keeping it registered.
func (d *Dispatcher) Leave(sid types.SocketIDType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(sid)
}

func (d *Dispatcher) leaveLocked(sid types.SocketIDType) {
	pin, ok := d.sidRoom[sid]
	if !ok {
		return
	}
	delete(d.sidRoom, sid)
	if members, ok := d.rooms[pin]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(d.rooms, pin)
		}
	}
}

// ToRoom emits an event to every socket subscribed to pin, minus skips.
// Recipients are collected under the read lock; the sends happen outside it.
func (d *Dispatcher) ToRoom(pin types.PinType, event string, payload any, skip ...types.SocketIDType) {
	skipped := make(map[types.SocketIDType]struct{}, len(skip))
	for _, sid := range skip {
		skipped[sid] = struct{}{}
	}

	d.mu.RLock()
	var recipients []types.EventSink
	for sid := range d.rooms[pin] {
		if _, ok := skipped[sid]; ok {
			continue
		}
		if sink, ok := d.sinks[sid]; ok {
			recipients = append(recipients, sink)
		}
	}
	d.mu.RUnlock()

	for _, sink := range recipients {
		sink.Send(event, payload)
	}
}

// ToSocket emits an event to a single socket, if it is still registered.
func (d *Dispatcher) ToSocket(sid types.SocketIDType, event string, payload any) {
	d.mu.RLock()
	sink, ok := d.sinks[sid]
	d.mu.RUnlock()

	if ok {
		sink.Send(event, payload)
	}
}

// RoomSize reports how many sockets are subscribed to pin.
func (d *Dispatcher) RoomSize(pin types.PinType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms[pin])
}
