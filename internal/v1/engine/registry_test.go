package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// recordingSaver captures registry snapshots handed to the persistence layer.
type recordingSaver struct {
	mu    sync.Mutex
	calls int
	last  []*Room
}

func (s *recordingSaver) SaveRooms(rooms []*Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = rooms
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(nil)
}

func mustCreateRoom(t *testing.T, rg *Registry) (*Room, *Participant) {
	t.Helper()
	room, host, err := rg.CreateRoom(context.Background(), "Alice", "science", 5, 10, 30)
	require.NoError(t, err)
	return room, host
}

func TestCreateRoom(t *testing.T) {
	saver := &recordingSaver{}
	rg := NewRegistry(saver)

	room, host, err := rg.CreateRoom(context.Background(), "Alice", "space", 5, 10, 30)
	require.NoError(t, err)

	assert.True(t, types.ValidPin(room.Pin))
	assert.Equal(t, types.StatusWaiting, room.Status)
	assert.Equal(t, "space", room.Topic)
	assert.Len(t, room.Participants, 1)
	assert.Equal(t, types.RoleHost, host.Role)
	assert.Equal(t, types.TeamNone, host.Team)
	assert.Equal(t, "Alice", host.Name)
	assert.Nil(t, room.Game)

	saver.mu.Lock()
	defer saver.mu.Unlock()
	assert.Equal(t, 1, saver.calls)
	assert.Len(t, saver.last, 1)
}

func TestCreateRoom_Validation(t *testing.T) {
	rg := newTestRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name             string
		hostName, topic  string
		perTeam, maxP, s int
	}{
		{"empty host name", "", "topic", 5, 10, 30},
		{"empty topic", "Alice", "  ", 5, 10, 30},
		{"perTeam too low", "Alice", "topic", 4, 10, 30},
		{"perTeam too high", "Alice", "topic", 8, 10, 30},
		{"maxParticipants too low", "Alice", "topic", 5, 1, 30},
		{"maxParticipants too high", "Alice", "topic", 5, 101, 30},
		{"timer too short", "Alice", "topic", 5, 10, 9},
		{"timer too long", "Alice", "topic", 5, 10, 121},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := rg.CreateRoom(ctx, tc.hostName, tc.topic, tc.perTeam, tc.maxP, tc.s)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, rg.ListRooms())
}

func TestCreateRoom_PinUniqueness(t *testing.T) {
	rg := newTestRegistry(t)
	seen := make(map[types.PinType]bool)

	for i := 0; i < 100; i++ {
		room, _, err := rg.CreateRoom(context.Background(), fmt.Sprintf("Host%d", i), "topic", 5, 10, 30)
		require.NoError(t, err)
		assert.False(t, seen[room.Pin], "pin %s allocated twice", room.Pin)
		seen[room.Pin] = true
	}
}

func TestCreateRoom_PinExhausted(t *testing.T) {
	// A rand source stuck on zero always produces "AAAAAA"; the second
	// creation cannot find a free pin.
	rg := NewRegistry(nil, WithRand(func(n int) int { return 0 }))

	room, _, err := rg.CreateRoom(context.Background(), "Alice", "t", 5, 10, 30)
	require.NoError(t, err)
	assert.Equal(t, types.PinType("AAAAAA"), room.Pin)

	_, _, err = rg.CreateRoom(context.Background(), "Bob", "t", 5, 10, 30)
	assert.ErrorIs(t, err, ErrPinExhausted)
}

func TestGetRoom_NormalizesPin(t *testing.T) {
	rg := newTestRegistry(t)
	room, _ := mustCreateRoom(t, rg)

	lower := types.PinType(fmt.Sprintf("  %s  ", room.Pin))
	got, err := rg.GetRoom(types.NormalizePin(string(lower)))
	require.NoError(t, err)
	assert.Equal(t, room.Pin, got.Pin)

	_, err = rg.GetRoom("NOPE99")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCheckPin(t *testing.T) {
	rg := newTestRegistry(t)
	room, _ := mustCreateRoom(t, rg)

	assert.True(t, rg.CheckPin(room.Pin))
	assert.False(t, rg.CheckPin("ZZZZZ9"))
}

func TestSnapshotIsolation(t *testing.T) {
	rg := newTestRegistry(t)
	room, _ := mustCreateRoom(t, rg)

	// Mutating the returned snapshot must not leak into the registry.
	room.Topic = "tampered"
	room.Participants[0].Name = "Mallory"
	room.Participants = append(room.Participants, &Participant{ID: "fake"})

	fresh, err := rg.GetRoom(room.Pin)
	require.NoError(t, err)
	assert.Equal(t, "science", fresh.Topic)
	assert.Len(t, fresh.Participants, 1)
	assert.Equal(t, "Alice", fresh.Participants[0].Name)
}

func TestDeleteRoom(t *testing.T) {
	rg := newTestRegistry(t)
	room, host := mustCreateRoom(t, rg)

	require.NoError(t, rg.BindSocket(room.Pin, host.ID, "sock-1"))
	require.NoError(t, rg.DeleteRoom(context.Background(), room.Pin))

	assert.False(t, rg.CheckPin(room.Pin))
	_, _, ok := rg.GetBound("sock-1")
	assert.False(t, ok, "binding must not survive room deletion")

	assert.ErrorIs(t, rg.DeleteRoom(context.Background(), room.Pin), ErrRoomNotFound)
}

func TestRestoreRooms_ClearsSockets(t *testing.T) {
	rg := newTestRegistry(t)
	room, host := mustCreateRoom(t, rg)
	require.NoError(t, rg.BindSocket(room.Pin, host.ID, "sock-1"))

	snapshot := rg.ListRooms()
	// Simulate a snapshot that still carries sids on disk.
	snapshot[0].Participants[0].SocketID = "stale-sock"

	restored := NewRegistry(nil)
	restored.RestoreRooms(context.Background(), snapshot)

	got, err := restored.GetRoom(room.Pin)
	require.NoError(t, err)
	assert.Empty(t, got.Participants[0].SocketID)
	_, _, ok := restored.GetBound("stale-sock")
	assert.False(t, ok)
}

func TestAddMessage_CapsHistory(t *testing.T) {
	rg := newTestRegistry(t)
	room, host := mustCreateRoom(t, rg)

	for i := 0; i < maxChatHistory+5; i++ {
		_, err := rg.AddMessage(context.Background(), room.Pin, host.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	got, err := rg.GetRoom(room.Pin)
	require.NoError(t, err)
	assert.Len(t, got.Messages, maxChatHistory)
	assert.Equal(t, "msg 5", got.Messages[0].Text)
	assert.Equal(t, "Alice", got.Messages[0].AuthorName)
}

func TestAddMessage_UnknownParticipant(t *testing.T) {
	rg := newTestRegistry(t)
	room, _ := mustCreateRoom(t, rg)

	_, err := rg.AddMessage(context.Background(), room.Pin, "ghost", "hi")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestConcurrentCreates(t *testing.T) {
	rg := newTestRegistry(t)
	var wg sync.WaitGroup
	pins := make(chan types.PinType, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, _, err := rg.CreateRoom(context.Background(), fmt.Sprintf("H%d", i), "t", 5, 10, 30)
			if assert.NoError(t, err) {
				pins <- room.Pin
			}
		}(i)
	}
	wg.Wait()
	close(pins)

	seen := make(map[types.PinType]bool)
	for pin := range pins {
		assert.False(t, seen[pin])
		seen[pin] = true
	}
	assert.Len(t, rg.ListRooms(), 50)
}
