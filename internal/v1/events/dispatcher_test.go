package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quizclash/backend/go/internal/v1/types"
)

// fakeSink records events pushed to one socket.
type fakeSink struct {
	mu     sync.Mutex
	events []string
	closed bool
}

func (f *fakeSink) Send(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSink) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestToRoom(t *testing.T) {
	d := NewDispatcher()
	a, b, c := &fakeSink{}, &fakeSink{}, &fakeSink{}

	d.Register("sid-a", a)
	d.Register("sid-b", b)
	d.Register("sid-c", c)
	d.Join("PIN001", "sid-a")
	d.Join("PIN001", "sid-b")
	d.Join("PIN002", "sid-c")

	d.ToRoom("PIN001", Message, "hello")

	assert.Equal(t, []string{Message}, a.got())
	assert.Equal(t, []string{Message}, b.got())
	assert.Empty(t, c.got(), "other room must not hear the event")
}

func TestToRoom_Skip(t *testing.T) {
	d := NewDispatcher()
	a, b := &fakeSink{}, &fakeSink{}
	d.Register("sid-a", a)
	d.Register("sid-b", b)
	d.Join("PIN001", "sid-a")
	d.Join("PIN001", "sid-b")

	d.ToRoom("PIN001", PlayerJoined, nil, "sid-a")

	assert.Empty(t, a.got())
	assert.Equal(t, []string{PlayerJoined}, b.got())
}

func TestToSocket(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSink{}
	d.Register("sid-a", a)

	d.ToSocket("sid-a", RoomCreated, nil)
	d.ToSocket("sid-unknown", RoomCreated, nil)

	assert.Equal(t, []string{RoomCreated}, a.got())
}

func TestJoin_MovesBetweenRooms(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSink{}
	d.Register("sid-a", a)

	d.Join("PIN001", "sid-a")
	d.Join("PIN002", "sid-a")

	assert.Equal(t, 0, d.RoomSize("PIN001"))
	assert.Equal(t, 1, d.RoomSize("PIN002"))

	d.ToRoom("PIN001", Message, nil)
	assert.Empty(t, a.got())
	d.ToRoom("PIN002", Message, nil)
	assert.Len(t, a.got(), 1)
}

func TestLeaveAndUnregister(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSink{}
	d.Register("sid-a", a)
	d.Join("PIN001", "sid-a")

	d.Leave("sid-a")
	assert.Equal(t, 0, d.RoomSize("PIN001"))

	// Still registered for direct emits.
	d.ToSocket("sid-a", Error, nil)
	assert.Len(t, a.got(), 1)

	d.Unregister("sid-a")
	d.ToSocket("sid-a", Error, nil)
	assert.Len(t, a.got(), 1)
}

func TestUnregister_WhileJoined(t *testing.T) {
	d := NewDispatcher()
	a := &fakeSink{}
	d.Register("sid-a", a)
	d.Join("PIN001", "sid-a")

	d.Unregister("sid-a")

	assert.Equal(t, 0, d.RoomSize("PIN001"))
	d.ToRoom("PIN001", Message, nil)
	assert.Empty(t, a.got())
}

func TestConcurrentBroadcasts(t *testing.T) {
	d := NewDispatcher()
	sinks := make([]*fakeSink, 20)
	for i := range sinks {
		sinks[i] = &fakeSink{}
		sid := types.SocketIDType(string(rune('a' + i)))
		d.Register(sid, sinks[i])
		d.Join("PIN001", sid)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.ToRoom("PIN001", TimerTick, nil)
		}()
	}
	wg.Wait()

	for _, s := range sinks {
		assert.Len(t, s.got(), 50)
	}
}
