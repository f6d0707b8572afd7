// Package timer runs the per-room countdown tasks. At most one task per
// room exists at any time: Restart cancels and awaits the previous task
// before spawning the next, so tick streams never interleave.
package timer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/engine"
	"github.com/quizclash/backend/go/internal/v1/events"
	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/metrics"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// GameEngine is the slice of the room registry the timer drives.
type GameEngine interface {
	TickCounter(pin types.PinType) (int, bool, error)
	HandleTimerEnd(ctx context.Context, pin types.PinType) (*engine.AdvanceResult, error)
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns every running countdown task.
type Supervisor struct {
	mu       sync.Mutex
	tasks    map[types.PinType]*task
	engine   GameEngine
	out      types.Broadcaster
	interval time.Duration

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewSupervisor creates a supervisor ticking once per second.
func NewSupervisor(engine GameEngine, out types.Broadcaster) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		tasks:    make(map[types.PinType]*task),
		engine:   engine,
		out:      out,
		interval: time.Second,
		baseCtx:  ctx,
		stop:     cancel,
	}
}

// SetInterval overrides the tick interval. Test hook.
func (s *Supervisor) SetInterval(d time.Duration) {
	s.interval = d
}

// Restart cancels any running task for the pin, waits for it to exit, then
// spawns a fresh one.
func (s *Supervisor) Restart(pin types.PinType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(pin)
	if s.baseCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	s.tasks[pin] = t

	s.wg.Add(1)
	metrics.RunningTimerTasks.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.RunningTimerTasks.Dec()
		s.run(ctx, pin)
		cancel()
		// done must close before the lock is retaken: a concurrent Cancel
		// holds the lock while waiting on this channel.
		close(t.done)
		s.clearTask(pin, t)
	}()
}

// Cancel stops the task for the pin, if one is running, and waits for it.
func (s *Supervisor) Cancel(pin types.PinType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(pin)
}

func (s *Supervisor) cancelLocked(pin types.PinType) {
	t, ok := s.tasks[pin]
	if !ok {
		return
	}
	delete(s.tasks, pin)
	t.cancel()
	<-t.done
}

// Shutdown cancels every task and waits for them all, bounded by ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.stop()

	s.mu.Lock()
	for pin, t := range s.tasks {
		t.cancel()
		delete(s.tasks, pin)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the countdown loop for one room. Each tick decrements the shared
// counter; reaching zero resolves the question as a timeout and either
// continues with the next question or finishes the game.
func (s *Supervisor) run(ctx context.Context, pin types.PinType) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		counter, active, err := s.engine.TickCounter(pin)
		if err != nil || !active {
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.out.ToRoom(pin, events.TimerTick, events.CounterPayload{Counter: counter})
		if counter > 0 {
			continue
		}

		s.out.ToRoom(pin, events.TimerEnd, events.CounterPayload{Counter: 0})

		res, err := s.engine.HandleTimerEnd(ctx, pin)
		if err != nil {
			if ctx.Err() == nil {
				logging.Warn(ctx, "Timer advance failed",
					zap.String("pin", string(pin)), zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !res.Advanced {
			// An answer beat the timeout; its Restart owns the next countdown.
			return
		}

		if res.GameFinished {
			s.out.ToRoom(pin, events.GameFinished, "finished")
			return
		}

		s.out.ToRoom(pin, events.NewQuestion, res.NextQuestion)
		s.out.ToRoom(pin, events.NextQuestion, res.NextQuestion)
		ticker.Reset(s.interval)
	}
}

// clearTask removes the map entry after a natural exit. The identity check
// keeps a racing Restart's replacement task intact.
func (s *Supervisor) clearTask(pin types.PinType, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[pin]; ok && cur == t {
		delete(s.tasks, pin)
	}
}
