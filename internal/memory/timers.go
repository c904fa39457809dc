// timers.go - Tracked timers with a guaranteed cancellation path.
// Code that routes its timers through a TimerTracker gets them counted for
// leak detection and cancelled on Stop.
package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brennhill/gasoline-perfkit/internal/util"
)

// TimerID identifies a tracked timer.
type TimerID uint64

type trackedTimer struct {
	t        *time.Timer
	interval bool
}

// TimerTracker owns every timer created through it.
type TimerTracker struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID TimerID
	timers map[TimerID]*trackedTimer
}

// NewTimerTracker creates an empty tracker.
func NewTimerTracker(logger *zap.Logger) *TimerTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimerTracker{logger: logger, timers: make(map[TimerID]*trackedTimer)}
}

// SetTimeout runs fn once after d.
func (tt *TimerTracker) SetTimeout(d time.Duration, fn func()) TimerID {
	return tt.add(d, fn, false)
}

// SetInterval runs fn every d until cleared. Non-positive intervals are
// raised to one millisecond.
func (tt *TimerTracker) SetInterval(d time.Duration, fn func()) TimerID {
	if d <= 0 {
		d = time.Millisecond
	}
	return tt.add(d, fn, true)
}

func (tt *TimerTracker) add(d time.Duration, fn func(), interval bool) TimerID {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.nextID++
	id := tt.nextID
	tr := &trackedTimer{interval: interval}
	tr.t = time.AfterFunc(d, func() { tt.fire(id, d, fn) })
	tt.timers[id] = tr
	return id
}

func (tt *TimerTracker) fire(id TimerID, d time.Duration, fn func()) {
	tt.mu.Lock()
	tr, ok := tt.timers[id]
	if !ok {
		tt.mu.Unlock()
		return
	}
	if !tr.interval {
		delete(tt.timers, id)
	}
	tt.mu.Unlock()

	util.SafeCall(tt.logger, "memory.timer", fn)

	if tr.interval {
		tt.mu.Lock()
		// Re-arm only if fn (or anyone) did not clear it meanwhile.
		if cur, ok := tt.timers[id]; ok && cur == tr {
			tr.t.Reset(d)
		}
		tt.mu.Unlock()
	}
}

// Clear cancels a timer. Unknown ids are ignored. Safe to call from
// inside the timer's own callback.
func (tt *TimerTracker) Clear(id TimerID) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tr, ok := tt.timers[id]; ok {
		tr.t.Stop()
		delete(tt.timers, id)
	}
}

// Active returns the number of live timers.
func (tt *TimerTracker) Active() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.timers)
}

// Stop cancels every timer.
func (tt *TimerTracker) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	for id, tr := range tt.timers {
		tr.t.Stop()
		delete(tt.timers, id)
	}
}
