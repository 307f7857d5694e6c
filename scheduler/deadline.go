package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// A DeadlineManager schedules one-shot callbacks against an injectable clock.
type DeadlineManager struct {
	clock clock.Clock
}

// NewDeadlineManager returns a manager using c, or the system clock when c is
// nil.
func NewDeadlineManager(c clock.Clock) *DeadlineManager {
	if c == nil {
		c = clock.New()
	}
	return &DeadlineManager{clock: c}
}

// Now returns the manager's notion of current time.
func (m *DeadlineManager) Now() time.Time {
	return m.clock.Now()
}

// Schedule arranges for onFire to run at most once, no sooner than d from
// now, on an unspecified goroutine. Callers needing serialization must
// resynchronize inside onFire.
func (m *DeadlineManager) Schedule(d time.Duration, onFire func()) *DeadlineHandle {
	h := &DeadlineHandle{}
	h.timer = m.clock.AfterFunc(d, func() {
		h.mu.Lock()
		if h.cancelled {
			h.mu.Unlock()
			return
		}
		h.fired = true
		h.mu.Unlock()
		onFire()
	})
	return h
}

// A DeadlineHandle cancels a scheduled callback.
type DeadlineHandle struct {
	mu        sync.Mutex
	timer     *clock.Timer
	cancelled bool
	fired     bool
}

// Cancel is idempotent. If it completes before the callback has started, the
// callback never runs. If it races the firing, the callback may still run;
// downstream resolution logic must treat the first resolution as the winner.
func (h *DeadlineHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.fired {
		return
	}
	h.cancelled = true
	h.timer.Stop()
}
