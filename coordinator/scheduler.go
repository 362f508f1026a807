package coordinator

import (
	"time"
)

// Scheduler runs functions after a delay.
type Scheduler interface {
	// Schedule runs fn after the given duration in its own goroutine. The
	// returned function cancels the scheduled run if it did not start yet.
	Schedule(d time.Duration, fn func()) (cancel func())
}

// timeScheduler is a Scheduler using time.AfterFunc.
type timeScheduler struct{}

func (timeScheduler) Schedule(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() {
		timer.Stop()
	}
}

// scheduleFlipBack schedules resolving the pending mismatch of the room after
// the difficulty's flip delay. The handle must be locked.
func (c *Coordinator) scheduleFlipBack(h *roomHandle) {
	c.cancelFlipBack(h)
	generation := h.flipBackGeneration
	h.cancelFlipBack = c.config.Scheduler.Schedule(h.room.Difficulty.FlipDelay(), func() {
		c.onFlipBack(h, generation)
	})
}

// cancelFlipBack cancels any pending flip-back and makes already running
// callbacks stale. The handle must be locked.
func (c *Coordinator) cancelFlipBack(h *roomHandle) {
	if h.cancelFlipBack != nil {
		h.cancelFlipBack()
		h.cancelFlipBack = nil
	}
	h.flipBackGeneration++
}

// onFlipBack is called by the Scheduler.
func (c *Coordinator) onFlipBack(h *roomHandle, generation uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed || generation != h.flipBackGeneration {
		return
	}
	h.cancelFlipBack = nil
	h.flipBackGeneration++
	c.resolveMismatch(h)
}
