package platform

import (
	"sync"
	"time"
)

// RearmTimer is a cancelable, one-shot timer that can be rearmed for the
// next period. It stands in for the ctimer/etimer callbacks the original
// coroutine-based implementation used to suspend itself at a wait point;
// each Rearm call represents one more "WAIT_ONE_PERIOD" in the original
// thread, now driven explicitly instead of by a cooperative scheduler.
type RearmTimer struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel chan struct{}
}

// NewRearmTimer creates a timer with nothing scheduled. Call Rearm to start
// the first period.
func NewRearmTimer() *RearmTimer {
	return &RearmTimer{}
}

// Rearm cancels any pending fire and schedules fn to run after d on its own
// goroutine. Calling Rearm again before fn has fired cancels the previous
// schedule, so only the most recent Rearm ever fires.
func (t *RearmTimer) Rearm(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.cancel != nil {
		close(t.cancel)
	}
	cancel := make(chan struct{})
	t.cancel = cancel
	t.timer = time.AfterFunc(d, func() {
		select {
		case <-cancel:
			return
		default:
			fn()
		}
	})
}

// Stop cancels any pending fire and prevents it from running even if it was
// already scheduled to pop.
func (t *RearmTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
