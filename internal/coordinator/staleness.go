package coordinator

import (
	"sync"
	"time"
)

// StalenessTimer is a restartable single-shot timer.
//
// Each Reset discards any pending expiry and arms a new one. Stop disarms the
// timer for good and waits for an expiry callback that is already running.
type StalenessTimer struct {
	window   time.Duration
	onExpire func()

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	armed      bool
	stopped    bool
	inflight   sync.WaitGroup
}

// NewStalenessTimer creates a disarmed timer that calls onExpire when window
// passes without a Reset.
func NewStalenessTimer(window time.Duration, onExpire func()) *StalenessTimer {
	return &StalenessTimer{
		window:   window,
		onExpire: onExpire,
	}
}

// Reset (re)arms the timer for a full window.
func (t *StalenessTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}

	t.generation++
	gen := t.generation
	t.armed = true
	t.timer = time.AfterFunc(t.window, func() { t.fire(gen) })
}

func (t *StalenessTimer) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.generation {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.inflight.Add(1)
	t.mu.Unlock()

	defer t.inflight.Done()
	t.onExpire()
}

// Armed reports whether an expiry is pending.
func (t *StalenessTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Window returns the configured quiescence period.
func (t *StalenessTimer) Window() time.Duration {
	return t.window
}

// Stop disarms the timer permanently. After Stop returns onExpire is not
// running and will not be called again.
func (t *StalenessTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.armed = false
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	t.inflight.Wait()
}
