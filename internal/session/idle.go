package session

import (
	"sync"
	"time"
)

// IdleTimer calls onIdle once no activity has been seen for timeout.
type IdleTimer struct {
	timeout time.Duration
	onIdle  func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewIdleTimer(timeout time.Duration, onIdle func()) *IdleTimer {
	if timeout <= 0 {
		timeout = 60 * time.Minute
	}
	return &IdleTimer{timeout: timeout, onIdle: onIdle}
}

// Touch records activity and re-arms the timer.
func (t *IdleTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.arm()
}

// arm requires t.mu.
func (t *IdleTimer) arm() {
	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}

	// A callback from an earlier arming may already be running; it only
	// fires if no Touch happened since.
	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.timeout, func() {
		t.mu.Lock()
		fire := !t.stopped && gen == t.gen
		if fire {
			t.timer = nil
		}
		callback := t.onIdle
		t.mu.Unlock()

		if fire && callback != nil {
			callback()
		}
	})
}

// Stop cancels the timer permanently.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
