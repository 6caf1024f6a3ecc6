package transport

import (
	"sync"
	"time"
)

type watchPhase int

const (
	watchIdle watchPhase = iota
	// watchPing: waiting out the idle interval before sending a probe.
	watchPing
	// watchTimeout: probe sent, waiting for any inbound traffic.
	watchTimeout
)

// watchdog detects a silently dead link by probing it after an idle period.
// Any inbound traffic resets the idle timer; a probe that goes unanswered
// for a full interval escalates through expire.
type watchdog struct {
	interval time.Duration
	send     func()
	expire   func()

	mu      sync.Mutex
	started bool
	phase   watchPhase
	gen     uint64
	timer   *time.Timer
}

func newWatchdog(interval time.Duration, send, expire func()) *watchdog {
	return &watchdog{
		interval: interval,
		send:     send,
		expire:   expire,
	}
}

// start arms the idle timer. No-op if already started.
func (w *watchdog) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.armLocked(watchPing)
}

// stop cancels all pending timers.
func (w *watchdog) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.disarmLocked()
}

// reset restarts the idle timer. Called on any inbound traffic.
func (w *watchdog) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
	if w.started {
		w.armLocked(watchPing)
	}
}

func (w *watchdog) armLocked(phase watchPhase) {
	w.gen++
	w.phase = phase
	gen := w.gen
	w.timer = time.AfterFunc(w.interval, func() { w.fire(gen) })
}

func (w *watchdog) disarmLocked() {
	w.gen++
	w.phase = watchIdle
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *watchdog) fire(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || !w.started {
		// Stale timer, a reset or stop got there first.
		w.mu.Unlock()
		return
	}
	phase := w.phase
	if phase == watchPing {
		w.armLocked(watchTimeout)
	} else {
		w.phase = watchIdle
		w.timer = nil
	}
	w.mu.Unlock()

	// Call out without holding the lock; both callbacks reenter the client.
	switch phase {
	case watchPing:
		w.send()
	case watchTimeout:
		w.expire()
	}
}
