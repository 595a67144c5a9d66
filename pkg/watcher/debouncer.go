package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration is the quiescence window used when none is given.
const DefaultDebounceDuration = 200 * time.Millisecond

// Debouncer coalesces bursts of triggers into a single call that runs once
// no trigger arrived for the debounce duration. The callback runs on its
// own goroutine.
type Debouncer struct {
	duration time.Duration

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewDebouncer returns a debouncer. A non-positive duration selects
// DefaultDebounceDuration.
func NewDebouncer(d time.Duration) *Debouncer {
	if d <= 0 {
		d = DefaultDebounceDuration
	}
	return &Debouncer{duration: d}
}

// Duration returns the debounce window.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}

// Trigger (re)starts the window; fn runs when it elapses, replacing any
// callback from earlier triggers.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		stale := seq != d.seq
		d.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Cancel drops a pending callback.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Window is a debouncer driven by the caller's clock instead of timers.
// Schedule moves the deadline; the owner polls Due and performs the
// deferred work itself, so no goroutine ever touches its state.
//
// The zero value is an idle window with no delay.
type Window struct {
	Delay    time.Duration
	deadline time.Time
	pending  bool
}

// NewWindow returns an idle window with the given delay.
func NewWindow(delay time.Duration) *Window {
	return &Window{Delay: delay}
}

// Schedule sets the deadline to now+Delay, superseding an earlier one.
func (w *Window) Schedule(now time.Time) {
	w.deadline = now.Add(w.Delay)
	w.pending = true
}

// Pending reports whether a deadline is set.
func (w *Window) Pending() bool {
	return w.pending
}

// Deadline returns the pending deadline.
func (w *Window) Deadline() (time.Time, bool) {
	return w.deadline, w.pending
}

// Due reports whether the deadline passed and, if so, clears it. Each
// scheduled burst is due exactly once.
func (w *Window) Due(now time.Time) bool {
	if !w.pending || now.Before(w.deadline) {
		return false
	}
	w.pending = false
	return true
}

// Cancel drops the pending deadline.
func (w *Window) Cancel() {
	w.pending = false
	w.deadline = time.Time{}
}
