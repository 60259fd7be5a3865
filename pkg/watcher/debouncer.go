package watcher

import (
	"sync"
	"time"
)

// DefaultDebounceDuration coalesces the burst of filesystem events an
// atomic write produces (create + rename) into one notification.
const DefaultDebounceDuration = 50 * time.Millisecond

// Debouncer delays a callback until triggers stop arriving for the
// configured duration. Rapid repeated triggers collapse into one call.
type Debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	timer    *time.Timer
}

// NewDebouncer creates a debouncer; a non-positive duration falls back to
// the default.
func NewDebouncer(d time.Duration) *Debouncer {
	if d <= 0 {
		d = DefaultDebounceDuration
	}
	return &Debouncer{duration: d}
}

// Trigger schedules fn after the debounce window, resetting the window if
// a trigger is already pending. The most recent fn wins.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending trigger.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Duration returns the configured debounce window.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}
