// Package blocking derives the keep-blocked decision for a page from the
// blocklist membership test, the timer phase, and the panic flag.
//
// The central guarantee is monotonicity over a work block: once a page is
// blocked it stays blocked through a panic freeze, and unblocks only when
// a break starts or the session is quit or reset.
package blocking

import (
	"net/url"
	"time"

	"github.com/vanderheijden86/attnguard/pkg/blocklist"
	"github.com/vanderheijden86/attnguard/pkg/model"
)

// Decision is the derived blocking verdict plus the inputs it was derived
// from, so a renderer can explain itself (overlay status line) without
// re-deriving anything.
type Decision struct {
	// Host is the page host the decision was made for.
	Host string
	// URLMatches is the raw blocklist membership of the page host.
	URLMatches bool
	// IsBreak mirrors the timer phase input.
	IsBreak bool
	// TimeStoppedByPanic is the derived panic-freeze predicate.
	TimeStoppedByPanic bool
	// IsQuit means truly idle: not running and not panic-frozen.
	IsQuit bool
	// KeepBlocked is the verdict: hide the page behind the overlay.
	KeepBlocked bool
	// WorkSessionActive drives the overlay status line: a work segment is
	// counting down or panic-frozen.
	WorkSessionActive bool
	// Remaining is the segment budget left at decision time.
	Remaining time.Duration
}

// Decide computes the blocking decision for a page host.
//
// A disabled panel never blocks. Otherwise:
//
//	keepBlocked = urlMatches && !isBreak && !isQuit
//
// where isQuit is false while the timer is panic-frozen, which is exactly
// what holds a block open through a panic pause.
func Decide(host string, settings model.UserSettings, state model.TimerState, panicOpen bool, now time.Time) Decision {
	d := Decision{
		Host:               host,
		IsBreak:            state.IsBreak,
		TimeStoppedByPanic: model.TimeStoppedByPanic(state, panicOpen),
		Remaining:          state.Remaining(now),
	}
	d.IsQuit = !state.IsRunning && !d.TimeStoppedByPanic
	d.WorkSessionActive = (state.IsRunning || d.TimeStoppedByPanic) && !state.IsBreak
	if !settings.PanelEnabled {
		return d
	}
	d.URLMatches = blocklist.HostMatches(host, settings.BlockedURLs)
	d.KeepBlocked = d.URLMatches && !d.IsBreak && !d.IsQuit
	return d
}

// DecideURL is Decide with the http/https eligibility check applied to a
// full page URL instead of a bare host.
func DecideURL(rawURL string, settings model.UserSettings, state model.TimerState, panicOpen bool, now time.Time) Decision {
	d := Decide("", settings, state, panicOpen, now)
	if u, err := url.Parse(rawURL); err == nil {
		d.Host = u.Hostname()
	}
	if !settings.PanelEnabled {
		return d
	}
	d.URLMatches = blocklist.URLMatches(rawURL, settings.BlockedURLs)
	d.KeepBlocked = d.URLMatches && !d.IsBreak && !d.IsQuit
	return d
}
