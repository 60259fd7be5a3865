package syncer

import (
	"github.com/vanderheijden86/attnguard/pkg/bus"
	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/store"
	"github.com/vanderheijden86/attnguard/pkg/timer"
)

// Start begins or resumes the work segment. Starting an already running
// timer is a no-op so a double keypress cannot restamp the deadline.
func (sy *Syncer) Start() {
	sy.mu.Lock()
	if sy.state.IsRunning {
		sy.mu.Unlock()
		return
	}
	sy.state = sy.machine.Start(sy.state, sy.now())
	state := sy.state
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyTimerState: state})
	sy.render()
}

// Reset returns the timer to ready at block one. Safe to call in any
// phase, any number of times.
func (sy *Syncer) Reset() {
	sy.mu.Lock()
	sy.state = sy.machine.Reset()
	state := sy.state
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyTimerState: state})
	sy.render()
}

// OpenPanic opens the panic modal everywhere. When a work segment is
// running its remaining budget and progress are captured and the clock
// freezes; if the segment expired in the same instant, expiry wins and
// only the modal flag propagates.
func (sy *Syncer) OpenPanic() {
	now := sy.now()

	sy.mu.Lock()
	frozen, froze := sy.machine.PanicOpen(sy.state, now)
	sy.state = frozen
	sy.panicOpen = true
	state := sy.state
	sy.mu.Unlock()

	values := map[store.Key]any{store.KeyPanicModalOpen: true}
	if froze {
		values[store.KeyTimerState] = state
	}
	sy.persist(values)
	sy.publish(bus.SyncPanicModal(true))
	sy.render()
}

// ClosePanic dismisses the panic modal everywhere. A frozen work
// segment resumes with its captured remaining budget; the pause is
// lossless.
func (sy *Syncer) ClosePanic() {
	now := sy.now()

	sy.mu.Lock()
	resumed, ok := sy.machine.PanicClose(sy.state, sy.panicOpen, now)
	sy.panicOpen = false
	if ok {
		sy.state = resumed
	}
	state := sy.state
	sy.mu.Unlock()

	values := map[store.Key]any{store.KeyPanicModalOpen: false}
	if ok {
		values[store.KeyTimerState] = state
	}
	sy.persist(values)
	sy.publish(bus.SyncPanicModal(false))
	sy.render()
}

// Quit disables the panel, stops the timer, and dismisses the panic
// modal, all in one write so no context can observe a half-quit state.
func (sy *Syncer) Quit() {
	sy.mu.Lock()
	sy.state = sy.machine.Quit()
	sy.settings.PanelEnabled = false
	sy.panicOpen = false
	state := sy.state
	settings := sy.settings.Clone()
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{
		store.KeyUserSettings:   settings,
		store.KeyTimerState:     state,
		store.KeyPanicModalOpen: false,
	})
	sy.publish(bus.SyncPanicModal(false))
	sy.render()
}

// SaveSettings validates, persists, and adopts new user settings.
// Oversized panic content or settings are rejected whole; the stored
// and mirrored settings stay untouched and the error is returned for
// the UI to surface.
func (sy *Syncer) SaveSettings(updated model.UserSettings) error {
	normalized := updated.Normalize()
	if err := normalized.Validate(); err != nil {
		return err
	}

	sy.mu.Lock()
	sy.settings = normalized
	sy.machine = timer.FromSettings(normalized)
	settings := sy.settings.Clone()
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyUserSettings: settings})
	sy.render()
	return nil
}

// SetPanelEnabled flips the panel on or off for every context.
func (sy *Syncer) SetPanelEnabled(enabled bool) {
	sy.mu.Lock()
	sy.settings.PanelEnabled = enabled
	settings := sy.settings.Clone()
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyUserSettings: settings})
	sy.render()
}

// SetPanelPosition persists a new panel corner.
func (sy *Syncer) SetPanelPosition(pos model.PanelPosition) {
	sy.mu.Lock()
	sy.settings.PanelPosition = pos
	settings := sy.settings.Clone()
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyUserSettings: settings})
	sy.render()
}

// SetPanelMinimized persists the collapsed/expanded panel state.
func (sy *Syncer) SetPanelMinimized(minimized bool) {
	sy.mu.Lock()
	sy.settings.PanelMinimized = minimized
	settings := sy.settings.Clone()
	sy.mu.Unlock()

	sy.persist(map[store.Key]any{store.KeyUserSettings: settings})
	sy.render()
}

func (sy *Syncer) publish(msg bus.Message) {
	if sy.b != nil {
		sy.b.Publish(msg)
	}
}
