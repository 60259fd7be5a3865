package syncer

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/attnguard/pkg/bus"
	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/metrics"
	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/store"
	"github.com/vanderheijden86/attnguard/pkg/timer"
)

// onStoreChange applies a batch of store changes to the mirror. Decode
// failures drop the individual change; the next reconciliation tick
// repairs whatever was missed.
func (sy *Syncer) onStoreChange(changes store.ChangeSet) {
	sy.mu.Lock()
	for key, change := range changes {
		switch key {
		case store.KeyUserSettings:
			var settings model.UserSettings
			if err := json.Unmarshal(change.New, &settings); err != nil {
				debug.Log("syncer: bad settings change: %v", err)
				continue
			}
			sy.settings = settings.Normalize()
			sy.machine = timer.FromSettings(sy.settings)
		case store.KeyTimerState:
			var state model.TimerState
			if err := json.Unmarshal(change.New, &state); err != nil {
				debug.Log("syncer: bad timer change: %v", err)
				continue
			}
			sy.adoptStateLocked(state)
		case store.KeyPanicModalOpen:
			var open bool
			if err := json.Unmarshal(change.New, &open); err != nil {
				debug.Log("syncer: bad panic flag change: %v", err)
				continue
			}
			sy.panicOpen = open
		}
	}
	sy.mu.Unlock()

	sy.render()
}

// onBroadcast handles a panic modal event from the bus. The bus is
// eager delivery of the same fact the store carries, so the flag is
// adopted directly; a context whose panel is gone gets it recreated so
// the modal has somewhere to appear.
func (sy *Syncer) onBroadcast(msg bus.Message) {
	if msg.Type != bus.TypeSyncPanicModal {
		return
	}

	sy.mu.Lock()
	sy.panicOpen = msg.Open
	panelWanted := sy.settings.PanelEnabled
	sy.mu.Unlock()

	if msg.Open && panelWanted && sy.rend != nil && !sy.rend.Alive() {
		sy.rend.Recreate()
	}
	sy.render()
}

// adoptStateLocked merges an incoming timer state into the mirror under
// last-writer-wins, with the panic tie-break: when this context holds a
// panic-frozen segment and the incoming state merely says idle, the
// frozen copy survives. Any incoming running state, or a frozen state
// with budget while the modal is open, is strictly fresher and wins.
func (sy *Syncer) adoptStateLocked(incoming model.TimerState) {
	frozen := model.TimeStoppedByPanic(sy.state, sy.panicOpen)
	incomingIdle := !incoming.IsRunning && (incoming.Duration == 0 || !sy.panicOpen)
	if frozen && incomingIdle {
		return
	}
	sy.state = incoming
}

// reconcile is the ~1 Hz repair pass: re-read the authoritative timer
// state, merge it, advance past any expired deadline, and re-render.
// Every displayed value is derived fresh here, so a missed notification
// costs at most one tick of staleness.
func (sy *Syncer) reconcile(ctx context.Context) {
	defer metrics.Timer(metrics.Reconcile)()
	now := sy.now()

	incoming, fetched := sy.fetchTimerState(ctx)

	sy.mu.Lock()
	if fetched {
		sy.adoptStateLocked(incoming)
	}
	advanced, transition := sy.machine.Advance(sy.state, now)
	if transition != timer.TransitionNone {
		sy.state = advanced
	}
	state := sy.state
	sy.mu.Unlock()

	if transition != timer.TransitionNone {
		debug.Log("syncer: segment expired: %s", transition)
		sy.persist(map[store.Key]any{store.KeyTimerState: state})
	}
	sy.render()
}

// fetchTimerState reads the timer slot directly, falling back to the
// current mirror on absence or failure rather than a default, so a
// transient store hiccup cannot reset a running clock.
func (sy *Syncer) fetchTimerState(ctx context.Context) (model.TimerState, bool) {
	ctx, cancel := context.WithTimeout(ctx, store.TimerReadTimeout)
	defer cancel()

	var state model.TimerState
	found, err := sy.st.Get(ctx, store.KeyTimerState, &state)
	if err != nil {
		if !store.IsClosed(err) {
			debug.Log("syncer: timer fetch failed: %v", err)
		}
		return model.TimerState{}, false
	}
	if !found {
		return model.TimerState{}, false
	}
	return state, true
}

// ensurePanel recreates a wanted-but-missing panel renderer.
func (sy *Syncer) ensurePanel() {
	if sy.rend == nil {
		return
	}

	sy.mu.Lock()
	wanted := sy.settings.PanelEnabled
	sy.mu.Unlock()

	if wanted && !sy.rend.Alive() {
		debug.Log("syncer: panel missing, recreating")
		sy.rend.Recreate()
		sy.render()
	}
}

// Refresh is the focus-regained entry point for the renderer, which has
// no context of its own.
func (sy *Syncer) Refresh() {
	sy.OnVisible(sy.ctx)
}

// OnVisible re-fetches timer state and the panic flag when this context
// regains the foreground, covering notifications missed while hidden.
func (sy *Syncer) OnVisible(ctx context.Context) {
	if incoming, ok := sy.fetchTimerState(ctx); ok {
		sy.mu.Lock()
		sy.adoptStateLocked(incoming)
		sy.mu.Unlock()
	}

	flagCtx, cancel := context.WithTimeout(ctx, store.FlagReadTimeout)
	var open bool
	found, err := sy.st.Get(flagCtx, store.KeyPanicModalOpen, &open)
	cancel()
	if err == nil && found {
		sy.mu.Lock()
		sy.panicOpen = open
		sy.mu.Unlock()
	}

	sy.render()
}
