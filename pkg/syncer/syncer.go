// Package syncer keeps one client context's in-memory mirror of the
// shared session state converging toward the store, and applies user
// intents to the timer state machine.
//
// Three channels feed the mirror, none individually reliable: store
// change notifications (can race with startup, absent after teardown),
// the panic broadcast bus (eager, best effort), and a periodic
// reconciliation tick that re-derives remaining time and the blocking
// decision from the freshest observable state. The reconciliation
// function is idempotent and order-insensitive; it, not any notification
// path, is the source of displayed truth.
//
// Conflict policy is last writer wins. The one exception is the panic
// tie-break: a locally frozen work segment beats a store read that
// claims plain idle, because the freeze is the newest fact this context
// knows and an idle read may simply be stale.
package syncer

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/attnguard/pkg/blocking"
	"github.com/vanderheijden86/attnguard/pkg/bus"
	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/store"
	"github.com/vanderheijden86/attnguard/pkg/timer"
)

// Default cadences. The countdown is second-granular, so the
// reconciliation tick is too; the presence check runs slower because a
// torn-down panel is rarer than a stale clock readout.
const (
	DefaultTickInterval     = time.Second
	DefaultPresenceInterval = 2 * time.Second
	DefaultInitRetryDelay   = time.Second
)

// Snapshot is the full desired UI state handed to the renderer. The
// renderer diffs internally; the syncer just describes what should be on
// screen now.
type Snapshot struct {
	State     model.TimerState
	Settings  model.UserSettings
	PanicOpen bool
	Phase     model.Phase
	Remaining time.Duration
	Progress  float64
	Decision  blocking.Decision
	Now       time.Time
}

// Renderer is the panel/modal collaborator. Render receives every state
// change including teardown (PanelEnabled false in the snapshot); Alive
// and Recreate serve the self-healing presence check.
type Renderer interface {
	Render(Snapshot)
	Alive() bool
	Recreate()
}

// Syncer is one context's synchronization layer.
type Syncer struct {
	st   store.Store
	b    *bus.Bus
	rend Renderer
	host string
	now  func() time.Time

	tickInterval     time.Duration
	presenceInterval time.Duration
	initRetryDelay   time.Duration

	ctx context.Context

	mu        sync.Mutex
	machine   timer.Machine
	state     model.TimerState
	settings  model.UserSettings
	panicOpen bool

	unsubscribe func()
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithRenderer attaches the panel renderer.
func WithRenderer(r Renderer) Option {
	return func(sy *Syncer) { sy.rend = r }
}

// WithBus attaches the panic broadcast bus.
func WithBus(b *bus.Bus) Option {
	return func(sy *Syncer) { sy.b = b }
}

// WithHost sets the page host this context is attached to; empty
// disables blocking for the context.
func WithHost(host string) Option {
	return func(sy *Syncer) { sy.host = host }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(sy *Syncer) { sy.now = now }
}

// WithTickInterval sets the reconciliation cadence.
func WithTickInterval(d time.Duration) Option {
	return func(sy *Syncer) {
		if d > 0 {
			sy.tickInterval = d
		}
	}
}

// WithPresenceInterval sets the panel presence-check cadence.
func WithPresenceInterval(d time.Duration) Option {
	return func(sy *Syncer) {
		if d > 0 {
			sy.presenceInterval = d
		}
	}
}

// WithInitRetryDelay sets the delay before the single init retry.
func WithInitRetryDelay(d time.Duration) Option {
	return func(sy *Syncer) {
		if d > 0 {
			sy.initRetryDelay = d
		}
	}
}

// New creates a syncer over the given store.
func New(st store.Store, opts ...Option) *Syncer {
	sy := &Syncer{
		st:               st,
		now:              time.Now,
		tickInterval:     DefaultTickInterval,
		presenceInterval: DefaultPresenceInterval,
		initRetryDelay:   DefaultInitRetryDelay,
		ctx:              context.Background(),
		machine:          timer.FromSettings(model.DefaultUserSettings()),
		state:            model.DefaultTimerState(),
		settings:         model.DefaultUserSettings(),
	}
	for _, opt := range opts {
		opt(sy)
	}
	return sy
}

// Run drives the syncer until the context is canceled. The broadcast
// receiver is registered before anything else so an early panic event
// cannot be missed by a context that is otherwise mid-startup.
// Initialization gets exactly one delayed retry; a second failure gives
// up silently and the syncer idles until canceled.
func (sy *Syncer) Run(ctx context.Context) error {
	sy.ctx = ctx

	var busCh <-chan bus.Message
	busCancel := func() {}
	if sy.b != nil {
		busCh, busCancel = sy.b.Subscribe(8)
	}
	defer busCancel()

	if err := sy.init(ctx); err != nil {
		if store.IsClosed(err) {
			debug.Log("syncer: init on invalidated store, giving up")
			return nil
		}
		debug.Log("syncer: init failed, retrying once: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sy.initRetryDelay):
		}
		if err := sy.init(ctx); err != nil {
			debug.Log("syncer: init retry failed, giving up: %v", err)
			return nil
		}
	}
	defer func() {
		if sy.unsubscribe != nil {
			sy.unsubscribe()
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(sy.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sy.reconcile(ctx)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(sy.presenceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				sy.ensurePanel()
			}
		}
	})

	if busCh != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case msg := <-busCh:
					sy.onBroadcast(msg)
				}
			}
		})
	}

	return g.Wait()
}

// init hydrates the mirror, subscribes to store changes, and renders the
// initial state. The probe read distinguishes a live store from a
// torn-down one before the default-substituting hydration runs.
func (sy *Syncer) init(ctx context.Context) error {
	var probe json.RawMessage
	if _, err := sy.st.Get(ctx, store.KeyUserSettings, &probe); err != nil {
		return err
	}

	settings := store.HydrateUserSettings(ctx, sy.st).Normalize()
	state := store.HydrateTimerState(ctx, sy.st)
	panicOpen := store.HydratePanicOpen(ctx, sy.st)

	sy.mu.Lock()
	sy.settings = settings
	sy.state = state
	sy.panicOpen = panicOpen
	sy.machine = timer.FromSettings(settings)
	sy.mu.Unlock()

	if sy.unsubscribe == nil {
		sy.unsubscribe = sy.st.Subscribe(sy.onStoreChange)
	}

	sy.render()
	return nil
}

// AttachRenderer sets the renderer after construction, for the case
// where the renderer needs the syncer as its controller. Call before
// Run.
func (sy *Syncer) AttachRenderer(r Renderer) {
	sy.rend = r
}

// Mirror returns the current mirror as a snapshot; for the renderer's
// first paint and for tests.
func (sy *Syncer) Mirror() Snapshot {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.snapshotLocked(sy.now())
}

func (sy *Syncer) snapshotLocked(now time.Time) Snapshot {
	decision := blocking.Decide(sy.host, sy.settings, sy.state, sy.panicOpen, now)
	return Snapshot{
		State:     sy.state,
		Settings:  sy.settings.Clone(),
		PanicOpen: sy.panicOpen,
		Phase:     sy.state.Phase(sy.panicOpen),
		Remaining: sy.state.Remaining(now),
		Progress:  sy.state.Progress(now),
		Decision:  decision,
		Now:       now,
	}
}

func (sy *Syncer) render() {
	if sy.rend == nil {
		return
	}
	sy.mu.Lock()
	snap := sy.snapshotLocked(sy.now())
	sy.mu.Unlock()
	sy.rend.Render(snap)
}

// persist writes slots, treating an invalidated store as a silent no-op.
func (sy *Syncer) persist(values map[store.Key]any) {
	if err := sy.st.Set(sy.ctx, values); err != nil {
		if store.IsClosed(err) {
			return
		}
		debug.Log("syncer: persist failed: %v", err)
	}
}
