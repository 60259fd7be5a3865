package syncer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/attnguard/pkg/bus"
	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/store"
	"github.com/vanderheijden86/attnguard/pkg/testutil"
)

// fakeClock is a settable time source shared by a test and its syncer.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: testutil.BaseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeRenderer records snapshots and serves the presence check.
type fakeRenderer struct {
	mu        sync.Mutex
	snaps     []Snapshot
	alive     bool
	recreated int
}

func (r *fakeRenderer) Render(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *fakeRenderer) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alive
}

func (r *fakeRenderer) Recreate() {
	r.mu.Lock()
	r.recreated++
	r.alive = true
	r.mu.Unlock()
}

func (r *fakeRenderer) last(t *testing.T) Snapshot {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		t.Fatal("renderer received no snapshots")
	}
	return r.snaps[len(r.snaps)-1]
}

func openSyncerStore(t *testing.T) *store.FileStore {
	t.Helper()
	st, err := store.OpenFile(filepath.Join(t.TempDir(), "state.json"),
		store.WithDebounce(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestSyncer(t *testing.T, st *store.FileStore, clock *fakeClock, opts ...Option) (*Syncer, *fakeRenderer) {
	t.Helper()
	if err := st.Set(context.Background(), map[store.Key]any{store.KeyUserSettings: testutil.Settings()}); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}
	rend := &fakeRenderer{alive: true}
	all := append([]Option{
		WithClock(clock.Now),
		WithRenderer(rend),
		WithHost("reddit.com"),
	}, opts...)
	sy := New(st, all...)
	if err := sy.init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return sy, rend
}

func TestSyncer_InitHydratesStoredState(t *testing.T) {
	st := openSyncerStore(t)
	ctx := context.Background()

	want := testutil.RunningWork(15 * time.Minute)
	err := st.Set(ctx, map[store.Key]any{
		store.KeyTimerState:     want,
		store.KeyUserSettings:   testutil.Settings(),
		store.KeyPanicModalOpen: false,
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	sy, _ := newTestSyncer(t, st, newFakeClock())
	snap := sy.Mirror()
	testutil.AssertState(t, snap.State, want)
	if len(snap.Settings.BlockedURLs) != 3 {
		t.Errorf("hydrated blocklist = %v", snap.Settings.BlockedURLs)
	}
	if snap.PanicOpen {
		t.Error("panic flag should hydrate closed")
	}
}

func TestSyncer_StartSeedsAndPersists(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	sy, rend := newTestSyncer(t, st, clock)

	sy.Start()

	var stored model.TimerState
	found, err := st.Get(context.Background(), store.KeyTimerState, &stored)
	if err != nil || !found {
		t.Fatalf("Get timer slot = (%v, %v)", found, err)
	}
	if !stored.IsRunning || stored.IsBreak {
		t.Errorf("stored state = %+v, want running work", stored)
	}
	if stored.Duration != 25*time.Minute {
		t.Errorf("Duration = %v, want default session", stored.Duration)
	}
	if stored.CurrentBlock != 1 {
		t.Errorf("CurrentBlock = %d, want 1", stored.CurrentBlock)
	}

	snap := rend.last(t)
	if snap.Phase != model.PhaseWorking {
		t.Errorf("Phase = %s, want %s", snap.Phase, model.PhaseWorking)
	}
}

func TestSyncer_StartWhileRunningKeepsDeadline(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	sy, _ := newTestSyncer(t, st, clock)

	sy.Start()
	started := sy.Mirror().State.StartTime

	clock.Advance(3 * time.Minute)
	sy.Start()

	if got := sy.Mirror().State.StartTime; !got.Equal(started) {
		t.Errorf("second Start restamped StartTime: %v -> %v", started, got)
	}
}

func TestSyncer_IntentsPropagateBetweenContexts(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()

	writer, _ := newTestSyncer(t, st, clock)
	reader, readerRend := newTestSyncer(t, st, clock)

	writer.Start()

	// The shared store notifies the other context's subscription directly.
	snap := reader.Mirror()
	if !snap.State.IsRunning {
		t.Fatal("reader mirror did not adopt the started segment")
	}
	if !snap.Decision.KeepBlocked {
		t.Error("reader on a listed host should block during the segment")
	}
	if got := readerRend.last(t); got.Phase != model.PhaseWorking {
		t.Errorf("reader rendered phase %s, want %s", got.Phase, model.PhaseWorking)
	}

	writer.Reset()
	snap = reader.Mirror()
	if snap.State.IsRunning || snap.Decision.KeepBlocked {
		t.Errorf("reader mirror after reset = %+v", snap.State)
	}
}

func TestSyncer_PanicFreezePropagatesAndResumes(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	b := bus.New()
	defer b.Close()

	writer, _ := newTestSyncer(t, st, clock, WithBus(b))
	reader, _ := newTestSyncer(t, st, clock, WithBus(b))

	writer.Start()
	clock.Advance(200 * time.Second)
	writer.OpenPanic()

	snap := reader.Mirror()
	if !snap.PanicOpen {
		t.Fatal("panic flag did not propagate")
	}
	if snap.State.IsRunning {
		t.Error("frozen segment should not be running")
	}
	if want := 25*time.Minute - 200*time.Second; snap.State.Duration != want {
		t.Errorf("frozen budget = %v, want %v", snap.State.Duration, want)
	}
	if !model.TimeStoppedByPanic(snap.State, snap.PanicOpen) {
		t.Error("reader should classify the state as panic-frozen")
	}
	if !snap.Decision.KeepBlocked {
		t.Error("panic freeze must hold the block")
	}

	// A long modal stay costs nothing: the resume budget is the captured
	// remaining time.
	clock.Advance(30 * time.Minute)
	writer.ClosePanic()

	snap = reader.Mirror()
	if snap.PanicOpen {
		t.Error("panic flag should clear on close")
	}
	if !snap.State.IsRunning {
		t.Fatal("segment should resume on close")
	}
	testutil.AssertRemaining(t, snap.State, clock.Now(), 25*time.Minute-200*time.Second)
}

func TestSyncer_AdoptStateTieBreak(t *testing.T) {
	frozen := testutil.Frozen(400*time.Second, 33.3)

	tests := []struct {
		name      string
		local     model.TimerState
		panicOpen bool
		incoming  model.TimerState
		wantLocal bool
	}{
		{
			name:      "frozen local beats idle read",
			local:     frozen,
			panicOpen: true,
			incoming:  model.TimerState{CurrentBlock: 1},
			wantLocal: true,
		},
		{
			name:      "incoming running state wins",
			local:     frozen,
			panicOpen: true,
			incoming:  testutil.RunningWork(10 * time.Minute),
			wantLocal: false,
		},
		{
			name:      "plain idle local takes incoming",
			local:     model.TimerState{CurrentBlock: 1},
			panicOpen: false,
			incoming:  testutil.RunningWork(10 * time.Minute),
			wantLocal: false,
		},
		{
			name:      "frozen incoming wins while modal open",
			local:     frozen,
			panicOpen: true,
			incoming:  testutil.Frozen(300*time.Second, 50),
			wantLocal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openSyncerStore(t)
			sy, _ := newTestSyncer(t, st, newFakeClock())

			sy.mu.Lock()
			sy.state = tt.local
			sy.panicOpen = tt.panicOpen
			sy.adoptStateLocked(tt.incoming)
			got := sy.state
			sy.mu.Unlock()

			want := tt.incoming
			if tt.wantLocal {
				want = tt.local
			}
			testutil.AssertState(t, got, want)
		})
	}
}

func TestSyncer_ReconcileRepairsMissedWrite(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()

	rend := &fakeRenderer{alive: true}
	sy := New(st, WithClock(clock.Now), WithRenderer(rend), WithHost("reddit.com"))
	// No init: this context never subscribed, so the write below is a
	// notification it missed.

	if err := st.Set(context.Background(), map[store.Key]any{
		store.KeyTimerState: testutil.RunningWork(20 * time.Minute),
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	sy.reconcile(context.Background())

	snap := sy.Mirror()
	if !snap.State.IsRunning {
		t.Fatal("reconcile did not adopt the stored running segment")
	}
	if snap.State.Duration != 20*time.Minute {
		t.Errorf("adopted Duration = %v, want 20m", snap.State.Duration)
	}
}

func TestSyncer_ReconcileAdvancesExpiredSegment(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	sy, _ := newTestSyncer(t, st, clock)

	sy.Start()
	clock.Advance(25*time.Minute + time.Second)
	sy.reconcile(context.Background())

	snap := sy.Mirror()
	if !snap.State.IsBreak || !snap.State.IsRunning {
		t.Fatalf("state after expiry = %+v, want running break", snap.State)
	}
	if snap.State.Duration != 5*time.Minute {
		t.Errorf("break Duration = %v, want 5m", snap.State.Duration)
	}

	// The transition was persisted, so another context sees the break.
	var stored model.TimerState
	found, err := st.Get(context.Background(), store.KeyTimerState, &stored)
	if err != nil || !found {
		t.Fatalf("Get = (%v, %v)", found, err)
	}
	if !stored.IsBreak {
		t.Errorf("stored state = %+v, want break", stored)
	}
}

func TestSyncer_QuitIsOneObservableWrite(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	sy, _ := newTestSyncer(t, st, clock)

	sy.SetPanelEnabled(true)
	sy.Start()
	sy.OpenPanic()

	var sets []store.ChangeSet
	var mu sync.Mutex
	cancel := st.Subscribe(func(changes store.ChangeSet) {
		mu.Lock()
		sets = append(sets, changes)
		mu.Unlock()
	})
	defer cancel()

	sy.Quit()

	mu.Lock()
	defer mu.Unlock()
	if len(sets) != 1 {
		t.Fatalf("quit produced %d writes, want 1", len(sets))
	}
	if len(sets[0]) != 3 {
		t.Errorf("quit write touched %d slots, want 3", len(sets[0]))
	}

	snap := sy.Mirror()
	if snap.Settings.PanelEnabled || snap.State.IsRunning || snap.PanicOpen {
		t.Errorf("post-quit mirror = enabled=%v running=%v panic=%v",
			snap.Settings.PanelEnabled, snap.State.IsRunning, snap.PanicOpen)
	}
	if snap.Decision.KeepBlocked {
		t.Error("quit must release the block")
	}
}

func TestSyncer_SaveSettingsRejectsOversizedWhole(t *testing.T) {
	st := openSyncerStore(t)
	sy, _ := newTestSyncer(t, st, newFakeClock())

	before := sy.Mirror().Settings

	bad := testutil.Settings()
	for i := 0; i < model.MaxBlockedURLs+1; i++ {
		bad.BlockedURLs = append(bad.BlockedURLs, "example.com")
	}
	if err := sy.SaveSettings(bad); err == nil {
		t.Fatal("expected oversized settings to be rejected")
	}

	after := sy.Mirror().Settings
	if len(after.BlockedURLs) != len(before.BlockedURLs) {
		t.Errorf("rejected save mutated the mirror: %d -> %d entries",
			len(before.BlockedURLs), len(after.BlockedURLs))
	}

	var stored model.UserSettings
	if found, _ := st.Get(context.Background(), store.KeyUserSettings, &stored); found {
		if len(stored.BlockedURLs) > model.MaxBlockedURLs {
			t.Error("rejected save reached the store")
		}
	}
}

func TestSyncer_SaveSettingsRebuildsMachine(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()
	sy, _ := newTestSyncer(t, st, clock)

	updated := testutil.Settings()
	updated.SessionMinutes = 50
	if err := sy.SaveSettings(updated); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	sy.Start()
	if got := sy.Mirror().State.Duration; got != 50*time.Minute {
		t.Errorf("segment seeded with %v, want 50m", got)
	}
}

func TestSyncer_BroadcastRecreatesDeadPanel(t *testing.T) {
	st := openSyncerStore(t)
	sy, rend := newTestSyncer(t, st, newFakeClock())
	sy.SetPanelEnabled(true)

	rend.mu.Lock()
	rend.alive = false
	rend.mu.Unlock()

	sy.onBroadcast(bus.SyncPanicModal(true))

	rend.mu.Lock()
	recreated := rend.recreated
	rend.mu.Unlock()
	if recreated != 1 {
		t.Errorf("recreate count = %d, want 1", recreated)
	}
	if !sy.Mirror().PanicOpen {
		t.Error("broadcast should open the modal in the mirror")
	}
}

func TestSyncer_OnVisibleRefreshesMirror(t *testing.T) {
	st := openSyncerStore(t)
	clock := newFakeClock()

	rend := &fakeRenderer{alive: true}
	sy := New(st, WithClock(clock.Now), WithRenderer(rend))

	err := st.Set(context.Background(), map[store.Key]any{
		store.KeyTimerState:     testutil.RunningWork(10 * time.Minute),
		store.KeyPanicModalOpen: true,
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	sy.OnVisible(context.Background())

	snap := sy.Mirror()
	if !snap.State.IsRunning || !snap.PanicOpen {
		t.Errorf("OnVisible mirror = running=%v panic=%v, want both true",
			snap.State.IsRunning, snap.PanicOpen)
	}
}

func TestSyncer_IntentsOnClosedStoreAreSilent(t *testing.T) {
	st := openSyncerStore(t)
	sy, rend := newTestSyncer(t, st, newFakeClock())
	st.Close()

	// The mirror keeps working; the persists become no-ops.
	sy.Start()
	sy.OpenPanic()
	sy.ClosePanic()
	sy.Quit()

	if snap := rend.last(t); snap.State.IsRunning {
		t.Errorf("mirror after quit = %+v, want idle", snap.State)
	}
}

func TestSyncer_RunGivesUpOnClosedStore(t *testing.T) {
	st := openSyncerStore(t)
	st.Close()

	sy := New(st, WithClock(newFakeClock().Now))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A torn-down store is not an error condition; Run returns nil
	// without waiting out the context.
	if err := sy.Run(ctx); err != nil {
		t.Errorf("Run on closed store = %v, want nil", err)
	}
	if ctx.Err() != nil {
		t.Error("Run should have returned before the context deadline")
	}
}
