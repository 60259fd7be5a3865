package blocking

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/testutil"
	"github.com/vanderheijden86/attnguard/pkg/timer"
)

func TestDecide_WorkBlocksListedHost(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.RunningWork(25 * time.Minute)
	now := testutil.BaseTime.Add(time.Minute)

	d := Decide("reddit.com", settings, state, false, now)
	if !d.KeepBlocked {
		t.Error("listed host must be blocked during a work segment")
	}
	if !d.URLMatches || d.IsBreak || d.IsQuit {
		t.Errorf("unexpected decision inputs: %+v", d)
	}
	if !d.WorkSessionActive {
		t.Error("work segment should report active")
	}
}

func TestDecide_SubdomainBlocked(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.RunningWork(25 * time.Minute)

	d := Decide("old.reddit.com", settings, state, false, testutil.BaseTime)
	if !d.KeepBlocked {
		t.Error("subdomain of a listed host must be blocked")
	}
}

func TestDecide_UnlistedHostNeverBlocked(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.RunningWork(25 * time.Minute)

	d := Decide("example.org", settings, state, false, testutil.BaseTime)
	if d.KeepBlocked {
		t.Error("unlisted host must not be blocked")
	}
}

func TestDecide_BreakUnblocks(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.RunningBreak(5*time.Minute, 1)

	d := Decide("reddit.com", settings, state, false, testutil.BaseTime)
	if d.KeepBlocked {
		t.Error("breaks must unblock")
	}
	if !d.IsBreak {
		t.Error("IsBreak input should be set")
	}
}

func TestDecide_IdleUnblocks(t *testing.T) {
	settings := testutil.Settings()
	state := model.DefaultTimerState()

	d := Decide("reddit.com", settings, state, false, testutil.BaseTime)
	if d.KeepBlocked {
		t.Error("idle timer must not block")
	}
	if !d.IsQuit {
		t.Error("idle state should report quit")
	}
}

func TestDecide_PanicFreezeHoldsBlock(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.Frozen(400*time.Second, 33)

	d := Decide("reddit.com", settings, state, true, testutil.BaseTime)
	if !d.KeepBlocked {
		t.Error("panic freeze must hold the block open")
	}
	if !d.TimeStoppedByPanic {
		t.Error("freeze predicate should be set")
	}
	if d.IsQuit {
		t.Error("frozen state is not quit")
	}
	if !d.WorkSessionActive {
		t.Error("frozen work segment should report active")
	}
}

func TestDecide_DisabledPanelNeverBlocks(t *testing.T) {
	settings := testutil.Settings()
	settings.PanelEnabled = false
	state := testutil.RunningWork(25 * time.Minute)

	d := Decide("reddit.com", settings, state, false, testutil.BaseTime)
	if d.KeepBlocked || d.URLMatches {
		t.Errorf("disabled panel must not block: %+v", d)
	}
}

func TestDecideURL_SchemeEligibility(t *testing.T) {
	settings := testutil.Settings()
	state := testutil.RunningWork(25 * time.Minute)

	if d := DecideURL("https://reddit.com/r/all", settings, state, false, testutil.BaseTime); !d.KeepBlocked {
		t.Error("https page on listed host must be blocked")
	}
	if d := DecideURL("ftp://reddit.com", settings, state, false, testutil.BaseTime); d.KeepBlocked {
		t.Error("non-http scheme must never be blocked")
	}
	if d := DecideURL("https://reddit.com", settings, state, false, testutil.BaseTime); d.Host != "reddit.com" {
		t.Errorf("Host = %q, expected parsed hostname", d.Host)
	}
}

// TestDecide_MonotonicOverWorkBlock drives a work segment through panic
// freeze and resume and asserts the block never drops until the segment
// actually ends.
func TestDecide_MonotonicOverWorkBlock(t *testing.T) {
	settings := testutil.Settings()
	m := timer.FromSettings(settings)
	now := testutil.BaseTime

	state := m.Start(model.DefaultTimerState(), now)
	check := func(label string, panicOpen bool, want bool) {
		t.Helper()
		d := Decide("reddit.com", settings, state, panicOpen, now)
		if d.KeepBlocked != want {
			t.Errorf("%s: KeepBlocked = %v, expected %v", label, d.KeepBlocked, want)
		}
	}

	check("running work", false, true)

	now = now.Add(5 * time.Minute)
	state, _ = m.PanicOpen(state, now)
	check("panic frozen", true, true)

	state, _ = m.PanicClose(state, true, now.Add(10*time.Minute))
	now = now.Add(10 * time.Minute)
	check("resumed", false, true)

	now = now.Add(state.Duration)
	state, tr := m.Advance(state, now)
	if tr != timer.TransitionToBreak {
		t.Fatalf("expected break transition, got %v", tr)
	}
	check("break", false, false)
}

// Property: the panic flag alone can never unblock a page, and quit
// always unblocks everything.
func TestDecide_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		settings := testutil.Settings()
		gen := testutil.NewGenerator(rapid.Int64Range(1, 1<<32).Draw(t, "seed"))
		state := gen.State()
		panicOpen := rapid.Bool().Draw(t, "panicOpen")
		host := rapid.SampledFrom([]string{"reddit.com", "old.reddit.com", "example.org", ""}).Draw(t, "host")
		now := testutil.BaseTime

		open := Decide(host, settings, state, panicOpen, now)
		closed := Decide(host, settings, state, false, now)

		// Raising the panic flag may freeze but never unblocks.
		if closed.KeepBlocked && state.IsRunning && !open.KeepBlocked {
			t.Fatalf("panic flag unblocked a running segment: %+v", state)
		}

		// Quit unblocks unconditionally.
		quit := Decide(host, settings, timer.FromSettings(settings).Quit(), false, now)
		if quit.KeepBlocked {
			t.Fatalf("quit state still blocked host %q", host)
		}

		// A blocked verdict requires a matching host.
		if open.KeepBlocked && !open.URLMatches {
			t.Fatal("blocked without a blocklist match")
		}
	})
}
