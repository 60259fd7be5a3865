// Package testutil provides fixtures and assertions for timer and
// blocking tests. Generators are deterministic for reproducible tests.
package testutil

import (
	"math/rand"
	"time"

	"github.com/vanderheijden86/attnguard/pkg/model"
)

// TB is the slice of testing.T the assertions need. Both *testing.T and
// *rapid.T satisfy it, so the assertions work inside property checks.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
}

// BaseTime is the fixed reference instant fixtures are built around.
var BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Settings returns default settings with a known blocklist and the
// panel enabled.
func Settings() model.UserSettings {
	s := model.DefaultUserSettings()
	s.PanelEnabled = true
	s.BlockedURLs = []string{"reddit.com", "news.ycombinator.com", "x.com"}
	return s
}

// RunningWork returns a work segment started at BaseTime with the given
// total budget.
func RunningWork(d time.Duration) model.TimerState {
	return model.TimerState{
		IsRunning:    true,
		StartTime:    BaseTime,
		Duration:     d,
		CurrentBlock: 1,
	}
}

// RunningBreak returns a break segment started at BaseTime.
func RunningBreak(d time.Duration, block int) model.TimerState {
	return model.TimerState{
		IsRunning:    true,
		StartTime:    BaseTime,
		Duration:     d,
		IsBreak:      true,
		CurrentBlock: block,
	}
}

// Frozen returns a panic-frozen work segment with the given captured
// remaining budget.
func Frozen(remaining time.Duration, progress float64) model.TimerState {
	return model.TimerState{
		Duration:             remaining,
		CurrentBlock:         1,
		ProgressStartPercent: progress,
	}
}

// Generator produces randomized but reproducible timer states.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a deterministic generator.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = 42
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// State returns a random valid timer state.
func (g *Generator) State() model.TimerState {
	st := model.TimerState{
		CurrentBlock: 1 + g.rng.Intn(4),
	}
	switch g.rng.Intn(3) {
	case 0: // ready
	case 1: // running work
		st.IsRunning = true
		st.StartTime = BaseTime.Add(-time.Duration(g.rng.Intn(600)) * time.Second)
		st.Duration = time.Duration(5+g.rng.Intn(55)) * time.Minute
	case 2: // running break
		st.IsRunning = true
		st.IsBreak = true
		st.StartTime = BaseTime.Add(-time.Duration(g.rng.Intn(120)) * time.Second)
		st.Duration = time.Duration(1+g.rng.Intn(14)) * time.Minute
	}
	return st
}

// AssertState compares two timer states field by field.
func AssertState(t TB, got, want model.TimerState) {
	t.Helper()
	if got.IsRunning != want.IsRunning {
		t.Errorf("IsRunning = %v, want %v", got.IsRunning, want.IsRunning)
	}
	if !got.StartTime.Equal(want.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, want.StartTime)
	}
	if got.Duration != want.Duration {
		t.Errorf("Duration = %v, want %v", got.Duration, want.Duration)
	}
	if got.IsBreak != want.IsBreak {
		t.Errorf("IsBreak = %v, want %v", got.IsBreak, want.IsBreak)
	}
	if got.CurrentBlock != want.CurrentBlock {
		t.Errorf("CurrentBlock = %d, want %d", got.CurrentBlock, want.CurrentBlock)
	}
	if got.ProgressStartPercent != want.ProgressStartPercent {
		t.Errorf("ProgressStartPercent = %v, want %v", got.ProgressStartPercent, want.ProgressStartPercent)
	}
}

// AssertRemaining checks the remaining budget within a tolerance.
func AssertRemaining(t TB, st model.TimerState, now time.Time, want time.Duration) {
	t.Helper()
	got := st.Remaining(now)
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Second {
		t.Errorf("Remaining = %v, want %v", got, want)
	}
}
