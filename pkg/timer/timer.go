// Package timer implements the session state machine: the work/break
// Pomodoro progression and the panic freeze. Transitions are pure
// functions over a model.TimerState value with the current time passed
// in, so they can be exercised deterministically in tests; persistence
// and fan-out belong to the caller (pkg/syncer).
package timer

import (
	"time"

	"github.com/vanderheijden86/attnguard/pkg/model"
)

// Transition identifies what Advance did to the state.
type Transition int

const (
	// TransitionNone means the segment is still counting down.
	TransitionNone Transition = iota
	// TransitionToBreak means a work segment expired into its break.
	TransitionToBreak
	// TransitionNextBlock means a break expired into the next work block.
	TransitionNextBlock
	// TransitionCycleDone means the final break expired and the cycle
	// returned to READY.
	TransitionCycleDone
)

func (t Transition) String() string {
	switch t {
	case TransitionToBreak:
		return "to-break"
	case TransitionNextBlock:
		return "next-block"
	case TransitionCycleDone:
		return "cycle-done"
	default:
		return "none"
	}
}

// Machine carries the segment lengths and block count from UserSettings.
// It holds no mutable state of its own.
type Machine struct {
	Session time.Duration
	Break   time.Duration
	Blocks  int
}

// FromSettings builds a Machine from the persisted settings.
func FromSettings(s model.UserSettings) Machine {
	m := Machine{
		Session: s.Session(),
		Break:   s.Break(),
		Blocks:  s.PomodoroBlocks,
	}
	if m.Session <= 0 {
		m.Session = 25 * time.Minute
	}
	if m.Break <= 0 {
		m.Break = 5 * time.Minute
	}
	if m.Blocks < 1 {
		m.Blocks = 4
	}
	return m
}

// Start begins or resumes the countdown. A fresh READY state is seeded
// with a full work segment at block 1; a state that still holds budget
// (a resume after a panic freeze) keeps its remaining duration and its
// progress carry-over. Starting an already-running state is a no-op.
func (m Machine) Start(s model.TimerState, now time.Time) model.TimerState {
	if s.IsRunning {
		return s
	}
	if s.Duration == 0 {
		s.Duration = m.Session
		s.IsBreak = false
		s.CurrentBlock = 1
		s.ProgressStartPercent = 0
	}
	s.IsRunning = true
	s.StartTime = now
	return s
}

// Advance is the per-tick check: when the running segment has no time
// left it applies the segment-expiry transition, otherwise it returns
// the state unchanged. Idempotent and safe to call from any producer
// (local ticker, reconciliation, visibility refresh).
func (m Machine) Advance(s model.TimerState, now time.Time) (model.TimerState, Transition) {
	if !s.IsRunning || s.Remaining(now) > 0 {
		return s, TransitionNone
	}
	return m.expire(s, now)
}

// expire applies the segment-expiry table: WORKING -> BREAK with the same
// block; BREAK -> next WORKING block, or READY with the block counter
// reset once the final block's break ends. Expiry always clears the
// progress carry-over.
func (m Machine) expire(s model.TimerState, now time.Time) (model.TimerState, Transition) {
	if !s.IsBreak {
		return model.TimerState{
			IsRunning:    true,
			StartTime:    now,
			Duration:     m.Break,
			IsBreak:      true,
			CurrentBlock: s.CurrentBlock,
		}, TransitionToBreak
	}
	if s.CurrentBlock < m.Blocks {
		return model.TimerState{
			IsRunning:    true,
			StartTime:    now,
			Duration:     m.Session,
			IsBreak:      false,
			CurrentBlock: s.CurrentBlock + 1,
		}, TransitionNextBlock
	}
	// Cycle complete. Duration is pre-seeded with a full session so the
	// display shows the next session length rather than 00:00.
	return model.TimerState{
		IsRunning:    false,
		Duration:     m.Session,
		IsBreak:      false,
		CurrentBlock: 1,
	}, TransitionCycleDone
}

// PanicOpen freezes a running work segment: the remaining budget is
// captured into Duration, the clock anchor is cleared, and the progress
// so far is recorded as the carry-over for the eventual resume. It does
// not touch IsBreak - panic is a countdown freeze, not a mode change -
// and the caller keeps URL blocking held.
//
// The freeze applies only to WORKING. Break segments and a segment whose
// remaining time has already reached zero are left alone (segment expiry
// wins the race against a simultaneous panic request); the reported bool
// is false in those cases and the caller still raises the panic flag.
func (m Machine) PanicOpen(s model.TimerState, now time.Time) (model.TimerState, bool) {
	if !s.IsRunning || s.IsBreak || s.StartTime.IsZero() {
		return s, false
	}
	remaining := s.Remaining(now)
	if remaining <= 0 {
		return s, false
	}
	elapsed := now.Sub(s.StartTime)
	progress := 0.0
	if s.Duration > 0 {
		progress = float64(elapsed) / float64(s.Duration) * 100
		if progress > 100 {
			progress = 100
		}
	}
	s.IsRunning = false
	s.Duration = remaining
	s.StartTime = time.Time{}
	s.ProgressStartPercent = progress
	return s, true
}

// PanicClose resumes the countdown if and only if the panic freeze held
// the timer (model.TimeStoppedByPanic); closing the modal over an
// ordinary idle state changes nothing. The caller clears the panic flag
// either way.
func (m Machine) PanicClose(s model.TimerState, panicOpen bool, now time.Time) (model.TimerState, bool) {
	if !model.TimeStoppedByPanic(s, panicOpen) {
		return s, false
	}
	return m.Start(s, now), true
}

// Reset forces the canonical READY state from anywhere. Always permitted,
// idempotent.
func (m Machine) Reset() model.TimerState {
	return model.TimerState{
		IsRunning:    false,
		Duration:     0,
		IsBreak:      false,
		CurrentBlock: 1,
	}
}

// Quit is Reset for the whole session: the caller additionally disables
// the panel and clears the panic flag everywhere.
func (m Machine) Quit() model.TimerState {
	return m.Reset()
}
