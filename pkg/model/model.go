// Package model defines the shared session state that every attnguard
// client mirrors: the timer state machine value, the per-profile user
// settings, and the panic content shown while a session is frozen.
//
// All of these values live in the shared store as full-document slots;
// there is no partial update. Clients carry an in-memory mirror and
// reconcile it against the store (see pkg/syncer).
package model

import "time"

// PanelPosition is the panel anchor in pixels, persisted so every client
// places the panel in the same spot.
type PanelPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PanicContent is what the panic modal displays: a title, a list of
// grounding prompts, and optional media encoded as data URLs.
type PanicContent struct {
	Title         string   `json:"title"`
	Items         []string `json:"items"`
	ImageDataURL  string   `json:"imageDataUrl,omitempty"`
	AudioDataURL  string   `json:"audioDataUrl,omitempty"`
	ImageMaxWidth int      `json:"imageMaxWidth,omitempty"`
}

// UserSettings is the per-profile configuration slot. One logical instance
// exists per profile; every client reads and writes the whole value.
type UserSettings struct {
	SessionMinutes int           `json:"sessionMinutes"`
	BreakMinutes   int           `json:"breakMinutes"`
	PomodoroBlocks int           `json:"pomodoroBlocks"`
	CurrentBlock   int           `json:"currentBlock"`
	PanelPosition  PanelPosition `json:"panelPosition"`
	PanelMinimized bool          `json:"panelMinimized"`
	PanicContent   PanicContent  `json:"panicContent"`
	PanelEnabled   bool          `json:"panelEnabled"`
	BlockedURLs    []string      `json:"blockedUrls"`
}

// TimerState is the timer slot. Duration carries a dual meaning resolved
// by IsRunning: while running it is the total length of the current
// segment, while stopped it is the remaining budget of that segment.
// IsRunning implies a non-zero StartTime. Duration==0 with IsRunning==false
// is the canonical READY state.
type TimerState struct {
	IsRunning    bool          `json:"isRunning"`
	StartTime    time.Time     `json:"startTime"`
	Duration     time.Duration `json:"duration"`
	IsBreak      bool          `json:"isBreak"`
	CurrentBlock int           `json:"currentBlock"`
	// ProgressStartPercent is the progress-bar carry-over applied when a
	// segment resumes after a panic freeze, so the bar continues instead
	// of restarting at zero.
	ProgressStartPercent float64 `json:"progressStartPercent"`
}

// Phase labels for display. The panic freeze is not a phase: it is the
// derived condition reported by TimeStoppedByPanic.
type Phase string

const (
	PhaseReady   Phase = "READY"
	PhaseWorking Phase = "WORKING"
	PhaseBreak   Phase = "BREAK"
)

// Phase classifies the timer state for display. A panic-frozen work
// segment still reports WORKING when panicOpen is true.
func (s TimerState) Phase(panicOpen bool) Phase {
	switch {
	case s.IsRunning && s.IsBreak:
		return PhaseBreak
	case s.IsRunning:
		return PhaseWorking
	case TimeStoppedByPanic(s, panicOpen) && !s.IsBreak:
		return PhaseWorking
	default:
		return PhaseReady
	}
}

// Ready reports whether the state is the canonical idle value.
func (s TimerState) Ready() bool {
	return !s.IsRunning && s.Duration == 0
}

// Remaining returns the true remaining time of the current segment:
// duration minus wall-clock elapsed while running, the frozen budget
// otherwise. Never negative.
func (s TimerState) Remaining(now time.Time) time.Duration {
	if !s.IsRunning || s.StartTime.IsZero() {
		return s.Duration
	}
	remaining := s.Duration - now.Sub(s.StartTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress returns the display progress in percent, folding in the
// carry-over from a panic resume: the live segment fills only the range
// above ProgressStartPercent.
func (s TimerState) Progress(now time.Time) float64 {
	start := s.ProgressStartPercent
	if start > 100 {
		start = 100
	}
	if !s.IsRunning || s.StartTime.IsZero() || s.Duration <= 0 {
		return start
	}
	segment := float64(now.Sub(s.StartTime)) / float64(s.Duration) * 100
	if segment > 100 {
		segment = 100
	}
	progress := start + segment/100*(100-start)
	if progress > 100 {
		return 100
	}
	return progress
}

// TimeStoppedByPanic reports whether the timer is frozen by an open panic
// modal. There is no stored paused flag: the freeze is derived from the
// panic flag plus a stopped timer that still holds budget, and this
// predicate is the only way it is distinguished from ordinary idle.
func TimeStoppedByPanic(s TimerState, panicOpen bool) bool {
	return panicOpen && !s.IsRunning && s.Duration > 0
}

// DefaultTimerState returns the first-run timer value.
func DefaultTimerState() TimerState {
	return TimerState{
		IsRunning:    false,
		Duration:     0,
		IsBreak:      false,
		CurrentBlock: 1,
	}
}

// DefaultUserSettings returns the first-run settings, including the stock
// panic prompts.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		SessionMinutes: 25,
		BreakMinutes:   5,
		PomodoroBlocks: 4,
		CurrentBlock:   1,
		PanelPosition:  PanelPosition{X: 20, Y: 20},
		PanelMinimized: false,
		PanicContent: PanicContent{
			Title: "Stay focused on your task",
			Items: []string{
				"What is the ONE most important step right now?",
				"Why did you start this session?",
				"You've got this. Break it into smaller pieces.",
				"Check your environment: no distractions?",
				"Just 5 more minutes. Then reassess.",
			},
			ImageMaxWidth: DefaultImageMaxWidth,
		},
		PanelEnabled: true,
		BlockedURLs:  []string{},
	}
}

// Clone returns a deep copy so a mirror can be mutated without aliasing
// the slices held by another snapshot.
func (s UserSettings) Clone() UserSettings {
	out := s
	out.BlockedURLs = append([]string(nil), s.BlockedURLs...)
	out.PanicContent = s.PanicContent.Clone()
	return out
}

// Clone returns a deep copy of the panic content.
func (c PanicContent) Clone() PanicContent {
	out := c
	out.Items = append([]string(nil), c.Items...)
	return out
}

// Session returns the configured work segment length.
func (s UserSettings) Session() time.Duration {
	return time.Duration(s.SessionMinutes) * time.Minute
}

// Break returns the configured break segment length.
func (s UserSettings) Break() time.Duration {
	return time.Duration(s.BreakMinutes) * time.Minute
}
