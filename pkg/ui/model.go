// Package ui renders the attnguard panel: countdown, block counter,
// blocking overlay, panic modal, and the settings form. It is a thin
// view over snapshots pushed by the synchronization layer; all timer
// and policy logic lives upstream.
package ui

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/attnguard/pkg/metrics"
	"github.com/vanderheijden86/attnguard/pkg/model"
	"github.com/vanderheijden86/attnguard/pkg/syncer"
)

// Controller is the set of user intents the panel can fire. The
// synchronization layer satisfies it.
type Controller interface {
	Start()
	Reset()
	OpenPanic()
	ClosePanic()
	Quit()
	Refresh()
	SaveSettings(model.UserSettings) error
	SetPanelMinimized(minimized bool)
	SetPanelPosition(pos model.PanelPosition)
}

// SnapshotMsg carries a fresh desired-state snapshot into the program.
type SnapshotMsg syncer.Snapshot

// noticeExpiredMsg clears a transient status line.
type noticeExpiredMsg struct{ seq int }

// Model is the bubbletea model for the panel.
type Model struct {
	ctrl Controller
	snap syncer.Snapshot

	bar    progress.Model
	width  int
	height int

	showSettings bool
	form         *settingsForm

	notice    string
	noticeSeq int

	// Panic prompt chosen when the modal last opened, stable while open.
	panicPrompt  string
	panicWasOpen bool

	randInt func(n int) int
}

// NewModel creates the panel model with an initial snapshot.
func NewModel(ctrl Controller, initial syncer.Snapshot) Model {
	return Model{
		ctrl:    ctrl,
		snap:    initial,
		bar:     progress.New(progress.WithGradient(WorkGradientStart, WorkGradientEnd)),
		randInt: rand.Intn,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(msg.Width-8, 40)
		return m, nil

	case SnapshotMsg:
		m.adoptSnapshot(syncer.Snapshot(msg))
		return m, nil

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case tea.FocusMsg:
		// Regaining focus re-fetches state missed while backgrounded.
		m.ctrl.Refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.showSettings && m.form != nil {
		cmd := m.form.Update(msg)
		return m, cmd
	}
	return m, nil
}

// adoptSnapshot installs a pushed snapshot and pins the panic prompt for
// the lifetime of an open modal so it does not reshuffle every second.
func (m *Model) adoptSnapshot(snap syncer.Snapshot) {
	if snap.PanicOpen && !m.panicWasOpen {
		prompts := snap.Settings.PanicContent.Items
		if len(prompts) > 0 {
			m.panicPrompt = prompts[m.randInt(len(prompts))]
		} else {
			m.panicPrompt = "Focus on your task"
		}
	}
	m.panicWasOpen = snap.PanicOpen
	m.snap = snap
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showSettings && m.form != nil {
		switch msg.String() {
		case "esc":
			m.showSettings = false
			m.form = nil
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		cmd := m.form.Update(msg)
		if m.form.Done() {
			updated := m.form.Settings()
			m.showSettings = false
			m.form = nil
			if err := m.ctrl.SaveSettings(updated); err != nil {
				return m.withNotice(fmt.Sprintf("settings rejected: %v", err))
			}
			return m.withNotice("settings saved")
		}
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "s":
		m.ctrl.Start()
	case "r":
		m.ctrl.Reset()
	case "p":
		if m.snap.PanicOpen {
			m.ctrl.ClosePanic()
		} else {
			m.ctrl.OpenPanic()
		}
	case "esc", "enter":
		if m.snap.PanicOpen {
			m.ctrl.ClosePanic()
		}
	case "m":
		m.ctrl.SetPanelMinimized(!m.snap.Settings.PanelMinimized)
	case "o":
		m.showSettings = true
		m.form = newSettingsForm(m.snap.Settings)
		return m, m.form.Init()
	case "y":
		urls := strings.Join(m.snap.Settings.BlockedURLs, "\n")
		if err := clipboard.WriteAll(urls); err != nil {
			return m.withNotice("clipboard unavailable")
		}
		return m.withNotice(fmt.Sprintf("copied %d blocked domains", len(m.snap.Settings.BlockedURLs)))
	case "q":
		m.ctrl.Quit()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) withNotice(text string) (tea.Model, tea.Cmd) {
	m.notice = text
	m.noticeSeq++
	seq := m.noticeSeq
	return m, noticeExpiry(seq)
}

// View implements tea.Model.
func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	if m.width == 0 {
		return "Loading..."
	}

	var body string
	switch {
	case m.showSettings && m.form != nil:
		body = m.viewSettings()
	case m.snap.PanicOpen:
		body = m.viewPanicModal()
	case m.snap.Decision.KeepBlocked:
		body = m.viewBlocked()
	case !m.snap.Settings.PanelEnabled:
		body = HelpStyle.Render("panel disabled · [q]uit")
	case m.snap.Settings.PanelMinimized:
		body = m.viewMinimized()
	default:
		body = m.viewPanel()
	}

	return lipgloss.Place(m.width, m.height, m.place(), lipgloss.Center, body)
}

// place maps the persisted panel anchor onto a horizontal position. The
// anchor is stored as pixel offsets by every client; in a terminal only
// the left/right half matters, and vertical centering keeps the
// countdown readable in small windows.
func (m Model) place() lipgloss.Position {
	if m.width == 0 {
		return lipgloss.Center
	}
	if m.snap.Settings.PanelPosition.X > 400 {
		return lipgloss.Right
	}
	return lipgloss.Left
}

func (m Model) viewPanel() string {
	snap := m.snap
	frozen := model.TimeStoppedByPanic(snap.State, snap.PanicOpen)

	var sections []string
	sections = append(sections, TitleStyle.Render("attnguard")+" "+RenderPhaseBadge(string(snap.Phase), frozen))
	sections = append(sections, "")
	sections = append(sections, TimeStyle.Render(formatClock(snap.Remaining)))
	sections = append(sections, m.phaseBar().ViewAs(snap.Progress/100))

	blockLine := fmt.Sprintf("block %d of %d", snap.State.CurrentBlock, snap.Settings.PomodoroBlocks)
	if snap.State.IsBreak {
		blockLine += " · break"
	}
	sections = append(sections, HelpStyle.Render(blockLine))

	if host := snap.Decision.Host; host != "" {
		status := "allowed"
		if snap.Decision.URLMatches {
			status = "listed"
		}
		sections = append(sections, HelpStyle.Render(truncateWidth(host, 32)+" · "+status))
	}

	if m.notice != "" {
		sections = append(sections, NoticeStyle.Render(m.notice))
	}

	sections = append(sections, "")
	sections = append(sections, HelpStyle.Render("[s]tart [r]eset [p]anic [o]ptions [y]ank [m]in [q]uit"))

	return PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Center, sections...))
}

func (m Model) viewMinimized() string {
	snap := m.snap
	frozen := model.TimeStoppedByPanic(snap.State, snap.PanicOpen)
	line := RenderPhaseBadge(string(snap.Phase), frozen) + " " + TimeStyle.Render(formatClock(snap.Remaining))
	return PanelStyle.Render(line)
}

func (m Model) viewPanicModal() string {
	snap := m.snap

	var sections []string
	title := snap.Settings.PanicContent.Title
	if title == "" {
		title = "Stay focused"
	}
	sections = append(sections, TitleStyle.Render(title))
	sections = append(sections, "")
	sections = append(sections, lipgloss.NewStyle().Foreground(ColorText).Render(m.panicPrompt))

	if model.TimeStoppedByPanic(snap.State, snap.PanicOpen) {
		sections = append(sections, "")
		sections = append(sections, HelpStyle.Render("timer frozen at "+formatClock(snap.Remaining)))
	}

	sections = append(sections, "")
	sections = append(sections, HelpStyle.Render("[p] or [esc] back to work"))

	return ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Center, sections...))
}

func (m Model) viewBlocked() string {
	snap := m.snap

	var sections []string
	sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(ColorDanger).Render("BLOCKED"))
	sections = append(sections, "")
	sections = append(sections, lipgloss.NewStyle().Foreground(ColorText).Render(truncateWidth(snap.Decision.Host, 40)))
	sections = append(sections, HelpStyle.Render("work segment in progress · "+formatClock(snap.Remaining)+" remaining"))
	sections = append(sections, m.phaseBar().ViewAs(snap.Progress/100))
	sections = append(sections, "")
	sections = append(sections, HelpStyle.Render("[p]anic [r]eset [q]uit"))

	return BlockedStyle.Render(lipgloss.JoinVertical(lipgloss.Center, sections...))
}

func (m Model) viewSettings() string {
	return PanelStyle.Render(m.form.View())
}

// noticeExpiry clears the status line after a short hold.
func noticeExpiry(seq int) tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// phaseBar returns the progress bar with the gradient for the current
// phase.
func (m Model) phaseBar() progress.Model {
	snap := m.snap
	var bar progress.Model
	switch {
	case model.TimeStoppedByPanic(snap.State, snap.PanicOpen):
		bar = progress.New(progress.WithGradient(FrozenGradientStart, FrozenGradientEnd))
	case snap.State.IsBreak:
		bar = progress.New(progress.WithGradient(BreakGradientStart, BreakGradientEnd))
	default:
		bar = progress.New(progress.WithGradient(WorkGradientStart, WorkGradientEnd))
	}
	bar.Width = m.bar.Width
	return bar
}
