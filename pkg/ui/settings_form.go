package ui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/attnguard/pkg/blocklist"
	"github.com/vanderheijden86/attnguard/pkg/model"
)

// settingsForm wraps a huh form editing the shared user settings. The
// form edits string drafts; Settings() folds them back onto the base
// settings so fields the form does not expose (panic media, panel
// anchor) survive a save untouched.
type settingsForm struct {
	form *huh.Form
	base model.UserSettings

	session string
	brk     string
	blocks  string
	blocked string
	enabled bool
}

func newSettingsForm(base model.UserSettings) *settingsForm {
	f := &settingsForm{
		base:    base,
		session: strconv.Itoa(base.SessionMinutes),
		brk:     strconv.Itoa(base.BreakMinutes),
		blocks:  strconv.Itoa(base.PomodoroBlocks),
		blocked: strings.Join(base.BlockedURLs, "\n"),
		enabled: base.PanelEnabled,
	}

	minutes := func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 1 {
			return fmt.Errorf("enter a positive number of minutes")
		}
		return nil
	}
	count := func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n < 1 {
			return fmt.Errorf("enter a positive count")
		}
		return nil
	}

	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session length (minutes)").
				Value(&f.session).
				Validate(minutes),
			huh.NewInput().
				Title("Break length (minutes)").
				Value(&f.brk).
				Validate(minutes),
			huh.NewInput().
				Title("Blocks per cycle").
				Value(&f.blocks).
				Validate(count),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Blocked domains").
				Description("One per line, e.g. reddit.com").
				Value(&f.blocked),
			huh.NewConfirm().
				Title("Panel enabled").
				Value(&f.enabled),
		),
	).WithTheme(huh.ThemeDracula())

	return f
}

func (f *settingsForm) Init() tea.Cmd {
	return f.form.Init()
}

func (f *settingsForm) Update(msg tea.Msg) tea.Cmd {
	updated, cmd := f.form.Update(msg)
	if form, ok := updated.(*huh.Form); ok {
		f.form = form
	}
	return cmd
}

func (f *settingsForm) View() string {
	return f.form.View()
}

func (f *settingsForm) Done() bool {
	return f.form.State == huh.StateCompleted
}

// Settings folds the drafts onto the base settings. Numeric fields were
// validated by the form; the blocklist goes through the same sanitizing
// parse every other entry path uses.
func (f *settingsForm) Settings() model.UserSettings {
	out := f.base.Clone()
	if n, err := strconv.Atoi(strings.TrimSpace(f.session)); err == nil {
		out.SessionMinutes = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f.brk)); err == nil {
		out.BreakMinutes = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f.blocks)); err == nil {
		out.PomodoroBlocks = n
	}
	out.BlockedURLs = blocklist.Parse(f.blocked)
	out.PanelEnabled = f.enabled
	return out
}
