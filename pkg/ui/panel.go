package ui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/attnguard/pkg/debug"
	"github.com/vanderheijden86/attnguard/pkg/syncer"
)

// Panel owns the bubbletea program and adapts it to the renderer
// contract the synchronization layer expects: snapshots in via Render,
// liveness out via Alive, and self-healing via Recreate.
type Panel struct {
	ctrl      Controller
	altScreen bool

	mu     sync.Mutex
	prog   *tea.Program
	last   syncer.Snapshot
	alive  bool
	done   chan struct{}
	runErr error
}

// PanelOption configures a Panel.
type PanelOption func(*Panel)

// WithAltScreen runs the program full screen.
func WithAltScreen(on bool) PanelOption {
	return func(p *Panel) { p.altScreen = on }
}

// NewPanel creates the panel around the given controller.
func NewPanel(ctrl Controller, initial syncer.Snapshot, opts ...PanelOption) *Panel {
	p := &Panel{
		ctrl: ctrl,
		last: initial,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the program and blocks until the user quits or the context
// is canceled. A program that dies with an error does not end the
// session: Run stays up and waits for the presence check to Recreate it.
func (p *Panel) Run(ctx context.Context) error {
	return p.wait(ctx, p.start())
}

func (p *Panel) wait(ctx context.Context, done chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.alive && p.prog != nil {
				p.prog.Quit()
			}
			done = p.done
			p.mu.Unlock()
			<-done
			return ctx.Err()
		case <-done:
			p.mu.Lock()
			err := p.runErr
			p.mu.Unlock()
			if err == nil {
				return nil
			}
			next := p.awaitRestart(ctx, done)
			if next == nil {
				return ctx.Err()
			}
			done = next
		}
	}
}

// awaitRestart blocks until Recreate brings a replacement program up,
// then hands wait the replacement's exit channel. Nil means the context
// ended first.
func (p *Panel) awaitRestart(ctx context.Context, old chan struct{}) chan struct{} {
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			p.mu.Lock()
			done := p.done
			p.mu.Unlock()
			if done != old {
				return done
			}
		}
	}
}

func (p *Panel) start() chan struct{} {
	p.mu.Lock()
	opts := []tea.ProgramOption{tea.WithReportFocus()}
	if p.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	prog := tea.NewProgram(NewModel(p.ctrl, p.last), opts...)
	done := make(chan struct{})
	p.prog = prog
	p.alive = true
	p.done = done
	p.runErr = nil
	p.mu.Unlock()

	go func() {
		defer close(done)
		_, err := prog.Run()
		if err != nil {
			debug.Log("panel: program exited: %v", err)
		}
		p.mu.Lock()
		p.alive = false
		p.runErr = err
		p.mu.Unlock()
	}()
	return done
}

// Render pushes a snapshot into the running program. Snapshots arriving
// while the program is down are remembered so a recreated panel starts
// current.
func (p *Panel) Render(snap syncer.Snapshot) {
	p.mu.Lock()
	p.last = snap
	prog := p.prog
	alive := p.alive
	p.mu.Unlock()

	if alive && prog != nil {
		prog.Send(SnapshotMsg(snap))
	}
}

// Alive reports whether the program is running.
func (p *Panel) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

// Recreate restarts a dead program from the last snapshot.
func (p *Panel) Recreate() {
	p.mu.Lock()
	alive := p.alive
	p.mu.Unlock()
	if alive {
		return
	}
	p.start()
}
