package ui

import (
	"context"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type doneMsg struct{ err error }

type spinnerModel struct {
	spinner spinner.Model
	title   string
	err     error
	aborted bool
}

func (m spinnerModel) Init() tea.Cmd { return m.spinner.Tick }

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	return m.spinner.View() + " " + m.title + "\n"
}

// Spin runs fn while showing a spinner titled title on stderr. Pressing
// Ctrl-C or Esc cancels the context fn receives. Without a terminal fn
// simply runs.
func Spin(ctx context.Context, title string, fn func(context.Context) error) error {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	p := tea.NewProgram(
		spinnerModel{spinner: s, title: title},
		tea.WithOutput(os.Stderr),
		tea.WithContext(ctx),
	)

	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		done <- err
		p.Send(doneMsg{err: err})
	}()

	final, runErr := p.Run()
	if m, ok := final.(spinnerModel); ok && m.aborted {
		cancel()
	}
	// fn observes ctx; wait for it so nothing outlives the step.
	err := <-done
	if runErr != nil && err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
