package tui

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/mercury/internal/auth"
)

// Run starts a Bubbletea program for m, drawing to out, and returns the final model.
func Run(m tea.Model, in io.Reader, out io.Writer) (tea.Model, error) {
	p := tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("running terminal UI: %w", err)
	}
	return final, nil
}

// Select shows a single-choice list and returns the chosen option.
// ok is false when the user cancelled.
func Select(in io.Reader, out io.Writer, title string, options []Option) (choice Option, ok bool, err error) {
	final, err := Run(NewSelectModel(title, options), in, out)
	if err != nil {
		return Option{}, false, err
	}
	m := final.(SelectModel)
	if !m.Chosen() {
		return Option{}, false, nil
	}
	return m.Selected(), true, nil
}

// MultiSelect shows a checklist and returns the checked values.
// ok is false when the user cancelled.
func MultiSelect(in io.Reader, out io.Writer, title string, options []Option, preselected []string) (values []string, ok bool, err error) {
	final, err := Run(NewMultiSelectModel(title, options, preselected), in, out)
	if err != nil {
		return nil, false, err
	}
	m := final.(MultiSelectModel)
	if !m.Confirmed() {
		return nil, false, nil
	}
	return m.Values(), true, nil
}

// RunLogin shows the device authorization screen while poll runs. poll
// receives a callback that forwards slow_down interval changes to the screen.
func RunLogin(ctx context.Context, in io.Reader, out io.Writer, grant auth.DeviceGrant,
	poll func(ctx context.Context, onSlowDown func(time.Duration)) (auth.PollOutcome, error)) (LoginModel, error) {
	var p *tea.Program
	m := NewLoginModel(ctx, grant, func(ctx context.Context) (auth.PollOutcome, error) {
		return poll(ctx, func(d time.Duration) {
			p.Send(SlowDownMsg{Interval: d})
		})
	})
	p = tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return LoginModel{}, fmt.Errorf("running terminal UI: %w", err)
	}
	return final.(LoginModel), nil
}
