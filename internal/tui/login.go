package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/mercury/internal/auth"
)

// PollFunc runs the device authorization poll to completion.
type PollFunc func(ctx context.Context) (auth.PollOutcome, error)

// PollDoneMsg is sent when the poll session ends.
// It is exported so that tests can inject it directly into LoginModel.Update.
type PollDoneMsg struct {
	Outcome auth.PollOutcome
	Err     error
}

// SlowDownMsg reports that the server asked the client to poll less often.
type SlowDownMsg struct {
	Interval time.Duration
}

// LoginModel shows the verification URI and user code while the poll runs.
type LoginModel struct {
	grant     auth.DeviceGrant
	poll      PollFunc
	ctx       context.Context
	cancel    context.CancelFunc
	interval  time.Duration
	done      bool
	cancelled bool
	outcome   auth.PollOutcome
	err       error
}

// NewLoginModel creates a LoginModel. Cancelling ctx or pressing esc stops the poll.
func NewLoginModel(ctx context.Context, grant auth.DeviceGrant, poll PollFunc) LoginModel {
	ctx, cancel := context.WithCancel(ctx)
	interval := time.Duration(grant.Interval) * time.Second
	return LoginModel{
		grant:    grant,
		poll:     poll,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
	}
}

// Init starts the poll in the background.
func (m LoginModel) Init() tea.Cmd {
	ctx, poll := m.ctx, m.poll
	return func() tea.Msg {
		outcome, err := poll(ctx)
		return PollDoneMsg{Outcome: outcome, Err: err}
	}
}

func (m LoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PollDoneMsg:
		m.done = true
		m.outcome = msg.Outcome
		m.err = msg.Err
		m.cancel()
		return m, tea.Quit
	case SlowDownMsg:
		m.interval = msg.Interval
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "q", "ctrl+c":
			m.cancelled = true
			m.cancel()
			return m, tea.Quit
		}
	}
	return m, nil
}

// Result returns the poll outcome. cancelled is true when the user aborted.
func (m LoginModel) Result() (outcome auth.PollOutcome, cancelled bool, err error) {
	if m.cancelled && !m.done {
		return auth.PollOutcome{}, true, context.Canceled
	}
	return m.outcome, false, m.err
}

// Interval returns the polling interval currently in effect.
func (m LoginModel) Interval() time.Duration {
	return m.interval
}

func (m LoginModel) View() string {
	var body strings.Builder
	fmt.Fprintf(&body, "Visit:  %s\n", m.grant.VerificationURL())
	fmt.Fprintf(&body, "Code:   %s\n", codeStyle.Render(m.grant.UserCode))
	if m.grant.VerificationURIComplete != "" && m.grant.VerificationURIComplete != m.grant.VerificationURL() {
		fmt.Fprintf(&body, "\nOr open %s\n", m.grant.VerificationURIComplete)
	}

	status := fmt.Sprintf("Waiting for authorization... (checking every %s)", m.interval)
	switch {
	case m.cancelled:
		status = "Login cancelled."
	case m.done:
		status = "Done."
	}
	footer := ""
	if !m.done && !m.cancelled {
		footer = "\n" + Muted("esc: cancel")
	}
	return Box(BoxInfo, "Device Authorization", body.String()) + "\n" + status + footer + "\n"
}
