package tui_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waabox/mercury/internal/auth"
	"github.com/waabox/mercury/internal/tui"
)

var testGrant = auth.DeviceGrant{
	DeviceCode:      "dev",
	UserCode:        "BCDF-GHJK",
	VerificationURI: "http://localhost:3000/device",
	ExpiresIn:       900,
	Interval:        5,
}

func TestLoginModel_ShowsCodeAndURI(t *testing.T) {
	m := tui.NewLoginModel(context.Background(), testGrant, nil)
	view := m.View()
	if !strings.Contains(view, "BCDF-GHJK") || !strings.Contains(view, "http://localhost:3000/device") {
		t.Errorf("expected code and uri in view, got:\n%s", view)
	}
	if !strings.Contains(view, "5s") {
		t.Errorf("expected interval in view, got:\n%s", view)
	}
}

func TestLoginModel_InitRunsPollAndFinishes(t *testing.T) {
	poll := func(ctx context.Context) (auth.PollOutcome, error) {
		return auth.PollOutcome{Kind: auth.OutcomeIssued, Token: auth.TokenResponse{AccessToken: "tok"}}, nil
	}
	m := tui.NewLoginModel(context.Background(), testGrant, poll)

	msg := m.Init()()
	done, ok := msg.(tui.PollDoneMsg)
	if !ok {
		t.Fatalf("expected PollDoneMsg, got %T", msg)
	}
	model, cmd := m.Update(done)
	if !isQuit(cmd) {
		t.Error("expected quit after poll finished")
	}
	outcome, cancelled, err := model.(tui.LoginModel).Result()
	if err != nil || cancelled {
		t.Fatalf("unexpected result: cancelled=%v err=%v", cancelled, err)
	}
	if outcome.Kind != auth.OutcomeIssued || outcome.Token.AccessToken != "tok" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestLoginModel_SlowDownUpdatesInterval(t *testing.T) {
	var model tea.Model = tui.NewLoginModel(context.Background(), testGrant, nil)
	model, _ = model.Update(tui.SlowDownMsg{Interval: 10 * time.Second})

	m := model.(tui.LoginModel)
	if m.Interval() != 10*time.Second {
		t.Errorf("expected interval 10s, got %s", m.Interval())
	}
	if !strings.Contains(m.View(), "10s") {
		t.Errorf("expected new interval in view, got:\n%s", m.View())
	}
}

func TestLoginModel_EscCancelsPoll(t *testing.T) {
	started := make(chan struct{})
	poll := func(ctx context.Context) (auth.PollOutcome, error) {
		close(started)
		<-ctx.Done()
		return auth.PollOutcome{}, ctx.Err()
	}
	m := tui.NewLoginModel(context.Background(), testGrant, poll)

	result := make(chan tea.Msg, 1)
	go func() { result <- m.Init()() }()
	<-started

	model, cmd := m.Update(key("esc"))
	if !isQuit(cmd) {
		t.Error("expected quit on esc")
	}
	_, cancelled, err := model.(tui.LoginModel).Result()
	if !cancelled || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got cancelled=%v err=%v", cancelled, err)
	}

	select {
	case msg := <-result:
		if done := msg.(tui.PollDoneMsg); !errors.Is(done.Err, context.Canceled) {
			t.Errorf("expected poll to stop with context.Canceled, got %v", done.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not stop after cancel")
	}
}
