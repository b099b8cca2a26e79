package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/waabox/mercury/internal/auth"
	"github.com/waabox/mercury/internal/domain"
	"github.com/waabox/mercury/internal/tui"
)

func newLoginCmd(a *App) *cobra.Command {
	var serverURL, clientID string
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Mercury with your browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				serverURL = a.cfg.ServerURLOrDefault()
			}
			if clientID == "" {
				clientID = a.cfg.ClientID
			}
			return a.login(cmd.Context(), serverURL, clientID, !noBrowser)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server-url", "", "authentication server URL")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "do not offer to open the verification page")
	return cmd
}

func (a *App) login(ctx context.Context, serverURL, clientID string, offerBrowser bool) error {
	tm := a.tokens()
	if tm.LoggedIn() {
		again, err := a.confirm("You are already logged in. Do you want to re-authenticate?", false)
		if err != nil {
			return err
		}
		if !again {
			fmt.Fprintln(a.Out, "Login cancelled.")
			return nil
		}
	}

	flow := auth.NewDeviceFlow(clientID, serverURL)
	grant, err := flow.RequestCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to initiate device authorization: %w", err)
	}
	a.log.Debug().Str("user_code", grant.UserCode).Int("expires_in", grant.ExpiresIn).Int("interval", grant.Interval).Msg("device code issued")

	fmt.Fprintln(a.Out, tui.Box(tui.BoxInfo, "Device Authorization Required",
		fmt.Sprintf("Visit: %s\nCode:  %s", grant.VerificationURL(), grant.UserCode)))
	if offerBrowser && a.OpenBrowser != nil {
		open, err := a.confirm("Open in your browser?", true)
		if err != nil {
			return err
		}
		if open {
			target := grant.VerificationURIComplete
			if target == "" {
				target = grant.VerificationURL()
			}
			if err := a.OpenBrowser(target); err != nil {
				a.log.Warn().Err(err).Msg("could not open browser")
			}
		}
	}
	if grant.ExpiresIn > 0 {
		fmt.Fprintln(a.Out, tui.Muted(fmt.Sprintf("Waiting for authorization (expires in %d minutes)...", grant.ExpiresIn/60)))
	}

	m, err := tui.RunLogin(ctx, a.In, a.Out, grant, func(ctx context.Context, onSlowDown func(time.Duration)) (auth.PollOutcome, error) {
		poller := auth.NewPoller(auth.WithLogger(a.log), auth.WithSlowDownHook(onSlowDown))
		return flow.Login(ctx, grant, poller)
	})
	if err != nil {
		return err
	}
	outcome, cancelled, err := m.Result()
	if cancelled {
		fmt.Fprintln(a.Out, "Login cancelled.")
		return nil
	}
	if err != nil {
		return err
	}
	return a.finishLogin(tm, outcome)
}

// finishLogin reports a terminal poll outcome and stores the issued token.
func (a *App) finishLogin(tm *auth.TokenManager, outcome auth.PollOutcome) error {
	switch outcome.Kind {
	case auth.OutcomeIssued:
		if _, err := tm.Store(outcome.Token); err != nil {
			fmt.Fprintln(a.Out, tui.Box(tui.BoxWarning, "", "Could not save authentication token.\nYou may need to login again next time."))
			a.log.Warn().Err(err).Msg("token not saved")
		}
		fmt.Fprintln(a.Out, tui.Box(tui.BoxAssistant, "", "Login successful!\nYou can now use Mercury CLI features."))
		return nil
	case auth.OutcomeDenied:
		return errors.New("access was denied by the user")
	case auth.OutcomeExpired:
		return errors.New("the device code has expired, please try again")
	default:
		return fmt.Errorf("device authorization failed: %s", outcome.Reason)
	}
}

func newLogoutCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tm := a.tokens()
			if _, err := tm.Require(); errors.Is(err, domain.ErrNotLoggedIn) {
				fmt.Fprintln(a.Out, "You are not logged in.")
				return nil
			}
			ok, err := a.confirm("Are you sure you want to log out?", false)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(a.Out, "Logout cancelled.")
				return nil
			}
			if err := tm.Clear(); err != nil {
				return fmt.Errorf("error logging out: %w", err)
			}
			fmt.Fprintln(a.Out, "Successfully logged out. Goodbye!")
			return nil
		},
	}
}

func newWhoamiCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the currently authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.tokens().Require(); err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := a.currentUser(ctx, st)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.Out, tui.Box(tui.BoxInfo, "Signed in", fmt.Sprintf("User:  %s\nEmail: %s", user.DisplayName(), user.Email)))
			return nil
		},
	}
}

// openBrowser opens urlStr with the platform's URL handler.
func openBrowser(urlStr string) error {
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme for browser: %s", u.Scheme)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", urlStr)
	case "darwin":
		cmd = exec.Command("open", urlStr)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", urlStr)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
