// Package cli wires the mercury commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waabox/mercury/internal/auth"
	"github.com/waabox/mercury/internal/config"
	"github.com/waabox/mercury/internal/credentials"
	"github.com/waabox/mercury/internal/domain"
	"github.com/waabox/mercury/internal/logger"
	"github.com/waabox/mercury/internal/store"
	"github.com/waabox/mercury/internal/tui"
)

// App carries the state shared by all commands.
type App struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	ConfigPath string
	TokenPath  string
	Version    string

	// OpenBrowser opens a URL in the user's browser. Defaults to the system handler.
	OpenBrowser func(url string) error

	verbose bool
	log     zerolog.Logger
	cfg     config.Config
}

// NewApp returns an App bound to the process's standard streams and default paths.
func NewApp(version string) *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		ConfigPath:  config.DefaultConfigPath(),
		TokenPath:   credentials.DefaultPath(),
		Version:     version,
		OpenBrowser: openBrowser,
		log:         zerolog.Nop(),
	}
}

// NewRootCommand builds the mercury command tree.
func NewRootCommand(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "mercury",
		Short:         "Mercury CLI - a terminal AI assistant",
		Long:          "Mercury is a command line AI assistant. Sign in with your browser, then chat,\nuse hosted tools, or let the agent generate applications.",
		Version:       a.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logger.NewCLI(a.verbose)
			cfg, err := config.LoadFrom(a.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			a.cfg = cfg
			a.log.Debug().Str("config", a.ConfigPath).Str("server_url", cfg.ServerURLOrDefault()).Msg("configuration loaded")
			return nil
		},
	}
	root.SetIn(a.In)
	root.SetOut(a.Out)
	root.SetErr(a.Err)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newWakeupCmd(a),
		newConversationsCmd(a),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, a *App, args []string) int {
	root := NewRootCommand(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var expired *auth.SessionExpiredError
		switch {
		case errors.Is(err, domain.ErrNotLoggedIn):
			fmt.Fprintln(a.Err, tui.Box(tui.BoxWarning, "", "Not logged in. Run 'mercury login' first."))
		case errors.As(err, &expired):
			fmt.Fprintln(a.Err, tui.Box(tui.BoxWarning, "", "Your session has expired. Run 'mercury login' again."))
		default:
			fmt.Fprintln(a.Err, tui.Box(tui.BoxError, "Error", err.Error()))
		}
		return 1
	}
	return 0
}

func (a *App) tokens() *auth.TokenManager {
	return auth.NewTokenManager(credentials.NewStore(a.TokenPath))
}

// openStore connects to the shared database and makes sure the schema exists.
func (a *App) openStore(ctx context.Context) (*store.Store, error) {
	dsn := a.cfg.DatabaseURLOrDefault()
	if !strings.Contains(dsn, "://") {
		if err := credentials.EnsureParentDir(dsn); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return st, nil
}

// currentUser resolves the stored session token to its user.
func (a *App) currentUser(ctx context.Context, st *store.Store) (domain.User, error) {
	var user domain.User
	err := a.tokens().Do(func(accessToken string) error {
		u, _, err := st.FindUserBySessionToken(ctx, accessToken)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

// confirm asks a yes/no question on a.In. An empty answer yields def.
func (a *App) confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(a.Out, "%s %s ", question, hint)
	line, err := readLine(a.In)
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// readLine reads up to and including the next newline one byte at a time, so
// nothing past the answer is consumed from in. The terminal UI reads the
// same stream afterwards.
func readLine(in io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			b.WriteByte(buf[0])
			if buf[0] == '\n' {
				return b.String(), nil
			}
		}
		if err != nil {
			return b.String(), err
		}
	}
}
