package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waabox/mercury/internal/agent"
	"github.com/waabox/mercury/internal/ai"
	"github.com/waabox/mercury/internal/chat"
	"github.com/waabox/mercury/internal/domain"
	"github.com/waabox/mercury/internal/repl"
	"github.com/waabox/mercury/internal/store"
	"github.com/waabox/mercury/internal/tui"
)

var modeOptions = []tui.Option{
	{Value: string(domain.ModeChat), Label: "Chat", Hint: "Chat with AI"},
	{Value: string(domain.ModeTool), Label: "Tool Calling", Hint: "Use AI Tool"},
	{Value: string(domain.ModeAgent), Label: "Agentic Mode", Hint: "Generate an application"},
}

func newWakeupCmd(a *App) *cobra.Command {
	var conversationID, mode string
	cmd := &cobra.Command{
		Use:   "wakeup",
		Short: "Wake up the AI and start a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, user, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			m := domain.Mode(mode)
			if mode == "" {
				choice, ok, err := tui.Select(a.In, a.Out, "Select an option", modeOptions)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.Out, "Cancelled.")
					return nil
				}
				m = domain.Mode(choice.Value)
			}
			if !m.Valid() {
				return fmt.Errorf("unknown mode %q (want chat, tool or agent)", mode)
			}
			return a.startSession(ctx, st, user, m, conversationID)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "resume the conversation with this ID")
	cmd.Flags().StringVar(&mode, "mode", "", "start directly in chat, tool or agent mode")
	return cmd
}

func newConversationsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "Browse, resume and delete your conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, user, err := a.signedIn(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			final, err := tui.Run(tui.NewConversationsModel(chat.NewService(st), user.ID), a.In, a.Out)
			if err != nil {
				return err
			}
			m := final.(tui.ConversationsModel)
			if !m.Chosen() {
				return nil
			}
			conv := m.Selected()
			return a.startSession(ctx, st, user, conv.Mode, conv.ID)
		},
	}
}

// signedIn opens the database and resolves the stored session to its user.
// The caller closes the returned store.
func (a *App) signedIn(ctx context.Context) (*store.Store, domain.User, error) {
	if _, err := a.tokens().Require(); err != nil {
		return nil, domain.User{}, err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, domain.User{}, err
	}
	user, err := a.currentUser(ctx, st)
	if err != nil {
		st.Close()
		return nil, domain.User{}, err
	}
	a.log.Debug().Str("user", user.ID).Msg("session resolved")
	return st, user, nil
}

func (a *App) startSession(ctx context.Context, st *store.Store, user domain.User, mode domain.Mode, conversationID string) error {
	model, err := ai.NewClient(a.cfg.AI.APIKey, a.cfg.ModelOrDefault(), a.cfg.AI.BaseURL, ai.WithLogger(a.log))
	if err != nil {
		return err
	}

	tools := ai.NewToolRegistry()
	if mode == domain.ModeTool {
		var options []tui.Option
		for _, t := range tools.Tools() {
			options = append(options, tui.Option{Value: t.ID, Label: t.Name, Hint: t.Description})
		}
		selected, ok, err := tui.MultiSelect(a.In, a.Out, "Select tools to enable (space to toggle, enter to confirm)", options, nil)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.Out, "Cancelled.")
			return nil
		}
		tools.Enable(selected)
		if len(selected) == 0 {
			fmt.Fprintln(a.Out, tui.Muted("No tools selected. Proceeding without tools."))
		}
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	rl, err := repl.NewReadline("you> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	s := &repl.Session{
		Chat:    chat.NewService(st),
		Model:   model,
		Tools:   tools,
		Agent:   agent.NewGenerator(model, a.log),
		User:    user,
		Input:   rl,
		Out:     a.Out,
		WorkDir: workDir,
		Log:     a.log,
	}
	return s.Start(ctx, mode, conversationID)
}
