// Package repl runs the interactive chat, tool and agent sessions.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"github.com/waabox/mercury/internal/agent"
	"github.com/waabox/mercury/internal/ai"
	"github.com/waabox/mercury/internal/chat"
	"github.com/waabox/mercury/internal/domain"
	"github.com/waabox/mercury/internal/tui"
)

// errExit is a sentinel error used to signal the end of a session.
var errExit = errors.New("exit")

const chatSystemPrompt = "You are MercuryAI, a helpful assistant running in a terminal. Answer in concise Markdown."

// LineReader is the subset of *readline.Instance the loops need.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
	Close() error
}

// NewReadline creates a line reader that keeps history in the user's cache directory.
func NewReadline(prompt string) (*readline.Instance, error) {
	historyFile := filepath.Join(os.TempDir(), ".mercury_history")
	if dir, err := os.UserCacheDir(); err == nil {
		historyFile = filepath.Join(dir, "mercury", "history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0700)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	return rl, nil
}

// Session holds everything an interactive session needs.
type Session struct {
	Chat    *chat.Service
	Model   domain.ChatModel
	Tools   *ai.ToolRegistry
	Agent   *agent.Generator
	User    domain.User
	Input   LineReader
	Out     io.Writer
	WorkDir string
	Log     zerolog.Logger
}

// Start resumes conversationID (or starts a new conversation) in mode and
// runs the matching loop until the user exits.
func (s *Session) Start(ctx context.Context, mode domain.Mode, conversationID string) error {
	conv, err := s.Chat.GetOrCreateConversation(ctx, s.User.ID, mode, conversationID)
	if err != nil {
		return fmt.Errorf("initializing conversation: %w", err)
	}
	if conv.Mode != mode && conversationID != "" {
		s.Log.Debug().Str("conversation", conv.ID).Str("stored_mode", string(conv.Mode)).Str("mode", string(mode)).Msg("resuming conversation in a different mode")
	}
	s.printHeader(conv, mode)

	switch mode {
	case domain.ModeAgent:
		err = s.agentLoop(ctx, conv)
	case domain.ModeTool:
		var tools []string
		if s.Tools != nil {
			tools = s.Tools.Enabled()
		}
		err = s.chatLoop(ctx, conv, tools)
	default:
		err = s.chatLoop(ctx, conv, nil)
	}
	if errors.Is(err, errExit) {
		return nil
	}
	return err
}

func (s *Session) printHeader(conv domain.Conversation, mode domain.Mode) {
	var info strings.Builder
	fmt.Fprintf(&info, "Conversation: %s\n", conv.Title)
	fmt.Fprintf(&info, "Mode: %s", mode)
	kind := tui.BoxAssistant
	title := "Chat Session"
	switch mode {
	case domain.ModeTool:
		title = "Tool Calling Mode"
		names := []string{}
		if s.Tools != nil {
			names = s.Tools.EnabledNames()
		}
		if len(names) == 0 {
			info.WriteString("\nNo tools active.")
		} else {
			fmt.Fprintf(&info, "\nActive tools: %s", strings.Join(names, ", "))
		}
	case domain.ModeAgent:
		title = "Agent Mode"
		kind = tui.BoxAgent
		fmt.Fprintf(&info, "\nWorking directory: %s", s.WorkDir)
	}
	fmt.Fprintln(s.Out, tui.Box(kind, title, info.String()))

	if len(conv.Messages) > 0 && mode != domain.ModeAgent {
		fmt.Fprintln(s.Out, tui.Muted("Previous messages:"))
		for _, m := range conv.Messages {
			s.printMessage(m.Role, chat.DisplayContent(m.Content))
		}
	}

	help := "Type your message and press Enter\nType \"exit\" or press Ctrl+D to end the session"
	if mode == domain.ModeAgent {
		help = "Describe the application you want to create.\n" +
			"The agent writes a new folder in the working directory.\n" +
			"Type \"exit\" or press Ctrl+D to end the session"
	}
	fmt.Fprintln(s.Out, tui.Muted(help))
	fmt.Fprintln(s.Out)
}

func (s *Session) printMessage(role domain.Role, content string) {
	if role == domain.RoleUser {
		fmt.Fprintln(s.Out, tui.Box(tui.BoxUser, "You", content))
		return
	}
	fmt.Fprintln(s.Out, tui.Box(tui.BoxAssistant, "MercuryAI", content))
}

// readInput returns the next non-empty line. It returns errExit on "exit" or EOF.
func (s *Session) readInput(emptyMsg string) (string, error) {
	for {
		line, err := s.Input.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return "", errExit
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return "", errExit
		}
		if err != nil {
			return "", fmt.Errorf("readline error: %w", err)
		}
		input := strings.TrimSpace(line)
		if strings.EqualFold(input, "exit") {
			return "", errExit
		}
		if input == "" {
			fmt.Fprintln(s.Out, tui.Muted(emptyMsg))
			continue
		}
		return input, nil
	}
}

func (s *Session) goodbye(msg string) {
	fmt.Fprintln(s.Out, tui.Box(tui.BoxWarning, "", msg))
}

func (s *Session) chatLoop(ctx context.Context, conv domain.Conversation, tools []string) error {
	s.Input.SetPrompt("you> ")
	for {
		input, err := s.readInput("Message cannot be empty.")
		if errors.Is(err, errExit) {
			s.goodbye("Chat session ended. Goodbye!")
			return errExit
		}
		if err != nil {
			return err
		}

		if _, err := s.Chat.AddMessage(ctx, conv.ID, domain.RoleUser, input); err != nil {
			return fmt.Errorf("saving message: %w", err)
		}
		history, err := s.Chat.Messages(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("loading messages: %w", err)
		}

		reply, err := s.reply(ctx, history, tools)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
				return err
			}
			fmt.Fprintln(s.Out, tui.Box(tui.BoxError, "Error", err.Error()))
			continue
		}
		if _, err := s.Chat.AddMessage(ctx, conv.ID, domain.RoleAssistant, reply.Content); err != nil {
			return fmt.Errorf("saving reply: %w", err)
		}
		if _, err := s.Chat.TitleAfterFirstMessage(ctx, conv.ID, s.User.ID, input, len(history)); err != nil {
			s.Log.Warn().Err(err).Str("conversation", conv.ID).Msg("failed to set conversation title")
		}
	}
}

// reply streams the model's answer to Out.
func (s *Session) reply(ctx context.Context, history []domain.Message, tools []string) (domain.ChatResponse, error) {
	fmt.Fprintln(s.Out, tui.Muted("MercuryAI is thinking..."))
	first := true
	resp, err := s.Model.Stream(ctx, domain.ChatRequest{
		System:   chatSystemPrompt,
		Messages: chat.FormatForModel(history),
		Tools:    tools,
	}, func(chunk string) {
		if first {
			fmt.Fprintln(s.Out, "MercuryAI:")
			fmt.Fprintln(s.Out, tui.Rule())
			first = false
		}
		fmt.Fprint(s.Out, chunk)
	})
	if err != nil {
		return domain.ChatResponse{}, err
	}
	if first {
		fmt.Fprintln(s.Out, "MercuryAI:")
		fmt.Fprintln(s.Out, tui.Rule())
	}
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, tui.Rule())
	s.Log.Debug().Str("finish_reason", resp.FinishReason).Int("total_tokens", resp.Usage.TotalTokens).Msg("model reply complete")
	return resp, nil
}

func (s *Session) agentLoop(ctx context.Context, conv domain.Conversation) error {
	for {
		s.Input.SetPrompt("describe> ")
		input, err := s.readInput("Please provide a valid application description.")
		if errors.Is(err, errExit) {
			s.goodbye("Agent session ended. Goodbye!")
			return errExit
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(s.Out, tui.Box(tui.BoxAgent, "Your Description", input))

		if _, err := s.Chat.AddMessage(ctx, conv.ID, domain.RoleUser, input); err != nil {
			return fmt.Errorf("saving message: %w", err)
		}

		fmt.Fprintln(s.Out, tui.Muted("Generating application..."))
		res, err := s.Agent.Generate(ctx, input, s.WorkDir, nil)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
				return err
			}
			msg := fmt.Sprintf("Error generating application: %v", err)
			if _, saveErr := s.Chat.AddMessage(ctx, conv.ID, domain.RoleAssistant, msg); saveErr != nil {
				return fmt.Errorf("saving reply: %w", saveErr)
			}
			fmt.Fprintln(s.Out, tui.Box(tui.BoxError, "Error", msg))
			continue
		}

		summary := res.Summary()
		if _, err := s.Chat.AddMessage(ctx, conv.ID, domain.RoleAssistant, summary); err != nil {
			return fmt.Errorf("saving reply: %w", err)
		}
		var body strings.Builder
		fmt.Fprintf(&body, "Created %s\n\n", res.Dir)
		for _, f := range res.Files {
			fmt.Fprintf(&body, "  %s\n", f)
		}
		if len(res.Commands) > 0 {
			body.WriteString("\nNext steps:\n")
			fmt.Fprintf(&body, "  cd %s\n", res.FolderName)
			for _, c := range res.Commands {
				fmt.Fprintf(&body, "  %s\n", c)
			}
		}
		fmt.Fprintln(s.Out, tui.Box(tui.BoxAssistant, "Application Generated", body.String()))

		again, err := s.confirm("Create another application? [Y/n] ", true)
		if err != nil || !again {
			s.goodbye("Exiting agent mode. Goodbye!")
			return errExit
		}
	}
}

// confirm asks a yes/no question on Input.
func (s *Session) confirm(prompt string, def bool) (bool, error) {
	s.Input.SetPrompt(prompt)
	line, err := s.Input.Readline()
	if err != nil {
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
