package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/chat"
	"github.com/MegaGrindStone/chat-web-ui/internal/models"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

type sendOptions struct {
	chatID    string
	accountID string
	markdown  bool
}

func newSendCmd(a *app) *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and stream the reply to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.send(ctx, cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.chatID, "chat", "", "chat to send to; a new chat is created when empty")
	cmd.Flags().StringVar(&opts.accountID, "account", "", "account id; defaults to the account logged in on the web UI")
	cmd.Flags().BoolVar(&opts.markdown, "markdown", false, "render the final reply as markdown instead of streaming raw text")

	return cmd
}

// lastResponder is the part of the local store the last command reads.
type lastResponder interface {
	LastResponse() (models.ResponseBackup, bool, error)
}

func newLastCmd(a *app) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "last",
		Short: "Print the last reply kept locally",
		Long: `Every completed reply is also kept on disk. last prints the most recent one, which helps
when the backend failed to store it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local, err := a.localStore()
			if err != nil {
				return err
			}
			defer local.Close()
			return printLast(cmd.OutOrStdout(), local, markdown)
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "render the reply as markdown")

	return cmd
}

func printLast(out io.Writer, local lastResponder, markdown bool) error {
	backup, found, err := local.LastResponse()
	if err != nil {
		return fmt.Errorf("failed to read the last reply: %w", err)
	}
	if !found {
		fmt.Fprintln(out, mutedStyle.Render("no reply kept"))
		return nil
	}

	fmt.Fprintln(out, titleStyle.Render("chat "+backup.ChatID)+
		mutedStyle.Render("  "+backup.SavedAt.Format(time.DateTime)))
	if markdown {
		return printMarkdown(out, backup.Response)
	}
	fmt.Fprintln(out, backup.Response)
	return nil
}

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the backend offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listModels(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) send(ctx context.Context, out io.Writer, message string, opts sendOptions) error {
	client := a.client()

	accountID, err := a.resolveAccount(opts.accountID)
	if err != nil {
		return err
	}

	chatID := opts.chatID
	if chatID == "" {
		res := client.CreateChat(ctx, models.ChatCreate{AccountID: accountID, Title: "New Chat"})
		if err := res.Err(); err != nil {
			return fmt.Errorf("failed to create chat: %w", err)
		}
		chatID = res.Data.ID
		fmt.Fprintln(out, mutedStyle.Render("chat "+chatID))
	}

	streamer, err := a.cfg.Stream.streamer(a.cfg, client, a.logger)
	if err != nil {
		return fmt.Errorf("error creating streamer: %w", err)
	}

	session := chat.NewSession(accountID, chatID, streamer, client, chat.WithLogger(a.logger))

	var streamed string
	cb := chat.Callbacks{
		OnSummary: func(sum models.Summary) {
			fmt.Fprintln(out, titleStyle.Render(sum.Title))
			for _, b := range sum.Bullets {
				fmt.Fprintln(out, mutedStyle.Render("  • "+b))
			}
		},
		OnError: func(msg string) {
			fmt.Fprintln(out, errorStyle.Render(msg))
		},
	}
	if !opts.markdown {
		cb.OnChunk = func(acc string) {
			fmt.Fprint(out, strings.TrimPrefix(acc, streamed))
			streamed = acc
		}
		cb.OnComplete = func(final string) {
			// The complete event may carry text the chunks did not.
			if rest, ok := strings.CutPrefix(final, streamed); ok {
				fmt.Fprint(out, rest)
			}
			fmt.Fprintln(out)
		}
	} else {
		cb.OnComplete = func(final string) {
			if err := printMarkdown(out, final); err != nil {
				a.logger.Warn("Failed to render markdown", slog.String(errLoggerKey, err.Error()))
				fmt.Fprintln(out, final)
			}
		}
	}

	res, err := session.Send(ctx, message, chat.TempIDPrefix+uuid.NewString(), cb)
	if err != nil {
		if errors.Is(err, chat.ErrAborted) {
			fmt.Fprintln(out)
			return errors.New("aborted")
		}
		return err
	}
	if !res.Saved {
		fmt.Fprintln(out, errorStyle.Render("reply was not saved to the backend"))
	}
	return nil
}

// resolveAccount returns the flag value or, when empty, the account remembered by the web UI.
func (a *app) resolveAccount(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	local, err := a.localStore()
	if err != nil {
		return "", fmt.Errorf("no --account given and the local store is unavailable: %w", err)
	}
	defer local.Close()

	accountID, err := local.RememberedAccount()
	if err != nil {
		return "", err
	}
	if accountID == "" {
		return "", errors.New("no --account given and nobody is logged in on the web UI")
	}
	return accountID, nil
}

func printMarkdown(out io.Writer, content string) error {
	parsed := models.ParseThinking(content)
	if parsed.HasThinking {
		fmt.Fprintln(out, thinkingStyle.Render(parsed.ThinkingContent))
		fmt.Fprintln(out)
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	rendered, err := r.Render(parsed.DisplayContent)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}

func (a *app) listModels(ctx context.Context, out io.Writer) error {
	res := a.client().Models(ctx)
	if err := res.Err(); err != nil {
		if backend.IsNetworkError(err) {
			return fmt.Errorf("backend unreachable at %s: %w", a.cfg.BackendURL, err)
		}
		return fmt.Errorf("failed to list models: %w", err)
	}

	if len(res.Data.Models) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no models"))
		return nil
	}
	for _, m := range res.Data.Models {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		line := titleStyle.Render(name)
		if m.ContextLength > 0 {
			line += mutedStyle.Render(fmt.Sprintf("  %d ctx", m.ContextLength))
		}
		fmt.Fprintln(out, line)
		if m.Description != "" {
			fmt.Fprintln(out, "  "+m.Description)
		}
	}
	return nil
}
