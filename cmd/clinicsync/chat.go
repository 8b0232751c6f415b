package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"clinicsync/backend"
	"clinicsync/backend/sqlite"
	"clinicsync/internal/chat"
	"clinicsync/internal/cli"
	"clinicsync/internal/config"
	"clinicsync/internal/utils"

	"github.com/spf13/cobra"
)

// newChatCmd creates the chat command group
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send and read direct messages",
		Long: `Direct messages between clinic users.

Messages are stored locally first and sent to the remote backend right
away when it is reachable; otherwise the next sync delivers them.

Examples:
  clinicsync --user amina chat send john "Results for bed 4 are in"
  clinicsync --user amina chat list john
  clinicsync --user amina chat list            # unread messages
  clinicsync chat read 3f2b...
  clinicsync --user amina chat delete 3f2b...`,
	}

	cmd.AddCommand(newChatSendCmd())
	cmd.AddCommand(newChatListCmd())
	cmd.AddCommand(newChatReadCmd())
	cmd.AddCommand(newChatDeleteCmd())

	return cmd
}

// withMessenger opens the app, runs fn and waits for the background
// replications fn started before the process exits
func withMessenger(ctx context.Context, fn func(app *App, m *chat.Messenger) error) error {
	app, err := NewApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	m := chat.NewMessenger(app.store, app.remote, nil)
	defer m.Wait()
	return fn(app, m)
}

func newChatSendCmd() *cobra.Command {
	var attach string
	var replyTo string

	cmd := &cobra.Command{
		Use:               "send <receiver-username> <text>",
		Short:             "Send a message",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: cli.UsernameCompletion(localUsernames),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessenger(cmd.Context(), func(app *App, m *chat.Messenger) error {
				ctx := cmd.Context()
				sender, err := app.CurrentUser()
				if err != nil {
					return err
				}
				receiver, err := app.FindUser(ctx, args[0])
				if err != nil {
					return err
				}

				var opts chat.SendOptions
				if attach != "" {
					path, err := utils.ResolveFile(attach)
					if err != nil {
						return fmt.Errorf("attachment: %w", err)
					}
					opts.Attachment = &path
				}
				if replyTo != "" {
					opts.ReplyToID = &replyTo
				}

				msg, err := m.SendMessage(ctx, sender.ID, receiver.ID, args[1], opts)
				if err != nil {
					return err
				}
				fmt.Printf("✓ Sent to %s (%s)\n", receiver.Username, msg.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&attach, "attach", "", "Path of a file to attach")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "Id of the message being answered")
	return cmd
}

func newChatListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:               "list [other-username]",
		Short:             "Show a conversation, or your unread messages",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: cli.UsernameCompletion(localUsernames),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !utils.ValidFormat(output) {
				return fmt.Errorf("invalid output format %q (use text, json or yaml)", output)
			}
			return withMessenger(cmd.Context(), func(app *App, m *chat.Messenger) error {
				ctx := cmd.Context()
				me, err := app.CurrentUser()
				if err != nil {
					return err
				}

				var msgs []backend.ChatMessage
				if len(args) == 1 {
					other, err := app.FindUser(ctx, args[0])
					if err != nil {
						return err
					}
					msgs, err = m.Conversation(ctx, me.ID, other.ID)
					if err != nil {
						return err
					}
				} else {
					msgs, err = m.Unread(ctx, me.ID)
					if err != nil {
						return err
					}
				}

				if output != utils.FormatText {
					return utils.WriteFormatted(os.Stdout, output, msgs)
				}
				names := userNames(ctx, app)
				printMessages(os.Stdout, msgs, me.ID, names)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", utils.FormatText, "Output format: text, json or yaml")
	return cmd
}

func newChatReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <message-id>",
		Short: "Mark a message as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessenger(cmd.Context(), func(app *App, m *chat.Messenger) error {
				msg, err := m.MarkRead(cmd.Context(), args[0])
				if errors.Is(err, chat.ErrMessageNotFound) {
					return utils.WrapWithSuggestion(err, "Run 'clinicsync sync' to fetch new messages")
				}
				if err != nil {
					return err
				}
				fmt.Printf("✓ Marked %s as read\n", msg.ID)
				return nil
			})
		},
	}
}

func newChatDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Delete a message you sent or received",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMessenger(cmd.Context(), func(app *App, m *chat.Messenger) error {
				me, err := app.CurrentUser()
				if err != nil {
					return err
				}
				if err := m.DeleteMessage(cmd.Context(), args[0], me.ID); err != nil {
					return err
				}
				fmt.Printf("✓ Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

// userNames maps user ids to usernames for display.
// A failed lookup leaves ids unresolved.
func userNames(ctx context.Context, app *App) map[string]string {
	names := make(map[string]string)
	rows, err := app.store.QueryAll(ctx, "SELECT id, username FROM users")
	if err != nil {
		utils.Debugf("failed to load usernames: %v", err)
		return names
	}
	for _, r := range rows {
		names[r.ID()] = r.String("username")
	}
	return names
}

func printMessages(w io.Writer, msgs []backend.ChatMessage, me string, names map[string]string) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages")
		return
	}
	for _, msg := range msgs {
		from := names[msg.SenderID]
		if from == "" {
			from = msg.SenderID
		}
		marker := " "
		if msg.ReceiverID == me && msg.Status == backend.StatusUnread {
			marker = "•"
		}
		stamp := msg.CreatedAt
		if t, ok := backend.ParseStamp(msg.CreatedAt); ok {
			stamp = t.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %s  %-12s %s\n", marker, stamp, from, msg.MessageText)
		if msg.Attachment != nil && *msg.Attachment != "" {
			fmt.Fprintf(w, "    📎 %s\n", *msg.Attachment)
		}
		fmt.Fprintf(w, "    id %s\n", msg.ID)
	}
}

// localUsernames lists usernames from the local database for shell completion
func localUsernames() ([]string, error) {
	dbPath, err := config.GetConfig().DatabasePath()
	if err != nil {
		return nil, err
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rows, err := store.QueryAll(context.Background(), "SELECT username FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.String("username"))
	}
	return names, nil
}
