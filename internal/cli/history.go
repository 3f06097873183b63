package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"clawpanel/internal/config"
	"clawpanel/internal/history"
)

// NewHistoryCmd creates the history command, which prints the locally
// persisted transcript of a session.
func NewHistoryCmd() *cobra.Command {
	var (
		sessionKey string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the saved transcript of a session",
		Example: `  # Last 20 messages of the main session
  clawpanel history

  # Everything said on a side session
  clawpanel history --session scratch --limit 0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gatewayConfig()
			if err != nil {
				return err
			}

			if sessionKey == "" {
				sessionKey = cfg.Chat.SessionKey
			}
			if sessionKey == "" {
				sessionKey = "main"
			}

			historyPath := cfg.History.Path
			if historyPath == "" {
				historyPath, err = config.DefaultHistoryPath()
				if err != nil {
					return err
				}
			}
			store, err := history.Open(historyPath)
			if err != nil {
				return err
			}
			defer store.Close()

			messages, err := store.List(sessionKey, limit)
			if err != nil {
				return err
			}

			renderTranscript(cmd.OutOrStdout(), sessionKey, messages)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key (reads from config if not specified)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "most recent messages to show, 0 for all")

	return cmd
}

func renderTranscript(w io.Writer, sessionKey string, messages []*history.Message) {
	if len(messages) == 0 {
		fmt.Fprintf(w, "No messages for session %q.\n", sessionKey)
		return
	}

	for _, msg := range messages {
		fmt.Fprintf(w, "[%s] %s: %s\n", msg.CreatedAt.Format("2006-01-02 15:04"), msg.Role, msg.Content)
	}
}
