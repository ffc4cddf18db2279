package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/memory"
)

// NewHistoryCmd constructs the `docqa history` command, which shows or
// clears a session's conversation history.
func NewHistoryCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "Show or clear a session's conversation history",
		Long: `Show the full conversation history of a session, oldest turn first.

With --clear, delete the session's history instead. Clearing a session
nobody has written to is a no-op.

Examples:
  docqa history ops
  docqa history --clear ops`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session := args[0]

			dbPath := getEnvOrDefault("DOCQA_HISTORY_DB", "")
			if dbPath == "" {
				var err error
				dbPath, err = memory.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
			}

			store, err := memory.Open(dbPath)
			if err != nil {
				return fmt.Errorf("history: failed to open store: %w", err)
			}
			defer store.Close()

			if clear {
				if err := store.Clear(ctx, session); err != nil {
					return fmt.Errorf("history: %w", err)
				}
				fmt.Printf("session %q cleared\n", session)
				return nil
			}

			msgs, err := store.History(ctx, session)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(msgs) == 0 {
				fmt.Printf("session %q has no history\n", session)
				return nil
			}

			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"), m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Delete the session's history instead of showing it")

	return cmd
}
