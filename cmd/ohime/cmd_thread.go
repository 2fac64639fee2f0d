package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/ohime/internal/types"
)

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadShowCmd, threadClearCmd)
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Inspect and clear conversation threads",
}

func parseChatID(s string) (types.ChatID, error) {
	id, err := types.ParseChatID(s)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", s)
	}
	return id, nil
}

var threadShowCmd = &cobra.Command{
	Use:   "show <chat_id>",
	Short: "Print the stored thread of a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[0])
		if err != nil {
			return err
		}
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		msgs, err := db.Threads().Messages(context.Background(), chatID)
		if err != nil {
			return fmt.Errorf("load thread: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("Thread is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tROLE\tCONTENT")
		for _, m := range msgs {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				m.Role,
				strings.ReplaceAll(m.Content, "\n", " "),
			)
		}
		return w.Flush()
	},
}

var threadClearCmd = &cobra.Command{
	Use:   "clear <chat_id>",
	Short: "Delete a chat's thread, continuation state and pending reply",
	Long:  "Clears stored data directly. While the daemon runs, prefer DELETE /api/threads/{chat_id} so in-memory state is dropped too.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, err := parseChatID(args[0])
		if err != nil {
			return err
		}
		cfg := loadConfig()
		if pid, err := readPID(cfg.DataDir); err == nil {
			fmt.Fprintf(os.Stderr, "warning: daemon is running (PID %d); its cached state for this chat is not cleared\n", pid)
		}

		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		store, closeStore, err := conversationStore(ctx, cfg, db)
		if err != nil {
			return fmt.Errorf("open conversation store: %w", err)
		}
		defer closeStore()

		if err := db.Threads().Clear(ctx, chatID); err != nil {
			return fmt.Errorf("clear thread: %w", err)
		}
		if err := store.DeleteAlarm(ctx, chatID); err != nil {
			return fmt.Errorf("delete alarm: %w", err)
		}
		if err := store.DeleteState(ctx, chatID); err != nil {
			return fmt.Errorf("delete state: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Chat %d cleared.\n", chatID)
		return nil
	},
}
