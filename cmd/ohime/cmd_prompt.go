package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/ohime/internal/prompt"
)

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.AddCommand(promptListCmd, promptSetCmd, promptDeleteCmd, promptRenderCmd)
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage stored system prompt entries",
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored prompt entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.Prompts().Entries(context.Background())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No prompt entries.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLE\tCONTENT")
		for _, e := range entries {
			content := strings.ReplaceAll(e.Content, "\n", " ")
			if r := []rune(content); len(r) > 80 {
				content = string(r[:80]) + "…"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.Role, content)
		}
		return w.Flush()
	},
}

var promptSetCmd = &cobra.Command{
	Use:   "set <id> <role> <content>",
	Short: "Create or replace a prompt entry",
	Long:  "Role is system or user. Content \"-\" reads the entry from stdin.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, role, content := args[0], args[1], args[2]
		if role != "system" && role != "user" {
			return fmt.Errorf("role must be system or user, got %q", role)
		}
		if content == "-" {
			data, err := readAll(os.Stdin)
			if err != nil {
				return err
			}
			content = data
		}

		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Prompts().Upsert(context.Background(), id, role, content); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Prompt %s saved.\n", id)
		return nil
	},
}

var promptDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a prompt entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Prompts().Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Prompt %s deleted.\n", args[0])
		return nil
	},
}

var promptRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the system prompt as the model will see it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		demo, err := prompt.LoadDemo(cfg.Reply.DemoPath)
		if err != nil {
			return err
		}
		msgs, err := prompt.NewComposer(db.Prompts(), demo, cfg.Reply.Aggressive).SystemPrompt(context.Background())
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Fprintf(os.Stdout, "[%s]\n%s\n\n", m.Role, m.Content)
		}
		return nil
	},
}
