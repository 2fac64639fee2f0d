package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/ohime/internal/prompt"
)

func init() {
	rootCmd.AddCommand(gifCmd)
	gifCmd.AddCommand(gifListCmd, gifAddCmd)
}

var gifCmd = &cobra.Command{
	Use:   "gif",
	Short: "Manage the stored gif inventory",
}

var gifListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored gifs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		gifs, err := db.Gifs().List(context.Background())
		if err != nil {
			return err
		}
		if len(gifs) == 0 {
			fmt.Println("No gifs stored.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDESCRIPTION\tFILE ID")
		for _, g := range gifs {
			fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Description, g.FileID)
		}
		return w.Flush()
	},
}

var gifAddCmd = &cobra.Command{
	Use:   "add <file_id> <description>",
	Short: "Store a gif by Telegram file id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		g, err := db.Gifs().Add(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if err := prompt.NewInventory(db.Prompts(), db.Gifs(), nil).RefreshGifs(ctx); err != nil {
			return fmt.Errorf("refresh gif inventory: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Gif %d stored.\n", g.ID)
		return nil
	},
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
