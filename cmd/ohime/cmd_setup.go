package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/ohime/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("ohime setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.BaseURL = ask(scanner, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = ask(scanner, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = ask(scanner, "LLM model name", cfg.LLM.Model)
		if n, err := strconv.Atoi(ask(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))); err == nil {
			cfg.LLM.MaxTokens = n
		}

		cfg.Telegram.Token = ask(scanner, "Telegram bot token", cfg.Telegram.Token)
		cfg.Telegram.Mode = ask(scanner, "Update mode (polling/webhook)", cfg.Telegram.Mode)
		if cfg.Telegram.Mode == "webhook" {
			cfg.Telegram.WebhookURL = ask(scanner, "Public webhook base URL", cfg.Telegram.WebhookURL)
			cfg.Telegram.WebhookSecret = ask(scanner, "Webhook secret path segment", cfg.Telegram.WebhookSecret)
		}
		sets := ask(scanner, "Sticker sets (comma separated)", strings.Join(cfg.Telegram.StickerSets, ","))
		cfg.Telegram.StickerSets = splitList(sets)

		cfg.Google.APIKey = ask(scanner, "Google API key (optional)", cfg.Google.APIKey)
		cfg.Google.SearchEngineID = ask(scanner, "Google search engine id (optional)", cfg.Google.SearchEngineID)
		cfg.Tenor.APIKey = ask(scanner, "Tenor API key (optional)", cfg.Tenor.APIKey)

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// ask displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
