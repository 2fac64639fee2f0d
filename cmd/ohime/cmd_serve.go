package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/ohime/internal/actor"
	"github.com/user/ohime/internal/completion"
	"github.com/user/ohime/internal/config"
	"github.com/user/ohime/internal/dispatch"
	"github.com/user/ohime/internal/gateway"
	"github.com/user/ohime/internal/metrics"
	"github.com/user/ohime/internal/plugin"
	"github.com/user/ohime/internal/prompt"
	"github.com/user/ohime/internal/scheduler"
	"github.com/user/ohime/internal/state"
	"github.com/user/ohime/internal/sticker"
	"github.com/user/ohime/internal/telegram"
	"github.com/user/ohime/internal/types"
	"github.com/user/ohime/internal/webhook"
	"github.com/user/ohime/pkg/llm"
	"github.com/user/ohime/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ohime daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "ohime.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// openDB opens the sqlite database under the data directory.
func openDB(cfg *config.Config) (*state.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := state.Open(filepath.Join(cfg.DataDir, "ohime.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// conversationStore returns the configured backend for actor state and
// alarms. The returned close func is never nil.
func conversationStore(ctx context.Context, cfg *config.Config, db *state.DB) (types.ConversationStore, func() error, error) {
	if cfg.State.Backend != "redis" {
		return db.Conversations(), func() error { return nil }, nil
	}
	rs, err := state.NewRedisConversationStore(ctx, cfg.State.RedisAddr, cfg.State.RedisPrefix)
	if err != nil {
		return nil, nil, err
	}
	return rs, rs.Close, nil
}

func buildPlugins(cfg *config.Config, sender plugin.Sender) *plugin.Chain {
	var plugins []plugin.Plugin
	if cfg.Google.APIKey != "" && cfg.Google.SearchEngineID != "" {
		plugins = append(plugins, plugin.NewImageSearch(cfg.Google.APIKey, cfg.Google.SearchEngineID, sender, slog.Default()))
	}
	if cfg.Google.APIKey != "" {
		plugins = append(plugins, plugin.NewVideoSearch(cfg.Google.APIKey, sender))
	}
	if cfg.Tenor.APIKey != "" {
		plugins = append(plugins, plugin.NewGifSearch(cfg.Tenor.APIKey, sender))
	}
	return plugin.NewChain(plugins...)
}

func replyPolicy(cfg *config.Config) actor.Policy {
	rng := func(r config.DelayRange) actor.Range {
		lo, hi := r.Bounds()
		return actor.Range{Min: lo, Max: hi}
	}
	return actor.Policy{
		Idle:      rng(cfg.Reply.IdleDelay),
		Read:      rng(cfg.Reply.ReadDelay),
		Typing:    rng(cfg.Reply.TypingDelay),
		Staleness: time.Duration(cfg.Reply.BusinessStalenessSeconds) * time.Second,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is not set; run 'ohime setup' or set TELEGRAM_BOT_TOKEN")
	}
	if cfg.Telegram.Mode == "webhook" && (cfg.Telegram.WebhookURL == "" || cfg.Telegram.WebhookSecret == "") {
		return fmt.Errorf("webhook mode needs telegram.webhook_url and telegram.webhook_secret")
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := conversationStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer closeStore()

	// Prompt
	demo, err := prompt.LoadDemo(cfg.Reply.DemoPath)
	if err != nil {
		return fmt.Errorf("load demo: %w", err)
	}
	composer := prompt.NewComposer(db.Prompts(), demo, cfg.Reply.Aggressive)
	budget, err := prompt.NewBudget(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create token budget: %w", err)
	}

	// LLM
	m := metrics.New()
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,

		VisionModel:        cfg.Media.VisionModel,
		TranscriptionModel: cfg.Media.TranscriptionModel,
	})
	completer := completion.NewClient(provider, composer,
		completion.WithFit(budget.Fit),
		completion.WithObserver(m),
		completion.WithLogger(slog.Default()),
	)

	// Telegram
	tg, err := telegram.NewClient(ctx, cfg.Telegram.Token, telegram.WithRateLimit(cfg.Telegram.RequestsPerSecond))
	if err != nil {
		return fmt.Errorf("create telegram client: %w", err)
	}
	username := cfg.Telegram.BotUsername
	if username == "" {
		username = tg.Username()
	}
	stickers := sticker.NewResolver(tg, cfg.Telegram.StickerSets)
	inventory := prompt.NewInventory(db.Prompts(), db.Gifs(), stickers)
	plugins := buildPlugins(cfg, tg)
	reporter := telegram.NewReporter(tg, cfg.Secrets(), slog.Default())
	var media telegram.MediaDecoder
	if cfg.Media.Enabled {
		opts := []telegram.DecoderOption{
			telegram.WithImagePrompt(cfg.Media.ImagePrompt),
			telegram.WithDecoderLogger(slog.Default()),
		}
		if cfg.Media.TimeoutSeconds > 0 {
			opts = append(opts, telegram.WithDecodeTimeout(time.Duration(cfg.Media.TimeoutSeconds)*time.Second))
		}
		media = telegram.NewDecoder(tg, provider, provider, opts...)
	}

	// Conversations
	conversations := actor.New(actor.Deps{
		Threads:    db.Threads(),
		Store:      store,
		Prompts:    composer,
		Completer:  completer,
		Dispatcher: dispatch.New(tg, stickers, db.Gifs(), plugins, slog.Default()),
		Presence:   tg,
		Errors:     reporter,
		Metrics:    m,
		Policy:     replyPolicy(cfg),
		Logger:     slog.Default(),
	}, actor.WithResetCommand(cfg.Reply.ResetCommand))

	gw := gateway.New(conversations, slog.Default(), int64(cfg.MaxConcurrent))
	conversations.SetFireHandler(gw.Fire)
	gw.Start(ctx)
	defer gw.Stop()
	defer conversations.Stop()

	recovered, err := conversations.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover alarms: %w", err)
	}

	adapter := telegram.NewAdapter(telegram.AdapterDeps{
		Messenger:    tg,
		Handler:      gw,
		Threads:      db.Threads(),
		Plugins:      plugins,
		Gifs:         db.Gifs(),
		Inventory:    inventory,
		Media:        media,
		Reporter:     reporter,
		Metrics:      m,
		Logger:       slog.Default(),
		Username:     username,
		Staleness:    time.Duration(cfg.Reply.StalenessSeconds) * time.Second,
		ResetCommand: cfg.Reply.ResetCommand,
	})

	// Scheduler
	sched := scheduler.New(slog.Default(), scheduler.Job{
		Name:     "inventory_refresh",
		Schedule: cfg.Scheduler.InventoryRefresh,
		Run: func(ctx context.Context) error {
			if err := stickers.Refresh(ctx); err != nil {
				return err
			}
			return inventory.Refresh(ctx)
		},
	})
	if failed := sched.RunNow(); failed > 0 {
		slog.Warn("initial inventory refresh failed", "failed_jobs", failed)
	}
	sched.Start()
	defer sched.Stop()

	slog.Info("ohime started",
		"data_dir", cfg.DataDir,
		"bot", username,
		"mode", cfg.Telegram.Mode,
		"state_backend", cfg.State.Backend,
		"max_concurrent", cfg.MaxConcurrent,
		"llm_model", cfg.LLM.Model,
		"plugins", strings.Join(plugins.Names(), ","),
		"recovered_alarms", recovered,
		"pid_file", pidPath,
	)

	// HTTP server
	if cfg.HTTP.Enabled || cfg.Telegram.Mode == "webhook" {
		srv := webhook.NewServer(webhook.Deps{
			Updates: adapter,
			Secret:  cfg.Telegram.WebhookSecret,
			Threads: db.Threads(),
			Resets:  gw,
			Prompts: composer,
			Metrics: m.Handler(),
		})
		httpServer := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	// Updates
	switch cfg.Telegram.Mode {
	case "webhook":
		url := strings.TrimSuffix(cfg.Telegram.WebhookURL, "/") + "/telegram/" + cfg.Telegram.WebhookSecret
		if err := tg.SetWebhook(ctx, url); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		slog.Info("telegram webhook registered")
	default:
		if err := tg.DeleteWebhook(ctx); err != nil {
			slog.Warn("failed to delete webhook", "error", err)
		}
		go adapter.Poll(ctx, tg)
		slog.Info("telegram polling started")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Pending alarms are durable; the new process recovers them.
			conversations.Stop()
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				if _, err := conversations.Recover(ctx); err != nil {
					slog.Error("failed to re-arm alarms", "error", err)
				}
				continue
			}
		}
		slog.Info("shutting down", "signal", sig)
		cancel()
		return nil
	}
}
