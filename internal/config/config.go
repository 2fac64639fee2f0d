// Package config loads the JSON configuration file, applying defaults,
// .env values and environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// DelayRange is an inclusive delay range in milliseconds.
type DelayRange struct {
	MinMS int `json:"min_ms"`
	MaxMS int `json:"max_ms"`
}

// Bounds returns the range as durations.
func (r DelayRange) Bounds() (time.Duration, time.Duration) {
	return time.Duration(r.MinMS) * time.Millisecond, time.Duration(r.MaxMS) * time.Millisecond
}

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	LLM           struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	Telegram struct {
		Token             string   `json:"token"`
		BotUsername       string   `json:"bot_username"`
		Mode              string   `json:"mode"`
		WebhookURL        string   `json:"webhook_url"`
		WebhookSecret     string   `json:"webhook_secret"`
		StickerSets       []string `json:"sticker_sets"`
		RequestsPerSecond float64  `json:"requests_per_second"`
	} `json:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Google struct {
		APIKey         string `json:"api_key"`
		SearchEngineID string `json:"search_engine_id"`
	} `json:"google"`
	Tenor struct {
		APIKey string `json:"api_key"`
	} `json:"tenor"`
	Media struct {
		Enabled            bool   `json:"enabled"`
		VisionModel        string `json:"vision_model"`
		TranscriptionModel string `json:"transcription_model"`
		ImagePrompt        string `json:"image_prompt"`
		TimeoutSeconds     int    `json:"timeout_seconds"`
	} `json:"media"`
	State struct {
		Backend     string `json:"backend"`
		RedisAddr   string `json:"redis_addr"`
		RedisPrefix string `json:"redis_prefix"`
	} `json:"state"`
	Reply struct {
		StalenessSeconds         int        `json:"staleness_seconds"`
		BusinessStalenessSeconds int        `json:"business_staleness_seconds"`
		IdleDelay                DelayRange `json:"idle_delay"`
		ReadDelay                DelayRange `json:"read_delay"`
		TypingDelay              DelayRange `json:"typing_delay"`
		Aggressive               bool       `json:"aggressive"`
		ResetCommand             string     `json:"reset_command"`
		DemoPath                 string     `json:"demo_path"`
	} `json:"reply"`
	Scheduler struct {
		InventoryRefresh string `json:"inventory_refresh"`
	} `json:"scheduler"`
}

// Defaults returns the configuration used when no file overrides a value.
func Defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".ohime"),
		LogLevel:      "info",
		MaxConcurrent: 8,
	}
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.9
	cfg.LLM.MaxContextTokens = 16000
	cfg.LLM.OutputReserve = 1024
	cfg.Telegram.Mode = "polling"
	cfg.Telegram.StickerSets = []string{}
	cfg.Telegram.RequestsPerSecond = 25
	cfg.Media.Enabled = true
	cfg.Media.TranscriptionModel = "whisper-1"
	cfg.Media.ImagePrompt = "Describe this image in one or two sentences."
	cfg.Media.TimeoutSeconds = 30
	cfg.HTTP.Listen = "127.0.0.1:8080"
	cfg.State.Backend = "sqlite"
	cfg.State.RedisAddr = "localhost:6379"
	cfg.State.RedisPrefix = "ohime"
	cfg.Reply.StalenessSeconds = 300
	cfg.Reply.BusinessStalenessSeconds = 900
	cfg.Reply.IdleDelay = DelayRange{MinMS: 60_000, MaxMS: 600_000}
	cfg.Reply.ReadDelay = DelayRange{MinMS: 5_000, MaxMS: 15_000}
	cfg.Reply.TypingDelay = DelayRange{MinMS: 2_000, MaxMS: 5_000}
	cfg.Reply.ResetCommand = "!restart"
	cfg.Scheduler.InventoryRefresh = "0 */6 * * *"
	return cfg
}

// Load reads the config at path, writing defaults there if it does not
// exist. A .env file in the working directory is loaded before environment
// overrides are applied; variables already set in the environment win.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides maps environment variables to the fields they set.
var envOverrides = []struct {
	name  string
	field func(*Config) *string
}{
	{"OPENAI_API_KEY", func(c *Config) *string { return &c.LLM.APIKey }},
	{"OPENAI_BASE_URL", func(c *Config) *string { return &c.LLM.BaseURL }},
	{"TELEGRAM_BOT_TOKEN", func(c *Config) *string { return &c.Telegram.Token }},
	{"GOOGLE_API_KEY", func(c *Config) *string { return &c.Google.APIKey }},
	{"GOOGLE_SEARCH_ENGINE_ID", func(c *Config) *string { return &c.Google.SearchEngineID }},
	{"TENOR_API_KEY", func(c *Config) *string { return &c.Tenor.APIKey }},
	{"REDIS_ADDR", func(c *Config) *string { return &c.State.RedisAddr }},
}

func applyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.name); v != "" {
			*o.field(cfg) = v
		}
	}
}

// normalize fills enum fields a hand-written file may leave empty.
func (c *Config) normalize() {
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.State.Backend == "" {
		c.State.Backend = "sqlite"
	}
	if c.State.RedisPrefix == "" {
		c.State.RedisPrefix = "ohime"
	}
}

// Validate checks values that would otherwise fail deep inside startup.
func (c *Config) Validate() error {
	switch c.Telegram.Mode {
	case "polling", "webhook":
	default:
		return fmt.Errorf("telegram.mode must be polling or webhook, got %q", c.Telegram.Mode)
	}
	switch c.State.Backend {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("state.backend must be sqlite or redis, got %q", c.State.Backend)
	}
	for name, r := range map[string]DelayRange{
		"reply.idle_delay":   c.Reply.IdleDelay,
		"reply.read_delay":   c.Reply.ReadDelay,
		"reply.typing_delay": c.Reply.TypingDelay,
	} {
		if r.MinMS < 0 || r.MaxMS < r.MinMS {
			return fmt.Errorf("%s: need 0 <= min_ms <= max_ms, got %d..%d", name, r.MinMS, r.MaxMS)
		}
	}
	if c.Media.TimeoutSeconds < 0 {
		return fmt.Errorf("media.timeout_seconds must not be negative, got %d", c.Media.TimeoutSeconds)
	}
	return nil
}

// Secrets returns every configured credential, for redaction.
func (c *Config) Secrets() []string {
	var out []string
	for _, f := range secretFields {
		if s := f.value(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
