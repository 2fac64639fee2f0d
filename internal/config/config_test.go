package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := Defaults()
	original.DataDir = "/tmp/ohime-test"
	original.LogLevel = "debug"
	original.Telegram.Mode = "webhook"
	original.Telegram.StickerSets = []string{"cats", "dogs"}
	original.State.Backend = "redis"
	original.Reply.IdleDelay = DelayRange{MinMS: 1000, MaxMS: 2000}
	original.Reply.Aggressive = true
	original.Scheduler.InventoryRefresh = "@hourly"
	writeTestConfig(t, path, original)

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DataDir != original.DataDir || loaded.LogLevel != "debug" {
		t.Errorf("top level mismatch: %q %q", loaded.DataDir, loaded.LogLevel)
	}
	if loaded.Telegram.Mode != "webhook" || len(loaded.Telegram.StickerSets) != 2 {
		t.Errorf("telegram mismatch: %+v", loaded.Telegram)
	}
	if loaded.State.Backend != "redis" {
		t.Errorf("backend = %q", loaded.State.Backend)
	}
	if loaded.Reply.IdleDelay != original.Reply.IdleDelay || !loaded.Reply.Aggressive {
		t.Errorf("reply mismatch: %+v", loaded.Reply)
	}
	if loaded.Scheduler.InventoryRefresh != "@hourly" {
		t.Errorf("schedule = %q", loaded.Scheduler.InventoryRefresh)
	}
}

func TestSaveCreatesDirectoryWithoutTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	writeTestConfig(t, path, Defaults())

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
	data, _ := os.ReadFile(path)
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestListValues(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456:secret-token"

	plain, err := ListValues(cfg, false)
	if err != nil {
		t.Fatal(err)
	}
	if plain["telegram.token"] != "123456:secret-token" {
		t.Errorf("unmasked token = %v", plain["telegram.token"])
	}
	if plain["reply.read_delay.min_ms"] != 5000.0 {
		t.Errorf("reply.read_delay.min_ms = %v", plain["reply.read_delay.min_ms"])
	}

	masked, err := ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if masked["telegram.token"] != "***oken" {
		t.Errorf("masked token = %v", masked["telegram.token"])
	}
	if masked["llm.model"] != "gpt-4o-mini" {
		t.Errorf("non-secret changed: %v", masked["llm.model"])
	}
}

func TestGetValue(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	v, err := GetValue(path, "reply.reset_command")
	if err != nil {
		t.Fatal(err)
	}
	if v != "!restart" {
		t.Errorf("reply.reset_command = %v", v)
	}

	_, err = GetValue(path, "reply.nonexistent")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("expected unknown key error, got %v", err)
	}

	if _, err := GetValue(filepath.Join(t.TempDir(), "missing.json"), "log_level"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSetValueParsesTypes(t *testing.T) {
	tests := []struct {
		key, raw string
		want     any
	}{
		{"log_level", "debug", "debug"},
		{"max_concurrent", "16", 16.0},
		{"llm.temperature", "0.3", 0.3},
		{"reply.aggressive", "true", true},
		{"reply.typing_delay.max_ms", "9000", 9000.0},
		{"custom.setting", "value", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			path := tempConfigPath(t)
			writeTestConfig(t, path, Defaults())

			if err := SetValue(path, tt.key, tt.raw); err != nil {
				t.Fatalf("SetValue: %v", err)
			}
			v, err := GetValue(path, tt.key)
			if err != nil {
				t.Fatal(err)
			}
			if v != tt.want {
				t.Errorf("%s = %#v, want %#v", tt.key, v, tt.want)
			}
			if other, _ := GetValue(path, "llm.provider"); other != "openai" {
				t.Errorf("unrelated key changed: llm.provider = %v", other)
			}
		})
	}
}

func TestSetValueMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	if err := SetValue(path, "log_level", "debug"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.Mode != "polling" || cfg.State.Backend != "sqlite" {
		t.Errorf("unexpected defaults: mode=%q backend=%q", cfg.Telegram.Mode, cfg.State.Backend)
	}
	if cfg.Reply.ResetCommand != "!restart" {
		t.Errorf("expected default reset command, got %q", cfg.Reply.ResetCommand)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written to %s: %v", path, err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("TENOR_API_KEY", "env-tenor")
	t.Setenv("GOOGLE_SEARCH_ENGINE_ID", "env-cx")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tenor.APIKey != "env-tenor" || cfg.Google.SearchEngineID != "env-cx" || cfg.State.RedisAddr != "redis:6380" {
		t.Errorf("env overrides not applied: %+v %+v %+v", cfg.Tenor, cfg.Google, cfg.State)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := tempConfigPath(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GOOGLE_API_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("GOOGLE_API_KEY", "")
	os.Unsetenv("GOOGLE_API_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Google.APIKey != "from-dotenv" {
		t.Errorf("expected key from .env, got %q", cfg.Google.APIKey)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	path := tempConfigPath(t)
	cfg := Defaults()
	cfg.Telegram.Mode = "carrier-pigeon"
	writeTestConfig(t, path, cfg)

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid telegram.mode")
	}
}

func TestValidate_DelayRanges(t *testing.T) {
	cfg := Defaults()
	cfg.Reply.TypingDelay = DelayRange{MinMS: 5000, MaxMS: 1000}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for inverted delay range")
	}

	cfg = Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	lo, hi := cfg.Reply.ReadDelay.Bounds()
	if lo != 5*time.Second || hi != 15*time.Second {
		t.Errorf("unexpected read delay bounds %v..%v", lo, hi)
	}
}

func TestMediaDefaults(t *testing.T) {
	cfg := Defaults()
	if !cfg.Media.Enabled || cfg.Media.TranscriptionModel != "whisper-1" || cfg.Media.TimeoutSeconds != 30 {
		t.Errorf("unexpected media defaults: %+v", cfg.Media)
	}
	cfg.Media.TimeoutSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative media timeout")
	}
}

func TestSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.APIKey = "sk-1"
	cfg.Telegram.Token = "tg-1"
	secrets := cfg.Secrets()
	if len(secrets) != 2 || secrets[0] != "sk-1" || secrets[1] != "tg-1" {
		t.Errorf("unexpected secrets: %v", secrets)
	}
}

func TestSetValue_KeepsStringType(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	if err := SetValue(path, "tenor.api_key", "12345"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	v, err := GetValue(path, "tenor.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if v != "12345" {
		t.Errorf("expected string 12345, got %#v", v)
	}

	if err := SetValue(path, "telegram.sticker_sets", `["a","b"]`); err != nil {
		t.Fatalf("SetValue list failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Telegram.StickerSets) != 2 {
		t.Errorf("expected 2 sticker sets, got %v", cfg.Telegram.StickerSets)
	}
}

func TestSetValue_RejectsWrongType(t *testing.T) {
	path := tempConfigPath(t)
	writeTestConfig(t, path, Defaults())

	if err := SetValue(path, "max_concurrent", "lots"); err == nil {
		t.Error("expected error setting a number field to text")
	}
}
