package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Anthropic.Model != DefaultModel {
		t.Errorf("model = %q, want %q", cfg.Anthropic.Model, DefaultModel)
	}
	if cfg.Anthropic.MaxRounds != DefaultMaxToolRounds {
		t.Errorf("maxToolRounds = %d, want %d", cfg.Anthropic.MaxRounds, DefaultMaxToolRounds)
	}
	if cfg.Plaud.BaseURL != DefaultPlaudBaseURL {
		t.Errorf("plaud baseUrl = %q, want %q", cfg.Plaud.BaseURL, DefaultPlaudBaseURL)
	}
	if cfg.Plaud.PollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %d, want %d", cfg.Plaud.PollInterval, DefaultPollInterval)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Paths.WatchDir == "" || cfg.Paths.ArchiveDir == "" {
		t.Error("paths should not be empty")
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("VOXSCRIBE_HOME", t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("VOXSCRIBE_PLAUD_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.Model != DefaultModel {
		t.Errorf("model = %q, want default %q", cfg.Anthropic.Model, DefaultModel)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("VOXSCRIBE_HOME", tmpDir)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("VOXSCRIBE_PLAUD_TOKEN", "")

	saved := map[string]any{
		"anthropic": map[string]any{
			"apiKey": "sk-file-key",
			"model":  "claude-opus-4-20250514",
		},
		"plaud": map[string]any{
			"token": "bearer abc",
		},
	}
	data, _ := json.Marshal(saved)
	if err := os.WriteFile(filepath.Join(tmpDir, "settings.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-file-key" {
		t.Errorf("apiKey = %q, want %q", cfg.Anthropic.APIKey, "sk-file-key")
	}
	if cfg.Anthropic.Model != "claude-opus-4-20250514" {
		t.Errorf("model = %q, want file value", cfg.Anthropic.Model)
	}
	// Missing keys fall back to defaults.
	if cfg.Plaud.PollInterval != DefaultPollInterval {
		t.Errorf("pollInterval = %d, want default", cfg.Plaud.PollInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("VOXSCRIBE_HOME", tmpDir)
	t.Setenv("ANTHROPIC_API_KEY", "sk-env-key")

	saved := map[string]any{
		"anthropic": map[string]any{"apiKey": "sk-file-key"},
	}
	data, _ := json.Marshal(saved)
	if err := os.WriteFile(filepath.Join(tmpDir, "settings.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-env-key" {
		t.Errorf("apiKey = %q, env must win over file", cfg.Anthropic.APIKey)
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("VOXSCRIBE_HOME", tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "settings.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("expected parse error for corrupt settings file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("VOXSCRIBE_HOME", tmpDir)
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := DefaultConfig()
	cfg.Anthropic.APIKey = "sk-test"
	cfg.LogLevel = "bogus"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded.Anthropic.APIKey != "sk-test" {
		t.Errorf("apiKey = %q after round trip", loaded.Anthropic.APIKey)
	}
	if loaded.LogLevel != "INFO" {
		t.Errorf("logLevel = %q, invalid level should reset to INFO", loaded.LogLevel)
	}
}
