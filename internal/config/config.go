package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel         = "claude-sonnet-4-6"
	DefaultMaxTokens     = 16384
	DefaultMaxToolRounds = 20
	DefaultPlaudBaseURL  = "https://api-euc1.plaud.ai"
	DefaultWhisperURL    = "http://localhost:9000"
	DefaultPollInterval  = 60
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultMaxHistory    = 50

	DefaultPrompt = "You are a document assistant. Create a well-structured document " +
		"from this audio transcript.\n\n" +
		"Instructions:\n" +
		"1. First list existing documents to understand context\n" +
		"2. Create a new document with a clear title based on the content\n" +
		"3. The document should include:\n" +
		"   - A summary section at the top\n" +
		"   - Key points or action items\n" +
		"   - The full transcript at the bottom under a Transcript heading\n" +
		"4. Use clear headings and organize the content logically"
)

type Config struct {
	Anthropic AnthropicConfig `json:"anthropic"`
	Plaud     PlaudConfig     `json:"plaud"`
	Whisper   WhisperConfig   `json:"whisper"`
	Drive     DriveConfig     `json:"drive"`
	Notify    NotifyConfig    `json:"notify"`
	Server    ServerConfig    `json:"server"`
	Paths     PathsConfig     `json:"paths"`
	LogLevel  string          `json:"logLevel"`
}

type AnthropicConfig struct {
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"maxTokens"`
	MaxRounds int    `json:"maxToolRounds"`
}

type PlaudConfig struct {
	Token        string `json:"token"`
	BaseURL      string `json:"baseUrl"`
	PollInterval int    `json:"pollInterval"` // seconds
}

type WhisperConfig struct {
	BaseURL  string `json:"baseUrl"`
	Language string `json:"language,omitempty"`
}

type DriveConfig struct {
	Enabled            bool   `json:"enabled"`
	AccessToken        string `json:"accessToken,omitempty"`
	RefreshToken       string `json:"refreshToken,omitempty"`
	TokenExpiry        string `json:"tokenExpiry,omitempty"`
	FolderID           string `json:"folderId,omitempty"`
	DocumentsFolderID  string `json:"documentsFolderId,omitempty"`
	RecordingsFolderID string `json:"recordingsFolderId,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  int64  `json:"chatId,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type PathsConfig struct {
	WatchDir      string `json:"watchDir"`
	ArchiveDir    string `json:"archiveDir"`
	TranscriptDir string `json:"transcriptDir"`
	OutputDir     string `json:"outputDir"`
	DataDir       string `json:"dataDir"`
}

func DefaultConfig() *Config {
	home := HomeDir()
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     DefaultModel,
			Prompt:    DefaultPrompt,
			MaxTokens: DefaultMaxTokens,
			MaxRounds: DefaultMaxToolRounds,
		},
		Plaud: PlaudConfig{
			BaseURL:      DefaultPlaudBaseURL,
			PollInterval: DefaultPollInterval,
		},
		Whisper: WhisperConfig{
			BaseURL: DefaultWhisperURL,
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Paths: PathsConfig{
			WatchDir:      filepath.Join(home, "input"),
			ArchiveDir:    filepath.Join(home, "input", "processed"),
			TranscriptDir: filepath.Join(home, "transcripts"),
			OutputDir:     filepath.Join(home, "documents"),
			DataDir:       filepath.Join(home, "data"),
		},
		LogLevel: "INFO",
	}
}

// HomeDir is the root for config and state, ~/.voxscribe unless
// VOXSCRIBE_HOME overrides it.
func HomeDir() string {
	if dir := os.Getenv("VOXSCRIBE_HOME"); dir != "" {
		return dir
	}
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".voxscribe")
}

func ConfigPath() string {
	return filepath.Join(HomeDir(), "settings.json")
}

// Load merges defaults, the settings file, and environment overrides.
// Environment values for secrets always win over file values.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Anthropic.APIKey = key
	}
	if token := os.Getenv("VOXSCRIBE_PLAUD_TOKEN"); token != "" {
		cfg.Plaud.Token = token
	}
	if url := os.Getenv("VOXSCRIBE_PLAUD_BASE_URL"); url != "" {
		cfg.Plaud.BaseURL = url
	}
	if url := os.Getenv("VOXSCRIBE_WHISPER_URL"); url != "" {
		cfg.Whisper.BaseURL = url
	}
	if token := os.Getenv("VOXSCRIBE_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if chat := os.Getenv("VOXSCRIBE_TELEGRAM_CHAT_ID"); chat != "" {
		if parsed, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Notify.Telegram.ChatID = parsed
		}
	}
	if port := os.Getenv("VOXSCRIBE_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}

	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = DefaultModel
	}
	if cfg.Anthropic.Prompt == "" {
		cfg.Anthropic.Prompt = DefaultPrompt
	}
	if cfg.Anthropic.MaxTokens <= 0 {
		cfg.Anthropic.MaxTokens = DefaultMaxTokens
	}
	if cfg.Anthropic.MaxRounds <= 0 {
		cfg.Anthropic.MaxRounds = DefaultMaxToolRounds
	}
	if cfg.Plaud.BaseURL == "" {
		cfg.Plaud.BaseURL = DefaultPlaudBaseURL
	}
	if cfg.Plaud.PollInterval <= 0 {
		cfg.Plaud.PollInterval = DefaultPollInterval
	}
	if !validLogLevel(cfg.LogLevel) {
		cfg.LogLevel = "INFO"
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	dir := HomeDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if !validLogLevel(cfg.LogLevel) {
		cfg.LogLevel = "INFO"
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

func validLogLevel(level string) bool {
	switch level {
	case "DEBUG", "INFO", "WARNING", "ERROR":
		return true
	}
	return false
}
