package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"golang.org/x/oauth2"

	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/docgen"
	"github.com/voxscribe/voxscribe/internal/gdrive"
	"github.com/voxscribe/voxscribe/internal/llm"
	"github.com/voxscribe/voxscribe/internal/notify"
	"github.com/voxscribe/voxscribe/internal/pipeline"
	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/scribe"
	"github.com/voxscribe/voxscribe/internal/store"
	"github.com/voxscribe/voxscribe/internal/transcribe"
)

// app holds every wired component. Optional integrations stay nil when
// their credentials are missing.
type app struct {
	cfg      *config.Config
	statuses *store.StatusStore
	history  *store.HistoryStore
	conn     *store.ConnStatusFile
	cache    *transcribe.Cache
	docs     *docgen.Store
	runner   *pipeline.Runner

	plaud     *plaud.Client
	anthropic *llm.Client
	drive     *gdrive.Client
	notifier  notify.Notifier
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dataDir := cfg.Paths.DataDir
	a := &app{
		cfg:      cfg,
		statuses: store.NewStatusStore(filepath.Join(dataDir, "status.json")),
		history:  store.NewHistoryStore(filepath.Join(dataDir, "history.json"), config.DefaultMaxHistory),
		conn:     store.NewConnStatusFile(filepath.Join(dataDir, "plaud_conn.json")),
		cache:    transcribe.NewCache(cfg.Paths.TranscriptDir),
		docs:     docgen.NewStore(cfg.Paths.OutputDir),
		notifier: notify.Nop{},
	}

	if cfg.Plaud.Token != "" {
		a.plaud = plaud.NewClient(cfg.Plaud.Token, cfg.Plaud.BaseURL)
	}
	if cfg.Anthropic.APIKey != "" {
		a.anthropic = llm.NewClient(cfg.Anthropic.APIKey)
	}
	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, nil)
		if err != nil {
			log.Printf("[app] telegram disabled: %v", err)
		} else {
			a.notifier = tg
		}
	}
	if cfg.Drive.Enabled && cfg.Drive.RefreshToken != "" {
		drive, err := buildDrive(ctx, cfg)
		if err != nil {
			log.Printf("[app] drive archive disabled: %v", err)
		} else {
			a.drive = drive
		}
	}

	engineOpts := []transcribe.WhisperOption{}
	if cfg.Whisper.Language != "" {
		engineOpts = append(engineOpts, transcribe.WithLanguage(cfg.Whisper.Language))
	}
	engine := transcribe.NewWhisperClient(cfg.Whisper.BaseURL, engineOpts...)

	scribeOpts := scribe.Options{
		Model:     cfg.Anthropic.Model,
		Prompt:    cfg.Anthropic.Prompt,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
		MaxRounds: cfg.Anthropic.MaxRounds,
	}
	if a.drive != nil && cfg.Drive.DocumentsFolderID != "" {
		scribeOpts.Mirror = gdrive.NewDocumentMirror(a.drive, cfg.Drive.DocumentsFolderID)
	}
	var completer scribe.Completer = noCompleter{}
	if a.anthropic != nil {
		completer = a.anthropic
	}
	analyzer := scribe.New(completer, a.docs, scribeOpts)

	runnerOpts := pipeline.Options{
		WatchDir:   cfg.Paths.WatchDir,
		ArchiveDir: cfg.Paths.ArchiveDir,
		Notifier:   a.notifier,
	}
	if a.plaud != nil {
		runnerOpts.Plaud = a.plaud
	}
	if a.drive != nil {
		runnerOpts.Uploader = a.drive
		runnerOpts.RecordingsFolderID = cfg.Drive.RecordingsFolderID
		runnerOpts.DocumentsFolderID = cfg.Drive.DocumentsFolderID
	}
	a.runner = pipeline.NewRunner(a.statuses, a.history, engine, a.cache, analyzer, runnerOpts)

	return a, nil
}

func buildDrive(ctx context.Context, cfg *config.Config) (*gdrive.Client, error) {
	oauthCfg := gdrive.OAuthConfig(
		envOr("GOOGLE_CLIENT_ID", ""),
		envOr("GOOGLE_CLIENT_SECRET", ""),
		"",
	)
	tok := &oauth2.Token{
		AccessToken:  cfg.Drive.AccessToken,
		RefreshToken: cfg.Drive.RefreshToken,
	}
	if expiry, err := time.Parse(time.RFC3339, cfg.Drive.TokenExpiry); err == nil {
		tok.Expiry = expiry
	}
	saver := func(tok *oauth2.Token) {
		cfg.Drive.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			cfg.Drive.RefreshToken = tok.RefreshToken
		}
		cfg.Drive.TokenExpiry = tok.Expiry.UTC().Format(time.RFC3339)
		if err := config.Save(cfg); err != nil {
			log.Printf("[app] persist refreshed token: %v", err)
		}
	}
	return gdrive.NewClient(ctx, oauthCfg, tok, saver)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// noCompleter stands in when no API key is configured so analysis fails with
// a clear message instead of a nil dereference.
type noCompleter struct{}

func (noCompleter) Complete(context.Context, llm.Request) (*anthropic.Message, error) {
	return nil, errors.New("Anthropic API key not configured")
}
