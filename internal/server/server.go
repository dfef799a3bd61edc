// Package server exposes the web UI and JSON API for managing recordings,
// documents, and settings.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/docgen"
	"github.com/voxscribe/voxscribe/internal/gdrive"
	"github.com/voxscribe/voxscribe/internal/llm"
	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/store"
	"github.com/voxscribe/voxscribe/internal/transcribe"
)

//go:embed templates/*.html
var templateFS embed.FS

// PlaudAPI is the subset of the Plaud client the server uses.
type PlaudAPI interface {
	ListRecordings(ctx context.Context, limit int) ([]plaud.Recording, error)
	TestConnection(ctx context.Context) plaud.ConnResult
}

// AnthropicAPI verifies model credentials.
type AnthropicAPI interface {
	TestConnection(ctx context.Context) llm.ConnResult
}

// Processor starts pipeline runs.
type Processor interface {
	ProcessRecording(ctx context.Context, rec plaud.Recording) error
	ProcessFile(ctx context.Context, path string) error
	Busy() bool
}

// DriveSetup is what the OAuth callback needs from a fresh Drive client.
type DriveSetup interface {
	EnsureFolderStructure(ctx context.Context) (*gdrive.Folders, error)
	TestConnection(ctx context.Context) gdrive.ConnResult
}

// DriveFactory builds a Drive client from a token. Tests inject fakes here.
type DriveFactory func(ctx context.Context, oauthCfg *oauth2.Config, tok *oauth2.Token, save gdrive.TokenSaver) (DriveSetup, error)

func defaultDriveFactory(ctx context.Context, oauthCfg *oauth2.Config, tok *oauth2.Token, save gdrive.TokenSaver) (DriveSetup, error) {
	return gdrive.NewClient(ctx, oauthCfg, tok, save)
}

// Options wires the server. Plaud and Anthropic may be nil when the matching
// credential is not configured.
type Options struct {
	Config    *config.Config
	Statuses  *store.StatusStore
	History   *store.HistoryStore
	PlaudConn *store.ConnStatusFile
	Plaud     PlaudAPI
	Anthropic AnthropicAPI
	Runner    Processor
	Docs      *docgen.Store
	Cache     *transcribe.Cache

	DriveFactory DriveFactory
	SaveConfig   func(*config.Config) error

	// GoogleClientID and GoogleClientSecret come from the environment; they
	// are never stored in settings.
	GoogleClientID     string
	GoogleClientSecret string
}

// Server is the HTTP layer.
type Server struct {
	opts      Options
	mux       *http.ServeMux
	templates *template.Template
}

func New(opts Options) (*Server, error) {
	if opts.SaveConfig == nil {
		opts.SaveConfig = config.Save
	}
	if opts.DriveFactory == nil {
		opts.DriveFactory = defaultDriveFactory
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		opts:      opts,
		mux:       http.NewServeMux(),
		templates: tmpl,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /settings", s.handleSettingsPage)

	s.mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	s.mux.HandleFunc("POST /api/recordings/{id}/process", s.handleProcess)
	s.mux.HandleFunc("DELETE /api/recordings/{id}/audio", s.handleDeleteAudio)
	s.mux.HandleFunc("GET /api/documents", s.handleDocuments)
	s.mux.HandleFunc("DELETE /api/documents/{name}", s.handleDeleteDocument)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings", s.handleUpdateSettings)
	s.mux.HandleFunc("POST /api/test/plaud", s.handleTestPlaud)
	s.mux.HandleFunc("POST /api/test/anthropic", s.handleTestAnthropic)
	s.mux.HandleFunc("POST /api/test/drive", s.handleTestDrive)

	s.mux.HandleFunc("GET /oauth/connect", s.handleOAuthConnect)
	s.mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)
	s.mux.HandleFunc("POST /oauth/disconnect", s.handleOAuthDisconnect)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.opts.Config.Server.Host, s.opts.Config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		log.Printf("[server] render index: %v", err)
	}
}

func (s *Server) handleSettingsPage(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.ExecuteTemplate(w, "settings.html", nil); err != nil {
		log.Printf("[server] render settings: %v", err)
	}
}
