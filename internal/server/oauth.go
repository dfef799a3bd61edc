package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"

	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/gdrive"
)

const oauthStateFile = "oauth_state"

func (s *Server) oauthConfig(r *http.Request) (*oauth2.Config, error) {
	if s.opts.GoogleClientID == "" || s.opts.GoogleClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are not set")
	}
	redirect := fmt.Sprintf("http://%s/oauth/callback", r.Host)
	return gdrive.OAuthConfig(s.opts.GoogleClientID, s.opts.GoogleClientSecret, redirect), nil
}

func (s *Server) statePath() string {
	return filepath.Join(config.HomeDir(), oauthStateFile)
}

// The CSRF state survives on disk so the callback still verifies after a
// restart mid-flow.
func (s *Server) writeState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(buf)
	if err := os.MkdirAll(config.HomeDir(), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(s.statePath(), []byte(state), 0600); err != nil {
		return "", fmt.Errorf("persist state: %w", err)
	}
	return state, nil
}

func (s *Server) consumeState(got string) bool {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		return false
	}
	os.Remove(s.statePath())
	return got != "" && string(data) == got
}

func (s *Server) handleOAuthConnect(w http.ResponseWriter, r *http.Request) {
	oauthCfg, err := s.oauthConfig(r)
	if err != nil {
		writeError(w, http.StatusPreconditionFailed, "%v", err)
		return
	}
	state, err := s.writeState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	http.Redirect(w, r, gdrive.AuthURL(oauthCfg, state), http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: %s", errMsg)
		return
	}
	if !s.consumeState(r.URL.Query().Get("state")) {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}
	oauthCfg, err := s.oauthConfig(r)
	if err != nil {
		writeError(w, http.StatusPreconditionFailed, "%v", err)
		return
	}

	tok, err := gdrive.Exchange(r.Context(), oauthCfg, r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "%v", err)
		return
	}

	client, err := s.opts.DriveFactory(r.Context(), oauthCfg, tok, s.tokenSaver())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	folders, err := client.EnsureFolderStructure(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "prepare Drive folders: %v", err)
		return
	}

	cfg := s.opts.Config
	cfg.Drive.Enabled = true
	cfg.Drive.AccessToken = tok.AccessToken
	cfg.Drive.RefreshToken = tok.RefreshToken
	cfg.Drive.TokenExpiry = tok.Expiry.UTC().Format(time.RFC3339)
	cfg.Drive.FolderID = folders.Root
	cfg.Drive.DocumentsFolderID = folders.Documents
	cfg.Drive.RecordingsFolderID = folders.Recordings
	if err := s.opts.SaveConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	log.Printf("[server] Google Drive connected")
	http.Redirect(w, r, "/settings?drive=connected", http.StatusFound)
}

func (s *Server) handleOAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	cfg := s.opts.Config
	cfg.Drive = config.DriveConfig{}
	if err := s.opts.SaveConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// tokenSaver persists refreshed tokens back into settings.
func (s *Server) tokenSaver() gdrive.TokenSaver {
	return func(tok *oauth2.Token) {
		cfg := s.opts.Config
		cfg.Drive.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			cfg.Drive.RefreshToken = tok.RefreshToken
		}
		cfg.Drive.TokenExpiry = tok.Expiry.UTC().Format(time.RFC3339)
		if err := s.opts.SaveConfig(cfg); err != nil {
			log.Printf("[server] persist refreshed token: %v", err)
		}
	}
}

// driveClient builds a Drive client from the stored token.
func (s *Server) driveClient(ctx context.Context) (DriveSetup, error) {
	cfg := s.opts.Config
	if !cfg.Drive.Enabled || cfg.Drive.RefreshToken == "" {
		return nil, fmt.Errorf("Google Drive is not connected")
	}
	oauthCfg := gdrive.OAuthConfig(s.opts.GoogleClientID, s.opts.GoogleClientSecret, "")
	tok := &oauth2.Token{
		AccessToken:  cfg.Drive.AccessToken,
		RefreshToken: cfg.Drive.RefreshToken,
	}
	if expiry, err := time.Parse(time.RFC3339, cfg.Drive.TokenExpiry); err == nil {
		tok.Expiry = expiry
	}
	return s.opts.DriveFactory(ctx, oauthCfg, tok, s.tokenSaver())
}
