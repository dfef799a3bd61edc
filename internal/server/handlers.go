package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxscribe/voxscribe/internal/pipeline"
	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/store"
)

const recordingsListLimit = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// recordingView is one row of the recordings table.
type recordingView struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Duration  string `json:"duration"`
	StartTime string `json:"startTime,omitempty"`
	Status    string `json:"status"`
	Local     bool   `json:"local"`
	Archived  bool   `json:"archived"`
}

func formatDuration(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func formatStartTime(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Plaud == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"recordings": []recordingView{},
			"error":      "Plaud token not configured",
		})
		return
	}

	recs, err := s.opts.Plaud.ListRecordings(r.Context(), recordingsListLimit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "list recordings: %v", err)
		return
	}

	statuses := s.opts.Statuses.GetAll()
	views := make([]recordingView, 0, len(recs))
	for _, rec := range recs {
		filename := pipeline.SanitizeFilename(rec.Filename)
		status := store.StatusNew
		if entry, ok := statuses[rec.ID]; ok {
			status = entry.Status
		}
		views = append(views, recordingView{
			ID:        rec.ID,
			Filename:  filename,
			Duration:  formatDuration(rec.Duration),
			StartTime: formatStartTime(rec.StartTime),
			Status:    status,
			Local:     fileExists(filepath.Join(s.opts.Config.Paths.WatchDir, filename)),
			Archived:  fileExists(filepath.Join(s.opts.Config.Paths.ArchiveDir, filename)),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"recordings": views})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.opts.Runner.Busy() {
		writeError(w, http.StatusConflict, "another recording is being processed")
		return
	}

	rec, err := s.findRecording(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if rec != nil {
			if err := s.opts.Runner.ProcessRecording(ctx, *rec); err != nil {
				log.Printf("[server] processing %s failed: %v", id, err)
			}
			return
		}
		// Local-only file: the ID is its filename.
		path := filepath.Join(s.opts.Config.Paths.WatchDir, id)
		if err := s.opts.Runner.ProcessFile(ctx, path); err != nil {
			log.Printf("[server] processing %s failed: %v", id, err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// findRecording resolves an ID against the Plaud list, or nil when the ID
// names a file in the watch directory instead.
func (s *Server) findRecording(ctx context.Context, id string) (*plaud.Recording, error) {
	if s.opts.Plaud != nil {
		recs, err := s.opts.Plaud.ListRecordings(ctx, recordingsListLimit)
		if err == nil {
			for _, rec := range recs {
				if rec.ID == id {
					return &rec, nil
				}
			}
		}
	}
	if fileExists(filepath.Join(s.opts.Config.Paths.WatchDir, id)) {
		return nil, nil
	}
	return nil, fmt.Errorf("recording %s not found", id)
}

func (s *Server) handleDeleteAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry := s.opts.Statuses.Get(id)
	filename := entry.Filename
	if filename == "" {
		filename = id
	}
	filename = filepath.Base(filename)

	var removed []string
	for _, dir := range []string{s.opts.Config.Paths.WatchDir, s.opts.Config.Paths.ArchiveDir} {
		path := filepath.Join(dir, filename)
		if err := os.Remove(path); err == nil {
			removed = append(removed, path)
		}
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if s.opts.Cache != nil {
		paths, _ := s.opts.Cache.Remove(base)
		removed = append(removed, paths...)
	}

	if len(removed) == 0 {
		writeError(w, http.StatusNotFound, "no local files for %s", id)
		return
	}
	log.Printf("[server] deleted %d local files for %s", len(removed), filename)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.opts.Docs.ListDocuments()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list documents: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".html") {
		writeError(w, http.StatusBadRequest, "invalid document name")
		return
	}
	path := filepath.Join(s.opts.Config.Paths.OutputDir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "document %s not found", name)
			return
		}
		writeError(w, http.StatusInternalServerError, "delete document: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"history":  s.opts.History.List(),
		"statuses": s.opts.Statuses.GetAll(),
		"busy":     s.opts.Runner != nil && s.opts.Runner.Busy(),
	}
	if s.opts.PlaudConn != nil {
		if status := s.opts.PlaudConn.Read(); status != nil {
			resp["plaud"] = status
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTestPlaud(w http.ResponseWriter, r *http.Request) {
	if s.opts.Plaud == nil {
		writeJSON(w, http.StatusOK, plaud.ConnResult{OK: false, Message: "Plaud token not configured"})
		return
	}
	result := s.opts.Plaud.TestConnection(r.Context())
	if s.opts.PlaudConn != nil {
		s.opts.PlaudConn.Write(result.OK, result.Message)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestAnthropic(w http.ResponseWriter, r *http.Request) {
	if s.opts.Anthropic == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "message": "API key not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Anthropic.TestConnection(r.Context()))
}

func (s *Server) handleTestDrive(w http.ResponseWriter, r *http.Request) {
	client, err := s.driveClient(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, client.TestConnection(r.Context()))
}

// maskSecret hides all but the last four characters.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

type settingsView struct {
	Anthropic struct {
		APIKey    string `json:"apiKey"`
		Model     string `json:"model"`
		Prompt    string `json:"prompt"`
		MaxTokens int    `json:"maxTokens"`
	} `json:"anthropic"`
	Plaud struct {
		Token        string `json:"token"`
		BaseURL      string `json:"baseUrl"`
		PollInterval int    `json:"pollInterval"`
	} `json:"plaud"`
	Whisper struct {
		BaseURL  string `json:"baseUrl"`
		Language string `json:"language"`
	} `json:"whisper"`
	Drive struct {
		Enabled   bool `json:"enabled"`
		Connected bool `json:"connected"`
	} `json:"drive"`
	Telegram struct {
		Enabled bool   `json:"enabled"`
		Token   string `json:"token"`
		ChatID  int64  `json:"chatId"`
	} `json:"telegram"`
	LogLevel string `json:"logLevel"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.opts.Config
	var view settingsView
	view.Anthropic.APIKey = maskSecret(cfg.Anthropic.APIKey)
	view.Anthropic.Model = cfg.Anthropic.Model
	view.Anthropic.Prompt = cfg.Anthropic.Prompt
	view.Anthropic.MaxTokens = cfg.Anthropic.MaxTokens
	view.Plaud.Token = maskSecret(cfg.Plaud.Token)
	view.Plaud.BaseURL = cfg.Plaud.BaseURL
	view.Plaud.PollInterval = cfg.Plaud.PollInterval
	view.Whisper.BaseURL = cfg.Whisper.BaseURL
	view.Whisper.Language = cfg.Whisper.Language
	view.Drive.Enabled = cfg.Drive.Enabled
	view.Drive.Connected = cfg.Drive.RefreshToken != ""
	view.Telegram.Enabled = cfg.Notify.Telegram.Enabled
	view.Telegram.Token = maskSecret(cfg.Notify.Telegram.Token)
	view.Telegram.ChatID = cfg.Notify.Telegram.ChatID
	view.LogLevel = cfg.LogLevel
	writeJSON(w, http.StatusOK, view)
}

type settingsUpdate struct {
	Anthropic *struct {
		APIKey    *string `json:"apiKey"`
		Model     *string `json:"model"`
		Prompt    *string `json:"prompt"`
		MaxTokens *int    `json:"maxTokens"`
	} `json:"anthropic"`
	Plaud *struct {
		Token        *string `json:"token"`
		BaseURL      *string `json:"baseUrl"`
		PollInterval *int    `json:"pollInterval"`
	} `json:"plaud"`
	Whisper *struct {
		BaseURL  *string `json:"baseUrl"`
		Language *string `json:"language"`
	} `json:"whisper"`
	Drive *struct {
		Enabled *bool `json:"enabled"`
	} `json:"drive"`
	Telegram *struct {
		Enabled *bool   `json:"enabled"`
		Token   *string `json:"token"`
		ChatID  *int64  `json:"chatId"`
	} `json:"telegram"`
	LogLevel *string `json:"logLevel"`
}

// handleUpdateSettings merges the update into config. Blank or masked
// secrets keep the stored value.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "parse settings: %v", err)
		return
	}

	cfg := s.opts.Config
	setSecret := func(dst *string, src *string) {
		if src != nil && *src != "" && !strings.HasPrefix(*src, "****") {
			*dst = *src
		}
	}
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	if a := update.Anthropic; a != nil {
		setSecret(&cfg.Anthropic.APIKey, a.APIKey)
		setString(&cfg.Anthropic.Model, a.Model)
		setString(&cfg.Anthropic.Prompt, a.Prompt)
		if a.MaxTokens != nil && *a.MaxTokens > 0 {
			cfg.Anthropic.MaxTokens = *a.MaxTokens
		}
	}
	if p := update.Plaud; p != nil {
		setSecret(&cfg.Plaud.Token, p.Token)
		setString(&cfg.Plaud.BaseURL, p.BaseURL)
		if p.PollInterval != nil && *p.PollInterval > 0 {
			cfg.Plaud.PollInterval = *p.PollInterval
		}
	}
	if wcfg := update.Whisper; wcfg != nil {
		setString(&cfg.Whisper.BaseURL, wcfg.BaseURL)
		setString(&cfg.Whisper.Language, wcfg.Language)
	}
	if d := update.Drive; d != nil && d.Enabled != nil {
		cfg.Drive.Enabled = *d.Enabled
	}
	if tg := update.Telegram; tg != nil {
		if tg.Enabled != nil {
			cfg.Notify.Telegram.Enabled = *tg.Enabled
		}
		setSecret(&cfg.Notify.Telegram.Token, tg.Token)
		if tg.ChatID != nil && *tg.ChatID != 0 {
			cfg.Notify.Telegram.ChatID = *tg.ChatID
		}
	}
	if update.LogLevel != nil {
		cfg.LogLevel = *update.LogLevel
	}

	if err := s.opts.SaveConfig(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "note": "restart to apply connection changes"})
}
