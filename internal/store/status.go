// Package store persists pipeline state as flat JSON files under the data
// directory. Files that are missing or malformed read as empty, never as an
// error.
package store

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Pipeline statuses, in forward order. A recording with no entry is "new".
const (
	StatusNew                = "new"
	StatusQueued             = "queued"
	StatusDownloading        = "downloading"
	StatusUploadingRecording = "uploading_recording"
	StatusTranscribing       = "transcribing"
	StatusAnalyzing          = "analyzing"
	StatusProcessed          = "processed"
	StatusError              = "error"
)

// IsActive reports whether a status belongs to a run in flight. Active
// entries found at startup mean the worker that owned them is gone.
func IsActive(status string) bool {
	switch status {
	case StatusQueued, StatusDownloading, StatusUploadingRecording, StatusTranscribing, StatusAnalyzing:
		return true
	}
	return false
}

type StatusEntry struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Updated  string `json:"updated"`
}

// StatusStore maps recording IDs to their pipeline status. Persistence is
// whole-file rewrite-on-write.
type StatusStore struct {
	path string
	mu   sync.Mutex
}

func NewStatusStore(path string) *StatusStore {
	return &StatusStore{path: path}
}

// GetAll returns every status entry. A missing or corrupt file is an empty
// store.
func (s *StatusStore) GetAll() map[string]StatusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the entry for one recording, defaulting to StatusNew.
func (s *StatusStore) Get(id string) StatusEntry {
	entry, ok := s.GetAll()[id]
	if !ok {
		return StatusEntry{Status: StatusNew}
	}
	return entry
}

// Set rewrites the entry for id, stamping the update time. An empty filename
// keeps the previously recorded one.
func (s *StatusStore) Set(id, status, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	entry := all[id]
	entry.Status = status
	entry.Updated = time.Now().UTC().Format(time.RFC3339)
	if filename != "" {
		entry.Filename = filename
	}
	all[id] = entry

	if err := s.save(all); err != nil {
		return err
	}
	log.Printf("[store] status [%s]: %s", shortID(id), status)
	return nil
}

// RecoverStale downgrades every active entry to error. Run at startup: an
// active status surviving a restart means the run it belonged to crashed.
func (s *StatusStore) RecoverStale() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.load()
	changed := false
	for id, entry := range all {
		if !IsActive(entry.Status) {
			continue
		}
		log.Printf("[store] resetting stale status [%s] %s -> error", shortID(id), entry.Status)
		entry.Status = StatusError
		entry.Updated = time.Now().UTC().Format(time.RFC3339)
		all[id] = entry
		changed = true
	}
	if !changed {
		return nil
	}
	return s.save(all)
}

func (s *StatusStore) load() map[string]StatusEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]StatusEntry{}
	}
	var all map[string]StatusEntry
	if err := json.Unmarshal(data, &all); err != nil || all == nil {
		return map[string]StatusEntry{}
	}
	return all
}

func (s *StatusStore) save(all map[string]StatusEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
