package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultMaxHistory bounds the rolling history list.
const DefaultMaxHistory = 50

type HistoryEntry struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HistoryStore keeps a newest-first list of processing results, bounded to a
// fixed maximum count. Display only, independent of the status store.
type HistoryStore struct {
	path string
	max  int
	mu   sync.Mutex
}

func NewHistoryStore(path string, max int) *HistoryStore {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &HistoryStore{path: path, max: max}
}

// Add prepends an entry, evicting the oldest past the cap.
func (h *HistoryStore) Add(filename, status, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.load()
	entries = append([]HistoryEntry{{
		Filename:  filename,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}}, entries...)
	if len(entries) > h.max {
		entries = entries[:h.max]
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(h.path, data, 0644)
}

// List returns history, newest first. Missing or corrupt file is empty.
func (h *HistoryStore) List() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

func (h *HistoryStore) load() []HistoryEntry {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}
