package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ConnStatus is a boolean-plus-message pair suitable for direct display on
// the settings page.
type ConnStatus struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ConnStatusFile persists the last connectivity-test result for one external
// service, shared between the poller and the settings page.
type ConnStatusFile struct {
	path string
	mu   sync.Mutex
}

func NewConnStatusFile(path string) *ConnStatusFile {
	return &ConnStatusFile{path: path}
}

func (c *ConnStatusFile) Write(ok bool, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(ConnStatus{
		OK:        ok,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// Read returns the last result, or nil if none has been written yet or the
// file is unreadable.
func (c *ConnStatusFile) Read() *ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var status ConnStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil
	}
	return &status
}
