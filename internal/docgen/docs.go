package docgen

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxTitleLength caps document titles before they become filenames.
const MaxTitleLength = 200

// DocInfo describes one written document.
type DocInfo struct {
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// DocEntry is one listed document.
type DocEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}

// SanitizeTitle strips characters that are unsafe in filenames, trims
// trailing dots and spaces, and caps the length. An empty result falls back
// to "untitled".
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if !strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimRight(b.String(), ". ")
	safe = strings.TrimSpace(safe)
	if runes := []rune(safe); len(runes) > MaxTitleLength {
		safe = string(runes[:MaxTitleLength])
	}
	if safe == "" {
		return "untitled"
	}
	return safe
}

// Store writes and lists rendered documents in a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// CreateDocument parses content, renders it as HTML, and writes it under the
// sanitized title plus a timestamp. An existing file with the same name is
// never overwritten; a numeric suffix is appended instead.
func (s *Store) CreateDocument(title, content string) (*DocInfo, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := fmt.Sprintf("%s_%s", SanitizeTitle(title), time.Now().Format("20060102_150405"))
	filename := base + ".html"
	path := filepath.Join(s.dir, filename)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		filename = fmt.Sprintf("%s (%d).html", base, n)
		path = filepath.Join(s.dir, filename)
	}

	page := RenderHTML(title, Parse(content))
	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}
	log.Printf("[docgen] document created: %s", path)

	return &DocInfo{Title: title, Filename: filename, Path: path}, nil
}

// ListDocuments returns the documents in the store, newest first.
func (s *Store) ListDocuments() ([]DocEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var docs []DocEntry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docs = append(docs, DocEntry{
			Name:     entry.Name(),
			Path:     filepath.Join(s.dir, entry.Name()),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Modified.After(docs[j].Modified) })
	return docs, nil
}
