package transcribe

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// MaxTranscriptLength caps formatted transcript text; longer output is
// truncated, not rejected.
const MaxTranscriptLength = 500_000

// Format renders engine output as one line per segment with a [MM:SS]
// prefix, falling back to the raw text blob when no segments are present.
// The result is truncated to MaxTranscriptLength.
func Format(result *Result) string {
	var text string
	if len(result.Segments) > 0 {
		lines := make([]string, 0, len(result.Segments))
		for _, seg := range result.Segments {
			start := int(seg.Start)
			lines = append(lines, fmt.Sprintf("[%02d:%02d] %s", start/60, start%60, strings.TrimSpace(seg.Text)))
		}
		text = strings.Join(lines, "\n")
	} else {
		text = result.Text
	}

	if runes := []rune(text); len(runes) > MaxTranscriptLength {
		log.Printf("[transcribe] transcript truncated from %d to %d chars", len(runes), MaxTranscriptLength)
		text = string(runes[:MaxTranscriptLength])
	}
	return text
}

// Cache stores transcripts as side-files named <base>_<key>.txt, where key
// is a content hash of the audio. A matching file means this exact audio was
// already transcribed and the engine call can be skipped; re-recorded audio
// under the same name misses the cache.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// FileKey returns the cache key for an audio file.
func FileKey(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash audio file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}

// Find returns the cached transcript path for the base name and key, or ""
// when none exists.
func (c *Cache) Find(baseName, key string) string {
	path := filepath.Join(c.dir, fmt.Sprintf("%s_%s.txt", baseName, key))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Read returns the cached transcript text verbatim.
func (c *Cache) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

// Save writes a transcript for the base name under the given key and
// returns its path.
func (c *Cache) Save(baseName, key, text string) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(c.dir, fmt.Sprintf("%s_%s.txt", baseName, key))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	log.Printf("[transcribe] transcript saved: %s", path)
	return path, nil
}

// Remove deletes cached transcripts for the base name and returns the paths
// removed along with their keys.
func (c *Cache) Remove(baseName string) ([]string, []string) {
	matches, err := filepath.Glob(filepath.Join(c.dir, baseName+"_*.txt"))
	if err != nil {
		return nil, nil
	}
	var removed, keys []string
	for _, path := range matches {
		key := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), baseName+"_"), ".txt")
		if err := os.Remove(path); err != nil {
			continue
		}
		removed = append(removed, path)
		keys = append(keys, key)
	}
	return removed, keys
}
