// Package pipeline runs one recording through download, transcription,
// analysis, and archival, recording progress in the status store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voxscribe/voxscribe/internal/docgen"
	"github.com/voxscribe/voxscribe/internal/notify"
	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/store"
	"github.com/voxscribe/voxscribe/internal/transcribe"
)

// ErrBusy is returned when a recording is already being processed. Only one
// recording runs at a time.
var ErrBusy = errors.New("another recording is being processed")

var audioExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
	".flac": true,
}

// IsAudioFile reports whether the name carries a recognized audio extension.
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// SanitizeFilename keeps letters, digits, and -_. space, drops everything
// else, and guarantees a recognized audio extension.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" || strings.Trim(safe, ".") == "" {
		safe = "recording"
	}
	if !audioExtensions[strings.ToLower(filepath.Ext(safe))] {
		safe += ".mp3"
	}
	return safe
}

// Downloader fetches a remote recording to a local path.
type Downloader interface {
	DownloadRecording(ctx context.Context, id, destPath string) error
}

// Uploader mirrors a local file into a remote folder.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, folderID string) (id string, skipped bool, err error)
}

// Analyzer turns a transcript into a document.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*docgen.DocInfo, error)
}

// Options configures a Runner. Plaud, Uploader, and Notifier are optional.
type Options struct {
	WatchDir           string
	ArchiveDir         string
	RecordingsFolderID string
	DocumentsFolderID  string

	Plaud    Downloader
	Uploader Uploader
	Notifier notify.Notifier
}

// Runner owns the processing sequence for one installation.
type Runner struct {
	statuses *store.StatusStore
	history  *store.HistoryStore
	engine   transcribe.Engine
	cache    *transcribe.Cache
	analyzer Analyzer
	opts     Options

	mu sync.Mutex
}

func NewRunner(statuses *store.StatusStore, history *store.HistoryStore, engine transcribe.Engine, cache *transcribe.Cache, analyzer Analyzer, opts Options) *Runner {
	return &Runner{
		statuses: statuses,
		history:  history,
		engine:   engine,
		cache:    cache,
		analyzer: analyzer,
		opts:     opts,
	}
}

// Busy reports whether a run is in flight right now. The answer can go
// stale immediately; callers wanting certainty rely on ErrBusy instead.
func (r *Runner) Busy() bool {
	if r.mu.TryLock() {
		r.mu.Unlock()
		return false
	}
	return true
}

// ProcessRecording runs a remote recording through the full sequence,
// downloading it first unless a local copy already exists.
func (r *Runner) ProcessRecording(ctx context.Context, rec plaud.Recording) error {
	download := func(ctx context.Context, dest string) error {
		if r.opts.Plaud == nil {
			return fmt.Errorf("no download client configured")
		}
		return r.opts.Plaud.DownloadRecording(ctx, rec.ID, dest)
	}
	return r.run(ctx, rec.ID, SanitizeFilename(rec.Filename), download)
}

// ProcessFile runs a local file that appeared in the watch directory. The
// filename doubles as the recording ID.
func (r *Runner) ProcessFile(ctx context.Context, path string) error {
	filename := filepath.Base(path)
	return r.run(ctx, filename, filename, nil)
}

// run is the stage sequence. The mutex makes processing single-flight; a
// second caller gets ErrBusy instead of queueing.
func (r *Runner) run(ctx context.Context, id, filename string, download func(ctx context.Context, dest string) error) (err error) {
	if !r.mu.TryLock() {
		return ErrBusy
	}
	defer r.mu.Unlock()

	if store.IsActive(r.statuses.Get(id).Status) {
		return ErrBusy
	}

	defer func() {
		if p := recover(); p != nil {
			err = r.fail(id, filename, fmt.Errorf("processing panic: %v", p))
		}
	}()

	r.statuses.Set(id, store.StatusQueued, filename)

	localPath := filepath.Join(r.opts.WatchDir, filename)
	if _, statErr := os.Stat(localPath); statErr != nil {
		if download == nil {
			return r.fail(id, filename, fmt.Errorf("audio file missing: %s", localPath))
		}
		r.statuses.Set(id, store.StatusDownloading, filename)
		if err := os.MkdirAll(r.opts.WatchDir, 0755); err != nil {
			return r.fail(id, filename, fmt.Errorf("create watch dir: %w", err))
		}
		if err := download(ctx, localPath); err != nil {
			return r.fail(id, filename, fmt.Errorf("download: %w", err))
		}
	}

	// The recording copy is best-effort; archival to Drive must never block
	// transcription.
	if r.opts.Uploader != nil && r.opts.RecordingsFolderID != "" {
		r.statuses.Set(id, store.StatusUploadingRecording, filename)
		if _, _, upErr := r.opts.Uploader.UploadFile(ctx, localPath, r.opts.RecordingsFolderID); upErr != nil {
			log.Printf("[pipeline] recording upload failed: %v", upErr)
		}
	}

	text, err := r.transcript(ctx, id, filename, localPath)
	if err != nil {
		return r.fail(id, filename, err)
	}

	r.statuses.Set(id, store.StatusAnalyzing, filename)
	doc, err := r.analyzer.Analyze(ctx, text)
	if err != nil {
		return r.fail(id, filename, fmt.Errorf("analysis: %w", err))
	}

	if err := r.archive(localPath, filename); err != nil {
		return r.fail(id, filename, err)
	}

	r.statuses.Set(id, store.StatusProcessed, filename)
	r.history.Add(filename, store.StatusProcessed, fmt.Sprintf("Document: %s", doc.Filename))
	notify.Best(r.opts.Notifier, notify.Processed(filename, doc.Filename))
	log.Printf("[pipeline] %s processed, document %s", filename, doc.Filename)
	return nil
}

// transcript returns cached text when a transcript side-file keyed by the
// audio content already exists; the transcribing status is only recorded
// when the engine actually runs.
func (r *Runner) transcript(ctx context.Context, id, filename, localPath string) (string, error) {
	baseName := strings.TrimSuffix(filename, filepath.Ext(filename))
	key, err := transcribe.FileKey(localPath)
	if err != nil {
		return "", fmt.Errorf("transcript key: %w", err)
	}
	if cached := r.cache.Find(baseName, key); cached != "" {
		log.Printf("[pipeline] transcript cache hit: %s", cached)
		text, err := r.cache.Read(cached)
		if err == nil {
			return text, nil
		}
		log.Printf("[pipeline] cached transcript unreadable, re-transcribing: %v", err)
	}

	r.statuses.Set(id, store.StatusTranscribing, filename)
	result, err := r.engine.Transcribe(ctx, localPath)
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	text := transcribe.Format(result)
	savedPath, err := r.cache.Save(baseName, key, text)
	if err != nil {
		log.Printf("[pipeline] transcript save failed: %v", err)
		return text, nil
	}

	// The transcript copy is best-effort, like the recording copy.
	if r.opts.Uploader != nil && r.opts.DocumentsFolderID != "" {
		if _, _, upErr := r.opts.Uploader.UploadFile(ctx, savedPath, r.opts.DocumentsFolderID); upErr != nil {
			log.Printf("[pipeline] transcript upload failed: %v", upErr)
		}
	}
	return text, nil
}

func (r *Runner) archive(localPath, filename string) error {
	if err := os.MkdirAll(r.opts.ArchiveDir, 0755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	dest := filepath.Join(r.opts.ArchiveDir, filename)
	if err := moveFile(localPath, dest); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

func (r *Runner) fail(id, filename string, err error) error {
	log.Printf("[pipeline] %s failed: %v", filename, err)
	r.statuses.Set(id, store.StatusError, filename)
	r.history.Add(filename, store.StatusError, err.Error())
	notify.Best(r.opts.Notifier, notify.Failed(filename, err))
	return err
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFile never leaves a partial dest behind. A file in the archive dir
// means the run completed.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}
