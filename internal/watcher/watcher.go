// Package watcher reacts to audio files dropped into the watch directory and
// periodically re-tests the Plaud API connection.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voxscribe/voxscribe/internal/pipeline"
)

// Handler processes one stable audio file. Returning pipeline.ErrBusy makes
// the watcher retry the file after the retry delay.
type Handler func(ctx context.Context, path string) error

const (
	defaultStableInterval = 500 * time.Millisecond
	defaultStableTimeout  = 30 * time.Second
	defaultRetryDelay     = 15 * time.Second
)

// Watcher processes files as they appear in one directory. Files are handled
// sequentially, after their size stops changing.
type Watcher struct {
	dir     string
	handler Handler

	stableInterval time.Duration
	stableTimeout  time.Duration
	retryDelay     time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
}

type WatcherOption func(*Watcher)

// WithStableWait tunes the size-stabilization polling. Short values keep
// tests fast.
func WithStableWait(interval, timeout time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.stableInterval = interval
		w.stableTimeout = timeout
	}
}

// WithRetryDelay tunes how long a busy-rejected file waits before the next
// attempt.
func WithRetryDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.retryDelay = delay
	}
}

func New(dir string, handler Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:            dir,
		handler:        handler,
		stableInterval: defaultStableInterval,
		stableTimeout:  defaultStableTimeout,
		retryDelay:     defaultRetryDelay,
		inFlight:       map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until the context is cancelled. Files already
// present at startup are handled first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	log.Printf("[watcher] watching %s", w.dir)

	w.scanExisting(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.maybeHandle(ctx, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.maybeHandle(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) maybeHandle(ctx context.Context, path string) {
	if !pipeline.IsAudioFile(path) {
		return
	}
	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	if !w.waitStable(ctx, path) {
		return
	}
	log.Printf("[watcher] new file: %s", path)
	switch err := w.handler(ctx, path); {
	case errors.Is(err, pipeline.ErrBusy):
		log.Printf("[watcher] pipeline busy, retrying %s in %s", path, w.retryDelay)
		w.retryLater(ctx, path)
	case err != nil:
		log.Printf("[watcher] %s: %v", path, err)
	}
}

// retryLater re-queues a busy-rejected file. The inFlight entry is already
// gone by the time the timer fires, so the retry goes through maybeHandle
// like any other event.
func (w *Watcher) retryLater(ctx context.Context, path string) {
	time.AfterFunc(w.retryDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		w.maybeHandle(ctx, path)
	})
}

// waitStable polls the file size until two consecutive reads agree, so a
// file still being copied in is not picked up half-written.
func (w *Watcher) waitStable(ctx context.Context, path string) bool {
	deadline := time.Now().Add(w.stableTimeout)
	var lastSize int64 = -1
	for time.Now().Before(deadline) {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.stableInterval):
		}
	}
	log.Printf("[watcher] %s never stabilized, skipping", path)
	return false
}
