package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voxscribe/voxscribe/internal/pipeline"
	"github.com/voxscribe/voxscribe/internal/plaud"
	"github.com/voxscribe/voxscribe/internal/store"
)

type handlerRecorder struct {
	mu    sync.Mutex
	paths []string
	// busyFirst rejects the first call per path with pipeline.ErrBusy.
	busyFirst bool
	seen      map[string]bool
}

func (h *handlerRecorder) handle(ctx context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.busyFirst {
		if h.seen == nil {
			h.seen = map[string]bool{}
		}
		if !h.seen[path] {
			h.seen[path] = true
			return pipeline.ErrBusy
		}
	}
	h.paths = append(h.paths, path)
	return nil
}

func (h *handlerRecorder) list() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, dir string, rec *handlerRecorder) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(dir, rec.handle,
		WithStableWait(10*time.Millisecond, 2*time.Second),
		WithRetryDelay(50*time.Millisecond))
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond) // let the watch register
	return cancel
}

func TestWatcher_HandlesNewAudioFile(t *testing.T) {
	dir := t.TempDir()
	rec := &handlerRecorder{}
	cancel := startWatcher(t, dir, rec)
	defer cancel()

	path := filepath.Join(dir, "drop.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.list()) == 1 }) {
		t.Fatalf("handled = %v", rec.list())
	}
	if rec.list()[0] != path {
		t.Errorf("handled = %v", rec.list())
	}
}

func TestWatcher_IgnoresNonAudio(t *testing.T) {
	dir := t.TempDir()
	rec := &handlerRecorder{}
	cancel := startWatcher(t, dir, rec)
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.list(); len(got) != 0 {
		t.Errorf("handled = %v, non-audio must be ignored", got)
	}
}

func TestWatcher_HandlesPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "already.ogg")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := &handlerRecorder{}
	cancel := startWatcher(t, dir, rec)
	defer cancel()

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.list()) == 1 }) {
		t.Fatalf("handled = %v, files present at startup must be processed", rec.list())
	}
}

func TestWatcher_RetriesBusyFile(t *testing.T) {
	dir := t.TempDir()
	rec := &handlerRecorder{busyFirst: true}
	cancel := startWatcher(t, dir, rec)
	defer cancel()

	path := filepath.Join(dir, "drop.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return len(rec.list()) == 1 }) {
		t.Fatalf("handled = %v, busy-rejected file must be retried", rec.list())
	}
	if rec.list()[0] != path {
		t.Errorf("handled = %v", rec.list())
	}
}

type fakeConnTester struct {
	result plaud.ConnResult
}

func (f *fakeConnTester) TestConnection(ctx context.Context) plaud.ConnResult {
	return f.result
}

func newPollerEnv(t *testing.T, tester *fakeConnTester) (*Poller, *store.ConnStatusFile) {
	t.Helper()
	conn := store.NewConnStatusFile(filepath.Join(t.TempDir(), "plaud_conn.json"))
	return NewPoller(tester, conn), conn
}

func TestPoller_WritesConnStatus(t *testing.T) {
	tester := &fakeConnTester{result: plaud.ConnResult{OK: true, Message: "5 recordings", RecordingCount: 5}}
	p, conn := newPollerEnv(t, tester)

	p.Poll(context.Background())

	status := conn.Read()
	if status == nil || !status.OK || status.Message != "5 recordings" {
		t.Errorf("conn status = %+v", status)
	}
}

func TestPoller_FailureWritesConnStatus(t *testing.T) {
	tester := &fakeConnTester{result: plaud.ConnResult{OK: false, Message: "api down"}}
	p, conn := newPollerEnv(t, tester)

	p.Poll(context.Background())

	status := conn.Read()
	if status == nil || status.OK {
		t.Errorf("conn status = %+v", status)
	}
}
