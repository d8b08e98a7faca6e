package daemon

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/metrics"
	"git.home.luguber.info/inful/mdsite/internal/notify"
	"git.home.luguber.info/inful/mdsite/internal/watcher"
)

func newSite(t *testing.T) *config.BuildConfig {
	t.Helper()
	cfg := config.New(t.TempDir())
	files := map[string]string{
		"templates/page.html": `<h1>{{ page.title }}</h1>{{ content }}`,
		"content/index.md":    "---\ntitle: Home\n---\nWelcome",
		"content/about.md":    "---\ntitle: About\n---\nAbout us",
	}
	for rel, body := range files {
		p := cfg.Abs(rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	require.NoError(t, os.MkdirAll(cfg.AssetsDir, 0o750))
	return cfg
}

type resultSink struct {
	ch chan *build.BuildResult
}

func newSink() *resultSink {
	return &resultSink{ch: make(chan *build.BuildResult, 32)}
}

func (r *resultSink) add(res *build.BuildResult) { r.ch <- res }

func (r *resultSink) next(t *testing.T) *build.BuildResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a build")
		return nil
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []notify.BuildEvent
}

func (c *capturePublisher) Publish(_ context.Context, ev notify.BuildEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func startSession(t *testing.T, cfg *config.BuildConfig, opts ...Option) (*Session, *resultSink) {
	t.Helper()
	sink := newSink()
	opts = append([]Option{WithWatcherOptions(watcher.Options{Debounce: 30 * time.Millisecond})}, opts...)
	s, err := Watch(t.Context(), cfg, sink.add, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, sink
}

func TestWatchBuildsThenRebuildsIncrementally(t *testing.T) {
	cfg := newSite(t)
	pub := &capturePublisher{}
	s, sink := startSession(t, cfg, WithPublisher(pub))

	first := sink.next(t)
	require.NoError(t, first.Fatal)
	assert.Equal(t, build.ModeFull, first.Mode)
	assert.Equal(t, []string{"about/index.html", "index.html"}, first.Written)

	require.NoError(t, os.WriteFile(cfg.Abs("content/about.md"), []byte("---\ntitle: About\n---\nAbout us, edited"), 0o600))
	second := sink.next(t)
	require.NoError(t, second.Fatal)
	assert.Equal(t, build.ModeIncremental, second.Mode)
	assert.Equal(t, []string{"about/index.html"}, second.Written)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "about", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "edited")

	assert.Len(t, s.Results(), 2)
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 10*time.Millisecond)
}

func TestWatchRequestFullRebuild(t *testing.T) {
	cfg := newSite(t)
	s, sink := startSession(t, cfg)
	require.NoError(t, sink.next(t).Fatal)

	s.RequestFullRebuild()
	res := sink.next(t)
	assert.Equal(t, build.ModeFull, res.Mode)
	assert.Empty(t, res.Written, "nothing changed since the initial build")
}

func TestWatchPeriodicFullRebuild(t *testing.T) {
	cfg := newSite(t)
	cfg.Watch.FullRebuildInterval = 200 * time.Millisecond
	_, sink := startSession(t, cfg)

	require.NoError(t, sink.next(t).Fatal)
	res := sink.next(t)
	assert.Equal(t, build.ModeFull, res.Mode)
}

func TestWatchServesMetrics(t *testing.T) {
	cfg := newSite(t)
	cfg.Watch.MetricsAddr = "127.0.0.1:0"
	s, sink := startSession(t, cfg)
	require.NoError(t, sink.next(t).Fatal)

	resp, err := http.Get("http://" + s.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mdsite_build_outcomes_total")
}

func TestStopClosesDone(t *testing.T) {
	cfg := newSite(t)
	s, sink := startSession(t, cfg)
	require.NoError(t, sink.next(t).Fatal)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Stop returns")
	}
}

// holdingRecorder parks the first build at the end of its render phase until
// release is closed, and reports every batch the watcher enqueues.
type holdingRecorder struct {
	metrics.NoopRecorder
	once      sync.Once
	rendering chan struct{}
	release   chan struct{}
	batches   chan int
}

func newHoldingRecorder() *holdingRecorder {
	return &holdingRecorder{
		rendering: make(chan struct{}),
		release:   make(chan struct{}),
		batches:   make(chan int, 16),
	}
}

func (h *holdingRecorder) ObservePhaseDuration(phase string, _ time.Duration) {
	if phase != "render" {
		return
	}
	h.once.Do(func() {
		close(h.rendering)
		<-h.release
	})
}

func (h *holdingRecorder) ObserveWatchBatch(n int) { h.batches <- n }

func TestBatchDuringBuildRunsInNextPass(t *testing.T) {
	cfg := newSite(t)
	rec := newHoldingRecorder()
	var released sync.Once
	release := func() { released.Do(func() { close(rec.release) }) }
	t.Cleanup(release)
	s, sink := startSession(t, cfg, WithRecorder(rec))

	select {
	case <-rec.rendering:
	case <-time.After(5 * time.Second):
		t.Fatal("initial build never reached rendering")
	}
	require.NoError(t, os.WriteFile(cfg.Abs("content/about.md"), []byte("---\ntitle: About\n---\nLate edit"), 0o600))
	select {
	case <-rec.batches:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never enqueued the edit")
	}
	release()

	first := sink.next(t)
	require.NoError(t, first.Fatal)
	assert.Equal(t, build.ModeFull, first.Mode)
	assert.Equal(t, []string{"about/index.html", "index.html"}, first.Written)

	second := sink.next(t)
	require.NoError(t, second.Fatal)
	assert.Equal(t, build.ModeIncremental, second.Mode)
	assert.Equal(t, []string{"about/index.html"}, second.Written)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "about", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Late edit")
	assert.Len(t, s.Results(), 2)
}

func TestConfigReloadFailureKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mdsite.yaml")
	files := map[string]string{
		"mdsite.yaml":         "base_url: https://example.org\n",
		"templates/page.html": `<h1>{{ page.title }}</h1>`,
		"content/index.md":    "---\ntitle: Home\n---\n",
	}
	for rel, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	cfg, err := config.Load(cfgPath, "")
	require.NoError(t, err)
	_, sink := startSession(t, cfg)
	require.NoError(t, sink.next(t).Fatal)

	require.NoError(t, os.WriteFile(cfgPath, []byte("workers: [unclosed\n"), 0o600))
	res := sink.next(t)
	assert.Equal(t, build.ModeFull, res.Mode)
	assert.Equal(t, build.ReasonConfigReloadFailed, res.Reason)
	require.NoError(t, res.Fatal)

	require.NoError(t, os.WriteFile(cfgPath, []byte("base_url: https://example.com\n"), 0o600))
	res = sink.next(t)
	assert.Equal(t, build.ReasonConfigChanged, res.Reason)
}
