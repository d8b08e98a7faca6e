// Package daemon runs watch sessions: an initial full build followed by
// incremental builds driven by settled filesystem changes.
//
// One coordinator goroutine owns the build scheduler and therefore the
// dependency graph. The watcher and the periodic full-rebuild job only push
// into a coalescing queue; a batch that arrives while a build runs is
// absorbed into the next pass.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/mdsite/internal/build"
	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/manifest"
	"git.home.luguber.info/inful/mdsite/internal/metrics"
	"git.home.luguber.info/inful/mdsite/internal/notify"
	"git.home.luguber.info/inful/mdsite/internal/revision"
	"git.home.luguber.info/inful/mdsite/internal/watcher"
)

// maxResults bounds the build history kept in memory by a session.
const maxResults = 64

// BatchFunc is called on the coordinator goroutine after every build.
type BatchFunc func(*build.BuildResult)

// Publisher receives a summary of every build.
type Publisher interface {
	Publish(ctx context.Context, ev notify.BuildEvent) error
}

// Option configures Watch.
type Option func(*options)

type options struct {
	watcher   watcher.Options
	recorder  metrics.Recorder
	publisher Publisher
}

// WithWatcherOptions overrides debounce and ignore settings.
func WithWatcherOptions(o watcher.Options) Option {
	return func(opts *options) { opts.watcher = o }
}

// WithRecorder replaces the recorder that would otherwise be derived from
// watch.metrics_addr.
func WithRecorder(r metrics.Recorder) Option {
	return func(opts *options) { opts.recorder = r }
}

// WithPublisher replaces the NATS publisher derived from notify.nats_url.
func WithPublisher(p Publisher) Option {
	return func(opts *options) { opts.publisher = p }
}

// Session is a running watch session.
type Session struct {
	onBatch   BatchFunc
	queue     *changeQueue
	store     manifest.Store
	recorder  metrics.Recorder
	publisher Publisher
	closers   []func()

	watcher *watcher.Watcher
	cron    gocron.Scheduler
	metrics *metricsServer
	workers workerGroup

	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the coordinator goroutine.
	cfg      *config.BuildConfig
	sched    *build.Scheduler
	revision string

	mu      sync.Mutex
	results []*build.BuildResult
}

// Watch starts a session for cfg. The initial full build runs on the
// coordinator goroutine; onBatch, when set, sees its result first. The
// session ends when ctx is done or Stop is called.
func Watch(ctx context.Context, cfg *config.BuildConfig, onBatch BatchFunc, opts ...Option) (*Session, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		onBatch:   onBatch,
		queue:     newChangeQueue(),
		recorder:  o.recorder,
		publisher: o.publisher,
		cancel:    cancel,
		done:      make(chan struct{}),
		cfg:       cfg,
	}

	if err := s.setup(cfg, o); err != nil {
		cancel()
		s.shutdown()
		return nil, err
	}
	s.sched = s.newScheduler(cfg)

	s.queue.PushFull()
	s.workers.Go("watcher", func() {
		if err := s.watcher.Run(ctx); err != nil {
			slog.Error("File watcher stopped", logfields.Error(err))
		}
	})
	s.workers.Go("coordinator", func() { s.coordinate(ctx) })

	go func() {
		<-ctx.Done()
		_ = s.workers.StopAndWait(context.Background())
		s.shutdown()
		close(s.done)
	}()

	slog.Info("Watching for changes",
		logfields.Path(cfg.Root),
		slog.Duration("debounce", cfg.Watch.Debounce),
		slog.Duration("full_rebuild_interval", cfg.Watch.FullRebuildInterval))
	return s, nil
}

func (s *Session) setup(cfg *config.BuildConfig, o options) error {
	if st, err := manifest.OpenSQLite(build.ManifestPath(cfg)); err != nil {
		slog.Warn("Manifest unavailable, using in-memory state", logfields.Error(err))
		s.store = manifest.NewMemoryStore()
	} else {
		s.store = st
	}
	s.closers = append(s.closers, func() {
		if err := s.store.Close(); err != nil {
			slog.Warn("Could not close manifest", logfields.Error(err))
		}
	})

	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
		if cfg.Watch.MetricsAddr != "" {
			reg := newRegistry()
			s.recorder = metrics.NewPrometheusRecorder(reg)
			srv, err := startMetricsServer(cfg.Watch.MetricsAddr, reg)
			if err != nil {
				return err
			}
			s.metrics = srv
		}
	}

	if s.publisher == nil && cfg.Notify.NATSURL != "" {
		pub, err := notify.Connect(cfg.Notify)
		if err != nil {
			slog.Warn("Build notifications disabled", logfields.Error(err))
		} else {
			s.publisher = pub
			s.closers = append(s.closers, pub.Close)
		}
	}

	if cfg.Watch.FullRebuildInterval > 0 {
		cron, err := startPeriodic("full-rebuild", cfg.Watch.FullRebuildInterval, s.queue.PushFull)
		if err != nil {
			return err
		}
		s.cron = cron
	}

	w, err := watcher.New(cfg, s.enqueue, o.watcher)
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

func (s *Session) newScheduler(cfg *config.BuildConfig) *build.Scheduler {
	rev, err := revision.Head(cfg.Root)
	if err != nil {
		slog.Warn("Could not read source revision", logfields.Error(err))
	}
	s.revision = rev
	return build.NewScheduler(cfg,
		build.WithStore(s.store),
		build.WithRecorder(s.recorder),
		build.WithRevision(rev))
}

// enqueue is the watcher's batch handler. It never blocks.
func (s *Session) enqueue(changes []build.Change) {
	s.recorder.ObserveWatchBatch(len(changes))
	s.queue.Push(changes)
}

func (s *Session) coordinate(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.queue.Ready():
		}
		changes, full := s.queue.Take()
		if !full && len(changes) == 0 {
			continue
		}
		res := s.runBuild(ctx, changes, full)
		s.remember(res)
		s.publish(ctx, res)
		if s.onBatch != nil {
			s.onBatch(res)
		}
	}
}

func (s *Session) runBuild(ctx context.Context, changes []build.Change, full bool) *build.BuildResult {
	if build.ConfigChanged(s.cfg, changes) {
		err := s.reload()
		res := s.sched.BuildAll(ctx)
		res.Reason = build.ReasonConfigChanged
		if err != nil {
			res.Reason = build.ReasonConfigReloadFailed
		}
		return res
	}
	if full {
		return s.sched.BuildAll(ctx)
	}
	return s.sched.BuildIncremental(ctx, changes)
}

// reload re-reads the configuration and swaps in a fresh scheduler. On
// error the previous configuration stays active.
func (s *Session) reload() error {
	cfg, err := config.Load(s.cfg.ConfigPath, s.cfg.Variant)
	if err != nil {
		slog.Error("Failed to reload configuration, keeping previous", logfields.Error(err))
		return err
	}
	if s.cfg.Variant != "" {
		// Keep the variant's output location chosen at startup.
		cfg.OutputDir = s.cfg.OutputDir
		cfg.CacheDir = s.cfg.CacheDir
	}
	if cfg.ContentDir != s.cfg.ContentDir || cfg.TemplatesDir != s.cfg.TemplatesDir || cfg.AssetsDir != s.cfg.AssetsDir {
		slog.Warn("Source directories changed; restart watch to follow them")
	}
	slog.Info("Configuration reloaded", logfields.Path(cfg.ConfigPath))
	s.cfg = cfg
	s.sched = s.newScheduler(cfg)
	return nil
}

func (s *Session) publish(ctx context.Context, res *build.BuildResult) {
	if s.publisher == nil {
		return
	}
	ev := notify.NewBuildEvent(res, s.cfg.Variant, s.revision)
	if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("Could not publish build event", logfields.BuildID(res.ID), logfields.Error(err))
	}
}

func (s *Session) remember(res *build.BuildResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	if len(s.results) > maxResults {
		s.results = s.results[len(s.results)-maxResults:]
	}
}

// Results returns the most recent build results, oldest first.
func (s *Session) Results() []*build.BuildResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*build.BuildResult(nil), s.results...)
}

// RequestFullRebuild queues a full build.
func (s *Session) RequestFullRebuild() {
	s.queue.PushFull()
}

// MetricsAddr is the bound metrics listen address, empty when disabled.
func (s *Session) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr()
}

// Done is closed once the session has fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stop ends the session and waits for it to wind down, bounded by ctx.
// A build in progress is cancelled before it writes.
func (s *Session) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) shutdown() {
	if s.cron != nil {
		if err := s.cron.Shutdown(); err != nil {
			slog.Warn("Error stopping periodic rebuilds", logfields.Error(err))
		}
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metrics.Stop(ctx); err != nil {
			slog.Warn("Error stopping metrics server", logfields.Error(err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	slog.Info("Watch session stopped")
}
