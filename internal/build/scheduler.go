package build

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/content"
	"git.home.luguber.info/inful/mdsite/internal/depgraph"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/manifest"
	"git.home.luguber.info/inful/mdsite/internal/markdown"
	"git.home.luguber.info/inful/mdsite/internal/metrics"
	"git.home.luguber.info/inful/mdsite/internal/templates"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStore persists artifacts and build history in st. The default is an
// in-memory store.
func WithStore(st manifest.Store) Option {
	return func(s *Scheduler) { s.store = st }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithRevision sets the build_revision exposed to templates.
func WithRevision(rev string) Option {
	return func(s *Scheduler) { s.revision = rev }
}

// Scheduler runs builds for one configuration. Builds are serialised; State
// and Graph may be read concurrently.
type Scheduler struct {
	cfg      *config.BuildConfig
	store    manifest.Store
	recorder metrics.Recorder
	revision string

	router    *content.Router
	markdown  *markdown.Renderer
	templates *templates.Store
	graph     *depgraph.Graph
	assets    *AssetSet

	buildMu sync.Mutex
	state   atomic.Int32

	// Fields below are only touched while buildMu is held.
	items     map[string]*content.Item // by source path
	failures  map[string]Failure       // parse failures by source path
	artifacts map[string]manifest.Artifact
	loaded    bool
	baseline  bool
}

// NewScheduler returns an idle Scheduler for cfg.
func NewScheduler(cfg *config.BuildConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		store:     manifest.NewMemoryStore(),
		recorder:  metrics.NoopRecorder{},
		router:    content.NewRouter(cfg.Routes, cfg.PrettyURLs),
		markdown:  markdown.New(markdown.Options{BaseURL: cfg.BaseURL, HardWraps: cfg.HardWraps}),
		templates: templates.NewStore(cfg.TemplatesDir, cfg.Rel(cfg.TemplatesDir)),
		graph:     depgraph.New(),
		items:     make(map[string]*content.Item),
		failures:  make(map[string]Failure),
		artifacts: make(map[string]manifest.Artifact),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration the scheduler builds.
func (s *Scheduler) Config() *config.BuildConfig { return s.cfg }

// State returns the current phase.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Graph exposes the dependency graph for inspection.
func (s *Scheduler) Graph() *depgraph.Graph { return s.graph }

// HasBaseline reports whether the last build completed without a fatal
// error, which incremental builds require.
func (s *Scheduler) HasBaseline() bool {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.baseline
}

// Artifacts returns the current artifact table keyed by output path.
func (s *Scheduler) Artifacts() map[string]manifest.Artifact {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	out := make(map[string]manifest.Artifact, len(s.artifacts))
	for k, v := range s.artifacts {
		out[k] = v
	}
	return out
}

func (s *Scheduler) setState(st State, res *BuildResult) {
	s.state.Store(int32(st))
	slog.Debug("Build state", logfields.BuildID(res.ID), logfields.Mode(string(res.Mode)), logfields.State(st.String()))
}

func (s *Scheduler) begin(mode Mode, reason string) *BuildResult {
	res := &BuildResult{ID: uuid.NewString(), Mode: mode, Reason: reason, Started: time.Now()}
	attrs := []any{logfields.BuildID(res.ID), logfields.Mode(string(mode))}
	if reason != "" {
		attrs = append(attrs, slog.String("reason", reason))
	}
	if s.cfg.Variant != "" {
		attrs = append(attrs, logfields.Variant(s.cfg.Variant))
	}
	slog.Info("Build started", attrs...)
	return res
}

func (s *Scheduler) finish(ctx context.Context, res *BuildResult) {
	res.Elapsed = time.Since(res.Started)
	sort.Strings(res.Written)
	sort.Strings(res.Skipped)
	sort.Strings(res.Removed)
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Source < res.Failed[j].Source })
	res.Succeeded = append(append([]string{}, res.Written...), res.Skipped...)
	sort.Strings(res.Succeeded)

	persistCtx := context.WithoutCancel(ctx)
	if res.Fatal == nil {
		if err := s.store.Save(persistCtx, s.artifacts); err != nil {
			slog.Warn("Could not persist artifact manifest", logfields.BuildID(res.ID), logfields.Error(err))
		}
	}
	rec := manifest.BuildRecord{
		ID:       res.ID,
		Mode:     string(res.Mode),
		Outcome:  string(res.Outcome()),
		Revision: s.revision,
		Variant:  s.cfg.Variant,
		Written:  len(res.Written),
		Skipped:  len(res.Skipped),
		Removed:  len(res.Removed),
		Failed:   len(res.Failed),
		Started:  res.Started,
		Elapsed:  res.Elapsed,
	}
	if err := s.store.AppendBuild(persistCtx, rec); err != nil {
		slog.Warn("Could not record build history", logfields.BuildID(res.ID), logfields.Error(err))
	}

	s.recorder.ObserveBuildDuration(string(res.Mode), res.Elapsed)
	s.recorder.IncBuildOutcome(string(res.Mode), string(res.Outcome()))
	s.recorder.AddArtifacts(metrics.ArtifactWritten, len(res.Written))
	s.recorder.AddArtifacts(metrics.ArtifactSkipped, len(res.Skipped))
	s.recorder.AddArtifacts(metrics.ArtifactRemoved, len(res.Removed))
	s.recorder.AddArtifacts(metrics.ArtifactFailed, len(res.Failed))
	s.recorder.SetGraphArtifacts(len(s.graph.Artifacts()))

	s.state.Store(int32(StateIdle))

	attrs := []any{
		logfields.BuildID(res.ID),
		logfields.Mode(string(res.Mode)),
		logfields.Outcome(string(res.Outcome())),
		slog.Int("written", len(res.Written)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("removed", len(res.Removed)),
		slog.Int("failed", len(res.Failed)),
		logfields.DurationMS(float64(res.Elapsed.Microseconds()) / 1000),
	}
	switch res.Outcome() {
	case OutcomeFatal:
		slog.Error("Build aborted", append(attrs, logfields.Error(res.Fatal))...)
	case OutcomePartial:
		for _, f := range res.Failed {
			slog.Warn("Page failed", logfields.BuildID(res.ID), logfields.Path(f.Source), logfields.Kind(f.Kind()), logfields.Error(f.Err))
		}
		slog.Warn("Build finished with failures", attrs...)
	default:
		slog.Info("Build finished", attrs...)
	}
}

// loadManifest seeds the artifact table from the store once per scheduler
// so unchanged outputs from a previous process are skipped.
func (s *Scheduler) loadManifest(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	stored, err := s.store.Load(ctx)
	if err != nil {
		slog.Warn("Could not load artifact manifest, starting empty", logfields.Error(err))
		return
	}
	s.artifacts = stored
}
