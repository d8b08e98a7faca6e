package build

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/content"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/manifest"
)

// ManifestPath is where the persistent artifact manifest of cfg lives.
func ManifestPath(cfg *config.BuildConfig) string {
	return filepath.Join(cfg.CacheDir, manifest.FileName)
}

// BuildAll runs one full build of cfg, persisting the manifest in the cache
// directory. opts are applied after the manifest store so a caller may
// replace it.
func BuildAll(ctx context.Context, cfg *config.BuildConfig, opts ...Option) *BuildResult {
	s, closeStore := open(cfg, opts)
	defer closeStore()
	return s.BuildAll(ctx)
}

// BuildIncremental applies changes on top of the state recorded by the last
// build of cfg. Without a usable manifest it runs a full build.
func BuildIncremental(ctx context.Context, cfg *config.BuildConfig, changes []Change, opts ...Option) *BuildResult {
	s, closeStore := open(cfg, opts)
	defer closeStore()
	s.Resume(ctx)
	return s.BuildIncremental(ctx, changes)
}

func open(cfg *config.BuildConfig, opts []Option) (*Scheduler, func()) {
	var all []Option
	closeStore := func() {}
	st, err := manifest.OpenSQLite(ManifestPath(cfg))
	if err != nil {
		slog.Warn("Manifest unavailable, using in-memory state", logfields.Path(ManifestPath(cfg)), logfields.Error(err))
	} else {
		all = append(all, WithStore(st))
		closeStore = func() {
			if err := st.Close(); err != nil {
				slog.Warn("Could not close manifest", logfields.Error(err))
			}
		}
	}
	all = append(all, opts...)
	return NewScheduler(cfg, all...), closeStore
}

// Resume rebuilds the in-memory baseline from the stored manifest: content
// is re-parsed and the graph is seeded from each artifact's recorded
// sources. Pages that had no output are queued for the next incremental
// build. It reports whether a baseline is now available. Changes made since
// the manifest was written must be passed to the next incremental build.
func (s *Scheduler) Resume(ctx context.Context) bool {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.baseline {
		return true
	}
	s.loadManifest(ctx)
	if len(s.artifacts) == 0 {
		return false
	}

	assets, err := ScanAssets(s.cfg.AssetsDir, s.cfg.Rel(s.cfg.AssetsDir), s.cfg.BaseURL)
	if err != nil {
		slog.Warn("Cannot resume, asset scan failed", logfields.Error(err))
		return false
	}
	rels, err := content.Discover(s.cfg.ContentDir)
	if err != nil {
		slog.Warn("Cannot resume, content scan failed", logfields.Error(err))
		return false
	}
	items := make(map[string]*content.Item, len(rels))
	failures := make(map[string]Failure)
	for _, p := range s.parseAll(ctx, rels) {
		if p.err != nil {
			failures[p.source] = Failure{Source: p.source, Err: p.err}
			continue
		}
		items[p.source] = p.item
	}
	if ctx.Err() != nil {
		return false
	}

	s.assets = assets
	s.items = items
	s.failures = failures
	s.templates.Reset()
	s.graph.Reset()
	for _, out := range manifest.Outputs(s.artifacts) {
		s.graph.ReplaceArtifact(out, s.artifacts[out].Sources)
	}
	// Pages without a stored artifact failed last time; retry them.
	for _, it := range active(items) {
		if _, ok := s.artifacts[it.OutputPath]; !ok {
			s.graph.RecordDependency(it.OutputPath, it.SourcePath)
			s.graph.Invalidate(it.SourcePath)
		}
	}
	s.baseline = true
	slog.Debug("Resumed from manifest", logfields.Count(len(s.artifacts)))
	return true
}
