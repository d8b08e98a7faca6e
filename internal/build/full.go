package build

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/content"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
)

// BuildAll discovers, parses, renders and writes the whole site, then
// rebuilds the dependency graph from scratch. Build-fatal errors abort
// before anything is written.
func (s *Scheduler) BuildAll(ctx context.Context) *BuildResult {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	res := s.begin(ModeFull, "")
	s.buildAllLocked(ctx, res)
	s.finish(ctx, res)
	return res
}

func (s *Scheduler) buildAllLocked(ctx context.Context, res *BuildResult) {
	res.Mode = ModeFull
	s.loadManifest(ctx)

	s.setState(StateScanning, res)
	phase := time.Now()
	if err := cancelled(ctx); err != nil {
		s.abort(res, err)
		return
	}
	assets, err := ScanAssets(s.cfg.AssetsDir, s.cfg.Rel(s.cfg.AssetsDir), s.cfg.BaseURL)
	if err != nil {
		s.abort(res, ferrors.WrapError(err, ferrors.CategoryIO, "cannot scan assets").Fatal().
			WithContext("path", s.cfg.Rel(s.cfg.AssetsDir)).Build())
		return
	}
	rels, err := content.Discover(s.cfg.ContentDir)
	if err != nil {
		s.abort(res, ferrors.WrapError(err, ferrors.CategoryIO, "cannot scan content").Fatal().
			WithContext("path", s.cfg.Rel(s.cfg.ContentDir)).Build())
		return
	}
	s.templates.Reset()

	items := make(map[string]*content.Item, len(rels))
	failures := make(map[string]Failure)
	for _, p := range s.parseAll(ctx, rels) {
		if p.err != nil {
			failures[p.source] = Failure{Source: p.source, Err: p.err}
			continue
		}
		items[p.source] = p.item
	}
	if err := cancelled(ctx); err != nil {
		s.abort(res, err)
		return
	}

	pages := active(items)
	if err := checkCollisions(pages); err != nil {
		s.abort(res, err)
		return
	}
	plans, err := s.resolvePlans(pages)
	if err != nil {
		s.abort(res, err)
		return
	}
	s.recorder.ObservePhaseDuration("scan", time.Since(phase))
	slog.Debug("Scanned sources", logfields.BuildID(res.ID), logfields.Count(len(rels)), slog.Int("pages", len(pages)), slog.Int("assets", len(assets.Paths())))

	s.setState(StateRendering, res)
	phase = time.Now()
	prevAssets := s.assets
	s.assets = assets
	outcomes := s.renderItems(ctx, pages, pages, plans)
	s.recorder.ObservePhaseDuration("render", time.Since(phase))
	if err := cancelled(ctx); err != nil {
		s.assets = prevAssets
		s.abort(res, err)
		return
	}

	s.setState(StateWriting, res)
	phase = time.Now()
	s.items = items
	s.failures = failures
	s.graph.Reset()
	for _, f := range sortedFailures(failures) {
		s.fail(res, f)
	}
	s.writeRendered(res, outcomes)
	s.sweep(res, s.ownedOutputs(pages))
	s.writeSitemap(res, pages)
	s.writeRobots(res, pages)
	s.copyAssets(res, nil)
	s.recorder.ObservePhaseDuration("write", time.Since(phase))
	s.baseline = true
}
