package build

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/content"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/util/sets"
)

// Escalation reasons reported in BuildResult.Reason.
const (
	ReasonNoBaseline    = "no successful prior build"
	ReasonConfigChanged = "configuration changed"
	// ReasonConfigReloadFailed is set by watch sessions that keep building
	// with the previous configuration.
	ReasonConfigReloadFailed = "configuration reload failed"
	ReasonTemplateAdded      = "template created"
	ReasonTemplateDeleted    = "template deleted"
)

// classified is one change mapped onto its source tree.
type classified struct {
	Change
	class sourceClass
	inner string
}

// BuildIncremental re-renders only the artifacts affected by changes and
// removes the outputs of deleted content. It runs a full build instead when
// there is no successful prior build, when configuration changed, or when a
// template was created or deleted.
func (s *Scheduler) BuildIncremental(ctx context.Context, changes []Change) *BuildResult {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	batch := s.classifyAll(changes)
	if reason := s.escalation(batch); reason != "" {
		res := s.begin(ModeFull, reason)
		s.buildAllLocked(ctx, res)
		s.finish(ctx, res)
		return res
	}
	res := s.begin(ModeIncremental, "")
	s.buildIncrementalLocked(ctx, res, batch)
	s.finish(ctx, res)
	return res
}

// classifyAll drops ignored paths and keeps the last change per path. A
// deleted directory expands into deletions of the sources known under it.
func (s *Scheduler) classifyAll(changes []Change) []classified {
	last := make(map[string]int, len(changes))
	var out []classified
	add := func(c classified) {
		if i, ok := last[c.Path]; ok {
			out[i] = c
			return
		}
		last[c.Path] = len(out)
		out = append(out, c)
	}
	for _, ch := range changes {
		class, inner := classify(s.cfg, ch.Path)
		if class == classIgnored {
			if ch.Kind == Deleted {
				for _, c := range s.expandRemovedDir(ch.Path) {
					add(c)
				}
			}
			continue
		}
		add(classified{Change: ch, class: class, inner: inner})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Scheduler) expandRemovedDir(rel string) []classified {
	var out []classified
	if inner, ok := under(rel, s.cfg.Rel(s.cfg.ContentDir)); ok {
		prefix := inner + "/"
		for _, src := range s.knownSources() {
			if innerSrc, ok := under(src, s.cfg.Rel(s.cfg.ContentDir)); ok && strings.HasPrefix(innerSrc, prefix) {
				out = append(out, classified{Change: Change{Path: src, Kind: Deleted}, class: classContent, inner: innerSrc})
			}
		}
		return out
	}
	if inner, ok := under(rel, s.cfg.Rel(s.cfg.TemplatesDir)); ok {
		return []classified{{Change: Change{Path: rel, Kind: Deleted}, class: classTemplate, inner: inner}}
	}
	if inner, ok := under(rel, s.cfg.Rel(s.cfg.AssetsDir)); ok && s.assets != nil {
		prefix := inner + "/"
		for _, p := range s.assets.Paths() {
			if strings.HasPrefix(p, prefix) {
				out = append(out, classified{Change: Change{Path: s.assets.SourcePath(p), Kind: Deleted}, class: classAsset, inner: p})
			}
		}
	}
	return out
}

// knownSources lists content sources that parsed or failed to parse.
func (s *Scheduler) knownSources() []string {
	srcs := make([]string, 0, len(s.items)+len(s.failures))
	for src := range s.items {
		srcs = append(srcs, src)
	}
	for src := range s.failures {
		srcs = append(srcs, src)
	}
	sort.Strings(srcs)
	return srcs
}

func (s *Scheduler) escalation(batch []classified) string {
	if !s.baseline {
		return ReasonNoBaseline
	}
	for _, c := range batch {
		switch {
		case c.class == classConfig:
			return ReasonConfigChanged
		case c.class == classTemplate && c.Kind == Created:
			return ReasonTemplateAdded
		case c.class == classTemplate && c.Kind == Deleted:
			return ReasonTemplateDeleted
		}
	}
	return ""
}

func (s *Scheduler) buildIncrementalLocked(ctx context.Context, res *BuildResult, batch []classified) {
	s.setState(StateInvalidating, res)
	phase := time.Now()
	if err := cancelled(ctx); err != nil {
		s.abort(res, err)
		return
	}

	nextItems := make(map[string]*content.Item, len(s.items))
	for k, v := range s.items {
		nextItems[k] = v
	}
	nextFailures := make(map[string]Failure, len(s.failures))
	for k, v := range s.failures {
		nextFailures[k] = v
	}

	var (
		reparse       []string
		deleted       []string
		changedAssets []string
		touched       = sets.New[string]()
		newFailures   []Failure
	)
	for _, c := range batch {
		slog.Debug("Change", logfields.BuildID(res.ID), logfields.Path(c.Path), logfields.Change(c.Kind.String()))
		switch c.class {
		case classTemplate:
			for _, plan := range s.templates.Invalidate(c.inner) {
				slog.Debug("Dropped render plan", logfields.BuildID(res.ID), logfields.Template(plan))
			}
			s.graph.Invalidate(s.templates.SourcePath(c.inner))
		case classAsset:
			changed, err := s.assets.Refresh(c.inner)
			if err != nil {
				s.abort(res, ferrors.WrapError(err, ferrors.CategoryIO, "cannot read asset").Fatal().
					WithContext("path", c.Path).Build())
				return
			}
			if changed {
				s.graph.Invalidate(s.assets.SourcePath(c.inner))
			}
			changedAssets = append(changedAssets, c.inner)
		case classContent:
			src := s.contentSource(c.inner)
			s.graph.Invalidate(src)
			if c.Kind == Deleted {
				s.graph.Invalidate(s.dirSource(contentDir(c.inner)))
				delete(nextItems, src)
				delete(nextFailures, src)
				deleted = append(deleted, src)
				continue
			}
			reparse = append(reparse, c.inner)
		}
	}

	for _, p := range s.parseAll(ctx, reparse) {
		// Any change to a page can change the listings of its directory.
		listing := s.dirSource(contentDir(p.rel))
		if p.err != nil {
			if _, listed := nextItems[p.source]; listed {
				s.graph.Invalidate(listing)
			}
			delete(nextItems, p.source)
			f := Failure{Source: p.source, Err: p.err}
			nextFailures[p.source] = f
			newFailures = append(newFailures, f)
			continue
		}
		delete(nextFailures, p.source)
		if old, ok := nextItems[p.source]; ok && old.Hash == p.item.Hash && old.OutputPath == p.item.OutputPath {
			slog.Debug("Content unchanged", logfields.BuildID(res.ID), logfields.Path(p.source), slog.String("fingerprint", p.item.Fingerprint))
			continue
		}
		nextItems[p.source] = p.item
		touched.Add(p.source)
		s.graph.Invalidate(listing)
	}
	if err := cancelled(ctx); err != nil {
		s.abort(res, err)
		return
	}

	pages := active(nextItems)
	if err := checkCollisions(pages); err != nil {
		s.abort(res, err)
		return
	}
	dirty := s.graph.TakeDirty()
	var targets []*content.Item
	for _, it := range pages {
		if dirty.Has(it.OutputPath) || touched.Has(it.SourcePath) {
			targets = append(targets, it)
		}
	}
	plans, err := s.resolvePlans(targets)
	if err != nil {
		s.abort(res, err)
		return
	}
	s.recorder.ObservePhaseDuration("invalidate", time.Since(phase))
	slog.Debug("Invalidated artifacts", logfields.BuildID(res.ID), logfields.Count(dirty.Len()), slog.Int("targets", len(targets)))

	s.setState(StateRendering, res)
	phase = time.Now()
	outcomes := s.renderItems(ctx, targets, pages, plans)
	s.recorder.ObservePhaseDuration("render", time.Since(phase))
	if err := cancelled(ctx); err != nil {
		s.abort(res, err)
		return
	}

	s.setState(StateWriting, res)
	phase = time.Now()
	s.items = nextItems
	s.failures = nextFailures
	for _, src := range deleted {
		s.graph.RemoveSource(src)
	}
	for _, f := range newFailures {
		s.fail(res, f)
	}
	s.writeRendered(res, outcomes)
	s.sweep(res, s.ownedOutputs(pages))
	if len(targets) > 0 || len(res.Removed) > 0 {
		s.writeSitemap(res, pages)
		s.writeRobots(res, pages)
	}
	s.copyAssets(res, changedAssets)
	s.recorder.ObservePhaseDuration("write", time.Since(phase))
}
