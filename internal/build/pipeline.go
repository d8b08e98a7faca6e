package build

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/content"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/logfields"
	"git.home.luguber.info/inful/mdsite/internal/manifest"
	"git.home.luguber.info/inful/mdsite/internal/render"
	"git.home.luguber.info/inful/mdsite/internal/templates"
	"git.home.luguber.info/inful/mdsite/internal/util/sets"
)

// parsed is the outcome of parsing one content file.
type parsed struct {
	source string
	rel    string
	item   *content.Item
	err    error
}

// parseAll parses content files (relative to the content directory) on the
// worker pool.
func (s *Scheduler) parseAll(ctx context.Context, rels []string) []parsed {
	results := runOrdered(ctx, rels, s.cfg.Workers, func(rel string) (*content.Item, error) {
		return s.parseOne(rel)
	})
	out := make([]parsed, len(rels))
	for i, r := range results {
		out[i] = parsed{source: s.contentSource(rels[i]), rel: rels[i], item: r.Value, err: r.Err}
	}
	return out
}

func (s *Scheduler) parseOne(rel string) (*content.Item, error) {
	abs := filepath.Join(s.cfg.ContentDir, filepath.FromSlash(rel))
	return content.ReadFile(abs, s.cfg.Rel(abs), rel, content.Options{
		DefaultLayout: s.cfg.DefaultLayout,
		Router:        s.router,
	})
}

func (s *Scheduler) contentSource(rel string) string {
	return s.cfg.Rel(filepath.Join(s.cfg.ContentDir, filepath.FromSlash(rel)))
}

// active returns the non-draft items sorted by source path.
func active(items map[string]*content.Item) []*content.Item {
	out := make([]*content.Item, 0, len(items))
	for _, it := range items {
		if !it.Draft() {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out
}

// checkCollisions fails when two items route to the same output path.
func checkCollisions(items []*content.Item) error {
	seen := make(map[string]string, len(items))
	for _, it := range items {
		if other, dup := seen[it.OutputPath]; dup {
			return ferrors.OutputCollision("two content files route to "+it.OutputPath).
				WithContext("artifact", it.OutputPath).
				WithContext("sources", other+", "+it.SourcePath).
				Build()
		}
		seen[it.OutputPath] = it.SourcePath
	}
	return nil
}

// resolvePlans resolves every layout used by items. Any error is build-fatal.
func (s *Scheduler) resolvePlans(items []*content.Item) (map[string]*templates.Resolved, error) {
	firstUser := make(map[string]string)
	var layouts []string
	for _, it := range items {
		if _, ok := firstUser[it.Layout]; !ok {
			firstUser[it.Layout] = it.SourcePath
			layouts = append(layouts, it.Layout)
		}
	}
	sort.Strings(layouts)

	plans := make(map[string]*templates.Resolved, len(layouts))
	for _, name := range layouts {
		plan, err := s.templates.Resolve(name)
		if err != nil {
			if ce, ok := ferrors.AsClassified(err); ok {
				return nil, ce.WithContext("used_by", firstUser[name])
			}
			return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "resolve template").Fatal().
				WithContext("template", name).Build()
		}
		plans[name] = plan
	}
	return plans, nil
}

type rendered struct {
	item *content.Item
	plan *templates.Resolved
	page render.Page
	err  error
}

// renderItems renders items in parallel. pages is every active page of the
// build, which list_md reads from.
func (s *Scheduler) renderItems(ctx context.Context, items, pages []*content.Item, plans map[string]*templates.Resolved) []rendered {
	engine := render.New(s.cfg, s.markdown, s.assets, s.revision).WithPages(newPageIndex(pages, s.templates))
	results := runOrdered(ctx, items, s.cfg.Workers, func(it *content.Item) (render.Page, error) {
		return engine.RenderPage(it, plans[it.Layout])
	})
	out := make([]rendered, len(items))
	for i, r := range results {
		out[i] = rendered{item: items[i], plan: plans[items[i].Layout], page: r.Value, err: r.Err}
	}
	return out
}

// pageIndex serves list_md from the active pages of one build.
type pageIndex struct {
	byDir map[string][]*content.Item
	store *templates.Store
}

func newPageIndex(pages []*content.Item, store *templates.Store) *pageIndex {
	idx := &pageIndex{byDir: make(map[string][]*content.Item), store: store}
	for _, it := range pages {
		dir := contentDir(it.Rel)
		idx.byDir[dir] = append(idx.byDir[dir], it)
	}
	for _, list := range idx.byDir {
		sort.Slice(list, func(i, j int) bool { return list[i].SourcePath < list[j].SourcePath })
	}
	return idx
}

func (p *pageIndex) PagesIn(dir string) []*content.Item { return p.byDir[dir] }

func (p *pageIndex) Plan(name string) (*templates.Resolved, error) { return p.store.Resolve(name) }

// contentDir is the directory of a content-relative path, "" at the root.
func contentDir(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// dirSource is the graph source of a content directory listed by list_md:
// its project-relative path with a trailing slash ("content/posts/").
func (s *Scheduler) dirSource(dir string) string {
	return strings.TrimSuffix(s.contentSource(dir), "/") + "/"
}

// sourcesFor lists every source an item's output depends on: the content
// file, each template in the plan's chain and includes, and referenced
// assets. Pages using list_md also depend on the listed directories, the
// listed pages and the templates they were rendered with.
func (s *Scheduler) sourcesFor(it *content.Item, plan *templates.Resolved, page render.Page) []string {
	srcs := sets.New(it.SourcePath)
	for _, p := range append([]*templates.Resolved{plan}, page.Plans...) {
		for _, name := range p.Templates() {
			srcs.Add(s.templates.SourcePath(name))
		}
		for _, a := range p.Assets {
			srcs.Add(s.assets.SourcePath(a))
		}
	}
	for _, dir := range page.Dirs {
		srcs.Add(s.dirSource(dir))
	}
	srcs.Add(page.Listed...)
	return sets.Sorted(srcs)
}

// record updates the graph for one rendered item, along with the
// extends and include edges of every template it was rendered with.
func (s *Scheduler) record(it *content.Item, plan *templates.Resolved, page render.Page) []string {
	sources := s.sourcesFor(it, plan, page)
	s.graph.ReplaceArtifact(it.OutputPath, sources)
	used := sets.New(plan.Templates()...)
	for _, p := range page.Plans {
		used.Add(p.Templates()...)
	}
	for _, name := range sets.Sorted(used) {
		node, err := s.templates.Load(name)
		if err != nil {
			continue
		}
		var bases []string
		if node.Parent != "" {
			bases = append(bases, s.templates.SourcePath(node.Parent))
		}
		for _, inc := range node.Includes {
			bases = append(bases, s.templates.SourcePath(inc))
		}
		s.graph.ReplaceInheritance(s.templates.SourcePath(name), bases)
	}
	return sources
}

// writeRendered writes successful renders (skipping unchanged content) and
// turns render errors into page failures with their stale output removed.
func (s *Scheduler) writeRendered(res *BuildResult, outcomes []rendered) {
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].item.OutputPath < outcomes[j].item.OutputPath })
	for _, o := range outcomes {
		sources := s.record(o.item, o.plan, o.page)
		if o.err != nil {
			s.fail(res, Failure{Source: o.item.SourcePath, Artifact: o.item.OutputPath, Err: o.err})
			continue
		}
		if err := s.writeArtifact(res, o.item.OutputPath, o.page.HTML, sources); err != nil {
			s.fail(res, Failure{Source: o.item.SourcePath, Artifact: o.item.OutputPath, Err: err})
		}
	}
}

// writeArtifact writes data to output unless the stored hash matches and the
// file is still present.
func (s *Scheduler) writeArtifact(res *BuildResult, output string, data []byte, sources []string) error {
	hash := hashBytes(data)
	target := filepath.Join(s.cfg.OutputDir, filepath.FromSlash(output))
	if prev, ok := s.artifacts[output]; ok && prev.Hash == hash && fileExists(target) {
		prev.Sources = sources
		s.artifacts[output] = prev
		res.Skipped = append(res.Skipped, output)
		return nil
	}
	if err := writeAtomic(target, data); err != nil {
		delete(s.artifacts, output)
		return ferrors.WrapError(err, ferrors.CategoryIO, "cannot write output").
			WithContext("artifact", output).Build()
	}
	s.artifacts[output] = manifest.Artifact{Output: output, Sources: sources, Hash: hash, Written: time.Now()}
	res.Written = append(res.Written, output)
	slog.Debug("Wrote artifact", logfields.BuildID(res.ID), logfields.Artifact(output))
	return nil
}

// fail records a page failure and removes the page's previous output.
func (s *Scheduler) fail(res *BuildResult, f Failure) {
	res.Failed = append(res.Failed, f)
	if f.Artifact != "" {
		s.removeArtifact(res, f.Artifact)
	}
}

// removeArtifact deletes an output file the manifest knows about.
func (s *Scheduler) removeArtifact(res *BuildResult, output string) {
	if _, ok := s.artifacts[output]; !ok {
		return
	}
	delete(s.artifacts, output)
	target := filepath.Join(s.cfg.OutputDir, filepath.FromSlash(output))
	if err := removeOutput(s.cfg.OutputDir, target); err != nil {
		slog.Warn("Could not remove stale output", logfields.BuildID(res.ID), logfields.Artifact(output), logfields.Error(err))
		return
	}
	res.Removed = append(res.Removed, output)
}

// sweep removes every stored artifact that no current item owns.
func (s *Scheduler) sweep(res *BuildResult, owned sets.Set[string]) {
	for _, out := range manifest.Outputs(s.artifacts) {
		if !owned.Has(out) {
			s.removeArtifact(res, out)
			s.graph.RemoveArtifact(out)
		}
	}
}

func (s *Scheduler) ownedOutputs(items []*content.Item) sets.Set[string] {
	owned := sets.New[string]()
	for _, it := range items {
		owned.Add(it.OutputPath)
	}
	if s.cfg.Sitemap {
		owned.Add(SitemapFile)
	}
	if s.cfg.Robots.Enabled {
		owned.Add(RobotsFile)
	}
	return owned
}

// copyAssets mirrors assets into the output directory when enabled.
func (s *Scheduler) copyAssets(res *BuildResult, only []string) {
	if !s.cfg.CopyAssets {
		return
	}
	var err error
	copied := 0
	if only == nil {
		copied, err = s.assets.Copy(s.cfg.OutputDir)
	} else {
		for _, p := range only {
			var ok bool
			if ok, err = s.assets.CopyOne(p, s.cfg.OutputDir); err != nil {
				break
			}
			if ok {
				copied++
			}
		}
	}
	if err != nil {
		slog.Warn("Asset copy failed", logfields.BuildID(res.ID), logfields.Error(err))
		return
	}
	if copied > 0 {
		slog.Debug("Copied assets", logfields.BuildID(res.ID), logfields.Count(copied))
	}
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "build cancelled").Fatal().Build()
	}
	return nil
}

// abort marks res as fatally failed. The next incremental request will run
// as a full build.
func (s *Scheduler) abort(res *BuildResult, err error) *BuildResult {
	if !ferrors.IsFatal(err) {
		var ce *ferrors.ClassifiedError
		if !errors.As(err, &ce) {
			err = ferrors.WrapError(err, ferrors.CategoryInternal, "build failed").Fatal().Build()
		}
	}
	res.Fatal = err
	s.baseline = false
	return res
}

func sortedFailures(m map[string]Failure) []Failure {
	out := make([]Failure, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
