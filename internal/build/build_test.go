package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdsite/internal/config"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

var baseSite = map[string]string{
	"templates/base.html":  `<html><title>{{ block "title" }}X{{ endblock }}</title><body>{{ block "main" }}{{ content }}{{ endblock }}</body></html>`,
	"templates/page.html":  "---\nextends: base\n---\n{{ block \"title\" }}{{ page.title }}{{ endblock }}",
	"templates/plain.html": `<p class="plain">{{ content }}</p>`,
	"content/index.md":     "---\ntitle: Home\n---\nWelcome",
	"content/posts/a.md":   "---\ntitle: Post A\n---\nAlpha",
	"content/posts/b.md":   "---\ntitle: Post B\n---\nBravo",
	"content/other.md":     "---\ntitle: Other\nlayout: plain\n---\nOther",
}

func newSite(t *testing.T, files map[string]string) *config.BuildConfig {
	t.Helper()
	cfg := config.New(t.TempDir())
	cfg.Workers = 4
	for rel, body := range files {
		writeFile(t, cfg, rel, body)
	}
	return cfg
}

func writeFile(t *testing.T, cfg *config.BuildConfig, rel, body string) {
	t.Helper()
	p := cfg.Abs(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

func readOutput(t *testing.T, cfg *config.BuildConfig, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func outputTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	tree := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, p)
		tree[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return tree
}

func TestBuildAllWritesEveryPage(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)

	res := s.BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Equal(t, OutcomeSuccess, res.Outcome())
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, []string{"index.html", "other/index.html", "posts/a/index.html", "posts/b/index.html"}, res.Written)
	assert.Equal(t, res.Written, res.Succeeded)
	assert.Equal(t, StateIdle, s.State())
	assert.True(t, s.HasBaseline())

	a := readOutput(t, cfg, "posts/a/index.html")
	assert.Contains(t, a, "<title>Post A</title>")
	assert.Contains(t, a, "Alpha")
	assert.Contains(t, readOutput(t, cfg, "other/index.html"), `<p class="plain">`)
	require.NoError(t, s.Graph().Consistent())
	assert.Contains(t, s.Graph().Sources("posts/a/index.html"), "templates/base.html")
}

func TestSecondBuildWritesNothing(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)

	first := s.BuildAll(context.Background())
	require.NoError(t, first.Fatal)
	second := s.BuildAll(context.Background())
	require.NoError(t, second.Fatal)
	assert.Empty(t, second.Written)
	assert.Empty(t, second.Removed)
	assert.Equal(t, first.Written, second.Skipped)
}

func TestSecondBuildWritesNothingAcrossProcesses(t *testing.T) {
	cfg := newSite(t, baseSite)

	first := BuildAll(context.Background(), cfg)
	require.NoError(t, first.Fatal)
	require.Len(t, first.Written, 4)
	assert.FileExists(t, ManifestPath(cfg))

	second := BuildAll(context.Background(), cfg)
	require.NoError(t, second.Fatal)
	assert.Empty(t, second.Written)
	assert.Len(t, second.Skipped, 4)
}

func TestSkippedFileIsRewrittenWhenMissing(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	require.NoError(t, os.Remove(filepath.Join(cfg.OutputDir, "posts", "a", "index.html")))
	res := s.BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"posts/a/index.html"}, res.Written)
}

func TestBaseTemplateChangeInvalidatesDerivedPages(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	writeFile(t, cfg, "templates/base.html", `<html><title>{{ block "title" }}X{{ endblock }}</title><body class="v2">{{ block "main" }}{{ content }}{{ endblock }}</body></html>`)
	res := s.BuildIncremental(context.Background(), []Change{{Path: "templates/base.html", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Equal(t, []string{"index.html", "posts/a/index.html", "posts/b/index.html"}, res.Written)
	assert.NotContains(t, res.Written, "other/index.html")
	assert.Contains(t, readOutput(t, cfg, "posts/b/index.html"), `<body class="v2">`)
}

func TestChildBlockOverridesBase(t *testing.T) {
	cfg := newSite(t, map[string]string{
		"templates/base.html":  `<title>{{ block "title" }}X{{ endblock }}</title>`,
		"templates/child.html": "---\nextends: base\n---\n{{ block \"title\" }}Y{{ endblock }}",
		"content/a.md":         "---\nlayout: child\n---\nbody",
		"content/b.md":         "---\nlayout: base\n---\nbody",
	})
	res := NewScheduler(cfg).BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Equal(t, "<title>Y</title>", readOutput(t, cfg, "a/index.html"))
	assert.Equal(t, "<title>X</title>", readOutput(t, cfg, "b/index.html"))
}

func TestContentEditReRendersOnlyThatPage(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	writeFile(t, cfg, "content/posts/a.md", "---\ntitle: Post A\n---\nAlpha edited")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/a.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"posts/a/index.html"}, res.Written)
	assert.Contains(t, readOutput(t, cfg, "posts/a/index.html"), "Alpha edited")
}

func TestUnchangedContentIsNotReRendered(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/a.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Empty(t, res.Written)
	assert.Empty(t, res.Skipped)
}

func TestFingerprintKeyEditIsReRendered(t *testing.T) {
	cfg := newSite(t, map[string]string{
		"templates/page.html": `<v>{{ page.fingerprint }}</v>`,
		"content/a.md":        "---\nfingerprint: one\n---\n",
	})
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	writeFile(t, cfg, "content/a.md", "---\nfingerprint: two\n---\n")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/a.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"a/index.html"}, res.Written)
	assert.Equal(t, "<v>two</v>", readOutput(t, cfg, "a/index.html"))
}

func TestMalformedPageIsExcluded(t *testing.T) {
	files := map[string]string{
		"templates/page.html": `<h1>{{ page.title }}</h1>{{ content }}`,
	}
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("content/p%d.md", i)] = fmt.Sprintf("---\ntitle: Page %d\n---\nbody", i)
	}
	files["content/p7.md"] = "---\ntitle: [unclosed\n---\nbody"
	cfg := newSite(t, files)

	res := NewScheduler(cfg).BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Equal(t, OutcomePartial, res.Outcome())
	assert.Equal(t, 1, res.ExitCode())
	assert.Len(t, res.Written, 9)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "content/p7.md", res.Failed[0].Source)
	assert.Equal(t, string(ferrors.CategoryMalformedFrontMatter), res.Failed[0].Kind())
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "p7", "index.html"))
	assert.Len(t, outputTree(t, cfg.OutputDir), 9)
}

func TestRecursiveAliasPageIsExcluded(t *testing.T) {
	files := map[string]string{
		"templates/page.html": `<h1>{{ page.title }}</h1>{{ content }}`,
		"content/a.md":        "---\ntitle: A\n---\nAlpha",
		"content/b.md":        "---\ntitle: B\n---\nBravo",
		"content/loop.md":     "---\na: &x [*x]\n---\nbody",
	}
	cfg := newSite(t, files)

	res := NewScheduler(cfg).BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Equal(t, OutcomePartial, res.Outcome())
	assert.Len(t, res.Written, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "content/loop.md", res.Failed[0].Source)
	assert.Equal(t, string(ferrors.CategoryMalformedFrontMatter), res.Failed[0].Kind())
}

func TestRenderFailureRemovesStaleOutput(t *testing.T) {
	cfg := newSite(t, map[string]string{
		"templates/page.html": `<p>{{ page.author }}</p>`,
		"content/a.md":        "---\nauthor: Sam\n---\n",
		"content/b.md":        "---\nauthor: Kim\n---\n",
	})
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)
	require.FileExists(t, filepath.Join(cfg.OutputDir, "a", "index.html"))

	writeFile(t, cfg, "content/a.md", "---\ntitle: no author\n---\n")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/a.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, OutcomePartial, res.Outcome())
	require.Len(t, res.Failed, 1)
	assert.Equal(t, string(ferrors.CategoryMissingVariable), res.Failed[0].Kind())
	assert.Equal(t, []string{"a/index.html"}, res.Removed)
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "a", "index.html"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "b", "index.html"))

	// Fixing the content brings the page back.
	writeFile(t, cfg, "content/a.md", "---\nauthor: Sam\n---\n")
	res = s.BuildIncremental(context.Background(), []Change{{Path: "content/a.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"a/index.html"}, res.Written)
}

func TestTemplateCycleAbortsWithoutOutput(t *testing.T) {
	cfg := newSite(t, map[string]string{
		"templates/a.html": "---\nextends: b\n---\n",
		"templates/b.html": "---\nextends: a\n---\n",
		"content/x.md":     "---\nlayout: a\n---\n",
	})
	res := NewScheduler(cfg).BuildAll(context.Background())
	require.Error(t, res.Fatal)
	assert.True(t, ferrors.HasCategory(res.Fatal, ferrors.CategoryTemplateCycle))
	assert.Equal(t, OutcomeFatal, res.Outcome())
	assert.Equal(t, 2, res.ExitCode())
	assert.Empty(t, res.Written)
	assert.Empty(t, outputTree(t, cfg.OutputDir))
}

func TestTemplateCycleLeavesPriorOutputUntouched(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)
	before := outputTree(t, cfg.OutputDir)

	writeFile(t, cfg, "templates/base.html", "---\nextends: page\n---\n")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "templates/base.html", Kind: Modified}})
	require.Error(t, res.Fatal)
	assert.True(t, ferrors.HasCategory(res.Fatal, ferrors.CategoryTemplateCycle))
	assert.Equal(t, before, outputTree(t, cfg.OutputDir))
	assert.False(t, s.HasBaseline())

	next := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/a.md", Kind: Modified}})
	assert.Equal(t, ModeFull, next.Mode)
	assert.Equal(t, ReasonNoBaseline, next.Reason)
}

func TestBuildIsDeterministic(t *testing.T) {
	files := map[string]string{}
	for k, v := range baseSite {
		files[k] = v
	}
	files["assets/site.css"] = "body{}"
	files["templates/page.html"] = "---\nextends: base\n---\n{{ block \"title\" }}{{ page.title }} <link href=\"{{ asset \"site.css\" }}\">{{ endblock }}"

	a := newSite(t, files)
	b := newSite(t, files)
	require.NoError(t, NewScheduler(a).BuildAll(context.Background()).Fatal)
	require.NoError(t, NewScheduler(b).BuildAll(context.Background()).Fatal)
	assert.Equal(t, outputTree(t, a.OutputDir), outputTree(t, b.OutputDir))
}

func TestOutputCollisionIsFatal(t *testing.T) {
	cfg := newSite(t, map[string]string{
		"templates/page.html": `{{ content }}`,
		"content/a.md":        "---\nurl: /same/\n---\n",
		"content/b.md":        "---\nurl: /same/\n---\n",
	})
	res := NewScheduler(cfg).BuildAll(context.Background())
	require.Error(t, res.Fatal)
	assert.True(t, ferrors.HasCategory(res.Fatal, ferrors.CategoryOutputCollision))
	ce, ok := ferrors.AsClassified(res.Fatal)
	require.True(t, ok)
	sources, _ := ce.Context().GetString("sources")
	assert.Equal(t, "content/a.md, content/b.md", sources)
	assert.Empty(t, outputTree(t, cfg.OutputDir))
}

func TestDeletedContentRemovesOutput(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	require.NoError(t, os.Remove(cfg.Abs("content/posts/b.md")))
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/b.md", Kind: Deleted}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"posts/b/index.html"}, res.Removed)
	assert.Empty(t, res.Written)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "posts", "b"))
	assert.NotContains(t, s.Graph().Artifacts(), "posts/b/index.html")
	assert.NotContains(t, s.Artifacts(), "posts/b/index.html")
	require.NoError(t, s.Graph().Consistent())
}

func TestAssetChangeReRendersReferencingPagesOnly(t *testing.T) {
	files := map[string]string{}
	for k, v := range baseSite {
		files[k] = v
	}
	files["assets/site.css"] = "body{}"
	files["templates/styled.html"] = `<link rel="stylesheet" href="{{ asset "site.css" }}">{{ content }}`
	files["content/posts/a.md"] = "---\ntitle: Post A\nlayout: styled\n---\nAlpha"
	cfg := newSite(t, files)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)
	before := readOutput(t, cfg, "posts/a/index.html")
	assert.Equal(t, "body{}", readOutput(t, cfg, "site.css"))

	writeFile(t, cfg, "assets/site.css", "body{color:red}")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "assets/site.css", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"posts/a/index.html"}, res.Written)
	assert.NotEqual(t, before, readOutput(t, cfg, "posts/a/index.html"))
	assert.Equal(t, "body{color:red}", readOutput(t, cfg, "site.css"))
}

func TestIncrementalEscalations(t *testing.T) {
	cfg := newSite(t, baseSite)
	cfg.ConfigPath = cfg.Abs("mdsite.yaml")
	s := NewScheduler(cfg)

	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/a.md", Kind: Modified}})
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, ReasonNoBaseline, res.Reason)

	writeFile(t, cfg, "templates/extra.html", `{{ content }}`)
	res = s.BuildIncremental(context.Background(), []Change{{Path: "templates/extra.html", Kind: Created}})
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, ReasonTemplateAdded, res.Reason)

	require.NoError(t, os.Remove(cfg.Abs("templates/extra.html")))
	res = s.BuildIncremental(context.Background(), []Change{{Path: "templates/extra.html", Kind: Deleted}})
	assert.Equal(t, ReasonTemplateDeleted, res.Reason)

	res = s.BuildIncremental(context.Background(), []Change{{Path: "mdsite.yaml", Kind: Modified}})
	assert.Equal(t, ModeFull, res.Mode)
	assert.Equal(t, ReasonConfigChanged, res.Reason)

	res = s.BuildIncremental(context.Background(), []Change{{Path: "README.md", Kind: Modified}})
	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Empty(t, res.Written)
}

func TestNewContentIsBuiltIncrementally(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	writeFile(t, cfg, "content/posts/c.md", "---\ntitle: Post C\n---\nCharlie")
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts/c.md", Kind: Created}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, []string{"posts/c/index.html"}, res.Written)
	assert.Contains(t, readOutput(t, cfg, "posts/c/index.html"), "<title>Post C</title>")
}

func TestCancelledBuildWritesNothing(t *testing.T) {
	cfg := newSite(t, baseSite)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewScheduler(cfg).BuildAll(ctx)
	require.Error(t, res.Fatal)
	assert.True(t, ferrors.HasCategory(res.Fatal, ferrors.CategoryRuntime))
	assert.Empty(t, outputTree(t, cfg.OutputDir))
}

func TestResumeFromManifest(t *testing.T) {
	cfg := newSite(t, baseSite)
	require.NoError(t, BuildAll(context.Background(), cfg).Fatal)

	writeFile(t, cfg, "content/posts/b.md", "---\ntitle: Post B\n---\nBravo two")
	res := BuildIncremental(context.Background(), cfg, []Change{{Path: "content/posts/b.md", Kind: Modified}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Equal(t, []string{"posts/b/index.html"}, res.Written)
}

func TestSitemap(t *testing.T) {
	cfg := newSite(t, baseSite)
	cfg.Sitemap = true
	cfg.BaseURL = "https://example.com/"

	res := NewScheduler(cfg).BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.Contains(t, res.Written, SitemapFile)
	sitemap := readOutput(t, cfg, SitemapFile)
	assert.Contains(t, sitemap, "<loc>https://example.com/posts/a/</loc>")
	assert.Contains(t, sitemap, "<loc>https://example.com/</loc>")
}

func TestDraftsAreSkipped(t *testing.T) {
	files := map[string]string{}
	for k, v := range baseSite {
		files[k] = v
	}
	files["content/posts/b.md"] = "---\ntitle: Post B\ndraft: true\n---\nBravo"
	cfg := newSite(t, files)

	res := NewScheduler(cfg).BuildAll(context.Background())
	require.NoError(t, res.Fatal)
	assert.NotContains(t, res.Written, "posts/b/index.html")
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "posts", "b", "index.html"))
}

func TestBuildHistoryIsRecorded(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	builds, err := s.store.Builds(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, 0, builds[0].Written)
	assert.Equal(t, 4, builds[1].Written)
	assert.Equal(t, string(OutcomeSuccess), builds[0].Outcome)
}

func TestDeletedDirectoryRemovesEverythingUnderIt(t *testing.T) {
	cfg := newSite(t, baseSite)
	s := NewScheduler(cfg)
	require.NoError(t, s.BuildAll(context.Background()).Fatal)

	require.NoError(t, os.RemoveAll(cfg.Abs("content/posts")))
	res := s.BuildIncremental(context.Background(), []Change{{Path: "content/posts", Kind: Deleted}})
	require.NoError(t, res.Fatal)
	assert.Equal(t, ModeIncremental, res.Mode)
	assert.Equal(t, []string{"posts/a/index.html", "posts/b/index.html"}, res.Removed)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "posts"))
}
