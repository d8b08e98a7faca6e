package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/mdsite/internal/util/sets"
)

func TestRecordDependencyIsIdempotent(t *testing.T) {
	g := New()
	g.RecordDependency("a/index.html", "content/a.md")
	g.RecordDependency("a/index.html", "content/a.md")

	assert.Equal(t, []string{"content/a.md"}, g.Sources("a/index.html"))
	assert.Equal(t, []string{"a/index.html"}, g.ArtifactsOf("content/a.md"))
	require.NoError(t, g.Consistent())
}

// Layout: page extends base, post extends page, base includes nav.
func chainGraph() *Graph {
	g := New()
	g.RecordInheritance("templates/page.html", "templates/base.html")
	g.RecordInheritance("templates/post.html", "templates/page.html")
	g.RecordInheritance("templates/base.html", "templates/partials/nav.html")
	g.RecordInheritance("templates/solo.html", "templates/partials/footer.html")

	g.RecordDependency("about/index.html", "content/about.md")
	g.RecordDependency("about/index.html", "templates/page.html")
	g.RecordDependency("posts/a/index.html", "content/posts/a.md")
	g.RecordDependency("posts/a/index.html", "templates/post.html")
	g.RecordDependency("home/index.html", "content/home.md")
	g.RecordDependency("home/index.html", "templates/base.html")
	g.RecordDependency("solo/index.html", "content/solo.md")
	g.RecordDependency("solo/index.html", "templates/solo.html")
	return g
}

func TestAffectedArtifactsFollowsInheritance(t *testing.T) {
	g := chainGraph()

	assert.Equal(t,
		[]string{"about/index.html", "home/index.html", "posts/a/index.html"},
		sets.Sorted(g.AffectedArtifacts("templates/base.html")))
	assert.Equal(t,
		[]string{"about/index.html", "posts/a/index.html"},
		sets.Sorted(g.AffectedArtifacts("templates/page.html")))
	assert.Equal(t,
		[]string{"posts/a/index.html"},
		sets.Sorted(g.AffectedArtifacts("templates/post.html")))
	assert.Equal(t,
		[]string{"about/index.html", "home/index.html", "posts/a/index.html"},
		sets.Sorted(g.AffectedArtifacts("templates/partials/nav.html")))
	assert.Equal(t,
		[]string{"solo/index.html"},
		sets.Sorted(g.AffectedArtifacts("templates/partials/footer.html")))
	assert.Empty(t, g.AffectedArtifacts("templates/unknown.html"))
}

func TestInvalidateMarksDirtyWithoutRemoving(t *testing.T) {
	g := chainGraph()
	affected := g.Invalidate("templates/page.html")
	assert.Equal(t, []string{"about/index.html", "posts/a/index.html"}, sets.Sorted(affected))
	g.Invalidate("content/home.md")

	assert.Equal(t,
		[]string{"about/index.html", "home/index.html", "posts/a/index.html"},
		sets.Sorted(g.TakeDirty()))
	assert.Empty(t, g.TakeDirty())
	assert.Len(t, g.Artifacts(), 4)
	require.NoError(t, g.Consistent())
}

func TestInheritanceCycleTerminates(t *testing.T) {
	g := New()
	g.RecordInheritance("a", "b")
	g.RecordInheritance("b", "a")
	g.RecordDependency("out.html", "a")
	assert.Equal(t, []string{"out.html"}, sets.Sorted(g.AffectedArtifacts("b")))
}

func TestRemoveAndReplace(t *testing.T) {
	g := chainGraph()

	g.RemoveSource("content/posts/a.md")
	assert.Equal(t, []string{"templates/post.html"}, g.Sources("posts/a/index.html"))
	require.NoError(t, g.Consistent())

	g.RemoveArtifact("posts/a/index.html")
	assert.NotContains(t, g.Artifacts(), "posts/a/index.html")
	assert.Empty(t, g.ArtifactsOf("templates/post.html"))
	require.NoError(t, g.Consistent())

	g.ReplaceArtifact("about/index.html", []string{"content/about.md", "templates/solo.html"})
	assert.Equal(t, []string{"content/about.md", "templates/solo.html"}, g.Sources("about/index.html"))
	assert.NotContains(t, sets.Sorted(g.AffectedArtifacts("templates/page.html")), "about/index.html")
	require.NoError(t, g.Consistent())

	g.ReplaceInheritance("templates/page.html", []string{"templates/solo.html"})
	assert.Equal(t, []string{"templates/solo.html"}, g.Bases("templates/page.html"))
	require.NoError(t, g.Consistent())

	g.RemoveSource("templates/base.html")
	assert.False(t, g.HasSource("templates/base.html"))
	require.NoError(t, g.Consistent())

	g.Reset()
	assert.Empty(t, g.Artifacts())
}
