package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

func writeTemplates(t *testing.T, files map[string]string) (string, *Store) {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		p := filepath.Join(dir, filepath.FromSlash(name)+Ext)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(src), 0o600))
	}
	return dir, NewStore(dir, "templates")
}

// flatText concatenates the literal text of a plan, expanding blocks and
// includes.
func flatText(frags []*Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		switch f.Kind {
		case KindText:
			b.WriteString(f.Text)
		case KindBlock, KindInclude:
			b.WriteString(flatText(f.Body))
		}
	}
	return b.String()
}

func TestResolveInheritance(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"base":  `<title>{{ block "title" }}X{{ endblock }}</title><main>{{ block "main" }}base main{{ endblock }}</main>`,
		"child": "---\nextends: base\n---\n{{ block \"title\" }}Y{{ endblock }}ignored",
	})

	child, err := store.Resolve("child")
	require.NoError(t, err)
	assert.Equal(t, "<title>Y</title><main>base main</main>", flatText(child.Segments))
	assert.Equal(t, []string{"child", "base"}, child.Chain)

	base, err := store.Resolve("base")
	require.NoError(t, err)
	assert.Equal(t, "<title>X</title><main>base main</main>", flatText(base.Segments))
}

func TestResolveMostDerivedWins(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"base": `[{{ block "a" }}base{{ endblock }}|{{ block "b" }}base{{ endblock }}]`,
		"mid":  "---\nextends: base\n---\n{{ block \"a\" }}mid{{ endblock }}{{ block \"b\" }}mid{{ endblock }}",
		"leaf": "---\nextends: mid\n---\n{{ block \"a\" }}leaf{{ endblock }}",
	})
	r, err := store.Resolve("leaf")
	require.NoError(t, err)
	assert.Equal(t, "[leaf|mid]", flatText(r.Segments))
}

func TestResolveSlot(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"shell":  `<nav>{{ slot "sidebar" }}</nav>`,
		"docs":   "---\nextends: shell\n---\n{{ block \"sidebar\" }}links{{ endblock }}",
		"broken": "---\nextends: shell\n---\n",
	})

	r, err := store.Resolve("docs")
	require.NoError(t, err)
	assert.Equal(t, "<nav>links</nav>", flatText(r.Segments))

	_, err = store.Resolve("broken")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryUnresolvedBlock))
	assert.True(t, ferrors.IsFatal(err))
}

func TestResolveInheritanceCycle(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"a": "---\nextends: b\n---\n",
		"b": "---\nextends: a\n---\n",
	})
	_, err := store.Resolve("a")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTemplateCycle))

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	chain, _ := ce.Context().GetString("chain")
	assert.Equal(t, "a -> b -> a", chain)
}

func TestResolveIncludes(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"page":          `<body>{{ include "partials/nav" }}{{ content }}</body>`,
		"partials/nav":  `<nav>{{ include "partials/link" }}</nav>`,
		"partials/link": `<a href="/css/x.css">x</a>`,
	})
	r, err := store.Resolve("page")
	require.NoError(t, err)
	assert.Equal(t, "<body><nav><a href=\"/css/x.css\">x</a></nav></body>", flatText(r.Segments))
	assert.Equal(t, []string{"partials/link", "partials/nav"}, r.Includes)
	assert.Equal(t, []string{"css/x.css"}, r.Assets)
	assert.Equal(t, []string{"page", "partials/link", "partials/nav"}, r.Templates())
}

func TestResolveIncludeCycle(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"page":       `{{ include "partials/a" }}`,
		"partials/a": `{{ include "partials/b" }}`,
		"partials/b": `{{ include "partials/a" }}`,
	})
	_, err := store.Resolve("page")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryTemplateCycle))
}

func TestMissingTemplateIsFatalIO(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{"child": "---\nextends: nope\n---\n"})
	_, err := store.Resolve("child")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryIO))
	assert.True(t, ferrors.IsFatal(err))
}

func TestInvalidateDropsDependentPlans(t *testing.T) {
	dir, store := writeTemplates(t, map[string]string{
		"base":         `<title>{{ block "title" }}X{{ endblock }}</title>{{ include "partials/nav" }}`,
		"child":        "---\nextends: base\n---\n{{ block \"title\" }}Y{{ endblock }}",
		"other":        `plain`,
		"partials/nav": `<nav>old</nav>`,
	})
	for _, name := range []string{"base", "child", "other"} {
		_, err := store.Resolve(name)
		require.NoError(t, err)
	}

	require.NoError(t, os.WriteFile(filepath.Join(dir, "partials", "nav.html"), []byte("<nav>new</nav>"), 0o600))
	dropped := store.Invalidate("partials/nav")
	assert.Equal(t, []string{"base", "child", "partials/nav"}, dropped)

	r, err := store.Resolve("child")
	require.NoError(t, err)
	assert.Equal(t, "<title>Y</title><nav>new</nav>", flatText(r.Segments))

	assert.Empty(t, store.Invalidate("unrelated"))
}

func TestDiscoverAndNames(t *testing.T) {
	_, store := writeTemplates(t, map[string]string{
		"page":         "p",
		"partials/nav": "n",
	})
	names, err := store.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"page", "partials/nav"}, names)

	assert.Equal(t, "templates/partials/nav.html", store.SourcePath("partials/nav"))
	name, ok := store.NameForSource("templates/partials/nav.html")
	assert.True(t, ok)
	assert.Equal(t, "partials/nav", name)
	_, ok = store.NameForSource("content/a.md")
	assert.False(t, ok)
}
