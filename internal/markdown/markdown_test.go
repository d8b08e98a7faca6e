package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_Basic(t *testing.T) {
	r := New(Options{})
	out, err := r.Render([]byte("# Hello\n\nSome *text*.\n"))
	require.NoError(t, err)
	require.Contains(t, out, `<h1 id="hello">Hello</h1>`)
	require.Contains(t, out, "<em>text</em>")
}

func TestRender_Deterministic(t *testing.T) {
	r := New(Options{BaseURL: "https://example.org"})
	src := []byte("# Title\n\n## Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n[link](docs/x.html)\n")
	first, err := r.Render(src)
	require.NoError(t, err)
	for range 5 {
		again, err := r.Render(src)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestRender_MalformedRendersLiterally(t *testing.T) {
	r := New(Options{})
	out, err := r.Render([]byte("[broken link(\n\n**unclosed\n\n```\nunterminated fence\n"))
	require.NoError(t, err)
	require.Contains(t, out, "[broken link(")
	require.Contains(t, out, "**unclosed")
	require.Contains(t, out, "unterminated fence")
}

func TestRender_RewritesRelativeLinks(t *testing.T) {
	r := New(Options{BaseURL: "https://example.org/site/"})
	out, err := r.Render([]byte("[a](/about/) [b](https://go.dev) [c](#top) ![img](img/cat.png) [m](mailto:a@b.c)\n"))
	require.NoError(t, err)
	require.Contains(t, out, `href="https://example.org/site/about/"`)
	require.Contains(t, out, `href="https://go.dev"`)
	require.Contains(t, out, `href="#top"`)
	require.Contains(t, out, `src="https://example.org/site/img/cat.png"`)
	require.Contains(t, out, `href="mailto:a@b.c"`)
}

func TestRelativeURL(t *testing.T) {
	cases := []struct {
		base, dest, want string
	}{
		{"", "/a", "/a"},
		{"https://x.org", "a/b", "https://x.org/a/b"},
		{"https://x.org/", "/a/b", "https://x.org/a/b"},
		{"https://x.org", "//cdn.org/a.js", "//cdn.org/a.js"},
		{"https://x.org", "#frag", "#frag"},
		{"https://x.org", "tel:123", "tel:123"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, RelativeURL(tc.base, tc.dest), tc.dest)
	}
}
