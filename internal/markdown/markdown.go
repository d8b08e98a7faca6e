// Package markdown converts content bodies to HTML fragments.
//
// Output is deterministic for a given input and base URL so artifact hashes
// can be compared across builds.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Options configures a Renderer.
type Options struct {
	// BaseURL is prepended to relative link and image destinations. Empty
	// leaves destinations untouched.
	BaseURL string
	// HardWraps renders soft line breaks as <br>.
	HardWraps bool
}

// Renderer is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a Renderer with GFM extensions and automatic heading IDs.
func New(opts Options) *Renderer {
	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(&linkRewriter{baseURL: opts.BaseURL}, 100)),
		),
	}
	htmlOpts := []goldmark.Option{}
	if opts.HardWraps {
		htmlOpts = append(htmlOpts, goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithUnsafe()))
	} else {
		htmlOpts = append(htmlOpts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}
	return &Renderer{md: goldmark.New(append(rendererOpts, htmlOpts...)...)}
}

// Render converts a markdown body (front matter already removed) to HTML.
//
// goldmark accepts any input as CommonMark, so malformed constructs render
// literally instead of failing.
func (r *Renderer) Render(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RelativeURL joins a site-relative destination onto baseURL. Absolute URLs,
// protocol-relative URLs, fragments and mailto/tel links are returned as-is.
func RelativeURL(baseURL, dest string) string {
	if baseURL == "" || dest == "" || IsExternal(dest) || strings.HasPrefix(dest, "#") {
		return dest
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(dest, "/")
}

// IsExternal reports whether dest carries a scheme or is protocol-relative.
func IsExternal(dest string) bool {
	if strings.HasPrefix(dest, "//") {
		return true
	}
	if i := strings.IndexByte(dest, ':'); i > 0 {
		scheme := dest[:i]
		for _, c := range scheme {
			isAlpha := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
			isOther := (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.'
			if !isAlpha && !isOther {
				return false
			}
		}
		return true
	}
	return false
}

type linkRewriter struct {
	baseURL string
}

func (l *linkRewriter) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	if l.baseURL == "" {
		return
	}
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *gmast.Link:
			node.Destination = []byte(RelativeURL(l.baseURL, string(node.Destination)))
		case *gmast.Image:
			node.Destination = []byte(RelativeURL(l.baseURL, string(node.Destination)))
		}
		return gmast.WalkContinue, nil
	})
}
