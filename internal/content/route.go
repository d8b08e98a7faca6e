package content

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/mdsite/internal/config"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

// Router maps content paths (relative to the content directory, slash
// separated) to output paths (relative to the output directory).
type Router struct {
	rules  []config.RouteRule
	pretty bool
}

// NewRouter builds a Router from the configured rules. Rules are tried in
// order; the first match wins and unmatched paths use the default route.
func NewRouter(rules []config.RouteRule, prettyURLs bool) *Router {
	return &Router{rules: rules, pretty: prettyURLs}
}

// Route returns the output path for rel. Front matter `url` overrides the
// whole route and `slug` overrides the file stem.
func (r *Router) Route(rel string, fields *frontmatter.Map) (string, error) {
	if v, ok := fields.Get("url"); ok {
		u, isString := v.AsString()
		if !isString {
			return "", ferrors.TypeMismatch("url must be a string").
				WithContext("path", rel).WithContext("kind", v.Kind().String()).Build()
		}
		return cleanOutput(rel, urlToOutput(u))
	}

	dir, stem := splitRel(rel)
	slug := stem
	if v, ok := fields.Get("slug"); ok {
		s, isString := v.AsString()
		if !isString || s == "" {
			return "", ferrors.TypeMismatch("slug must be a non-empty string").
				WithContext("path", rel).Build()
		}
		slug = s
	}

	for _, rule := range r.rules {
		matched, err := doublestar.Match(rule.Match, rel)
		if err != nil || !matched {
			continue
		}
		out := strings.NewReplacer("{dir}", dir, "{stem}", stem, "{slug}", slug).Replace(rule.Output)
		return cleanOutput(rel, out)
	}

	switch {
	case stem == "index" && slug == "index":
		return cleanOutput(rel, path.Join(dir, "index.html"))
	case r.pretty:
		return cleanOutput(rel, path.Join(dir, slug, "index.html"))
	default:
		return cleanOutput(rel, path.Join(dir, slug+".html"))
	}
}

// URLFor converts an output path to its site URL path ("/posts/a/").
func URLFor(output string) string {
	if output == "index.html" {
		return "/"
	}
	if strings.HasSuffix(output, "/index.html") {
		return "/" + strings.TrimSuffix(output, "index.html")
	}
	return "/" + output
}

func urlToOutput(u string) string {
	u = strings.TrimPrefix(u, "/")
	switch {
	case u == "":
		return "index.html"
	case strings.HasSuffix(u, "/"):
		return u + "index.html"
	case path.Ext(u) == "":
		return u + "/index.html"
	default:
		return u
	}
}

func splitRel(rel string) (dir, stem string) {
	dir = path.Dir(rel)
	if dir == "." {
		dir = ""
	}
	base := path.Base(rel)
	stem = strings.TrimSuffix(base, path.Ext(base))
	return dir, stem
}

func cleanOutput(rel, out string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(out, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ferrors.NewError(ferrors.CategoryValidation, "output path escapes the output directory").
			WithContext("path", rel).WithContext("output", out).Build()
	}
	return cleaned, nil
}
