package templates

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// blankTags rebuilds the template source with every tag removed, leaving only
// literal markup.
func blankTags(items []item) string {
	var b strings.Builder
	for _, it := range items {
		if !it.tag {
			b.WriteString(it.raw)
		}
	}
	return b.String()
}

var refAttrs = map[string]bool{"href": true, "src": true}

// scanAssetRefs returns local href/src targets found in markup, as paths
// relative to the assets root. External URLs, fragments and data URIs are
// skipped.
func scanAssetRefs(markup string) []string {
	var refs []string
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return refs
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		_, hasAttr := z.TagName()
		for hasAttr {
			key, val, more := z.TagAttr()
			if refAttrs[string(key)] {
				if ref, ok := localRef(string(val)); ok {
					refs = appendUnique(refs, ref)
				}
			}
			hasAttr = more
		}
	}
}

func localRef(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") {
		return "", false
	}
	u, err := url.Parse(v)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := path.Clean(strings.TrimPrefix(u.Path, "/"))
	if p == "." || strings.HasPrefix(p, "..") || path.Ext(p) == "" || strings.HasSuffix(p, ".html") {
		return "", false
	}
	return p, true
}
