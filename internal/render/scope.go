package render

import (
	"strconv"
	"strings"

	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

// scope resolves variable paths. Lookup order, innermost first: loop frames,
// page front matter, site variables, built-ins. The `page.` and `site.`
// prefixes address a layer directly.
type scope struct {
	frames   []*frontmatter.Map
	page     *frontmatter.Map
	site     *frontmatter.Map
	builtins *frontmatter.Map
}

func newScope(page, site, builtins *frontmatter.Map) *scope {
	if page == nil {
		page = frontmatter.NewMap()
	}
	return &scope{page: page, site: site, builtins: builtins}
}

func (s *scope) push(m *frontmatter.Map) { s.frames = append(s.frames, m) }

func (s *scope) pop() { s.frames = s.frames[:len(s.frames)-1] }

func (s *scope) lookup(path string) (frontmatter.Value, bool) {
	parts := strings.Split(path, ".")
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := lookupIn(s.frames[i], parts); ok {
			return v, true
		}
	}
	if len(parts) > 1 {
		switch parts[0] {
		case "page":
			return lookupIn(s.page, parts[1:])
		case "site":
			return lookupIn(s.site, parts[1:])
		}
	}
	for _, layer := range []*frontmatter.Map{s.page, s.site, s.builtins} {
		if v, ok := lookupIn(layer, parts); ok {
			return v, true
		}
	}
	return frontmatter.Value{}, false
}

// lookupIn walks parts through nested mappings and sequence indexes.
func lookupIn(m *frontmatter.Map, parts []string) (frontmatter.Value, bool) {
	v, ok := m.Get(parts[0])
	if !ok {
		return frontmatter.Value{}, false
	}
	for _, part := range parts[1:] {
		switch v.Kind() {
		case frontmatter.KindMapping:
			inner, _ := v.AsMapping()
			if v, ok = inner.Get(part); !ok {
				return frontmatter.Value{}, false
			}
		case frontmatter.KindSequence:
			seq, _ := v.AsSequence()
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(seq) {
				return frontmatter.Value{}, false
			}
			v = seq[idx]
		default:
			return frontmatter.Value{}, false
		}
	}
	return v, true
}
