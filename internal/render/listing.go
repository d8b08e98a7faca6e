package render

import (
	"bytes"
	"html"
	"path"
	"strings"

	"git.home.luguber.info/inful/mdsite/internal/content"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
	"git.home.luguber.info/inful/mdsite/internal/templates"
)

// Pages gives list_md access to the pages of the current build.
type Pages interface {
	// PagesIn returns the active pages directly inside dir, relative to the
	// content root ("" is the root), sorted by source path.
	PagesIn(dir string) []*content.Item
	// Plan resolves the template a listed page is rendered with.
	Plan(name string) (*templates.Resolved, error)
}

// Page is a rendered page together with what list_md read while rendering
// it. The plan's own templates and assets are not repeated here.
type Page struct {
	HTML []byte
	// Dirs lists the content directories passed to list_md, cleaned.
	Dirs []string
	// Listed lists the source paths of the pages list_md rendered.
	Listed []string
	// Plans lists the templates listed pages were rendered with.
	Plans []*templates.Resolved
}

func (p *Page) addDir(dir string) {
	for _, d := range p.Dirs {
		if d == dir {
			return
		}
	}
	p.Dirs = append(p.Dirs, dir)
}

// ListDir cleans a list_md directory argument into a path relative to the
// content root, "" for the root itself.
func ListDir(dir string) string {
	dir = path.Clean("/" + strings.TrimSpace(dir))
	return strings.TrimPrefix(dir, "/")
}

// listPages implements `{{ list_md "dir" }}` and `{{ list_md "dir" "tpl" }}`.
// Every active page in dir except the current one is rendered in source
// order: through the named template when given, otherwise as its markdown
// body inside an <article>.
func (r *run) listPages(buf *bytes.Buffer, f *templates.Fragment, args []frontmatter.Value) error {
	if len(args) < 1 || len(args) > 2 {
		return r.fail(ferrors.TypeMismatch("list_md called with the wrong number of arguments").
			WithContext("want", 1).WithContext("got", len(args)), f)
	}
	if r.nested {
		return r.fail(ferrors.RuntimeError("list_md cannot be called from a listed page"), f)
	}
	if r.engine.pages == nil {
		return r.fail(ferrors.RuntimeError("list_md is not available in this build"), f)
	}
	raw, ok := args[0].AsString()
	if !ok {
		return r.fail(ferrors.TypeMismatch("list_md needs a directory string, got "+args[0].Kind().String()), f)
	}
	dir := ListDir(raw)
	r.deps.addDir(dir)

	var plan *templates.Resolved
	if len(args) == 2 {
		name, isString := args[1].AsString()
		if !isString {
			return r.fail(ferrors.TypeMismatch("list_md template must be a string"), f)
		}
		p, err := r.engine.pages.Plan(name)
		if err != nil {
			return r.fail(ferrors.WrapError(err, ferrors.GetCategory(err), "list_md template "+name+" unavailable"), f).
				WithContext("list_template", name)
		}
		plan = p
		r.deps.Plans = append(r.deps.Plans, p)
	}

	for _, it := range r.engine.pages.PagesIn(dir) {
		if it.SourcePath == r.item.SourcePath {
			continue
		}
		r.deps.Listed = append(r.deps.Listed, it.SourcePath)
		if plan == nil {
			body, err := it.RenderedBody(r.engine.markdown)
			if err != nil {
				return r.fail(ferrors.WrapError(err, ferrors.CategoryRuntime, "markdown render failed").
					WithContext("listed", it.SourcePath), f)
			}
			buf.WriteString(`<article data-source="` + html.EscapeString(it.Rel) + `">`)
			buf.WriteString(body)
			buf.WriteString("</article>\n")
			continue
		}
		nested := &run{
			engine: r.engine,
			item:   it,
			plan:   plan,
			scope:  newScope(it.Fields, r.engine.site(), r.engine.builtins(it)),
			deps:   r.deps,
			nested: true,
		}
		if err := nested.list(buf, plan.Segments); err != nil {
			return err
		}
	}
	return nil
}
