// Package render evaluates resolved template plans against a content item,
// its front matter and the site configuration.
package render

import (
	"bytes"
	"html"

	"git.home.luguber.info/inful/mdsite/internal/config"
	"git.home.luguber.info/inful/mdsite/internal/content"
	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
	"git.home.luguber.info/inful/mdsite/internal/templates"
)

// Assets maps asset paths (relative to the assets root) to public URLs.
type Assets interface {
	URL(path string) (string, bool)
}

// Engine renders pages. It holds no per-page state and is safe for
// concurrent use.
type Engine struct {
	cfg      *config.BuildConfig
	markdown content.BodyRenderer
	assets   Assets
	revision string
	pages    Pages
}

// New returns an Engine for one build generation.
func New(cfg *config.BuildConfig, md content.BodyRenderer, assets Assets, revision string) *Engine {
	return &Engine{cfg: cfg, markdown: md, assets: assets, revision: revision}
}

// WithPages enables list_md over pages.
func (e *Engine) WithPages(pages Pages) *Engine {
	e.pages = pages
	return e
}

// Render produces the final HTML for item using plan. Errors are page-local
// and carry the source path and template name.
func (e *Engine) Render(item *content.Item, plan *templates.Resolved) ([]byte, error) {
	page, err := e.RenderPage(item, plan)
	return page.HTML, err
}

// RenderPage is Render that also reports what list_md read. The reported
// sources are kept on error so a failed page still depends on them.
func (e *Engine) RenderPage(item *content.Item, plan *templates.Resolved) (Page, error) {
	var page Page
	r := &run{
		engine: e,
		item:   item,
		plan:   plan,
		scope:  newScope(item.Fields, e.site(), e.builtins(item)),
		deps:   &page,
	}
	var buf bytes.Buffer
	if err := r.list(&buf, plan.Segments); err != nil {
		return page, err
	}
	page.HTML = buf.Bytes()
	return page, nil
}

func (e *Engine) site() *frontmatter.Map {
	if e.cfg == nil || e.cfg.Site == nil {
		return frontmatter.NewMap()
	}
	return e.cfg.Site
}

func (e *Engine) builtins(item *content.Item) *frontmatter.Map {
	m := frontmatter.NewMap()
	m.Set("build_revision", frontmatter.String(e.revision))
	variant, baseURL := "", ""
	if e.cfg != nil {
		variant, baseURL = e.cfg.Variant, e.cfg.BaseURL
	}
	m.Set("variant", frontmatter.String(variant))
	m.Set("base_url", frontmatter.String(baseURL))
	m.Set("output_path", frontmatter.String(item.OutputPath))
	m.Set("url", frontmatter.String(item.URL))
	m.Set("source_path", frontmatter.String(item.SourcePath))
	return m
}

// run is the state of rendering one page.
type run struct {
	engine *Engine
	item   *content.Item
	plan   *templates.Resolved
	scope  *scope
	deps   *Page
	// nested is set while rendering a page listed by list_md.
	nested bool
}

func (r *run) list(buf *bytes.Buffer, frags []*templates.Fragment) error {
	for _, f := range frags {
		if err := r.one(buf, f); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) one(buf *bytes.Buffer, f *templates.Fragment) error {
	switch f.Kind {
	case templates.KindText:
		buf.WriteString(f.Text)

	case templates.KindContent:
		body, err := r.item.RenderedBody(r.engine.markdown)
		if err != nil {
			return r.fail(ferrors.WrapError(err, ferrors.CategoryRuntime, "markdown render failed"), f)
		}
		buf.WriteString(body)

	case templates.KindBlock:
		if override, ok, err := r.blockOverride(f); err != nil {
			return err
		} else if ok {
			buf.WriteString(override)
			return nil
		}
		return r.list(buf, f.Body)

	case templates.KindInclude:
		return r.list(buf, f.Body)

	case templates.KindVar:
		v, found := r.scope.lookup(f.Path)
		if !found || v.Kind() == frontmatter.KindNull {
			if def, ok := f.Default(); ok {
				v, found = frontmatter.String(def), true
			}
		}
		if !found {
			return r.fail(ferrors.MissingVariable("variable "+f.Path+" is not defined"), f).
				WithContext("variable", f.Path)
		}
		return r.print(buf, f, v)

	case templates.KindCall:
		args, err := r.args(f, f.Args)
		if err != nil {
			return err
		}
		if f.Name == "list_md" {
			return r.listPages(buf, f, args)
		}
		v, err := callHelper(r.engine, f.Name, args)
		if err != nil {
			return r.fail(asBuilder(err), f)
		}
		return r.print(buf, f, v)

	case templates.KindIf:
		v, found := r.scope.lookup(f.Path)
		if found && v.Truthy() {
			return r.list(buf, f.Body)
		}
		return r.list(buf, f.Else)

	case templates.KindForeach:
		return r.foreach(buf, f)

	case templates.KindAsset:
		if r.engine.assets == nil {
			return r.fail(ferrors.IOFailure("asset "+f.Name+" not found"), f).WithContext("asset", f.Name)
		}
		u, ok := r.engine.assets.URL(f.Name)
		if !ok {
			return r.fail(ferrors.IOFailure("asset "+f.Name+" not found"), f).WithContext("asset", f.Name)
		}
		buf.WriteString(html.EscapeString(u))

	default:
		return r.fail(ferrors.InternalError("unexpected fragment "+f.Kind.String()), f)
	}
	return nil
}

// blockOverride returns the front matter `blocks.<name>` text, if present.
func (r *run) blockOverride(f *templates.Fragment) (string, bool, error) {
	v, ok := r.item.Fields.Get("blocks")
	if !ok {
		return "", false, nil
	}
	blocks, isMap := v.AsMapping()
	if !isMap {
		return "", false, r.fail(ferrors.TypeMismatch("blocks must be a mapping"), f).
			WithContext("kind", v.Kind().String())
	}
	ov, ok := blocks.Get(f.Name)
	if !ok {
		return "", false, nil
	}
	s, isString := ov.AsString()
	if !isString {
		return "", false, r.fail(ferrors.TypeMismatch("block override "+f.Name+" must be a string"), f).
			WithContext("block", f.Name).WithContext("kind", ov.Kind().String())
	}
	return s, true, nil
}

func (r *run) foreach(buf *bytes.Buffer, f *templates.Fragment) error {
	v, found := r.scope.lookup(f.Path)
	if !found {
		return r.fail(ferrors.MissingVariable("variable "+f.Path+" is not defined"), f).
			WithContext("variable", f.Path)
	}
	if v.Kind() == frontmatter.KindNull {
		return nil
	}
	items, ok := v.AsSequence()
	if !ok {
		return r.fail(ferrors.TypeMismatch("foreach needs a sequence, "+f.Path+" is a "+v.Kind().String()), f).
			WithContext("variable", f.Path)
	}
	for i, it := range items {
		loop := frontmatter.NewMap()
		loop.Set("index", frontmatter.Int(int64(i+1)))
		loop.Set("first", frontmatter.Bool(i == 0))
		loop.Set("last", frontmatter.Bool(i == len(items)-1))
		frame := frontmatter.NewMap()
		frame.Set(f.Item, it)
		frame.Set("loop", frontmatter.Mapping(loop))

		r.scope.push(frame)
		err := r.list(buf, f.Body)
		r.scope.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *run) args(f *templates.Fragment, in []templates.Arg) ([]frontmatter.Value, error) {
	out := make([]frontmatter.Value, 0, len(in))
	for _, a := range in {
		if a.IsLiteral {
			out = append(out, frontmatter.String(a.Literal))
			continue
		}
		v, found := r.scope.lookup(a.Path)
		if !found {
			return nil, r.fail(ferrors.MissingVariable("variable "+a.Path+" is not defined"), f).
				WithContext("variable", a.Path)
		}
		out = append(out, v)
	}
	return out, nil
}

// print applies pipe filters to v and writes the escaped result.
func (r *run) print(buf *bytes.Buffer, f *templates.Fragment, v frontmatter.Value) error {
	for _, flt := range f.Filters {
		if flt.Name == "default" {
			continue
		}
		extra, err := r.args(f, flt.Args)
		if err != nil {
			return err
		}
		v, err = callHelper(r.engine, flt.Name, append([]frontmatter.Value{v}, extra...))
		if err != nil {
			return r.fail(asBuilder(err), f)
		}
	}
	s, ok := v.Scalar()
	if !ok {
		what := f.Path
		if what == "" {
			what = f.Name
		}
		return r.fail(ferrors.TypeMismatch("cannot print "+v.Kind().String()+" "+what), f).
			WithContext("variable", what)
	}
	buf.WriteString(html.EscapeString(s))
	return nil
}

func (r *run) fail(b *ferrors.ErrorBuilder, f *templates.Fragment) *ferrors.ClassifiedError {
	return b.
		WithContext("path", r.item.SourcePath).
		WithContext("template", r.plan.Name).
		WithContext("line", f.Line).
		Build()
}
