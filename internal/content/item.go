// Package content models markdown content files: parsing, default fields,
// routing to output paths and discovery under the content directory.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/inful/mdfp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

// BodyRenderer converts markdown to HTML.
type BodyRenderer interface {
	Render(body []byte) (string, error)
}

// Item is one content file. Identity is SourcePath.
type Item struct {
	// SourcePath is project-relative and slash separated ("content/posts/a.md").
	SourcePath string
	// Rel is relative to the content directory ("posts/a.md").
	Rel        string
	Fields     *frontmatter.Map
	Body       []byte
	Layout     string
	OutputPath string
	URL        string
	// Hash is the sha256 of the file bytes. Equal hashes mean the source did
	// not change.
	Hash string
	// Fingerprint is the mdfp content fingerprint reported in logs. It
	// ignores a `fingerprint:` front matter key, so it must not be used for
	// change detection.
	Fingerprint string
	ModTime     time.Time

	mu       sync.Mutex
	html     string
	rendered bool
}

// Options carries the defaults applied while parsing.
type Options struct {
	DefaultLayout string
	Router        *Router
}

// Parse builds an Item from raw file bytes. It is a pure function of its
// inputs apart from the supplied modification time.
func Parse(sourcePath, rel string, data []byte, modTime time.Time, opts Options) (*Item, error) {
	doc, err := frontmatter.Parse(sourcePath, data)
	if err != nil {
		return nil, err
	}

	fields := doc.Fields
	if !fields.Has("title") {
		fields.Set("title", frontmatter.String(TitleFromPath(rel)))
	}

	layout := opts.DefaultLayout
	if v, ok := fields.Get("layout"); ok {
		s, isString := v.AsString()
		if !isString {
			return nil, ferrors.TypeMismatch("layout must be a string").
				WithContext("path", sourcePath).WithContext("kind", v.Kind().String()).Build()
		}
		layout = s
	}
	if layout == "" {
		return nil, ferrors.NewError(ferrors.CategoryValidation, "no layout declared and no default layout configured").
			WithContext("path", sourcePath).Build()
	}

	router := opts.Router
	if router == nil {
		router = NewRouter(nil, true)
	}
	out, err := router.Route(rel, fields)
	if err != nil {
		return nil, err
	}

	return &Item{
		SourcePath:  sourcePath,
		Rel:         rel,
		Fields:      fields,
		Body:        doc.Body,
		Layout:      layout,
		OutputPath:  out,
		URL:         URLFor(out),
		Hash:        hashSource(data),
		Fingerprint: mdfp.CalculateFingerprintFromParts(string(doc.Raw), string(doc.Body)),
		ModTime:     modTime,
	}, nil
}

// ReadFile reads and parses the content file at absPath.
func ReadFile(absPath, sourcePath, rel string, opts Options) (*Item, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIO, "read content file").
			WithContext("path", sourcePath).Build()
	}
	var mod time.Time
	if info, statErr := os.Stat(absPath); statErr == nil {
		mod = info.ModTime()
	}
	return Parse(sourcePath, rel, data, mod, opts)
}

func hashSource(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RenderedBody returns the body HTML, rendering it on first use. The cache
// lives as long as the Item; a changed file is re-parsed into a new Item.
func (it *Item) RenderedBody(r BodyRenderer) (string, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.rendered {
		return it.html, nil
	}
	html, err := r.Render(it.Body)
	if err != nil {
		return "", err
	}
	it.html = html
	it.rendered = true
	return html, nil
}

// Draft reports whether the item is marked `draft: true`.
func (it *Item) Draft() bool {
	v, ok := it.Fields.Get("draft")
	if !ok {
		return false
	}
	b, isBool := v.AsBool()
	return isBool && b
}

// TitleFromPath derives a display title from a file name:
// "posts/hello-big_world.md" becomes "Hello Big World".
func TitleFromPath(rel string) string {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "index" {
		if dir := path.Dir(rel); dir != "." {
			stem = path.Base(dir)
		} else {
			stem = "home"
		}
	}
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(stem))
	return cases.Title(language.English).String(strings.Join(words, " "))
}
