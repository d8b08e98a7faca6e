package templates

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// Ext is the template file extension.
const Ext = ".html"

// Store is an arena of template Nodes keyed by name plus a cache of resolved
// render plans. It is safe for concurrent use.
type Store struct {
	dir     string
	relBase string

	mu       sync.Mutex
	nodes    map[string]*Node
	resolved map[string]*Resolved
}

// NewStore returns a Store reading templates from dir. relBase is the
// project-relative slash path of dir ("templates"), used for source paths.
func NewStore(dir, relBase string) *Store {
	return &Store{
		dir:      dir,
		relBase:  strings.TrimSuffix(relBase, "/"),
		nodes:    make(map[string]*Node),
		resolved: make(map[string]*Resolved),
	}
}

// SourcePath returns the project-relative source path of a template name.
func (s *Store) SourcePath(name string) string {
	if s.relBase == "" {
		return name + Ext
	}
	return s.relBase + "/" + name + Ext
}

// NameForSource maps a project-relative source path back to a template name.
func (s *Store) NameForSource(sourcePath string) (string, bool) {
	prefix := s.relBase + "/"
	if s.relBase == "" {
		prefix = ""
	}
	if !strings.HasPrefix(sourcePath, prefix) || !strings.HasSuffix(sourcePath, Ext) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(sourcePath, prefix), Ext), true
}

// Load returns the node for name, reading and parsing it on first use.
func (s *Store) Load(name string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(name)
}

func (s *Store) loadLocked(name string) (*Node, error) {
	if n, ok := s.nodes[name]; ok {
		return n, nil
	}
	src := s.SourcePath(name)
	if !validName(name) {
		return nil, ferrors.ValidationError("invalid template name").
			WithContext("template", name).Build()
	}
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(name)+Ext))
	if err != nil {
		msg := "cannot read template"
		if errors.Is(err, fs.ErrNotExist) {
			msg = "template not found"
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryIO, msg).Fatal().
			WithContext("template", name).WithContext("path", src).Build()
	}
	n, err := Parse(name, src, data)
	if err != nil {
		return nil, err
	}
	s.nodes[name] = n
	return n, nil
}

// Invalidate drops the node for name so the next Load re-reads it, and drops
// every cached render plan whose inheritance chain or include set contains
// name. It returns the names of the dropped plans, sorted.
func (s *Store) Invalidate(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, name)

	var dropped []string
	for key, r := range s.resolved {
		if r.DependsOn(name) {
			delete(s.resolved, key)
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// Forget removes a deleted template. It behaves like Invalidate.
func (s *Store) Forget(name string) []string {
	return s.Invalidate(name)
}

// Reset empties the arena and the plan cache.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*Node)
	s.resolved = make(map[string]*Resolved)
}

// Discover lists template names under the store directory, sorted. A
// missing directory yields no names.
func (s *Store) Discover() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if p != s.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || filepath.Ext(p) != Ext {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), Ext))
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryIO, "scan templates").Fatal().
			WithContext("path", s.relBase).Build()
	}
	sort.Strings(names)
	return names, nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	clean := path.Clean(name)
	return clean == name && clean != ".." && !strings.HasPrefix(clean, "../")
}
