package templates

import (
	"slices"
	"sort"
	"strings"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// Resolved is the flattened render plan for one template name. Blocks and
// slots are replaced by their winning definitions and includes are expanded
// inline, so rendering never consults parent links.
type Resolved struct {
	Name string
	// Chain lists the inheritance chain, most derived first.
	Chain []string
	// Includes lists every template pulled in by include, transitively, with
	// their own chains. Sorted.
	Includes []string
	// Assets lists referenced asset paths relative to the assets root. Sorted.
	Assets   []string
	Segments []*Fragment
}

// Templates returns the chain followed by the includes.
func (r *Resolved) Templates() []string {
	out := make([]string, 0, len(r.Chain)+len(r.Includes))
	out = append(out, r.Chain...)
	for _, inc := range r.Includes {
		if !slices.Contains(out, inc) {
			out = append(out, inc)
		}
	}
	return out
}

// DependsOn reports whether the plan was built from template name.
func (r *Resolved) DependsOn(name string) bool {
	return slices.Contains(r.Chain, name) || slices.Contains(r.Includes, name)
}

// Resolve returns the cached render plan for name, building it on first use.
func (s *Store) Resolve(name string) (*Resolved, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(name, nil)
}

// Chain returns the inheritance chain of name, most derived first.
func (s *Store) Chain(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes, err := s.chainLocked(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names, nil
}

func (s *Store) chainLocked(name string) ([]*Node, error) {
	var chain []*Node
	var names []string
	for cur := name; cur != ""; {
		if slices.Contains(names, cur) {
			names = append(names, cur)
			return nil, ferrors.TemplateCycle("template inheritance cycle: "+strings.Join(names, " -> ")).
				WithContext("template", name).
				WithContext("chain", strings.Join(names, " -> ")).
				Build()
		}
		names = append(names, cur)
		n, err := s.loadLocked(cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, n)
		cur = n.Parent
	}
	return chain, nil
}

// resolveLocked builds the plan for name. stack is the include expansion path
// used for include cycle detection.
func (s *Store) resolveLocked(name string, stack []string) (*Resolved, error) {
	if r, ok := s.resolved[name]; ok {
		return r, nil
	}
	if slices.Contains(stack, name) {
		path := strings.Join(append(slices.Clone(stack), name), " -> ")
		return nil, ferrors.TemplateCycle("template include cycle: "+path).
			WithContext("template", name).
			WithContext("chain", path).
			Build()
	}

	chain, err := s.chainLocked(name)
	if err != nil {
		return nil, err
	}

	// Walk root to leaf so more derived definitions overwrite.
	defs := make(map[string]*Fragment)
	for i := len(chain) - 1; i >= 0; i-- {
		for bn, b := range chain[i].Blocks {
			defs[bn] = b
		}
	}

	r := &Resolved{Name: name}
	chainNames := make([]string, len(chain))
	for i, n := range chain {
		chainNames[i] = n.Name
	}
	r.Chain = chainNames

	f := &flattener{
		store:     s,
		defs:      defs,
		plan:      r,
		stack:     append(slices.Clone(stack), name),
		expanding: make(map[string]bool),
	}
	root := chain[len(chain)-1]
	segs, err := f.list(root.Root)
	if err != nil {
		return nil, err
	}
	r.Segments = segs

	assets := map[string]bool{}
	for _, a := range f.assets {
		assets[a] = true
	}
	for _, n := range chain {
		for _, a := range n.Assets {
			assets[a] = true
		}
	}
	r.Assets = sortedKeys(assets)
	r.Includes = sortedKeys(f.includes)

	s.resolved[name] = r
	return r, nil
}

type flattener struct {
	store     *Store
	defs      map[string]*Fragment
	plan      *Resolved
	stack     []string
	expanding map[string]bool
	includes  map[string]bool
	assets    []string
}

func (f *flattener) list(in []*Fragment) ([]*Fragment, error) {
	out := make([]*Fragment, 0, len(in))
	for _, frag := range in {
		resolved, err := f.one(frag)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (f *flattener) one(frag *Fragment) (*Fragment, error) {
	switch frag.Kind {
	case KindBlock, KindSlot:
		def, ok := f.defs[frag.Name]
		if !ok {
			return nil, ferrors.UnresolvedBlock("block "+frag.Name+" is referenced but never defined").
				WithContext("template", f.plan.Name).
				WithContext("block", frag.Name).
				WithContext("chain", strings.Join(f.plan.Chain, " -> ")).
				Build()
		}
		if f.expanding[frag.Name] {
			return nil, ferrors.TemplateCycle("block "+frag.Name+" contains itself").
				WithContext("template", f.plan.Name).
				WithContext("block", frag.Name).
				Build()
		}
		f.expanding[frag.Name] = true
		body, err := f.list(def.Body)
		delete(f.expanding, frag.Name)
		if err != nil {
			return nil, err
		}
		return &Fragment{Kind: KindBlock, Name: frag.Name, Body: body, Line: def.Line}, nil

	case KindInclude:
		sub, err := f.store.resolveLocked(frag.Name, f.stack)
		if err != nil {
			return nil, err
		}
		if f.includes == nil {
			f.includes = make(map[string]bool)
		}
		for _, n := range sub.Chain {
			f.includes[n] = true
		}
		for _, n := range sub.Includes {
			f.includes[n] = true
		}
		f.assets = append(f.assets, sub.Assets...)
		return &Fragment{Kind: KindInclude, Name: frag.Name, Body: sub.Segments, Line: frag.Line}, nil

	case KindIf, KindForeach:
		body, err := f.list(frag.Body)
		if err != nil {
			return nil, err
		}
		els, err := f.list(frag.Else)
		if err != nil {
			return nil, err
		}
		cp := *frag
		cp.Body = body
		cp.Else = els
		return &cp, nil

	default:
		return frag, nil
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
