// Package depgraph tracks which output artifacts depend on which source
// files, plus source-to-source edges for template inheritance and includes.
//
// Both directions of every edge are stored and kept consistent. Mutations
// take the write lock; queries take the read lock.
package depgraph

import (
	"fmt"
	"sync"

	"git.home.luguber.info/inful/mdsite/internal/util/sets"
)

// Graph is the dependency graph of one build session.
type Graph struct {
	mu sync.RWMutex

	// artifact -> sources it was rendered from
	sources map[string]sets.Set[string]
	// source -> artifacts rendered from it
	artifacts map[string]sets.Set[string]
	// base source -> derived sources (a change to base affects derived)
	dependents map[string]sets.Set[string]
	// derived source -> base sources
	bases map[string]sets.Set[string]

	dirty sets.Set[string]
}

// New returns an empty graph.
func New() *Graph {
	g := &Graph{}
	g.resetLocked()
	return g
}

func (g *Graph) resetLocked() {
	g.sources = make(map[string]sets.Set[string])
	g.artifacts = make(map[string]sets.Set[string])
	g.dependents = make(map[string]sets.Set[string])
	g.bases = make(map[string]sets.Set[string])
	g.dirty = sets.New[string]()
}

// Reset drops every edge.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
}

// RecordDependency records that artifact was rendered from source.
// Recording an existing edge is a no-op.
func (g *Graph) RecordDependency(artifact, source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	link(g.sources, artifact, source)
	link(g.artifacts, source, artifact)
}

// RecordInheritance records that derived depends on base, for `extends` and
// `include` edges. A change to base affects everything derived from it.
func (g *Graph) RecordInheritance(derived, base string) {
	if derived == base {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	link(g.bases, derived, base)
	link(g.dependents, base, derived)
}

// ReplaceArtifact swaps the source set of artifact for sources.
func (g *Graph) ReplaceArtifact(artifact string, sources []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeArtifactLocked(artifact)
	for _, s := range sources {
		link(g.sources, artifact, s)
		link(g.artifacts, s, artifact)
	}
}

// ReplaceInheritance swaps the base set of derived for bases.
func (g *Graph) ReplaceInheritance(derived string, bases []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for b := range g.bases[derived] {
		unlink(g.dependents, b, derived)
	}
	delete(g.bases, derived)
	for _, b := range bases {
		if b == derived {
			continue
		}
		link(g.bases, derived, b)
		link(g.dependents, b, derived)
	}
}

// RemoveArtifact drops artifact and all of its edges.
func (g *Graph) RemoveArtifact(artifact string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeArtifactLocked(artifact)
	g.dirty.Delete(artifact)
}

func (g *Graph) removeArtifactLocked(artifact string) {
	for s := range g.sources[artifact] {
		unlink(g.artifacts, s, artifact)
	}
	delete(g.sources, artifact)
}

// RemoveSource drops source with its artifact and inheritance edges. It is
// called when the source file is deleted.
func (g *Graph) RemoveSource(source string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for a := range g.artifacts[source] {
		unlink(g.sources, a, source)
	}
	delete(g.artifacts, source)
	for d := range g.dependents[source] {
		unlink(g.bases, d, source)
	}
	delete(g.dependents, source)
	for b := range g.bases[source] {
		unlink(g.dependents, b, source)
	}
	delete(g.bases, source)
}

// AffectedArtifacts returns every artifact depending on source directly or
// through any chain of inheritance and include edges.
func (g *Graph) AffectedArtifacts(source string) sets.Set[string] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.affectedLocked(source)
}

func (g *Graph) affectedLocked(source string) sets.Set[string] {
	out := sets.New[string]()
	seen := sets.New(source)
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out.Merge(g.artifacts[cur])
		for d := range g.dependents[cur] {
			if !seen.Has(d) {
				seen.Add(d)
				queue = append(queue, d)
			}
		}
	}
	return out
}

// Invalidate marks every artifact affected by source as dirty and returns
// them. No edge is removed.
func (g *Graph) Invalidate(source string) sets.Set[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	affected := g.affectedLocked(source)
	g.dirty.Merge(affected)
	return affected
}

// TakeDirty returns the artifacts marked by Invalidate since the last call
// and clears the mark.
func (g *Graph) TakeDirty() sets.Set[string] {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.dirty
	g.dirty = sets.New[string]()
	return out
}

// Sources returns the sources of artifact, sorted.
func (g *Graph) Sources(artifact string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sets.Sorted(g.sources[artifact])
}

// ArtifactsOf returns the artifacts recorded directly against source, sorted.
func (g *Graph) ArtifactsOf(source string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sets.Sorted(g.artifacts[source])
}

// Bases returns the sources derived depends on, sorted.
func (g *Graph) Bases(derived string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sets.Sorted(g.bases[derived])
}

// Artifacts returns every known artifact, sorted.
func (g *Graph) Artifacts() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all := sets.New[string]()
	for a := range g.sources {
		all.Add(a)
	}
	return sets.Sorted(all)
}

// HasSource reports whether any edge mentions source.
func (g *Graph) HasSource(source string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.artifacts[source].Len() > 0 || g.dependents[source].Len() > 0 || g.bases[source].Len() > 0
}

// Consistent verifies that every edge is stored in both directions and that
// no empty sets linger.
func (g *Graph) Consistent() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := mirrored("artifact->source", g.sources, g.artifacts); err != nil {
		return err
	}
	if err := mirrored("source->artifact", g.artifacts, g.sources); err != nil {
		return err
	}
	if err := mirrored("derived->base", g.bases, g.dependents); err != nil {
		return err
	}
	return mirrored("base->derived", g.dependents, g.bases)
}

func mirrored(label string, fwd, rev map[string]sets.Set[string]) error {
	for k, vs := range fwd {
		if vs.Len() == 0 {
			return fmt.Errorf("%s: empty set left for %q", label, k)
		}
		for v := range vs {
			if !rev[v].Has(k) {
				return fmt.Errorf("%s: edge %q -> %q has no inverse", label, k, v)
			}
		}
	}
	return nil
}

func link(m map[string]sets.Set[string], k, v string) {
	s, ok := m[k]
	if !ok {
		s = sets.New[string]()
		m[k] = s
	}
	s.Add(v)
}

func unlink(m map[string]sets.Set[string], k, v string) {
	s, ok := m[k]
	if !ok {
		return
	}
	s.Delete(v)
	if s.Len() == 0 {
		delete(m, k)
	}
}
