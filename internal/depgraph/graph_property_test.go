package depgraph

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"git.home.luguber.info/inful/mdsite/internal/util/sets"
)

const (
	opRecord = iota
	opInherit
	opRemoveArtifact
	opRemoveSource
	opReplace
	opCount
)

// apply interprets a generated op stream against a small universe of names.
func apply(g *Graph, ops []int) {
	for i := 0; i+2 < len(ops); i += 3 {
		a := fmt.Sprintf("out%d.html", ops[i+1]%5)
		s := fmt.Sprintf("src%d", ops[i+2]%6)
		t := fmt.Sprintf("src%d", ops[i+1]%6)
		switch ops[i] % opCount {
		case opRecord:
			g.RecordDependency(a, s)
		case opInherit:
			g.RecordInheritance(s, t)
		case opRemoveArtifact:
			g.RemoveArtifact(a)
		case opRemoveSource:
			g.RemoveSource(s)
		case opReplace:
			g.ReplaceArtifact(a, []string{s, t})
		}
	}
}

func TestGraphProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	opsGen := gen.SliceOf(gen.IntRange(0, 29))

	properties.Property("both directions stay consistent", prop.ForAll(
		func(ops []int) bool {
			g := New()
			apply(g, ops)
			return g.Consistent() == nil
		},
		opsGen,
	))

	properties.Property("affected set covers direct dependents", prop.ForAll(
		func(ops []int) bool {
			g := New()
			apply(g, ops)
			for _, a := range g.Artifacts() {
				for _, s := range g.Sources(a) {
					if !g.AffectedArtifacts(s).Has(a) {
						return false
					}
				}
			}
			return true
		},
		opsGen,
	))

	properties.Property("affected set is closed over inheritance", prop.ForAll(
		func(ops []int) bool {
			g := New()
			apply(g, ops)
			for i := range 6 {
				base := fmt.Sprintf("src%d", i)
				affected := g.AffectedArtifacts(base)
				for j := range 6 {
					derived := fmt.Sprintf("src%d", j)
					for _, b := range g.Bases(derived) {
						if b != base {
							continue
						}
						for a := range g.AffectedArtifacts(derived) {
							if !affected.Has(a) {
								return false
							}
						}
					}
				}
			}
			return true
		},
		opsGen,
	))

	properties.Property("re-recording existing edges changes nothing", prop.ForAll(
		func(ops []int) bool {
			once, twice := New(), New()
			apply(once, ops)
			apply(twice, ops)
			for _, a := range twice.Artifacts() {
				for _, s := range twice.Sources(a) {
					twice.RecordDependency(a, s)
				}
			}
			return sameEdges(once, twice) && twice.Consistent() == nil
		},
		opsGen,
	))

	properties.TestingRun(t)
}

func sameEdges(a, b *Graph) bool {
	aa, ba := a.Artifacts(), b.Artifacts()
	if len(aa) != len(ba) {
		return false
	}
	for i := range aa {
		if aa[i] != ba[i] || fmt.Sprint(a.Sources(aa[i])) != fmt.Sprint(b.Sources(ba[i])) {
			return false
		}
	}
	return len(sets.New(aa...)) == len(aa)
}
