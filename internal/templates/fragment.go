// Package templates loads layout templates, parses their tag syntax into
// fragment trees and resolves `extends` inheritance and `include` expansion
// into flat, cached render plans.
package templates

import "git.home.luguber.info/inful/mdsite/internal/frontmatter"

// FragmentKind identifies a template tree element.
type FragmentKind int

const (
	// KindText is literal markup.
	KindText FragmentKind = iota
	// KindVar prints a variable: {{ page.title | default "x" }}.
	KindVar
	// KindCall prints a helper result: {{ upper page.title }}.
	KindCall
	// KindBlock is a named overridable region.
	KindBlock
	// KindSlot references a block a descendant must define.
	KindSlot
	// KindContent is the page body region.
	KindContent
	// KindIf renders Body or Else by truthiness of Path.
	KindIf
	// KindForeach renders Body once per element of the sequence at Path.
	KindForeach
	// KindInclude expands another template in place.
	KindInclude
	// KindAsset prints a fingerprinted asset URL.
	KindAsset
)

var kindNames = map[FragmentKind]string{
	KindText:    "text",
	KindVar:     "var",
	KindCall:    "call",
	KindBlock:   "block",
	KindSlot:    "slot",
	KindContent: "content",
	KindIf:      "if",
	KindForeach: "foreach",
	KindInclude: "include",
	KindAsset:   "asset",
}

func (k FragmentKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Arg is a helper or filter argument: a quoted literal or a variable path.
type Arg struct {
	Literal   string
	Path      string
	IsLiteral bool
}

// Filter is a pipe stage applied to a printed value.
type Filter struct {
	Name string
	Args []Arg
}

// Fragment is one element of a parsed template tree. Which fields are set
// depends on Kind.
type Fragment struct {
	Kind FragmentKind
	// Text holds literal markup for KindText.
	Text string
	// Path is the variable path for KindVar, KindIf and KindForeach.
	Path string
	// Name is the block, include, helper or asset name.
	Name string
	// Item is the loop variable of KindForeach.
	Item    string
	Args    []Arg
	Filters []Filter
	Body    []*Fragment
	Else    []*Fragment
	// Line is the 1-based source line of the tag.
	Line int
}

// Default returns the literal given to a `default` filter, if any.
func (f *Fragment) Default() (string, bool) {
	for _, flt := range f.Filters {
		if flt.Name == "default" && len(flt.Args) == 1 && flt.Args[0].IsLiteral {
			return flt.Args[0].Literal, true
		}
	}
	return "", false
}

// Node is one template file in the store's arena. Parent links are names.
type Node struct {
	Name string
	// SourcePath is project-relative and slash separated.
	SourcePath string
	Parent     string
	Fields     *frontmatter.Map
	Root       []*Fragment
	// Blocks indexes every block definition in the file, nested ones
	// included.
	Blocks map[string]*Fragment
	// Includes and Assets are referenced names in first-seen order.
	Includes []string
	Assets   []string
}
