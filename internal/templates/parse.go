package templates

import (
	"errors"
	"strings"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
	"git.home.luguber.info/inful/mdsite/internal/frontmatter"
)

// Parse parses one template file into a Node. Front matter may declare
// `extends: <parent>`.
func Parse(name, sourcePath string, src []byte) (*Node, error) {
	doc, err := frontmatter.Parse(sourcePath, src)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTemplateSyntax, "invalid template front matter").
			Fatal().WithContext("template", name).WithContext("path", sourcePath).Build()
	}

	node := &Node{
		Name:       name,
		SourcePath: sourcePath,
		Fields:     doc.Fields,
		Blocks:     make(map[string]*Fragment),
	}
	if v, ok := doc.Fields.Get("extends"); ok {
		parent, isString := v.AsString()
		if !isString || parent == "" {
			return nil, syntaxError(node, 1, "extends must name a template")
		}
		node.Parent = strings.TrimSuffix(parent, ".html")
	}

	body := string(doc.Body)
	items, err := lex(body)
	if err != nil {
		var ut errUnterminated
		line := 0
		if errors.As(err, &ut) {
			line = ut.line
		}
		return nil, syntaxError(node, line, "unterminated tag, missing }}")
	}

	p := &parser{node: node, items: items}
	root, end, err := p.parseList()
	if err != nil {
		return nil, err
	}
	if end != "" {
		return nil, syntaxError(node, p.lastLine, "unexpected {{ "+end+" }}")
	}
	node.Root = root
	node.Assets = appendUnique(node.Assets, scanAssetRefs(blankTags(items))...)
	return node, nil
}

type parser struct {
	node     *Node
	items    []item
	pos      int
	lastLine int
}

var closers = map[string]bool{"endblock": true, "endif": true, "endforeach": true, "else": true}

// parseList parses fragments until one of stop is reached or input ends. It
// returns the stop keyword that ended the list, or "" at end of input.
func (p *parser) parseList(stop ...string) ([]*Fragment, string, error) {
	var out []*Fragment
	for p.pos < len(p.items) {
		it := p.items[p.pos]
		p.pos++
		p.lastLine = it.line
		if !it.tag {
			out = append(out, &Fragment{Kind: KindText, Text: it.raw, Line: it.line})
			continue
		}

		words, ok := splitWords(it.body)
		if !ok || len(words) == 0 || words[0].quoted {
			out = append(out, literal(it))
			continue
		}

		kw := words[0].s
		if closers[kw] && len(words) == 1 {
			for _, s := range stop {
				if s == kw {
					return out, kw, nil
				}
			}
			return nil, "", syntaxError(p.node, it.line, "unexpected {{ "+kw+" }}")
		}

		frag, err := p.parseTag(it, words)
		if err != nil {
			return nil, "", err
		}
		out = append(out, frag)
	}
	return out, "", nil
}

func (p *parser) parseTag(it item, words []word) (*Fragment, error) {
	kw := words[0].s
	switch kw {
	case "block":
		name, err := p.quotedArg(it, words, "block")
		if err != nil {
			return nil, err
		}
		if _, dup := p.node.Blocks[name]; dup {
			return nil, syntaxError(p.node, it.line, "block "+name+" defined twice").WithContext("block", name)
		}
		frag := &Fragment{Kind: KindBlock, Name: name, Line: it.line}
		p.node.Blocks[name] = frag
		body, end, err := p.parseList("endblock")
		if err != nil {
			return nil, err
		}
		if end == "" {
			return nil, syntaxError(p.node, it.line, "block "+name+" is not closed by {{ endblock }}")
		}
		frag.Body = body
		return frag, nil

	case "slot":
		name, err := p.quotedArg(it, words, "slot")
		if err != nil {
			return nil, err
		}
		return &Fragment{Kind: KindSlot, Name: name, Line: it.line}, nil

	case "include":
		name, err := p.quotedArg(it, words, "include")
		if err != nil {
			return nil, err
		}
		name = strings.TrimSuffix(name, ".html")
		p.node.Includes = appendUnique(p.node.Includes, name)
		return &Fragment{Kind: KindInclude, Name: name, Line: it.line}, nil

	case "asset":
		name, err := p.quotedArg(it, words, "asset")
		if err != nil {
			return nil, err
		}
		name = strings.TrimPrefix(name, "/")
		p.node.Assets = appendUnique(p.node.Assets, name)
		return &Fragment{Kind: KindAsset, Name: name, Line: it.line}, nil

	case "content":
		if len(words) == 1 {
			return &Fragment{Kind: KindContent, Line: it.line}, nil
		}

	case "if":
		if len(words) != 2 || words[1].quoted || !validPath(words[1].s) {
			return nil, syntaxError(p.node, it.line, "if expects a single variable")
		}
		frag := &Fragment{Kind: KindIf, Path: words[1].s, Line: it.line}
		body, end, err := p.parseList("else", "endif")
		if err != nil {
			return nil, err
		}
		frag.Body = body
		if end == "else" {
			frag.Else, end, err = p.parseList("endif")
			if err != nil {
				return nil, err
			}
		}
		if end != "endif" {
			return nil, syntaxError(p.node, it.line, "if is not closed by {{ endif }}")
		}
		return frag, nil

	case "foreach":
		if len(words) != 4 || !words[2].is("as") || words[1].quoted || !validPath(words[1].s) ||
			words[3].quoted || !validIdent(words[3].s) {
			return nil, syntaxError(p.node, it.line, "foreach expects: foreach <variable> as <name>")
		}
		frag := &Fragment{Kind: KindForeach, Path: words[1].s, Item: words[3].s, Line: it.line}
		body, end, err := p.parseList("endforeach")
		if err != nil {
			return nil, err
		}
		if end == "" {
			return nil, syntaxError(p.node, it.line, "foreach is not closed by {{ endforeach }}")
		}
		frag.Body = body
		return frag, nil
	}

	if frag := parseExpr(words, it.line); frag != nil {
		return frag, nil
	}
	return literal(it), nil
}

func (p *parser) quotedArg(it item, words []word, kw string) (string, error) {
	if len(words) != 2 || !words[1].quoted || words[1].s == "" {
		return "", syntaxError(p.node, it.line, kw+` expects one quoted name, e.g. {{ `+kw+` "name" }}`)
	}
	return words[1].s, nil
}

// parseExpr parses variable and helper expressions with optional pipe
// filters. It returns nil when the tag is not a recognised expression.
func parseExpr(words []word, line int) *Fragment {
	var stages [][]word
	cur := []word{}
	for _, w := range words {
		if w.is("|") {
			stages = append(stages, cur)
			cur = []word{}
			continue
		}
		cur = append(cur, w)
	}
	stages = append(stages, cur)

	head := stages[0]
	var frag *Fragment
	switch {
	case len(head) == 1 && !head[0].quoted && validPath(head[0].s):
		frag = &Fragment{Kind: KindVar, Path: head[0].s, Line: line}
	case len(head) >= 2 && !head[0].quoted && IsHelper(head[0].s):
		args, ok := toArgs(head[1:])
		if !ok {
			return nil
		}
		frag = &Fragment{Kind: KindCall, Name: head[0].s, Args: args, Line: line}
	default:
		return nil
	}

	for _, st := range stages[1:] {
		if len(st) == 0 || st[0].quoted {
			return nil
		}
		name := st[0].s
		if name != "default" && !IsHelper(name) {
			return nil
		}
		args, ok := toArgs(st[1:])
		if !ok {
			return nil
		}
		if name == "default" && (len(args) != 1 || !args[0].IsLiteral) {
			return nil
		}
		frag.Filters = append(frag.Filters, Filter{Name: name, Args: args})
	}
	return frag
}

func toArgs(ws []word) ([]Arg, bool) {
	args := make([]Arg, 0, len(ws))
	for _, w := range ws {
		switch {
		case w.quoted:
			args = append(args, Arg{Literal: w.s, IsLiteral: true})
		case validPath(w.s):
			args = append(args, Arg{Path: w.s})
		default:
			return nil, false
		}
	}
	return args, true
}

func literal(it item) *Fragment {
	return &Fragment{Kind: KindText, Text: it.raw, Line: it.line}
}

func syntaxError(n *Node, line int, msg string) *ferrors.ClassifiedError {
	return ferrors.TemplateSyntax(msg).
		WithContext("template", n.Name).
		WithContext("path", n.SourcePath).
		WithContext("line", line).
		Build()
}

func appendUnique(list []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, e := range list {
			if e == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
