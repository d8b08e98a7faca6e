package templates

import (
	"strings"
	"unicode"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// item is a lexed span: literal text or one {{ ... }} tag.
type item struct {
	tag  bool
	raw  string // full source text of the span
	body string // trimmed tag contents
	line int
}

// errUnterminated carries the line of a tag missing its closing delimiter.
type errUnterminated struct{ line int }

func (e errUnterminated) Error() string { return "unterminated tag" }

func lex(src string) ([]item, error) {
	var items []item
	line := 1
	for len(src) > 0 {
		i := strings.Index(src, openDelim)
		if i < 0 {
			items = append(items, item{raw: src, line: line})
			break
		}
		if i > 0 {
			items = append(items, item{raw: src[:i], line: line})
			line += strings.Count(src[:i], "\n")
			src = src[i:]
		}
		j := strings.Index(src[len(openDelim):], closeDelim)
		if j < 0 {
			return nil, errUnterminated{line: line}
		}
		end := len(openDelim) + j + len(closeDelim)
		raw := src[:end]
		items = append(items, item{
			tag:  true,
			raw:  raw,
			body: strings.TrimSpace(raw[len(openDelim) : len(raw)-len(closeDelim)]),
			line: line,
		})
		line += strings.Count(raw, "\n")
		src = src[end:]
	}
	return items, nil
}

// word is one token inside a tag.
type word struct {
	s      string
	quoted bool
}

func (w word) is(s string) bool { return !w.quoted && w.s == s }

// splitWords tokenizes a tag body into bare words, double-quoted literals and
// pipe separators. It reports false on an unterminated quote.
func splitWords(body string) ([]word, bool) {
	var out []word
	rs := []rune(body)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '|':
			out = append(out, word{s: "|"})
			i++
		case r == '"':
			var b strings.Builder
			j := i + 1
			closed := false
			for j < len(rs) {
				if rs[j] == '\\' && j+1 < len(rs) {
					b.WriteRune(rs[j+1])
					j += 2
					continue
				}
				if rs[j] == '"' {
					closed = true
					break
				}
				b.WriteRune(rs[j])
				j++
			}
			if !closed {
				return nil, false
			}
			out = append(out, word{s: b.String(), quoted: true})
			i = j + 1
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '|' && rs[j] != '"' {
				j++
			}
			out = append(out, word{s: string(rs[i:j])})
			i = j
		}
	}
	return out, true
}

// validPath reports whether s is a dotted variable path such as page.title
// or tags.0.
func validPath(s string) bool {
	if s == "" {
		return false
	}
	for i, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
		for k, r := range seg {
			ok := r == '_' || unicode.IsLetter(r) || (r == '-' && k > 0) || unicode.IsDigit(r)
			if !ok {
				return false
			}
			if i == 0 && k == 0 && unicode.IsDigit(r) {
				return false
			}
		}
	}
	return true
}

func validIdent(s string) bool {
	return validPath(s) && !strings.Contains(s, ".")
}
