// Package frontmatter splits `---` delimited YAML front matter from markdown
// bodies and decodes it into ordered, typed values.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/mdsite/internal/foundation/errors"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml front matter start delimiter found but closing delimiter is missing")

// Document is a parsed content file.
type Document struct {
	Fields *Map
	Body   []byte
	// Raw is the front matter text between the delimiters.
	Raw []byte
	// Had reports whether the file carried a front matter block at all.
	Had bool
}

// Split separates YAML front matter (`---` delimited) from the Markdown body.
//
// If the document does not start with a front matter delimiter, had is false
// and body is the full input. A closing delimiter at end of file without a
// trailing newline is accepted.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	rest := content[start:]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], true, nil
	}
	if bytes.Equal(rest, []byte("---")) {
		return []byte{}, []byte{}, true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	if idx := bytes.Index(rest, closeSeq); idx >= 0 {
		return rest[:idx+len(nl)], rest[idx+len(closeSeq):], true, nil
	}

	closeEOF := []byte(nl + "---")
	if bytes.HasSuffix(rest, closeEOF) {
		end := len(rest) - len(closeEOF)
		return rest[:end+len(nl)], []byte{}, true, nil
	}

	return nil, nil, false, ErrMissingClosingDelimiter
}

// Parse splits content and decodes its front matter into an ordered Map.
//
// Failures are MalformedFrontMatter errors carrying the path. Files without a
// front matter block yield an empty Map.
func Parse(path string, content []byte) (*Document, error) {
	raw, body, had, err := Split(content)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMalformedFrontMatter, "front matter is not closed").
			WithContext("path", path).
			Build()
	}

	fields, err := Decode(raw)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMalformedFrontMatter, "front matter is not a valid YAML mapping").
			WithContext("path", path).
			Build()
	}

	return &Document{Fields: fields, Body: body, Raw: raw, Had: had}, nil
}

// Decode parses raw YAML front matter (without delimiters) into a Map.
// Blank input yields an empty Map; any top-level value other than a mapping
// is an error.
func Decode(raw []byte) (*Map, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return NewMap(), nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return NewMap(), nil
	}

	v, err := FromNode(&doc)
	if err != nil {
		return nil, err
	}
	switch v.Kind() {
	case KindMapping:
		return v.m, nil
	case KindNull:
		return NewMap(), nil
	default:
		return nil, errors.New("front matter must be a mapping, got " + v.Kind().String())
	}
}

func detectNewline(content []byte) string {
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			if i > 0 && content[i-1] == '\r' {
				return "\r\n"
			}
			return "\n"
		}
	}
	return "\n"
}
