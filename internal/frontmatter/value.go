package frontmatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a front matter or site variable: a tagged variant of
// string | int | float | bool | sequence | mapping | null.
// The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	seq  []Value
	m    *Map
}

func Null() Value                { return Value{} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Sequence(vs ...Value) Value { return Value{kind: KindSequence, seq: vs} }

// Mapping wraps m as a Value. A nil map becomes an empty mapping.
func Mapping(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMapping, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() (string, bool)    { return v.s, v.kind == KindString }
func (v Value) AsInt() (int64, bool)        { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool)    { return v.f, v.kind == KindFloat }
func (v Value) AsBool() (bool, bool)        { return v.b, v.kind == KindBool }
func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == KindSequence }
func (v Value) AsMapping() (*Map, bool)     { return v.m, v.kind == KindMapping }

// Scalar renders a scalar variant as text. Sequences and mappings have no
// scalar form and report false; null renders as the empty string.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindNull:
		return "", true
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// Truthy reports whether v counts as set for conditionals: null, false, the
// empty string, zero and empty collections are false.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.s != ""
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindBool:
		return v.b
	case KindSequence:
		return len(v.seq) > 0
	case KindMapping:
		return v.m.Len() > 0
	default:
		return false
	}
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBool:
		return v.b == o.b
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		return v.m.Equal(o.m)
	}
	return false
}

func (v Value) String() string {
	if s, ok := v.Scalar(); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v.kind.String()
	}
	return string(data)
}

// MarshalJSON encodes v with mapping keys in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	case KindSequence:
		if v.seq == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.seq)
	case KindMapping:
		return v.m.MarshalJSON()
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// Map is an insertion-ordered mapping of string keys to Values.
type Map struct {
	keys []string
	vals map[string]Value
}

func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set inserts or replaces key. Replacing keeps the original position.
func (m *Map) Set(key string, v Value) {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Lookup resolves a dotted path ("author.name") through nested mappings.
func (m *Map) Lookup(path string) (Value, bool) {
	cur := m
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur.Get(part)
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.AsMapping()
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return Value{}, false
}

// Clone returns a deep copy.
func (m *Map) Clone() *Map {
	out := NewMap()
	for _, k := range m.Keys() {
		out.Set(k, m.vals[k].clone())
	}
	return out
}

// Equal reports deep equality including key order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	for i, k := range m.Keys() {
		if o.keys[i] != k || !m.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

// MergeFrom deep-merges other into m: nested mappings merge, everything else
// is replaced by other's value.
func (m *Map) MergeFrom(other *Map) {
	for _, k := range other.Keys() {
		ov := other.vals[k]
		if cur, ok := m.vals[k]; ok {
			cm, curIsMap := cur.AsMapping()
			om, otherIsMap := ov.AsMapping()
			if curIsMap && otherIsMap {
				merged := cm.Clone()
				merged.MergeFrom(om)
				m.Set(k, Mapping(merged))
				continue
			}
		}
		m.Set(k, ov.clone())
	}
}

func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := m.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v Value) clone() Value {
	switch v.kind {
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i := range v.seq {
			seq[i] = v.seq[i].clone()
		}
		return Sequence(seq...)
	case KindMapping:
		return Mapping(v.m.Clone())
	default:
		return v
	}
}

// MaxNodes bounds how many YAML nodes FromNode expands, counting every
// alias expansion.
const MaxNodes = 100000

// ErrAliasCycle is returned for an alias that refers to a node containing it.
var ErrAliasCycle = errors.New("yaml alias refers to itself")

// ErrTooManyNodes is returned when alias expansion exceeds MaxNodes.
var ErrTooManyNodes = fmt.Errorf("yaml expands to more than %d nodes", MaxNodes)

// FromNode converts a decoded yaml.v3 node into a Value. Timestamps and other
// non-core scalar tags are kept as strings.
func FromNode(n *yaml.Node) (Value, error) {
	c := nodeConverter{expanding: make(map[*yaml.Node]bool)}
	return c.convert(n)
}

type nodeConverter struct {
	// anchors currently being expanded
	expanding map[*yaml.Node]bool
	visited   int
}

func (c *nodeConverter) convert(n *yaml.Node) (Value, error) {
	c.visited++
	if c.visited > MaxNodes {
		return Value{}, ErrTooManyNodes
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return c.convert(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return Null(), nil
		}
		if c.expanding[n.Alias] {
			return Value{}, fmt.Errorf("line %d: %w", n.Line, ErrAliasCycle)
		}
		c.expanding[n.Alias] = true
		defer delete(c.expanding, n.Alias)
		return c.convert(n.Alias)
	case yaml.SequenceNode:
		if n.Anchor != "" {
			c.expanding[n] = true
			defer delete(c.expanding, n)
		}
		seq := make([]Value, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := c.convert(child)
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, v)
		}
		return Sequence(seq...), nil
	case yaml.MappingNode:
		if n.Anchor != "" {
			c.expanding[n] = true
			defer delete(c.expanding, n)
		}
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			v, err := c.convert(valNode)
			if err != nil {
				return Value{}, err
			}
			if keyNode.ShortTag() == "!!merge" {
				if merged, ok := v.AsMapping(); ok {
					m.MergeFrom(merged)
					continue
				}
				return Value{}, fmt.Errorf("line %d: merge key requires a mapping", keyNode.Line)
			}
			m.Set(keyNode.Value, v)
		}
		return Mapping(m), nil
	case yaml.ScalarNode:
		return scalarFromNode(n)
	}
	return Value{}, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

func scalarFromNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	default:
		return String(n.Value), nil
	}
}
