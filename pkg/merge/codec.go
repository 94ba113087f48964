package merge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrRecursiveAlias is returned when a YAML anchor references itself.
	ErrRecursiveAlias = errors.New("yaml alias references its own anchor")
	// ErrNotMapping is returned when a mapping was expected.
	ErrNotMapping = errors.New("value is not a mapping")
)

// Decode parses a YAML or JSON document into a Value, keeping mapping keys
// in document order. An empty document decodes to a null Leaf.
func Decode(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Kind == 0 {
		return Leaf{}, nil
	}
	return (&nodeReader{}).read(&doc)
}

// DecodeMapping is Decode for documents whose root must be a mapping.
// An empty document yields an empty mapping.
func DecodeMapping(data []byte) (*Mapping, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return asMapping(v)
}

// DecodeInto decodes v into out using yaml struct tags.
func DecodeInto(v Value, out any) error {
	n, err := toNode(v)
	if err != nil {
		return err
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}

func asMapping(v Value) (*Mapping, error) {
	switch t := v.(type) {
	case *Mapping:
		if t == nil {
			return NewMapping(), nil
		}
		return t, nil
	case Leaf:
		if t.IsNull() {
			return NewMapping(), nil
		}
	}
	return nil, fmt.Errorf("%w: got %s", ErrNotMapping, v.Kind())
}

type nodeReader struct {
	expanding map[*yaml.Node]bool
}

func (r *nodeReader) read(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Leaf{}, nil
		}
		return r.read(n.Content[0])
	case yaml.MappingNode:
		m := NewMapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			v, err := r.read(val)
			if err != nil {
				return nil, err
			}
			m.Set(key.Value, v)
		}
		return m, nil
	case yaml.SequenceNode:
		seq := make(Sequence, 0, len(n.Content))
		for _, el := range n.Content {
			v, err := r.read(el)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	case yaml.ScalarNode:
		var out any
		if err := n.Decode(&out); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Leaf{V: out}, nil
	case yaml.AliasNode:
		if r.expanding[n.Alias] {
			return nil, fmt.Errorf("line %d: %w", n.Line, ErrRecursiveAlias)
		}
		if r.expanding == nil {
			r.expanding = make(map[*yaml.Node]bool)
		}
		r.expanding[n.Alias] = true
		defer delete(r.expanding, n.Alias)
		return r.read(n.Alias)
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

func toNode(v Value) (*yaml.Node, error) {
	switch t := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case Leaf:
		var n yaml.Node
		if err := n.Encode(t.V); err != nil {
			return nil, fmt.Errorf("encode leaf: %w", err)
		}
		return &n, nil
	case Sequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, el := range t {
			child, err := toNode(el)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case *Mapping:
		if t == nil {
			return toNode(nil)
		}
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for k, el := range t.All() {
			child, err := toNode(el)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				child,
			)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unsupported value %T", v)
}

// MarshalYAML keeps the mapping's key order.
func (m *Mapping) MarshalYAML() (any, error) {
	return toNode(m)
}

// UnmarshalYAML reads a mapping node, keeping document order.
func (m *Mapping) UnmarshalYAML(n *yaml.Node) error {
	v, err := (&nodeReader{}).read(n)
	if err != nil {
		return err
	}
	mm, err := asMapping(v)
	if err != nil {
		return err
	}
	*m = *mm
	return nil
}

// MarshalJSON writes the mapping as a JSON object in key order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalValueJSON(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	mm, err := DecodeMapping(data)
	if err != nil {
		return err
	}
	*m = *mm
	return nil
}

// MarshalJSON writes the wrapped value.
func (l Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.V)
}

// MarshalYAML writes the wrapped value.
func (l Leaf) MarshalYAML() (any, error) {
	return l.V, nil
}

func marshalValueJSON(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}
