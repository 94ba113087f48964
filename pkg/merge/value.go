// Package merge combines configuration fragments into one effective
// configuration.
//
// Values are a closed sum type: a Leaf holds an opaque primitive, a Sequence
// holds an ordered list and a Mapping holds insertion-ordered string keys.
// The tag is fixed when the value is built (FromAny, Decode or the literal
// types), so Merge only has to switch on it.
package merge

import "slices"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindLeaf Kind = iota
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a configuration value: Leaf, Sequence or *Mapping.
type Value interface {
	Kind() Kind
	sealed()
}

// Leaf wraps a primitive or opaque value. Leaves are never recursed into,
// whatever V holds (time.Time, struct instances, response objects...).
type Leaf struct {
	V any
}

func (Leaf) Kind() Kind { return KindLeaf }
func (Leaf) sealed()    {}

// IsNull reports whether the leaf carries no value.
func (l Leaf) IsNull() bool { return l.V == nil }

// Sequence is an ordered list of values.
type Sequence []Value

func (Sequence) Kind() Kind { return KindSequence }
func (Sequence) sealed()    {}

// Pair is a key/value entry used to build a Mapping literal.
type Pair struct {
	Key   string
	Value Value
}

// KV builds a Pair, converting v with FromAny.
func KV(key string, v any) Pair {
	return Pair{Key: key, Value: FromAny(v)}
}

// Mapping is a string-keyed map that remembers insertion order.
// The zero value is not usable; build one with NewMapping.
type Mapping struct {
	keys []string
	vals map[string]Value
}

// NewMapping returns a mapping holding pairs in the given order.
// A repeated key keeps its first position and its last value.
func NewMapping(pairs ...Pair) *Mapping {
	m := &Mapping{
		keys: make([]string, 0, len(pairs)),
		vals: make(map[string]Value, len(pairs)),
	}
	for _, p := range pairs {
		m.Set(p.Key, p.Value)
	}
	return m
}

func (*Mapping) Kind() Kind { return KindMapping }
func (*Mapping) sealed()    {}

// Set stores v under key. Overwriting keeps the key's original position.
// A nil v is stored as a null Leaf.
func (m *Mapping) Set(key string, v Value) {
	if v == nil {
		v = Leaf{}
	}
	if m.vals == nil {
		m.vals = make(map[string]Value)
	}
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Delete removes key if present.
func (m *Mapping) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.vals[key]; !ok {
		return
	}
	delete(m.vals, key)
	if i := slices.Index(m.keys, key); i >= 0 {
		m.keys = slices.Delete(m.keys, i, i+1)
	}
}

// Len returns the number of keys.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *Mapping) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// All iterates over the entries in insertion order.
func (m *Mapping) All() func(yield func(string, Value) bool) {
	return func(yield func(string, Value) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.vals[k]) {
				return
			}
		}
	}
}

// Clone returns a deep copy of the mapping. Sequences are copied
// shallowly, leaves are shared.
func (m *Mapping) Clone() *Mapping {
	return Merge(m)
}

// isAbsent reports whether v contributes nothing as a top-level Merge argument.
func isAbsent(v Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case Leaf:
		return t.V == nil
	case *Mapping:
		return t == nil
	}
	return false
}
