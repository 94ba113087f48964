package merge

import (
	"slices"
	"strconv"
)

// Merge combines args left to right into a freshly allocated mapping.
//
// Later arguments override earlier ones key by key, except when both the
// accumulated value and the incoming one are mappings: those are merged
// recursively. Incoming mappings are deep-copied and sequences are copied
// shallowly, so the result never shares a nested mapping with its inputs.
//
// Absent arguments (nil, null leaves) are skipped. Any other leaf is handled
// as a one-element sequence, so Merge(Leaf{5}, m) yields key "0" first.
// Sequences contribute their elements under decimal index keys.
//
// Merge does not detect cycles; a mapping that contains itself recurses
// until the stack is exhausted.
func Merge(args ...Value) *Mapping {
	result := NewMapping()
	for _, arg := range args {
		forEach(arg, result.assign)
	}
	return result
}

func forEach(v Value, fn func(key string, val Value)) {
	if isAbsent(v) {
		return
	}
	switch t := v.(type) {
	case Leaf:
		fn("0", t)
	case Sequence:
		for i, el := range t {
			fn(strconv.Itoa(i), el)
		}
	case *Mapping:
		for _, k := range t.keys {
			fn(k, t.vals[k])
		}
	}
}

func (m *Mapping) assign(key string, val Value) {
	switch v := val.(type) {
	case *Mapping:
		if v == nil {
			m.Set(key, Leaf{})
			return
		}
		if cur, ok := m.Get(key); ok {
			if existing, isMap := cur.(*Mapping); isMap && existing != nil {
				m.Set(key, Merge(existing, v))
				return
			}
		}
		m.Set(key, Merge(v))
	case Sequence:
		m.Set(key, slices.Clone(v))
	default:
		m.Set(key, val)
	}
}
