package domain

import (
	"iter"
	"strconv"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindDate
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a dynamically shaped document node. The zero Value is null.
//
// Map values share their underlying *Map, so copies of a Value observe
// writes made through any of them.
type Value struct {
	kind Kind
	str  string // string content, or the literal text of a number
	num  float64
	b    bool
	t    time.Time
	seq  []Value
	m    *Map
}

func Null() Value { return Value{} }

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f, str: strconv.FormatFloat(f, 'g', -1, 64)}
}

func BoolValue(b bool) Value { return Value{kind: KindBoolean, b: b} }

func DateValue(t time.Time) Value { return Value{kind: KindDate, t: t} }

func SequenceValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// MapValue wraps m. A nil m yields an empty map.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsComposite reports whether v is a sequence or a map.
func (v Value) IsComposite() bool { return v.kind == KindSequence || v.kind == KindMap }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.b, true
}

func (v Value) AsDate() (time.Time, bool) {
	if v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) AsSequence() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	return v.seq, true
}

func (v Value) AsMap() (*Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Equal reports deep equality. Kinds must match: the string "1" never
// equals the number 1. Map comparison ignores key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBoolean:
		return v.b == o.b
	case KindDate:
		return v.t.Equal(o.t)
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
	case KindMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for key, val := range v.m.All() {
			other, ok := o.m.Get(key)
			if !ok || !val.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// Map is a string-keyed mapping that remembers insertion order.
// A nil *Map behaves as an empty, read-only map.
type Map struct {
	keys   []string
	values map[string]Value
}

func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores v under key. Overwriting keeps the key's original position.
func (m *Map) Set(key string, v Value) {
	if m.values == nil {
		m.values = make(map[string]Value)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// All iterates entries in insertion order.
func (m *Map) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if m == nil {
			return
		}
		for _, key := range m.keys {
			if !yield(key, m.values[key]) {
				return
			}
		}
	}
}
