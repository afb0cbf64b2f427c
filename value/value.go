// Package value defines the generic representation exchanged between RPC
// handlers and response encoders.
//
// A Value is one of six shapes: null, boolean, number, string, an ordered
// sequence of values, or an ordered mapping from string keys to values.
// Encoders only ever see these shapes; handlers may return arbitrary Go values,
// which Adapt wraps lazily so that nested structure is converted on access
// instead of being copied up front.
//
// Sequences and mappings are interfaces so that live sources (a database
// cursor, a struct held by a handler) can back them directly:
//
//	v, err := value.Adapt(stats)    // struct -> lazy Mapping
//	m := v.Mapping()
//	for _, k := range m.Keys() {
//	    fv, err := m.Get(k)           // field adapted on first access
//	    ...
//	}
package value

import (
	"iter"
	"math"
	"strconv"
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	SequenceKind
	MappingKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "boolean"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case SequenceKind:
		return "sequence"
	case MappingKind:
		return "mapping"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Sequence is an ordered, possibly single-pass, collection of values.
//
// All yields elements in order. When the underlying source fails, All yields
// a final (Null(), err) pair and stops. Elements already yielded stay valid.
type Sequence interface {
	All() iter.Seq2[Value, error]
}

// List is a Sequence with random access. Slices and arrays adapt to a List;
// cursors do not.
type List interface {
	Sequence
	Len() int
	At(i int) (Value, error)
}

// Mapping is an ordered mapping from string keys to values.
//
// Keys returns the keys in presentation order. Get returns Null() for a key
// that is not present.
type Mapping interface {
	Keys() []string
	Get(key string) (Value, error)
}

// Value is a node of the generic tree. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	isInt bool
	s     string
	seq   Sequence
	m     Mapping
}

// Null returns the null value.
func Null() Value { return Value{} }

// Boolean returns a boolean value.
func Boolean(b bool) Value { return Value{kind: BoolKind, b: b} }

// Int returns an integral number.
func Int(i int64) Value { return Value{kind: NumberKind, i: i, f: float64(i), isInt: true} }

// Uint returns an integral number. Values above math.MaxInt64 are stored as
// floating point.
func Uint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

// Float returns a floating point number.
func Float(f float64) Value { return Value{kind: NumberKind, f: f, i: int64(f)} }

// Text returns a string value.
func Text(s string) Value { return Value{kind: StringKind, s: s} }

// Seq returns a sequence value. A nil Sequence yields null.
func Seq(s Sequence) Value {
	if s == nil {
		return Null()
	}
	return Value{kind: SequenceKind, seq: s}
}

// Map returns a mapping value. A nil Mapping yields null.
func Map(m Mapping) Value {
	if m == nil {
		return Null()
	}
	return Value{kind: MappingKind, m: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == NullKind }

// Bool returns the boolean content; false for other kinds.
func (v Value) Bool() bool { return v.kind == BoolKind && v.b }

// IsInteger reports whether v is a number stored without a fractional part.
func (v Value) IsInteger() bool { return v.kind == NumberKind && v.isInt }

// Int returns the number truncated to an int64; 0 for other kinds.
func (v Value) Int() int64 {
	if v.kind != NumberKind {
		return 0
	}
	return v.i
}

// Float returns the number as a float64; 0 for other kinds.
func (v Value) Float() float64 {
	if v.kind != NumberKind {
		return 0
	}
	return v.f
}

// Text returns the string content; "" for other kinds.
func (v Value) Text() string {
	if v.kind != StringKind {
		return ""
	}
	return v.s
}

// Sequence returns the sequence content, or nil.
func (v Value) Sequence() Sequence { return v.seq }

// Mapping returns the mapping content, or nil.
func (v Value) Mapping() Mapping { return v.m }

// String renders scalars as text. Sequences and mappings render as a kind
// marker; use an encoder to serialise them.
func (v Value) String() string {
	switch v.kind {
	case NullKind:
		return "null"
	case BoolKind:
		return strconv.FormatBool(v.b)
	case NumberKind:
		return FormatNumber(v)
	case StringKind:
		return v.s
	}
	return "<" + v.kind.String() + ">"
}

// FormatNumber formats a number value the way encoders write it: integers
// without exponent, floats in the shortest round-tripping form.
func FormatNumber(v Value) string {
	if v.isInt {
		return strconv.FormatInt(v.i, 10)
	}
	return strconv.FormatFloat(v.f, 'g', -1, 64)
}
