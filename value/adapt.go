package value

import (
	"database/sql/driver"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Properties is implemented by values that enumerate their own properties
// instead of being adapted field by field through reflection.
//
// PropertyNames returns the property names in presentation order. Property
// returns the raw value of a named property; it is adapted on first access.
//
// Cycle detection tracks pointers, so an implementation that can reach
// itself through its properties must use a pointer receiver.
type Properties interface {
	PropertyNames() []string
	Property(name string) (any, error)
}

// CyclicStructureError reports a value that refers back to one of its own
// ancestors. Adaptation stops at the repeated reference.
type CyclicStructureError struct {
	Type reflect.Type
}

func (e *CyclicStructureError) Error() string {
	return fmt.Sprintf("value: cyclic structure through %s", e.Type)
}

// UnsupportedTypeError reports a Go type with no generic representation
// (channels, funcs, complex numbers, maps with non-scalar keys).
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("value: unsupported type %s", e.Type)
}

// Adapt wraps x as a Value.
//
// Nested structure is not converted by Adapt itself: elements of slices and
// fields of structs are adapted when first read through the returned
// Sequence or Mapping. Errors in nested structure (including cycles) surface
// at that point.
func Adapt(x any) (Value, error) {
	return adaptAny(x, nil)
}

// MustAdapt is like Adapt but panics on error. It is intended for literals in
// tests and static tables.
func MustAdapt(x any) Value {
	v, err := Adapt(x)
	if err != nil {
		panic(err)
	}
	return v
}

// identity names a reference-typed Go value on the current adaptation path.
type identity struct {
	ptr uintptr
	typ reflect.Type
}

// ancestry is the immutable chain of references from the adaptation root to
// the value being adapted.
type ancestry struct {
	parent *ancestry
	id     identity
}

func (a *ancestry) contains(id identity) bool {
	for ; a != nil; a = a.parent {
		if a.id == id {
			return true
		}
	}
	return false
}

func (a *ancestry) enter(rv reflect.Value) (*ancestry, error) {
	id := identity{ptr: rv.Pointer(), typ: rv.Type()}
	if a.contains(id) {
		return nil, &CyclicStructureError{Type: rv.Type()}
	}
	return &ancestry{parent: a, id: id}, nil
}

var timeType = reflect.TypeFor[time.Time]()

func adaptAny(x any, anc *ancestry) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case bool:
		return Boolean(t), nil
	case string:
		return Text(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case int32:
		return Int(int64(t)), nil
	case float64:
		return Float(t), nil
	case []byte:
		if t == nil {
			return Null(), nil
		}
		return Text(base64.StdEncoding.EncodeToString(t)), nil
	case json.Number:
		return parseNumber(string(t))
	case time.Time:
		return Int(t.UnixMilli()), nil
	case *time.Time:
		if t == nil {
			return Null(), nil
		}
		return Int(t.UnixMilli()), nil
	case time.Duration:
		return Int(t.Milliseconds()), nil
	}

	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null(), nil
	}

	switch t := x.(type) {
	case Sequence:
		return Seq(t), nil
	case Mapping:
		return Map(t), nil
	case Properties:
		if rv.Kind() == reflect.Pointer {
			next, err := anc.enter(rv)
			if err != nil {
				return Null(), err
			}
			anc = next
		}
		return Map(&propertyMapping{src: t, anc: anc}), nil
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return Null(), err
		}
		return adaptAny(dv, anc)
	case encoding.TextMarshaler:
		b, err := t.MarshalText()
		if err != nil {
			return Null(), err
		}
		return Text(string(b)), nil
	}

	return adaptReflect(rv, anc)
}

func adaptReflect(rv reflect.Value, anc *ancestry) (Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null(), nil
	case reflect.Bool:
		return Boolean(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Uint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return adaptAny(rv.Elem().Interface(), anc)
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		next, err := anc.enter(rv)
		if err != nil {
			return Null(), err
		}
		return adaptAny(rv.Elem().Interface(), next)
	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Text(base64.StdEncoding.EncodeToString(rv.Bytes())), nil
		}
		if rv.Len() > 0 {
			next, err := anc.enter(rv)
			if err != nil {
				return Null(), err
			}
			anc = next
		}
		return Seq(newReflectList(rv, anc)), nil
	case reflect.Array:
		return Seq(newReflectList(rv, anc)), nil
	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		keys, err := mapKeys(rv)
		if err != nil {
			return Null(), err
		}
		next, err := anc.enter(rv)
		if err != nil {
			return Null(), err
		}
		return Map(&reflectMap{rv: rv, keys: keys, anc: next}), nil
	case reflect.Struct:
		if rv.Type() == timeType {
			return Int(rv.Interface().(time.Time).UnixMilli()), nil
		}
		return Map(newStructMapping(rv, anc)), nil
	}
	return Null(), &UnsupportedTypeError{Type: rv.Type()}
}

// adaptElem adapts a nested element, honouring the interfaces its dynamic
// type implements.
func adaptElem(rv reflect.Value, anc *ancestry) (Value, error) {
	if rv.CanInterface() {
		return adaptAny(rv.Interface(), anc)
	}
	return adaptReflect(rv, anc)
}

func parseNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null(), fmt.Errorf("value: invalid number %q: %w", s, err)
	}
	return Float(f), nil
}

// ParseNumber parses decimal text into a number value, preferring an integral
// representation when the text has no fraction or exponent.
func ParseNumber(s string) (Value, error) { return parseNumber(s) }

// reflectList adapts a Go slice or array. Elements are adapted on first
// access and cached.
type reflectList struct {
	rv    reflect.Value
	anc   *ancestry
	cache []Value
	done  []bool
}

func newReflectList(rv reflect.Value, anc *ancestry) *reflectList {
	n := rv.Len()
	return &reflectList{rv: rv, anc: anc, cache: make([]Value, n), done: make([]bool, n)}
}

func (l *reflectList) Len() int { return l.rv.Len() }

func (l *reflectList) At(i int) (Value, error) {
	if i < 0 || i >= len(l.cache) {
		return Null(), fmt.Errorf("value: index %d out of range [0,%d)", i, len(l.cache))
	}
	if l.done[i] {
		return l.cache[i], nil
	}
	v, err := adaptElem(l.rv.Index(i), l.anc)
	if err != nil {
		return Null(), err
	}
	l.cache[i], l.done[i] = v, true
	return v, nil
}

func (l *reflectList) All() iter.Seq2[Value, error] {
	return func(yield func(Value, error) bool) {
		for i := range l.cache {
			v, err := l.At(i)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// reflectMap adapts a Go map. Go maps are unordered, so keys are presented
// in sorted order.
type reflectMap struct {
	rv    reflect.Value
	keys  []string
	index map[string]reflect.Value
	anc   *ancestry
	cache map[string]Value
}

func mapKeys(rv reflect.Value) ([]string, error) {
	kt := rv.Type().Key()
	switch kt.Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, &UnsupportedTypeError{Type: rv.Type()}
	}
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, formatKey(k))
	}
	sort.Strings(keys)
	return keys, nil
}

func formatKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	default:
		return strconv.FormatUint(k.Uint(), 10)
	}
}

func (m *reflectMap) Keys() []string { return m.keys }

func (m *reflectMap) Get(key string) (Value, error) {
	if v, ok := m.cache[key]; ok {
		return v, nil
	}
	if m.index == nil {
		m.index = make(map[string]reflect.Value, m.rv.Len())
		it := m.rv.MapRange()
		for it.Next() {
			m.index[formatKey(it.Key())] = it.Value()
		}
		m.cache = make(map[string]Value, len(m.index))
	}
	ev, ok := m.index[key]
	if !ok {
		return Null(), nil
	}
	v, err := adaptElem(ev, m.anc)
	if err != nil {
		return Null(), err
	}
	m.cache[key] = v
	return v, nil
}

// structMapping adapts a Go struct.
type structMapping struct {
	rv     reflect.Value
	fields *fieldSet
	anc    *ancestry
	cache  []Value
	done   []bool
}

func newStructMapping(rv reflect.Value, anc *ancestry) *structMapping {
	fs := fieldsOf(rv.Type())
	return &structMapping{
		rv:     rv,
		fields: fs,
		anc:    anc,
		cache:  make([]Value, len(fs.list)),
		done:   make([]bool, len(fs.list)),
	}
}

func (s *structMapping) Keys() []string { return s.fields.names }

func (s *structMapping) Get(key string) (Value, error) {
	i, ok := s.fields.byName[key]
	if !ok {
		return Null(), nil
	}
	if s.done[i] {
		return s.cache[i], nil
	}
	fv, err := s.rv.FieldByIndexErr(s.fields.list[i].Index)
	if err != nil {
		// Field promoted through a nil embedded pointer.
		s.done[i] = true
		return Null(), nil
	}
	v, err := adaptElem(fv, s.anc)
	if err != nil {
		return Null(), err
	}
	s.cache[i], s.done[i] = v, true
	return v, nil
}

// propertyMapping adapts a Properties implementation.
type propertyMapping struct {
	src   Properties
	anc   *ancestry
	keys  []string
	init  bool
	cache map[string]Value
}

func (p *propertyMapping) Keys() []string {
	if !p.init {
		p.keys = p.src.PropertyNames()
		p.init = true
	}
	return p.keys
}

func (p *propertyMapping) Get(key string) (Value, error) {
	if v, ok := p.cache[key]; ok {
		return v, nil
	}
	raw, err := p.src.Property(key)
	if err != nil {
		return Null(), err
	}
	v, err := adaptAny(raw, p.anc)
	if err != nil {
		return Null(), err
	}
	if p.cache == nil {
		p.cache = make(map[string]Value)
	}
	p.cache[key] = v
	return v, nil
}
