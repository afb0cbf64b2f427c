// Package convert turns generic values back into typed Go values.
//
// It is the inverse of value.Adapt and backs parameter binding: a query
// string, form field or JSON body element arrives as a value.Value and is
// converted to the declared type of the handler argument.
//
// Conversion is permissive about absence. Null converts to the zero value of
// any target, and empty text converts to the zero value of scalar targets.
// It is strict about content: "abc" does not convert to an int, 300 does
// not convert to an int8, and 2.5 does not convert to an int.
package convert

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/mnehpets/httprpc/value"
)

var (
	// ErrOverflow reports a number that does not fit the target type.
	ErrOverflow = errors.New("value out of range")
	// ErrUnsupported reports a target type with no conversion.
	ErrUnsupported = errors.New("unsupported target type")
	// ErrShape reports a value whose kind cannot populate the target type,
	// such as a mapping bound to an int.
	ErrShape = errors.New("incompatible value")
)

// ConversionError reports a value that could not be converted to a target
// type. Name identifies the parameter or nested element being converted and may
// be empty.
type ConversionError struct {
	Name   string
	Target reflect.Type
	Value  value.Value
	Err    error
}

func (e *ConversionError) Error() string {
	desc := e.Value.Kind().String()
	switch e.Value.Kind() {
	case value.StringKind:
		desc += " " + strconv.Quote(e.Value.Text())
	case value.BoolKind, value.NumberKind:
		desc += " " + e.Value.String()
	}
	msg := fmt.Sprintf("convert: cannot convert %s to %s", desc, e.Target)
	if e.Name != "" {
		msg += " for " + strconv.Quote(e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Func converts v to a value of type t. A Func is only called with non-null
// values; null always converts to the zero value.
type Func func(v value.Value, t reflect.Type) (reflect.Value, error)

// Registry holds the custom converters consulted before the built-in kind
// rules. A Registry is immutable; With returns an extended copy.
type Registry struct {
	funcs map[reflect.Type]Func
}

// NewRegistry returns a registry with the built-in converters for time.Time
// and time.Duration.
func NewRegistry() *Registry {
	r := &Registry{funcs: map[reflect.Type]Func{}}
	for t, fn := range builtins {
		r.funcs[t] = fn
	}
	return r
}

// With returns a copy of r that converts values of type t with fn. It replaces
// any converter already registered for t.
func (r *Registry) With(t reflect.Type, fn Func) *Registry {
	out := &Registry{funcs: make(map[reflect.Type]Func, len(r.funcs)+1)}
	for k, v := range r.funcs {
		out.funcs[k] = v
	}
	out.funcs[t] = fn
	return out
}

// Default is the registry used by the package-level functions.
var Default = NewRegistry()

// Convert converts v to type t using Default.
func Convert(v value.Value, t reflect.Type) (reflect.Value, error) {
	return Default.Convert(v, t)
}

// To converts v to T using Default.
func To[T any](v value.Value) (T, error) {
	var zero T
	rv, err := Default.Convert(v, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return rv.Interface().(T), nil
}

// Convert converts v to type t. The result is always of exactly type t.
func (r *Registry) Convert(v value.Value, t reflect.Type) (reflect.Value, error) {
	return r.convert("", v, t)
}

// ConvertNamed is like Convert but reports failures against name.
func (r *Registry) ConvertNamed(name string, v value.Value, t reflect.Type) (reflect.Value, error) {
	return r.convert(name, v, t)
}

var (
	valueType           = reflect.TypeFor[value.Value]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func (r *Registry) convert(name string, v value.Value, t reflect.Type) (reflect.Value, error) {
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	if v.IsNull() {
		return reflect.Zero(t), nil
	}
	fail := func(err error) (reflect.Value, error) {
		var ce *ConversionError
		if errors.As(err, &ce) {
			return reflect.Value{}, err
		}
		return reflect.Value{}, &ConversionError{Name: name, Target: t, Value: v, Err: err}
	}

	if fn, ok := r.funcs[t]; ok {
		out, err := fn(v, t)
		if err != nil {
			return fail(err)
		}
		return out, nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := r.convert(name, v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		return p, nil
	case reflect.Interface:
		if t.NumMethod() != 0 {
			return fail(ErrUnsupported)
		}
		n, err := value.Native(v)
		if err != nil {
			return fail(err)
		}
		out := reflect.New(t).Elem()
		if n != nil {
			out.Set(reflect.ValueOf(n))
		}
		return out, nil
	}

	if reflect.PointerTo(t).Implements(textUnmarshalerType) && isScalar(v) {
		p := reflect.New(t)
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(v.String())); err != nil {
			return fail(err)
		}
		return p.Elem(), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := toBool(v)
		if err != nil {
			return fail(err)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := toInt(v, t.Bits())
		if err != nil {
			return fail(err)
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := toUint(v, t.Bits())
		if err != nil {
			return fail(err)
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := toFloat(v, t.Bits())
		if err != nil {
			return fail(err)
		}
		out.SetFloat(f)
	case reflect.String:
		if !isScalar(v) {
			return fail(ErrShape)
		}
		out.SetString(v.String())
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 && v.Kind() == value.StringKind {
			out.SetBytes([]byte(v.Text()))
			return out, nil
		}
		elems, err := elements(v)
		if err != nil {
			return fail(err)
		}
		s := reflect.MakeSlice(t, len(elems), len(elems))
		for i, ev := range elems {
			cv, err := r.convert(indexName(name, i), ev, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			s.Index(i).Set(cv)
		}
		return s, nil
	case reflect.Array:
		elems, err := elements(v)
		if err != nil {
			return fail(err)
		}
		if len(elems) > t.Len() {
			return fail(fmt.Errorf("%w: %d elements for array of %d", ErrOverflow, len(elems), t.Len()))
		}
		for i, ev := range elems {
			cv, err := r.convert(indexName(name, i), ev, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(cv)
		}
	case reflect.Map:
		if v.Kind() != value.MappingKind {
			return fail(ErrShape)
		}
		return r.convertMap(name, v.Mapping(), t)
	case reflect.Struct:
		if v.Kind() != value.MappingKind {
			return fail(ErrShape)
		}
		return r.convertStruct(name, v.Mapping(), t)
	default:
		return fail(ErrUnsupported)
	}
	return out, nil
}

func (r *Registry) convertMap(name string, m value.Mapping, t reflect.Type) (reflect.Value, error) {
	keys := m.Keys()
	out := reflect.MakeMapWithSize(t, len(keys))
	for _, k := range keys {
		kv, err := r.convert(fieldName(name, k), value.Text(k), t.Key())
		if err != nil {
			return reflect.Value{}, err
		}
		ev, err := m.Get(k)
		if err != nil {
			return reflect.Value{}, &ConversionError{Name: fieldName(name, k), Target: t.Elem(), Err: err}
		}
		cv, err := r.convert(fieldName(name, k), ev, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetMapIndex(kv, cv)
	}
	return out, nil
}

func (r *Registry) convertStruct(name string, m value.Mapping, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	for _, f := range value.FieldsOf(t) {
		ev, err := m.Get(f.Name)
		if err != nil {
			return reflect.Value{}, &ConversionError{Name: fieldName(name, f.Name), Target: f.Type, Err: err}
		}
		if ev.IsNull() {
			continue
		}
		cv, err := r.convert(fieldName(name, f.Name), ev, f.Type)
		if err != nil {
			return reflect.Value{}, err
		}
		dst, ok := fieldByIndexAlloc(out, f.Index)
		if !ok {
			return reflect.Value{}, &ConversionError{Name: fieldName(name, f.Name), Target: f.Type, Value: ev,
				Err: fmt.Errorf("%w: field behind unexported embedded pointer", ErrUnsupported)}
		}
		dst.Set(cv)
	}
	return out, nil
}

// fieldByIndexAlloc is reflect.Value.FieldByIndex, allocating nil embedded
// struct pointers on the way. It reports false when such a pointer cannot be
// set.
func fieldByIndexAlloc(v reflect.Value, index []int) (reflect.Value, bool) {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				if !v.CanSet() {
					return reflect.Value{}, false
				}
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

func indexName(name string, i int) string {
	return name + "[" + strconv.Itoa(i) + "]"
}

func fieldName(name, key string) string {
	if name == "" {
		return key
	}
	return name + "." + key
}

func isScalar(v value.Value) bool {
	switch v.Kind() {
	case value.BoolKind, value.NumberKind, value.StringKind:
		return true
	}
	return false
}

// elements returns the members of a sequence. A scalar binds as a
// one-element sequence.
func elements(v value.Value) ([]value.Value, error) {
	switch v.Kind() {
	case value.SequenceKind:
		return value.Collect(v.Sequence())
	case value.MappingKind:
		return nil, ErrShape
	}
	return []value.Value{v}, nil
}

func toBool(v value.Value) (bool, error) {
	switch v.Kind() {
	case value.BoolKind:
		return v.Bool(), nil
	case value.NumberKind:
		return v.Float() != 0, nil
	case value.StringKind:
		if v.Text() == "" {
			return false, nil
		}
		return strconv.ParseBool(v.Text())
	}
	return false, ErrShape
}

func toInt(v value.Value, bits int) (int64, error) {
	var i int64
	switch v.Kind() {
	case value.NumberKind:
		if v.IsInteger() {
			i = v.Int()
			break
		}
		f := v.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, ErrOverflow
		}
		i = int64(f)
	case value.StringKind:
		s := v.Text()
		if s == "" {
			return 0, nil
		}
		n, err := value.ParseNumber(s)
		if err != nil {
			return 0, err
		}
		return toInt(n, bits)
	default:
		return 0, ErrShape
	}
	if bits < 64 && (i < -(1<<(bits-1)) || i > 1<<(bits-1)-1) {
		return 0, ErrOverflow
	}
	return i, nil
}

func toUint(v value.Value, bits int) (uint64, error) {
	switch v.Kind() {
	case value.NumberKind:
		if v.IsInteger() {
			if v.Int() < 0 {
				return 0, ErrOverflow
			}
			u := uint64(v.Int())
			if bits < 64 && u > 1<<bits-1 {
				return 0, ErrOverflow
			}
			return u, nil
		}
		f := v.Float()
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		if f < 0 || f >= math.Exp2(float64(bits)) {
			return 0, ErrOverflow
		}
		return uint64(f), nil
	case value.StringKind:
		s := v.Text()
		if s == "" {
			return 0, nil
		}
		if u, err := strconv.ParseUint(s, 10, bits); err == nil {
			return u, nil
		}
		n, err := value.ParseNumber(s)
		if err != nil {
			return 0, err
		}
		return toUint(n, bits)
	}
	return 0, ErrShape
}

func toFloat(v value.Value, bits int) (float64, error) {
	var f float64
	switch v.Kind() {
	case value.NumberKind:
		f = v.Float()
	case value.StringKind:
		if v.Text() == "" {
			return 0, nil
		}
		var err error
		f, err = strconv.ParseFloat(v.Text(), 64)
		if err != nil {
			return 0, err
		}
	default:
		return 0, ErrShape
	}
	if bits == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, ErrOverflow
	}
	return f, nil
}
