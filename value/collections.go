package value

import (
	"fmt"
	"iter"
)

// ListOf returns a List holding vs.
func ListOf(vs ...Value) List { return staticList(vs) }

type staticList []Value

func (l staticList) Len() int { return len(l) }

func (l staticList) At(i int) (Value, error) {
	if i < 0 || i >= len(l) {
		return Null(), fmt.Errorf("value: index %d out of range [0,%d)", i, len(l))
	}
	return l[i], nil
}

func (l staticList) All() iter.Seq2[Value, error] {
	return func(yield func(Value, error) bool) {
		for _, v := range l {
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Object is an insertion-ordered Mapping built in memory.
//
// The zero Object is empty and ready to use.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObject returns an empty Object with room for n entries.
func NewObject(n int) *Object {
	return &Object{keys: make([]string, 0, n), vals: make(map[string]Value, n)}
}

// Set stores v under key. Re-setting an existing key keeps its position.
func (o *Object) Set(key string, v Value) *Object {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
	return o
}

func (o *Object) Keys() []string { return o.keys }

func (o *Object) Get(key string) (Value, error) {
	return o.vals[key], nil
}

func (o *Object) Len() int { return len(o.keys) }
