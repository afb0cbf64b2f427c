package value

import (
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// Field describes one exported struct field as it appears in a mapping.
type Field struct {
	Name  string
	Index []int
	Type  reflect.Type
}

type fieldSet struct {
	list   []Field
	names  []string
	byName map[string]int
}

var fieldCache sync.Map // reflect.Type -> *fieldSet

// FieldsOf returns the mapping fields of struct type t in declaration order.
//
// Fields are named by their `json` tag when present, otherwise by the Go field
// name with a lower-case initial ("Count" -> "count", "ID" -> "id"). Fields
// tagged `json:"-"` and unexported fields are omitted. Untagged embedded
// structs are flattened; on a name clash the shallower field wins.
func FieldsOf(t reflect.Type) []Field {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return fieldsOf(t).list
}

func fieldsOf(t reflect.Type) *fieldSet {
	if v, ok := fieldCache.Load(t); ok {
		return v.(*fieldSet)
	}
	fs := buildFieldSet(t)
	v, _ := fieldCache.LoadOrStore(t, fs)
	return v.(*fieldSet)
}

func buildFieldSet(t reflect.Type) *fieldSet {
	type entry struct {
		Field
		depth int
	}
	var out []entry
	pos := map[string]int{}

	var walk func(t reflect.Type, prefix []int, depth int)
	walk = func(t reflect.Type, prefix []int, depth int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			tag, hasTag := sf.Tag.Lookup("json")
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" && tag == "-" {
				continue
			}

			index := append(append([]int(nil), prefix...), i)

			if sf.Anonymous && name == "" {
				ft := sf.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					walk(ft, index, depth+1)
					continue
				}
			}
			if !sf.IsExported() {
				continue
			}
			if !hasTag || name == "" {
				name = lowerInitial(sf.Name)
			}

			e := entry{Field: Field{Name: name, Index: index, Type: sf.Type}, depth: depth}
			if p, ok := pos[name]; ok {
				if out[p].depth > depth {
					out[p] = e
				}
				continue
			}
			pos[name] = len(out)
			out = append(out, e)
		}
	}
	walk(t, nil, 0)

	fs := &fieldSet{
		list:   make([]Field, len(out)),
		names:  make([]string, len(out)),
		byName: make(map[string]int, len(out)),
	}
	for i, e := range out {
		fs.list[i] = e.Field
		fs.names[i] = e.Name
		fs.byName[e.Name] = i
	}
	return fs
}

// lowerInitial lower-cases the leading upper-case run of a Go identifier,
// keeping the last capital of an acronym that starts a new word
// ("URLPath" -> "urlPath").
func lowerInitial(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == 1 || n == len(runes):
		for i := 0; i < n; i++ {
			runes[i] = unicode.ToLower(runes[i])
		}
	default:
		for i := 0; i < n-1; i++ {
			runes[i] = unicode.ToLower(runes[i])
		}
	}
	return string(runes)
}
