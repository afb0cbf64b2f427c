package rpc

import (
	"context"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/mnehpets/httprpc/attachment"
	"github.com/mnehpets/httprpc/convert"
	"github.com/mnehpets/httprpc/value"
)

// Args are the raw inputs of one invocation. Each parameter is looked up by
// name in Path, Query, Form and a mapping Body, in that order; failing that,
// a sequence Body supplies it by position. Attachment parameters bind from
// Files.
type Args struct {
	Path  map[string]string
	Query url.Values
	Form  url.Values
	Body  value.Value
	Files map[string][]*attachment.Attachment
}

func (a *Args) supplies(p Param, i int, vars map[string]string) bool {
	switch p.kind {
	case attachmentParam, attachmentsParam:
		return len(a.Files[p.Name]) > 0
	}
	if _, ok := vars[p.Name]; ok {
		return true
	}
	_, ok := a.lookup(p, i)
	return ok
}

func (a *Args) lookup(p Param, i int) (value.Value, bool) {
	if s, ok := a.Path[p.Name]; ok {
		return value.Text(s), true
	}
	if vs, ok := a.Query[p.Name]; ok && len(vs) > 0 {
		return fieldValue(vs, p.Type), true
	}
	if vs, ok := a.Form[p.Name]; ok && len(vs) > 0 {
		return fieldValue(vs, p.Type), true
	}
	switch a.Body.Kind() {
	case value.MappingKind:
		m := a.Body.Mapping()
		if slices.Contains(m.Keys(), p.Name) {
			v, err := m.Get(p.Name)
			if err == nil {
				return v, true
			}
		}
	case value.SequenceKind:
		if l, ok := a.Body.Sequence().(value.List); ok && i < l.Len() {
			v, err := l.At(i)
			if err == nil {
				return v, true
			}
		}
	}
	return value.Null(), false
}

// fieldValue builds the value for repeated text fields. Collection targets
// receive every occurrence in encounter order; map targets accept
// "key:value" occurrences; anything else takes the first occurrence.
func fieldValue(vs []string, t reflect.Type) value.Value {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t.Kind() == reflect.Map:
		obj := value.NewObject(len(vs))
		for _, s := range vs {
			k, v, ok := strings.Cut(s, ":")
			if !ok {
				return texts(vs)
			}
			obj.Set(k, value.Text(v))
		}
		return value.Map(obj)
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8,
		t.Kind() == reflect.Array,
		t.Kind() == reflect.Interface && len(vs) > 1:
		return texts(vs)
	}
	return value.Text(vs[0])
}

func texts(vs []string) value.Value {
	elems := make([]value.Value, len(vs))
	for i, s := range vs {
		elems[i] = value.Text(s)
	}
	return value.Seq(value.ListOf(elems...))
}

// Binder converts Args into an operation's argument list.
//
// Missing parameters bind the zero value of their type. With Strict set, a
// missing parameter not marked optional is a *convert.ConversionError
// wrapping ErrMissing instead.
type Binder struct {
	Registry *convert.Registry
	Strict   bool
}

func (b Binder) registry() *convert.Registry {
	if b.Registry == nil {
		return convert.Default
	}
	return b.Registry
}

// Bind returns the reflect arguments for op, including the leading context
// when op declares one.
func (b Binder) Bind(ctx context.Context, op *Operation, args *Args) ([]reflect.Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if args == nil {
		args = &Args{}
	}
	in := make([]reflect.Value, 0, len(op.Params)+1)
	if op.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	reg := b.registry()
	for i, p := range op.Params {
		missing := func() error {
			if b.Strict && !p.Optional {
				return &convert.ConversionError{Name: p.Name, Target: p.Type, Value: value.Null(), Err: ErrMissing}
			}
			in = append(in, reflect.Zero(p.Type))
			return nil
		}

		switch p.kind {
		case attachmentParam:
			files := args.Files[p.Name]
			if len(files) == 0 {
				if err := missing(); err != nil {
					return nil, err
				}
				continue
			}
			in = append(in, reflect.ValueOf(files[0]))
		case attachmentsParam:
			files := args.Files[p.Name]
			if len(files) == 0 {
				if err := missing(); err != nil {
					return nil, err
				}
				continue
			}
			in = append(in, reflect.ValueOf(files))
		default:
			v, ok := args.lookup(p, i)
			if !ok {
				if err := missing(); err != nil {
					return nil, err
				}
				continue
			}
			rv, err := reg.ConvertNamed(p.Name, v, p.Type)
			if err != nil {
				return nil, err
			}
			in = append(in, rv)
		}
	}
	return in, nil
}
