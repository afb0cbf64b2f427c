package rpc

import (
	"context"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/mnehpets/httprpc/attachment"
)

// Definition registers one operation.
//
// Func is any func value whose arguments are an optional leading
// context.Context followed by one argument per entry of Params, and whose
// results are (), (T), (error) or (T, error). Params names the remaining
// arguments in order; a trailing "?" marks one optional, so it never fails
// strict binding.
//
// Authorize, when set, is consulted before binding; returning false
// rejects the request with a *ForbiddenError.
type Definition struct {
	Method    string
	Path      string
	Func      any
	Params    []string
	Templates []Template
	Authorize func(ctx context.Context) bool
}

// Service supplies the operations a handler exposes.
type Service interface {
	Definitions() []Definition
}

// Group is a Service backed by a literal list.
type Group []Definition

func (g Group) Definitions() []Definition { return g }

type paramKind uint8

const (
	valueParam paramKind = iota
	attachmentParam
	attachmentsParam
)

// Param describes one bound argument of an operation.
type Param struct {
	Name     string
	Type     reflect.Type
	Optional bool

	kind paramKind
}

// Operation is a registered (verb, path) binding. It is immutable once the
// Table is built.
type Operation struct {
	Method string
	Path   string
	Params []Param
	// Result is the declared result type, nil for a void operation.
	Result    reflect.Type
	Templates []Template

	authorize  func(context.Context) bool
	fn         reflect.Value
	withCtx    bool
	withErr    bool
	route      []segment
	agentMatch []*regexp.Regexp
}

// Void reports whether the operation produces no value.
func (op *Operation) Void() bool { return op.Result == nil }

// ParamNames returns the parameter names in declaration order.
func (op *Operation) ParamNames() []string {
	names := make([]string, len(op.Params))
	for i, p := range op.Params {
		names[i] = p.Name
	}
	return names
}

var (
	contextType     = reflect.TypeFor[context.Context]()
	errorType       = reflect.TypeFor[error]()
	attachmentType  = reflect.TypeFor[*attachment.Attachment]()
	attachmentsType = reflect.TypeFor[[]*attachment.Attachment]()
)

func newOperation(def Definition) (*Operation, error) {
	bad := func(reason string) error {
		return &DefinitionError{Method: def.Method, Path: def.Path, Reason: reason}
	}

	method := strings.ToUpper(def.Method)
	if method == "" {
		method = http.MethodGet
	}
	route, err := parseRoute(def.Path)
	if err != nil {
		return nil, bad(err.Error())
	}

	fn := reflect.ValueOf(def.Func)
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return nil, bad("Func must be a non-nil func")
	}
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, bad("variadic funcs are not supported")
	}

	op := &Operation{
		Method:    method,
		Path:      def.Path,
		Templates: def.Templates,
		authorize: def.Authorize,
		fn:        fn,
		route:     route,
	}

	first := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		op.withCtx = true
		first = 1
	}
	if ft.NumIn()-first != len(def.Params) {
		return nil, bad("Params must name every argument after the context")
	}
	seen := map[string]bool{}
	for i, raw := range def.Params {
		name, optional := strings.CutSuffix(raw, "?")
		if name == "" {
			return nil, bad("empty parameter name")
		}
		if seen[name] {
			return nil, bad("parameter " + name + " declared twice")
		}
		seen[name] = true

		p := Param{Name: name, Type: ft.In(first + i), Optional: optional}
		switch p.Type {
		case attachmentType:
			p.kind = attachmentParam
		case attachmentsType:
			p.kind = attachmentsParam
		}
		op.Params = append(op.Params, p)
	}
	for _, seg := range route {
		if seg.variable && !seen[seg.text] {
			return nil, bad("path variable {" + seg.text + "} is not a parameter")
		}
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			op.withErr = true
		} else {
			op.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, bad("second result must be error")
		}
		op.Result = ft.Out(0)
		op.withErr = true
	default:
		return nil, bad("too many results")
	}

	for _, t := range def.Templates {
		re, err := compileAgent(t.UserAgent)
		if err != nil {
			return nil, bad("template " + t.Name + ": " + err.Error())
		}
		op.agentMatch = append(op.agentMatch, re)
	}
	return op, nil
}

// sameShape reports whether a and b declare the same parameter names, and
// whether their types also agree.
func sameShape(a, b *Operation) (names bool, types bool) {
	if len(a.Params) != len(b.Params) {
		return false, false
	}
	byName := make(map[string]reflect.Type, len(a.Params))
	for _, p := range a.Params {
		byName[p.Name] = p.Type
	}
	types = true
	for _, p := range b.Params {
		t, ok := byName[p.Name]
		if !ok {
			return false, false
		}
		if t != p.Type {
			types = false
		}
	}
	return true, types
}
