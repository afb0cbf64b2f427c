package rpc

import (
	"context"
	"fmt"
	"io"
	"reflect"

	"github.com/mnehpets/httprpc/value"
)

// Result is the outcome of a successful invocation.
type Result struct {
	Operation *Operation
	// Value is the adapted result; null for a void operation or a nil result.
	Value value.Value
	// Void reports an operation with no declared result.
	Void bool

	closer io.Closer
}

// Close releases a result that holds resources, such as a cursor. It is
// safe to call on any Result, more than once.
func (r *Result) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// Dispatcher resolves, binds and invokes operations from a Table. It is the
// transport-neutral core shared by the HTTP, JSON-RPC and NATS front doors.
type Dispatcher struct {
	Table  *Table
	Binder Binder
}

// Dispatch runs the operation registered for method and path with args.
//
// The caller owns the returned Result and must Close it once the value has
// been consumed.
func (d *Dispatcher) Dispatch(ctx context.Context, method, path string, args *Args) (*Result, error) {
	m, err := d.Table.Resolve(method, path)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = &Args{}
	}
	op, vars, err := m.Choose(args)
	if err != nil {
		return nil, err
	}
	return d.Invoke(ctx, op, args, vars)
}

// Invoke authorizes, binds and calls op. vars are path variables, which take
// precedence over args.Path.
func (d *Dispatcher) Invoke(ctx context.Context, op *Operation, args *Args, vars map[string]string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if op.authorize != nil && !op.authorize(ctx) {
		return nil, &ForbiddenError{Method: op.Method, Path: op.Path}
	}

	bound := *args
	if len(vars) > 0 {
		merged := make(map[string]string, len(args.Path)+len(vars))
		for k, v := range args.Path {
			merged[k] = v
		}
		for k, v := range vars {
			merged[k] = v
		}
		bound.Path = merged
	}
	in, err := d.Binder.Bind(ctx, op, &bound)
	if err != nil {
		return nil, err
	}
	return op.call(in)
}

func (op *Operation) call(in []reflect.Value) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Method: op.Method, Path: op.Path, Panic: p, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	out := op.fn.Call(in)

	if op.withErr {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			if op.Result != nil {
				closeResult(out[0])
			}
			return nil, &HandlerError{Method: op.Method, Path: op.Path, Err: e}
		}
	}

	res = &Result{Operation: op}
	if op.Result == nil {
		res.Void = true
		return res, nil
	}

	raw := out[0].Interface()
	if c, ok := raw.(io.Closer); ok && !isNil(out[0]) {
		res.closer = c
	}
	res.Value, err = value.Adapt(raw)
	if err != nil {
		_ = res.Close()
		return nil, &HandlerError{Method: op.Method, Path: op.Path, Err: err}
	}
	return res, nil
}

// closeResult releases a result returned alongside an error.
func closeResult(rv reflect.Value) {
	if isNil(rv) {
		return
	}
	if c, ok := rv.Interface().(io.Closer); ok {
		_ = c.Close()
	}
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return !rv.IsValid()
}
