package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissing is the cause of a ConversionError for a required parameter the
// request did not supply, when strict binding is enabled.
var ErrMissing = errors.New("missing required parameter")

// NotFoundError reports a path that no operation is registered under.
type NotFoundError struct {
	Method string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rpc: no operation for %s %s", e.Method, e.Path)
}

// MethodNotAllowedError reports a path that is registered, but not for the
// requested verb. Allowed lists the verbs that are, sorted.
type MethodNotAllowedError struct {
	Method  string
	Path    string
	Allowed []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("rpc: %s not allowed for %s (allowed: %s)", e.Method, e.Path, strings.Join(e.Allowed, ", "))
}

// DuplicateRouteError reports two registrations with the same verb, path
// and parameter list.
type DuplicateRouteError struct {
	Method string
	Path   string
	Params []string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("rpc: duplicate operation %s %s(%s)", e.Method, e.Path, strings.Join(e.Params, ", "))
}

// AmbiguousRouteError reports overloads that cannot be told apart: at
// registration, two operations with the same parameter names but different
// types; at request time, several overloads equally satisfied by the
// supplied arguments.
type AmbiguousRouteError struct {
	Method     string
	Path       string
	Candidates [][]string
}

func (e *AmbiguousRouteError) Error() string {
	sigs := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		sigs[i] = "(" + strings.Join(c, ", ") + ")"
	}
	return fmt.Sprintf("rpc: ambiguous operation %s %s: %s", e.Method, e.Path, strings.Join(sigs, " "))
}

// ForbiddenError reports an operation whose authorization predicate
// rejected the request.
type ForbiddenError struct {
	Method string
	Path   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("rpc: %s %s forbidden", e.Method, e.Path)
}

// HandlerError wraps a failure raised by an invoked operation: a returned
// error, or a recovered panic (Panic is then non-nil).
type HandlerError struct {
	Method string
	Path   string
	Panic  any
	Err    error
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("rpc: %s %s panicked: %v", e.Method, e.Path, e.Panic)
	}
	return fmt.Sprintf("rpc: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// DefinitionError reports an invalid Definition passed to NewTable.
type DefinitionError struct {
	Method string
	Path   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("rpc: invalid definition %s %s: %s", e.Method, e.Path, e.Reason)
}
