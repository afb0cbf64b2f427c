package rpc

import (
	"errors"
	"slices"
	"strings"
)

type segment struct {
	text     string
	variable bool
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func parseRoute(path string) ([]segment, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errors.New("path must start with /")
	}
	var segs []segment
	vars := map[string]bool{}
	for _, part := range splitPath(path) {
		switch {
		case part == "":
			return nil, errors.New("empty path segment")
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, errors.New("malformed path variable " + part)
			}
			if vars[name] {
				return nil, errors.New("path variable {" + name + "} repeated")
			}
			vars[name] = true
			segs = append(segs, segment{text: name, variable: true})
		case strings.ContainsAny(part, "{}"):
			return nil, errors.New("malformed path segment " + part)
		default:
			segs = append(segs, segment{text: part})
		}
	}
	return segs, nil
}

// routeKey identifies a path template independent of variable names, so
// /users/{id} and /users/{uid} are the same route.
func routeKey(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		if s.variable {
			b.WriteString("{}")
		} else {
			b.WriteString(s.text)
		}
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

func matchSegments(segs []segment, parts []string) bool {
	if len(segs) != len(parts) {
		return false
	}
	for i, s := range segs {
		if !s.variable && s.text != parts[i] {
			return false
		}
	}
	return true
}

func (op *Operation) pathVars(parts []string) map[string]string {
	var vars map[string]string
	for i, s := range op.route {
		if s.variable {
			if vars == nil {
				vars = map[string]string{}
			}
			vars[s.text] = parts[i]
		}
	}
	return vars
}

type route struct {
	segments []segment
	methods  map[string][]*Operation
}

// compareSpecificity orders routes so that, at the first segment where they
// differ, a literal precedes a variable.
func compareSpecificity(a, b *route) int {
	for i := range a.segments {
		av, bv := a.segments[i].variable, b.segments[i].variable
		if av != bv {
			if av {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Table is the immutable (verb, path) index of registered operations. It is
// safe for concurrent use.
type Table struct {
	routes []*route
	ops    []*Operation
}

// NewTable registers every definition supplied by services. Any invalid
// definition, duplicate or ambiguous overload aborts construction.
func NewTable(services ...Service) (*Table, error) {
	t := &Table{}
	byKey := map[string]*route{}
	for _, svc := range services {
		for _, def := range svc.Definitions() {
			op, err := newOperation(def)
			if err != nil {
				return nil, err
			}
			key := routeKey(op.route)
			r := byKey[key]
			if r == nil {
				r = &route{segments: op.route, methods: map[string][]*Operation{}}
				byKey[key] = r
				t.routes = append(t.routes, r)
			}
			for _, prev := range r.methods[op.Method] {
				names, types := sameShape(prev, op)
				switch {
				case names && types:
					return nil, &DuplicateRouteError{Method: op.Method, Path: op.Path, Params: op.ParamNames()}
				case names:
					return nil, &AmbiguousRouteError{
						Method:     op.Method,
						Path:       op.Path,
						Candidates: [][]string{prev.ParamNames(), op.ParamNames()},
					}
				}
			}
			r.methods[op.Method] = append(r.methods[op.Method], op)
			t.ops = append(t.ops, op)
		}
	}
	return t, nil
}

// Operations returns every registered operation in registration order.
func (t *Table) Operations() []*Operation {
	return slices.Clone(t.ops)
}

// Match is the result of resolving a request path: the overloads
// registered for the verb, in registration order.
type Match struct {
	Method     string
	Path       string
	Candidates []*Operation

	parts []string
}

// Resolve finds the operations registered for method and path. When several
// templates match the path, literal segments win over variables.
func (t *Table) Resolve(method, path string) (*Match, error) {
	method = strings.ToUpper(method)
	parts := splitPath(path)

	var matched []*route
	for _, r := range t.routes {
		if matchSegments(r.segments, parts) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, &NotFoundError{Method: method, Path: path}
	}
	slices.SortStableFunc(matched, compareSpecificity)

	for _, r := range matched {
		if ops := r.methods[method]; len(ops) > 0 {
			return &Match{Method: method, Path: path, Candidates: ops, parts: parts}, nil
		}
	}

	var allowed []string
	for _, r := range matched {
		for m := range r.methods {
			if !slices.Contains(allowed, m) {
				allowed = append(allowed, m)
			}
		}
	}
	slices.Sort(allowed)
	return nil, &MethodNotAllowedError{Method: method, Path: path, Allowed: allowed}
}

// Choose picks the overload best satisfied by args: the one with the most
// supplied parameters, then the fewest unsupplied ones. A tie is an
// *AmbiguousRouteError. The chosen operation's path variables are returned
// alongside it.
func (m *Match) Choose(args *Args) (*Operation, map[string]string, error) {
	if len(m.Candidates) == 1 {
		op := m.Candidates[0]
		return op, op.pathVars(m.parts), nil
	}

	var best *Operation
	var bestVars map[string]string
	var bestHit, bestMiss int
	var tied []*Operation
	for _, op := range m.Candidates {
		vars := op.pathVars(m.parts)
		hit, miss := 0, 0
		for i, p := range op.Params {
			if args.supplies(p, i, vars) {
				hit++
			} else {
				miss++
			}
		}
		switch {
		case best == nil || hit > bestHit || (hit == bestHit && miss < bestMiss):
			best, bestVars, bestHit, bestMiss = op, vars, hit, miss
			tied = tied[:0]
		case hit == bestHit && miss == bestMiss:
			tied = append(tied, op)
		}
	}
	if len(tied) > 0 {
		err := &AmbiguousRouteError{Method: m.Method, Path: m.Path, Candidates: [][]string{best.ParamNames()}}
		for _, op := range tied {
			err.Candidates = append(err.Candidates, op.ParamNames())
		}
		return nil, nil, err
	}
	return best, bestVars, nil
}
