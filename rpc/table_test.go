package rpc

import (
	"errors"
	"reflect"
	"testing"
)

func sum(a, b float64) float64 { return a + b }

func sumAll(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mustTable(t *testing.T, defs ...Definition) *Table {
	t.Helper()
	table, err := NewTable(Group(defs))
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return table
}

func TestNewTable_DuplicateRoute(t *testing.T) {
	_, err := NewTable(Group{
		{Method: "GET", Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		{Method: "GET", Path: "/sum", Func: sum, Params: []string{"b", "a"}},
	})
	var dup *DuplicateRouteError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRouteError, got %v", err)
	}
	if dup.Method != "GET" || dup.Path != "/sum" {
		t.Fatalf("unexpected error fields %+v", dup)
	}
}

func TestNewTable_SameNamesDifferentTypesIsAmbiguous(t *testing.T) {
	_, err := NewTable(Group{
		{Method: "GET", Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		{Method: "GET", Path: "/sum", Func: func(a, b string) string { return a + b }, Params: []string{"a", "b"}},
	})
	var amb *AmbiguousRouteError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousRouteError, got %v", err)
	}
}

func TestNewTable_OverloadsAndVerbsCoexist(t *testing.T) {
	table := mustTable(t,
		Definition{Method: "GET", Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		Definition{Method: "get", Path: "/sum", Func: sumAll, Params: []string{"values"}},
		Definition{Method: "POST", Path: "/sum", Func: sum, Params: []string{"a", "b"}},
	)
	if got := len(table.Operations()); got != 3 {
		t.Fatalf("expected 3 operations, got %d", got)
	}
	m, err := table.Resolve("GET", "/sum")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Candidates) != 2 {
		t.Fatalf("expected 2 overloads, got %d", len(m.Candidates))
	}
}

func TestNewTable_InvalidDefinitions(t *testing.T) {
	cases := map[string]Definition{
		"not a func":        {Path: "/x", Func: 42},
		"param count":       {Path: "/x", Func: sum, Params: []string{"a"}},
		"bad second result": {Path: "/x", Func: func() (int, int) { return 0, 0 }},
		"relative path":     {Path: "x", Func: func() {}},
		"unbound variable":  {Path: "/x/{id}", Func: func() {}},
		"repeated name":     {Path: "/x", Func: sum, Params: []string{"a", "a"}},
		"bad agent pattern": {Path: "/x", Func: func() {}, Templates: []Template{{Name: "t", ContentType: "text/html", UserAgent: "("}}},
	}
	for name, def := range cases {
		_, err := NewTable(Group{def})
		var de *DefinitionError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected DefinitionError, got %v", name, err)
		}
	}
}

func TestOperation_Descriptors(t *testing.T) {
	table := mustTable(t, Definition{
		Path:   "/items/{id}",
		Func:   func(id int, verbose bool) (string, error) { return "", nil },
		Params: []string{"id", "verbose?"},
	})
	op := table.Operations()[0]
	if op.Method != "GET" {
		t.Fatalf("expected default method GET, got %s", op.Method)
	}
	if op.Result != reflect.TypeFor[string]() || op.Void() {
		t.Fatalf("unexpected result type %v", op.Result)
	}
	if op.Params[0].Optional || !op.Params[1].Optional || op.Params[1].Name != "verbose" {
		t.Fatalf("unexpected params %+v", op.Params)
	}
}

func TestResolve_NotFoundAndMethodNotAllowed(t *testing.T) {
	table := mustTable(t,
		Definition{Method: "POST", Path: "/items", Func: func() {}},
		Definition{Method: "GET", Path: "/items", Func: func() {}},
	)

	var nf *NotFoundError
	if _, err := table.Resolve("GET", "/missing"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	var mna *MethodNotAllowedError
	if _, err := table.Resolve("DELETE", "/items/"); !errors.As(err, &mna) {
		t.Fatalf("expected MethodNotAllowedError, got %v", err)
	}
	if !reflect.DeepEqual(mna.Allowed, []string{"GET", "POST"}) {
		t.Fatalf("expected allowed [GET POST], got %v", mna.Allowed)
	}
}

func TestResolve_LiteralSegmentsWin(t *testing.T) {
	me := func() string { return "me" }
	byID := func(id string) string { return id }
	table := mustTable(t,
		Definition{Path: "/users/{id}", Func: byID, Params: []string{"id"}},
		Definition{Path: "/users/me", Func: me},
		Definition{Method: "DELETE", Path: "/users/{uid}", Func: func(uid string) {}, Params: []string{"uid"}},
	)

	m, err := table.Resolve("GET", "/users/me")
	if err != nil {
		t.Fatal(err)
	}
	if m.Candidates[0].Path != "/users/me" {
		t.Fatalf("expected literal route, got %s", m.Candidates[0].Path)
	}

	m, err = table.Resolve("DELETE", "/users/me")
	if err != nil {
		t.Fatal(err)
	}
	op, vars, err := m.Choose(&Args{})
	if err != nil {
		t.Fatal(err)
	}
	if op.Path != "/users/{uid}" || vars["uid"] != "me" {
		t.Fatalf("expected variable route with uid=me, got %s %v", op.Path, vars)
	}
}

func TestChoose_PrefersMostSuppliedParameters(t *testing.T) {
	table := mustTable(t,
		Definition{Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		Definition{Path: "/sum", Func: sumAll, Params: []string{"values"}},
	)
	m, err := table.Resolve("GET", "/sum")
	if err != nil {
		t.Fatal(err)
	}

	op, _, err := m.Choose(&Args{Query: map[string][]string{"values": {"1", "2"}}})
	if err != nil {
		t.Fatal(err)
	}
	if op.Params[0].Name != "values" {
		t.Fatalf("expected sumAll overload, got %v", op.ParamNames())
	}

	op, _, err = m.Choose(&Args{Query: map[string][]string{"a": {"1"}}})
	if err != nil {
		t.Fatal(err)
	}
	if op.Params[0].Name != "a" {
		t.Fatalf("expected sum overload, got %v", op.ParamNames())
	}
}

func TestChoose_TieIsAmbiguous(t *testing.T) {
	table := mustTable(t,
		Definition{Path: "/find", Func: func(name string) {}, Params: []string{"name"}},
		Definition{Path: "/find", Func: func(code string) {}, Params: []string{"code"}},
	)
	m, err := table.Resolve("GET", "/find")
	if err != nil {
		t.Fatal(err)
	}
	var amb *AmbiguousRouteError
	if _, _, err := m.Choose(&Args{}); !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousRouteError, got %v", err)
	}
	if len(amb.Candidates) != 2 {
		t.Fatalf("expected both candidates reported, got %v", amb.Candidates)
	}
}
