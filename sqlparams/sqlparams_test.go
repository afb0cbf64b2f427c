package sqlparams

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

type result struct{ rows int64 }

func (r result) LastInsertId() (int64, error) { return 0, nil }
func (r result) RowsAffected() (int64, error) { return r.rows, nil }

type recordingStmt struct {
	args []any
}

func (s *recordingStmt) QueryContext(_ context.Context, args ...any) (*sql.Rows, error) {
	s.args = args
	return nil, nil
}

func (s *recordingStmt) ExecContext(_ context.Context, args ...any) (sql.Result, error) {
	s.args = args
	return result{rows: int64(len(args))}, nil
}

type recordingPgx struct {
	sql  string
	args []any
}

func (q *recordingPgx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql, q.args = sql, args
	return nil, nil
}

func eq[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got=%v want=%v", msg, got, want)
	}
}

func eqSlice[T any](t *testing.T, got, want []T, msg string) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: got=%#v want=%#v", msg, got, want)
	}
}

func mustParse(t *testing.T, q string, opts ...Option) *Parameters {
	t.Helper()
	p, err := ParseString(q, opts...)
	if err != nil {
		t.Fatalf("parse %q: %v", q, err)
	}
	return p
}

func TestParse_OptionalPredicate(t *testing.T) {
	p := mustParse(t, "select * from test where a=:a or b=:b or c=coalesce(:c, 4.0)")
	eq(t, p.SQL(), "select * from test where a=? or b=? or c=coalesce(?, 4.0)", "sql")
	eqSlice(t, p.Names(), []string{"a", "b", "c"}, "names")
	eqSlice(t, p.Args(map[string]any{"a": "hello", "b": 3}), []any{"hello", 3, nil}, "args")
}

func TestParse_RepeatedNamesBindEveryOccurrence(t *testing.T) {
	p := mustParse(t, "select :x + :y where :x > 0 and :z is null or :x = :y")
	eq(t, p.Len(), 6, "len")
	eq(t, strings.Count(p.SQL(), "?"), 6, "markers")
	eqSlice(t, p.Names(), []string{"x", "y", "x", "z", "x", "y"}, "names")
	eqSlice(t, p.Args(map[string]any{"x": 1, "y": "b", "z": true}),
		[]any{1, "b", 1, true, 1, "b"}, "args")
}

func TestParse_SkipsLiteralRegions(t *testing.T) {
	q := "select 'it''s :not', \"col:a\", `col:b`, $$ :c $$, $fn$ :d $fn$, x::int -- :e\n" +
		"/* :f */ from t where id = :id and ts = '12:30'"
	p := mustParse(t, q)
	eqSlice(t, p.Names(), []string{"id"}, "names")
	want := strings.Replace(q, ":id", "?", 1)
	eq(t, p.SQL(), want, "sql")
}

func TestParse_EscapeStrings(t *testing.T) {
	q := `select E'it\'s :not', e'a\\', 'c:\' = :x`
	p := mustParse(t, q)
	eqSlice(t, p.Names(), []string{"x"}, "names")
	eq(t, p.SQL(), strings.Replace(q, ":x", "?", 1), "sql")

	// An identifier ending in e is not an escape prefix.
	p = mustParse(t, `select type'a\' from t where b = :b`)
	eqSlice(t, p.Names(), []string{"b"}, "names")

	if _, err := ParseString(`select E'open\'`); err == nil {
		t.Fatal("expected unterminated escape string to fail")
	}
}

func TestParse_PassThroughColons(t *testing.T) {
	p := mustParse(t, "begin x := :v; select arr[1:2] from t; end")
	eqSlice(t, p.Names(), []string{"v"}, "names")
	eq(t, p.SQL(), "begin x := ?; select arr[1:2] from t; end", "sql")
}

func TestParse_PlaceholderStyles(t *testing.T) {
	q := "update t set a = :a, b = :b where id = :id"
	cases := []struct {
		ph   Placeholder
		want string
	}{
		{Question, "update t set a = ?, b = ? where id = ?"},
		{Dollar, "update t set a = $1, b = $2 where id = $3"},
		{AtP, "update t set a = @p1, b = @p2 where id = @p3"},
		{ColonNum, "update t set a = :1, b = :2 where id = :3"},
	}
	for _, tc := range cases {
		p := mustParse(t, q, WithPlaceholder(tc.ph))
		eq(t, p.SQL(), tc.want, tc.ph.String())
		eq(t, p.Placeholder(), tc.ph, "placeholder")
	}
}

func TestParse_NoPlaceholders(t *testing.T) {
	p := mustParse(t, "select 1")
	eq(t, p.SQL(), "select 1", "sql")
	eq(t, p.Len(), 0, "len")
	eq(t, len(p.Args(nil)), 0, "args")
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		q      string
		offset int
	}{
		{"select 'abc", 7},
		{`select "abc`, 7},
		{"select 1 /* open", 9},
		{"select $tag$ body", 7},
		{"select * from t where a = :", 26},
		{"select * from t where a = : b", 26},
		{"select :)", 7},
	}
	for _, tc := range cases {
		_, err := ParseString(tc.q)
		var me *MalformedTemplateError
		if !errors.As(err, &me) {
			t.Fatalf("%q: expected MalformedTemplateError, got %v", tc.q, err)
		}
		eq(t, me.Offset, tc.offset, tc.q)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestParse_Reader(t *testing.T) {
	p, err := Parse(strings.NewReader("select :a"), WithPlaceholder(Dollar))
	if err != nil {
		t.Fatal(err)
	}
	eq(t, p.SQL(), "select $1", "sql")

	if _, err := Parse(failingReader{}); err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestParameters_QueryAndExec(t *testing.T) {
	p := mustParse(t, "select * from t where a = :a and b = :b and a2 = :a")
	stmt := &recordingStmt{}

	if _, err := p.Query(context.Background(), stmt, map[string]any{"a": "x"}); err != nil {
		t.Fatal(err)
	}
	eqSlice(t, stmt.args, []any{"x", nil, "x"}, "query args")

	res, err := p.Exec(context.Background(), stmt, map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	n, _ := res.RowsAffected()
	eq(t, n, int64(3), "rows")
	eqSlice(t, stmt.args, []any{1, 2, 1}, "exec args")
}

func TestParameters_QueryPgxUsesDollarMarkers(t *testing.T) {
	p := mustParse(t, "select * from t where a = :a or b = :b")
	q := &recordingPgx{}
	if _, err := p.QueryPgx(context.Background(), q, map[string]any{"b": 2}); err != nil {
		t.Fatal(err)
	}
	eq(t, q.sql, "select * from t where a = $1 or b = $2", "sql")
	eqSlice(t, q.args, []any{nil, 2}, "args")
	// The configured style is unchanged.
	eq(t, p.SQL(), "select * from t where a = ? or b = ?", "sql")
}

func TestPlaceholderFor(t *testing.T) {
	eq(t, PlaceholderFor("pgx"), Dollar, "pgx")
	eq(t, PlaceholderFor("Postgres"), Dollar, "postgres")
	eq(t, PlaceholderFor("sqlserver"), AtP, "sqlserver")
	eq(t, PlaceholderFor("godror"), ColonNum, "godror")
	eq(t, PlaceholderFor("sqlite3"), Question, "sqlite3")
}
