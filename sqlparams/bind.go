package sqlparams

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Preparer is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Statement is a prepared statement taking positional arguments. *sql.Stmt
// implements it.
type Statement interface {
	QueryContext(ctx context.Context, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
}

// PgxQuerier is implemented by *pgx.Conn, pgx.Tx and *pgxpool.Pool.
type PgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Args returns the positional arguments for values. Each name is looked up
// once per occurrence, so a repeated name binds the same value at every
// position. A name absent from values binds nil.
func (p *Parameters) Args(values map[string]any) []any {
	args := make([]any, len(p.names))
	for i, name := range p.names {
		args[i] = values[name]
	}
	return args
}

// Prepare prepares the rewritten statement on db.
func (p *Parameters) Prepare(ctx context.Context, db Preparer) (*sql.Stmt, error) {
	stmt, err := db.PrepareContext(ctx, p.sql)
	if err != nil {
		return nil, fmt.Errorf("sqlparams: prepare: %w", err)
	}
	return stmt, nil
}

// Query runs stmt, which must have been prepared from p.SQL(), with the
// arguments bound from values.
func (p *Parameters) Query(ctx context.Context, stmt Statement, values map[string]any) (*sql.Rows, error) {
	return stmt.QueryContext(ctx, p.Args(values)...)
}

// Exec is like Query for statements that return no rows.
func (p *Parameters) Exec(ctx context.Context, stmt Statement, values map[string]any) (sql.Result, error) {
	return stmt.ExecContext(ctx, p.Args(values)...)
}

// QueryPgx runs the template on a pgx connection. pgx always takes $n
// markers, whatever style p was parsed with.
func (p *Parameters) QueryPgx(ctx context.Context, q PgxQuerier, values map[string]any) (pgx.Rows, error) {
	return q.Query(ctx, p.SQLFor(Dollar), p.Args(values)...)
}
