package cursor

import (
	"database/sql"
	"fmt"
)

// New wraps a database/sql result set. Column metadata is read immediately;
// if that fails the rows and the Release resources are closed and the error
// returned.
func New(rows *sql.Rows, opts ...Option) (*Cursor, error) {
	src := &sqlSource{rows: rows}
	cols, err := sqlColumns(rows)
	if err != nil {
		c := newCursor(src, nil, opts)
		return nil, fmt.Errorf("cursor: read columns: %w", joinClose(err, c.Close()))
	}
	src.width = len(cols)
	return newCursor(src, cols, opts), nil
}

func sqlColumns(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
	}
	return cols, nil
}

type sqlSource struct {
	rows  *sql.Rows
	width int
}

func (s *sqlSource) Next() bool   { return s.rows.Next() }
func (s *sqlSource) Err() error   { return s.rows.Err() }
func (s *sqlSource) Close() error { return s.rows.Close() }

func (s *sqlSource) Values() ([]any, error) {
	vals := make([]any, s.width)
	dest := make([]any, s.width)
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		return nil, err
	}
	return vals, nil
}

func joinClose(err, cerr error) error {
	if cerr == nil {
		return err
	}
	return fmt.Errorf("%w (close: %v)", err, cerr)
}
