package cursor

import (
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// FromPgx wraps a pgx result set. Column type names come from the
// connection's type map, or the default pgx type map when the rows are not
// bound to a connection.
func FromPgx(rows pgx.Rows, opts ...Option) *Cursor {
	fields := rows.FieldDescriptions()
	var tm *pgtype.Map
	if conn := rows.Conn(); conn != nil {
		tm = conn.TypeMap()
	} else {
		tm = pgtype.NewMap()
	}
	cols := make([]Column, len(fields))
	for i, fd := range fields {
		cols[i] = Column{Name: fd.Name}
		if dt, ok := tm.TypeForOID(fd.DataTypeOID); ok {
			cols[i].DatabaseType = dt.Name
		}
	}
	return newCursor(&pgxSource{rows: rows}, cols, opts)
}

type pgxSource struct {
	rows pgx.Rows
}

func (s *pgxSource) Next() bool             { return s.rows.Next() }
func (s *pgxSource) Values() ([]any, error) { return s.rows.Values() }
func (s *pgxSource) Err() error             { return s.rows.Err() }

func (s *pgxSource) Close() error {
	s.rows.Close()
	return s.rows.Err()
}
