package testservice

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

// fakeDB answers every query with the same rows and records what it was
// asked.
type fakeDB struct {
	cols []string
	data [][]driver.Value

	query       string
	args        []driver.Value
	stmtCloses  int
	rowsCloses  int
	prepareFail error
}

func (db *fakeDB) open(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB := sql.OpenDB(&fakeConnector{db: db})
	t.Cleanup(func() { _ = sqlDB.Close() })
	return sqlDB
}

type fakeConnector struct{ db *fakeDB }

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{db: c.db}, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakeDriver.Open should not be called; use sql.OpenDB with connector")
}

type fakeConn struct{ db *fakeDB }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	if c.db.prepareFail != nil {
		return nil, c.db.prepareFail
	}
	c.db.query = query
	return &fakeStmt{db: c.db}, nil
}
func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return nil, driver.ErrSkip }

type fakeStmt struct{ db *fakeDB }

func (s *fakeStmt) Close() error  { s.db.stmtCloses++; return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec([]driver.Value) (driver.Result, error) { return nil, driver.ErrSkip }

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.db.args = args
	return &fakeRows{db: s.db}, nil
}

type fakeRows struct {
	db *fakeDB
	i  int
}

func (r *fakeRows) Columns() []string { return append([]string(nil), r.db.cols...) }
func (r *fakeRows) Close() error      { r.db.rowsCloses++; return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.i >= len(r.db.data) {
		return io.EOF
	}
	copy(dest, r.db.data[r.i])
	r.i++
	return nil
}

func testTable() *fakeDB {
	return &fakeDB{
		cols: []string{"a", "b", "c"},
		data: [][]driver.Value{
			{"hello", int64(1), 2.0},
			{"goodbye", int64(3), 4.0},
		},
	}
}
