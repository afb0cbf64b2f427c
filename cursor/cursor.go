// Package cursor exposes a forward-only database result set as a lazy
// value.Sequence of rows.
//
// A Cursor advances the underlying rows exactly once per yielded element and
// holds no more than the current row. It can be iterated once. The rows,
// and any extra resources handed to Release, are closed when iteration ends
// for any reason, or when Close is called, whichever happens first.
//
//	stmt, _ := params.Prepare(ctx, db)
//	rows, _ := params.Query(ctx, stmt, args)
//	c, err := cursor.New(rows, cursor.Release(stmt))
//	return c, err // encoded row by row, then released
package cursor

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mnehpets/httprpc/value"
)

// ErrConsumed reports a second iteration of a Cursor.
var ErrConsumed = errors.New("cursor already consumed")

// CursorError reports a failure while fetching or decoding a row. Row is the
// zero-based index of the row that could not be produced; rows before it
// were delivered intact.
type CursorError struct {
	Row int
	Err error
}

func (e *CursorError) Error() string {
	return fmt.Sprintf("cursor: row %d: %v", e.Row, e.Err)
}

func (e *CursorError) Unwrap() error { return e.Err }

// Column describes a result column.
type Column struct {
	Name string
	// DatabaseType is the driver's type name, such as "VARCHAR" or "int8".
	// It is empty when the driver does not report one.
	DatabaseType string
}

// source is the part of a result set a Cursor drives.
type source interface {
	Next() bool
	// Values returns the current row. The slice is owned by the caller.
	Values() ([]any, error)
	Err() error
	Close() error
}

type options struct {
	closers []io.Closer
}

// Option configures a Cursor.
type Option func(*options)

// Release registers resources to be closed, in order, after the rows. A
// *sql.Stmt or *sql.Conn that only exists to serve the rows belongs here.
func Release(closers ...io.Closer) Option {
	return func(o *options) { o.closers = append(o.closers, closers...) }
}

// Cursor is a single-pass value.Sequence of row mappings. It is not safe for
// concurrent use.
type Cursor struct {
	src     source
	cols    []Column
	shape   *rowShape
	closers []io.Closer

	started bool
	closed  bool
	rows    int
	err     error
}

var (
	_ value.Sequence = (*Cursor)(nil)
	_ io.Closer      = (*Cursor)(nil)
)

func newCursor(src source, cols []Column, opts []Option) *Cursor {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Cursor{src: src, cols: cols, shape: newRowShape(cols), closers: o.closers}
}

// Columns returns the column metadata read when the cursor was created.
func (c *Cursor) Columns() []Column {
	return append([]Column(nil), c.cols...)
}

// Rows returns how many rows have been yielded so far.
func (c *Cursor) Rows() int { return c.rows }

// All yields one mapping per row in result order. A failure ends the
// sequence with a *CursorError. Calling All a second time yields only a
// *CursorError wrapping ErrConsumed.
func (c *Cursor) All() iter.Seq2[value.Value, error] {
	return func(yield func(value.Value, error) bool) {
		if c.started || c.closed {
			yield(value.Null(), &CursorError{Row: c.rows, Err: ErrConsumed})
			return
		}
		c.started = true

		defer func() { _ = c.Close() }()

		for c.src.Next() {
			vals, err := c.src.Values()
			if err != nil {
				yield(value.Null(), &CursorError{Row: c.rows, Err: err})
				return
			}
			row := value.Map(c.shape.row(vals))
			c.rows++
			if !yield(row, nil) {
				return
			}
		}
		if err := c.src.Err(); err != nil {
			yield(value.Null(), &CursorError{Row: c.rows, Err: err})
			return
		}
		if err := c.Close(); err != nil {
			yield(value.Null(), &CursorError{Row: c.rows, Err: err})
		}
	}
}

// Close releases the rows and every resource registered with Release. It is
// idempotent; later calls return the first result.
func (c *Cursor) Close() error {
	if c.closed {
		return c.err
	}
	c.closed = true
	errs := []error{c.src.Close()}
	for _, cl := range c.closers {
		errs = append(errs, cl.Close())
	}
	c.err = errors.Join(errs...)
	return c.err
}
