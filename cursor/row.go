package cursor

import (
	"strings"

	"github.com/mnehpets/httprpc/value"
)

// rowShape is the column layout shared by every row of a cursor.
type rowShape struct {
	keys   []string
	index  map[string]int
	binary []bool
}

var binaryTypes = map[string]bool{
	"BLOB": true, "TINYBLOB": true, "MEDIUMBLOB": true, "LONGBLOB": true,
	"BINARY": true, "VARBINARY": true, "BYTEA": true, "IMAGE": true, "RAW": true,
}

func newRowShape(cols []Column) *rowShape {
	s := &rowShape{index: make(map[string]int, len(cols)), binary: make([]bool, len(cols))}
	for i, c := range cols {
		s.binary[i] = binaryTypes[strings.ToUpper(c.DatabaseType)]
		// With duplicate names (joins) the first column wins.
		if _, dup := s.index[c.Name]; dup {
			continue
		}
		s.index[c.Name] = i
		s.keys = append(s.keys, c.Name)
	}
	return s
}

func (s *rowShape) row(vals []any) *row {
	return &row{shape: s, vals: vals, cache: make([]value.Value, len(vals)), done: make([]bool, len(vals))}
}

// row is one fetched row. Columns are adapted on first access.
type row struct {
	shape *rowShape
	vals  []any
	cache []value.Value
	done  []bool
}

func (r *row) Keys() []string { return r.shape.keys }

func (r *row) Get(key string) (value.Value, error) {
	i, ok := r.shape.index[key]
	if !ok || i >= len(r.vals) {
		return value.Null(), nil
	}
	if r.done[i] {
		return r.cache[i], nil
	}
	raw := r.vals[i]
	if b, ok := raw.([]byte); ok && !r.shape.binary[i] {
		// Drivers hand back text columns as []byte.
		raw = string(b)
	}
	v, err := value.Adapt(raw)
	if err != nil {
		return value.Null(), err
	}
	r.cache[i], r.done[i] = v, true
	return v, nil
}
