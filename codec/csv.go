package codec

import (
	"encoding/csv"
	"io"

	"github.com/mnehpets/httprpc/value"
)

// CSV writes text/csv for tabular results: a sequence of mappings, one row
// per element. The header comes from the first row's keys; later rows are
// written in the same column order and keys they lack are left empty.
// Nested cells are written as JSON text. A single mapping is a one-row
// table.
type CSV struct{}

func (CSV) ContentType() string { return "text/csv" }

func (CSV) Encode(w io.Writer, v value.Value) error {
	cw := csv.NewWriter(w)
	var header []string
	writeRow := func(row value.Value) error {
		if row.Kind() != value.MappingKind {
			return &ShapeError{ContentType: "text/csv", Kind: row.Kind()}
		}
		m := row.Mapping()
		if header == nil {
			header = append([]string{}, m.Keys()...)
			if err := cw.Write(header); err != nil {
				return err
			}
		}
		rec := make([]string, len(header))
		for i, k := range header {
			cell, err := m.Get(k)
			if err != nil {
				return err
			}
			if rec[i], err = csvCell(cell); err != nil {
				return err
			}
		}
		return cw.Write(rec)
	}

	var err error
	switch v.Kind() {
	case value.NullKind:
	case value.MappingKind:
		err = writeRow(v)
	case value.SequenceKind:
		for row, ierr := range v.Sequence().All() {
			if ierr != nil {
				err = ierr
				break
			}
			if err = writeRow(row); err != nil {
				break
			}
			cw.Flush()
		}
	default:
		err = &ShapeError{ContentType: "text/csv", Kind: v.Kind()}
	}
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}

func csvCell(v value.Value) (string, error) {
	switch v.Kind() {
	case value.NullKind:
		return "", nil
	case value.SequenceKind, value.MappingKind:
		b, err := MarshalJSON(v)
		return string(b), err
	}
	return v.String(), nil
}
