package codec

import (
	"bufio"
	"io"

	"github.com/mnehpets/httprpc/value"
)

// Text writes text/plain. A scalar is written as-is; a sequence of scalars
// is written one per line. Null writes nothing. Mappings and nested
// sequences are rejected with a *ShapeError.
type Text struct{}

func (Text) ContentType() string { return "text/plain" }

func (Text) Encode(w io.Writer, v value.Value) error {
	switch v.Kind() {
	case value.NullKind:
		return nil
	case value.BoolKind, value.NumberKind, value.StringKind:
		_, err := io.WriteString(w, v.String())
		return err
	case value.SequenceKind:
		bw := bufio.NewWriter(w)
		for ev, err := range v.Sequence().All() {
			if err != nil {
				_ = bw.Flush()
				return err
			}
			if ev.Kind() == value.SequenceKind || ev.Kind() == value.MappingKind {
				_ = bw.Flush()
				return &ShapeError{ContentType: "text/plain", Kind: ev.Kind()}
			}
			if _, err := bw.WriteString(ev.String()); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		return bw.Flush()
	}
	return &ShapeError{ContentType: "text/plain", Kind: v.Kind()}
}
