package codec

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/mnehpets/httprpc/value"
)

// CBOR writes application/cbor. Sequences and mappings are written as
// indefinite-length items so that neither needs to be counted first.
type CBOR struct{}

func (CBOR) ContentType() string { return "application/cbor" }

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{IndefLength: cbor.IndefLengthAllowed}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (CBOR) Encode(w io.Writer, v value.Value) error {
	return writeCBOR(cborEncMode.NewEncoder(w), v)
}

func writeCBOR(enc *cbor.Encoder, v value.Value) error {
	switch v.Kind() {
	case value.NullKind:
		return enc.Encode(nil)
	case value.BoolKind:
		return enc.Encode(v.Bool())
	case value.NumberKind:
		if v.IsInteger() {
			return enc.Encode(v.Int())
		}
		return enc.Encode(v.Float())
	case value.StringKind:
		return enc.Encode(v.Text())
	case value.SequenceKind:
		if err := enc.StartIndefiniteArray(); err != nil {
			return err
		}
		for ev, err := range v.Sequence().All() {
			if err != nil {
				return err
			}
			if err := writeCBOR(enc, ev); err != nil {
				return err
			}
		}
		return enc.EndIndefinite()
	case value.MappingKind:
		if err := enc.StartIndefiniteMap(); err != nil {
			return err
		}
		m := v.Mapping()
		for _, k := range m.Keys() {
			if err := enc.Encode(k); err != nil {
				return err
			}
			ev, err := m.Get(k)
			if err != nil {
				return err
			}
			if err := writeCBOR(enc, ev); err != nil {
				return err
			}
		}
		return enc.EndIndefinite()
	}
	return fmt.Errorf("codec: unknown value kind %v", v.Kind())
}
