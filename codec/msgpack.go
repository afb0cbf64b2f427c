package codec

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mnehpets/httprpc/value"
)

// MsgPack writes application/msgpack. MessagePack arrays carry their length
// up front: a value.List is streamed, any other sequence (a cursor) is
// collected first.
type MsgPack struct{}

func (MsgPack) ContentType() string { return "application/msgpack" }

func (MsgPack) Encode(w io.Writer, v value.Value) error {
	return writeMsgPack(msgpack.NewEncoder(w), v)
}

func writeMsgPack(enc *msgpack.Encoder, v value.Value) error {
	switch v.Kind() {
	case value.NullKind:
		return enc.EncodeNil()
	case value.BoolKind:
		return enc.EncodeBool(v.Bool())
	case value.NumberKind:
		if v.IsInteger() {
			return enc.EncodeInt(v.Int())
		}
		return enc.EncodeFloat64(v.Float())
	case value.StringKind:
		return enc.EncodeString(v.Text())
	case value.SequenceKind:
		if l, ok := v.Sequence().(value.List); ok {
			if err := enc.EncodeArrayLen(l.Len()); err != nil {
				return err
			}
			for i := 0; i < l.Len(); i++ {
				ev, err := l.At(i)
				if err != nil {
					return err
				}
				if err := writeMsgPack(enc, ev); err != nil {
					return err
				}
			}
			return nil
		}
		elems, err := value.Collect(v.Sequence())
		if err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(elems)); err != nil {
			return err
		}
		for _, ev := range elems {
			if err := writeMsgPack(enc, ev); err != nil {
				return err
			}
		}
		return nil
	case value.MappingKind:
		m := v.Mapping()
		keys := m.Keys()
		if err := enc.EncodeMapLen(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			ev, err := m.Get(k)
			if err != nil {
				return err
			}
			if err := writeMsgPack(enc, ev); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("codec: unknown value kind %v", v.Kind())
}
