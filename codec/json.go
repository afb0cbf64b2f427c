package codec

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/mnehpets/httprpc/value"
)

// JSON writes application/json. Output is streamed through a buffer and
// terminated by a newline. HTML characters are not escaped. Non-finite
// numbers are written as null.
type JSON struct{}

func (JSON) ContentType() string { return "application/json" }

func (JSON) Encode(w io.Writer, v value.Value) error {
	bw := bufio.NewWriter(w)
	if err := writeJSON(bw, v); err != nil {
		_ = bw.Flush()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}

// MarshalJSON returns the JSON text of v without a trailing newline.
func MarshalJSON(v value.Value) ([]byte, error) {
	var buf jsonBuffer
	bw := bufio.NewWriter(&buf)
	if err := writeJSON(bw, v); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return buf, nil
}

type jsonBuffer []byte

func (b *jsonBuffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func writeJSON(w *bufio.Writer, v value.Value) error {
	var scratch [64]byte
	switch v.Kind() {
	case value.NullKind:
		_, err := w.WriteString("null")
		return err
	case value.BoolKind:
		_, err := w.Write(strconv.AppendBool(scratch[:0], v.Bool()))
		return err
	case value.NumberKind:
		if f := v.Float(); !v.IsInteger() && (math.IsNaN(f) || math.IsInf(f, 0)) {
			_, err := w.WriteString("null")
			return err
		}
		_, err := w.WriteString(value.FormatNumber(v))
		return err
	case value.StringKind:
		_, err := w.Write(appendJSONString(scratch[:0], v.Text()))
		return err
	case value.SequenceKind:
		if err := w.WriteByte('['); err != nil {
			return err
		}
		first := true
		for ev, err := range v.Sequence().All() {
			if err != nil {
				return err
			}
			if !first {
				if err := w.WriteByte(','); err != nil {
					return err
				}
			}
			first = false
			if err := writeJSON(w, ev); err != nil {
				return err
			}
		}
		return w.WriteByte(']')
	case value.MappingKind:
		if err := w.WriteByte('{'); err != nil {
			return err
		}
		m := v.Mapping()
		for i, k := range m.Keys() {
			if i > 0 {
				if err := w.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := w.Write(appendJSONString(scratch[:0], k)); err != nil {
				return err
			}
			if err := w.WriteByte(':'); err != nil {
				return err
			}
			ev, err := m.Get(k)
			if err != nil {
				return err
			}
			if err := writeJSON(w, ev); err != nil {
				return err
			}
		}
		return w.WriteByte('}')
	}
	return fmt.Errorf("codec: unknown value kind %v", v.Kind())
}

const hexDigits = "0123456789abcdef"

// appendJSONString appends s as a quoted JSON string. Invalid UTF-8 is
// replaced with U+FFFD; U+2028 and U+2029 are escaped.
func appendJSONString(b []byte, s string) []byte {
	b = append(b, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			b = append(b, s[start:i]...)
			switch c {
			case '"', '\\':
				b = append(b, '\\', c)
			case '\n':
				b = append(b, '\\', 'n')
			case '\r':
				b = append(b, '\\', 'r')
			case '\t':
				b = append(b, '\\', 't')
			default:
				b = append(b, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b = append(b, s[start:i]...)
			b = append(b, `\ufffd`...)
			i += size
			start = i
			continue
		}
		if r == '\u2028' || r == '\u2029' {
			b = append(b, s[start:i]...)
			b = append(b, '\\', 'u', '2', '0', '2', hexDigits[r&0xf])
			i += size
			start = i
			continue
		}
		i += size
	}
	b = append(b, s[start:]...)
	return append(b, '"')
}

// ReadJSON decodes one JSON document into a Value. Object keys keep their
// document order, and numbers keep their integral form when they have one.
func ReadJSON(r io.Reader) (value.Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		// io.EOF here means no document at all.
		return value.Null(), err
	}
	v, err := jsonValueFrom(dec, tok)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return value.Null(), err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return value.Null(), errors.New("codec: trailing data after JSON document")
	}
	return v, nil
}

func readJSONValue(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Null(), err
	}
	return jsonValueFrom(dec, tok)
}

func jsonValueFrom(dec *json.Decoder, tok json.Token) (value.Value, error) {
	switch t := tok.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Boolean(t), nil
	case json.Number:
		return value.ParseNumber(string(t))
	case string:
		return value.Text(t), nil
	case json.Delim:
		switch t {
		case '[':
			var vs []value.Value
			for dec.More() {
				ev, err := readJSONValue(dec)
				if err != nil {
					return value.Null(), err
				}
				vs = append(vs, ev)
			}
			if _, err := dec.Token(); err != nil {
				return value.Null(), err
			}
			return value.Seq(value.ListOf(vs...)), nil
		case '{':
			o := value.NewObject(4)
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return value.Null(), err
				}
				key, _ := kt.(string)
				ev, err := readJSONValue(dec)
				if err != nil {
					return value.Null(), err
				}
				o.Set(key, ev)
			}
			if _, err := dec.Token(); err != nil {
				return value.Null(), err
			}
			return value.Map(o), nil
		}
	}
	return value.Null(), fmt.Errorf("codec: unexpected JSON token %v", tok)
}
