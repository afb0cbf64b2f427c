package codec

import (
	"encoding/xml"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/mnehpets/httprpc/value"
)

// XML writes application/xml. The document element is <root>. Sequence
// elements are <item> children; mapping entries are children named by key,
// or <entry key="…"> when the key is not an XML name. Null is an empty
// element carrying nil="true".
type XML struct{}

func (XML) ContentType() string { return "application/xml" }

func (XML) Encode(w io.Writer, v value.Value) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := writeXML(enc, xml.StartElement{Name: xml.Name{Local: "root"}}, v); err != nil {
		_ = enc.Flush()
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

var nilAttr = xml.Attr{Name: xml.Name{Local: "nil"}, Value: "true"}

func writeXML(enc *xml.Encoder, start xml.StartElement, v value.Value) error {
	if v.IsNull() {
		start.Attr = append(start.Attr, nilAttr)
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	switch v.Kind() {
	case value.BoolKind, value.NumberKind, value.StringKind:
		if err := enc.EncodeToken(xml.CharData(v.String())); err != nil {
			return err
		}
	case value.SequenceKind:
		item := xml.StartElement{Name: xml.Name{Local: "item"}}
		for ev, err := range v.Sequence().All() {
			if err != nil {
				return err
			}
			if err := writeXML(enc, item, ev); err != nil {
				return err
			}
		}
	case value.MappingKind:
		m := v.Mapping()
		for _, k := range m.Keys() {
			ev, err := m.Get(k)
			if err != nil {
				return err
			}
			if err := writeXML(enc, entryElement(k), ev); err != nil {
				return err
			}
		}
	}
	return enc.EncodeToken(start.End())
}

func entryElement(key string) xml.StartElement {
	if isXMLName(key) {
		return xml.StartElement{Name: xml.Name{Local: key}}
	}
	return xml.StartElement{
		Name: xml.Name{Local: "entry"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "key"}, Value: key}},
	}
}

// isXMLName reports whether s is a valid unprefixed element name. It is
// stricter than the XML grammar: only letters, digits, '_', '-' and '.'.
func isXMLName(s string) bool {
	if s == "" || len(s) >= 3 && (s[0]|0x20) == 'x' && (s[1]|0x20) == 'm' && (s[2]|0x20) == 'l' {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '-' || r == '.' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return utf8.ValidString(s)
}
