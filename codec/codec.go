// Package codec writes generic values to the wire.
//
// Each Codec streams a value.Value in one representation. Sequences are
// consumed as they are written, so a database cursor reaches the client row
// by row. An error returned by Encode may follow output already written; the
// caller decides how to signal the truncation.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/mnehpets/httprpc/value"
)

// Codec encodes values in one content type.
type Codec interface {
	// ContentType returns the MIME type written, e.g. "application/json".
	ContentType() string

	// Encode writes v to w.
	Encode(w io.Writer, v value.Value) error
}

// ShapeError reports a value a codec cannot represent, such as a mapping
// sent as text/plain.
type ShapeError struct {
	ContentType string
	Kind        value.Kind
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("codec: %s cannot represent a %s", e.ContentType, e.Kind)
}

// ErrNotAcceptable is returned by Set.Negotiate when no codec satisfies the
// Accept header.
var ErrNotAcceptable = errors.New("codec: no acceptable representation")

// Set is an ordered collection of codecs. The first codec is the default,
// chosen when the client accepts anything.
type Set struct {
	codecs []Codec
}

// NewSet returns a set holding codecs in preference order.
func NewSet(codecs ...Codec) *Set {
	return &Set{codecs: append([]Codec(nil), codecs...)}
}

// DefaultSet returns JSON, XML, CBOR, YAML, MessagePack, plain text, CSV and
// event stream codecs, with JSON as the default.
func DefaultSet() *Set {
	return NewSet(JSON{}, XML{}, CBOR{}, YAML{}, MsgPack{}, Text{}, CSV{}, SSE{})
}

// Codecs returns the codecs in preference order.
func (s *Set) Codecs() []Codec {
	return append([]Codec(nil), s.codecs...)
}

// Lookup returns the codec for contentType, ignoring parameters.
func (s *Set) Lookup(contentType string) (Codec, bool) {
	mt := mediaType(contentType)
	for _, c := range s.codecs {
		if c.ContentType() == mt {
			return c, true
		}
	}
	return nil, false
}

// Negotiate picks the codec for an Accept header. An empty header selects
// the default codec. Ranges are tried in descending quality; within a range,
// codecs are tried in set order, and a codec whose own most specific range
// has q=0 is never chosen.
func (s *Set) Negotiate(accept string) (Codec, error) {
	if len(s.codecs) == 0 {
		return nil, ErrNotAcceptable
	}
	ranges := ParseAccept(accept)
	if len(ranges) == 0 {
		return s.codecs[0], nil
	}
	for _, r := range byPreference(ranges) {
		if r.Q == 0 {
			break
		}
		for _, c := range s.codecs {
			if r.specificity(c.ContentType()) == 0 {
				continue
			}
			if q, _ := Acceptance(ranges, c.ContentType()); q == 0 {
				continue
			}
			return c, nil
		}
	}
	return nil, ErrNotAcceptable
}
