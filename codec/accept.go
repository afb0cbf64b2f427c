package codec

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// MediaRange is one entry of an Accept header.
type MediaRange struct {
	Type    string
	Subtype string
	Q       float64
}

// ParseAccept parses an Accept header into media ranges, preserving header
// order. Malformed entries are skipped. A missing q parameter means 1.
func ParseAccept(header string) []MediaRange {
	var out []MediaRange
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mt, params, err := mime.ParseMediaType(part)
		if err != nil {
			continue
		}
		typ, sub, ok := strings.Cut(mt, "/")
		if !ok {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if f, err := strconv.ParseFloat(qs, 64); err == nil && f >= 0 && f <= 1 {
				q = f
			}
		}
		out = append(out, MediaRange{Type: typ, Subtype: sub, Q: q})
	}
	return out
}

// specificity ranks how closely r matches contentType: 3 for an exact
// match, 2 for type/*, 1 for */* and 0 for no match.
func (r MediaRange) specificity(contentType string) int {
	typ, sub, _ := strings.Cut(mediaType(contentType), "/")
	switch {
	case r.Type == "*" && r.Subtype == "*":
		return 1
	case r.Type != typ:
		return 0
	case r.Subtype == "*":
		return 2
	case r.Subtype == sub:
		return 3
	}
	return 0
}

// Acceptance reports the quality the ranges assign to contentType, taken
// from the most specific matching range, and whether that range named the
// type explicitly (exact or type/*) rather than through */*.
func Acceptance(ranges []MediaRange, contentType string) (q float64, explicit bool) {
	best := 0
	for _, r := range ranges {
		if s := r.specificity(contentType); s > best {
			best, q = s, r.Q
		}
	}
	return q, best >= 2
}

// Accepts reports whether contentType is named explicitly with a non-zero
// quality. A bare */* does not count.
func Accepts(ranges []MediaRange, contentType string) bool {
	q, explicit := Acceptance(ranges, contentType)
	return explicit && q > 0
}

// byPreference orders ranges by descending quality, keeping header order
// among equals.
func byPreference(ranges []MediaRange) []MediaRange {
	out := append([]MediaRange(nil), ranges...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Q > out[j].Q })
	return out
}

// mediaType strips parameters and lower-cases a content type.
func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
