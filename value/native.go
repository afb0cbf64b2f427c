package value

import "fmt"

// Native materialises v into plain Go values: nil, bool, int64, float64,
// string, []any and map[string]any. Sequences are consumed.
//
// Mapping key order is lost; use an encoder when order matters.
func Native(v Value) (any, error) {
	switch v.kind {
	case NullKind:
		return nil, nil
	case BoolKind:
		return v.b, nil
	case NumberKind:
		if v.isInt {
			return v.i, nil
		}
		return v.f, nil
	case StringKind:
		return v.s, nil
	case SequenceKind:
		out := []any{}
		for ev, err := range v.seq.All() {
			if err != nil {
				return nil, err
			}
			n, err := Native(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case MappingKind:
		keys := v.m.Keys()
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			ev, err := v.m.Get(k)
			if err != nil {
				return nil, err
			}
			n, err := Native(ev)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

// Collect reads every element of s into a slice.
func Collect(s Sequence) ([]Value, error) {
	if l, ok := s.(List); ok {
		out := make([]Value, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			ev, err := l.At(i)
			if err != nil {
				return out, err
			}
			out = append(out, ev)
		}
		return out, nil
	}
	var out []Value
	for ev, err := range s.All() {
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Equal reports whether a and b have the same shape and content. Numbers
// compare by numeric value; mapping keys must appear in the same order.
// Sequences are consumed.
func Equal(a, b Value) (bool, error) {
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case NullKind:
		return true, nil
	case BoolKind:
		return a.b == b.b, nil
	case NumberKind:
		if a.isInt && b.isInt {
			return a.i == b.i, nil
		}
		return a.f == b.f, nil
	case StringKind:
		return a.s == b.s, nil
	case SequenceKind:
		as, err := Collect(a.seq)
		if err != nil {
			return false, err
		}
		bs, err := Collect(b.seq)
		if err != nil {
			return false, err
		}
		if len(as) != len(bs) {
			return false, nil
		}
		for i := range as {
			if ok, err := Equal(as[i], bs[i]); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case MappingKind:
		ak, bk := a.m.Keys(), b.m.Keys()
		if len(ak) != len(bk) {
			return false, nil
		}
		for i, k := range ak {
			if bk[i] != k {
				return false, nil
			}
			av, err := a.m.Get(k)
			if err != nil {
				return false, err
			}
			bv, err := b.m.Get(k)
			if err != nil {
				return false, err
			}
			if ok, err := Equal(av, bv); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}
