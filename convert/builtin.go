package convert

import (
	"reflect"
	"time"

	"github.com/mnehpets/httprpc/value"
)

var builtins = map[reflect.Type]Func{
	reflect.TypeFor[time.Time]():     convertTime,
	reflect.TypeFor[time.Duration](): convertDuration,
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

// convertTime accepts epoch milliseconds, the form value.Adapt produces, or
// RFC 3339 text. Date-only text is midnight UTC.
func convertTime(v value.Value, t reflect.Type) (reflect.Value, error) {
	switch v.Kind() {
	case value.NumberKind:
		return reflect.ValueOf(time.UnixMilli(v.Int()).UTC()), nil
	case value.StringKind:
		if v.Text() == "" {
			return reflect.ValueOf(time.Time{}), nil
		}
		var err error
		for _, layout := range timeLayouts {
			var ts time.Time
			if ts, err = time.Parse(layout, v.Text()); err == nil {
				return reflect.ValueOf(ts), nil
			}
		}
		if n, nerr := value.ParseNumber(v.Text()); nerr == nil {
			return convertTime(n, t)
		}
		return reflect.Value{}, err
	}
	return reflect.Value{}, ErrShape
}

// convertDuration accepts milliseconds or time.ParseDuration text.
func convertDuration(v value.Value, t reflect.Type) (reflect.Value, error) {
	switch v.Kind() {
	case value.NumberKind:
		return reflect.ValueOf(time.Duration(v.Float() * float64(time.Millisecond))), nil
	case value.StringKind:
		if v.Text() == "" {
			return reflect.ValueOf(time.Duration(0)), nil
		}
		if n, err := value.ParseNumber(v.Text()); err == nil {
			return convertDuration(n, t)
		}
		d, err := time.ParseDuration(v.Text())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}
	return reflect.Value{}, ErrShape
}
