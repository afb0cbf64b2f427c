package endpoint

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/value"
)

// ErrorTrailer is the HTTP trailer that carries a failure which occurred
// after the response body had started.
const ErrorTrailer = "X-Rpc-Error"

// ValueRenderer encodes a value.Value with a codec.
//
// The status line is delayed until the codec first writes, so a failure
// before any output (a shape the codec rejects, a cursor that fails on its
// first row) still becomes an ordinary HTTP error: 406 for a
// *codec.ShapeError, otherwise the error's own status. A failure after
// output has started leaves the partial body in place and is reported in the
// ErrorTrailer trailer.
type ValueRenderer struct {
	Status int
	Value  value.Value
	Codec  codec.Codec
}

func (vr *ValueRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if vr.Codec == nil {
		return errors.New("endpoint: nil codec")
	}
	h := w.Header()
	h.Set("Content-Type", contentTypeFor(vr.Codec.ContentType()))
	h.Add("Trailer", ErrorTrailer)

	lw := &lazyWriter{w: w, status: statusOr(vr.Status, http.StatusOK)}
	err := vr.Codec.Encode(lw, vr.Value)
	if err == nil {
		lw.commit()
		return nil
	}
	if !lw.committed {
		h.Del("Trailer")
		h.Del("Content-Type")
		var se *codec.ShapeError
		if errors.As(err, &se) {
			return Error(http.StatusNotAcceptable, se.Error(), err)
		}
		return err
	}
	h.Set(ErrorTrailer, trailerText(err))
	return err
}

func contentTypeFor(ct string) string {
	if strings.HasPrefix(ct, "text/") && !strings.Contains(ct, "charset") {
		return ct + "; charset=utf-8"
	}
	return ct
}

// trailerText flattens err to a single header-safe line.
func trailerText(err error) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return ' '
		}
		return r
	}, err.Error())
}

// lazyWriter writes the status line on the first Write or Flush.
type lazyWriter struct {
	w         http.ResponseWriter
	status    int
	committed bool
}

func (l *lazyWriter) commit() {
	if !l.committed {
		l.committed = true
		l.w.WriteHeader(l.status)
	}
}

func (l *lazyWriter) Write(b []byte) (int, error) {
	l.commit()
	return l.w.Write(b)
}

func (l *lazyWriter) Flush() {
	l.commit()
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}
