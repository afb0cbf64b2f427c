package codec

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/httprpc/value"
)

// SSEvent is one Server-Sent Event. A nil ID or Type omits the field.
type SSEvent struct {
	ID   *string
	Type *string
	Data string
}

// WriteTo implements io.WriterTo. Each line of Data becomes its own data
// field.
func (e SSEvent) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	field := func(name, val string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(val)
		b.WriteByte('\n')
	}
	if e.ID != nil {
		field("id", *e.ID)
	}
	if e.Type != nil {
		field("event", *e.Type)
	}
	for _, line := range strings.Split(e.Data, "\n") {
		field("data", line)
	}
	b.WriteByte('\n')
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// SSE writes text/event-stream. Each element of a sequence becomes one
// event whose data is the element's JSON text and whose id is its index;
// any other value is a single event. The writer is flushed after every
// event when it is an http.Flusher.
//
// A failure while reading the sequence is reported to the client as a final
// event of type "error" before Encode returns it.
type SSE struct{}

func (SSE) ContentType() string { return "text/event-stream" }

var errorEventType = "error"

func (SSE) Encode(w io.Writer, v value.Value) error {
	flusher, _ := w.(http.Flusher)
	send := func(e SSEvent) error {
		if _, err := e.WriteTo(w); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if v.Kind() != value.SequenceKind {
		data, err := MarshalJSON(v)
		if err != nil {
			return err
		}
		return send(SSEvent{Data: string(data)})
	}

	i := 0
	for ev, err := range v.Sequence().All() {
		if err == nil {
			var data []byte
			if data, err = MarshalJSON(ev); err == nil {
				id := strconv.Itoa(i)
				if err := send(SSEvent{ID: &id, Data: string(data)}); err != nil {
					return err
				}
				i++
				continue
			}
		}
		_ = send(SSEvent{Type: &errorEventType, Data: err.Error()})
		return err
	}
	return nil
}
