package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// maxRequestIDLen bounds a client-supplied id.
const maxRequestIDLen = 128

// RequestIDProcessor assigns each request an id, stored with
// rpc.WithRequestID and echoed in the response header. With TrustHeader set,
// a well-formed incoming id is kept.
type RequestIDProcessor struct {
	TrustHeader bool
}

func (p *RequestIDProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	id := ""
	if p.TrustHeader {
		id = r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = ""
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return next(w, r.WithContext(rpc.WithRequestID(r.Context(), id)))
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c > '~' {
			return false
		}
	}
	return true
}

var _ endpoint.Processor = (*RequestIDProcessor)(nil)
