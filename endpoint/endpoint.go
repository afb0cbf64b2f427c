// Package endpoint is the HTTP glue between the dispatch core and net/http.
//
// A request passes through three phases:
//
//  1. Processors: middleware-style logic (identity, locale, request ids,
//     access logging) that may enrich the request context or short-circuit.
//  2. Endpoint: the EndpointFunc resolves and invokes the operation and
//     returns a Renderer. It does not write to the response directly.
//  3. Render: the returned Renderer writes the status code, headers, and
//     body to the http.ResponseWriter.
//
// Errors returned from any phase before the response is committed are
// written as plain-text HTTP errors; an *EndpointError selects the status.
// Errors after the response is committed are only logged: the renderer is
// expected to have signalled them in-band (see ValueRenderer).
//
// Supported Renderers:
//   - ValueRenderer: Encodes a value.Value with a codec.Codec.
//   - TemplateRenderer: Renders a text/template or html/template.
//   - StringRenderer: Writes a plain string.
//   - NoContentRenderer: Writes a status code with no body.
package endpoint

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// EndpointError carries the HTTP status and client message for a failure.
// Message is written as the error body; Cause is only logged.
type EndpointError struct {
	Status  int
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: <nil> error"
	}
	msg := e.Message
	if msg == "" {
		if msg = http.StatusText(e.Status); msg == "" {
			msg = "status " + strconv.Itoa(e.Status)
		}
	}
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error creates a new EndpointError. An err that already carries an
// *EndpointError is returned unchanged.
func Error(status int, message string, err error) error {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// StatusOf reports the HTTP status and client message for err.
// Errors without an *EndpointError in their chain map to 500.
func StatusOf(err error) (int, string) {
	var ee *EndpointError
	if errors.As(err, &ee) && ee != nil {
		status := ee.Status
		if status < 100 {
			status = http.StatusInternalServerError
		}
		if ee.Message == "" {
			return status, http.StatusText(status)
		}
		return status, ee.Message
	}
	return http.StatusInternalServerError, err.Error()
}

// Renderer writes a complete response. It sets any headers, calls
// WriteHeader once, then writes the body. An error returned before
// WriteHeader becomes an HTTP error response; one returned after it is
// logged, and the renderer must have signalled it in-band.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor runs ahead of the endpoint. It either calls next, possibly with
// a derived request, or returns an error to stop the chain. Processors may
// set headers and register Defer hooks but never write the status or body.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc produces the Renderer for a request.
//
// It should implement request handling without writing the response body.
// Status, Content-Type and body are delegated to the returned Renderer.
// A Renderer that also implements io.Closer is closed after rendering,
// whether or not rendering succeeded.
type EndpointFunc func(w http.ResponseWriter, r *http.Request) (Renderer, error)

// EndpointHandler is the standard http.Handler wrapper for an EndpointFunc.
//
// It runs zero or more processors. It then calls Endpoint and invokes the
// returned Renderer to write the response.
type EndpointHandler struct {
	Endpoint   EndpointFunc
	Processors []Processor
	// Logger receives errors that could not be reported to the client.
	// Nil disables logging.
	Logger *zap.Logger
}

// Handler constructs an EndpointHandler.
func Handler(fn EndpointFunc, processors ...Processor) *EndpointHandler {
	return &EndpointHandler{
		Endpoint:   fn,
		Processors: processors,
	}
}

// HandleFunc adapts an EndpointFunc into an http.HandlerFunc.
func HandleFunc(fn EndpointFunc, processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

type hooksKey struct{}

// hooks holds the functions registered with Defer for one request.
type hooks struct {
	fns []func(http.ResponseWriter)
}

func hooksFrom(ctx context.Context) *hooks {
	h, _ := ctx.Value(hooksKey{}).(*hooks)
	return h
}

// Defer registers fn to run just before the response headers are written,
// whether the request succeeds or fails. fn must not call WriteHeader.
// Outside an EndpointHandler it does nothing.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	if h := hooksFrom(ctx); h != nil {
		h.fns = append(h.fns, fn)
	}
}

// Commit runs the functions registered with Defer, most recent first, and
// forgets them.
func Commit(ctx context.Context, w http.ResponseWriter) {
	h := hooksFrom(ctx)
	if h == nil {
		return
	}
	fns := h.fns
	h.fns = nil
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i](w)
	}
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}
	if hooksFrom(r.Context()) == nil {
		r = r.WithContext(context.WithValue(r.Context(), hooksKey{}, &hooks{}))
	}

	tw := &trackingWriter{ResponseWriter: w}
	if err := h.step(0, tw, r); err != nil {
		h.fail(tw, r, err)
	}
}

// step runs processor i, or the endpoint and its renderer once every
// processor has called next.
func (h *EndpointHandler) step(i int, w http.ResponseWriter, r *http.Request) error {
	if i < len(h.Processors) {
		p := h.Processors[i]
		if p == nil {
			return errors.New("endpoint: nil processor")
		}
		return p.Process(w, r, func(w http.ResponseWriter, r *http.Request) error {
			return h.step(i+1, w, r)
		})
	}

	renderer, err := h.Endpoint(w, r)
	if err != nil {
		return err
	}
	if renderer == nil {
		return errors.New("endpoint: nil renderer")
	}
	if c, ok := renderer.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				h.logger().Warn("release failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
		}()
	}
	Commit(r.Context(), w)
	return renderer.Render(w, r)
}

// fail reports err to the client unless the response is already committed.
// Errors without an *EndpointError are reported by status text alone.
func (h *EndpointHandler) fail(tw *trackingWriter, r *http.Request, err error) {
	log := h.logger().With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
	if tw.wrote {
		log.Error("response failed after commit", zap.Error(err))
		return
	}
	status, message := StatusOf(err)
	var ee *EndpointError
	if !errors.As(err, &ee) {
		message = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	Commit(r.Context(), tw)
	http.Error(tw, message, status)
}

func (h *EndpointHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// trackingWriter notes when the status line has gone out.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	t.wrote = true
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
