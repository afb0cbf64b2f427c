package rpc

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mnehpets/httprpc/attachment"
	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/convert"
	"github.com/mnehpets/httprpc/endpoint"
)

// DefaultMaxFormMemory bounds the in-memory part of a multipart form, and
// the size of a JSON body; larger uploads spill to temporary files.
const DefaultMaxFormMemory = 32 << 20

// Handler serves a Table over HTTP.
//
// For each request it resolves the operation, binds its arguments from the
// path, query, form, JSON body and uploads, invokes it, and renders the
// result with the first matching template or else the negotiated codec.
// Cursors, attachments and multipart temporary files are released once the
// response is written or the request fails.
type Handler struct {
	Dispatcher    Dispatcher
	Codecs        *codec.Set
	Views         *ViewSet
	MaxFormMemory int64
	Logger        *zap.Logger
	Processors    []endpoint.Processor
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithBinder sets the binding policy.
func WithBinder(b Binder) HandlerOption {
	return func(h *Handler) { h.Dispatcher.Binder = b }
}

// WithCodecs sets the codecs offered for negotiation.
func WithCodecs(s *codec.Set) HandlerOption {
	return func(h *Handler) { h.Codecs = s }
}

// WithViews enables template rendering.
func WithViews(vs *ViewSet) HandlerOption {
	return func(h *Handler) { h.Views = vs }
}

// WithMaxFormMemory sets the multipart memory bound.
func WithMaxFormMemory(n int64) HandlerOption {
	return func(h *Handler) { h.MaxFormMemory = n }
}

// WithLogger sets the logger for failures that cannot reach the client.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) { h.Logger = l }
}

// WithProcessors appends processors that run before dispatch.
func WithProcessors(ps ...endpoint.Processor) HandlerOption {
	return func(h *Handler) { h.Processors = append(h.Processors, ps...) }
}

// NewHandler returns a Handler for t.
func NewHandler(t *Table, opts ...HandlerOption) *Handler {
	h := &Handler{
		Dispatcher:    Dispatcher{Table: t},
		Codecs:        codec.DefaultSet(),
		MaxFormMemory: DefaultMaxFormMemory,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	eh := endpoint.EndpointHandler{Endpoint: h.Endpoint, Processors: h.Processors, Logger: h.Logger}
	eh.ServeHTTP(w, r)
}

// Endpoint is the endpoint.EndpointFunc behind ServeHTTP.
func (h *Handler) Endpoint(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
	m, err := h.Dispatcher.Table.Resolve(r.Method, r.URL.Path)
	if err != nil {
		return nil, h.fail(w, err)
	}

	in, err := h.readArgs(w, r)
	if err != nil {
		return nil, err
	}
	op, vars, err := m.Choose(in.args)
	if err != nil {
		in.release()
		return nil, h.fail(w, err)
	}

	ctx := WithAttachments(r.Context(), in.files)
	res, err := h.Dispatcher.Invoke(ctx, op, in.args, vars)
	if err != nil {
		in.release()
		return nil, h.fail(w, err)
	}

	renderer, err := h.renderer(ctx, r, res)
	if err != nil {
		_ = res.Close()
		in.release()
		return nil, HTTPError(err)
	}
	return &releasingRenderer{Renderer: renderer, release: func() error {
		return errors.Join(res.Close(), in.release())
	}}, nil
}

func (h *Handler) renderer(ctx context.Context, r *http.Request, res *Result) (endpoint.Renderer, error) {
	if res.Void {
		return &endpoint.NoContentRenderer{}, nil
	}
	accept := r.Header.Get("Accept")
	if h.Views != nil {
		if t, ok := res.Operation.SelectTemplate(accept, r.UserAgent()); ok {
			return h.Views.Renderer(ctx, t, res.Value)
		}
	}
	codecs := h.Codecs
	if codecs == nil {
		codecs = codec.DefaultSet()
	}
	c, err := codecs.Negotiate(accept)
	if err != nil {
		return nil, endpoint.Error(http.StatusNotAcceptable, "", err)
	}
	return &endpoint.ValueRenderer{Value: res.Value, Codec: c}, nil
}

// fail maps err to an HTTP error, adding the Allow header for a 405.
func (h *Handler) fail(w http.ResponseWriter, err error) error {
	var mna *MethodNotAllowedError
	if errors.As(err, &mna) {
		w.Header().Set("Allow", strings.Join(mna.Allowed, ", "))
	}
	return HTTPError(err)
}

// HTTPError maps dispatch errors to *endpoint.EndpointError values:
// NotFound 404, MethodNotAllowed 405, Forbidden 403, Ambiguous and
// Conversion 400. A HandlerError is 500 unless the operation itself returned
// an *endpoint.EndpointError, whose status is kept.
func HTTPError(err error) error {
	var (
		nf  *NotFoundError
		mna *MethodNotAllowedError
		fb  *ForbiddenError
		amb *AmbiguousRouteError
		he  *HandlerError
		ce  *convert.ConversionError
	)
	switch {
	case errors.As(err, &he):
		return endpoint.Error(http.StatusInternalServerError, "", err)
	case errors.As(err, &nf):
		return endpoint.Error(http.StatusNotFound, nf.Error(), err)
	case errors.As(err, &mna):
		return endpoint.Error(http.StatusMethodNotAllowed, mna.Error(), err)
	case errors.As(err, &fb):
		return endpoint.Error(http.StatusForbidden, fb.Error(), err)
	case errors.As(err, &amb):
		return endpoint.Error(http.StatusBadRequest, amb.Error(), err)
	case errors.As(err, &ce):
		return endpoint.Error(http.StatusBadRequest, ce.Error(), err)
	}
	return endpoint.Error(http.StatusInternalServerError, "", err)
}

type inbound struct {
	args    *Args
	files   []*attachment.Attachment
	request *http.Request
}

func (in *inbound) release() error {
	err := attachment.ReleaseAll(in.files)
	if in.request != nil && in.request.MultipartForm != nil {
		err = errors.Join(err, in.request.MultipartForm.RemoveAll())
	}
	return err
}

func (h *Handler) readArgs(w http.ResponseWriter, r *http.Request) (*inbound, error) {
	in := &inbound{args: &Args{Query: r.URL.Query()}, request: r}

	limit := h.MaxFormMemory
	if limit <= 0 {
		limit = DefaultMaxFormMemory
	}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, endpoint.Error(http.StatusBadRequest, "malformed form", err)
		}
		in.args.Form = r.PostForm
	case "multipart/form-data":
		if err := r.ParseMultipartForm(limit); err != nil {
			in.release()
			return nil, endpoint.Error(http.StatusBadRequest, "malformed multipart form", err)
		}
		in.args.Form = url.Values(r.MultipartForm.Value)
		in.args.Files, in.files = uploads(r.MultipartForm.File)
	case "application/json":
		body, err := codec.ReadJSON(http.MaxBytesReader(w, r.Body, limit))
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
		case errors.As(err, &mbe):
			return nil, endpoint.Error(http.StatusRequestEntityTooLarge, "request body too large", err)
		case err != nil:
			return nil, endpoint.Error(http.StatusBadRequest, "malformed JSON body", err)
		default:
			in.args.Body = body
		}
	}
	return in, nil
}

// uploads wraps multipart files as attachments, grouped by field name in
// sorted order.
func uploads(files map[string][]*multipart.FileHeader) (map[string][]*attachment.Attachment, []*attachment.Attachment) {
	if len(files) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	byName := make(map[string][]*attachment.Attachment, len(files))
	var all []*attachment.Attachment
	for _, name := range names {
		for _, fh := range files[name] {
			a := attachment.FromFileHeader(name, fh)
			byName[name] = append(byName[name], a)
			all = append(all, a)
		}
	}
	return byName, all
}

// releasingRenderer releases request resources after rendering.
type releasingRenderer struct {
	endpoint.Renderer
	release func() error
}

func (rr *releasingRenderer) Close() error { return rr.release() }
