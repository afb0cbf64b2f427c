package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/convert"
	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeForbidden reports an operation the caller may not invoke.
	CodeForbidden = -32003
	// CodeServerError carries an HTTP status from an *endpoint.EndpointError
	// in Data.
	CodeServerError = -32000
)

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 1 << 20

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return e.Message
}

func NewError(code int, message string) *JSONRPCError {
	return &JSONRPCError{Code: code, Message: message}
}

// Endpoint serves the operations of a dispatcher over JSON-RPC 2.0.
// Use endpoint.Handler(e.Endpoint, processors...) to create an http.Handler.
//
// A method names an operation as "VERB /path", or "/path" for GET. Object
// params bind by name and array params by position, exactly as a JSON body
// does over plain HTTP.
type Endpoint struct {
	Dispatcher   *rpc.Dispatcher
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// NewEndpoint returns an Endpoint for d.
func NewEndpoint(d *rpc.Dispatcher) *Endpoint {
	return &Endpoint{Dispatcher: d, MaxBodyBytes: DefaultMaxBodyBytes}
}

// Endpoint is the endpoint function that processes JSON-RPC requests.
func (e *Endpoint) Endpoint(w http.ResponseWriter, r *http.Request) (endpoint.Renderer, error) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, endpoint.Error(http.StatusMethodNotAllowed, "JSON-RPC requires POST method", nil)
	}
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		return nil, endpoint.Error(http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
	}

	limit := e.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, endpoint.Error(http.StatusRequestEntityTooLarge, "request body too large", err)
		}
		return nil, endpoint.Error(http.StatusBadRequest, "unreadable request body", err)
	}
	return e.handleBody(r.Context(), body), nil
}

// handleBody processes a single or batch request.
func (e *Endpoint) handleBody(ctx context.Context, body []byte) endpoint.Renderer {
	body = bytes.TrimSpace(body)
	var reqs []json.RawMessage
	single := true

	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return &jsonrpcRenderer{err: NewError(CodeParseError, "parse error")}
		}
		single = false
	} else {
		if !json.Valid(body) {
			return &jsonrpcRenderer{err: NewError(CodeParseError, "parse error")}
		}
		reqs = []json.RawMessage{body}
	}
	if len(reqs) == 0 {
		return &jsonrpcRenderer{err: NewError(CodeInvalidRequest, "invalid request")}
	}

	responses := make([]response, 0, len(reqs))
	for _, raw := range reqs {
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses = append(responses, response{JSONRPC: "2.0", Error: NewError(CodeInvalidRequest, "invalid request")})
			continue
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			responses = append(responses, response{JSONRPC: "2.0", Error: NewError(CodeInvalidRequest, "invalid request"), ID: req.ID})
			continue
		}

		result, err := e.invoke(ctx, req.Method, req.Params)
		// Notification: no id means no response expected.
		if req.ID == nil {
			continue
		}
		resp := response{JSONRPC: "2.0", ID: req.ID}
		if err != nil {
			resp.Error = e.mapError(req.Method, err)
		} else {
			resp.Result = result
		}
		responses = append(responses, resp)
	}

	if len(responses) == 0 {
		return &jsonrpcRenderer{noContent: true}
	}
	return &jsonrpcRenderer{responses: responses, single: single}
}

// ParseMethod splits a method name into verb and path.
func ParseMethod(method string) (verb, path string, ok bool) {
	method = strings.TrimSpace(method)
	if strings.HasPrefix(method, "/") {
		return http.MethodGet, method, true
	}
	verb, path, ok = strings.Cut(method, " ")
	path = strings.TrimSpace(path)
	if !ok || verb == "" || !strings.HasPrefix(path, "/") {
		return "", "", false
	}
	return strings.ToUpper(verb), path, true
}

func (e *Endpoint) invoke(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	verb, path, ok := ParseMethod(method)
	if !ok {
		return nil, NewError(CodeMethodNotFound, "method not found: "+method)
	}

	args := &rpc.Args{}
	if p := bytes.TrimSpace(params); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if p[0] != '{' && p[0] != '[' {
			return nil, NewError(CodeInvalidParams, "params must be an object or an array")
		}
		body, err := codec.ReadJSON(bytes.NewReader(p))
		if err != nil {
			return nil, NewError(CodeInvalidParams, "invalid params")
		}
		args.Body = body
	}

	res, err := e.Dispatcher.Dispatch(ctx, verb, path, args)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	if res.Void {
		return json.RawMessage("null"), nil
	}
	out, err := codec.MarshalJSON(res.Value)
	if err != nil {
		return nil, &rpc.HandlerError{Method: res.Operation.Method, Path: res.Operation.Path, Err: err}
	}
	return out, nil
}

// mapError converts dispatch failures to JSON-RPC errors. A *JSONRPCError
// returned by an operation keeps its code.
func (e *Endpoint) mapError(method string, err error) *JSONRPCError {
	var (
		je  *JSONRPCError
		nf  *rpc.NotFoundError
		mna *rpc.MethodNotAllowedError
		fb  *rpc.ForbiddenError
		amb *rpc.AmbiguousRouteError
		ce  *convert.ConversionError
		ee  *endpoint.EndpointError
	)
	switch {
	case errors.As(err, &je):
		return je
	case errors.As(err, &nf), errors.As(err, &mna):
		return NewError(CodeMethodNotFound, "method not found: "+method)
	case errors.As(err, &fb):
		return NewError(CodeForbidden, fb.Error())
	case errors.As(err, &amb), errors.As(err, &ce):
		return NewError(CodeInvalidParams, err.Error())
	case errors.As(err, &ee):
		status, msg := endpoint.StatusOf(ee)
		if status < http.StatusInternalServerError {
			return &JSONRPCError{Code: CodeServerError, Message: msg, Data: map[string]int{"status": status}}
		}
	}
	e.logger().Error("jsonrpc call failed", zap.String("method", method), zap.Error(err))
	return NewError(CodeInternalError, "internal error")
}

func (e *Endpoint) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
	ID      any             `json:"id"`
}

// jsonrpcRenderer renders JSON-RPC responses.
type jsonrpcRenderer struct {
	responses []response
	single    bool
	noContent bool
	err       *JSONRPCError
}

func (r *jsonrpcRenderer) Render(w http.ResponseWriter, req *http.Request) error {
	if r.noContent {
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	switch {
	case r.err != nil:
		return enc.Encode(response{JSONRPC: "2.0", Error: r.err})
	case r.single:
		return enc.Encode(r.responses[0])
	}
	return enc.Encode(r.responses)
}
