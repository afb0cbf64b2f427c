package endpoint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
)

func okEndpoint(_ http.ResponseWriter, _ *http.Request) (Renderer, error) {
	return &StringRenderer{Body: "ok"}, nil
}

func failWith(err error) EndpointFunc {
	return func(http.ResponseWriter, *http.Request) (Renderer, error) { return nil, err }
}

// setHeader is a processor that sets a response header and continues.
func setHeader(key, val string) Processor {
	return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
		w.Header().Set(key, val)
		return next(w, r)
	})
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestHandler_Status(t *testing.T) {
	tests := []struct {
		name   string
		h      http.Handler
		status int
		body   string
	}{
		{"ok", Handler(okEndpoint), http.StatusOK, "ok"},
		{"handle func", HandleFunc(okEndpoint), http.StatusOK, "ok"},
		{"nil endpoint", &EndpointHandler{}, http.StatusInternalServerError, ""},
		{"nil renderer", Handler(func(http.ResponseWriter, *http.Request) (Renderer, error) { return nil, nil }), http.StatusInternalServerError, ""},
		{"nil processor", Handler(okEndpoint, nil), http.StatusInternalServerError, ""},
		{"endpoint error", Handler(failWith(Error(http.StatusConflict, "taken", nil))), http.StatusConflict, "taken"},
		{"status text fallback", Handler(failWith(Error(http.StatusNotFound, "", errors.New("missing")))), http.StatusNotFound, "Not Found"},
		{"invalid status", Handler(failWith(Error(0, "bad status", nil))), http.StatusInternalServerError, "bad status"},
		{"plain error hidden", Handler(failWith(errors.New("dsn=secret"))), http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.h)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.body != "" && strings.TrimSpace(rec.Body.String()) != tt.body {
				t.Fatalf("expected body %q, got %q", tt.body, rec.Body.String())
			}
		})
	}
}

func TestHandler_ProcessorsRunInOrder(t *testing.T) {
	var seen []string
	trace := func(name string) Processor {
		return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
			seen = append(seen, name)
			return next(w, r)
		})
	}
	h := Handler(func(_ http.ResponseWriter, r *http.Request) (Renderer, error) {
		seen = append(seen, "endpoint")
		return &StringRenderer{Body: r.Header.Get("X-Added")}, nil
	},
		trace("first"),
		ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
			r.Header.Set("X-Added", "yes")
			return next(w, r)
		}),
		setHeader("X-Two", "2"),
		trace("last"),
	)
	rec := serve(h)

	if got := strings.Join(seen, ","); got != "first,last,endpoint" {
		t.Fatalf("unexpected order %s", got)
	}
	if rec.Body.String() != "yes" || rec.Header().Get("X-Two") != "2" {
		t.Fatalf("processor changes lost: %q %v", rec.Body.String(), rec.Header())
	}
}

func TestHandler_ProcessorErrorStopsChain(t *testing.T) {
	calls := 0
	h := Handler(func(http.ResponseWriter, *http.Request) (Renderer, error) {
		calls++
		return &StringRenderer{Body: "ok"}, nil
	},
		ProcessorFunc(func(http.ResponseWriter, *http.Request, func(http.ResponseWriter, *http.Request) error) error {
			calls++
			return Error(http.StatusForbidden, "nope", errors.New("forbidden"))
		}),
		ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
			calls++
			return next(w, r)
		}),
	)
	rec := serve(h)

	if rec.Code != http.StatusForbidden || strings.TrimSpace(rec.Body.String()) != "nope" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if calls != 1 {
		t.Fatalf("expected only the failing processor to run, got %d calls", calls)
	}
}

func TestError_KeepsExistingEndpointError(t *testing.T) {
	root := errors.New("root")
	inner := Error(http.StatusTeapot, "teapot", root)
	if outer := Error(http.StatusBadRequest, "bad", inner); outer != inner {
		t.Fatalf("expected the existing EndpointError, got %v", outer)
	}
	if status, msg := StatusOf(inner); status != http.StatusTeapot || msg != "teapot" {
		t.Fatalf("expected 418 teapot, got %d %q", status, msg)
	}
	if errors.Unwrap(inner) != root {
		t.Fatalf("expected cause preserved, got %v", errors.Unwrap(inner))
	}
	if inner.Error() != "teapot: root" {
		t.Fatalf("unexpected message %q", inner.Error())
	}
}

type closingRenderer struct {
	StringRenderer
	closed int
	fail   bool
}

func (c *closingRenderer) Render(w http.ResponseWriter, r *http.Request) error {
	if c.fail {
		return errors.New("render failed")
	}
	return c.StringRenderer.Render(w, r)
}

func (c *closingRenderer) Close() error {
	c.closed++
	return nil
}

func TestHandler_ClosesRenderer(t *testing.T) {
	for _, fail := range []bool{false, true} {
		cr := &closingRenderer{StringRenderer: StringRenderer{Body: "ok"}, fail: fail}
		rec := serve(Handler(func(http.ResponseWriter, *http.Request) (Renderer, error) { return cr, nil }))
		if cr.closed != 1 {
			t.Fatalf("fail=%v: expected renderer closed once, got %d", fail, cr.closed)
		}
		if fail && rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rec.Code)
		}
	}
}

func TestHandler_ErrorAfterCommitKeepsResponse(t *testing.T) {
	rec := serve(Handler(func(http.ResponseWriter, *http.Request) (Renderer, error) {
		return RendererFunc(func(w http.ResponseWriter, _ *http.Request) error {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("partial"))
			return errors.New("late failure")
		}), nil
	}))
	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestDefer_HooksRunBeforeHeaders(t *testing.T) {
	var order []string
	hook := func(name string) Processor {
		return ProcessorFunc(func(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
			Defer(r.Context(), func(w http.ResponseWriter) {
				order = append(order, name)
				http.SetCookie(w, &http.Cookie{Name: name, Value: "1", Path: "/"})
			})
			return next(w, r)
		})
	}
	h := Handler(func(http.ResponseWriter, *http.Request) (Renderer, error) {
		return RendererFunc(func(w http.ResponseWriter, _ *http.Request) error {
			order = append(order, "render")
			w.WriteHeader(http.StatusOK)
			return nil
		}), nil
	}, hook("a"), hook("b"))
	rec := serve(h)

	if got := strings.Join(order, ","); got != "b,a,render" {
		t.Fatalf("unexpected order %s", got)
	}
	cookies := rec.Result().Header.Values("Set-Cookie")
	sort.Strings(cookies)
	if len(cookies) != 2 || !strings.HasPrefix(cookies[0], "a=1") || !strings.HasPrefix(cookies[1], "b=1") {
		t.Fatalf("unexpected cookies %v", cookies)
	}
}

func TestDefer_HooksRunOnError(t *testing.T) {
	ran := false
	h := Handler(okEndpoint, ProcessorFunc(func(w http.ResponseWriter, r *http.Request, _ func(http.ResponseWriter, *http.Request) error) error {
		Defer(r.Context(), func(w http.ResponseWriter) {
			ran = true
			w.Header().Set("X-Hook", "ran")
		})
		return errors.New("processor error")
	}))
	rec := serve(h)

	if rec.Code != http.StatusInternalServerError || !ran || rec.Header().Get("X-Hook") != "ran" {
		t.Fatalf("expected hook on failure, got %d %v", rec.Code, ran)
	}
}

func TestDefer_NoOpOutsideHandler(t *testing.T) {
	Defer(context.Background(), func(http.ResponseWriter) { t.Fatal("hook must not run") })
	Commit(context.Background(), httptest.NewRecorder())
}
