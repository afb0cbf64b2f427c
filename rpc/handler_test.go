package rpc

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/mnehpets/httprpc/attachment"
	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/value"
)

type uploadInfo struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Count    int    `json:"count"`
}

type fixture struct {
	handler  *Handler
	rows     *closingList
	uploaded *attachment.Attachment
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rows: &closingList{List: value.ListOf(value.Int(1), value.Int(2))}}
	table := mustTable(t,
		Definition{Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		Definition{Path: "/sum", Func: sumAll, Params: []string{"values"}},
		Definition{Method: "POST", Path: "/sum", Func: sum, Params: []string{"a", "b"}},
		Definition{Path: "/void", Func: func() {}},
		Definition{Path: "/null", Func: func() *uploadInfo { return nil }},
		Definition{Path: "/admin", Func: func() string { return "ok" }, Authorize: RequireRole("admin")},
		Definition{Path: "/conflict", Func: func() error { return endpoint.Error(http.StatusConflict, "taken", nil) }},
		Definition{Path: "/panic", Func: func() int { panic("secret detail") }},
		Definition{Path: "/rows", Func: func() *closingList { return f.rows }},
		Definition{
			Path:      "/stats",
			Func:      func() map[string]int { return map[string]int{"count": 2} },
			Templates: []Template{{Name: "stats.html", ContentType: "text/html"}},
		},
		Definition{
			Method: "POST",
			Path:   "/upload",
			Func: func(ctx context.Context, file *attachment.Attachment) uploadInfo {
				f.uploaded = file
				return uploadInfo{FileName: file.FileName(), Size: file.Size(), Count: len(Attachments(ctx))}
			},
			Params: []string{"file"},
		},
	)
	views := NewViewSet(fstest.MapFS{
		"stats.html": {Data: []byte(`<p>{{.count}}</p>`)},
	})
	f.handler = NewHandler(table, WithViews(views))
	return f
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Query(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.handler, httptest.NewRequest("GET", "/sum?a=1&b=2", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "3\n" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = serve(f.handler, httptest.NewRequest("GET", "/sum?values=1&values=2&values=3.5", nil))
	if rec.Body.String() != "6.5\n" {
		t.Fatalf("expected sumAll overload, got %q", rec.Body.String())
	}
}

func TestHandler_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		status int
	}{
		{"unknown path", "GET", "/missing", http.StatusNotFound},
		{"unknown verb", "DELETE", "/sum", http.StatusMethodNotAllowed},
		{"bad number", "GET", "/sum?a=x&b=1", http.StatusBadRequest},
		{"anonymous admin", "GET", "/admin", http.StatusForbidden},
		{"handler status", "GET", "/conflict", http.StatusConflict},
		{"panic", "GET", "/panic", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.handler, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	rec := serve(f.handler, httptest.NewRequest("DELETE", "/sum", nil))
	if allow := rec.Header().Get("Allow"); allow != "GET, POST" {
		t.Fatalf("unexpected Allow header %q", allow)
	}
	rec = serve(f.handler, httptest.NewRequest("GET", "/conflict", nil))
	if body := strings.TrimSpace(rec.Body.String()); body != "taken" {
		t.Fatalf("expected handler message, got %q", body)
	}
	rec = serve(f.handler, httptest.NewRequest("GET", "/panic", nil))
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("panic detail leaked to the client: %q", rec.Body.String())
	}
}

func TestHandler_VoidAndNull(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.handler, httptest.NewRequest("GET", "/void", nil))
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
	}
	rec = serve(f.handler, httptest.NewRequest("GET", "/null", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "null\n" {
		t.Fatalf("expected null, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandler_Negotiation(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/sum?a=1&b=2", nil)
	req.Header.Set("Accept", "application/xml")
	rec := serve(f.handler, req)
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<root>3</root>") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/sum?a=1&b=2", nil)
	req.Header.Set("Accept", "image/png")
	if rec := serve(f.handler, req); rec.Code != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %d", rec.Code)
	}
}

func TestHandler_Template(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Accept", "text/html")
	rec := serve(f.handler, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "<p>2</p>" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/stats", nil)
	req.Header.Set("Accept", "*/*")
	rec = serve(f.handler, req)
	if rec.Body.String() != "{\"count\":2}\n" {
		t.Fatalf("expected codec output for */*, got %q", rec.Body.String())
	}
}

func TestHandler_JSONBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/sum", strings.NewReader(`{"a": 1.5, "b": 2}`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(f.handler, req); rec.Body.String() != "3.5\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	req = httptest.NewRequest("POST", "/sum", strings.NewReader(`[4, 5]`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(f.handler, req); rec.Body.String() != "9\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	req = httptest.NewRequest("POST", "/sum", strings.NewReader(`{"a":`))
	req.Header.Set("Content-Type", "application/json")
	if rec := serve(f.handler, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestHandler_JSONBodyLimits(t *testing.T) {
	f := newFixture(t)
	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/sum", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(f.handler, req)
	}

	if rec := post(""); rec.Code != http.StatusOK || rec.Body.String() != "0\n" {
		t.Fatalf("expected empty body to bind defaults, got %d %q", rec.Code, rec.Body.String())
	}
	for _, body := range []string{`{"a":`, `[1,`, `{"a":1`, `{`} {
		if rec := post(body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}

	f.handler.MaxFormMemory = 8
	if rec := post(`{"a": 1, "b": 2}`); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for oversized body, got %d", rec.Code)
	}
}

func TestHandler_Form(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/sum", strings.NewReader("a=2&b=5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := serve(f.handler, req); rec.Body.String() != "7\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_MultipartAttachment(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("hello"))
	mw.Close()

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(f.handler, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "{\"fileName\":\"notes.txt\",\"size\":5,\"count\":1}\n" {
		t.Fatalf("unexpected body %q", got)
	}
	if f.uploaded == nil {
		t.Fatal("operation did not run")
	}
	if _, err := f.uploaded.Open(); err == nil {
		t.Fatal("expected attachment to be released after the response")
	}
}

func TestHandler_ReleasesClosableResults(t *testing.T) {
	f := newFixture(t)

	rec := serve(f.handler, httptest.NewRequest("GET", "/rows", nil))
	if rec.Body.String() != "[1,2]\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if f.rows.closed != 1 {
		t.Fatalf("expected result closed once, got %d", f.rows.closed)
	}
}
