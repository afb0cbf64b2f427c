package natsrpc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   natsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func startBridge(t *testing.T, configure func(*Bridge)) *Client {
	t.Helper()
	nc := startTestServer(t)

	table, err := rpc.NewTable(rpc.Group{
		{Path: "/sum", Func: func(a, b float64) float64 { return a + b }, Params: []string{"a", "b"}},
		{Method: "POST", Path: "/items/{id}", Func: func(id string, n int) map[string]any {
			return map[string]any{"id": id, "n": n}
		}, Params: []string{"id", "n"}},
		{Method: "DELETE", Path: "/items/{id}", Func: func(id string) {}, Params: []string{"id"}},
		{Path: "/who", Func: func(ctx context.Context) string { return rpc.UserName(ctx) }},
		{Path: "/locale", Func: func(ctx context.Context) string { return rpc.Locale(ctx).String() }},
		{Path: "/request", Func: func(ctx context.Context) string { return rpc.RequestID(ctx) }},
		{Path: "/conflict", Func: func() error { return endpoint.Error(http.StatusConflict, "taken", nil) }},
		{Path: "/boom", Func: func() error { return errors.New("secret") }},
	})
	if err != nil {
		t.Fatal(err)
	}

	b := NewBridge(nc, &rpc.Dispatcher{Table: table})
	if configure != nil {
		configure(b)
	}
	sub, err := b.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := nc.Flush(); err != nil {
		t.Fatal(err)
	}
	return &Client{Conn: nc}
}

func call(t *testing.T, c *Client, verb, path string, query url.Values, body any) *Reply {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := c.Call(ctx, verb, path, query, body)
	if err != nil {
		t.Fatalf("%s %s: %v", verb, path, err)
	}
	return r
}

func TestBridge_Calls(t *testing.T) {
	c := startBridge(t, nil)

	r := call(t, c, "GET", "/sum", url.Values{"a": {"1"}, "b": {"2"}}, nil)
	if r.Status != http.StatusOK || string(r.Body) != "3\n" || r.ContentType != "application/json" {
		t.Fatalf("unexpected reply %d %q %q", r.Status, r.ContentType, r.Body)
	}

	r = call(t, c, "GET", "/sum", nil, []float64{1.5, 2})
	if string(r.Body) != "3.5\n" {
		t.Fatalf("unexpected positional reply %q", r.Body)
	}

	r = call(t, c, "POST", "/items/7", nil, map[string]int{"n": 3})
	if string(r.Body) != `{"id":"7","n":3}`+"\n" {
		t.Fatalf("unexpected item reply %q", r.Body)
	}

	r = call(t, c, "DELETE", "/items/7", nil, nil)
	if r.Status != http.StatusNoContent || len(r.Body) != 0 || r.Err() != nil {
		t.Fatalf("unexpected void reply %d %q", r.Status, r.Body)
	}
}

func TestBridge_Errors(t *testing.T) {
	c := startBridge(t, nil)

	tests := []struct {
		name    string
		verb    string
		path    string
		body    any
		status  int
		message string
	}{
		{"unknown path", "GET", "/missing", nil, http.StatusNotFound, ""},
		{"wrong verb", "PUT", "/sum", nil, http.StatusMethodNotAllowed, ""},
		{"bad value", "GET", "/sum", map[string]string{"a": "x"}, http.StatusBadRequest, ""},
		{"scalar payload", "GET", "/sum", 3, http.StatusBadRequest, "payload must be a JSON object or array"},
		{"endpoint error", "GET", "/conflict", nil, http.StatusConflict, "taken"},
		{"handler error", "GET", "/boom", nil, http.StatusInternalServerError, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := call(t, c, tt.verb, tt.path, nil, tt.body)
			if r.Status != tt.status {
				t.Fatalf("got status %d, want %d", r.Status, tt.status)
			}
			var ce *CallError
			if !errors.As(r.Err(), &ce) || ce.Status != tt.status {
				t.Fatalf("expected call error, got %v", r.Err())
			}
			if tt.message != "" && ce.Message != tt.message {
				t.Fatalf("got message %q, want %q", ce.Message, tt.message)
			}
		})
	}

	r := call(t, c, "PUT", "/sum", nil, nil)
	if r.Header.Get("Allow") != "GET" {
		t.Fatalf("expected Allow header, got %q", r.Header.Get("Allow"))
	}
}

func TestBridge_Negotiation(t *testing.T) {
	c := startBridge(t, nil)
	c.Header = nats.Header{}

	c.Header.Set("Accept", "application/xml")
	r := call(t, c, "GET", "/sum", url.Values{"a": {"1"}, "b": {"2"}}, nil)
	if r.ContentType != "application/xml" {
		t.Fatalf("unexpected content type %q", r.ContentType)
	}

	c.Header.Set("Accept", "image/png")
	r = call(t, c, "GET", "/sum", nil, nil)
	if r.Status != http.StatusNotAcceptable {
		t.Fatalf("got status %d, want 406", r.Status)
	}
}

func TestBridge_RequestContext(t *testing.T) {
	c := startBridge(t, func(b *Bridge) {
		b.Locales = []language.Tag{language.English, language.French}
		b.Identify = func(h nats.Header) (rpc.Principal, bool, error) {
			switch h.Get(PrincipalHeader) {
			case "":
				return rpc.Principal{}, false, nil
			case "tjones":
				return rpc.Principal{Name: "tjones"}, true, nil
			}
			return rpc.Principal{}, false, errors.New("unknown principal")
		}
	})

	r := call(t, c, "GET", "/who", nil, nil)
	if string(r.Body) != `""`+"\n" {
		t.Fatalf("expected anonymous caller, got %q", r.Body)
	}

	c.Header = nats.Header{}
	c.Header.Set(PrincipalHeader, "tjones")
	c.Header.Set("Accept-Language", "fr-CH")
	c.Header.Set(RequestIDHeader, "req-1")
	if r = call(t, c, "GET", "/who", nil, nil); string(r.Body) != `"tjones"`+"\n" {
		t.Fatalf("expected named caller, got %q", r.Body)
	}
	if r = call(t, c, "GET", "/locale", nil, nil); string(r.Body) != `"fr"`+"\n" {
		t.Fatalf("expected negotiated locale, got %q", r.Body)
	}
	if r = call(t, c, "GET", "/request", nil, nil); string(r.Body) != `"req-1"`+"\n" || r.Header.Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected request id carried, got %q", r.Body)
	}

	c.Header.Set(PrincipalHeader, "intruder")
	if r = call(t, c, "GET", "/who", nil, nil); r.Status != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", r.Status)
	}
}

func TestRouteAndSubject(t *testing.T) {
	tests := []struct {
		subject    string
		verb, path string
		ok         bool
	}{
		{"rpc.GET.items.7", "GET", "/items/7", true},
		{"rpc.post.items", "POST", "/items", true},
		{"rpc.GET", "GET", "/", true},
		{"rpc.", "", "", false},
		{"other.GET.items", "", "", false},
	}
	for _, tt := range tests {
		verb, path, ok := Route("rpc", tt.subject)
		if verb != tt.verb || path != tt.path || ok != tt.ok {
			t.Errorf("Route(%q) = %q %q %v", tt.subject, verb, path, ok)
		}
	}
	if got := Subject("rpc", "get", "/items/7"); got != "rpc.GET.items.7" {
		t.Errorf("unexpected subject %q", got)
	}
	if got := Subject("rpc", "GET", "/"); got != "rpc.GET" {
		t.Errorf("unexpected root subject %q", got)
	}
}
