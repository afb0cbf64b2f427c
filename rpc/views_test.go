package rpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/value"
)

func renderView(t *testing.T, vs *ViewSet, ctx context.Context, tmpl Template, v value.Value) *httptest.ResponseRecorder {
	t.Helper()
	r, err := vs.Renderer(ctx, tmpl, v)
	if err != nil {
		t.Fatalf("Renderer: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := r.Render(rec, httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return rec
}

func TestViewSet_Localized(t *testing.T) {
	vs := NewViewSet(fstest.MapFS{
		"greet.txt":       {Data: []byte("hello {{.}}")},
		"greet_en_AU.txt": {Data: []byte("g'day {{.}}")},
		"greet_fr.txt":    {Data: []byte("bonjour {{.}}")},
	})
	tmpl := Template{Name: "greet.txt", ContentType: "text/plain"}
	name := value.Text("sam")

	tests := []struct {
		tag  language.Tag
		want string
	}{
		{language.Und, "hello sam"},
		{language.MustParse("en-AU"), "g'day sam"},
		{language.MustParse("en-GB"), "hello sam"},
		{language.MustParse("fr-CA"), "bonjour sam"},
	}
	for _, tt := range tests {
		ctx := context.Background()
		if tt.tag != language.Und {
			ctx = WithLocale(ctx, tt.tag)
		}
		rec := renderView(t, vs, ctx, tmpl, name)
		if got := rec.Body.String(); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.tag, tt.want, got)
		}
	}
}

func TestViewSet_HTMLEscapes(t *testing.T) {
	vs := NewViewSet(fstest.MapFS{
		"item.html": {Data: []byte(`<p>{{.name}}</p>`)},
	})
	v := value.Map(value.NewObject(1).Set("name", value.Text("<b>")))
	rec := renderView(t, vs, context.Background(), Template{Name: "item.html", ContentType: "text/html"}, v)

	if got := rec.Body.String(); got != "<p>&lt;b&gt;</p>" {
		t.Fatalf("expected escaped output, got %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestViewSet_JSONFunc(t *testing.T) {
	vs := NewViewSet(fstest.MapFS{
		"data.txt": {Data: []byte(`data: {{json .}}`)},
	})
	v := value.Seq(value.ListOf(value.Int(1), value.Text("a")))
	rec := renderView(t, vs, context.Background(), Template{Name: "data.txt", ContentType: "text/plain"}, v)
	if got := rec.Body.String(); got != `data: [1,"a"]` {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestViewSet_MissingTemplate(t *testing.T) {
	vs := NewViewSet(fstest.MapFS{})
	if _, err := vs.Renderer(context.Background(), Template{Name: "nope.html", ContentType: "text/html"}, value.Null()); err == nil {
		t.Fatal("expected error for missing template")
	}
}
