package endpoint

import (
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mnehpets/httprpc/codec"
	"github.com/mnehpets/httprpc/value"
)

// rows yields n integers and then fails with err, if set.
type rows struct {
	n   int
	err error
}

func (s rows) All() iter.Seq2[value.Value, error] {
	return func(yield func(value.Value, error) bool) {
		for i := 0; i < s.n; i++ {
			if !yield(value.Int(int64(i)), nil) {
				return
			}
		}
		if s.err != nil {
			yield(value.Null(), s.err)
		}
	}
}

func serveValue(v value.Value, c codec.Codec) *httptest.ResponseRecorder {
	h := Handler(func(_ http.ResponseWriter, _ *http.Request) (Renderer, error) {
		return &ValueRenderer{Value: v, Codec: c}, nil
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestValueRenderer_JSON(t *testing.T) {
	rec := serveValue(value.Seq(rows{n: 3}), codec.JSON{})

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected Content-Type %q, got %q", "application/json", got)
	}
	if got := rec.Body.String(); got != "[0,1,2]\n" {
		t.Fatalf("expected body %q, got %q", "[0,1,2]\n", got)
	}
	if got := resp.Trailer.Get(ErrorTrailer); got != "" {
		t.Fatalf("expected no error trailer, got %q", got)
	}
}

func TestValueRenderer_MidStreamFailure_SetsTrailer(t *testing.T) {
	rec := serveValue(value.Seq(rows{n: 2, err: errors.New("fetch failed\nat row 2")}), codec.JSON{})

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected committed status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if got := rec.Body.String(); got != "[0,1" {
		t.Fatalf("expected truncated body %q, got %q", "[0,1", got)
	}
	if got := resp.Trailer.Get(ErrorTrailer); got != "fetch failed at row 2" {
		t.Fatalf("expected error trailer, got %q", got)
	}
}

func TestValueRenderer_ShapeError_IsNotAcceptable(t *testing.T) {
	m := value.Map(value.NewObject(1).Set("a", value.Int(1)))
	rec := serveValue(m, codec.Text{})

	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("expected status %d, got %d", http.StatusNotAcceptable, rec.Code)
	}
	if got := rec.Result().Header.Get("Trailer"); got != "" {
		t.Fatalf("expected no trailer declaration, got %q", got)
	}
}

func TestValueRenderer_EndpointErrorBeforeOutput_KeepsStatus(t *testing.T) {
	failing := rows{err: Error(http.StatusServiceUnavailable, "database unavailable", nil)}
	rec := serveValue(value.Seq(failing), codec.Text{})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestValueRenderer_TextCharset(t *testing.T) {
	rec := serveValue(value.Text("hi"), codec.Text{})
	if got := rec.Result().Header.Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("expected Content-Type %q, got %q", "text/plain; charset=utf-8", got)
	}
	if got := rec.Body.String(); got != "hi" {
		t.Fatalf("expected body %q, got %q", "hi", got)
	}
}

func TestValueRenderer_NullWithEmptyEncoding_StillCommits(t *testing.T) {
	h := Handler(func(_ http.ResponseWriter, _ *http.Request) (Renderer, error) {
		return &ValueRenderer{Status: http.StatusAccepted, Value: value.Null(), Codec: codec.Text{}}, nil
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
}
