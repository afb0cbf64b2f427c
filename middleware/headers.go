package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// APIHeaders sets response headers suited to machine clients: nosniff, no
// referrer, a CSP that forbids active content, and optionally HSTS.
//
// Operations that render HTML templates usually want a looser
// ContentSecurityPolicy.
type APIHeaders struct {
	// HSTSMaxAge enables Strict-Transport-Security when positive (seconds).
	HSTSMaxAge int
	// ContentSecurityPolicy; empty disables the header.
	ContentSecurityPolicy string
	ReferrerPolicy        string
}

// NewAPIHeaders returns APIHeaders with a one-year HSTS policy.
func NewAPIHeaders() *APIHeaders {
	return &APIHeaders{
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}
}

func (p *APIHeaders) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	if p.HSTSMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(p.HSTSMaxAge)+"; includeSubDomains")
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	return next(w, r)
}

// CORS answers cross-origin requests for the operations of a Table.
//
// Preflight requests are answered directly with 204; the allowed methods are
// the verbs registered for the requested path. The request id header and
// the error trailer are exposed to scripts.
type CORS struct {
	Table *rpc.Table
	// AllowedOrigins lists exact origins; "*" allows any origin unless
	// AllowCredentials is set.
	AllowedOrigins   []string
	AllowedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

var defaultCORSHeaders = []string{"Accept", "Accept-Language", "Content-Type", RequestIDHeader}

func (c *CORS) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return next(w, r)
	}
	h := w.Header()
	h.Add("Vary", "Origin")
	allowed := c.allowOrigin(origin)
	if allowed == "" {
		return next(w, r)
	}
	h.Set("Access-Control-Allow-Origin", allowed)
	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
		h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+endpoint.ErrorTrailer)
		return next(w, r)
	}

	methods, err := c.methods(r.URL.Path)
	if err != nil {
		return err
	}
	h.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	headers := c.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	h.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	if c.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
	}
	return endpoint.Error(http.StatusNoContent, "", nil)
}

func (c *CORS) allowOrigin(origin string) string {
	if slices.Contains(c.AllowedOrigins, origin) {
		return origin
	}
	if slices.Contains(c.AllowedOrigins, "*") && !c.AllowCredentials {
		return "*"
	}
	return ""
}

// methods lists the verbs registered for path.
func (c *CORS) methods(path string) ([]string, error) {
	if c.Table == nil {
		return []string{http.MethodGet, http.MethodPost}, nil
	}
	_, err := c.Table.Resolve(http.MethodOptions, path)
	var mna *rpc.MethodNotAllowedError
	switch {
	case err == nil:
		return []string{http.MethodOptions}, nil
	case errors.As(err, &mna):
		return mna.Allowed, nil
	}
	return nil, rpc.HTTPError(err)
}

var (
	_ endpoint.Processor = (*APIHeaders)(nil)
	_ endpoint.Processor = (*CORS)(nil)
)
