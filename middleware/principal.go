package middleware

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mnehpets/httprpc/endpoint"
	"github.com/mnehpets/httprpc/rpc"
)

// DefaultPrincipalTTL is the lifetime given to refreshed principal cookies.
const DefaultPrincipalTTL = 24 * time.Hour

// MaxPrincipalLifetime bounds how long a principal may stay signed in
// through refreshes.
const MaxPrincipalLifetime = 90 * 24 * time.Hour

// PrincipalProcessor places the principal from a sealed cookie on the
// request context, where rpc.UserName, rpc.UserRoles and Definition.Authorize
// see it. Requests without a valid cookie continue anonymously.
//
// A cookie that fails to open is cleared. A cookie with less than
// RefreshThreshold remaining is re-issued for TTL, but never past
// MaxPrincipalLifetime from its first issue.
type PrincipalProcessor struct {
	Cookie           *PrincipalCookie
	TTL              time.Duration
	RefreshThreshold time.Duration
	Logger           *zap.Logger
}

// NewPrincipalProcessor returns a processor reading cookies with c.
func NewPrincipalProcessor(c *PrincipalCookie) *PrincipalProcessor {
	return &PrincipalProcessor{
		Cookie:           c,
		TTL:              DefaultPrincipalTTL,
		RefreshThreshold: DefaultPrincipalTTL / 4,
	}
}

func (p *PrincipalProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	if p.Cookie == nil {
		return errors.New("middleware: PrincipalProcessor requires a PrincipalCookie")
	}
	raw, err := r.Cookie(p.Cookie.Name)
	if err != nil {
		return next(w, r)
	}

	cl, err := p.Cookie.read(raw)
	if err != nil {
		p.logger().Debug("discarding principal cookie", zap.Error(err))
		endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
			http.SetCookie(w, p.Cookie.Clear())
		})
		return next(w, r)
	}

	if refreshed, ok := p.refresh(cl, time.Now()); ok {
		endpoint.Defer(r.Context(), func(w http.ResponseWriter) {
			c, err := p.Cookie.issue(refreshed)
			if err != nil {
				p.logger().Warn("refreshing principal cookie", zap.Error(err))
				return
			}
			http.SetCookie(w, c)
		})
	}

	ctx := rpc.WithPrincipal(r.Context(), rpc.Principal{Name: cl.Name, Roles: cl.Roles})
	return next(w, r.WithContext(ctx))
}

// refresh reports the re-issued claims when cl is close to expiry.
func (p *PrincipalProcessor) refresh(cl claims, now time.Time) (claims, bool) {
	ttl, threshold := p.TTL, p.RefreshThreshold
	if ttl <= 0 || threshold <= 0 || threshold > ttl {
		return cl, false
	}
	if cl.Expires.Sub(now) >= threshold {
		return cl, false
	}
	expires := now.Add(ttl).Truncate(time.Second)
	if limit := cl.Issued.Add(MaxPrincipalLifetime); expires.After(limit) {
		expires = limit
	}
	if !expires.After(cl.Expires) {
		return cl, false
	}
	cl.Expires = expires
	return cl, true
}

func (p *PrincipalProcessor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

var _ endpoint.Processor = (*PrincipalProcessor)(nil)
