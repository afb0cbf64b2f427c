package rpc

import (
	"context"
	"slices"

	"golang.org/x/text/language"

	"github.com/mnehpets/httprpc/attachment"
)

// Principal is the authenticated caller. Authentication itself happens
// outside this package; a processor places the principal on the context.
type Principal struct {
	Name  string
	Roles []string
}

type principalKey struct{}
type localeKey struct{}
type requestIDKey struct{}
type attachmentsKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal on ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserName returns the caller's name, or "" for an anonymous request.
func UserName(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.Name
}

// UserRoles returns the caller's roles.
func UserRoles(ctx context.Context) []string {
	p, _ := PrincipalFrom(ctx)
	return slices.Clone(p.Roles)
}

// HasRole reports whether the caller holds role.
func HasRole(ctx context.Context, role string) bool {
	p, _ := PrincipalFrom(ctx)
	return slices.Contains(p.Roles, role)
}

// RequireRole returns an authorization predicate for Definition.Authorize.
func RequireRole(role string) func(context.Context) bool {
	return func(ctx context.Context) bool { return HasRole(ctx, role) }
}

// WithLocale returns a context carrying the negotiated locale.
func WithLocale(ctx context.Context, tag language.Tag) context.Context {
	return context.WithValue(ctx, localeKey{}, tag)
}

// Locale returns the negotiated locale, or language.Und when none was set.
func Locale(ctx context.Context) language.Tag {
	if tag, ok := ctx.Value(localeKey{}).(language.Tag); ok {
		return tag
	}
	return language.Und
}

// WithRequestID returns a context carrying the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithAttachments returns a context carrying the request's uploads.
func WithAttachments(ctx context.Context, as []*attachment.Attachment) context.Context {
	return context.WithValue(ctx, attachmentsKey{}, as)
}

// Attachments returns every upload of the current request, grouped by field
// name.
func Attachments(ctx context.Context) []*attachment.Attachment {
	as, _ := ctx.Value(attachmentsKey{}).([]*attachment.Attachment)
	return as
}
