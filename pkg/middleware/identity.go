package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sharmash3/restaurant-review-be/pkg/httputil"
)

// Headers injected by the API gateway once the caller has been authenticated.
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserName       = "X-User-Name"
	HeaderUserGivenName  = "X-User-Given-Name"
	HeaderUserFamilyName = "X-User-Family-Name"
)

type identityKeyType struct{}

var identityKey identityKeyType

// Identity is the already-authenticated caller as described by gateway headers.
type Identity struct {
	ID         string
	Username   string
	GivenName  string
	FamilyName string
}

// GatewayIdentity reads identity headers into the request context. Requests
// without X-User-ID pass through anonymously; use RequireIdentity on routes
// that need a caller.
func GatewayIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		ident := Identity{
			ID:         id,
			Username:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
			GivenName:  strings.TrimSpace(r.Header.Get(HeaderUserGivenName)),
			FamilyName: strings.TrimSpace(r.Header.Get(HeaderUserFamilyName)),
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

// RequireIdentity rejects requests that carry no caller identity with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithIdentity stores ident in ctx.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext returns the caller identity set by GatewayIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok && ident.ID != ""
}

// UserIDFromContext returns the caller's user ID, or "" when anonymous.
func UserIDFromContext(ctx context.Context) string {
	ident, _ := IdentityFromContext(ctx)
	return ident.ID
}
