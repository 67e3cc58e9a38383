package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/contacts-api/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// A package-private key type means no other package can read or shadow the
// value stored under it, even if it picks the same string.
type contextKey string

const userKey contextKey = "user"

// Authenticator resolves a bearer token to the user it was issued for.
// service.AuthService implements it; the middleware only needs this one method.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// unauthorizedBody is the JSON body of every 401 produced by the middleware.
const unauthorizedBody = `{"error":"unauthorized","message":"Could not validate credentials"}`

// RequireAuth is a middleware that enforces bearer-token authentication.
//
// It reads "Authorization: Bearer <token>", asks the Authenticator for the
// user and stores it in the request context. A missing or malformed header,
// an invalid or expired token, or a token for a user that no longer exists
// all end the request with 401 and a "WWW-Authenticate: Bearer" challenge.
// The middleware keeps no state between requests.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil || user == nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the token from the Authorization header.
// The scheme is matched case-insensitively (RFC 7235).
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
// It returns (nil, false) outside a RequireAuth-protected route.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}
