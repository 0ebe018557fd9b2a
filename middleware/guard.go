// Package middleware provides net/http integration for the authentication
// engine: a bearer-token guard that validates access tokens and stashes the
// resulting identity on the request context.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	authcore "github.com/quantconsole/authcore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the identity attached by Guard.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// Guard rejects requests without a valid bearer access token. On success
// the request context carries the AuthResult plus the client IP and
// User-Agent, so downstream engine calls see the caller's network identity.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithRequestIdentity(r.Context(), r)
			res, err := engine.ValidateAccess(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestIdentity copies the request's client IP and User-Agent onto
// ctx in the form the engine reads. Use it directly on unauthenticated
// endpoints (login, register, refresh) that bypass Guard.
func WithRequestIdentity(ctx context.Context, r *http.Request) context.Context {
	ctx = authcore.WithClientIP(ctx, clientIP(r))
	return authcore.WithUserAgent(ctx, r.UserAgent())
}

func clientIP(r *http.Request) string {
	// First hop in X-Forwarded-For when present; RemoteAddr otherwise.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
