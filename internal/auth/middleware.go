package auth

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the cookie that carries the session token.
const CookieName = "token"

type contextKey struct{}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFromContext returns the actor resolved by Authenticate, or Anonymous.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(contextKey{}).(Actor)
	return actor
}

// Authenticate resolves the actor of every request. It never rejects: a
// missing or invalid token leaves the request anonymous, because reads are
// open to everyone. With tokens == nil (no JWT_SECRET) everyone is anonymous.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens != nil {
				if raw := tokenFromRequest(r); raw != "" {
					if userID, err := tokens.Validate(raw); err == nil {
						r = r.WithContext(WithActor(r.Context(), Actor{UserID: userID}))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth answers 401 for anonymous actors. It must run after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFromContext(r.Context()).Authenticated() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication credentials were not provided"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest prefers the Authorization header over the cookie.
func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}
