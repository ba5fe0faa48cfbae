package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type sessionKey struct{}

// SessionIssuer creates fresh session ids.
type SessionIssuer interface {
	NewSession(ctx context.Context) string
}

// SessionMiddleware resolves the session id from the cookie named name,
// issuing a new one when it is absent or not a valid id.
func SessionMiddleware(issuer SessionIssuer, name string, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionFromCookie(r, name)
			if sid == "" {
				sid = issuer.NewSession(r.Context())
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    sid,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sid)))
		})
	}
}

// WithSession returns a copy of ctx carrying sid.
func WithSession(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sid)
}

// SessionID returns the session id stored in ctx, or "".
func SessionID(ctx context.Context) string {
	sid, _ := ctx.Value(sessionKey{}).(string)
	return sid
}

func sessionFromCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}
	return id.String()
}
