package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware rejects requests without a valid "Authorization: Bearer"
// header.
type Middleware struct {
	validator *TokenValidator
	logger    *slog.Logger
}

// NewMiddleware creates a middleware checking tokens against v.
func NewMiddleware(v *TokenValidator) *Middleware {
	return &Middleware{
		validator: v,
		logger:    slog.Default().With("component", "auth"),
	}
}

// Handle wraps next.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.validator.Validate(BearerToken(r)); err != nil {
			m.logger.Warn("rejected request",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="policysync"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken returns the token of the Authorization header, or "".
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
