package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// authMiddleware enforces Bearer token authentication on the API routes.
// An empty apiKey disables auth entirely; the server logs a startup warning
// in that case rather than warning per request.
//
// Callers must send:
//
//	Authorization: Bearer <apiKey>
//
// Failures get 401 with a WWW-Authenticate challenge. Presented token values
// are never logged, only whether a token was present.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			rejectUnauthorized(w, r, `Bearer realm="docqa"`, "authorization required", false)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			rejectUnauthorized(w, r, `Bearer realm="docqa" error="invalid_token"`, "invalid token", true)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rejectUnauthorized writes the 401 challenge and records the failure.
func rejectUnauthorized(w http.ResponseWriter, r *http.Request, challenge, msg string, tokenPresent bool) {
	logging.FromContext(r.Context()).Warn("auth: rejected request",
		slog.String("path", r.URL.Path),
		slog.Bool("token_present", tokenPresent),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, msg, http.StatusUnauthorized)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "" when the header is absent or not a Bearer scheme.
func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(hdr, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
