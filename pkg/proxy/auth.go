package proxy

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

func bearerToken(h http.Header) string {
	auth := h.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// secretMatches compares in constant time. An empty secret never matches.
func secretMatches(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// authAPIMiddleware rejects /v1 calls before any credential or upstream work.
func (s *Server) authAPIMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !secretMatches(bearerToken(r.Header), s.cfg.Password) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid_request_error")
			return
		}
		next.ServeHTTP(w, r)
	})
}
