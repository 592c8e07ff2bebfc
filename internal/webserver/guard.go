package webserver

import (
	"crypto/subtle"
	"net/http"
)

// CheckCredentials authenticates a request against the configured secret.
// The secret is read from the X-Auth-Secret header, falling back to the
// `secret` query parameter. With auth disabled every request passes; with an
// empty configured secret every mutating request is rejected, so an unset
// secret never means an open console.
func (s *Server) CheckCredentials(r *http.Request) bool {
	if s.cfg.NoAuth() {
		return true
	}

	secret := s.cfg.Secret()
	if secret == "" {
		return false
	}

	supplied := r.Header.Get("X-Auth-Secret")
	if supplied == "" {
		supplied = r.URL.Query().Get("secret")
	}

	return subtle.ConstantTimeCompare([]byte(supplied), []byte(secret)) == 1
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"result": "error",
		"reason": "invalid credentials",
	})
}
