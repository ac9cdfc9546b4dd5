package server

import (
	"crypto/subtle"
	"net/http"
)

const apiKeyHeader = "x-api-key"

// requireAPIKey rejects requests whose x-api-key header does not match the
// configured master key.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.validKey(r.Header.Get(apiKeyHeader)) {
			s.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPIKeyOrQuery also accepts the key as the api_key query parameter.
func (s *Server) requireAPIKeyOrQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if !s.validKey(key) {
			s.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validKey(key string) bool {
	want := s.cfg.Auth.MasterKey
	if key == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(want)) == 1
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("remote_addr", r.RemoteAddr).
		Str("path", r.URL.Path).
		Msg("Rejected request with invalid API key")
	w.Header().Set("Content-Type", "application/json")
	writeDetail(w, http.StatusUnauthorized, "UNAUTHORIZED")
}
