package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"stream-renamer/work/logger"
	"stream-renamer/work/utils"
)

// BasicAuthMiddleware guards a handler with HTTP basic auth. The password is
// checked against a bcrypt hash; the user name is ignored.
func BasicAuthMiddleware(passwordHash string, next http.HandlerFunc) http.HandlerFunc {
	hash := []byte(passwordHash)

	return func(w http.ResponseWriter, r *http.Request) {
		// preflight carries no credentials
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok || len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			if ok {
				logger.Warn("{middleware - BasicAuthMiddleware} rejected credentials from %s", utils.ClientIP(r))
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="stream-renamer"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
