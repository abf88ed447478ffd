/**
 * @description
 * This file contains custom middleware for the HTTP router. The adapter's
 * management endpoints are meant for the ledger platform only, so they are
 * guarded by a shared secret carried in the Authorization header, using the
 * same `Token <key>` scheme the adapter itself uses towards Rehive.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdapterTokenMiddleware creates a middleware that validates the shared
// adapter secret. An empty configured secret disables the endpoints entirely
// rather than leaving them open.
func AdapterTokenMiddleware(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretKey == "" {
				http.Error(w, "Management API disabled", http.StatusForbidden)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Token ")
			if token == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(secretKey)) != 1 {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
