package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"strata/internal/models"
)

// BearerAuth закрывает admin API статическим токеном:
// Authorization: Bearer <token>. Пустой токен отключает проверку
// (режим разработки).
func BearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			const p = "Bearer "
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, p) ||
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, p)), []byte(token)) != 1 {
				models.WriteProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
