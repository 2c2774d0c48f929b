package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "reqid"

// RequestID прокидывает X-Request-Id (или генерирует новый) в контекст
// и в ответ — для склейки логов по запросу.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID достаёт id запроса из контекста; пустая строка, если
// middleware не отработал.
func GetRequestID(r *http.Request) string {
	v := r.Context().Value(requestIDKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
