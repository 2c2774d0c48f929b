package health

import (
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"strata/internal/models"
)

// RegisterRoutes — базовый liveness.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", liveness).Methods(http.MethodGet)
}

// RegisterRoutesWithDB — liveness + readiness (проверка БД).
// Без БД readiness отвечает ok: in-memory режим всегда готов.
func RegisterRoutesWithDB(r *mux.Router, db *gorm.DB) {
	RegisterRoutes(r)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if db == nil {
			models.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "memory"})
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			models.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db handle error"})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			models.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
			return
		}
		models.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
	}).Methods(http.MethodGet)
}

func liveness(w http.ResponseWriter, _ *http.Request) {
	models.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
