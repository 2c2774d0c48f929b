// Package admin — JSON API поверх движка: организации, шаблоны, конфиги,
// VPN, PKI и настройки регистрации. Это слой постоянства/администрирования,
// который дергает операции движка; устройства сюда не ходят.
package admin

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"strata/config"
	"strata/internal/controller"
	"strata/internal/engine"
	"strata/internal/middleware"
	"strata/internal/models"
	"strata/internal/pki"
)

// Списки и выборки, которые нужны обработчикам помимо операций движка.
// Реализуются и gorm-хранилищами, и памятью.
type OrgDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	List(ctx context.Context) ([]models.Organization, error)
	Create(ctx context.Context, o *models.Organization) error
	Settings(ctx context.Context, orgID uuid.UUID) (*models.OrgConfigSettings, error)
	SaveSettings(ctx context.Context, st *models.OrgConfigSettings) error
}

type TemplateDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Template, error)
}

type ConfigDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Config, error)
	ByKey(ctx context.Context, key string) (*models.Config, error)
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Config, error)
	TemplatesOf(ctx context.Context, configID uuid.UUID) ([]models.Template, error)
}

type VpnDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Vpn, error)
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Vpn, error)
}

type CaDirectory interface {
	ListCAs(ctx context.Context, orgID *uuid.UUID) ([]models.Ca, error)
}

type Dependencies struct {
	Engine    *engine.Engine
	Renderer  *controller.Renderer
	Orgs      OrgDirectory
	Templates TemplateDirectory
	Configs   ConfigDirectory
	Vpns      VpnDirectory
	CAs       CaDirectory
	PKI       *pki.Service
	CFG       *config.Config
}

func Attach(r *mux.Router, d Dependencies) {
	h := &Handler{d: d}
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.BearerAuth(d.CFG.Admin.Token))

	api.HandleFunc("/organizations", h.OrgList).Methods(http.MethodGet)
	api.HandleFunc("/organizations", h.OrgCreate).Methods(http.MethodPost)
	api.HandleFunc("/organizations/{id}/settings", h.OrgSettingsGet).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{id}/settings", h.OrgSettingsUpdate).Methods(http.MethodPut)

	api.HandleFunc("/templates", h.TemplateList).Methods(http.MethodGet)
	api.HandleFunc("/templates", h.TemplateCreate).Methods(http.MethodPost)
	api.HandleFunc("/templates/{id}", h.TemplateGet).Methods(http.MethodGet)
	api.HandleFunc("/templates/{id}", h.TemplateUpdate).Methods(http.MethodPut)
	api.HandleFunc("/templates/{id}", h.TemplateDelete).Methods(http.MethodDelete)
	api.HandleFunc("/templates/{id}/clone", h.TemplateClone).Methods(http.MethodPost)

	api.HandleFunc("/configs", h.ConfigList).Methods(http.MethodGet)
	api.HandleFunc("/configs", h.ConfigCreate).Methods(http.MethodPost)
	api.HandleFunc("/configs/key/{key}/render", h.ConfigRenderByKey).Methods(http.MethodGet)
	api.HandleFunc("/configs/key/{key}/status", h.ConfigReportByKey).Methods(http.MethodPost)
	api.HandleFunc("/configs/{id}", h.ConfigGet).Methods(http.MethodGet)
	api.HandleFunc("/configs/{id}", h.ConfigUpdate).Methods(http.MethodPut)
	api.HandleFunc("/configs/{id}/templates", h.ConfigSetTemplates).Methods(http.MethodPut)
	api.HandleFunc("/configs/{id}/context", h.ConfigContext).Methods(http.MethodGet)
	api.HandleFunc("/configs/{id}/render", h.ConfigRender).Methods(http.MethodGet)
	api.HandleFunc("/configs/{id}/status", h.ConfigReportStatus).Methods(http.MethodPost)

	api.HandleFunc("/vpns", h.VpnList).Methods(http.MethodGet)
	api.HandleFunc("/vpns", h.VpnCreate).Methods(http.MethodPost)
	api.HandleFunc("/vpns/{id}", h.VpnGet).Methods(http.MethodGet)
	api.HandleFunc("/vpns/{id}", h.VpnUpdate).Methods(http.MethodPut)

	api.HandleFunc("/pki/cas", h.CaList).Methods(http.MethodGet)
	api.HandleFunc("/pki/cas", h.CaCreate).Methods(http.MethodPost)
}
