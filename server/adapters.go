package server

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/engine"
	"strata/internal/models"
	"strata/internal/pki"
	"strata/internal/repo"
)

// Составные интерфейсы хранилищ: объединяют, что нужно движку,
// рендереру и admin API. Им удовлетворяют и gorm-хранилища, и память.
type templateStore interface {
	engine.TemplateStore
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Template, error)
}

type configStore interface {
	engine.ConfigStore
	ByKey(ctx context.Context, key string) (*models.Config, error)
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Config, error)
	SaveRendered(ctx context.Context, id uuid.UUID, artifact []byte, checksum string) error
}

type vpnStore interface {
	engine.VpnStore
	List(ctx context.Context, orgID *uuid.UUID) ([]models.Vpn, error)
}

type orgStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	List(ctx context.Context) ([]models.Organization, error)
	Create(ctx context.Context, o *models.Organization) error
	Settings(ctx context.Context, orgID uuid.UUID) (*models.OrgConfigSettings, error)
	SaveSettings(ctx context.Context, st *models.OrgConfigSettings) error
}

type pkiStore interface {
	pki.Store
	GetCert(ctx context.Context, id uuid.UUID) (*models.Cert, error)
	ListCAs(ctx context.Context, orgID *uuid.UUID) ([]models.Ca, error)
}

// stores — полный набор хранилищ приложения. tx == nil означает
// безтранзакционный режим (память): движок выполняет всё inline.
type stores struct {
	templates templateStore
	configs   configStore
	vpns      vpnStore
	clients   engine.VpnClientStore
	orgs      orgStore
	pkis      pkiStore
	tx        engine.TxRunner
}

func gormStores(db *gorm.DB) stores {
	return stores{
		templates: repo.NewTemplateStore(db),
		configs:   repo.NewConfigStore(db),
		vpns:      repo.NewVpnStore(db),
		clients:   repo.NewVpnClientStore(db),
		orgs:      repo.NewOrgStore(db),
		pkis:      repo.NewPKIStore(db),
		tx:        repo.NewTx(db),
	}
}

func memoryStores() stores {
	m := repo.NewMemory()
	return stores{
		templates: m.Templates(),
		configs:   m.Configs(),
		vpns:      m.Vpns(),
		clients:   m.VpnClients(),
		orgs:      m.Orgs(),
		pkis:      m.PKI(),
	}
}
