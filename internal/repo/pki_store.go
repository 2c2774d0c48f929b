package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/models"
)

type PKIStore struct{ db *gorm.DB }

func NewPKIStore(db *gorm.DB) *PKIStore { return &PKIStore{db: db} }

func (s *PKIStore) GetCA(ctx context.Context, id uuid.UUID) (*models.Ca, error) {
	var ca models.Ca
	if err := conn(ctx, s.db).Where("id = ?", id).First(&ca).Error; err != nil {
		return nil, notFound(err, "ca %s", id)
	}
	return &ca, nil
}

func (s *PKIStore) ListCAs(ctx context.Context, orgID *uuid.UUID) ([]models.Ca, error) {
	q := conn(ctx, s.db)
	if orgID != nil {
		q = q.Where("org_id IS NULL OR org_id = ?", *orgID)
	}
	var cas []models.Ca
	err := q.Order("name asc").Find(&cas).Error
	return cas, err
}

// GetOrCreateCA отдаёт CA по имени либо создаёт его через create.
func (s *PKIStore) GetOrCreateCA(ctx context.Context, name string, create func() (*models.Ca, error)) (*models.Ca, error) {
	var ca models.Ca
	if err := conn(ctx, s.db).Where("name = ?", name).First(&ca).Error; err == nil {
		return &ca, nil
	}
	newCA, err := create()
	if err != nil {
		return nil, err
	}
	if err := conn(ctx, s.db).Create(newCA).Error; err != nil {
		return nil, err
	}
	return newCA, nil
}

func (s *PKIStore) SaveCert(ctx context.Context, c *models.Cert) error {
	return conn(ctx, s.db).Create(c).Error
}

func (s *PKIStore) GetCert(ctx context.Context, id uuid.UUID) (*models.Cert, error) {
	var c models.Cert
	if err := conn(ctx, s.db).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, "cert %s", id)
	}
	return &c, nil
}
