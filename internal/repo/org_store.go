package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/models"
	"strata/internal/secrets"
)

type OrgStore struct{ db *gorm.DB }

func NewOrgStore(db *gorm.DB) *OrgStore { return &OrgStore{db: db} }

func (s *OrgStore) Get(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	if err := conn(ctx, s.db).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, notFound(err, "organization %s", id)
	}
	return &o, nil
}

func (s *OrgStore) List(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	err := conn(ctx, s.db).Order("name asc").Find(&orgs).Error
	return orgs, err
}

func (s *OrgStore) Create(ctx context.Context, o *models.Organization) error {
	return conn(ctx, s.db).Create(o).Error
}

// Settings получает настройки организации, создавая запись с новым
// shared secret при первом обращении.
func (s *OrgStore) Settings(ctx context.Context, orgID uuid.UUID) (*models.OrgConfigSettings, error) {
	var st models.OrgConfigSettings
	err := conn(ctx, s.db).Where("org_id = ?", orgID).First(&st).Error
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	st = models.OrgConfigSettings{
		OrgID:               orgID,
		RegistrationEnabled: true,
		SharedSecret:        secrets.GenerateKey(),
	}
	if err := conn(ctx, s.db).Create(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *OrgStore) SaveSettings(ctx context.Context, st *models.OrgConfigSettings) error {
	return conn(ctx, s.db).Save(st).Error
}
