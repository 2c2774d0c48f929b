package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"strata/internal/models"
)

type VpnStore struct{ db *gorm.DB }

func NewVpnStore(db *gorm.DB) *VpnStore { return &VpnStore{db: db} }

func (s *VpnStore) Get(ctx context.Context, id uuid.UUID) (*models.Vpn, error) {
	var v models.Vpn
	if err := conn(ctx, s.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, notFound(err, "vpn %s", id)
	}
	return &v, nil
}

func (s *VpnStore) List(ctx context.Context, orgID *uuid.UUID) ([]models.Vpn, error) {
	q := conn(ctx, s.db)
	if orgID != nil {
		q = q.Where("org_id IS NULL OR org_id = ?", *orgID)
	}
	var vpns []models.Vpn
	err := q.Order("name asc").Find(&vpns).Error
	return vpns, err
}

func (s *VpnStore) Create(ctx context.Context, v *models.Vpn) error {
	return conn(ctx, s.db).Create(v).Error
}

func (s *VpnStore) Save(ctx context.Context, v *models.Vpn) error {
	return conn(ctx, s.db).Save(v).Error
}

// VpnClientStore — членства конфигов в VPN.
type VpnClientStore struct{ db *gorm.DB }

func NewVpnClientStore(db *gorm.DB) *VpnClientStore { return &VpnClientStore{db: db} }

func (s *VpnClientStore) ForConfig(ctx context.Context, configID uuid.UUID) ([]models.VpnClient, error) {
	var clients []models.VpnClient
	err := conn(ctx, s.db).Where("config_id = ?", configID).Find(&clients).Error
	return clients, err
}

func (s *VpnClientStore) Create(ctx context.Context, c *models.VpnClient) error {
	return conn(ctx, s.db).Create(c).Error
}

func (s *VpnClientStore) Delete(ctx context.Context, vpnID, configID uuid.UUID) error {
	return conn(ctx, s.db).
		Where("vpn_id = ? AND config_id = ?", vpnID, configID).
		Delete(&models.VpnClient{}).Error
}
