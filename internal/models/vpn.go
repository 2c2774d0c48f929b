package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type VpnBackend string

const (
	VpnOpenVPN   VpnBackend = "openvpn"
	VpnWireGuard VpnBackend = "wireguard"
)

// Vpn — VPN-сервер, к которому vpn-шаблоны подключают устройства.
// CA обязателен (через него выпускаются клиентские сертификаты).
type Vpn struct {
	ID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Name  string     `gorm:"size:64;not null;uniqueIndex" json:"name"`

	Backend VpnBackend     `gorm:"size:16;not null" json:"backend"`
	Host    string         `gorm:"size:255;not null" json:"host"`
	Port    int            `gorm:"default:1194" json:"port"`
	Config  datatypes.JSON `gorm:"type:jsonb" json:"config"`

	CaID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"ca_id"`
	CertID *uuid.UUID `gorm:"type:uuid" json:"cert_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Vpn) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// VpnClient — членство конфига в VPN. Создаётся при назначении vpn-шаблона,
// удаляется при снятии. Пара (VpnID, ConfigID) уникальна.
type VpnClient struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	VpnID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uniq_vpn_config" json:"vpn_id"`
	ConfigID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uniq_vpn_config" json:"config_id"`
	CertID   *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"cert_id"`

	// Ключевая пара WireGuard-клиента (для openvpn пустые).
	PrivateKey string `gorm:"size:64" json:"-"`
	PublicKey  string `gorm:"size:64" json:"public_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (c *VpnClient) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
