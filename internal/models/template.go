package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TemplateType string

const (
	TemplateGeneric TemplateType = "generic"
	TemplateVPN     TemplateType = "vpn"
)

// Template — переиспользуемый фрагмент NetJSON-конфигурации.
// OrgID == nil означает общий (shared) шаблон: его видят все организации.
type Template struct {
	ID    uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID *uuid.UUID   `gorm:"type:uuid;index;uniqueIndex:uniq_template_org_name" json:"organization_id"`
	Name  string       `gorm:"size:64;not null;uniqueIndex:uniq_template_org_name" json:"name"`
	Type  TemplateType `gorm:"size:16;not null;default:generic" json:"type"`

	Backend string         `gorm:"size:64;not null" json:"backend"`
	Config  datatypes.JSON `gorm:"type:jsonb" json:"config"`

	// DefaultValues подставляются в контекст каждого зависимого конфига
	// (локальные переменные конфига имеют приоритет).
	DefaultValues datatypes.JSONMap `gorm:"type:jsonb" json:"default_values"`

	// Default-шаблоны автоматически вешаются на новые конфиги своей организации.
	Default bool `gorm:"default:false" json:"default"`

	// Поля VPN-шаблонов. AutoCert — выпускать клиентский сертификат на каждый конфиг.
	AutoCert bool       `gorm:"default:false" json:"auto_cert"`
	VpnID    *uuid.UUID `gorm:"type:uuid;index" json:"vpn_id"`
	Vpn      *Vpn       `gorm:"foreignKey:VpnID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TemplateAssignment — связка config↔template с порядком применения.
// SortOrder задаёт позицию шаблона в списке конфига (меньше — раньше).
type TemplateAssignment struct {
	ConfigID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"config_id"`
	TemplateID uuid.UUID `gorm:"type:uuid;primaryKey" json:"template_id"`
	SortOrder  int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}
