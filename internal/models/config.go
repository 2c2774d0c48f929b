package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConfigStatus string

const (
	StatusModified ConfigStatus = "modified"
	StatusApplied  ConfigStatus = "applied"
	StatusError    ConfigStatus = "error"
)

// Config — конфигурация одного устройства: локальный NetJSON плюс
// упорядоченный список шаблонов (см. TemplateAssignment).
type Config struct {
	ID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Name  string     `gorm:"size:64;not null;index" json:"name"`
	MAC   string     `gorm:"size:17" json:"mac_address"`

	// Key — идентификатор для URL отчётов о статусе (не секрет транспорта).
	Key string `gorm:"size:64;index" json:"key"`

	Backend string         `gorm:"size:64;not null" json:"backend"`
	Config  datatypes.JSON `gorm:"type:jsonb" json:"config"`

	// Context — локальные переменные конфига, перекрывают default_values шаблонов.
	Context datatypes.JSONMap `gorm:"type:jsonb" json:"context"`

	Status ConfigStatus `gorm:"size:16;not null;default:modified" json:"status"`

	// Результат последнего рендера (artifact + checksum).
	RenderedConfig   []byte     `gorm:"type:bytea" json:"-"`
	RenderedChecksum string     `gorm:"size:64" json:"rendered_checksum,omitempty"`
	RenderedAt       *time.Time `json:"rendered_at,omitempty"`

	// Заполняется при выборке, в БД не хранится.
	Templates []Template `gorm:"-" json:"templates,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Config) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
