package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Slug      string    `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrgConfigSettings — настройки регистрации per-organization.
// SharedSecret выдаётся один раз при создании (см. secrets.GenerateKey).
type OrgConfigSettings struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID               uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"organization_id"`
	RegistrationEnabled bool      `gorm:"default:true" json:"registration_enabled"`
	SharedSecret        string    `gorm:"size:32;uniqueIndex;not null" json:"shared_secret"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (s *OrgConfigSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
