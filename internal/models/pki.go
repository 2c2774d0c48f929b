package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Ca struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Name      string     `gorm:"size:64;uniqueIndex;not null" json:"name"`
	CertPEM   []byte     `json:"-"`
	KeyPEM    []byte     `json:"-"`
	NotBefore time.Time  `json:"not_before"`
	NotAfter  time.Time  `json:"not_after"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Ca) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Cert struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID     *uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	CaID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"ca_id"`
	CN        string     `gorm:"size:64;not null" json:"common_name"`
	CertPEM   []byte     `json:"-"`
	KeyPEM    []byte     `json:"-"`
	Revoked   bool       `gorm:"default:false" json:"revoked"`
	NotBefore time.Time  `json:"not_before"`
	NotAfter  time.Time  `json:"not_after"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cert) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
