package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attribute is a catalog-wide variant dimension such as color or size. Name
// and slug are unique among live attributes only, so a tombstoned name can
// be reused.
type Attribute struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name      string           `gorm:"column:name;not null;uniqueIndex:idx_attributes_name,where:deleted_at IS NULL"`
	Slug      string           `gorm:"column:slug;not null;uniqueIndex:idx_attributes_slug,where:deleted_at IS NULL"`
	Values    []AttributeValue `gorm:"foreignKey:AttributeID"`
	DeletedAt gorm.DeletedAt   `gorm:"column:deleted_at;index"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Attribute) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
