package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttributeValue is one selectable value of an Attribute. PriceDelta is the
// catalog default a product association may opt into.
type AttributeValue struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	AttributeID uuid.UUID       `gorm:"column:attribute_id;type:uuid;not null;uniqueIndex:idx_attribute_values_attribute_slug,priority:1,where:deleted_at IS NULL"`
	Name        string          `gorm:"column:name;not null"`
	Slug        string          `gorm:"column:slug;not null;uniqueIndex:idx_attribute_values_attribute_slug,priority:2,where:deleted_at IS NULL"`
	PriceDelta  decimal.Decimal `gorm:"column:price_delta;type:numeric(12,2);not null;default:0"`
	Image       *string         `gorm:"column:image"`
	Attribute   *Attribute      `gorm:"foreignKey:AttributeID"`
	DeletedAt   gorm.DeletedAt  `gorm:"column:deleted_at;index"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *AttributeValue) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
