package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// StockMovement is an append-only audit row of a stock change.
type StockMovement struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index"`
	Type      enums.MovementType `gorm:"column:type;not null"`
	Quantity  int                `gorm:"column:quantity;not null"`
	Variants  types.VariantRefs  `gorm:"column:variants"`
	Reference *uuid.UUID         `gorm:"column:reference;type:uuid;index"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
