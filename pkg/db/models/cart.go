package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Cart is the single open cart of a storefront user.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_carts_user"`
	Items     []CartItem `gorm:"foreignKey:CartID"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CartItem is a product line; SelectionKey is the canonical encoding of the
// selected attribute values so equal selections merge into one line.
type CartItem struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CartID       uuid.UUID         `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:1"`
	ProductID    uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_line,priority:2"`
	SelectionKey string            `gorm:"column:selection_key;not null;default:'';uniqueIndex:idx_cart_items_line,priority:3"`
	Quantity     int               `gorm:"column:quantity;not null"`
	UnitPrice    decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Variants     types.VariantRefs `gorm:"column:variants"`
	Product      *Product          `gorm:"foreignKey:ProductID"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
