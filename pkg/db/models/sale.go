package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Sale is a committed point-of-sale transaction.
type Sale struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Total         decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Notes         *string             `gorm:"column:notes"`
	Items         []SaleItem          `gorm:"foreignKey:SaleID"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Sale) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// SaleItem is one sold line with the price captured at sale time.
type SaleItem struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SaleID    uuid.UUID         `gorm:"column:sale_id;type:uuid;not null;index"`
	ProductID uuid.UUID         `gorm:"column:product_id;type:uuid;not null;index"`
	Quantity  int               `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Variants  types.VariantRefs `gorm:"column:variants"`
	Product   *Product          `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (i *SaleItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
