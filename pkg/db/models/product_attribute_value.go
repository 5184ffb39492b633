package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/enums"
)

// ProductAttributeValue is the pivot row carrying per-variant price and
// stock. It is the source of truth for Product.Variants.
type ProductAttributeValue struct {
	ProductID        uuid.UUID        `gorm:"column:product_id;type:uuid;primaryKey"`
	AttributeValueID uuid.UUID        `gorm:"column:attribute_value_id;type:uuid;primaryKey;index"`
	PriceDelta       decimal.Decimal  `gorm:"column:price_delta;type:numeric(12,2);not null;default:0"`
	BasePrice        *decimal.Decimal `gorm:"column:base_price;type:numeric(12,2)"`
	Markup           *decimal.Decimal `gorm:"column:markup;type:numeric(12,2)"`
	MarkupType       enums.MarkupType `gorm:"column:markup_type;not null;default:'percentage'"`
	Stock            int              `gorm:"column:stock;not null;default:0"`
	StockInTotal     int              `gorm:"column:stock_in_total;not null;default:0"`
	StockOutTotal    int              `gorm:"column:stock_out_total;not null;default:0"`
	Image            *string          `gorm:"column:image"`
	AttributeValue   *AttributeValue  `gorm:"foreignKey:AttributeValueID"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductAttributeValue) TableName() string {
	return "product_attribute_values"
}
