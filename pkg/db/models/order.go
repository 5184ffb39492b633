package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Order is a storefront checkout awaiting review by an admin.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Subtotal        decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost    decimal.Decimal   `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingAddress string            `gorm:"column:shipping_address;not null"`
	City            string            `gorm:"column:city;not null;default:''"`
	Department      *string           `gorm:"column:department"`
	Phone           string            `gorm:"column:phone;not null;default:''"`
	ShippingDate    *time.Time        `gorm:"column:shipping_date"`
	Notes           *string           `gorm:"column:notes"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

type OrderItem struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Quantity  int               `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Variants  types.VariantRefs `gorm:"column:variants"`
	Product   *Product          `gorm:"foreignKey:ProductID"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
