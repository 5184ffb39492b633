package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// OrderDTO is the API view of a web order.
type OrderDTO struct {
	ID              uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          string          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress string          `json:"shipping_address"`
	City            string          `json:"city"`
	Department      *string         `json:"department,omitempty"`
	Phone           string          `json:"phone"`
	Notes           *string         `json:"notes,omitempty"`
	ShippingDate    *time.Time      `json:"shipping_date,omitempty"`
	Items           []OrderItemDTO  `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type OrderItemDTO struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"product_id"`
	ProductName string            `json:"product_name,omitempty"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Variants    types.VariantRefs `json:"variants"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func NewOrderDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          order.Status.String(),
		Subtotal:        order.Subtotal,
		ShippingCost:    order.ShippingCost,
		Total:           order.Total,
		ShippingAddress: order.ShippingAddress,
		City:            order.City,
		Department:      order.Department,
		Phone:           order.Phone,
		Notes:           order.Notes,
		ShippingDate:    order.ShippingDate,
		Items:           make([]OrderItemDTO, 0, len(order.Items)),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		variants := item.Variants
		if variants == nil {
			variants = types.VariantRefs{}
		}
		line := OrderItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
			Variants:  variants,
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
