package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// SaleDTO is the API view of a sale.
type SaleDTO struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Notes         *string         `json:"notes,omitempty"`
	Items         []SaleItemDTO   `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleItemDTO struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"product_id"`
	ProductName string            `json:"product_name,omitempty"`
	Barcode     string            `json:"barcode,omitempty"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unit_price"`
	Subtotal    decimal.Decimal   `json:"subtotal"`
	Variants    types.VariantRefs `json:"variants"`
}

// SaleList is a page of sales.
type SaleList struct {
	Sales      []SaleDTO `json:"sales"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func NewSaleDTO(sale *models.Sale) *SaleDTO {
	dto := &SaleDTO{
		ID:            sale.ID,
		UserID:        sale.UserID,
		Total:         sale.Total,
		PaymentMethod: sale.PaymentMethod.String(),
		Notes:         sale.Notes,
		Items:         make([]SaleItemDTO, 0, len(sale.Items)),
		CreatedAt:     sale.CreatedAt,
	}
	for _, item := range sale.Items {
		variants := item.Variants
		if variants == nil {
			variants = types.VariantRefs{}
		}
		line := SaleItemDTO{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
			Variants:  variants,
		}
		if item.Product != nil {
			line.ProductName = item.Product.Name
			line.Barcode = item.Product.Barcode
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
