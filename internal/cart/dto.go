package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// CartDTO is the storefront view of a cart.
type CartDTO struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Items     []CartItemDTO   `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CartItemDTO struct {
	ID          uuid.UUID           `json:"id"`
	ProductID   uuid.UUID           `json:"product_id"`
	ProductName string              `json:"product_name,omitempty"`
	Image       *string             `json:"image,omitempty"`
	Quantity    int                 `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
	Selections  []pricing.Selection `json:"selections"`
	Variants    types.VariantRefs   `json:"variants"`
}

// NewCartDTO builds the DTO; a nil cart renders as empty.
func NewCartDTO(record *models.Cart, userID uuid.UUID) *CartDTO {
	dto := &CartDTO{UserID: userID, Items: []CartItemDTO{}, Subtotal: decimal.Zero}
	if record == nil {
		return dto
	}
	dto.ID = record.ID
	dto.UpdatedAt = record.UpdatedAt
	for _, item := range record.Items {
		line := newCartItemDTO(item)
		dto.Items = append(dto.Items, line)
		dto.ItemCount += item.Quantity
		dto.Subtotal = dto.Subtotal.Add(line.Subtotal)
	}
	return dto
}

func newCartItemDTO(item models.CartItem) CartItemDTO {
	selections, err := pricing.ParseSelectionKey(item.SelectionKey)
	if err != nil || selections == nil {
		selections = []pricing.Selection{}
	}
	variants := item.Variants
	if variants == nil {
		variants = types.VariantRefs{}
	}
	dto := CartItemDTO{
		ID:         item.ID,
		ProductID:  item.ProductID,
		Quantity:   item.Quantity,
		UnitPrice:  item.UnitPrice,
		Subtotal:   item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		Selections: selections,
		Variants:   variants,
	}
	if item.Product != nil {
		dto.ProductName = item.Product.Name
		dto.Image = item.Product.Image
	}
	return dto
}
