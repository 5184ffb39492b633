package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// Engine prices variant selections against a product's pivot rows. It never
// touches storage: callers load (and lock) the rows it reads.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// ResolvedSelection is a selection matched to its pivot row. The pivot moves
// by the quantity of the quote it belongs to.
type ResolvedSelection struct {
	Pivot *models.ProductAttributeValue
}

// Quote is the priced form of one line.
type Quote struct {
	ProductID  uuid.UUID
	Quantity   int
	UnitPrice  decimal.Decimal
	Subtotal   decimal.Decimal
	Selections []ResolvedSelection
	Variants   types.VariantRefs
}

// Quote computes unit_price = product.price + Σ pivot.price_delta for the
// selected values. pivots must carry their AttributeValue (and its
// Attribute); a pivot whose value is missing or tombstoned counts as absent.
func (e *Engine) Quote(product *models.Product, pivots []models.ProductAttributeValue, quantity int, selections []Selection) (*Quote, error) {
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "quantity must be positive, got %d", quantity).
			WithDetails(map[string]any{"product_id": product.ID, "quantity": quantity})
	}

	byValue := make(map[uuid.UUID]*models.ProductAttributeValue, len(pivots))
	for i := range pivots {
		if pivots[i].ProductID == product.ID {
			byValue[pivots[i].AttributeValueID] = &pivots[i]
		}
	}

	quote := &Quote{
		ProductID:  product.ID,
		Quantity:   quantity,
		UnitPrice:  product.Price,
		Selections: make([]ResolvedSelection, 0, len(selections)),
		Variants:   make(types.VariantRefs, 0, len(selections)),
	}

	seen := make(map[uuid.UUID]struct{}, len(selections))
	for _, sel := range selections {
		if _, dup := seen[sel.AttributeValueID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "attribute value selected more than once").
				WithDetails(map[string]any{"product_id": product.ID, "attribute_value_id": sel.AttributeValueID})
		}
		seen[sel.AttributeValueID] = struct{}{}

		if sel.Quantity < 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "selection quantity must be positive, got %d", sel.Quantity).
				WithDetails(map[string]any{"product_id": product.ID, "attribute_value_id": sel.AttributeValueID})
		}
		if sel.Quantity != 0 && sel.Quantity != quantity {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
				"selection quantity %d does not match line quantity %d", sel.Quantity, quantity).
				WithDetails(map[string]any{
					"product_id":         product.ID,
					"attribute_value_id": sel.AttributeValueID,
					"quantity":           quantity,
				})
		}

		pivot, ok := byValue[sel.AttributeValueID]
		if !ok || !isLive(pivot) {
			return nil, unknownVariant(product.ID, sel.AttributeValueID)
		}

		quote.UnitPrice = quote.UnitPrice.Add(pivot.PriceDelta)
		quote.Selections = append(quote.Selections, ResolvedSelection{Pivot: pivot})
		quote.Variants = append(quote.Variants, VariantRef(pivot))
	}

	quote.Subtotal = quote.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return quote, nil
}

// CheckFeasibility verifies the product and every selected pivot can cover
// the quote on their own.
func (e *Engine) CheckFeasibility(product *models.Product, quote *Quote) error {
	demand := NewDemand()
	demand.Add(quote)
	return demand.Check(map[uuid.UUID]*models.Product{product.ID: product})
}

// VariantRef snapshots a pivot for movement and line records.
func VariantRef(pivot *models.ProductAttributeValue) types.VariantRef {
	ref := types.VariantRef{
		AttributeValueID: pivot.AttributeValueID,
		PriceDelta:       pivot.PriceDelta.StringFixed(2),
	}
	if value := pivot.AttributeValue; value != nil {
		ref.Value = value.Name
		if value.Attribute != nil {
			ref.Attribute = value.Attribute.Name
		}
	}
	return ref
}

// EffectivePrice applies a markup to a base price: percentage gives
// base × (1 + markup/100), manual gives base + markup.
func EffectivePrice(base, markup decimal.Decimal, markupType enums.MarkupType) decimal.Decimal {
	if markupType == enums.MarkupTypeManual {
		return base.Add(markup).Round(2)
	}
	return base.Mul(decimal.NewFromInt(1).Add(markup.Div(hundred))).Round(2)
}

// VariantPrice is the display price of one variant. A pivot with its own
// positive base price is priced from it; otherwise the product price plus
// delta.
func VariantPrice(product *models.Product, pivot *models.ProductAttributeValue) decimal.Decimal {
	if pivot.BasePrice != nil && pivot.BasePrice.IsPositive() {
		markup := decimal.Zero
		if pivot.Markup != nil {
			markup = *pivot.Markup
		}
		return EffectivePrice(*pivot.BasePrice, markup, pivot.MarkupType)
	}
	return product.Price.Add(pivot.PriceDelta)
}

func isLive(pivot *models.ProductAttributeValue) bool {
	value := pivot.AttributeValue
	if value == nil || value.DeletedAt.Valid {
		return false
	}
	return value.Attribute == nil || !value.Attribute.DeletedAt.Valid
}

func unknownVariant(productID, valueID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeUnknownVariant,
		fmt.Sprintf("attribute value %s is not offered by product %s", valueID, productID)).
		WithDetails(map[string]any{"product_id": productID, "attribute_value_id": valueID})
}
