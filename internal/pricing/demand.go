package pricing

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
)

type pivotKey struct {
	productID uuid.UUID
	valueID   uuid.UUID
}

// Demand aggregates requested quantities across lines so that two lines of
// the same product or variant are checked against stock together.
type Demand struct {
	productOrder []uuid.UUID
	products     map[uuid.UUID]int
	pivotOrder   []pivotKey
	pivots       map[pivotKey]int
	pivotRows    map[pivotKey]*models.ProductAttributeValue
}

func NewDemand() *Demand {
	return &Demand{
		products:  make(map[uuid.UUID]int),
		pivots:    make(map[pivotKey]int),
		pivotRows: make(map[pivotKey]*models.ProductAttributeValue),
	}
}

// Add accumulates the quantities of a quote.
func (d *Demand) Add(q *Quote) {
	if _, ok := d.products[q.ProductID]; !ok {
		d.productOrder = append(d.productOrder, q.ProductID)
	}
	d.products[q.ProductID] += q.Quantity

	for _, sel := range q.Selections {
		key := pivotKey{productID: sel.Pivot.ProductID, valueID: sel.Pivot.AttributeValueID}
		if _, ok := d.pivots[key]; !ok {
			d.pivotOrder = append(d.pivotOrder, key)
		}
		d.pivots[key] += q.Quantity
		d.pivotRows[key] = sel.Pivot
	}
}

// ProductQuantity returns the aggregated demand on a product.
func (d *Demand) ProductQuantity(productID uuid.UUID) int {
	return d.products[productID]
}

// Check compares the aggregated demand with the loaded stock figures and
// reports the first shortfall in request order: each product first, then
// its variants.
func (d *Demand) Check(products map[uuid.UUID]*models.Product) error {
	for _, productID := range d.productOrder {
		product, ok := products[productID]
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
		}
		if requested := d.products[productID]; product.Stock < requested {
			return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
				ProductID: productID.String(),
				Requested: requested,
				Available: product.Stock,
			})
		}
		for _, key := range d.pivotOrder {
			if key.productID != productID {
				continue
			}
			pivot := d.pivotRows[key]
			if requested := d.pivots[key]; pivot.Stock < requested {
				valueID := key.valueID.String()
				return pkgerrors.InsufficientStock(pkgerrors.StockShortage{
					ProductID:        productID.String(),
					AttributeValueID: &valueID,
					Requested:        requested,
					Available:        pivot.Stock,
				})
			}
		}
	}
	return nil
}
