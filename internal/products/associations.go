package product

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
)

// AssociationsInput is the complete desired set of attribute values offered
// by a product. Values missing from it are detached.
type AssociationsInput struct {
	AttributeIDs []uuid.UUID
	Values       []AssociationValue
}

// AssociationValue carries the per-variant fields of one pivot row. Nil
// fields fall back to their defaults on every sync: zero price delta, zero
// base price and markup, percentage markup and zero stock. UseCatalogDelta
// takes the value's catalog delta instead when PriceDelta is nil.
type AssociationValue struct {
	AttributeValueID uuid.UUID
	PriceDelta       *decimal.Decimal
	UseCatalogDelta  bool
	BasePrice        *decimal.Decimal
	Markup           *decimal.Decimal
	MarkupType       *enums.MarkupType
	Stock            *int
	Image            *string
	KeepImage        bool
}

func (in AssociationsInput) validate() error {
	seen := make(map[uuid.UUID]struct{}, len(in.Values))
	for _, v := range in.Values {
		details := map[string]any{"attribute_value_id": v.AttributeValueID}
		if _, dup := seen[v.AttributeValueID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "attribute value listed more than once").WithDetails(details)
		}
		seen[v.AttributeValueID] = struct{}{}
		if v.Stock != nil && *v.Stock < 0 {
			return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "variant stock must not be negative, got %d", *v.Stock).WithDetails(details)
		}
		if v.MarkupType != nil && !v.MarkupType.IsValid() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid markup type %q", *v.MarkupType).WithDetails(details)
		}
		for _, amount := range []*decimal.Decimal{v.BasePrice, v.Markup} {
			if amount != nil && amount.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "variant base price and markup must not be negative").WithDetails(details)
			}
		}
	}
	return nil
}

// syncAssociations replaces the pivot rows and attribute links of a product
// inside tx. The caller rebuilds the projection afterwards.
func syncAssociations(ctx context.Context, txRepo *Repository, productID uuid.UUID, in AssociationsInput) error {
	if err := in.validate(); err != nil {
		return err
	}

	requested := make([]uuid.UUID, 0, len(in.Values))
	for _, v := range in.Values {
		requested = append(requested, v.AttributeValueID)
	}
	values, err := txRepo.FindLiveValues(ctx, requested)
	if err != nil {
		return err
	}
	catalog := make(map[uuid.UUID]models.AttributeValue, len(values))
	for _, v := range values {
		catalog[v.ID] = v
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := catalog[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown attribute values").
			WithDetails(map[string]any{"attribute_value_ids": missing})
	}

	attributeIDs, err := attributeSet(ctx, txRepo, in.AttributeIDs, values)
	if err != nil {
		return err
	}

	existingRows, err := txRepo.ListPivots(ctx, []uuid.UUID{productID}, true)
	if err != nil {
		return err
	}
	existing := make(map[uuid.UUID]models.ProductAttributeValue, len(existingRows))
	for _, row := range existingRows {
		existing[row.AttributeValueID] = row
	}

	if err := txRepo.DeletePivotsExcept(ctx, productID, requested); err != nil {
		return err
	}

	for _, v := range in.Values {
		current, found := existing[v.AttributeValueID]
		pivot := buildPivot(productID, v, catalog[v.AttributeValueID], current, found)
		if found {
			err = txRepo.UpdatePivot(ctx, pivot)
		} else {
			err = txRepo.CreatePivot(ctx, pivot)
		}
		if err != nil {
			return err
		}
	}

	return txRepo.ReplaceAttributes(ctx, productID, attributeIDs)
}

// buildPivot resolves the row to store for one value. Stock edits on an
// existing row are booked into its in/out totals so stock keeps matching
// stock_in_total - stock_out_total.
func buildPivot(productID uuid.UUID, v AssociationValue, value models.AttributeValue, current models.ProductAttributeValue, found bool) *models.ProductAttributeValue {
	basePrice, markup := decimal.Zero, decimal.Zero
	if v.BasePrice != nil {
		basePrice = *v.BasePrice
	}
	if v.Markup != nil {
		markup = *v.Markup
	}
	pivot := &models.ProductAttributeValue{
		ProductID:        productID,
		AttributeValueID: v.AttributeValueID,
		PriceDelta:       decimal.Zero,
		BasePrice:        &basePrice,
		Markup:           &markup,
		MarkupType:       enums.MarkupTypePercentage,
	}
	switch {
	case v.PriceDelta != nil:
		pivot.PriceDelta = *v.PriceDelta
	case v.UseCatalogDelta:
		pivot.PriceDelta = value.PriceDelta
	}
	if v.MarkupType != nil {
		pivot.MarkupType = *v.MarkupType
	}
	if v.Stock != nil {
		pivot.Stock = *v.Stock
	}

	switch {
	case v.Image != nil:
		pivot.Image = v.Image
	case v.KeepImage && found:
		pivot.Image = current.Image
	}

	if !found {
		pivot.StockInTotal = pivot.Stock
		return pivot
	}
	pivot.StockInTotal = current.StockInTotal
	pivot.StockOutTotal = current.StockOutTotal
	if diff := pivot.Stock - current.Stock; diff > 0 {
		pivot.StockInTotal += diff
	} else {
		pivot.StockOutTotal -= diff
	}
	return pivot
}

// attributeSet is the explicit attribute list plus the attributes of the
// chosen values, sorted.
func attributeSet(ctx context.Context, txRepo *Repository, explicit []uuid.UUID, values []models.AttributeValue) ([]uuid.UUID, error) {
	set := make(map[uuid.UUID]struct{}, len(explicit)+len(values))
	var unique []uuid.UUID
	for _, id := range explicit {
		if _, ok := set[id]; !ok {
			set[id] = struct{}{}
			unique = append(unique, id)
		}
	}
	found, err := txRepo.CountAttributes(ctx, unique)
	if err != nil {
		return nil, err
	}
	if found != int64(len(unique)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown attributes").
			WithDetails(map[string]any{"attribute_ids": unique})
	}
	for _, v := range values {
		set[v.AttributeID] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
