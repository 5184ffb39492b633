package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID                uuid.UUID           `json:"id"`
	Barcode           string              `json:"barcode"`
	Name              string              `json:"name"`
	Brand             *string             `json:"brand,omitempty"`
	Description       *string             `json:"description,omitempty"`
	CategoryID        *uuid.UUID          `json:"category_id,omitempty"`
	SubcategoryID     *uuid.UUID          `json:"subcategory_id,omitempty"`
	Category          *CategoryDTO        `json:"category,omitempty"`
	LegacyCategory    *string             `json:"category_name,omitempty"`
	LegacySubcategory *string             `json:"subcategory_name,omitempty"`
	IsPromo           bool                `json:"is_promo"`
	IsCombo           bool                `json:"is_combo"`
	BasePrice         decimal.Decimal     `json:"base_price"`
	Markup            decimal.Decimal     `json:"markup"`
	MarkupType        string              `json:"markup_type"`
	Price             decimal.Decimal     `json:"price"`
	Stock             int                 `json:"stock"`
	StockInTotal      int                 `json:"stock_in_total"`
	StockOutTotal     int                 `json:"stock_out_total"`
	Image             *string             `json:"image,omitempty"`
	Images            []string            `json:"images"`
	Variants          types.VariantGroups `json:"variants"`
	AttributeValues   []PivotDTO          `json:"attribute_values,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// PivotDTO exposes one product ↔ attribute value association.
type PivotDTO struct {
	AttributeValueID uuid.UUID        `json:"attribute_value_id"`
	AttributeID      uuid.UUID        `json:"attribute_id"`
	Attribute        string           `json:"attribute"`
	Value            string           `json:"value"`
	PriceDelta       decimal.Decimal  `json:"price_delta"`
	BasePrice        *decimal.Decimal `json:"base_price,omitempty"`
	Markup           *decimal.Decimal `json:"markup,omitempty"`
	MarkupType       string           `json:"markup_type"`
	Price            decimal.Decimal  `json:"price"`
	Stock            int              `json:"stock"`
	StockInTotal     int              `json:"stock_in_total"`
	StockOutTotal    int              `json:"stock_out_total"`
	Image            *string          `json:"image,omitempty"`
	Retired          bool             `json:"retired,omitempty"`
}

type CategoryDTO struct {
	ID       uuid.UUID  `json:"id"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
}

// BarcodeCheck answers whether a barcode is already taken.
type BarcodeCheck struct {
	Barcode string      `json:"barcode"`
	Exists  bool        `json:"exists"`
	Product *ProductDTO `json:"product,omitempty"`
}

// NewProductDTO builds a DTO from the persisted model. Pivots are included
// when they were loaded.
func NewProductDTO(product *models.Product) *ProductDTO {
	images := []string(product.Images)
	if images == nil {
		images = []string{}
	}
	variants := product.Variants
	if variants == nil {
		variants = types.VariantGroups{}
	}
	dto := &ProductDTO{
		ID:                product.ID,
		Barcode:           product.Barcode,
		Name:              product.Name,
		Brand:             product.Brand,
		Description:       product.Description,
		CategoryID:        product.CategoryID,
		SubcategoryID:     product.SubcategoryID,
		LegacyCategory:    product.LegacyCategory,
		LegacySubcategory: product.LegacySubcategory,
		IsPromo:           product.IsPromo,
		IsCombo:           product.IsCombo,
		BasePrice:         product.BasePrice,
		Markup:            product.Markup,
		MarkupType:        product.MarkupType.String(),
		Price:             product.Price,
		Stock:             product.Stock,
		StockInTotal:      product.StockInTotal,
		StockOutTotal:     product.StockOutTotal,
		Image:             product.Image,
		Images:            images,
		Variants:          variants,
		CreatedAt:         product.CreatedAt,
		UpdatedAt:         product.UpdatedAt,
	}
	if product.Category != nil {
		category := NewCategoryDTO(product.Category)
		dto.Category = &category
	}
	for i := range product.Pivots {
		dto.AttributeValues = append(dto.AttributeValues, newPivotDTO(product, &product.Pivots[i]))
	}
	return dto
}

func newPivotDTO(product *models.Product, pivot *models.ProductAttributeValue) PivotDTO {
	dto := PivotDTO{
		AttributeValueID: pivot.AttributeValueID,
		PriceDelta:       pivot.PriceDelta,
		BasePrice:        pivot.BasePrice,
		Markup:           pivot.Markup,
		MarkupType:       pivot.MarkupType.String(),
		Price:            pricing.VariantPrice(product, pivot),
		Stock:            pivot.Stock,
		StockInTotal:     pivot.StockInTotal,
		StockOutTotal:    pivot.StockOutTotal,
		Image:            pivot.Image,
	}
	if value := pivot.AttributeValue; value != nil {
		dto.AttributeID = value.AttributeID
		dto.Value = value.Name
		dto.Retired = value.DeletedAt.Valid
		if value.Attribute != nil {
			dto.Attribute = value.Attribute.Name
			dto.Retired = dto.Retired || value.Attribute.DeletedAt.Valid
		}
	}
	return dto
}

func NewCategoryDTO(category *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:       category.ID,
		ParentID: category.ParentID,
		Name:     category.Name,
		Slug:     category.Slug,
	}
}
