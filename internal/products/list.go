package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/retail-backend/pkg/pagination"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	// Category matches the legacy free-text column, the category name
	// (substring) or the category slug.
	Category   string     `json:"category,omitempty"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	IsPromo    *bool      `json:"is_promo,omitempty"`
	Query      string     `json:"q,omitempty"`
}

// ListProductsInput captures the inputs needed to paginate/filter products.
type ListProductsInput struct {
	Filters    ProductListFilters
	Pagination pagination.Params
}

// ProductSummary is a catalog row with its sold and movement aggregates.
type ProductSummary struct {
	ID                 uuid.UUID           `json:"id"`
	Barcode            string              `json:"barcode"`
	Name               string              `json:"name"`
	Brand              *string             `json:"brand,omitempty"`
	Category           *string             `json:"category,omitempty"`
	Subcategory        *string             `json:"subcategory,omitempty"`
	CategoryID         *uuid.UUID          `json:"category_id,omitempty"`
	IsPromo            bool                `json:"is_promo"`
	IsCombo            bool                `json:"is_combo"`
	Price              decimal.Decimal     `json:"price"`
	Stock              int                 `json:"stock"`
	StockInTotal       int                 `json:"stock_in_total"`
	StockOutTotal      int                 `json:"stock_out_total"`
	Image              *string             `json:"image,omitempty"`
	Variants           types.VariantGroups `json:"variants"`
	SoldQuantity       int                 `json:"sold_quantity"`
	CalculatedStockIn  int                 `json:"calculated_stock_in"`
	CalculatedStockOut int                 `json:"calculated_stock_out"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ProductListResult is a page of summaries plus the cursor of the next page.
type ProductListResult struct {
	Products   []ProductSummary `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
