package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/pkg/enums"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// Product is a sellable catalog entry. Stock counters are only moved in
// pairs with a StockMovement row; Variants is a projection of the pivot rows.
type Product struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Barcode           string                  `gorm:"column:barcode;not null;uniqueIndex:idx_products_barcode"`
	Name              string                  `gorm:"column:name;not null"`
	Brand             *string                 `gorm:"column:brand"`
	Description       *string                 `gorm:"column:description"`
	CategoryID        *uuid.UUID              `gorm:"column:category_id;type:uuid;index"`
	SubcategoryID     *uuid.UUID              `gorm:"column:subcategory_id;type:uuid"`
	LegacyCategory    *string                 `gorm:"column:category"`
	LegacySubcategory *string                 `gorm:"column:subcategory"`
	IsPromo           bool                    `gorm:"column:is_promo;not null;default:false"`
	IsCombo           bool                    `gorm:"column:is_combo;not null;default:false"`
	BasePrice         decimal.Decimal         `gorm:"column:base_price;type:numeric(12,2);not null;default:0"`
	Markup            decimal.Decimal         `gorm:"column:markup;type:numeric(12,2);not null;default:0"`
	MarkupType        enums.MarkupType        `gorm:"column:markup_type;not null;default:'percentage'"`
	Price             decimal.Decimal         `gorm:"column:price;type:numeric(12,2);not null"`
	Stock             int                     `gorm:"column:stock;not null;default:0"`
	StockInTotal      int                     `gorm:"column:stock_in_total;not null;default:0"`
	StockOutTotal     int                     `gorm:"column:stock_out_total;not null;default:0"`
	Image             *string                 `gorm:"column:image"`
	Images            types.StringList        `gorm:"column:images"`
	Variants          types.VariantGroups     `gorm:"column:variants"`
	Category          *Category               `gorm:"foreignKey:CategoryID"`
	Pivots            []ProductAttributeValue `gorm:"foreignKey:ProductID"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ProductAttribute links a product to the attributes it is offered in.
type ProductAttribute struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AttributeID uuid.UUID `gorm:"column:attribute_id;type:uuid;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
