package product

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/pricing"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/slug"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

const barcodeAttempts = 10

// Service exposes catalog product management operations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	SyncAssociations(ctx context.Context, productID uuid.UUID, input AssociationsInput) (*ProductDTO, error)

	CheckBarcode(ctx context.Context, barcode string) (*BarcodeCheck, error)
	GenerateBarcode(ctx context.Context) (string, error)

	CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error)
	ListCategories(ctx context.Context) ([]CategoryDTO, error)
}

// MovementRecorder appends stock movement rows inside an open transaction.
type MovementRecorder interface {
	RecordMovement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, kind enums.MovementType, quantity int, variants types.VariantRefs, reference *uuid.UUID) (*models.StockMovement, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	// Barcode is generated when empty.
	Barcode           string
	Name              string
	Brand             *string
	Description       *string
	CategoryID        *uuid.UUID
	SubcategoryID     *uuid.UUID
	LegacyCategory    *string
	LegacySubcategory *string
	IsPromo           bool
	IsCombo           bool
	BasePrice         decimal.Decimal
	Markup            decimal.Decimal
	MarkupType        enums.MarkupType
	// Price defaults to the base price with markup applied.
	Price        *decimal.Decimal
	Stock        int
	Image        *string
	Images       []string
	Associations *AssociationsInput
}

// UpdateProductInput holds optional mutation values for a product. A nil
// Associations leaves the pivot rows untouched.
type UpdateProductInput struct {
	Barcode           *string
	Name              *string
	Brand             *string
	Description       *string
	CategoryID        *uuid.UUID
	SubcategoryID     *uuid.UUID
	LegacyCategory    *string
	LegacySubcategory *string
	IsPromo           *bool
	IsCombo           *bool
	BasePrice         *decimal.Decimal
	Markup            *decimal.Decimal
	MarkupType        *enums.MarkupType
	Price             *decimal.Decimal
	Stock             *int
	Image             *string
	Images            *[]string
	Associations      *AssociationsInput
}

type CreateCategoryInput struct {
	Name     string
	ParentID *uuid.UUID
}

// service implements the product service.
type service struct {
	repo      *Repository
	dbClient  db.TxRunner
	projector *Projector
	movements MovementRecorder
	barcode   func() string
}

// NewService constructs a product service instance.
func NewService(repo *Repository, dbClient db.TxRunner, projector *Projector, movements MovementRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if projector == nil {
		return nil, fmt.Errorf("projector required")
	}
	if movements == nil {
		return nil, fmt.Errorf("movement recorder required")
	}
	return &service{
		repo:      repo,
		dbClient:  dbClient,
		projector: projector,
		movements: movements,
		barcode:   randomBarcode,
	}, nil
}

// CreateProduct creates the product, books its opening stock and attaches
// its variants.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}
	if input.Associations != nil {
		if err := input.Associations.validate(); err != nil {
			return nil, err
		}
	}

	if input.Barcode == "" {
		generated, err := s.GenerateBarcode(ctx)
		if err != nil {
			return nil, err
		}
		input.Barcode = generated
	}

	price := pricing.EffectivePrice(input.BasePrice, input.Markup, input.MarkupType)
	if input.Price != nil {
		price = *input.Price
	}

	product := &models.Product{
		Barcode:           input.Barcode,
		Name:              input.Name,
		Brand:             input.Brand,
		Description:       input.Description,
		CategoryID:        input.CategoryID,
		SubcategoryID:     input.SubcategoryID,
		LegacyCategory:    input.LegacyCategory,
		LegacySubcategory: input.LegacySubcategory,
		IsPromo:           input.IsPromo,
		IsCombo:           input.IsCombo,
		BasePrice:         input.BasePrice,
		Markup:            input.Markup,
		MarkupType:        input.MarkupType,
		Price:             price,
		Stock:             input.Stock,
		StockInTotal:      input.Stock,
		Image:             input.Image,
		Images:            types.StringList(input.Images),
		Variants:          types.VariantGroups{},
	}

	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		if err := txRepo.CreateProduct(ctx, product); err != nil {
			return err
		}
		if product.Stock > 0 {
			if _, err := s.movements.RecordMovement(ctx, tx, product.ID, enums.MovementTypeIn, product.Stock, nil, nil); err != nil {
				return err
			}
		}
		if input.Associations != nil {
			if err := syncAssociations(ctx, txRepo, product.ID, *input.Associations); err != nil {
				return err
			}
		}
		return s.projector.Rebuild(ctx, tx, product.ID)
	}); err != nil {
		return nil, wrapTxError(err, "create product")
	}

	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct updates an existing product. A stock edit is booked as an
// in or out adjustment movement.
func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}
	if input.Associations != nil {
		if err := input.Associations.validate(); err != nil {
			return nil, err
		}
	}

	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		product, err := txRepo.FindForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		applyUpdateToProduct(product, input)
		if err := txRepo.UpdateProduct(ctx, product); err != nil {
			return err
		}

		if input.Stock != nil && *input.Stock != product.Stock {
			diff := *input.Stock - product.Stock
			kind := enums.MovementTypeIn
			quantity := diff
			if diff < 0 {
				kind = enums.MovementTypeOut
				quantity = -diff
				product.StockOutTotal += quantity
			} else {
				product.StockInTotal += quantity
			}
			product.Stock = *input.Stock
			if err := txRepo.SetStockCounters(ctx, product); err != nil {
				return err
			}
			if _, err := s.movements.RecordMovement(ctx, tx, product.ID, kind, quantity, nil, nil); err != nil {
				return err
			}
		}

		if input.Associations != nil {
			if err := syncAssociations(ctx, txRepo, product.ID, *input.Associations); err != nil {
				return err
			}
		}
		return s.projector.Rebuild(ctx, tx, product.ID)
	}); err != nil {
		return nil, wrapTxError(err, "update product")
	}

	return s.GetProduct(ctx, productID)
}

// SyncAssociations replaces the product's attribute values and rebuilds
// its projection in one transaction.
func (s *service) SyncAssociations(ctx context.Context, productID uuid.UUID, input AssociationsInput) (*ProductDTO, error) {
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindForUpdate(ctx, productID); err != nil {
			return err
		}
		if err := syncAssociations(ctx, txRepo, productID, input); err != nil {
			return err
		}
		return s.projector.Rebuild(ctx, tx, productID)
	}); err != nil {
		return nil, wrapTxError(err, "sync product associations")
	}
	return s.GetProduct(ctx, productID)
}

// DeleteProduct removes a product with its pivot rows and cart lines. A
// product with movements, sold lines or ordered lines is kept as history and
// the call fails with CONFLICT.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteProduct(ctx, productID)
	})
	if err != nil {
		return wrapTxError(err, "delete product")
	}
	return nil
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.GetProductDetail(ctx, productID)
	if err != nil {
		return nil, err
	}
	return NewProductDTO(product), nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	return s.repo.ListProductSummaries(ctx, productListQuery{
		Pagination: input.Pagination,
		Filters:    input.Filters,
	})
}

func (s *service) CheckBarcode(ctx context.Context, barcode string) (*BarcodeCheck, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcode is required")
	}
	rows, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	check := &BarcodeCheck{Barcode: barcode}
	if len(rows) > 0 {
		check.Exists = true
		check.Product = NewProductDTO(&rows[0])
	}
	return check, nil
}

// GenerateBarcode draws random 12-digit codes until one is unused.
func (s *service) GenerateBarcode(ctx context.Context) (string, error) {
	for i := 0; i < barcodeAttempts; i++ {
		candidate := s.barcode()
		taken, err := s.repo.BarcodeExists(ctx, candidate, nil)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.CodeConflict, "no free barcode after %d attempts", barcodeAttempts)
}

func (s *service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
	}
	if input.ParentID != nil {
		if _, err := s.repo.FindCategory(ctx, *input.ParentID); err != nil {
			return nil, err
		}
	}
	category := &models.Category{Name: name, Slug: slug.Make(name), ParentID: input.ParentID}
	if category.Slug == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "category name %q has no usable characters", name)
	}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, err
	}
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewCategoryDTO(&rows[i]))
	}
	return out, nil
}

func validateCreate(input *CreateProductInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Barcode = strings.TrimSpace(input.Barcode)
	if input.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.MarkupType == "" {
		input.MarkupType = enums.MarkupTypePercentage
	}
	if !input.MarkupType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid markup type %q", input.MarkupType)
	}
	if input.BasePrice.IsNegative() || input.Markup.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "base price and markup must not be negative")
	}
	if input.Price != nil && input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.Stock < 0 {
		return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "stock must not be negative, got %d", input.Stock)
	}
	return nil
}

func validateUpdate(input UpdateProductInput) error {
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name must not be empty")
	}
	if input.Barcode != nil && strings.TrimSpace(*input.Barcode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "barcode must not be empty")
	}
	if input.MarkupType != nil && !input.MarkupType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid markup type %q", *input.MarkupType)
	}
	for _, amount := range []*decimal.Decimal{input.BasePrice, input.Markup, input.Price} {
		if amount != nil && amount.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "prices must not be negative")
		}
	}
	if input.Stock != nil && *input.Stock < 0 {
		return pkgerrors.Newf(pkgerrors.CodeInvalidQuantity, "stock must not be negative, got %d", *input.Stock)
	}
	return nil
}

// applyUpdateToProduct copies the editable fields. When the pricing inputs
// change without an explicit price, the price is recomputed from them.
func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.Barcode != nil {
		product.Barcode = strings.TrimSpace(*input.Barcode)
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Brand != nil {
		product.Brand = input.Brand
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.CategoryID != nil {
		product.CategoryID = input.CategoryID
	}
	if input.SubcategoryID != nil {
		product.SubcategoryID = input.SubcategoryID
	}
	if input.LegacyCategory != nil {
		product.LegacyCategory = input.LegacyCategory
	}
	if input.LegacySubcategory != nil {
		product.LegacySubcategory = input.LegacySubcategory
	}
	if input.IsPromo != nil {
		product.IsPromo = *input.IsPromo
	}
	if input.IsCombo != nil {
		product.IsCombo = *input.IsCombo
	}
	if input.Image != nil {
		product.Image = input.Image
	}
	if input.Images != nil {
		product.Images = types.StringList(*input.Images)
	}

	repriced := false
	if input.BasePrice != nil {
		product.BasePrice = *input.BasePrice
		repriced = true
	}
	if input.Markup != nil {
		product.Markup = *input.Markup
		repriced = true
	}
	if input.MarkupType != nil {
		product.MarkupType = *input.MarkupType
		repriced = true
	}
	switch {
	case input.Price != nil:
		product.Price = *input.Price
	case repriced:
		product.Price = pricing.EffectivePrice(product.BasePrice, product.Markup, product.MarkupType)
	}
}

func wrapTxError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func randomBarcode() string {
	return fmt.Sprintf("%012d", rand.Int63n(1_000_000_000_000))
}
