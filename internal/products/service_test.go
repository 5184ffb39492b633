package product

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/dbtest"
	"github.com/angelmondragon/retail-backend/internal/repo"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/types"
)

// ledgerStub writes movement rows directly; the real ledger lives in the
// stock package, which depends on this one.
type ledgerStub struct{}

func (ledgerStub) RecordMovement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, kind enums.MovementType, quantity int, variants types.VariantRefs, reference *uuid.UUID) (*models.StockMovement, error) {
	m := &models.StockMovement{ProductID: productID, Type: kind, Quantity: quantity, Variants: variants, Reference: reference}
	return m, tx.WithContext(ctx).Create(m).Error
}

func newTestService(t *testing.T) (*service, *gorm.DB) {
	t.Helper()
	return newTestServiceOn(t, dbtest.Open(t))
}

func newTestServiceOn(t *testing.T, conn *gorm.DB) (*service, *gorm.DB) {
	t.Helper()
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn), NewProjector(logger.Nop()), ledgerStub{})
	require.NoError(t, err)
	return svc.(*service), conn
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func movementSums(t *testing.T, conn *gorm.DB, productID uuid.UUID) (in, out int) {
	t.Helper()
	var rows []models.StockMovement
	require.NoError(t, conn.Where("product_id = ?", productID).Find(&rows).Error)
	for _, m := range rows {
		if m.Type == enums.MovementTypeIn {
			in += m.Quantity
		} else {
			out += m.Quantity
		}
	}
	return in, out
}

func loadProduct(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, conn.First(&p, "id = ?", id).Error)
	return p
}

func TestCreateProductBooksOpeningStock(t *testing.T) {
	svc, conn := newTestService(t)

	dto, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Barcode:    "000000000123",
		Name:       "  Camiseta ",
		BasePrice:  decimal.RequireFromString("100"),
		Markup:     decimal.RequireFromString("20"),
		MarkupType: enums.MarkupTypePercentage,
		Stock:      7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Camiseta", dto.Name)
	assert.True(t, dto.Price.Equal(decimal.RequireFromString("120")), "price %s", dto.Price)
	assert.Equal(t, 7, dto.Stock)
	assert.Equal(t, 7, dto.StockInTotal)
	assert.Empty(t, dto.Variants)

	in, out := movementSums(t, conn, dto.ID)
	assert.Equal(t, 7, in)
	assert.Equal(t, 0, out)
}

func TestCreateProductGeneratesBarcode(t *testing.T) {
	svc, _ := newTestService(t)

	dto, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:      "Gorra",
		BasePrice: decimal.RequireFromString("50"),
	})
	require.NoError(t, err)
	assert.Len(t, dto.Barcode, 12)
	assert.True(t, dto.Price.Equal(decimal.RequireFromString("50")))
}

func TestCreateProductRejectsDuplicateBarcode(t *testing.T) {
	svc, conn := newTestService(t)
	existing := dbtest.MustCreateProduct(t, conn, "10", 0)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Barcode:   existing.Barcode,
		Name:      "Copy",
		BasePrice: decimal.RequireFromString("10"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)
	assert.EqualValues(t, 1, dbtest.Count(t, conn, &models.Product{}))
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, CreateProductInput{Name: " "})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{Name: "x", Stock: -1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity), "got %v", err)

	_, err = svc.CreateProduct(ctx, CreateProductInput{Name: "x", MarkupType: "fixed"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestCreateProductWithAssociationsBuildsProjection(t *testing.T) {
	svc, conn := newTestService(t)
	size := dbtest.MustCreateAttribute(t, conn, "Talla", "M", "L")
	color := dbtest.MustCreateAttribute(t, conn, "Color", "Rojo")

	dto, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:      "Polo",
		BasePrice: decimal.RequireFromString("100"),
		Stock:     10,
		Associations: &AssociationsInput{
			Values: []AssociationValue{
				{AttributeValueID: size.Values[1].ID, PriceDelta: decPtr("10"), Stock: intPtr(4)},
				{AttributeValueID: size.Values[0].ID, Stock: intPtr(6)},
				{AttributeValueID: color.Values[0].ID, Stock: intPtr(10)},
			},
		},
	})
	require.NoError(t, err)

	require.Len(t, dto.Variants, 2)
	assert.Equal(t, "Color", dto.Variants[0].Name)
	assert.Equal(t, "Talla", dto.Variants[1].Name)
	require.Len(t, dto.Variants[1].Values, 2)
	assert.Equal(t, "L", dto.Variants[1].Values[0].Name)
	assert.Equal(t, 10.0, dto.Variants[1].Values[0].PriceDelta)
	assert.Equal(t, 4, dto.Variants[1].Values[0].Stock)
	assert.Equal(t, "M", dto.Variants[1].Values[1].Name)
	assert.Len(t, dto.AttributeValues, 3)

	ids, err := svc.repo.ListAttributeIDs(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestUpdateProductBooksStockAdjustment(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Taza", BasePrice: decimal.RequireFromString("30"), Stock: 10})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Stock: intPtr(4), Name: strPtr("Taza grande")})
	require.NoError(t, err)
	_, err = svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Stock: intPtr(9)})
	require.NoError(t, err)

	p := loadProduct(t, conn, created.ID)
	assert.Equal(t, "Taza grande", p.Name)
	assert.Equal(t, 9, p.Stock)
	assert.Equal(t, 15, p.StockInTotal)
	assert.Equal(t, 6, p.StockOutTotal)
	assert.Equal(t, p.Stock, p.StockInTotal-p.StockOutTotal)

	in, out := movementSums(t, conn, created.ID)
	assert.Equal(t, p.StockInTotal, in)
	assert.Equal(t, p.StockOutTotal, out)
}

func TestUpdateProductRepricesFromMarkup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, CreateProductInput{Name: "Mate", BasePrice: decimal.RequireFromString("200")})
	require.NoError(t, err)

	manual := enums.MarkupTypeManual
	updated, err := svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Markup: decPtr("15"), MarkupType: &manual})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("215")), "price %s", updated.Price)

	updated, err = svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Price: decPtr("199.90")})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("199.90")))
}

func TestUpdateMissingProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.UpdateProduct(context.Background(), uuid.New(), UpdateProductInput{Name: strPtr("x")})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestDeleteProductRemovesPivots(t *testing.T) {
	svc, conn := newTestService(t)
	attr := dbtest.MustCreateAttribute(t, conn, "Color", "Rojo")
	p := dbtest.MustCreateProduct(t, conn, "10", 1)
	dbtest.MustAttachValue(t, conn, p.ID, attr.Values[0].ID, "0", 1)

	require.NoError(t, svc.DeleteProduct(context.Background(), p.ID))
	assert.EqualValues(t, 0, dbtest.Count(t, conn, &models.Product{}))
	assert.EqualValues(t, 0, dbtest.Count(t, conn, &models.ProductAttributeValue{}))

	err := svc.DeleteProduct(context.Background(), p.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestDeleteProductKeepsHistory(t *testing.T) {
	svc, conn := newTestServiceOn(t, dbtest.OpenWithForeignKeys(t))
	ctx := context.Background()
	attr := dbtest.MustCreateAttribute(t, conn, "Color", "Rojo")

	sold := dbtest.MustCreateProduct(t, conn, "10", 0)
	dbtest.MustAttachValue(t, conn, sold.ID, attr.Values[0].ID, "0", 0)
	sale := models.Sale{
		UserID: uuid.New(), Total: decimal.NewFromInt(10), PaymentMethod: enums.PaymentMethodCash,
		Items: []models.SaleItem{{ProductID: sold.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10), Subtotal: decimal.NewFromInt(10)}},
	}
	require.NoError(t, conn.Create(&sale).Error)

	received := dbtest.MustCreateProduct(t, conn, "10", 0)
	_, err := ledgerStub{}.RecordMovement(ctx, conn, received.ID, enums.MovementTypeIn, 2, nil, nil)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{sold.ID, received.ID} {
		err := svc.DeleteProduct(ctx, id)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)
	}
	assert.EqualValues(t, 2, dbtest.Count(t, conn, &models.Product{}))
	assert.EqualValues(t, 1, dbtest.Count(t, conn, &models.ProductAttributeValue{}))
	assert.EqualValues(t, 1, dbtest.Count(t, conn, &models.StockMovement{}))
	assert.EqualValues(t, 1, dbtest.Count(t, conn, &models.SaleItem{}))

	// the schema itself refuses, and the refusal maps to CONFLICT
	err = svc.repo.conn(ctx).Where("id = ?", sold.ID).Delete(&models.Product{}).Error
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(repo.MapError(err, "product"), pkgerrors.CodeConflict), "got %v", err)

	carted := dbtest.MustCreateProduct(t, conn, "10", 0)
	cart := models.Cart{UserID: uuid.New(), Items: []models.CartItem{{ProductID: carted.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)}}}
	require.NoError(t, conn.Create(&cart).Error)
	require.NoError(t, svc.DeleteProduct(ctx, carted.ID))
	assert.EqualValues(t, 0, dbtest.Count(t, conn, &models.CartItem{}))
}

func TestGenerateBarcodeRetriesTakenCodes(t *testing.T) {
	svc, conn := newTestService(t)
	taken := dbtest.MustCreateProduct(t, conn, "10", 0)

	calls := 0
	svc.barcode = func() string {
		calls++
		if calls < 3 {
			return taken.Barcode
		}
		return "000000000042"
	}
	code, err := svc.GenerateBarcode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "000000000042", code)
	assert.Equal(t, 3, calls)

	svc.barcode = func() string { return taken.Barcode }
	_, err = svc.GenerateBarcode(context.Background())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestCheckBarcode(t *testing.T) {
	svc, conn := newTestService(t)
	p := dbtest.MustCreateProduct(t, conn, "10", 0)

	check, err := svc.CheckBarcode(context.Background(), p.Barcode)
	require.NoError(t, err)
	assert.True(t, check.Exists)
	require.NotNil(t, check.Product)
	assert.Equal(t, p.ID, check.Product.ID)

	check, err = svc.CheckBarcode(context.Background(), "999999999999")
	require.NoError(t, err)
	assert.False(t, check.Exists)
	assert.Nil(t, check.Product)
}

func TestListProductsComputesAggregates(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, CreateProductInput{
		Name:           "Zapato",
		BasePrice:      decimal.RequireFromString("80"),
		Stock:          5,
		LegacyCategory: strPtr("Calzado"),
	})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, CreateProductInput{Name: "Bolso", BasePrice: decimal.RequireFromString("40")})
	require.NoError(t, err)

	sale := &models.Sale{UserID: uuid.New(), Total: decimal.RequireFromString("160"), PaymentMethod: enums.PaymentMethodCash}
	require.NoError(t, conn.Create(sale).Error)
	require.NoError(t, conn.Create(&models.SaleItem{
		SaleID: sale.ID, ProductID: created.ID, Quantity: 2,
		UnitPrice: decimal.RequireFromString("80"), Subtotal: decimal.RequireFromString("160"),
	}).Error)
	_, err = ledgerStub{}.RecordMovement(ctx, conn, created.ID, enums.MovementTypeOut, 2, nil, &sale.ID)
	require.NoError(t, err)

	result, err := svc.ListProducts(ctx, ListProductsInput{Filters: ProductListFilters{Category: "calz"}})
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	row := result.Products[0]
	assert.Equal(t, created.ID, row.ID)
	assert.Equal(t, 2, row.SoldQuantity)
	assert.Equal(t, 5, row.CalculatedStockIn)
	assert.Equal(t, 2, row.CalculatedStockOut)

	all, err := svc.ListProducts(ctx, ListProductsInput{})
	require.NoError(t, err)
	assert.Len(t, all.Products, 2)
}

func TestCategories(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.CreateCategory(ctx, CreateCategoryInput{Name: "Ropa de Niño"})
	require.NoError(t, err)
	assert.Equal(t, "ropa-de-nino", parent.Slug)

	_, err = svc.CreateCategory(ctx, CreateCategoryInput{Name: "Poleras", ParentID: &parent.ID})
	require.NoError(t, err)

	_, err = svc.CreateCategory(ctx, CreateCategoryInput{Name: "Huérfana", ParentID: ptrUUID(uuid.New())})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)

	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func ptrUUID(id uuid.UUID) *uuid.UUID { return &id }
