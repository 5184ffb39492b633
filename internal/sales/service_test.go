package sales

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/dbtest"
	"github.com/angelmondragon/retail-backend/internal/pricing"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/internal/stock"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

type fixture struct {
	svc       Service
	conn      *gorm.DB
	reg       *prometheus.Registry
	movements *stock.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewSalesMetrics(reg)
	logg := logger.Nop()
	dbClient := db.NewFromConn(conn)
	productRepo := product.NewRepository(conn)
	projector := product.NewProjector(logg)

	stockRepo := stock.NewRepository(conn)
	stockSvc, err := stock.NewService(stockRepo, productRepo, dbClient, projector, m, logg)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(conn), productRepo, stockSvc, projector, dbClient, m, logg)
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, reg: reg, movements: stockRepo}
}

// tshirt seeds a product priced 100 with stock 10 whose "Large" variant
// costs +10 and has 5 units.
func (f fixture) tshirt(t *testing.T) (*models.Product, uuid.UUID) {
	t.Helper()
	size := dbtest.MustCreateAttribute(t, f.conn, "Size", "Large", "Small")
	p := dbtest.MustCreateProduct(t, f.conn, "100", 10)
	large := size.Values[0].ID
	dbtest.MustAttachValue(t, f.conn, p.ID, large, "10", 5)
	dbtest.MustAttachValue(t, f.conn, p.ID, size.Values[1].ID, "0", 5)
	return p, large
}

type snapshot struct {
	productStock, pivotStock, productOut, pivotOut int
	movements, sales, items                        int64
}

func (f fixture) snapshot(t *testing.T, productID, valueID uuid.UUID) snapshot {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "id = ?", productID).Error)
	var pv models.ProductAttributeValue
	require.NoError(t, f.conn.First(&pv, "product_id = ? AND attribute_value_id = ?", productID, valueID).Error)
	return snapshot{
		productStock: p.Stock,
		pivotStock:   pv.Stock,
		productOut:   p.StockOutTotal,
		pivotOut:     pv.StockOutTotal,
		movements:    dbtest.Count(t, f.conn, &models.StockMovement{}),
		sales:        dbtest.Count(t, f.conn, &models.Sale{}),
		items:        dbtest.Count(t, f.conn, &models.SaleItem{}),
	}
}

func saleInput(lines ...LineInput) CreateSaleInput {
	return CreateSaleInput{
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodCash,
		Items:         lines,
	}
}

func line(productID uuid.UUID, qty int, values ...uuid.UUID) LineInput {
	l := LineInput{ProductID: productID, Quantity: qty}
	for _, v := range values {
		l.Selections = append(l.Selections, pricing.Selection{AttributeValueID: v})
	}
	return l
}

func TestCreateSalePricesAndDecrementsVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)

	sale, err := f.svc.CreateSale(ctx, saleInput(line(p.ID, 3, large)))
	require.NoError(t, err)

	require.Len(t, sale.Items, 1)
	item := sale.Items[0]
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(110)), "unit price %s", item.UnitPrice)
	assert.True(t, item.Subtotal.Equal(decimal.NewFromInt(330)), "subtotal %s", item.Subtotal)
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(330)), "total %s", sale.Total)
	require.Len(t, item.Variants, 1)
	assert.Equal(t, "Size", item.Variants[0].Attribute)
	assert.Equal(t, "Large", item.Variants[0].Value)

	after := f.snapshot(t, p.ID, large)
	assert.Equal(t, 7, after.productStock)
	assert.Equal(t, 2, after.pivotStock)
	assert.Equal(t, 3, after.productOut)
	assert.Equal(t, 3, after.pivotOut)
	assert.EqualValues(t, 1, after.movements)

	movements, err := f.movements.MovementsByReference(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, enums.MovementTypeOut, movements[0].Type)
	assert.Equal(t, 3, movements[0].Quantity)
	require.Len(t, movements[0].Variants, 1)
	assert.Equal(t, large, movements[0].Variants[0].AttributeValueID)

	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", p.ID).Error)
	require.Len(t, stored.Variants, 1)
	for _, v := range stored.Variants[0].Values {
		if v.ID == large {
			assert.Equal(t, 2, v.Stock, "projection follows the pivot")
		}
	}

	assert.Equal(t, 1.0, counterValue(t, f.reg, "sales_committed_total"))
	assert.Equal(t, 1.0, counterValue(t, f.reg, "stock_movements_total"))
}

func TestCreateSaleInsufficientVariantStockChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	before := f.snapshot(t, p.ID, large)

	_, err := f.svc.CreateSale(ctx, saleInput(line(p.ID, 6, large)))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	shortage, ok := typed.Details().(pkgerrors.StockShortage)
	require.True(t, ok, "details %T", typed.Details())
	assert.Equal(t, 5, shortage.Available)
	assert.Equal(t, 6, shortage.Requested)
	require.NotNil(t, shortage.AttributeValueID)
	assert.Equal(t, large.String(), *shortage.AttributeValueID)

	assert.Equal(t, before, f.snapshot(t, p.ID, large))
	assert.Equal(t, 1.0, counterValue(t, f.reg, "sales_aborted_total"))
	assert.Equal(t, 0.0, counterValue(t, f.reg, "sales_committed_total"))
}

func TestCreateSaleAggregatesDemandAcrossLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	before := f.snapshot(t, p.ID, large)

	// 3 + 3 of the same variant exceed its 5 units even though each line fits.
	_, err := f.svc.CreateSale(ctx, saleInput(line(p.ID, 3, large), line(p.ID, 3, large)))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	assert.Equal(t, before, f.snapshot(t, p.ID, large))
}

func TestCreateSaleTotalIsSumOfSubtotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	plain := dbtest.MustCreateProduct(t, f.conn, "19.99", 20)

	sale, err := f.svc.CreateSale(ctx, saleInput(
		line(p.ID, 2, large),
		line(plain.ID, 3),
		line(p.ID, 1),
	))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, item := range sale.Items {
		assert.True(t, item.Subtotal.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
		sum = sum.Add(item.Subtotal)
	}
	assert.True(t, sale.Total.Equal(sum), "total %s sum %s", sale.Total, sum)
	assert.True(t, sale.Total.Equal(decimal.RequireFromString("379.97")), "total %s", sale.Total)

	var p1, p2 models.Product
	require.NoError(t, f.conn.First(&p1, "id = ?", p.ID).Error)
	require.NoError(t, f.conn.First(&p2, "id = ?", plain.ID).Error)
	assert.Equal(t, 7, p1.Stock)
	assert.Equal(t, p1.Stock, p1.StockInTotal-p1.StockOutTotal)
	assert.Equal(t, 17, p2.Stock)
	assert.EqualValues(t, 3, dbtest.Count(t, f.conn, &models.StockMovement{}))

	movements, err := f.movements.MovementsByReference(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, movements, len(sale.Items), "one ledger row per sold line")
}

func TestCreateSaleVariantMovesByLineQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	before := f.snapshot(t, p.ID, large)

	overdraw := LineInput{ProductID: p.ID, Quantity: 1, Selections: []pricing.Selection{{AttributeValueID: large, Quantity: 5}}}
	_, err := f.svc.CreateSale(ctx, saleInput(overdraw))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, before, f.snapshot(t, p.ID, large))

	restated := LineInput{ProductID: p.ID, Quantity: 2, Selections: []pricing.Selection{{AttributeValueID: large, Quantity: 2}}}
	sale, err := f.svc.CreateSale(ctx, saleInput(restated))
	require.NoError(t, err)

	after := f.snapshot(t, p.ID, large)
	assert.Equal(t, before.productStock-2, after.productStock)
	assert.Equal(t, before.pivotStock-2, after.pivotStock)
	assert.Equal(t, after.productOut, after.pivotOut)

	movements, err := f.movements.MovementsByReference(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 2, movements[0].Quantity)
}

func TestCreateSaleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	other := dbtest.MustCreateAttribute(t, f.conn, "Color", "Red")

	cases := []struct {
		name  string
		input CreateSaleInput
		code  pkgerrors.Code
	}{
		{"no items", saleInput(), pkgerrors.CodeValidation},
		{"bad payment", CreateSaleInput{UserID: uuid.New(), PaymentMethod: "cheque", Items: []LineInput{line(p.ID, 1)}}, pkgerrors.CodeValidation},
		{"missing user", CreateSaleInput{PaymentMethod: enums.PaymentMethodCard, Items: []LineInput{line(p.ID, 1)}}, pkgerrors.CodeValidation},
		{"zero quantity", saleInput(line(p.ID, 0)), pkgerrors.CodeInvalidQuantity},
		{"unknown product", saleInput(line(uuid.New(), 1)), pkgerrors.CodeNotFound},
		{"unknown variant", saleInput(line(p.ID, 1, other.Values[0].ID)), pkgerrors.CodeUnknownVariant},
		{"repeated variant", saleInput(line(p.ID, 1, large, large)), pkgerrors.CodeValidation},
	}
	before := f.snapshot(t, p.ID, large)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSale(ctx, tc.input)
			assert.True(t, pkgerrors.HasCode(err, tc.code), "want %s, got %v", tc.code, err)
		})
	}
	assert.Equal(t, before, f.snapshot(t, p.ID, large))
	assert.Equal(t, float64(len(cases)), counterValue(t, f.reg, "sales_aborted_total"))
}

func TestCreateSaleTombstonedVariantIsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	require.NoError(t, f.conn.Delete(&models.AttributeValue{}, "id = ?", large).Error)

	_, err := f.svc.CreateSale(ctx, saleInput(line(p.ID, 1, large)))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant), "got %v", err)
}

func TestCreateSaleRollsBackWhenPersistenceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)
	before := f.snapshot(t, p.ID, large)

	// Without the items table the sale insert fails after stock was taken.
	require.NoError(t, f.conn.Migrator().DropTable(&models.SaleItem{}))

	_, err := f.svc.CreateSale(ctx, saleInput(line(p.ID, 2, large)))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency), "got %v", err)

	require.NoError(t, f.conn.AutoMigrate(&models.SaleItem{}))
	var sales []models.Sale
	require.NoError(t, f.conn.Find(&sales).Error)
	for _, sale := range sales {
		movements, err := f.movements.MovementsByReference(ctx, sale.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, movements, "sale %s has no ledger rows", sale.ID)
	}
	after := f.snapshot(t, p.ID, large)
	assert.Equal(t, before.productStock, after.productStock)
	assert.Equal(t, before.pivotStock, after.pivotStock)
	assert.Equal(t, before.productOut, after.productOut)
	assert.Equal(t, before.movements, after.movements, "no ledger row without a sale")
	assert.Equal(t, before.sales, after.sales)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)

	const buyers = 2
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	sold := make([]*SaleDTO, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sold[i], errs[i] = f.svc.CreateSale(ctx, saleInput(line(p.ID, 3, large)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			movements, mErr := f.movements.MovementsByReference(ctx, sold[i].ID)
			require.NoError(t, mErr)
			assert.Len(t, movements, 1)
			continue
		}
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	after := f.snapshot(t, p.ID, large)
	assert.Equal(t, 2, after.pivotStock)
	assert.Equal(t, 7, after.productStock)
	assert.EqualValues(t, 1, after.sales)
	assert.EqualValues(t, 1, after.movements)
}

func TestGetAndListSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)

	cashier := uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		in := saleInput(line(p.ID, 1, large))
		in.UserID = cashier
		if i == 2 {
			in.PaymentMethod = enums.PaymentMethodCard
		}
		sale, err := f.svc.CreateSale(ctx, in)
		require.NoError(t, err)
		ids = append(ids, sale.ID)
	}

	got, err := f.svc.GetSale(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, p.Barcode, got.Items[0].Barcode)

	_, err = f.svc.GetSale(ctx, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	page, err := f.svc.ListSales(ctx, ListFilter{UserID: &cashier}, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Sales, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListSales(ctx, ListFilter{UserID: &cashier}, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, rest.Sales, 1)
	assert.Empty(t, rest.NextCursor)

	card := enums.PaymentMethodCard
	byCard, err := f.svc.ListSales(ctx, ListFilter{PaymentMethod: &card}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, byCard.Sales, 1)
	assert.Equal(t, ids[2], byCard.Sales[0].ID)
}

func TestLookupBarcode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, large := f.tshirt(t)

	found, err := f.svc.LookupBarcode(ctx, " "+p.Barcode+" ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)
	require.Len(t, found[0].AttributeValues, 2)
	for _, pv := range found[0].AttributeValues {
		if pv.AttributeValueID == large {
			assert.True(t, pv.Price.Equal(decimal.NewFromInt(110)))
			assert.Equal(t, 5, pv.Stock)
		}
	}

	_, err = f.svc.LookupBarcode(ctx, "000000000000")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.LookupBarcode(ctx, "  ")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
