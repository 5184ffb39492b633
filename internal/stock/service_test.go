package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/retail-backend/internal/dbtest"
	"github.com/angelmondragon/retail-backend/internal/pricing"
	product "github.com/angelmondragon/retail-backend/internal/products"
	"github.com/angelmondragon/retail-backend/pkg/db"
	"github.com/angelmondragon/retail-backend/pkg/db/models"
	"github.com/angelmondragon/retail-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/retail-backend/pkg/errors"
	"github.com/angelmondragon/retail-backend/pkg/logger"
	"github.com/angelmondragon/retail-backend/pkg/metrics"
)

type fixture struct {
	svc     Service
	conn    *gorm.DB
	repo    *product.Repository
	metrics *metrics.SalesMetrics
	reg     *prometheus.Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg := prometheus.NewRegistry()
	m := metrics.NewSalesMetrics(reg)
	productRepo := product.NewRepository(conn)
	svc, err := NewService(NewRepository(conn), productRepo, db.NewFromConn(conn), product.NewProjector(logger.Nop()), m, logger.Nop())
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, repo: productRepo, metrics: m, reg: reg}
}

func (f fixture) product(t *testing.T, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "id = ?", id).Error)
	return p
}

func (f fixture) pivot(t *testing.T, productID, valueID uuid.UUID) models.ProductAttributeValue {
	t.Helper()
	var p models.ProductAttributeValue
	require.NoError(t, f.conn.First(&p, "product_id = ? AND attribute_value_id = ?", productID, valueID).Error)
	return p
}

// assertLedgerBalanced checks stock == in - out and that the movement rows
// add up to the product counters.
func (f fixture) assertLedgerBalanced(t *testing.T, productID uuid.UUID) {
	t.Helper()
	p := f.product(t, productID)
	assert.Equal(t, p.Stock, p.StockInTotal-p.StockOutTotal, "stock invariant")

	totals, err := f.svc.Totals(context.Background(), []uuid.UUID{productID})
	require.NoError(t, err)
	assert.Equal(t, p.StockInTotal, totals[productID].In)
	assert.Equal(t, p.StockOutTotal, totals[productID].Out)
}

func TestRecordMovementValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := dbtest.MustCreateProduct(t, f.conn, "10", 0)

	_, err := f.svc.RecordMovement(ctx, f.conn, p.ID, enums.MovementTypeIn, 0, nil, nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity), "got %v", err)

	_, err = f.svc.RecordMovement(ctx, f.conn, p.ID, "sideways", 1, nil, nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)

	m, err := f.svc.RecordMovement(ctx, f.conn, p.ID, enums.MovementTypeIn, 3, nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.NotNil(t, m.Variants)
}

func TestApplyInboundUpdatesProductVariantsAndProjection(t *testing.T) {
	f := newFixture(t)
	attr := dbtest.MustCreateAttribute(t, f.conn, "Talla", "S", "M")
	p := dbtest.MustCreateProduct(t, f.conn, "100", 4)
	dbtest.MustAttachValue(t, f.conn, p.ID, attr.Values[0].ID, "0", 2)
	dbtest.MustAttachValue(t, f.conn, p.ID, attr.Values[1].ID, "0", 2)
	_, err := f.svc.RecordMovement(context.Background(), f.conn, p.ID, enums.MovementTypeIn, 4, nil, nil)
	require.NoError(t, err)

	res, err := f.svc.ApplyInbound(context.Background(), InboundInput{
		ProductID: p.ID,
		Quantity:  5,
		Variants: []pricing.Selection{
			{AttributeValueID: attr.Values[0].ID},
			{AttributeValueID: attr.Values[1].ID, Quantity: 5},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 9, res.Product.Stock)
	assert.Equal(t, "in", res.Movement.Type)
	assert.Len(t, res.Movement.Variants, 2)
	assert.Equal(t, "Talla", res.Movement.Variants[0].Attribute)

	s := f.pivot(t, p.ID, attr.Values[0].ID)
	assert.Equal(t, 7, s.Stock)
	assert.Equal(t, 7, s.StockInTotal)
	m := f.pivot(t, p.ID, attr.Values[1].ID)
	assert.Equal(t, 7, m.Stock)
	assert.Equal(t, 7, m.StockInTotal)

	require.Len(t, res.Product.Variants, 1)
	assert.Equal(t, 7, res.Product.Variants[0].Values[1].Stock) // "S" sorts after "M"
	f.assertLedgerBalanced(t, p.ID)
	assert.Equal(t, 1.0, counterValue(t, f.reg, "stock_movements_total"))
}

func TestApplyInboundVariantsReceiveTheEventQuantity(t *testing.T) {
	f := newFixture(t)
	attr := dbtest.MustCreateAttribute(t, f.conn, "Talla", "S")
	p := dbtest.MustCreateProduct(t, f.conn, "100", 4)
	dbtest.MustAttachValue(t, f.conn, p.ID, attr.Values[0].ID, "0", 2)

	_, err := f.svc.ApplyInbound(context.Background(), InboundInput{
		ProductID: p.ID,
		Quantity:  1,
		Variants:  []pricing.Selection{{AttributeValueID: attr.Values[0].ID, Quantity: 5}},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 4, f.product(t, p.ID).Stock)
	assert.Equal(t, 2, f.pivot(t, p.ID, attr.Values[0].ID).Stock)
	assert.EqualValues(t, 0, dbtest.Count(t, f.conn, &models.StockMovement{}))
}

func TestApplyInboundRejectsUnknownVariant(t *testing.T) {
	f := newFixture(t)
	attr := dbtest.MustCreateAttribute(t, f.conn, "Talla", "S", "M")
	p := dbtest.MustCreateProduct(t, f.conn, "100", 4)
	dbtest.MustAttachValue(t, f.conn, p.ID, attr.Values[0].ID, "0", 2)

	_, err := f.svc.ApplyInbound(context.Background(), InboundInput{
		ProductID: p.ID,
		Quantity:  5,
		Variants:  []pricing.Selection{{AttributeValueID: attr.Values[1].ID}},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeUnknownVariant), "got %v", err)
	assert.Equal(t, 4, f.product(t, p.ID).Stock)
	assert.EqualValues(t, 0, dbtest.Count(t, f.conn, &models.StockMovement{}))
}

func TestApplyInboundValidatesQuantityAndProduct(t *testing.T) {
	f := newFixture(t)
	p := dbtest.MustCreateProduct(t, f.conn, "100", 0)

	_, err := f.svc.ApplyInbound(context.Background(), InboundInput{ProductID: p.ID, Quantity: 0})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity), "got %v", err)

	_, err = f.svc.ApplyInbound(context.Background(), InboundInput{ProductID: uuid.New(), Quantity: 1})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestApplyOutboundGuardsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attr := dbtest.MustCreateAttribute(t, f.conn, "Talla", "S")
	p := dbtest.MustCreateProduct(t, f.conn, "100", 10)
	dbtest.MustAttachValue(t, f.conn, p.ID, attr.Values[0].ID, "0", 3)

	locked, err := f.repo.FindForUpdate(ctx, p.ID)
	require.NoError(t, err)
	pivot := &locked.Pivots[0]

	err = f.conn.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyOutbound(ctx, tx, OutboundLine{
			ProductID:  p.ID,
			Quantity:   4,
			Selections: []pricing.ResolvedSelection{{Pivot: pivot}},
		})
		return err
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "got %v", err)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	shortage, ok := typed.Details().(pkgerrors.StockShortage)
	require.True(t, ok, "details %T", typed.Details())
	assert.Equal(t, 3, shortage.Available)
	require.NotNil(t, shortage.AttributeValueID)

	// the product decrement ran before the variant guard failed; rollback undoes it
	assert.Equal(t, 10, f.product(t, p.ID).Stock)

	reference := uuid.New()
	err = f.conn.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.ApplyOutbound(ctx, tx, OutboundLine{
			ProductID:  p.ID,
			Quantity:   3,
			Selections: []pricing.ResolvedSelection{{Pivot: pivot}},
			Reference:  &reference,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7, f.product(t, p.ID).Stock)
	assert.Equal(t, 0, f.pivot(t, p.ID, attr.Values[0].ID).Stock)
	assert.Equal(t, 3, f.pivot(t, p.ID, attr.Values[0].ID).StockOutTotal)

	list, err := f.svc.ListMovements(ctx, p.ID, paginationParams(10))
	require.NoError(t, err)
	require.Len(t, list.Movements, 1)
	assert.Equal(t, &reference, list.Movements[0].Reference)
}

func TestListMovementsPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := dbtest.MustCreateProduct(t, f.conn, "10", 0)
	for i := 1; i <= 3; i++ {
		_, err := f.svc.RecordMovement(ctx, f.conn, p.ID, enums.MovementTypeIn, i, nil, nil)
		require.NoError(t, err)
	}

	page, err := f.svc.ListMovements(ctx, p.ID, paginationParams(2))
	require.NoError(t, err)
	assert.Len(t, page.Movements, 2)
	require.NotEmpty(t, page.NextCursor)

	rest, err := f.svc.ListMovements(ctx, p.ID, paginationWithCursor(2, page.NextCursor))
	require.NoError(t, err)
	assert.Len(t, rest.Movements, 1)
	assert.Empty(t, rest.NextCursor)
}
